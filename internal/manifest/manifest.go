// Package manifest implements the Manifest Emitter of spec.md §4.6: it
// walks a directory of files written by internal/writer, assigns each one
// a keyboard zone and a velocity band, and emits an SFZ or Decent Sampler
// dspreset file describing the instrument.
package manifest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-audio/wav"

	"github.com/chase3718/batcherbird/internal/berrors"
	"github.com/chase3718/batcherbird/internal/config"
	"github.com/chase3718/batcherbird/internal/detect"
)

// filenamePattern matches the naming convention of §4.5: an optional
// prefix, a note name, the numeric note, and a zero-padded velocity.
var filenamePattern = regexp.MustCompile(`^(?:.*_)?([A-G]#?)(-?\d+)_(\d{1,3})_vel(\d{1,3})\.wav$`)

// Record is one parsed sample file, anchored at its MIDI note and velocity.
type Record struct {
	Note     int
	Velocity int
	Path     string // relative to the manifest's directory
}

// Zone is one assigned key/velocity range for a single Record, per the
// §4.6 zone-assignment algorithm.
type Zone struct {
	Record
	LoKey, HiKey int
	LoVel, HiVel int

	LoopFound      bool
	LoopStartFrame int
	LoopEndFrame   int
}

// ParseDirectory scans dir for files matching the §4.5 naming convention
// and returns one Record per match. Files that do not match are ignored,
// not reported as errors — only a directory read failure is.
func ParseDirectory(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %s: %v", berrors.ErrManifestParse, dir, err)
	}
	var records []Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := filenamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		note, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		velocity, err := strconv.Atoi(m[4])
		if err != nil {
			continue
		}
		records = append(records, Record{Note: note, Velocity: velocity, Path: e.Name()})
	}
	return records, nil
}

// AssignZones implements §4.6's velocity-band and key-zone assignment.
// Records must share no (note, velocity) pair for the output to be
// meaningful; duplicate pairs are kept and treated as neighbouring notes,
// so the first covers keys up to the shared note and the second starts one
// key above it.
func AssignZones(records []Record) []Zone {
	if len(records) == 0 {
		return nil
	}

	byVelocity := map[int][]Record{}
	for _, r := range records {
		byVelocity[r.Velocity] = append(byVelocity[r.Velocity], r)
	}
	velocities := make([]int, 0, len(byVelocity))
	for v := range byVelocity {
		velocities = append(velocities, v)
	}
	sort.Ints(velocities)

	var zones []Zone
	for i, v := range velocities {
		loVel := 0
		if i > 0 {
			loVel = (velocities[i-1]+v)/2 + 1
		}
		hiVel := 127
		if i < len(velocities)-1 {
			hiVel = (v + velocities[i+1]) / 2
		}

		group := byVelocity[v]
		sort.Slice(group, func(a, b int) bool { return group[a].Note < group[b].Note })

		for j, rec := range group {
			loKey := 0
			if j > 0 {
				loKey = (group[j-1].Note+rec.Note)/2 + 1
			}
			hiKey := 127
			if j < len(group)-1 {
				hiKey = (rec.Note + group[j+1].Note) / 2
			}
			zones = append(zones, Zone{
				Record: rec,
				LoKey:  loKey, HiKey: hiKey,
				LoVel: loVel, HiVel: hiVel,
			})
		}
	}

	sort.Slice(zones, func(a, b int) bool {
		if zones[a].Velocity != zones[b].Velocity {
			return zones[a].Velocity < zones[b].Velocity
		}
		return zones[a].Note < zones[b].Note
	})
	return zones
}

// WriteSFZ emits a deterministic SFZ text file per §6: one <control>, one
// <group> with shared envelope defaults, one <region> per zone with
// attributes in the order sample, lokey, hikey, pitch_keycenter, lovel,
// hivel.
func WriteSFZ(path string, zones []Zone, meta config.Manifest) error {
	var b strings.Builder
	b.WriteString("<control>\n")
	b.WriteString("default_path=./\n\n")
	b.WriteString("<group>\n")
	b.WriteString("ampeg_attack=0.001\n")
	b.WriteString("ampeg_release=0.5\n\n")

	for _, z := range zones {
		b.WriteString("<region>\n")
		fmt.Fprintf(&b, "sample=%s\n", filepath.ToSlash(z.Path))
		fmt.Fprintf(&b, "lokey=%d\n", z.LoKey)
		fmt.Fprintf(&b, "hikey=%d\n", z.HiKey)
		fmt.Fprintf(&b, "pitch_keycenter=%d\n", z.Note)
		fmt.Fprintf(&b, "lovel=%d\n", z.LoVel)
		fmt.Fprintf(&b, "hivel=%d\n", z.HiVel)
		if z.LoopFound {
			b.WriteString("loop_mode=loop_continuous\n")
			fmt.Fprintf(&b, "loop_start=%d\n", z.LoopStartFrame)
			fmt.Fprintf(&b, "loop_end=%d\n", z.LoopEndFrame)
			if meta.Loop.CrossfadeMs > 0 {
				fmt.Fprintf(&b, "loop_crossfade=%.4f\n", meta.Loop.CrossfadeMs/1000)
			}
		}
		b.WriteString("\n")
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// WriteDSPreset emits a Decent Sampler .dspreset XML document per §6, with
// children in order <ui> (if creator/description provided), <groups>,
// <effects>.
func WriteDSPreset(path string, zones []Zone, meta config.Manifest) error {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<DecentSampler minVersion="1.0.0">` + "\n")

	if meta.Creator != "" || meta.Description != "" {
		b.WriteString("  <ui>\n")
		if meta.Creator != "" {
			fmt.Fprintf(&b, "    <author>%s</author>\n", xmlEscape(meta.Creator))
		}
		if meta.Description != "" {
			fmt.Fprintf(&b, "    <description>%s</description>\n", xmlEscape(meta.Description))
		}
		b.WriteString("  </ui>\n")
	}

	b.WriteString("  <groups>\n")
	b.WriteString(`    <group ampVelTrack="1.0" volume="0.0">` + "\n")
	b.WriteString(`      <amplifier attack="0.001" decay="0.0" sustain="1.0" release="0.5" />` + "\n")
	for _, z := range zones {
		fmt.Fprintf(&b, "      <sample path=%q rootNote=%q loNote=%q hiNote=%q loVel=%q hiVel=%q",
			filepath.ToSlash(z.Path), strconv.Itoa(z.Note), strconv.Itoa(z.LoKey), strconv.Itoa(z.HiKey),
			strconv.Itoa(z.LoVel), strconv.Itoa(z.HiVel))
		if z.LoopFound {
			fmt.Fprintf(&b, " loopEnabled=\"true\" loopStart=%q loopEnd=%q loopCrossfade=%q",
				strconv.Itoa(z.LoopStartFrame), strconv.Itoa(z.LoopEndFrame), strconv.FormatFloat(meta.Loop.CrossfadeMs/1000, 'f', 4, 64))
		}
		b.WriteString(" />\n")
	}
	b.WriteString("    </group>\n")
	b.WriteString("  </groups>\n")

	b.WriteString("  <effects>\n")
	b.WriteString(`    <effect type="reverb" roomSize="0.3" damping="0.3" wetLevel="0.1" dryLevel="1.0" />` + "\n")
	b.WriteString("  </effects>\n")

	b.WriteString("</DecentSampler>\n")

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Generate parses dir, assigns zones, and writes whichever manifest
// formats are requested, returning the path(s) written.
func Generate(dir string, format config.ManifestFormat, meta config.Manifest) ([]string, error) {
	records, err := ParseDirectory(dir)
	if err != nil {
		return nil, err
	}
	zones := AssignZones(records)
	if meta.Loop.Enabled {
		findLoopPoints(dir, zones, meta.Loop)
	}

	base := meta.InstrumentName
	if base == "" {
		base = "instrument"
	}

	var written []string
	if format == config.ManifestSFZ || format == config.ManifestAll {
		path := filepath.Join(dir, base+".sfz")
		if err := WriteSFZ(path, zones, meta); err != nil {
			return written, fmt.Errorf("write sfz: %w", err)
		}
		written = append(written, path)
	}
	if format == config.ManifestDSPreset || format == config.ManifestAll {
		path := filepath.Join(dir, base+".dspreset")
		if err := WriteDSPreset(path, zones, meta); err != nil {
			return written, fmt.Errorf("write dspreset: %w", err)
		}
		written = append(written, path)
	}
	return written, nil
}

// findLoopPoints decodes each zone's WAV file and fills in a sustain loop
// point when DetectLoop finds one, per original_source's
// loop_detection.rs. Zones it can't decode or that yield no confident
// candidate are left without loop opcodes rather than failing the whole
// manifest.
func findLoopPoints(dir string, zones []Zone, cfg config.LoopDetection) {
	for i := range zones {
		mono, sampleRateHz, err := decodeMono(filepath.Join(dir, zones[i].Path))
		if err != nil {
			continue
		}
		loop := detect.DetectLoop(mono, sampleRateHz, cfg)
		if !loop.Found {
			continue
		}
		zones[i].LoopFound = true
		zones[i].LoopStartFrame = loop.StartFrame
		zones[i].LoopEndFrame = loop.EndFrame
	}
}

// decodeMono reads a WAV file written by internal/writer back into mono
// float64 samples in [-1,1], mirroring its encode step in reverse.
func decodeMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	sampleRateHz := buf.Format.SampleRate
	bitDepth := buf.SourceBitDepth
	isFloat := dec.WavAudioFormat == 3

	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	maxVal := float64(int64(1) << (bitDepth - 1))
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := buf.Data[i*channels+c]
			if isFloat {
				sum += float64(math.Float32frombits(uint32(int32(v))))
			} else {
				sum += float64(v) / (maxVal - 1)
			}
		}
		mono[i] = sum / float64(channels)
	}
	return mono, sampleRateHz, nil
}

func xmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
