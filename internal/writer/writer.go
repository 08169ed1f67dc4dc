// Package writer implements the File Writer of spec.md §4.5: it persists a
// processed shot as a WAV file under a deterministic per-session layout,
// with optional fade and normalize post-processing carried over from the
// original exporter's behavior (see SPEC_FULL.md).
package writer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/chase3718/batcherbird/internal/berrors"
	"github.com/chase3718/batcherbird/internal/config"
	"github.com/chase3718/batcherbird/internal/noteconv"
)

// wavAudioFormat values per the RIFF/WAVE fmt chunk.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// Written mirrors spec.md §3's "Written sample record".
type Written struct {
	Path     string
	Note     int
	Velocity int
	NoteName string
}

// Writer persists shots under {outputRoot}/{prefix or "Batcherbird Samples"}/
// and refuses to overwrite a file that already exists with an incompatible
// sample rate or channel count, per §4.5.
type Writer struct {
	root   string
	format config.AudioFormat
	export config.Export
}

// New returns a Writer rooted at outputRoot/{instrumentName or default}.
func New(outputRoot, instrumentName string, format config.AudioFormat, export config.Export) *Writer {
	dirName := instrumentName
	if dirName == "" {
		dirName = "Batcherbird Samples"
	}
	return &Writer{
		root:   filepath.Join(outputRoot, dirName),
		format: format,
		export: export,
	}
}

// Dir reports the per-session output directory.
func (w *Writer) Dir() string { return w.root }

// filename implements the naming convention of §4.5.
func filename(instrumentName string, note, velocity int) string {
	prefix := ""
	if instrumentName != "" {
		prefix = instrumentName + "_"
	}
	return fmt.Sprintf("%s%s_%d_vel%03d.wav", prefix, noteconv.Name(note), note, velocity)
}

// Write applies fade/normalize per the configured config.Export, encodes the
// frames at the writer's configured bit depth, and places the file at its
// deterministic path. instrumentName participates in the filename prefix,
// per §4.5 ("prefix_ is present iff a non-empty instrument name is
// configured").
func (w *Writer) Write(instrumentName string, note, velocity int, frames []float32, channels, sampleRateHz int) (Written, error) {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return Written{}, fmt.Errorf("create output dir: %w", err)
	}

	name := filename(instrumentName, note, velocity)
	path := filepath.Join(w.root, name)

	if existing, ok := existingSpec(path); ok {
		if existing.sampleRate != sampleRateHz || existing.channels != channels {
			return Written{}, fmt.Errorf("%w: %s exists with sample_rate=%d channels=%d, session wants sample_rate=%d channels=%d",
				berrors.ErrNamingConflict, path, existing.sampleRate, existing.channels, sampleRateHz, channels)
		}
	}

	processed := make([]float32, len(frames))
	copy(processed, frames)
	applyFades(processed, channels, sampleRateHz, w.export.FadeInMs, w.export.FadeOutMs)
	if w.export.Normalize {
		normalize(processed)
	}

	if err := writeWav(path, processed, channels, sampleRateHz, w.format); err != nil {
		return Written{}, err
	}

	return Written{Path: path, Note: note, Velocity: velocity, NoteName: noteconv.Name(note)}, nil
}

// applyFades linearly ramps the first fadeInMs and last fadeOutMs of the
// buffer, operating per-frame so every channel of a frame shares one gain.
func applyFades(samples []float32, channels, sampleRateHz int, fadeInMs, fadeOutMs float64) {
	if channels <= 0 {
		channels = 1
	}
	totalFrames := len(samples) / channels
	fadeInFrames := int(fadeInMs / 1000 * float64(sampleRateHz))
	fadeOutFrames := int(fadeOutMs / 1000 * float64(sampleRateHz))

	if fadeInFrames > 0 && fadeInFrames < totalFrames {
		for i := 0; i < fadeInFrames; i++ {
			gain := float32(i) / float32(fadeInFrames)
			for c := 0; c < channels; c++ {
				samples[i*channels+c] *= gain
			}
		}
	}
	if fadeOutFrames > 0 && fadeOutFrames < totalFrames {
		start := totalFrames - fadeOutFrames
		for i := start; i < totalFrames; i++ {
			gain := float32(totalFrames-i) / float32(fadeOutFrames)
			for c := 0; c < channels; c++ {
				samples[i*channels+c] *= gain
			}
		}
	}
}

// normalize scales the buffer so its peak sits at 95% of full scale,
// matching the original exporter's headroom choice. A silent buffer, or one
// whose peak is already at or above full scale, is left unchanged.
func normalize(samples []float32) {
	var peak float32
	for _, s := range samples {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak > 0 && peak < 1 {
		gain := float32(0.95) / peak
		for i := range samples {
			samples[i] *= gain
		}
	}
}

func writeWav(path string, samples []float32, channels, sampleRateHz int, format config.AudioFormat) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	bitDepth, wavFormat := bitDepthFor(format)

	enc := wav.NewEncoder(f, sampleRateHz, bitDepth, channels, wavFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRateHz},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}

	switch wavFormat {
	case wavFormatFloat:
		for i, s := range samples {
			buf.Data[i] = int(int32(math.Float32bits(s)))
		}
	default:
		maxVal := float64(int64(1) << (bitDepth - 1))
		for i, s := range samples {
			v := float64(s) * (maxVal - 1)
			if v > maxVal-1 {
				v = maxVal - 1
			}
			if v < -maxVal {
				v = -maxVal
			}
			buf.Data[i] = int(v)
		}
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav %s: %w", path, err)
	}
	return enc.Close()
}

func bitDepthFor(format config.AudioFormat) (bitDepth, wavFormat int) {
	switch format {
	case config.FormatWav24:
		return 24, wavFormatPCM
	case config.FormatWav32F:
		return 32, wavFormatFloat
	default:
		return 16, wavFormatPCM
	}
}

type spec struct {
	sampleRate int
	channels   int
}

// existingSpec reads just enough of an existing WAV's header to compare
// sample rate and channel count against the current session, per §4.5's
// "rejects a write if the target already exists with different sample
// rate / channel count" rule.
func existingSpec(path string) (spec, bool) {
	f, err := os.Open(path)
	if err != nil {
		return spec{}, false
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return spec{}, false
	}
	dec.ReadInfo()
	return spec{sampleRate: int(dec.SampleRate), channels: int(dec.NumChans)}, true
}
