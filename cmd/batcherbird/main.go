// Command batcherbird drives the multisampling engine from a terminal: it
// exposes the sample-note and sample-range operations of spec.md §6 as
// subcommands, exits 0 on full success, 2 on partial failure, 1 on fatal
// error, and carries warnings on standard error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chase3718/batcherbird/internal/config"
	"github.com/chase3718/batcherbird/internal/device"
	"github.com/chase3718/batcherbird/internal/engine"
	"github.com/chase3718/batcherbird/internal/logging"
	"github.com/chase3718/batcherbird/internal/session"
)

const (
	exitSuccess = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitFatal
	}

	switch args[0] {
	case "sample-note":
		return runSampleNote(args[1:])
	case "sample-range":
		return runSampleRange(args[1:])
	case "list-midi":
		return runListMidi()
	case "list-serial":
		return runListSerial()
	case "panic":
		return runPanic(args[1:])
	default:
		usage()
		return exitFatal
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: batcherbird <sample-note|sample-range|list-midi|list-serial|panic> [flags]")
}

func runListMidi() int {
	logging.Init(false)
	outs, err := session.ListMidiOutputs()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	for i, name := range outs {
		fmt.Printf("%d: %s\n", i, name)
	}
	return exitSuccess
}

func runListSerial() int {
	logging.Init(false)
	infos, err := device.SerialPorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	for _, info := range infos {
		fmt.Println(info.Name)
	}
	return exitSuccess
}

func runPanic(args []string) int {
	fs := flag.NewFlagSet("panic", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	midiIndex := fs.Int("midi", 0, "MIDI output port index")
	sweep := fs.Bool("pitch-bend-sweep", false, "include pitch-bend recentring sweep")
	auxSerial := fs.String("aux-serial", "", "also pulse a panic/reset line on this serial port (optional)")
	auxBaud := fs.Int("aux-baud", 9600, "baud rate for -aux-serial")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}
	logging.Init(*debug)

	sampling := config.DefaultSampling()
	sampling.SampleRateHz = 44100
	sampling.ChannelCount = 1

	sess, err := session.Open(*midiIndex, sampling, config.PresetDefault)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	defer sess.Close()
	sess.Configure(config.Export{}, config.Panic{IncludePitchBendSweep: *sweep}, config.Manifest{}, config.FormatWav16)

	if *auxSerial != "" {
		if err := sess.AttachAuxSerialPanic(*auxSerial, *auxBaud); err != nil {
			fmt.Fprintln(os.Stderr, "warning: aux serial panic unavailable:", err)
		}
	}

	if err := sess.MidiPanic(nil); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	return exitSuccess
}

func runSampleNote(args []string) int {
	fs := flag.NewFlagSet("sample-note", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	velocity := fs.Int("velocity", 100, "MIDI velocity (0-127)")
	duration := fs.Int("duration", 2000, "note hold duration in ms")
	out := fs.String("out", ".", "output directory")
	midiIndex := fs.Int("midi", 0, "MIDI output port index")
	sampleRate := fs.Int("sample-rate", 44100, "audio sample rate")
	channels := fs.Int("channels", 1, "audio channel count")
	format := fs.String("format", string(config.FormatWav24), "wav16|wav24|wav32f")
	instrument := fs.String("instrument", "", "instrument name (used as filename prefix and directory)")
	preset := fs.String("preset", string(config.PresetDefault), "detection preset: default|vintage|percussive|sustained")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "sample-note: missing note argument")
		return exitFatal
	}
	note, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sample-note: invalid note:", err)
		return exitFatal
	}

	logging.Init(*debug)

	sampling := config.DefaultSampling()
	sampling.NoteDurationMs = *duration
	sampling.SampleRateHz = *sampleRate
	sampling.ChannelCount = *channels
	if err := sampling.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}

	sess, err := session.Open(*midiIndex, sampling, config.DetectionPreset(*preset))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	defer sess.Close()
	sess.Configure(config.Export{}, config.Panic{}, config.Manifest{InstrumentName: *instrument}, config.AudioFormat(*format))

	written, err := sess.RecordShot(context.Background(), note, *velocity, *out, *instrument)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	for _, w := range written.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	fmt.Println(written.Path)
	return exitSuccess
}

func runSampleRange(args []string) int {
	fs := flag.NewFlagSet("sample-range", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	velocities := fs.String("velocities", "127", "comma-separated velocities")
	duration := fs.Int("duration", 2000, "note hold duration in ms")
	out := fs.String("out", ".", "output directory")
	midiIndex := fs.Int("midi", 0, "MIDI output port index")
	sampleRate := fs.Int("sample-rate", 44100, "audio sample rate")
	channels := fs.Int("channels", 1, "audio channel count")
	format := fs.String("format", string(config.FormatWav24), "wav16|wav24|wav32f")
	instrument := fs.String("instrument", "", "instrument name")
	preset := fs.String("preset", string(config.PresetDefault), "detection preset: default|vintage|percussive|sustained")
	manifestFormat := fs.String("manifest", "", "sfz|dspreset|all — also emit an instrument manifest after recording")
	creator := fs.String("creator", "", "manifest creator metadata")
	description := fs.String("description", "", "manifest description metadata")
	loopPoints := fs.Bool("loop-points", false, "search for a sustain loop point in each sample and carry it in the manifest")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "sample-range: missing <lo>..<hi> argument")
		return exitFatal
	}
	lo, hi, err := parseRange(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sample-range:", err)
		return exitFatal
	}
	vels, err := parseVelocities(*velocities)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sample-range:", err)
		return exitFatal
	}

	logging.Init(*debug)

	sampling := config.DefaultSampling()
	sampling.NoteDurationMs = *duration
	sampling.SampleRateHz = *sampleRate
	sampling.ChannelCount = *channels
	if err := sampling.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}

	sess, err := session.Open(*midiIndex, sampling, config.DetectionPreset(*preset))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	defer sess.Close()
	loop := config.LoopDetection{}
	if *loopPoints {
		loop = config.DefaultLoopDetection()
	}
	meta := config.Manifest{InstrumentName: *instrument, Creator: *creator, Description: *description, Loop: loop}
	sess.Configure(config.Export{}, config.Panic{}, meta, config.AudioFormat(*format))

	onProgress := func(ev engine.ProgressEvent) {
		if ev.Phase == engine.PhaseWarn {
			fmt.Fprintf(os.Stderr, "warning: note=%d velocity=%d: %v\n", ev.Note, ev.Velocity, ev.Err)
		}
	}

	summary, err := sess.RecordRange(context.Background(), lo, hi, vels, *out, *instrument, onProgress)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}

	if *manifestFormat != "" {
		dir := fmt.Sprintf("%s/%s", *out, instrumentDirName(*instrument))
		paths, err := session.GenerateManifest(dir, config.ManifestFormat(*manifestFormat), meta)
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning: manifest generation failed:", err)
		} else {
			for _, p := range paths {
				fmt.Println(p)
			}
		}
	}

	switch {
	case summary.Completed == summary.Total && !summary.Cancelled:
		return exitSuccess
	default:
		return exitPartial
	}
}

func instrumentDirName(instrument string) string {
	if instrument == "" {
		return "Batcherbird Samples"
	}
	return instrument
}

func parseRange(s string) (lo, hi int, err error) {
	parts := strings.SplitN(s, "..", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("range %q must be of the form lo..hi", s)
	}
	lo, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lo note: %w", err)
	}
	hi, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hi note: %w", err)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("lo note %d greater than hi note %d", lo, hi)
	}
	return lo, hi, nil
}

func parseVelocities(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	vels := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid velocity %q: %w", p, err)
		}
		vels = append(vels, v)
	}
	return vels, nil
}
