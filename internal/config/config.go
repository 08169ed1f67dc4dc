// Package config holds the flat, validated session configuration described
// in spec.md §3 and §9. Configuration is constructed once by the front end
// (CLI or otherwise) and never mutated after a session starts.
package config

import "fmt"

// AudioFormat is the file-writer output encoding, or one of the manifest
// emission formats. Valid reports whether a value is one of the constants
// below; the session does not call it, and the writer encodes every value
// other than wav24 and wav32f, unknown ones included, as 16-bit PCM.
type AudioFormat string

const (
	FormatWav16    AudioFormat = "wav16"
	FormatWav24    AudioFormat = "wav24"
	FormatWav32F   AudioFormat = "wav32f"
	FormatSFZ      AudioFormat = "sfz"
	FormatDSPreset AudioFormat = "dspreset"
	FormatAll      AudioFormat = "all"
)

func (f AudioFormat) Valid() bool {
	switch f {
	case FormatWav16, FormatWav24, FormatWav32F, FormatSFZ, FormatDSPreset, FormatAll:
		return true
	}
	return false
}

// ManifestFormat restricts AudioFormat to the subset accepted by
// generate_manifest (§6).
type ManifestFormat string

const (
	ManifestSFZ      ManifestFormat = "sfz"
	ManifestDSPreset ManifestFormat = "dspreset"
	ManifestAll      ManifestFormat = "all"
)

func (f ManifestFormat) Valid() bool {
	switch f {
	case ManifestSFZ, ManifestDSPreset, ManifestAll:
		return true
	}
	return false
}

// DetectionPreset names one of the four presets of §4.4. Selecting an
// unknown name is a config error, never a silent fallback.
type DetectionPreset string

const (
	PresetDefault    DetectionPreset = "default"
	PresetVintage    DetectionPreset = "vintage"
	PresetPercussive DetectionPreset = "percussive"
	PresetSustained  DetectionPreset = "sustained"
)

func (p DetectionPreset) Valid() bool {
	switch p {
	case PresetDefault, PresetVintage, PresetPercussive, PresetSustained:
		return true
	}
	return false
}

// Sampling is the immutable per-session sampling configuration of §3.
type Sampling struct {
	NoteDurationMs int // hold time of note-on, 100-10000
	ReleaseTailMs  int // capture after note-off, 0-10000, default 500
	PreRollMs      int // capture before note-on, 0-1000, default 100
	InterShotMs    int // idle between shots, 100-2000, default 200
	MidiChannel    int // 0-15

	SampleRateHz int // informational, taken from device
	ChannelCount int // informational, taken from device
}

// DefaultSampling returns the defaults named in §3.
func DefaultSampling() Sampling {
	return Sampling{
		NoteDurationMs: 2000,
		ReleaseTailMs:  500,
		PreRollMs:      100,
		InterShotMs:    200,
		MidiChannel:    0,
	}
}

// Validate enforces the ranges of §3. Unknown/out-of-range values are
// rejected at session start rather than clamped silently.
func (s Sampling) Validate() error {
	if s.NoteDurationMs < 100 || s.NoteDurationMs > 10000 {
		return fmt.Errorf("note_duration_ms %d out of range [100,10000]", s.NoteDurationMs)
	}
	if s.ReleaseTailMs < 0 || s.ReleaseTailMs > 10000 {
		return fmt.Errorf("release_tail_ms %d out of range [0,10000]", s.ReleaseTailMs)
	}
	if s.PreRollMs < 0 || s.PreRollMs > 1000 {
		return fmt.Errorf("pre_roll_ms %d out of range [0,1000]", s.PreRollMs)
	}
	if s.InterShotMs < 100 || s.InterShotMs > 2000 {
		return fmt.Errorf("inter_shot_ms %d out of range [100,2000]", s.InterShotMs)
	}
	if s.MidiChannel < 0 || s.MidiChannel > 15 {
		return fmt.Errorf("midi_channel %d out of range [0,15]", s.MidiChannel)
	}
	return nil
}

// Detection is the RMS-window boundary-analysis configuration of §4.4.
type Detection struct {
	ThresholdDb          float64 // -80..-10
	WindowMs             float64 // 2..50
	MinLengthMs          float64
	PreTriggerMs         float64
	PostTriggerMs        float64
	ConfirmationWindows  int
}

// Presets holds the exact numeric table of §4.4.
var Presets = map[DetectionPreset]Detection{
	PresetDefault:    {ThresholdDb: -40, WindowMs: 10, MinLengthMs: 100, PreTriggerMs: 20, PostTriggerMs: 100, ConfirmationWindows: 2},
	PresetVintage:    {ThresholdDb: -35, WindowMs: 15, MinLengthMs: 200, PreTriggerMs: 30, PostTriggerMs: 300, ConfirmationWindows: 3},
	PresetPercussive: {ThresholdDb: -30, WindowMs: 5, MinLengthMs: 50, PreTriggerMs: 10, PostTriggerMs: 50, ConfirmationWindows: 2},
	PresetSustained:  {ThresholdDb: -50, WindowMs: 20, MinLengthMs: 300, PreTriggerMs: 50, PostTriggerMs: 500, ConfirmationWindows: 3},
}

func (d Detection) Validate() error {
	if d.ThresholdDb < -80 || d.ThresholdDb > -10 {
		return fmt.Errorf("threshold_db %.1f out of range [-80,-10]", d.ThresholdDb)
	}
	if d.WindowMs < 2 || d.WindowMs > 50 {
		return fmt.Errorf("window_ms %.1f out of range [2,50]", d.WindowMs)
	}
	if d.ConfirmationWindows < 1 {
		return fmt.Errorf("confirmation_windows %d must be >= 1", d.ConfirmationWindows)
	}
	return nil
}

// Export controls file-writer post-processing (§4.5, supplemented by
// original_source/export.rs's fade/normalize step — see SPEC_FULL.md).
type Export struct {
	FadeInMs   float64
	FadeOutMs  float64
	Normalize  bool
}

// Panic configures the device-specific pitch-bend recentring sweep (§9
// open question — optional, device-specific).
type Panic struct {
	IncludePitchBendSweep bool
}

// Manifest holds the creator metadata threaded into SFZ/dspreset output
// (§4.6, §6).
type Manifest struct {
	InstrumentName string
	Creator        string
	Description    string
	Loop           LoopDetection
}

// LoopDetection configures the zero-crossing/cross-correlation sustain
// loop-point search manifest generation runs over each written sample,
// supplementing original_source/loop_detection.rs for instruments that
// need a seamless sustain region rather than a fixed-length one-shot.
type LoopDetection struct {
	Enabled              bool
	MinLoopLengthSec     float64
	MaxLoopLengthSec     float64
	MaxCandidates        int
	CorrelationThreshold float64 // 0.0-1.0
	CrossfadeMs          float64
}

// DefaultLoopDetection mirrors the original exporter's tuning.
func DefaultLoopDetection() LoopDetection {
	return LoopDetection{
		Enabled:              true,
		MinLoopLengthSec:     0.1,
		MaxLoopLengthSec:     4.0,
		MaxCandidates:        20,
		CorrelationThreshold: 0.8,
		CrossfadeMs:          10.0,
	}
}
