package config

import "testing"

func TestDefaultSamplingValidates(t *testing.T) {
	s := DefaultSampling()
	s.SampleRateHz = 44100
	s.ChannelCount = 1
	if err := s.Validate(); err != nil {
		t.Fatalf("default sampling should validate, got %v", err)
	}
}

func TestSamplingValidateRejectsOutOfRange(t *testing.T) {
	s := DefaultSampling()
	s.NoteDurationMs = 50
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for note_duration_ms below range")
	}
}

func TestPresetsMatchTable(t *testing.T) {
	want := map[DetectionPreset]Detection{
		PresetDefault:    {ThresholdDb: -40, WindowMs: 10, MinLengthMs: 100, PreTriggerMs: 20, PostTriggerMs: 100, ConfirmationWindows: 2},
		PresetVintage:    {ThresholdDb: -35, WindowMs: 15, MinLengthMs: 200, PreTriggerMs: 30, PostTriggerMs: 300, ConfirmationWindows: 3},
		PresetPercussive: {ThresholdDb: -30, WindowMs: 5, MinLengthMs: 50, PreTriggerMs: 10, PostTriggerMs: 50, ConfirmationWindows: 2},
		PresetSustained:  {ThresholdDb: -50, WindowMs: 20, MinLengthMs: 300, PreTriggerMs: 50, PostTriggerMs: 500, ConfirmationWindows: 3},
	}
	for name, exp := range want {
		got, ok := Presets[name]
		if !ok {
			t.Fatalf("missing preset %q", name)
		}
		if got != exp {
			t.Errorf("preset %q = %+v, want %+v", name, got, exp)
		}
	}
}

func TestAudioFormatValid(t *testing.T) {
	if !FormatWav24.Valid() {
		t.Error("wav24 should be valid")
	}
	if AudioFormat("bogus").Valid() {
		t.Error("bogus format should be invalid")
	}
}
