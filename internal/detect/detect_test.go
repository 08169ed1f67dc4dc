package detect

import (
	"testing"

	"github.com/chase3718/batcherbird/internal/config"
)

func buildShot(sampleRateHz int, silenceMs, toneMs int, amplitude float32) []float32 {
	silence := make([]float32, silenceMs*sampleRateHz/1000)
	tone := make([]float32, toneMs*sampleRateHz/1000)
	for i := range tone {
		if i%2 == 0 {
			tone[i] = amplitude
		} else {
			tone[i] = -amplitude
		}
	}
	out := append(silence, tone...)
	return append(out, silence...)
}

func TestDetectFindsToneBoundaries(t *testing.T) {
	sampleRateHz := 44100
	frames := buildShot(sampleRateHz, 200, 500, 0.8)
	result := Detect(frames, 1, sampleRateHz, config.Presets[config.PresetDefault])

	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if result.StartFrame <= 0 {
		t.Errorf("start frame should be after the leading silence, got %d", result.StartFrame)
	}
	if result.EndFrame <= result.StartFrame {
		t.Errorf("end frame %d should be after start frame %d", result.EndFrame, result.StartFrame)
	}
	if result.EndFrame > len(frames) {
		t.Errorf("end frame %d exceeds buffer length %d", result.EndFrame, len(frames))
	}
}

func TestDetectFallsBackWhenTooShort(t *testing.T) {
	sampleRateHz := 44100
	frames := buildShot(sampleRateHz, 50, 10, 0.8) // tone shorter than min_length_ms
	result := Detect(frames, 1, sampleRateHz, config.Presets[config.PresetDefault])
	if result.Success {
		t.Fatal("expected failure for a tone shorter than min_length_ms")
	}
	if result.Reason == "" {
		t.Error("expected a failure reason")
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	sampleRateHz := 44100
	frames := buildShot(sampleRateHz, 200, 500, 0.8)
	cfg := config.Presets[config.PresetDefault]
	a := Detect(frames, 1, sampleRateHz, cfg)
	b := Detect(frames, 1, sampleRateHz, cfg)
	if a != b {
		t.Errorf("Detect should be deterministic, got %+v and %+v", a, b)
	}
}

func TestDetectEmptyBuffer(t *testing.T) {
	result := Detect(nil, 1, 44100, config.Presets[config.PresetDefault])
	if result.Success {
		t.Fatal("empty buffer should never succeed")
	}
}
