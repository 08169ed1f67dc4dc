package detect

import (
	"math"
	"testing"

	"github.com/chase3718/batcherbird/internal/config"
)

func buildPeriodicTone(sampleRateHz int, seconds float64, freqHz float64) []float64 {
	n := int(seconds * float64(sampleRateHz))
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freqHz * float64(i) / float64(sampleRateHz))
	}
	return out
}

func TestDetectLoopFindsPeriodicWaveform(t *testing.T) {
	sampleRateHz := 44100
	mono := buildPeriodicTone(sampleRateHz, 2.0, 220)
	cfg := config.DefaultLoopDetection()
	cfg.MaxLoopLengthSec = 1.5

	result := DetectLoop(mono, sampleRateHz, cfg)
	if !result.Found {
		t.Fatalf("expected a loop point in a pure periodic tone, got reason %q", result.Reason)
	}
	if result.EndFrame <= result.StartFrame {
		t.Errorf("end frame %d should be after start frame %d", result.EndFrame, result.StartFrame)
	}
	if result.Quality <= 0.5 {
		t.Errorf("expected quality above the success threshold, got %v", result.Quality)
	}
}

func TestDetectLoopInsufficientCrossings(t *testing.T) {
	mono := make([]float64, 100)
	for i := range mono {
		mono[i] = 0.5
	}
	result := DetectLoop(mono, 44100, config.DefaultLoopDetection())
	if result.Found {
		t.Fatal("a DC signal has no zero crossings and should never produce a loop point")
	}
}

func TestDetectLoopRespectsCorrelationThreshold(t *testing.T) {
	sampleRateHz := 44100
	mono := buildPeriodicTone(sampleRateHz, 1.0, 220)
	cfg := config.DefaultLoopDetection()
	cfg.CorrelationThreshold = 1.01 // impossible to satisfy

	result := DetectLoop(mono, sampleRateHz, cfg)
	if result.Found {
		t.Fatal("no candidate should clear a correlation threshold above 1.0")
	}
}
