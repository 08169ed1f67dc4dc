package detect

import (
	"math"

	"github.com/chase3718/batcherbird/internal/config"
)

// LoopPoint is the outcome of DetectLoop: a zero-crossing-aligned span
// whose start and end regions correlate closely enough to play back as a
// seamless sustain loop, grounded in original_source's loop_detection.rs
// candidate-search-plus-correlation-scoring approach.
type LoopPoint struct {
	Found      bool
	StartFrame int
	EndFrame   int
	Quality    float64
	Reason     string
}

type loopCandidate struct {
	start, end  int
	correlation float64
	quality     float64
}

// DetectLoop searches mono, already downmixed samples in [-1,1] for the
// best-scoring loop candidate. It never mutates mono and never looks past
// cfg.MaxCandidates zero-crossing pairs.
func DetectLoop(mono []float64, sampleRateHz int, cfg config.LoopDetection) LoopPoint {
	crossings := zeroCrossings(mono)
	if len(crossings) < 4 {
		return LoopPoint{Reason: "insufficient zero crossings"}
	}

	minSamples := int(cfg.MinLoopLengthSec * float64(sampleRateHz))
	maxSamples := int(cfg.MaxLoopLengthSec * float64(sampleRateHz))
	maxCandidates := cfg.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 20
	}

	var candidates []loopCandidate
search:
	for i, start := range crossings {
		for _, end := range crossings[i+1:] {
			length := end - start
			if length >= minSamples && length <= maxSamples && length < len(mono) {
				candidates = append(candidates, loopCandidate{start: start, end: end})
				if len(candidates) >= maxCandidates {
					break search
				}
			}
		}
	}
	if len(candidates) == 0 {
		return LoopPoint{Reason: "no candidates in length range"}
	}

	best := -1
	for i := range candidates {
		c := &candidates[i]
		c.correlation = regionCorrelation(mono, c.start, c.end)
		if c.correlation < cfg.CorrelationThreshold {
			continue
		}
		c.quality = qualityScore(*c, sampleRateHz)
		if best == -1 || c.quality > candidates[best].quality {
			best = i
		}
	}
	if best == -1 || candidates[best].quality <= 0.5 {
		return LoopPoint{Reason: "no candidate met the correlation threshold"}
	}

	winner := candidates[best]
	return LoopPoint{Found: true, StartFrame: winner.start, EndFrame: winner.end, Quality: winner.quality}
}

func zeroCrossings(mono []float64) []int {
	var crossings []int
	for i := 1; i < len(mono); i++ {
		if (mono[i-1] <= 0 && mono[i] > 0) || (mono[i-1] > 0 && mono[i] <= 0) {
			crossings = append(crossings, i)
		}
	}
	return crossings
}

// regionCorrelation compares a small window around start against one
// around end: a seamless loop point needs the waveform shape on both
// sides of the splice to line up, not just the sample values at the
// splice itself.
func regionCorrelation(mono []float64, start, end int) float64 {
	window := 1024
	if n := len(mono) / 10; n < window {
		window = n
	}
	if window < 2 {
		return 0
	}

	sStart, sEnd := clampRange(start-window/2, start+window/2, len(mono))
	eStart, eEnd := clampRange(end-window/2, end+window/2, len(mono))
	if sEnd <= sStart || eEnd <= eStart {
		return 0
	}
	return normalizedCrossCorrelation(mono[sStart:sEnd], mono[eStart:eEnd])
}

func normalizedCrossCorrelation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var numerator, sumSqA, sumSqB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		numerator += da * db
		sumSqA += da * da
		sumSqB += db * db
	}
	denom := math.Sqrt(sumSqA * sumSqB)
	if denom <= 0 {
		return 0
	}
	return math.Abs(numerator / denom)
}

// qualityScore weighs correlation at 70%, zero-crossing alignment (always
// true here, by construction) at 20%, and a preference for loop lengths
// near one second at 10%.
func qualityScore(c loopCandidate, sampleRateHz int) float64 {
	score := c.correlation*0.7 + 0.2

	length := float64(c.end - c.start)
	ideal := float64(sampleRateHz)
	ratio := length / ideal
	if inv := ideal / length; inv < ratio {
		ratio = inv
	}
	score += ratio * 0.1

	return math.Min(1, math.Max(0, score))
}

func clampRange(lo, hi, max int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > max {
		hi = max
	}
	return lo, hi
}
