// Package detect implements the Sample Detector of spec.md §4.4: RMS-window
// boundary analysis that trims leading silence and trailing decay from a
// captured shot while preserving attack and musical tail.
package detect

import (
	"math"

	"github.com/chase3718/batcherbird/internal/config"
)

// Result is the boundary-analysis outcome of §3's "Detection result".
type Result struct {
	Success    bool
	StartFrame int
	EndFrame   int
	Reason     string
}

// Detect downmixes the interleaved frames to mono, computes RMS over
// hopping windows, and locates the confirmed start/end edges per §4.4. It
// never looks at wall-clock time or randomness: identical inputs and
// configuration always return an identical Result.
func Detect(frames []float32, channels, sampleRateHz int, cfg config.Detection) Result {
	if channels <= 0 {
		channels = 1
	}
	totalFrames := len(frames) / channels
	if totalFrames == 0 {
		return Result{Success: false, Reason: "empty buffer"}
	}

	mono := downmix(frames, channels)

	windowFrames := max(1, msToFrames(cfg.WindowMs, sampleRateHz))
	hopFrames := max(1, windowFrames/2)

	var rms []float64
	var windowStart []int
	for start := 0; start < totalFrames; start += hopFrames {
		end := start + windowFrames
		if end > totalFrames {
			end = totalFrames
		}
		rms = append(rms, windowRMS(mono[start:end]))
		windowStart = append(windowStart, start)
		if end == totalFrames {
			break
		}
	}

	thresholdLin := math.Pow(10, cfg.ThresholdDb/20)
	confirm := cfg.ConfirmationWindows
	if confirm < 1 {
		confirm = 1
	}

	startIdx := -1
	for i := 0; i+confirm <= len(rms); i++ {
		if allExceed(rms[i:i+confirm], thresholdLin) {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return Result{Success: false, Reason: "too short"}
	}

	endIdx := -1
	for j := len(rms) - 1; j-confirm+1 >= 0; j-- {
		if allExceed(rms[j-confirm+1:j+1], thresholdLin) {
			endIdx = j
			break
		}
	}
	if endIdx == -1 || endIdx < startIdx {
		return Result{Success: false, Reason: "too short"}
	}

	startFrame := windowStart[startIdx]
	endFrame := windowStart[endIdx] + windowFrames
	if endFrame > totalFrames {
		endFrame = totalFrames
	}

	preTrigger := msToFrames(cfg.PreTriggerMs, sampleRateHz)
	postTrigger := msToFrames(cfg.PostTriggerMs, sampleRateHz)
	startFrame -= preTrigger
	if startFrame < 0 {
		startFrame = 0
	}
	endFrame += postTrigger
	if endFrame > totalFrames {
		endFrame = totalFrames
	}

	minLengthFrames := msToFrames(cfg.MinLengthMs, sampleRateHz)
	if endFrame-startFrame < minLengthFrames {
		return Result{Success: false, Reason: "too short"}
	}

	return Result{Success: true, StartFrame: startFrame, EndFrame: endFrame}
}

func downmix(frames []float32, channels int) []float64 {
	n := len(frames) / channels
	mono := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(frames[i*channels+c])
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

func windowRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

func allExceed(windows []float64, thresholdLin float64) bool {
	for _, w := range windows {
		if w <= thresholdLin {
			return false
		}
	}
	return true
}

func msToFrames(ms float64, sampleRateHz int) int {
	return int(ms / 1000 * float64(sampleRateHz))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
