// Package engine implements the Sampling Engine of spec.md §4.3: for each
// shot key in a requested matrix, it stimulates the instrument through the
// MIDI dispatcher and produces one captured shot from the audio capture
// path, enforcing pre-roll/hold/release timings on the calling goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chase3718/batcherbird/internal/berrors"
	"github.com/chase3718/batcherbird/internal/capture"
	"github.com/chase3718/batcherbird/internal/config"
	"github.com/chase3718/batcherbird/internal/midi"
)

// skewWindow is the rolling window (in shots) over which average timing
// skew is evaluated for the TimingDegraded warning, per §4.3.
const skewWindow = 10

// skewThreshold is the per-shot skew, averaged over skewWindow consecutive
// shots, that raises TimingDegraded.
const skewThreshold = 5 * time.Millisecond

// ShotKey identifies one capture in a session, per spec.md §3.
type ShotKey struct {
	Note     int
	Velocity int
}

// Shot is one captured shot, spec.md §3's "Captured shot".
type Shot struct {
	Key          ShotKey
	Frames       []float32
	SampleRateHz int
	ChannelCount int
	TNoteOn      int // frame index relative to start of Frames
	TNoteOff     int
	Warnings     []error
}

// Summary is returned at the end of RecordRange.
type Summary struct {
	Completed int
	Total     int
	Cancelled bool
}

// Phase names one stage of a shot's timeline, for progress reporting.
type Phase string

const (
	PhasePre     Phase = "pre"
	PhaseNoteOn  Phase = "noteOn"
	PhaseHold    Phase = "hold"
	PhaseNoteOff Phase = "noteOff"
	PhaseTail    Phase = "tail"
	PhasePost    Phase = "post"
	PhaseDone    Phase = "done"
	PhaseWarn    Phase = "warn"
)

// ProgressEvent is emitted once per phase transition during RecordRange,
// per spec.md §6.
type ProgressEvent struct {
	Index    int
	Total    int
	Note     int
	Velocity int
	Phase    Phase
	Err      error
}

// Engine coordinates one MIDI dispatcher and one capture handle for the
// duration of a session. It is not safe for concurrent use by more than
// one caller at a time: the control surface is expected to serialize shot
// operations, per spec.md §5.
type Engine struct {
	dispatcher *midi.Dispatcher
	cap        *capture.Handle

	cancelRequested atomic.Bool
	skewHistory     []time.Duration
}

// New binds an engine to an already-open MIDI dispatcher and capture
// handle. Both are borrowed exclusively for the engine's lifetime.
func New(dispatcher *midi.Dispatcher, cap *capture.Handle) *Engine {
	return &Engine{dispatcher: dispatcher, cap: cap}
}

// RequestCancel sets the cancellation flag that RecordRange checks before
// each shot. The flag is not consulted during a shot's waits, so a shot in
// progress always runs to completion.
func (e *Engine) RequestCancel() {
	e.cancelRequested.Store(true)
}

// cancelled reports whether cancellation has been requested.
func (e *Engine) cancelled() bool {
	return e.cancelRequested.Load()
}

// RecordShot runs the single-shot algorithm of §4.3 for one (note,
// velocity) pair and returns the captured shot. onPhase, if non-nil, is
// called synchronously at each timeline checkpoint after pre-roll
// (noteOn, hold, noteOff, tail, post), matching the phase set §6 defines
// for record_range's progress events.
func (e *Engine) RecordShot(ctx context.Context, note, velocity int, sampling config.Sampling, onPhase func(Phase)) (Shot, error) {
	emit := func(phase Phase) {
		if onPhase != nil {
			onPhase(phase)
		}
	}

	t0 := time.Now()
	preStart := t0
	noteOnAt := t0.Add(time.Duration(sampling.PreRollMs) * time.Millisecond)
	noteOffAt := noteOnAt.Add(time.Duration(sampling.NoteDurationMs) * time.Millisecond)
	endCap := noteOffAt.Add(time.Duration(sampling.ReleaseTailMs) * time.Millisecond)

	if err := sleepUntil(ctx, noteOnAt); err != nil {
		return Shot{}, err
	}
	tOnActual, err := e.dispatcher.NoteOn(sampling.MidiChannel, note, velocity)
	if err != nil {
		return Shot{}, fmt.Errorf("note_on: %w", err)
	}
	skew := tOnActual.Sub(noteOnAt)
	if skew < 0 {
		skew = -skew
	}
	emit(PhaseNoteOn)

	emit(PhaseHold)
	if err := sleepUntil(ctx, noteOffAt); err != nil {
		return Shot{}, err
	}
	tOffActual, err := e.dispatcher.NoteOff(sampling.MidiChannel, note)
	if err != nil {
		return Shot{}, fmt.Errorf("note_off: %w", err)
	}
	// One skew entry per shot: the larger of the note-on and note-off skews.
	if offSkew := tOffActual.Sub(noteOffAt); offSkew > skew || -offSkew > skew {
		skew = offSkew
	}
	e.recordSkew(skew)
	emit(PhaseNoteOff)

	emit(PhaseTail)
	if err := sleepUntil(ctx, endCap); err != nil {
		return Shot{}, err
	}

	frames, overrun, err := e.cap.TakeWindow(ctx, preStart, endCap)
	if err != nil {
		return Shot{}, fmt.Errorf("take_window: %w", err)
	}

	shot := Shot{
		Key:          ShotKey{Note: note, Velocity: velocity},
		Frames:       frames,
		SampleRateHz: sampling.SampleRateHz,
		ChannelCount: sampling.ChannelCount,
		TNoteOn:      framesFromDuration(tOnActual.Sub(preStart), sampling.SampleRateHz),
		TNoteOff:     framesFromDuration(tOffActual.Sub(preStart), sampling.SampleRateHz),
	}
	if overrun {
		shot.Warnings = append(shot.Warnings, berrors.NewWarning(berrors.ErrAudioOverrun, "ring overrun during take_window"))
	}
	if e.skewDegraded() {
		shot.Warnings = append(shot.Warnings, berrors.NewWarning(berrors.ErrTimingDegraded, "average skew over last shots exceeds 5ms"))
	}

	emit(PhasePost)
	if err := sleepUntil(ctx, endCap.Add(time.Duration(sampling.InterShotMs)*time.Millisecond)); err != nil {
		return shot, err
	}
	return shot, nil
}

// RecordRange iterates the matrix per §4.3: notes outer, velocities inner.
// Progress events stream to onProgress as each phase completes; RecordRange
// blocks until the whole matrix completes or cancellation is observed.
func (e *Engine) RecordRange(ctx context.Context, startNote, endNote int, velocities []int, sampling config.Sampling, onProgress func(ProgressEvent), onShot func(Shot)) (Summary, error) {
	total := (endNote - startNote + 1) * len(velocities)
	index := 0
	completed := 0

	emit := func(note, velocity int, phase Phase, err error) {
		if onProgress != nil {
			onProgress(ProgressEvent{Index: index, Total: total, Note: note, Velocity: velocity, Phase: phase, Err: err})
		}
	}

	for note := startNote; note <= endNote; note++ {
		for _, velocity := range velocities {
			if e.cancelled() {
				e.panicSession(sampling)
				return Summary{Completed: completed, Total: total, Cancelled: true}, nil
			}

			emit(note, velocity, PhasePre, nil)
			onPhase := func(phase Phase) { emit(note, velocity, phase, nil) }
			shot, err := e.RecordShot(ctx, note, velocity, sampling, onPhase)
			if err != nil {
				if isFatal(err) {
					e.panicSession(sampling)
					return Summary{Completed: completed, Total: total, Cancelled: false}, err
				}
				emit(note, velocity, PhaseWarn, err)
			} else {
				for _, w := range shot.Warnings {
					emit(note, velocity, PhaseWarn, w)
				}
				if onShot != nil {
					onShot(shot)
				}
				completed++
				emit(note, velocity, PhaseDone, nil)
			}
			index++
		}
	}

	e.panicSession(sampling)
	return Summary{Completed: completed, Total: total, Cancelled: false}, nil
}

// isFatal distinguishes the fatal errors of §4.3's failure semantics
// (DeviceUnavailable, MidiSendFailed, AudioStalled) from per-shot warnings.
func isFatal(err error) bool {
	return errors.Is(err, berrors.ErrDeviceUnavailable) || errors.Is(err, berrors.ErrMidiSendFailed) || errors.Is(err, berrors.ErrAudioStalled)
}

func (e *Engine) panicSession(sampling config.Sampling) {
	ch := sampling.MidiChannel
	_ = e.dispatcher.Panic(&ch, false)
}

func (e *Engine) recordSkew(skew time.Duration) {
	if skew < 0 {
		skew = -skew
	}
	e.skewHistory = append(e.skewHistory, skew)
	if len(e.skewHistory) > skewWindow {
		e.skewHistory = e.skewHistory[len(e.skewHistory)-skewWindow:]
	}
}

func (e *Engine) skewDegraded() bool {
	if len(e.skewHistory) < skewWindow {
		return false
	}
	var total time.Duration
	for _, s := range e.skewHistory {
		total += s
	}
	return total/time.Duration(len(e.skewHistory)) > skewThreshold
}

// sleepUntil coarse-sleeps until t or ctx is cancelled, whichever is
// first, matching §4.3's "busy-wait / sleep in coarse steps".
func sleepUntil(ctx context.Context, t time.Time) error {
	for {
		remaining := time.Until(t)
		if remaining <= 0 {
			return nil
		}
		step := remaining
		if step > 5*time.Millisecond {
			step = 5 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
	}
}

func framesFromDuration(d time.Duration, sampleRateHz int) int {
	frames := d.Seconds() * float64(sampleRateHz)
	if frames < 0 {
		return 0
	}
	return int(frames)
}
