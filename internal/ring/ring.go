// Package ring implements the single-producer/single-consumer frame ring
// described in spec.md §4.1 and §5: the audio thread is the only producer,
// the engine thread is the only consumer, and no lock is ever held across a
// write from the audio callback.
package ring

import (
	"sync/atomic"
)

// Ring is a fixed-capacity circular buffer of interleaved float32 audio
// frames. Capacity is expressed in frames; each frame holds Channels
// samples. The producer (audio thread) calls Write; the consumer (engine
// thread) calls Read. The ring keeps no read position: both sides only
// ever touch writeIdx and the overrun flag through atomics, so no mutex is
// required, and the producer never blocks on the consumer.
type Ring struct {
	buf      []float32 // capacityFrames * channels
	channels int
	capacity int // in frames

	writeIdx atomic.Uint64 // total frames ever written (monotonic, absolute)
	overrun  atomic.Bool
}

// New creates a Ring sized to hold capacityFrames frames of the given
// channel count.
func New(capacityFrames, channels int) *Ring {
	if capacityFrames <= 0 {
		capacityFrames = 1
	}
	if channels <= 0 {
		channels = 1
	}
	return &Ring{
		buf:      make([]float32, capacityFrames*channels),
		channels: channels,
		capacity: capacityFrames,
	}
}

// Channels reports the configured channel count.
func (r *Ring) Channels() int { return r.channels }

// CapacityFrames reports the configured ring capacity in frames.
func (r *Ring) CapacityFrames() int { return r.capacity }

// Written reports the total number of frames ever written (absolute,
// monotonically increasing, never wraps to zero).
func (r *Ring) Written() uint64 { return r.writeIdx.Load() }

// Oldest reports the absolute frame index of the oldest frame still held in
// the ring. Anything before this index has been overwritten.
func (r *Ring) Oldest() uint64 {
	w := r.writeIdx.Load()
	if w < uint64(r.capacity) {
		return 0
	}
	return w - uint64(r.capacity)
}

// Write appends interleaved frames to the ring. Once the ring is full,
// each write overwrites the oldest frames whether or not they have been
// read. The overrun flag is set only when a single write holds more frames
// than the whole ring; a read of frames that have already been overwritten
// is reported by Read's ok=false instead. The audio callback that calls
// this must never block and never allocate; Write does neither.
func (r *Ring) Write(frames []float32) {
	n := len(frames) / r.channels
	if n == 0 {
		return
	}
	start := r.writeIdx.Load()
	for i := 0; i < n; i++ {
		frameOffset := ((start + uint64(i)) % uint64(r.capacity)) * uint64(r.channels)
		copy(r.buf[frameOffset:frameOffset+uint64(r.channels)], frames[i*r.channels:(i+1)*r.channels])
	}
	newWrite := start + uint64(n)
	if uint64(n) > uint64(r.capacity) {
		// A single write larger than the whole ring necessarily overruns.
		r.overrun.Store(true)
	} else if newWrite-start > uint64(r.capacity) {
		r.overrun.Store(true)
	}
	r.writeIdx.Store(newWrite)
}

// TakeOverrun reports and clears the overrun flag. The engine surfaces this
// as a non-fatal per-shot warning.
func (r *Ring) TakeOverrun() bool {
	return r.overrun.Swap(false)
}

// Read copies the absolute frame range [startFrame, endFrame) into a new
// slice of interleaved float32 samples. ok is false when the requested
// range has already been partially or fully overwritten; the caller should
// treat that as an overrun rather than a hard failure, per §4.1.
func (r *Ring) Read(startFrame, endFrame uint64) (frames []float32, ok bool) {
	if endFrame <= startFrame {
		return nil, true
	}
	oldest := r.Oldest()
	written := r.Written()
	if startFrame < oldest {
		startFrame = oldest
		ok = false
	} else {
		ok = true
	}
	if endFrame > written {
		endFrame = written
	}
	if endFrame <= startFrame {
		return nil, false
	}
	n := endFrame - startFrame
	out := make([]float32, n*uint64(r.channels))
	for i := uint64(0); i < n; i++ {
		frameOffset := ((startFrame + i) % uint64(r.capacity)) * uint64(r.channels)
		copy(out[i*uint64(r.channels):(i+1)*uint64(r.channels)], r.buf[frameOffset:frameOffset+uint64(r.channels)])
	}
	return out, ok
}
