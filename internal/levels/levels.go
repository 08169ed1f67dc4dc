// Package levels publishes rolling peak/RMS audio levels from the audio
// thread to any reader, using bit-punned float32 atomics so the publisher
// never blocks and never allocates (spec.md §4.1, §5).
package levels

import (
	"math"
	"sync/atomic"
)

const floorDb = -120.0

// Meter holds the most recently published peak/RMS levels in dBFS.
type Meter struct {
	peakDb atomic.Uint32
	rmsDb  atomic.Uint32
	stale  atomic.Bool
}

// New returns a Meter reporting the floor level until the first Publish.
func New() *Meter {
	m := &Meter{}
	m.peakDb.Store(math.Float32bits(floorDb))
	m.rmsDb.Store(math.Float32bits(floorDb))
	m.stale.Store(true)
	return m
}

// Publish computes peak and RMS over a callback buffer of interleaved
// float32 samples and stores them as dBFS, floored at -120dB. Called from
// the audio thread once per callback.
func (m *Meter) Publish(samples []float32) {
	if len(samples) == 0 {
		return
	}
	var peak float32
	var sumSquares float64
	for _, s := range samples {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
		sumSquares += float64(s) * float64(s)
	}
	rms := float32(math.Sqrt(sumSquares / float64(len(samples))))

	m.peakDb.Store(math.Float32bits(toDbFloor(peak)))
	m.rmsDb.Store(math.Float32bits(toDbFloor(rms)))
	m.stale.Store(false)
}

// Levels is a snapshot of the meter's state for readers on any thread.
type Levels struct {
	PeakDb float32
	RmsDb  float32
	Stale  bool
}

// Read returns the most-recently published levels, or the floor with
// Stale=true if nothing has been published yet.
func (m *Meter) Read() Levels {
	return Levels{
		PeakDb: math.Float32frombits(m.peakDb.Load()),
		RmsDb:  math.Float32frombits(m.rmsDb.Load()),
		Stale:  m.stale.Load(),
	}
}

func toDbFloor(linear float32) float32 {
	if linear <= 0 {
		return floorDb
	}
	db := float32(20 * math.Log10(float64(linear)))
	if db < floorDb {
		return floorDb
	}
	return db
}
