// Package capture owns the running audio input stream on a dedicated
// goroutine and exposes bounded-latency frame windows to the sampling
// engine, per spec.md §4.1 and §5.
//
// The malgo.Device handle is never touched from any goroutine other than
// the one that created it. Start, Stop and Close are values posted on a
// command channel and answered on a per-call reply channel, mirroring the
// "no global singleton, handle posts commands to its owning thread" design
// in SPEC_FULL.md. TakeWindow and Levels never touch the device: they read
// the ring, the level meter and the correlation table directly.
package capture

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/chase3718/batcherbird/internal/berrors"
	"github.com/chase3718/batcherbird/internal/levels"
	"github.com/chase3718/batcherbird/internal/ring"
)

// callbackPeriod is used for deadline and skew calculations when the
// device does not report its own buffer period. It is a conservative
// estimate for typical consumer audio interfaces.
const callbackPeriod = 10 * time.Millisecond

// Handle is the cross-thread-safe value returned by Open. Its methods are
// safe to call from any goroutine; they communicate with the owning
// goroutine over channels.
type Handle struct {
	ring      *ring.Ring
	meter     *levels.Meter
	cmds      chan command
	done      chan struct{}
	sample    int
	chans     int
	correlate correlateFunc
}

// correlateFunc maps a wall-clock time to an absolute ring frame index.
type correlateFunc func(time.Time) uint64

type command struct {
	kind  cmdKind
	reply chan error
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdClose
)

// correlationPoint pairs an absolute frame index with the wall-clock time
// at which that frame was delivered to the ring. TakeWindow uses the
// nearest point to convert a wall-clock bound into a frame index, per the
// SPEC_FULL.md resolution of the monotonic-correlation open question.
type correlationPoint struct {
	frame uint64
	at    time.Time
}

// correlationTracker records recent (frame, wall-clock) pairs. add is
// called from the audio callback; nearest is called from TakeWindow on the
// engine thread. The mutex here only ever guards a handful of word copies
// and is never held across the audio callback's I/O or a MIDI send.
type correlationTracker struct {
	mu     sync.Mutex
	points []correlationPoint
}

func (t *correlationTracker) add(frame uint64, at time.Time) {
	t.mu.Lock()
	t.points = append(t.points, correlationPoint{frame: frame, at: at})
	if len(t.points) > 64 {
		t.points = t.points[len(t.points)-64:]
	}
	t.mu.Unlock()
}

func (t *correlationTracker) nearest(target time.Time, sampleRateHz int, fallback uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.points) == 0 {
		return fallback
	}
	nearest := t.points[0]
	for _, c := range t.points {
		if c.at.After(target) {
			break
		}
		nearest = c
	}
	delta := target.Sub(nearest.at).Seconds()
	estimate := float64(nearest.frame) + delta*float64(sampleRateHz)
	if estimate < 0 {
		return 0
	}
	return uint64(estimate)
}

// Open constructs the capture stream for the given sample rate and channel
// count on the default input device, and starts its dedicated goroutine.
// The stream is not started (no frames flow) until Start is called.
func Open(sampleRateHz, channels int, capacitySeconds float64) (*Handle, error) {
	if capacitySeconds <= 0 {
		capacitySeconds = 10
	}
	capacityFrames := int(capacitySeconds * float64(sampleRateHz))
	h := &Handle{
		ring:   ring.New(capacityFrames, channels),
		meter:  levels.New(),
		cmds:   make(chan command),
		done:   make(chan struct{}),
		sample: sampleRateHz,
		chans:  channels,
	}

	ready := make(chan error, 1)
	go h.run(sampleRateHz, channels, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return h, nil
}

// run is the dedicated audio-owning goroutine. It locks itself to an OS
// thread for the stream's lifetime: the malgo device and its callback run
// on this thread's pool slot, and every public Handle method only ever
// reaches it through cmds.
func (h *Handle) run(sampleRateHz, channels int, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		ready <- fmt.Errorf("%w: malgo init: %v", berrors.ErrDeviceUnavailable, err)
		return
	}
	defer ctx.Free()

	devConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	devConfig.Capture.Format = malgo.FormatF32
	devConfig.Capture.Channels = uint32(channels)
	devConfig.SampleRate = uint32(sampleRateHz)
	devConfig.Alsa.NoMMap = 1

	tracker := &correlationTracker{}
	onRecv := func(_, inputSamples []byte, frameCount uint32) {
		now := time.Now()
		floats := bytesToFloat32(inputSamples)
		h.meter.Publish(floats)
		h.ring.Write(floats)
		tracker.add(h.ring.Written(), now)
	}

	device, err := malgo.InitDevice(ctx.Context, devConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		ready <- fmt.Errorf("%w: malgo device init: %v", berrors.ErrDeviceUnavailable, err)
		return
	}
	defer device.Uninit()

	h.correlate = func(target time.Time) uint64 {
		return tracker.nearest(target, sampleRateHz, h.ring.Written())
	}

	ready <- nil

	for {
		select {
		case cmd := <-h.cmds:
			switch cmd.kind {
			case cmdStart:
				cmd.reply <- device.Start()
			case cmdStop:
				cmd.reply <- device.Stop()
			case cmdClose:
				cmd.reply <- device.Stop()
				close(h.done)
				return
			}
		}
	}
}

// Start begins frame delivery. Returns berrors.ErrDeviceUnavailable wrapped
// error on failure.
func (h *Handle) Start() error {
	if err := h.send(cmdStart); err != nil {
		return fmt.Errorf("%w: start capture: %v", berrors.ErrDeviceUnavailable, err)
	}
	return nil
}

// Stop halts frame delivery. The ring is not drained: frames already
// written stay readable until newer frames overwrite them.
func (h *Handle) Stop() error {
	return h.send(cmdStop)
}

// Close stops the stream and terminates the owning goroutine.
func (h *Handle) Close() error {
	err := h.send(cmdClose)
	<-h.done
	return err
}

func (h *Handle) send(kind cmdKind) error {
	reply := make(chan error, 1)
	h.cmds <- command{kind: kind, reply: reply}
	return <-reply
}

// Levels returns the most-recently published peak/RMS levels.
func (h *Handle) Levels() levels.Levels {
	return h.meter.Read()
}

// TakeWindow returns the contiguous frames captured in [start, end], per
// §4.1. It blocks until end has been reached or its internal deadline
// (end + 2*callback period + 50ms) expires, in which case it returns
// berrors.ErrAudioStalled.
func (h *Handle) TakeWindow(ctx context.Context, start, end time.Time) (frames []float32, overrun bool, err error) {
	deadline := end.Add(2*callbackPeriod + 50*time.Millisecond)
	startFrame := h.frameAt(start)

	for {
		endFrame := h.frameAt(end)
		if h.ring.Written() >= endFrame {
			raw, ok := h.ring.Read(startFrame, endFrame)
			if !ok {
				overrun = true
			}
			if h.ring.TakeOverrun() {
				overrun = true
			}
			return raw, overrun, nil
		}
		if time.Now().After(deadline) {
			return nil, overrun, fmt.Errorf("%w: window [%s,%s] not delivered by deadline",
				berrors.ErrAudioStalled, start, end)
		}
		select {
		case <-ctx.Done():
			return nil, overrun, ctx.Err()
		case <-time.After(callbackPeriod / 2):
		}
	}
}

// frameAt converts a wall-clock time to an absolute frame index using the
// owning goroutine's correlation table. Reading h.correlate is safe: it is
// set once before run() enters its command loop and never reassigned
// afterward.
func (h *Handle) frameAt(t time.Time) uint64 {
	if h.correlate == nil {
		return 0
	}
	return h.correlate(t)
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
