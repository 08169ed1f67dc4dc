// Package midi implements the MIDI Dispatcher of spec.md §4.2: a single
// exclusively-held output port, synchronous note/program messages, and a
// panic sequence built for stubborn hardware.
package midi

import (
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/batcherbird/internal/berrors"
)

// ccAllSoundOff, ccResetAllControllers, ccAllNotesOff, ccSustain are the
// channel-mode and controller numbers used by Panic, per §4.2.
const (
	ccAllSoundOff         = 120
	ccResetAllControllers = 121
	ccSustain             = 64
	ccAllNotesOff         = 123
)

// Dispatcher owns one exclusively-held MIDI output port for the lifetime of
// a session. Every method is synchronous: it returns only after the
// message has been handed to the OS driver.
type Dispatcher struct {
	drv  *rtmididrv.Driver
	out  drivers.Out
	name string
}

// Outputs lists the names of every MIDI output port currently visible to
// the driver, in driver-reported order.
func Outputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: rtmididrv: %v", berrors.ErrDeviceUnavailable, err)
	}
	defer drv.Close()

	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("%w: list outputs: %v", berrors.ErrDeviceUnavailable, err)
	}
	names := make([]string, len(outs))
	for i, o := range outs {
		names[i] = o.String()
	}
	return names, nil
}

// Open claims the output port at the given index exclusively. The caller
// must call Close when the session ends or fails.
func Open(index int) (*Dispatcher, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: rtmididrv: %v", berrors.ErrDeviceUnavailable, err)
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("%w: list outputs: %v", berrors.ErrDeviceUnavailable, err)
	}
	if index < 0 || index >= len(outs) {
		drv.Close()
		return nil, fmt.Errorf("%w: output index %d out of range (0..%d)", berrors.ErrDeviceUnavailable, index, len(outs)-1)
	}
	out := outs[index]
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("%w: open %q: %v", berrors.ErrDeviceUnavailable, out.String(), err)
	}
	return &Dispatcher{drv: drv, out: out, name: out.String()}, nil
}

// Name reports the claimed port's name.
func (d *Dispatcher) Name() string { return d.name }

// Close releases the output port and the underlying driver.
func (d *Dispatcher) Close() error {
	var err error
	if d.out != nil {
		err = d.out.Close()
	}
	if d.drv != nil {
		d.drv.Close()
	}
	return err
}

// NoteOn issues a note-on with sub-millisecond scheduling precision
// relative to the caller's clock — it does nothing but format bytes and
// hand them to the OS, so it never itself sleeps.
func (d *Dispatcher) NoteOn(channel, note, velocity int) (time.Time, error) {
	err := d.send(midi.NoteOn(uint8(channel), uint8(note), uint8(velocity)))
	return time.Now(), wrapSend(err)
}

// NoteOff issues a note-off (velocity 0) for the given pitch.
func (d *Dispatcher) NoteOff(channel, note int) (time.Time, error) {
	err := d.send(midi.NoteOff(uint8(channel), uint8(note)))
	return time.Now(), wrapSend(err)
}

// ProgramChange selects a patch/program on the channel.
func (d *Dispatcher) ProgramChange(channel, program int) (time.Time, error) {
	err := d.send(midi.ProgramChange(uint8(channel), uint8(program)))
	return time.Now(), wrapSend(err)
}

// Panic sends the full stuck-note recovery sequence of §4.2 on the given
// channel, or broadcasts to all 16 channels when channel is nil. It is
// idempotent and only reports berrors.ErrMidiSendFailed: a partial panic
// still attempts every remaining message rather than aborting early, since
// its entire purpose is to recover from a device already in a bad state.
func (d *Dispatcher) Panic(channel *int, sweepPitchBend bool) error {
	channels := []int{}
	if channel != nil {
		channels = append(channels, *channel)
	} else {
		for c := 0; c < 16; c++ {
			channels = append(channels, c)
		}
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, ch := range channels {
		record(d.send(midi.ControlChange(uint8(ch), ccAllSoundOff, 0)))
		record(d.send(midi.ControlChange(uint8(ch), ccResetAllControllers, 0)))
		record(d.send(midi.ControlChange(uint8(ch), ccAllNotesOff, 0)))
		record(d.send(midi.ControlChange(uint8(ch), ccSustain, 0)))
		for note := 0; note <= 127; note++ {
			record(d.send(midi.NoteOff(uint8(ch), uint8(note))))
		}
		if sweepPitchBend {
			record(d.send(midi.Pitchbend(uint8(ch), 0)))
			record(d.send(midi.Pitchbend(uint8(ch), 8191)))
			record(d.send(midi.Pitchbend(uint8(ch), -8192)))
			record(d.send(midi.Pitchbend(uint8(ch), 0)))
		}
	}
	return wrapSend(firstErr)
}

func (d *Dispatcher) send(msg midi.Message) error {
	return d.out.Send(msg.Bytes())
}

func wrapSend(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", berrors.ErrMidiSendFailed, err)
}
