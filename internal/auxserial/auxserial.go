// Package auxserial repurposes go.bug.st/serial as an optional auxiliary
// transport for hardware that exposes a panic/reset line over a serial
// connection rather than (or in addition to) MIDI CC messages — some
// eurorack and DIY synth front panels wire a reset pin this way. It is
// never required: the MIDI Dispatcher's panic sequence is always sent
// first, per spec.md §4.2; this is a supplementary nudge for stubborn
// devices a front end may additionally configure.
package auxserial

import (
	"fmt"

	"go.bug.st/serial"

	"github.com/chase3718/batcherbird/internal/berrors"
)

// panicFrame is written to the port to trigger the attached hardware's own
// reset/panic line. The value is arbitrary but fixed: front panels that
// listen for it are configured to treat any write as the trigger, not a
// particular byte value, so this just needs to be non-empty.
var panicFrame = []byte{0x00}

// Port wraps an open serial connection used only to pulse a panic/reset
// line; it never carries audio or MIDI data.
type Port struct {
	conn serial.Port
	name string
}

// Ports lists the serial device paths currently visible to the OS.
func Ports() ([]string, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: list serial ports: %v", berrors.ErrDeviceUnavailable, err)
	}
	return names, nil
}

// Open claims the named serial port at the given baud rate.
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{BaudRate: baud}
	conn, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open serial %s: %v", berrors.ErrDeviceUnavailable, name, err)
	}
	return &Port{conn: conn, name: name}, nil
}

// Name reports the opened port's device path.
func (p *Port) Name() string { return p.name }

// Panic pulses the panic/reset line. It is idempotent, like
// midi.Dispatcher.Panic: writing the frame again has no additional effect
// beyond re-triggering the hardware's own reset handling.
func (p *Port) Panic() error {
	_, err := p.conn.Write(panicFrame)
	if err != nil {
		return fmt.Errorf("%w: serial panic write: %v", berrors.ErrMidiSendFailed, err)
	}
	return nil
}

// Close releases the serial port.
func (p *Port) Close() error {
	return p.conn.Close()
}
