// Package device implements the Device Layer of spec.md §2: enumeration of
// MIDI output endpoints and audio input/output endpoints. Enumeration
// results are cached behind the one mutex spec.md §5 permits ("the only
// mutex in the system, if any, protects the device-enumeration cache at
// startup"); everything downstream of enumeration (the MIDI dispatcher,
// the capture handle) owns its resource exclusively and without locks.
package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.bug.st/serial"

	"github.com/chase3718/batcherbird/internal/berrors"
	ourmidi "github.com/chase3718/batcherbird/internal/midi"
)

// Kind distinguishes the endpoint categories of §2, plus the auxiliary
// serial-panic transport supplemented by SPEC_FULL.md.
type Kind string

const (
	KindMidiOutput  Kind = "midi_output"
	KindAudioInput  Kind = "audio_input"
	KindAudioOutput Kind = "audio_output"
	KindSerialPanic Kind = "serial_panic"
)

// Info names one enumerated endpoint.
type Info struct {
	Index int
	Name  string
	Kind  Kind
}

// cache holds the last enumeration per kind, guarded by mu. It is the one
// permitted lock in the system: short-lived, never held across a callback
// or a MIDI send, touched only by Refresh* and the accessors below.
type cache struct {
	mu           sync.Mutex
	midiOutputs  []Info
	audioInputs  []Info
	audioOutputs []Info
	serialPorts  []Info
}

var shared cache

// RefreshMidiOutputs re-enumerates MIDI output ports and updates the cache.
func RefreshMidiOutputs() ([]Info, error) {
	names, err := ourmidi.Outputs()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, len(names))
	for i, n := range names {
		infos[i] = Info{Index: i, Name: n, Kind: KindMidiOutput}
	}
	shared.mu.Lock()
	shared.midiOutputs = infos
	shared.mu.Unlock()
	return infos, nil
}

// RefreshAudioInputs re-enumerates audio capture devices through a
// miniaudio context created for this call and updates the cache.
func RefreshAudioInputs() ([]Info, error) {
	infos, err := enumerateAudio(malgo.Capture)
	if err != nil {
		return nil, err
	}
	shared.mu.Lock()
	shared.audioInputs = infos
	shared.mu.Unlock()
	return infos, nil
}

// RefreshAudioOutputs re-enumerates audio playback devices. Playback is
// consumed only by preview/monitoring front ends; the core capture and
// sampling path never opens an output stream.
func RefreshAudioOutputs() ([]Info, error) {
	infos, err := enumerateAudio(malgo.Playback)
	if err != nil {
		return nil, err
	}
	shared.mu.Lock()
	shared.audioOutputs = infos
	shared.mu.Unlock()
	return infos, nil
}

// RefreshSerialPorts re-enumerates serial device paths that may carry an
// auxiliary panic/reset line, per SPEC_FULL.md's repurposing of
// go.bug.st/serial.
func RefreshSerialPorts() ([]Info, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: list serial ports: %v", berrors.ErrDeviceUnavailable, err)
	}
	infos := make([]Info, len(names))
	for i, n := range names {
		infos[i] = Info{Index: i, Name: n, Kind: KindSerialPanic}
	}
	shared.mu.Lock()
	shared.serialPorts = infos
	shared.mu.Unlock()
	return infos, nil
}

// SerialPorts returns the last enumerated serial ports, refreshing first
// if the cache has never been populated.
func SerialPorts() ([]Info, error) {
	shared.mu.Lock()
	cached := shared.serialPorts
	shared.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	return RefreshSerialPorts()
}

func enumerateAudio(kind malgo.DeviceType) ([]Info, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("%w: malgo init: %v", berrors.ErrDeviceUnavailable, err)
	}
	defer ctx.Free()

	devices, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate devices: %v", berrors.ErrDeviceUnavailable, err)
	}

	k := KindAudioInput
	if kind == malgo.Playback {
		k = KindAudioOutput
	}
	infos := make([]Info, len(devices))
	for i, d := range devices {
		infos[i] = Info{Index: i, Name: d.Name(), Kind: k}
	}
	return infos, nil
}

// MidiOutputs returns the last enumerated MIDI outputs, refreshing first if
// the cache has never been populated.
func MidiOutputs() ([]Info, error) {
	shared.mu.Lock()
	cached := shared.midiOutputs
	shared.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	return RefreshMidiOutputs()
}

// AudioInputs returns the last enumerated audio input devices, refreshing
// first if the cache has never been populated.
func AudioInputs() ([]Info, error) {
	shared.mu.Lock()
	cached := shared.audioInputs
	shared.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	return RefreshAudioInputs()
}

// AudioOutputs returns the last enumerated audio output devices, refreshing
// first if the cache has never been populated.
func AudioOutputs() ([]Info, error) {
	shared.mu.Lock()
	cached := shared.audioOutputs
	shared.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	return RefreshAudioOutputs()
}
