// Package berrors defines the error taxonomy shared by every batcherbird
// subsystem. These are sentinel values, not a type hierarchy: callers wrap
// them with fmt.Errorf("...: %w", ErrX) and unwrap with errors.Is/errors.As.
package berrors

import "errors"

var (
	// ErrDeviceUnavailable: enumeration or open failed, or hot-unplug mid-session.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrUnsupportedFormat: sample rate / channel count / encoding not offered by device.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrMidiSendFailed: OS refused a MIDI write.
	ErrMidiSendFailed = errors.New("midi send failed")

	// ErrAudioStalled: callbacks ceased delivering frames past the take-window deadline.
	ErrAudioStalled = errors.New("audio stalled")

	// ErrAudioOverrun: ring overflowed; oldest frames were dropped. Warning, not fatal.
	ErrAudioOverrun = errors.New("audio overrun")

	// ErrTimingDegraded: repeated skew beyond 5ms over ten consecutive shots. Warning.
	ErrTimingDegraded = errors.New("timing degraded")

	// ErrDetectionFailed: boundaries not found; caller falls back to untrimmed buffer.
	ErrDetectionFailed = errors.New("detection failed")

	// ErrNamingConflict: target file exists with incompatible sample rate/channels.
	ErrNamingConflict = errors.New("naming conflict")

	// ErrManifestParse: filename in output directory could not be interpreted.
	ErrManifestParse = errors.New("manifest parse error")

	// ErrCancelled: user-initiated stop.
	ErrCancelled = errors.New("cancelled")
)

// Warning is a non-fatal annotation attached to a captured shot or a
// manifest parse pass. It always wraps one of the sentinel values above.
type Warning struct {
	Err error
	Msg string
}

func (w *Warning) Error() string {
	if w.Msg == "" {
		return w.Err.Error()
	}
	return w.Msg + ": " + w.Err.Error()
}

func (w *Warning) Unwrap() error { return w.Err }

func NewWarning(err error, msg string) *Warning {
	return &Warning{Err: err, Msg: msg}
}
