// Package session implements the command surface of spec.md §6: the
// front-end-facing operations that open devices, preview and record shots,
// and emit instrument manifests. It is the one place that wires together
// the device, midi, capture, engine, detect, writer and manifest packages.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chase3718/batcherbird/internal/auxserial"
	"github.com/chase3718/batcherbird/internal/berrors"
	"github.com/chase3718/batcherbird/internal/capture"
	"github.com/chase3718/batcherbird/internal/config"
	"github.com/chase3718/batcherbird/internal/detect"
	"github.com/chase3718/batcherbird/internal/device"
	"github.com/chase3718/batcherbird/internal/engine"
	"github.com/chase3718/batcherbird/internal/manifest"
	"github.com/chase3718/batcherbird/internal/midi"
	"github.com/chase3718/batcherbird/internal/writer"
)

// Session holds the devices and configuration borrowed exclusively for one
// recording session, per spec.md §3's "Session state".
type Session struct {
	dispatcher *midi.Dispatcher
	cap        *capture.Handle
	eng        *engine.Engine
	aux        *auxserial.Port

	sampling  config.Sampling
	detection config.Detection
	export    config.Export
	panic     config.Panic
	manifest  config.Manifest
	format    config.AudioFormat

	totalShots     int
	completedShots int
	currentKey     engine.ShotKey
	cancelled      bool
}

// ListMidiOutputs names every visible MIDI output port.
func ListMidiOutputs() ([]string, error) {
	infos, err := device.RefreshMidiOutputs()
	if err != nil {
		return nil, err
	}
	return names(infos), nil
}

// ListAudioInputs names every visible audio capture device.
func ListAudioInputs() ([]string, error) {
	infos, err := device.RefreshAudioInputs()
	if err != nil {
		return nil, err
	}
	return names(infos), nil
}

// ListAudioOutputs names every visible audio playback device.
func ListAudioOutputs() ([]string, error) {
	infos, err := device.RefreshAudioOutputs()
	if err != nil {
		return nil, err
	}
	return names(infos), nil
}

func names(infos []device.Info) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

// Open claims the MIDI output at midiIndex and opens the audio capture
// stream at the given sample rate/channel count, per §6's
// open_midi_output and the implicit audio-open step of §4.1.
func Open(midiIndex int, sampling config.Sampling, detectionPreset config.DetectionPreset) (*Session, error) {
	detection, ok := config.Presets[detectionPreset]
	if !ok {
		return nil, fmt.Errorf("unknown detection preset %q", detectionPreset)
	}

	dispatcher, err := midi.Open(midiIndex)
	if err != nil {
		return nil, err
	}

	cap, err := capture.Open(sampling.SampleRateHz, sampling.ChannelCount, 10)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}
	if err := cap.Start(); err != nil {
		dispatcher.Close()
		cap.Close()
		return nil, err
	}

	return &Session{
		dispatcher: dispatcher,
		cap:        cap,
		eng:        engine.New(dispatcher, cap),
		sampling:   sampling,
		detection:  detection,
	}, nil
}

// Close tears down the MIDI and capture resources, issuing a final panic
// first. It is safe to call more than once.
func (s *Session) Close() error {
	if s.dispatcher != nil {
		_ = s.dispatcher.Panic(nil, s.panic.IncludePitchBendSweep)
	}
	var err error
	if s.cap != nil {
		err = s.cap.Close()
		s.cap = nil
	}
	if s.dispatcher != nil {
		if cerr := s.dispatcher.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.dispatcher = nil
	}
	if s.aux != nil {
		_ = s.aux.Close()
		s.aux = nil
	}
	return err
}

// AttachAuxSerialPanic opens an auxiliary serial port whose Panic method
// MidiPanic pulses after its MIDI panic, for hardware that also listens
// for a reset signal on a serial line. The panics sent by the engine at
// the end of a range and by Close do not pulse it. It is entirely
// optional; a session with none attached behaves exactly as before.
func (s *Session) AttachAuxSerialPanic(portName string, baud int) error {
	port, err := auxserial.Open(portName, baud)
	if err != nil {
		return err
	}
	s.aux = port
	return nil
}

// Configure sets the export, panic, manifest, and audio-format
// configuration used by RecordShot, RecordRange, and GenerateManifest.
func (s *Session) Configure(export config.Export, panic config.Panic, manifestMeta config.Manifest, format config.AudioFormat) {
	s.export = export
	s.panic = panic
	s.manifest = manifestMeta
	s.format = format
}

// PreviewNote issues a synchronous note-on/off with no audio capture, per
// §6.
func (s *Session) PreviewNote(ctx context.Context, note, velocity, durationMs int) error {
	if _, err := s.dispatcher.NoteOn(s.sampling.MidiChannel, note, velocity); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		_, _ = s.dispatcher.NoteOff(s.sampling.MidiChannel, note)
		return ctx.Err()
	case <-time.After(time.Duration(durationMs) * time.Millisecond):
	}
	_, err := s.dispatcher.NoteOff(s.sampling.MidiChannel, note)
	return err
}

// RecordedFile is the outcome of persisting one recorded shot: the written
// file plus any warnings accumulated along the way.
type RecordedFile struct {
	writer.Written
	Warnings []error
}

// RecordShot captures, detects, and writes a single (note, velocity) shot,
// per §6's record_shot.
func (s *Session) RecordShot(ctx context.Context, note, velocity int, outputDir, instrumentName string) (RecordedFile, error) {
	shot, err := s.eng.RecordShot(ctx, note, velocity, s.sampling, nil)
	if err != nil {
		return RecordedFile{}, err
	}
	return s.processShot(shot, outputDir, instrumentName)
}

func (s *Session) processShot(shot engine.Shot, outputDir, instrumentName string) (RecordedFile, error) {
	frames := shot.Frames
	result := detect.Detect(frames, shot.ChannelCount, shot.SampleRateHz, s.detection)
	trimmed := frames
	if result.Success {
		start := result.StartFrame * shot.ChannelCount
		end := result.EndFrame * shot.ChannelCount
		if start < 0 {
			start = 0
		}
		if end > len(frames) {
			end = len(frames)
		}
		if start < end {
			trimmed = frames[start:end]
		}
	} else {
		shot.Warnings = append(shot.Warnings, berrors.NewWarning(berrors.ErrDetectionFailed, result.Reason))
	}

	w := writer.New(outputDir, instrumentName, s.format, s.export)
	written, err := w.Write(instrumentName, shot.Key.Note, shot.Key.Velocity, trimmed, shot.ChannelCount, shot.SampleRateHz)
	if err != nil {
		return RecordedFile{}, err
	}
	return RecordedFile{Written: written, Warnings: shot.Warnings}, nil
}

// RecordRange drives the matrix of §4.3 and streams progress events,
// persisting each successfully captured shot as it completes. It
// implements §6's record_range.
func (s *Session) RecordRange(ctx context.Context, startNote, endNote int, velocities []int, outputDir, instrumentName string, onProgress func(engine.ProgressEvent)) (engine.Summary, error) {
	s.totalShots = (endNote - startNote + 1) * len(velocities)
	onShot := func(shot engine.Shot) {
		if _, err := s.processShot(shot, outputDir, instrumentName); err != nil && onProgress != nil {
			onProgress(engine.ProgressEvent{Note: shot.Key.Note, Velocity: shot.Key.Velocity, Phase: engine.PhaseWarn, Err: err})
		}
		s.completedShots++
		s.currentKey = shot.Key
	}
	summary, err := s.eng.RecordRange(ctx, startNote, endNote, velocities, s.sampling, onProgress, onShot)
	s.cancelled = summary.Cancelled
	return summary, err
}

// CancelSession requests cancellation of an in-progress RecordRange. The
// engine completes the current shot before honoring it, per §5.
func (s *Session) CancelSession() {
	s.eng.RequestCancel()
}

// MidiPanic issues the full recovery sequence of §4.2 on the configured
// channel, or broadcasts if channel is nil, then pulses the auxiliary
// serial panic line if one is attached.
func (s *Session) MidiPanic(channel *int) error {
	err := s.dispatcher.Panic(channel, s.panic.IncludePitchBendSweep)
	if s.aux != nil {
		if auxErr := s.aux.Panic(); auxErr != nil && err == nil {
			err = auxErr
		}
	}
	return err
}

// StartLevelMonitor and StopLevelMonitor are no-ops over the capture
// handle's always-on level publication; they exist to match the command
// surface of §6 for front ends that gate metering UI on an explicit
// start/stop rather than polling continuously.
func (s *Session) StartLevelMonitor() {}
func (s *Session) StopLevelMonitor()  {}

// ReadLevels returns the most recently published peak/RMS levels.
func (s *Session) ReadLevels() (peakDb, rmsDb float32) {
	l := s.cap.Levels()
	return l.PeakDb, l.RmsDb
}

// GenerateManifest walks dir and emits the requested manifest format(s),
// per §6's generate_manifest.
func GenerateManifest(dir string, format config.ManifestFormat, meta config.Manifest) ([]string, error) {
	return manifest.Generate(dir, format, meta)
}

// State reports the observable session state of §3.
type State struct {
	TotalShots     int
	CompletedShots int
	CurrentKey     engine.ShotKey
	Cancelled      bool
}

// State returns a snapshot of the session's progress.
func (s *Session) State() State {
	return State{
		TotalShots:     s.totalShots,
		CompletedShots: s.completedShots,
		CurrentKey:     s.currentKey,
		Cancelled:      s.cancelled,
	}
}
