package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chase3718/batcherbird/internal/config"
)

func TestFilenameConvention(t *testing.T) {
	cases := []struct {
		instrument string
		note       int
		velocity   int
		want       string
	}{
		{"", 60, 127, "C4_60_vel127.wav"},
		{"Rhodes", 60, 5, "Rhodes_C4_60_vel005.wav"},
		{"", 0, 0, "C-1_0_vel000.wav"},
	}
	for _, c := range cases {
		if got := filename(c.instrument, c.note, c.velocity); got != c.want {
			t.Errorf("filename(%q,%d,%d) = %q, want %q", c.instrument, c.note, c.velocity, got, c.want)
		}
	}
}

func TestBitDepthFor(t *testing.T) {
	cases := []struct {
		format        config.AudioFormat
		wantBitDepth  int
		wantWavFormat int
	}{
		{config.FormatWav16, 16, wavFormatPCM},
		{config.FormatWav24, 24, wavFormatPCM},
		{config.FormatWav32F, 32, wavFormatFloat},
	}
	for _, c := range cases {
		bd, wf := bitDepthFor(c.format)
		if bd != c.wantBitDepth || wf != c.wantWavFormat {
			t.Errorf("bitDepthFor(%v) = (%d,%d), want (%d,%d)", c.format, bd, wf, c.wantBitDepth, c.wantWavFormat)
		}
	}
}

func TestApplyFadesRampsEdges(t *testing.T) {
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = 1
	}
	applyFades(samples, 1, 1000, 10, 10) // 10 frames in, 10 out at 1000Hz
	if samples[0] != 0 {
		t.Errorf("first sample should fade from 0, got %v", samples[0])
	}
	if samples[len(samples)-1] >= 1 {
		t.Errorf("last sample should be faded down, got %v", samples[len(samples)-1])
	}
	mid := len(samples) / 2
	if samples[mid] != 1 {
		t.Errorf("middle sample outside fade windows should be untouched, got %v", samples[mid])
	}
}

func TestNormalizeScalesToHeadroom(t *testing.T) {
	samples := []float32{0.1, -0.2, 0.05}
	normalize(samples)
	var peak float32
	for _, s := range samples {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak < 0.94 || peak > 0.96 {
		t.Errorf("normalized peak = %v, want ~0.95", peak)
	}
}

func TestWriteRejectsIncompatibleExisting(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "", config.FormatWav16, config.Export{})
	frames := make([]float32, 100)
	if _, err := w.Write("", 60, 100, frames, 1, 44100); err != nil {
		t.Fatalf("first write should succeed: %v", err)
	}
	if _, err := w.Write("", 60, 100, frames, 2, 48000); err == nil {
		t.Fatal("expected naming-conflict error for mismatched sample rate/channels")
	}
}

func TestWriteCreatesInstrumentDirectory(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "Rhodes", config.FormatWav16, config.Export{})
	want := filepath.Join(dir, "Rhodes")
	if w.Dir() != want {
		t.Errorf("Dir() = %q, want %q", w.Dir(), want)
	}
	frames := make([]float32, 100)
	if _, err := w.Write("Rhodes", 60, 100, frames, 1, 44100); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected instrument directory to exist: %v", err)
	}
}
