package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chase3718/batcherbird/internal/config"
)

func TestParseDirectoryIgnoresNonMatching(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"Piano_C4_60_vel064.wav",
		"Piano_A4_69_vel127.wav",
		"readme.txt",
		"not_a_sample.wav",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	records, err := ParseDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
}

func TestAssignZonesSingleVelocitySingleNote(t *testing.T) {
	zones := AssignZones([]Record{{Note: 60, Velocity: 100, Path: "a.wav"}})
	if len(zones) != 1 {
		t.Fatalf("got %d zones, want 1", len(zones))
	}
	z := zones[0]
	if z.LoKey != 0 || z.HiKey != 127 || z.LoVel != 0 || z.HiVel != 127 {
		t.Errorf("single-zone bounds = %+v, want full range", z)
	}
}

func TestAssignZonesMultipleNotesAndVelocities(t *testing.T) {
	records := []Record{
		{Note: 60, Velocity: 64, Path: "c4_64.wav"},
		{Note: 72, Velocity: 64, Path: "c5_64.wav"},
		{Note: 60, Velocity: 127, Path: "c4_127.wav"},
		{Note: 72, Velocity: 127, Path: "c5_127.wav"},
	}
	zones := AssignZones(records)
	if len(zones) != 4 {
		t.Fatalf("got %d zones, want 4", len(zones))
	}

	// Velocity bands: lo_1=0, hi_1=floor((64+127)/2)=95; lo_2=96, hi_2=127.
	for _, z := range zones {
		switch z.Velocity {
		case 64:
			if z.LoVel != 0 || z.HiVel != 95 {
				t.Errorf("velocity 64 band = [%d,%d], want [0,95]", z.LoVel, z.HiVel)
			}
		case 127:
			if z.LoVel != 96 || z.HiVel != 127 {
				t.Errorf("velocity 127 band = [%d,%d], want [96,127]", z.LoVel, z.HiVel)
			}
		}
		// Key bands: lo_key_1=0, hi_key_1=floor((60+72)/2)=66; lo_key_2=67, hi_key_2=127.
		switch z.Note {
		case 60:
			if z.LoKey != 0 || z.HiKey != 66 {
				t.Errorf("note 60 key band = [%d,%d], want [0,66]", z.LoKey, z.HiKey)
			}
		case 72:
			if z.LoKey != 67 || z.HiKey != 127 {
				t.Errorf("note 72 key band = [%d,%d], want [67,127]", z.LoKey, z.HiKey)
			}
		}
	}
}

func TestWriteSFZDeterministic(t *testing.T) {
	dir := t.TempDir()
	zones := AssignZones([]Record{
		{Note: 60, Velocity: 100, Path: "a.wav"},
		{Note: 64, Velocity: 100, Path: "b.wav"},
	})
	path := filepath.Join(dir, "out.sfz")
	if err := WriteSFZ(path, zones, config.Manifest{}); err != nil {
		t.Fatal(err)
	}
	a, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteSFZ(path, zones, config.Manifest{}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("WriteSFZ should be deterministic for identical input")
	}
}

func TestWriteSFZEmitsLoopOpcodesWhenFound(t *testing.T) {
	dir := t.TempDir()
	zones := AssignZones([]Record{{Note: 60, Velocity: 100, Path: "a.wav"}})
	zones[0].LoopFound = true
	zones[0].LoopStartFrame = 1000
	zones[0].LoopEndFrame = 5000

	path := filepath.Join(dir, "out.sfz")
	meta := config.Manifest{Loop: config.LoopDetection{CrossfadeMs: 10}}
	if err := WriteSFZ(path, zones, meta); err != nil {
		t.Fatal(err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	for _, want := range []string{"loop_mode=loop_continuous", "loop_start=1000", "loop_end=5000", "loop_crossfade=0.0100"} {
		if !strings.Contains(text, want) {
			t.Errorf("sfz output missing %q:\n%s", want, text)
		}
	}
}

func TestWriteSFZOmitsLoopOpcodesWhenNotFound(t *testing.T) {
	dir := t.TempDir()
	zones := AssignZones([]Record{{Note: 60, Velocity: 100, Path: "a.wav"}})

	path := filepath.Join(dir, "out.sfz")
	if err := WriteSFZ(path, zones, config.Manifest{}); err != nil {
		t.Fatal(err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "loop_") {
		t.Errorf("sfz output should carry no loop opcodes when no loop was found:\n%s", string(out))
	}
}

func TestWriteDSPresetEmitsLoopAttributesWhenFound(t *testing.T) {
	dir := t.TempDir()
	zones := AssignZones([]Record{{Note: 60, Velocity: 100, Path: "a.wav"}})
	zones[0].LoopFound = true
	zones[0].LoopStartFrame = 2000
	zones[0].LoopEndFrame = 9000

	path := filepath.Join(dir, "out.dspreset")
	meta := config.Manifest{Loop: config.LoopDetection{CrossfadeMs: 5}}
	if err := WriteDSPreset(path, zones, meta); err != nil {
		t.Fatal(err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	for _, want := range []string{`loopEnabled="true"`, `loopStart="2000"`, `loopEnd="9000"`} {
		if !strings.Contains(text, want) {
			t.Errorf("dspreset output missing %q:\n%s", want, text)
		}
	}
}

func TestGenerateWritesRequestedFormats(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Inst_C4_60_vel100.wav"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	paths, err := Generate(dir, config.ManifestAll, config.Manifest{InstrumentName: "Inst"})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2 (sfz+dspreset): %v", len(paths), paths)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
}
