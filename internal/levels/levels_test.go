package levels

import "testing"

func TestNewReportsFloorAndStale(t *testing.T) {
	m := New()
	l := m.Read()
	if !l.Stale {
		t.Error("fresh meter should report stale=true")
	}
	if l.PeakDb != floorDb || l.RmsDb != floorDb {
		t.Errorf("fresh meter levels = %+v, want floor %v", l, floorDb)
	}
}

func TestPublishClearsStaleAndComputesLevels(t *testing.T) {
	m := New()
	m.Publish([]float32{1, -1, 1, -1})
	l := m.Read()
	if l.Stale {
		t.Error("published meter should not be stale")
	}
	if l.PeakDb != 0 {
		t.Errorf("peak of full-scale samples should be 0dB, got %v", l.PeakDb)
	}
	if l.RmsDb != 0 {
		t.Errorf("rms of alternating +-1 samples should be 0dB, got %v", l.RmsDb)
	}
}

func TestPublishSilenceFloors(t *testing.T) {
	m := New()
	m.Publish([]float32{0, 0, 0, 0})
	l := m.Read()
	if l.PeakDb != floorDb || l.RmsDb != floorDb {
		t.Errorf("silent buffer levels = %+v, want floor %v", l, floorDb)
	}
}
