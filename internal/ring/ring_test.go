package ring

import "testing"

func TestWriteReadRoundTrip(t *testing.T) {
	r := New(100, 2)
	frames := make([]float32, 20) // 10 frames, 2 channels
	for i := range frames {
		frames[i] = float32(i)
	}
	r.Write(frames)

	got, ok := r.Read(0, 10)
	if !ok {
		t.Fatal("expected ok read within capacity")
	}
	if len(got) != 20 {
		t.Fatalf("got %d samples, want 20", len(got))
	}
	for i, v := range got {
		if v != float32(i) {
			t.Errorf("sample %d = %v, want %v", i, v, i)
		}
	}
}

func TestOverrunOnOverflow(t *testing.T) {
	r := New(4, 1)
	if r.TakeOverrun() {
		t.Fatal("overrun should start false")
	}
	frames := make([]float32, 10) // 10 frames into a 4-frame ring
	r.Write(frames)
	if !r.TakeOverrun() {
		t.Fatal("expected overrun after overflowing write")
	}
	if r.TakeOverrun() {
		t.Fatal("TakeOverrun should clear the flag")
	}
}

func TestReadClampsToOldest(t *testing.T) {
	r := New(4, 1)
	frames := make([]float32, 10)
	for i := range frames {
		frames[i] = float32(i)
	}
	r.Write(frames)

	_, ok := r.Read(0, 10)
	if ok {
		t.Fatal("reading frames before Oldest() should report ok=false")
	}
}
