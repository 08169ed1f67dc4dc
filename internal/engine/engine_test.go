package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chase3718/batcherbird/internal/berrors"
)

func TestFramesFromDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		rate int
		want int
	}{
		{time.Second, 44100, 44100},
		{500 * time.Millisecond, 48000, 24000},
		{-10 * time.Millisecond, 44100, 0},
	}
	for _, c := range cases {
		if got := framesFromDuration(c.d, c.rate); got != c.want {
			t.Errorf("framesFromDuration(%v, %d) = %d, want %d", c.d, c.rate, got, c.want)
		}
	}
}

func TestIsFatalDistinguishesSentinels(t *testing.T) {
	fatal := []error{
		berrors.ErrDeviceUnavailable,
		fmt.Errorf("wrap: %w", berrors.ErrMidiSendFailed),
		berrors.ErrAudioStalled,
	}
	for _, err := range fatal {
		if !isFatal(err) {
			t.Errorf("isFatal(%v) = false, want true", err)
		}
	}
	if isFatal(berrors.ErrAudioOverrun) {
		t.Error("ErrAudioOverrun should not be treated as fatal")
	}
	if isFatal(nil) {
		t.Error("nil error should not be fatal")
	}
}

func TestSkewDegradedRequiresFullWindow(t *testing.T) {
	e := &Engine{}
	for i := 0; i < skewWindow-1; i++ {
		e.recordSkew(10 * time.Millisecond)
	}
	if e.skewDegraded() {
		t.Error("skewDegraded should be false before the window fills")
	}
	e.recordSkew(10 * time.Millisecond)
	if !e.skewDegraded() {
		t.Error("skewDegraded should be true once a full window averages above threshold")
	}
}

func TestSkewDegradedFalseBelowThreshold(t *testing.T) {
	e := &Engine{}
	for i := 0; i < skewWindow; i++ {
		e.recordSkew(time.Millisecond)
	}
	if e.skewDegraded() {
		t.Error("skewDegraded should be false when average skew is under threshold")
	}
}

func TestRecordSkewTakesAbsoluteValueAndCapsWindow(t *testing.T) {
	e := &Engine{}
	for i := 0; i < skewWindow+5; i++ {
		e.recordSkew(-10 * time.Millisecond)
	}
	if len(e.skewHistory) != skewWindow {
		t.Errorf("skewHistory length = %d, want %d", len(e.skewHistory), skewWindow)
	}
	for _, s := range e.skewHistory {
		if s < 0 {
			t.Errorf("recordSkew should store absolute durations, got %v", s)
		}
	}
}

func TestSleepUntilReturnsWhenDeadlinePassed(t *testing.T) {
	ctx := context.Background()
	if err := sleepUntil(ctx, time.Now().Add(-time.Second)); err != nil {
		t.Errorf("sleepUntil with a past deadline should return immediately without error, got %v", err)
	}
}

func TestSleepUntilRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepUntil(ctx, time.Now().Add(time.Second)); err == nil {
		t.Error("sleepUntil should return ctx.Err() when context is already cancelled")
	}
}

func TestRequestCancelSetsFlag(t *testing.T) {
	e := &Engine{}
	if e.cancelled() {
		t.Fatal("new engine should not start cancelled")
	}
	e.RequestCancel()
	if !e.cancelled() {
		t.Error("RequestCancel should set the cancellation flag")
	}
}
