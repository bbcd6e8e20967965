package vision

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/screen-guide/internal/log"
	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/frame"
)

func TestOCRThrottlesAndCaches(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	release := make(chan struct{})
	var calls atomic.Int32

	o := newOCR(OCRConfig{Interval: time.Second}, clk, log.Discard(), func(img []byte) (string, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		if len(img) == 0 {
			return "", errors.New("empty image")
		}
		return "  Verify   your\naccount now ", nil
	})
	defer o.Close()

	f := frame.New(clk.Now(), make([]byte, 8*8*3), 8, 8, frame.FormatBGR)

	if got := o.Text(f); got != "" {
		t.Fatalf("first Text() = %q, want empty", got)
	}
	if got := o.Text(f); got != "" || calls.Load() != 1 {
		t.Fatalf("Text() while running = %q with %d calls", got, calls.Load())
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for o.Text(f) == "" {
		if time.Now().After(deadline) {
			t.Fatal("recognition never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := o.Text(f); got != "Verify your account now" {
		t.Errorf("Text() = %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("recognize called %d times inside the interval", calls.Load())
	}

	clk.Advance(time.Second)
	o.Text(f)
	deadline = time.Now().Add(2 * time.Second)
	for calls.Load() != 2 {
		if time.Now().After(deadline) {
			t.Fatal("second recognition not started")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOCRIgnoresEmptyFramesAndClose(t *testing.T) {
	var calls atomic.Int32
	o := newOCR(OCRConfig{}, clock.NewFake(time.Unix(0, 0)), log.Discard(), func([]byte) (string, error) {
		calls.Add(1)
		return "x", nil
	})

	if got := o.Text(frame.Frame{}); got != "" || calls.Load() != 0 {
		t.Errorf("empty frame recognized: %q, %d calls", got, calls.Load())
	}
	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	o.Text(frame.New(time.Unix(0, 0), make([]byte, 4*4*3), 4, 4, frame.FormatBGR))
	if calls.Load() != 0 {
		t.Error("closed OCR still recognizes")
	}
}
