package audio

import (
	"context"
	"errors"
	"testing"
)

// fillFrames returns a read func that writes each scripted level into buf
// in turn, then repeats the last one forever.
func fillFrames(buf []float32, levels []float32) func() error {
	i := 0
	return func() error {
		lvl := levels[len(levels)-1]
		if i < len(levels) {
			lvl = levels[i]
			i++
		}
		for j := range buf {
			buf[j] = lvl
		}
		return nil
	}
}

func TestEndpointCommandStopsOnTrailingSilence(t *testing.T) {
	buf := make([]float32, 320)
	read := fillFrames(buf, []float32{0.1, 0.1, 0.1, 0.1, 0.1, 0})

	out, err := endpointCommand(context.Background(), read, buf)
	if err != nil {
		t.Fatalf("endpointCommand: %v", err)
	}
	// 5 voiced frames plus 29 trailing silent ones before the cutoff.
	if want := (5 + 29) * 320; len(out) != want {
		t.Fatalf("len(out) = %d, want %d", len(out), want)
	}
}

func TestEndpointCommandNoSpeech(t *testing.T) {
	buf := make([]float32, 320)
	read := fillFrames(buf, []float32{0})

	if _, err := endpointCommand(context.Background(), read, buf); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

// A cancel must end the capture between frames instead of waiting out the
// full window, or Disable and daemon shutdown hang behind the mic.
func TestEndpointCommandStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	buf := make([]float32, 320)
	reads := 0
	read := func() error {
		reads++
		if reads == 3 {
			cancel()
		}
		for j := range buf {
			buf[j] = 0.1
		}
		return nil
	}

	_, err := endpointCommand(ctx, read, buf)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if reads != 3 {
		t.Fatalf("reads = %d, want 3", reads)
	}
}
