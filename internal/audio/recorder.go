package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Recorder owns the portaudio lifecycle. Init once, Close on shutdown; the
// capture methods may be used from one goroutine at a time.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordCommand captures one voice-command utterance at 16 kHz mono:
// recording starts on the first voiced frame and stops after 600ms of
// trailing silence, 10s total, or when ctx is cancelled.
func (r *Recorder) RecordCommand(ctx context.Context) ([]float32, error) {
	const (
		sampleRate = 16000
		frameSize  = 320 // 20ms
	)

	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	return endpointCommand(ctx, stream.Read, buf)
}

// endpointCommand runs the voiced-frame endpointing loop over 20ms frames
// delivered into buf by read. The context is checked between frames so a
// cancel never waits out the capture window.
func endpointCommand(ctx context.Context, read func() error, buf []float32) ([]float32, error) {
	const (
		silenceThreshRMS = 0.015
		silenceFramesMax = 30  // 600ms
		maxFrames        = 500 // 10s
	)

	out := make([]float32, 0, 16000*3)

	var (
		speaking      bool
		silenceFrames int
	)

	for i := 0; i < maxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := read(); err != nil {
			return nil, err
		}

		if FrameRMS(buf) > silenceThreshRMS {
			speaking = true
			silenceFrames = 0
			out = append(out, buf...)
		} else if speaking {
			silenceFrames++
			if silenceFrames >= silenceFramesMax {
				break
			}
			out = append(out, buf...)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoSpeech
	}
	return out, nil
}

// ErrNoSpeech reports that a capture window ended without any voiced audio.
var ErrNoSpeech = errors.New("no speech detected")

// RecordSample captures a reference voice sample at 16 kHz mono until stop
// fires or maxDur elapses. Used for voice registration.
func (r *Recorder) RecordSample(stop <-chan struct{}, maxDur time.Duration) ([]float32, error) {
	const (
		sampleRate = 16000
		frameSize  = 1024
	)

	if maxDur <= 0 {
		maxDur = 15 * time.Second
	}

	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	deadline := time.Now().Add(maxDur)
	out := make([]float32, 0, int(float64(sampleRate)*maxDur.Seconds()))

	for time.Now().Before(deadline) {
		select {
		case <-stop:
			if len(out) == 0 {
				return nil, errors.New("no audio recorded")
			}
			return out, nil
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}

	if len(out) == 0 {
		return nil, errors.New("no audio recorded")
	}
	return out, nil
}

// Stream is a continuous capture feeding the realtime mic track.
type Stream struct {
	stream   *portaudio.Stream
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// OpenStream starts continuous mono capture at sampleRate, invoking frame
// with each frameSize-sample buffer and its RMS level. The callback runs on
// the capture goroutine and must not block. Close the returned Stream to
// stop; errors after startup end the loop silently (the transport state
// machine notices the dead track).
func (r *Recorder) OpenStream(sampleRate, frameSize int, frame func(pcm []float32, rms float64)) (*Stream, error) {
	buf := make([]float32, frameSize)

	st, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	if err := st.Start(); err != nil {
		st.Close()
		return nil, err
	}

	s := &Stream{
		stream: st,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.quit:
				return
			default:
			}
			if err := st.Read(); err != nil {
				return
			}
			pcm := make([]float32, len(buf))
			copy(pcm, buf)
			frame(pcm, FrameRMS(pcm))
		}
	}()

	return s, nil
}

// Close stops the capture loop and releases the stream. Idempotent.
func (s *Stream) Close() {
	s.stopOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.stream.Stop()
		s.stream.Close()
	})
}

// FrameRMS is the root-mean-square level of one frame.
func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
