package audio

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"
	gaudio "github.com/go-audio/audio"
	gwav "github.com/go-audio/wav"
)

type fakeSpeaker struct {
	mu       sync.Mutex
	inits    int
	plays    int
	clears   int
	current  beep.Streamer
	initRate beep.SampleRate
}

func (f *fakeSpeaker) Init(sr beep.SampleRate, bufferSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	f.initRate = sr
	return nil
}

func (f *fakeSpeaker) Play(s beep.Streamer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	f.current = s
}

func (f *fakeSpeaker) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.current = nil
}

// drain pulls the current streamer to completion, as the mixer would.
func (f *fakeSpeaker) drain() {
	f.mu.Lock()
	s := f.current
	f.mu.Unlock()
	if s == nil {
		return
	}
	buf := make([][2]float64, 512)
	for {
		if _, ok := s.Stream(buf); !ok {
			return
		}
	}
}

func wavFixture(t *testing.T, rate, n int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := gwav.NewEncoder(f, rate, 16, 1, 1)
	data := make([]int, n)
	for i := range data {
		data[i] = int(0.4 * 32767 * math.Sin(2*math.Pi*330*float64(i)/float64(rate)))
	}
	if err := enc.Write(&gaudio.IntBuffer{
		Data:           data,
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestPlayerStopWithNothingPlaying(t *testing.T) {
	p := newPlayerWithSpeaker(&fakeSpeaker{})
	p.Stop()
	p.Stop()
	if p.Playing() {
		t.Fatal("idle player reports playing")
	}
}

func TestPlayerSingleActiveClip(t *testing.T) {
	out := &fakeSpeaker{}
	p := newPlayerWithSpeaker(out)
	clip := wavFixture(t, 16000, 1600)

	if err := p.PlayBytes(clip, "audio/wav"); err != nil {
		t.Fatal(err)
	}
	if !p.Playing() {
		t.Fatal("player not playing after PlayBytes")
	}
	if err := p.PlayBytes(clip, "audio/wav"); err != nil {
		t.Fatal(err)
	}

	out.mu.Lock()
	inits, plays, clears := out.inits, out.plays, out.clears
	hasCurrent := out.current != nil
	out.mu.Unlock()

	if inits != 1 {
		t.Errorf("speaker inited %d times, want 1", inits)
	}
	if plays != 2 {
		t.Errorf("speaker Play called %d times, want 2", plays)
	}
	if clears == 0 {
		t.Error("second PlayBytes did not clear the first clip")
	}
	if !hasCurrent {
		t.Error("no active streamer after second PlayBytes")
	}
}

func TestPlayerClearsReferenceOnCompletion(t *testing.T) {
	out := &fakeSpeaker{}
	p := newPlayerWithSpeaker(out)

	if err := p.PlayBytes(wavFixture(t, 16000, 1600), "audio/wav"); err != nil {
		t.Fatal(err)
	}
	out.drain()

	deadline := time.Now().Add(2 * time.Second)
	for p.Playing() {
		if time.Now().After(deadline) {
			t.Fatal("now-playing reference still set after clip completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayerStopTwiceIdempotent(t *testing.T) {
	out := &fakeSpeaker{}
	p := newPlayerWithSpeaker(out)

	if err := p.PlayBytes(wavFixture(t, 16000, 1600), "audio/wav"); err != nil {
		t.Fatal(err)
	}
	p.Stop()
	if p.Playing() {
		t.Fatal("playing after Stop")
	}
	p.Stop()
	if p.Playing() {
		t.Fatal("playing after second Stop")
	}
}

func TestPlayerRejectsGarbage(t *testing.T) {
	p := newPlayerWithSpeaker(&fakeSpeaker{})
	if err := p.PlayBytes([]byte("definitely not audio"), ""); err == nil {
		t.Fatal("garbage clip accepted")
	}
	if p.Playing() {
		t.Fatal("playing after failed decode")
	}
}

func TestFrameRMS(t *testing.T) {
	if got := FrameRMS(nil); got != 0 {
		t.Fatalf("FrameRMS(nil) = %f", got)
	}
	silent := make([]float32, 320)
	if got := FrameRMS(silent); got != 0 {
		t.Fatalf("FrameRMS(silence) = %f", got)
	}
	loud := make([]float32, 320)
	for i := range loud {
		loud[i] = 0.5
	}
	if got := FrameRMS(loud); math.Abs(got-0.5) > 1e-6 {
		t.Fatalf("FrameRMS(0.5 DC) = %f, want 0.5", got)
	}
}
