package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

// Speaker is the playback sink. The real implementation is the beep speaker;
// tests substitute a fake so they run without an audio device.
type Speaker interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Clear()
}

type systemSpeaker struct{}

func (systemSpeaker) Init(sr beep.SampleRate, bufferSize int) error {
	return speaker.Init(sr, bufferSize)
}
func (systemSpeaker) Play(s beep.Streamer) { speaker.Play(s) }
func (systemSpeaker) Clear()               { speaker.Clear() }

// Player plays at most one clip at a time. Starting a new clip stops the
// previous one first; Stop is always safe to call.
type Player struct {
	mu     sync.Mutex
	out    Speaker
	rate   beep.SampleRate
	inited bool
	token  int
	active int                  // token of the playing clip, 0 when idle
	closer beep.StreamSeekCloser // decoder behind the playing clip
}

func NewPlayer() *Player {
	return &Player{out: systemSpeaker{}}
}

func newPlayerWithSpeaker(out Speaker) *Player {
	return &Player{out: out}
}

// PlayBytes decodes an audio payload (mp3, ogg-vorbis or wav, chosen by
// content type or sniffed) and starts playing it, replacing any active clip.
func (p *Player) PlayBytes(data []byte, contentType string) error {
	stream, format, err := decodeClip(io.NopCloser(bytes.NewReader(data)), clipKind(contentType, data))
	if err != nil {
		return err
	}
	return p.play(stream, format)
}

// PlayFile plays a local audio asset, such as a dispense announcement clip.
func (p *Player) PlayFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	var k string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		k = "mp3"
	case ".ogg", ".oga":
		k = "ogg"
	case ".wav":
		k = "wav"
	}
	stream, format, err := decodeClip(f, k)
	if err != nil {
		f.Close()
		return err
	}
	return p.play(stream, format)
}

// Playing reports whether a clip is currently active.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != 0
}

// Stop halts the active clip, if any, and releases its decoder.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.active == 0 {
		return
	}
	p.out.Clear()
	if p.closer != nil {
		p.closer.Close()
		p.closer = nil
	}
	p.active = 0
}

func (p *Player) play(stream beep.StreamSeekCloser, format beep.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inited {
		p.rate = format.SampleRate
		if err := p.out.Init(p.rate, p.rate.N(100*time.Millisecond)); err != nil {
			stream.Close()
			return fmt.Errorf("speaker init: %w", err)
		}
		p.inited = true
	}

	p.stopLocked()

	var s beep.Streamer = stream
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, stream)
	}

	p.token++
	token := p.token
	p.active = token
	p.closer = stream

	// The callback fires on the speaker's mixer goroutine, which holds the
	// speaker lock; finishing on a fresh goroutine avoids ordering against
	// Stop, which takes our lock before calling Clear.
	p.out.Play(beep.Seq(s, beep.Callback(func() {
		go p.finish(token)
	})))

	return nil
}

func (p *Player) finish(token int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != token {
		return
	}
	p.active = 0
	if p.closer != nil {
		p.closer.Close()
		p.closer = nil
	}
}

func clipKind(contentType string, data []byte) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return "mp3"
	case strings.Contains(ct, "ogg"):
		return "ogg"
	case strings.Contains(ct, "wav"):
		return "wav"
	}
	if len(data) >= 4 {
		switch string(data[:4]) {
		case "RIFF":
			return "wav"
		case "OggS":
			return "ogg"
		}
		if string(data[:3]) == "ID3" || (data[0] == 0xFF && data[1]&0xE0 == 0xE0) {
			return "mp3"
		}
	}
	return ""
}

func decodeClip(rc io.ReadCloser, kind string) (beep.StreamSeekCloser, beep.Format, error) {
	switch kind {
	case "mp3":
		return mp3.Decode(rc)
	case "ogg":
		return vorbis.Decode(rc)
	case "wav":
		return wav.Decode(rc)
	default:
		rc.Close()
		return nil, beep.Format{}, errors.New("unsupported audio clip format")
	}
}
