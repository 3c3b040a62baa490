package audioconv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// Options controls decoding. TargetRate is the output sample rate; zero
// means 16000 (the whisper input rate). MaxSamples, when positive, truncates
// the result.
type Options struct {
	TargetRate int
	MaxSamples int
}

func (o Options) targetRate() int {
	if o.TargetRate > 0 {
		return o.TargetRate
	}
	return 16000
}

// Decode converts an audio payload (wav, mp3, ogg-vorbis or ogg-opus) to
// mono float32 PCM at the target rate. contentType is a hint; when it does
// not identify the container the payload is sniffed.
func Decode(data []byte, contentType string, opt Options) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio payload")
	}

	switch kind(contentType, data) {
	case "wav":
		return decodeWAV(bytes.NewReader(data), opt)
	case "mp3":
		return decodeMP3(bytes.NewReader(data), opt)
	case "ogg":
		if s, err := decodeOggVorbis(bytes.NewReader(data), opt); err == nil {
			return s, nil
		}
		s, err := decodeOggOpus(bytes.NewReader(data), opt)
		if err != nil {
			return nil, fmt.Errorf("cannot decode ogg as vorbis or opus: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported audio format (content type %q)", contentType)
	}
}

// DecodeFile reads and decodes one audio file, using the extension as the
// content-type hint.
func DecodeFile(path string, opt Options) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var hint string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		hint = "audio/wav"
	case ".mp3":
		hint = "audio/mpeg"
	case ".ogg", ".oga":
		hint = "audio/ogg"
	}
	return Decode(data, hint, opt)
}

func kind(contentType string, data []byte) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "wav"):
		return "wav"
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return "mp3"
	case strings.Contains(ct, "ogg"), strings.Contains(ct, "opus"):
		return "ogg"
	}

	if len(data) >= 4 {
		switch string(data[:4]) {
		case "RIFF":
			return "wav"
		case "OggS":
			return "ogg"
		}
		// mp3: ID3 tag or a raw frame sync
		if string(data[:3]) == "ID3" || (data[0] == 0xFF && data[1]&0xE0 == 0xE0) {
			return "mp3"
		}
	}
	return ""
}

func decodeWAV(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return nil, err
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intSliceToFloat32(pb.Data, bd)

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return finish(x, ch, sr, opt), nil
}

func decodeMP3(r io.Reader, opt Options) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	// go-mp3 always yields interleaved stereo int16 little-endian.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	n := len(raw) / 2
	pcm := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		pcm[i] = float32(v) / 32768
	}
	return finish(pcm, 2, dec.SampleRate(), opt), nil
}

func decodeOggVorbis(r io.Reader, opt Options) ([]float32, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return finish(data, format.Channels, format.SampleRate, opt), nil
}

func decodeOggOpus(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// Opus always decodes at 48k.
	var pcm []float32
	buf := make([]int16, 48_000*ch/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm) == 0 {
		return nil, errors.New("empty opus stream")
	}
	return finish(pcm, ch, 48000, opt), nil
}

func finish(pcm []float32, channels, rate int, opt Options) []float32 {
	if channels > 1 {
		pcm = downmixInterleaved(pcm, channels)
	}
	if rate != opt.targetRate() {
		pcm = resampleLinear(pcm, rate, opt.targetRate())
	}
	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}
	return pcm
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1, 1))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var s float64
		for c := 0; c < channels; c++ {
			s += float64(in[f*channels+c])
		}
		out[f] = float32(s / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	outLen := int(float64(len(in)) * float64(outSR) / float64(inSR))
	if outLen <= 0 {
		return nil
	}
	out := make([]float32, outLen)
	step := float64(inSR) / float64(outSR)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = float32(float64(in[j])*(1-frac) + float64(in[j+1])*frac)
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
