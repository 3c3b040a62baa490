package voicereg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"time"

	gaudio "github.com/go-audio/audio"
	gwav "github.com/go-audio/wav"

	"github.com/siwon333/CarePill/internal/api"
	"github.com/siwon333/CarePill/internal/audio"
	"github.com/siwon333/CarePill/pkg/audioconv"
)

const (
	sampleRate = 16000
	// a usable reference voice needs at least 2 seconds of audio
	minSamples = 2 * sampleRate
)

// Registrar records or imports a reference voice sample and uploads it
// to the backend, which clones the voice for TTS.
type Registrar struct {
	api *api.Client
	rec *audio.Recorder
	log *slog.Logger
}

func New(c *api.Client, rec *audio.Recorder, log *slog.Logger) *Registrar {
	if log == nil {
		log = slog.Default()
	}
	return &Registrar{api: c, rec: rec, log: log}
}

// Record captures a sample from the mic until stop fires or maxDur
// elapses, then uploads it.
func (r *Registrar) Record(ctx context.Context, stop <-chan struct{}, maxDur time.Duration) error {
	pcm, err := r.rec.RecordSample(stop, maxDur)
	if err != nil {
		return fmt.Errorf("voicereg: record: %w", err)
	}
	return r.upload(ctx, pcm)
}

// Import decodes an existing audio file (wav, mp3, ogg) and uploads it.
func (r *Registrar) Import(ctx context.Context, path string) error {
	pcm, err := audioconv.DecodeFile(path, audioconv.Options{TargetRate: sampleRate})
	if err != nil {
		return fmt.Errorf("voicereg: decode %s: %w", path, err)
	}
	return r.upload(ctx, pcm)
}

func (r *Registrar) upload(ctx context.Context, pcm []float32) error {
	if len(pcm) < minSamples {
		return fmt.Errorf("voicereg: sample too short: %.1fs, need at least %.0fs",
			float64(len(pcm))/sampleRate, float64(minSamples)/sampleRate)
	}

	wavData, err := encodeWAV(pcm)
	if err != nil {
		return fmt.Errorf("voicereg: encode: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("voice_file", "voice_sample.wav")
	if err != nil {
		return err
	}
	if _, err := part.Write(wavData); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	if _, _, err := r.api.PostRaw(ctx, "/api/tts/upload-voice/", mw.FormDataContentType(), &body); err != nil {
		return fmt.Errorf("voicereg: upload: %w", err)
	}
	r.log.Info("voice sample uploaded", "seconds", float64(len(pcm))/sampleRate)
	return nil
}

// encodeWAV writes 16 kHz mono float32 samples as 16-bit PCM. The wav
// encoder needs a seekable writer for the header, so it goes through a
// temp file.
func encodeWAV(pcm []float32) ([]byte, error) {
	f, err := os.CreateTemp("", "voicereg-*.wav")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(pcm)),
	}
	for i, s := range pcm {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	enc := gwav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}
