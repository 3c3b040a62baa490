package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siwon333/CarePill/internal/api"
)

// SynthesisError reports a failed synthesis request. Playback failures are
// recoverable: callers surface a status message and move on.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("tts synthesis: %v", e.Err) }
func (e *SynthesisError) Unwrap() error { return e.Err }

// Player is the playback half of the adapter; satisfied by audio.Player.
type Player interface {
	PlayBytes(data []byte, contentType string) error
	Stop()
}

// Client speaks through the backend's registered-voice TTS endpoint.
type Client struct {
	api    *api.Client
	player Player
	log    *slog.Logger
}

func NewClient(apiClient *api.Client, player Player, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{api: apiClient, player: player, log: log}
}

// Synthesize returns the audio payload for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	body, err := json.Marshal(map[string]string{"text": strings.TrimSpace(text)})
	if err != nil {
		return nil, "", &SynthesisError{Err: err}
	}
	data, contentType, err := c.api.PostRaw(ctx, "/api/tts/", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, "", &SynthesisError{Err: err}
	}
	if len(data) == 0 {
		return nil, "", &SynthesisError{Err: errors.New("empty audio payload")}
	}
	return data, contentType, nil
}

// Speak synthesizes text and plays it, stopping any clip already playing.
// Empty text is a no-op.
func (c *Client) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	data, contentType, err := c.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if err := c.player.PlayBytes(data, contentType); err != nil {
		return &SynthesisError{Err: err}
	}
	c.log.Debug("speaking", "chars", len(text))
	return nil
}

// Stop halts any active playback; safe with nothing playing.
func (c *Client) Stop() {
	c.player.Stop()
}
