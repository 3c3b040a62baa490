package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/siwon333/CarePill/internal/api"
)

type fakePlayer struct {
	mu      sync.Mutex
	played  [][]byte
	types   []string
	stops   int
	playErr error
}

func (f *fakePlayer) PlayBytes(data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.played = append(f.played, data)
	f.types = append(f.types, contentType)
	return nil
}

func (f *fakePlayer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakePlayer, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	apiClient, err := api.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	player := &fakePlayer{}
	return NewClient(apiClient, player, nil), player, srv.Close
}

func TestSpeakPlaysSynthesizedAudio(t *testing.T) {
	var gotText string
	c, player, done := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotText = req.Text
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer done()

	if err := c.Speak(context.Background(), " 약 드실 시간입니다 "); err != nil {
		t.Fatal(err)
	}
	if gotText != "약 드실 시간입니다" {
		t.Errorf("synthesized text = %q", gotText)
	}
	if len(player.played) != 1 || string(player.played[0]) != "mp3-bytes" {
		t.Errorf("played = %q", player.played)
	}
	if player.types[0] != "audio/mpeg" {
		t.Errorf("content type = %q", player.types[0])
	}
}

func TestSpeakEmptyTextIsNoop(t *testing.T) {
	c, player, done := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend called for empty text")
	}))
	defer done()

	if err := c.Speak(context.Background(), "   "); err != nil {
		t.Fatal(err)
	}
	if len(player.played) != 0 {
		t.Error("played audio for empty text")
	}
}

func TestSpeakSynthesisError(t *testing.T) {
	c, player, done := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"등록된 음성이 없습니다"}`, http.StatusBadRequest)
	}))
	defer done()

	err := c.Speak(context.Background(), "안내")
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("err = %v, want SynthesisError", err)
	}
	if len(player.played) != 0 {
		t.Error("played audio despite synthesis failure")
	}
}

func TestSpeakEmptyPayloadIsError(t *testing.T) {
	c, _, done := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer done()

	var synthErr *SynthesisError
	if err := c.Speak(context.Background(), "안내"); !errors.As(err, &synthErr) {
		t.Fatalf("err = %v, want SynthesisError", err)
	}
}

func TestSpeakWrapsPlaybackError(t *testing.T) {
	c, player, done := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3..."))
	}))
	defer done()

	player.playErr = errors.New("decode failed")
	var synthErr *SynthesisError
	if err := c.Speak(context.Background(), "안내"); !errors.As(err, &synthErr) {
		t.Fatalf("err = %v, want SynthesisError", err)
	}
}

func TestStopDelegates(t *testing.T) {
	c, player, done := newTestClient(t, http.NewServeMux())
	defer done()
	c.Stop()
	c.Stop()
	if player.stops != 2 {
		t.Errorf("stops = %d, want 2", player.stops)
	}
}
