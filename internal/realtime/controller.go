package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	oairt "github.com/openai/openai-go/v3/realtime"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	hopus "gopkg.in/hraban/opus.v2"

	"github.com/siwon333/CarePill/internal/api"
	"github.com/siwon333/CarePill/internal/audio"
	"github.com/siwon333/CarePill/internal/transcript"
)

// State of the voice session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "idle"
	}
}

// MicStream is a running capture feed; Close stops it.
type MicStream interface {
	Close()
}

// Capture opens the continuous mic stream feeding the uplink track.
type Capture interface {
	OpenStream(sampleRate, frameSize int, frame func(pcm []float32, rms float64)) (MicStream, error)
}

type recorderCapture struct {
	rec *audio.Recorder
}

func (r recorderCapture) OpenStream(sampleRate, frameSize int, frame func([]float32, float64)) (MicStream, error) {
	return r.rec.OpenStream(sampleRate, frameSize, frame)
}

// NewRecorderCapture adapts the portaudio recorder to the Capture
// interface.
func NewRecorderCapture(rec *audio.Recorder) Capture {
	return recorderCapture{rec: rec}
}

// Player is the local clip/TTS playback to interrupt when the user
// starts talking over the assistant.
type Player interface {
	Stop()
}

// Voice speaks assistant turns with the registered TTS voice; satisfied
// by tts.Client. The remote audio track is drained, not played: the
// kiosk answers in the user's cloned voice, not the model's.
type Voice interface {
	Speak(ctx context.Context, text string) error
}

// Config tunes a voice session.
type Config struct {
	// SampleRate of the uplink and downlink audio. Defaults to 48000.
	SampleRate int
	// FrameMS is the capture frame length in milliseconds. Defaults to 20.
	FrameMS int

	// BargeIn enables the local speech detector that cancels assistant
	// responses without waiting for the remote turn detection.
	BargeIn        bool
	BargeThreshold float64
	BargeHold      time.Duration
	BargeCooldown  time.Duration

	// Session, when set, is pushed as a session.update once the event
	// channel opens. The backend already configures the session when it
	// mints the token, so this usually only overrides instructions.
	Session *oairt.RealtimeSessionCreateRequestParam

	// OnState observes session state changes. Optional.
	OnState func(State)
}

// Controller runs the realtime voice conversation: it fetches an
// ephemeral token, exchanges SDP through the backend, streams the mic
// over an opus uplink track, and demuxes the event channel into the
// chat view. Start and Stop are idempotent and safe from any goroutine.
type Controller struct {
	cfg     Config
	api     *api.Client
	capture Capture
	player  Player
	voice   Voice
	demux   *Demux
	log     *slog.Logger

	mu    sync.Mutex
	state State
	gen   uint64
	pc    *webrtc.PeerConnection
	dc    *webrtc.DataChannel
	mic   MicStream

	states chan State
}

func NewController(c *api.Client, capture Capture, player Player, voice Voice, view ChatView, lines *transcript.Collector, onUserFinal func(string), cfg Config, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.FrameMS == 0 {
		cfg.FrameMS = 20
	}
	ctrl := &Controller{
		cfg:     cfg,
		api:     c,
		capture: capture,
		player:  player,
		voice:   voice,
		log:     log,
	}
	ctrl.demux = NewDemux(view, lines, ctrl.interruptPlayback, onUserFinal, ctrl.speakReply, log)
	if cfg.OnState != nil {
		// one delivery goroutine keeps transitions in order
		ctrl.states = make(chan State, 8)
		go func() {
			for s := range ctrl.states {
				cfg.OnState(s)
			}
		}()
	}
	return ctrl
}

// State reports the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start brings up the session. Calling it while a session is connecting
// or connected is a no-op. On failure everything is torn down and the
// controller returns to idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	g := c.gen
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	token, err := FetchToken(ctx, c.api)
	if err != nil {
		return c.fail(g, err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return c.fail(g, &MediaError{Err: err})
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: uint32(c.cfg.SampleRate),
		Channels:  1,
	}, "audio", "carepill-mic")
	if err != nil {
		pc.Close()
		return c.fail(g, &MediaError{Err: err})
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return c.fail(g, &MediaError{Err: err})
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		pc.Close()
		return c.fail(g, &MediaError{Err: err})
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.demux.Handle(msg.Data)
	})
	dc.OnOpen(func() {
		if c.cfg.Session != nil {
			c.sendEvent(dc, sessionUpdate{Type: "session.update", Session: c.cfg.Session})
		}
	})

	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		drainTrack(tr)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Debug("peer connection state", "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			go func() {
				if c.generation() == g {
					c.Stop()
				}
			}()
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return c.fail(g, &SignalingError{Err: err})
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return c.fail(g, &SignalingError{Err: err})
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return c.fail(g, &SignalingError{Err: ctx.Err()})
	}

	answer, err := ExchangeSDP(ctx, c.api, token, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return c.fail(g, err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		pc.Close()
		return c.fail(g, &SignalingError{Err: err})
	}

	mic, err := c.startUplink(track, dc)
	if err != nil {
		pc.Close()
		return c.fail(g, &MediaError{Err: err})
	}

	c.mu.Lock()
	if c.gen != g {
		// a Stop raced the dial; discard this session
		c.mu.Unlock()
		mic.Close()
		dc.Close()
		pc.Close()
		return nil
	}
	c.pc, c.dc, c.mic = pc, dc, mic
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.log.Info("voice session connected")
	return nil
}

// Stop tears the session down. Safe to call at any time, from any
// state, any number of times.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.gen++
	pc, dc, mic := c.pc, c.dc, c.mic
	c.pc, c.dc, c.mic = nil, nil, nil
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	if dc != nil {
		dc.Close()
	}
	if pc != nil {
		pc.Close()
	}
	if mic != nil {
		mic.Close()
	}
	c.demux.Reset()
	c.log.Info("voice session stopped")
}

// startUplink opens the mic and pumps encoded frames into the track.
// The barge-in detector rides the same frame callback.
func (c *Controller) startUplink(track *webrtc.TrackLocalStaticSample, dc *webrtc.DataChannel) (MicStream, error) {
	frameSize := c.cfg.SampleRate * c.cfg.FrameMS / 1000
	frameDur := time.Duration(c.cfg.FrameMS) * time.Millisecond

	enc, err := hopus.NewEncoder(c.cfg.SampleRate, 1, hopus.AppVoIP)
	if err != nil {
		return nil, err
	}
	encBuf := make([]byte, 4000)

	var barge *BargeIn
	if c.cfg.BargeIn {
		barge = NewBargeIn(c.cfg.BargeThreshold, c.cfg.BargeHold, c.cfg.BargeCooldown)
	}

	return c.capture.OpenStream(c.cfg.SampleRate, frameSize, func(pcm []float32, rms float64) {
		n, err := enc.EncodeFloat32(pcm, encBuf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, encBuf[:n])
		if err := track.WriteSample(media.Sample{Data: data, Duration: frameDur}); err != nil {
			return
		}
		if barge != nil && barge.Observe(rms) {
			c.log.Debug("barge-in detected, cancelling response")
			c.sendEvent(dc, map[string]string{"type": "response.cancel"})
			c.interruptPlayback()
		}
	})
}

// drainTrack reads the remote audio track to completion without playing
// it, keeping the transport from stalling.
func drainTrack(tr *webrtc.TrackRemote) {
	for {
		if _, _, err := tr.ReadRTP(); err != nil {
			return
		}
	}
}

// speakReply voices a finalized assistant turn through the TTS path.
func (c *Controller) speakReply(text string) {
	if c.voice == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.voice.Speak(ctx, text); err != nil {
			c.log.Warn("reply speech failed", "err", err)
		}
	}()
}

// interruptPlayback cuts the spoken reply when the user talks over it.
func (c *Controller) interruptPlayback() {
	if c.player != nil {
		c.player.Stop()
	}
}

type sessionUpdate struct {
	Type    string                                   `json:"type"`
	Session *oairt.RealtimeSessionCreateRequestParam `json:"session"`
}

func (c *Controller) sendEvent(dc *webrtc.DataChannel, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := dc.SendText(string(b)); err != nil {
		c.log.Debug("event channel send failed", "err", err)
	}
}

func (c *Controller) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	if c.states != nil {
		select {
		case c.states <- s:
		default:
			c.log.Debug("state notification dropped", "state", s.String())
		}
	}
}

func (c *Controller) fail(g uint64, err error) error {
	c.mu.Lock()
	if c.gen == g && c.state != StateIdle {
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()
	c.log.Warn("voice session start failed", "err", err)
	return err
}
