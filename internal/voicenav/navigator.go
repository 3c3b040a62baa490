package voicenav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/siwon333/CarePill/internal/audio"
	"github.com/siwon333/CarePill/internal/command"
	"github.com/siwon333/CarePill/pkg/stt"
)

// Error codes for recognition failures, surfaced as status text.
const (
	CodeNoSpeech     = "no-speech"
	CodeAudioCapture = "audio-capture"
	CodeNotAllowed   = "not-allowed"
	CodeNetwork      = "network"
)

// RecognitionError reports one failed listen attempt. The loop keeps
// running; the code picks the user-facing message.
type RecognitionError struct {
	Code string
	Err  error
}

func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("voicenav: %s: %v", e.Code, e.Err)
	}
	return "voicenav: " + e.Code
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Message is the Korean status text for an error code.
func (e *RecognitionError) Message() string {
	switch e.Code {
	case CodeNoSpeech:
		return "음성이 감지되지 않았습니다"
	case CodeAudioCapture:
		return "마이크를 찾을 수 없습니다"
	case CodeNotAllowed:
		return "마이크 권한이 거부되었습니다"
	case CodeNetwork:
		return "네트워크 오류가 발생했습니다"
	default:
		return "오류: " + e.Code
	}
}

// Recognizer captures one utterance and returns its transcript.
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

// WhisperRecognizer listens on the default mic and transcribes locally.
type WhisperRecognizer struct {
	Rec *audio.Recorder
	STT *stt.Transcriber
	Opt stt.Options
}

func (w *WhisperRecognizer) Recognize(ctx context.Context) (string, error) {
	pcm, err := w.Rec.RecordCommand(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if errors.Is(err, audio.ErrNoSpeech) {
			return "", &RecognitionError{Code: CodeNoSpeech}
		}
		return "", &RecognitionError{Code: CodeAudioCapture, Err: err}
	}
	res, err := w.STT.TranscribePCM(ctx, pcm, w.Opt)
	if err != nil {
		return "", &RecognitionError{Code: CodeAudioCapture, Err: err}
	}
	return res.Text, nil
}

// UI is the kiosk surface the navigator drives; satisfied by uibus.Bus.
type UI interface {
	Status(state, text string)
	Navigate(url string)
}

// Speaker voices the feedback lines; satisfied by tts.Client.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Dispenser triggers medicine dispensing.
type Dispenser interface {
	Dispense(medicine string) error
}

// pageLabels voice the destination in the announcement.
var pageLabels = map[string]string{
	"HOME":         "홈으로",
	"SCAN":         "약 투입 페이지로",
	"MEDS":         "현재 있는 약 페이지로",
	"PRESCRIPTION": "처방약 안내 페이지로",
	"OTC":          "상비약 안내 페이지로",
	"VOICE_SETUP":  "음성 등록 페이지로",
	"GREEN":        "약 분출 페이지로",
	"VOICE":        "대화 페이지로",
}

// Navigator runs the always-on voice command loop: listen, transcribe,
// route, act. Dispense commands win over navigation. Errors never stop
// the loop; each listen attempt restarts after a fixed delay.
type Navigator struct {
	rec       Recognizer
	router    *command.Router
	ui        UI
	speaker   Speaker
	dispenser Dispenser
	restart   time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(rec Recognizer, router *command.Router, ui UI, speaker Speaker, dispenser Dispenser, log *slog.Logger) *Navigator {
	if log == nil {
		log = slog.Default()
	}
	return &Navigator{
		rec:       rec,
		router:    router,
		ui:        ui,
		speaker:   speaker,
		dispenser: dispenser,
		restart:   time.Second,
		log:       log,
	}
}

// Enable starts the listen loop. No-op while already running.
func (n *Navigator) Enable() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	n.running = true
	go n.loop(ctx, n.done)
	n.ui.Status("listening", "음성 명령 대기 중")
	n.log.Info("voice navigation enabled")
}

// Disable stops the loop and waits for the in-flight listen to finish.
// No-op while already stopped.
func (n *Navigator) Disable() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	cancel, done := n.cancel, n.done
	n.mu.Unlock()

	cancel()
	<-done
	n.ui.Status("off", "음성 명령 꺼짐")
	n.log.Info("voice navigation disabled")
}

// Enabled reports whether the loop is running.
func (n *Navigator) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

func (n *Navigator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		text, err := n.rec.Recognize(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			n.reportError(err)
		} else {
			n.Handle(ctx, text)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.restart):
		}
	}
}

// Handle routes one transcript and performs the matched action. Exposed
// so finalized realtime utterances can share the same command path.
func (n *Navigator) Handle(ctx context.Context, text string) {
	if text == "" {
		return
	}
	action, ok := n.router.Route(text)
	if !ok {
		n.ui.Status("unknown", "인식되지 않은 명령: "+text)
		n.speak(ctx, "명령을 이해하지 못했어요. 다시 말씀해 주세요.")
		return
	}
	switch action.Kind {
	case command.KindDispense:
		n.ui.Status("recognized", fmt.Sprintf("%q 배출 명령 인식됨", action.Medicine))
		if err := n.dispenser.Dispense(action.Medicine); err != nil {
			n.log.Warn("dispense failed", "medicine", action.Medicine, "err", err)
		}
	case command.KindNavigate:
		n.ui.Status("recognized", fmt.Sprintf("%q 명령 인식됨", text))
		if label, ok := pageLabels[action.Name]; ok {
			n.speak(ctx, label+" 이동합니다.")
		}
		n.ui.Navigate(action.Destination)
	}
}

func (n *Navigator) reportError(err error) {
	var rerr *RecognitionError
	if errors.As(err, &rerr) {
		if rerr.Code != CodeNoSpeech {
			n.ui.Status("error", rerr.Message())
		}
		n.log.Debug("recognition failed", "code", rerr.Code, "err", err)
		return
	}
	n.ui.Status("error", "오류가 발생했습니다")
	n.log.Warn("recognition failed", "err", err)
}

func (n *Navigator) speak(ctx context.Context, text string) {
	if n.speaker == nil {
		return
	}
	if err := n.speaker.Speak(ctx, text); err != nil {
		n.log.Debug("feedback speech failed", "err", err)
	}
}
