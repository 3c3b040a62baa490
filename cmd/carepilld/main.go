package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"github.com/siwon333/CarePill/internal/api"
	"github.com/siwon333/CarePill/internal/audio"
	"github.com/siwon333/CarePill/internal/command"
	"github.com/siwon333/CarePill/internal/dispense"
	"github.com/siwon333/CarePill/internal/ipc"
	"github.com/siwon333/CarePill/internal/notify"
	"github.com/siwon333/CarePill/internal/prefs"
	"github.com/siwon333/CarePill/internal/realtime"
	"github.com/siwon333/CarePill/internal/transcript"
	"github.com/siwon333/CarePill/internal/tts"
	"github.com/siwon333/CarePill/internal/uibus"
	"github.com/siwon333/CarePill/internal/voicenav"
	"github.com/siwon333/CarePill/internal/voicereg"
	"github.com/siwon333/CarePill/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	apiURL := cli.StringP("api", "a", "http://localhost:8000", "Backend base URL")
	uiURL := cli.StringP("ui", "u", "ws://localhost:8765/ws", "Kiosk UI websocket URL")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address (optional)")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	modelPath := cli.StringP("model", "m", "third_party/whisper.cpp/models/ggml-small.bin", "Whisper model path")
	lang := cli.String("lang", "ko", "Recognition language")
	stateDir := cli.String("state", "/var/lib/carepill", "State directory")
	clipsDir := cli.String("clips", "assets/clips", "Notification clip directory")
	socket := cli.String("socket", ipc.DefaultSocketPath, "Control socket path")
	bargeIn := cli.Bool("barge-in", false, "Interrupt the assistant on sustained user speech")
	vadRMS := cli.Float64("vad-rms", 0.13, "Barge-in RMS threshold")
	vadHold := cli.Duration("vad-hold", 500*time.Millisecond, "Barge-in hold duration")
	vadCancel := cli.Duration("vad-cancel", time.Second, "Minimum gap between barge-in cancels")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)

	var opts []api.Option
	if *proxyAddr != "" {
		opts = append(opts, api.WithSocksProxy(*proxyAddr))
	}
	backend, err := api.New(*apiURL, opts...)
	if err != nil {
		log.Error("Failed to set up backend client", "err", err)
		os.Exit(1)
	}

	store, err := prefs.Open(*stateDir)
	if err != nil {
		log.Error("Failed to open state dir", "dir", *stateDir, "err", err)
		os.Exit(1)
	}

	rec := audio.NewRecorder()
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	log.Debug("Loaded recorder")

	whisper, err := stt.NewTranscriber(*modelPath)
	if err != nil {
		log.Error("Failed to init whisper", "model", *modelPath, "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper")

	bus, err := uibus.Dial(*uiURL, 3*time.Second, log.Default())
	if err != nil {
		log.Error("Failed to reach kiosk UI", "url", *uiURL, "err", err)
		os.Exit(1)
	}
	defer bus.Close()

	player := audio.NewPlayer()
	voice := tts.NewClient(backend, player, log.Default())
	overlay := notify.NewOverlay(bus, player, *clipsDir, 0, log.Default())
	dispenser := dispense.New(overlay, bus, log.Default())
	router := command.NewDefaultRouter()

	navigator := voicenav.New(&voicenav.WhisperRecognizer{
		Rec: rec,
		STT: whisper,
		Opt: stt.Options{Language: *lang},
	}, router, bus, voice, dispenser, log.Default())

	lines := transcript.NewCollector()
	summarizer := transcript.NewSummarizer(backend, log.Default())

	// Commands recognized inside a live conversation act silently; the
	// assistant's own reply is the feedback.
	onUserFinal := func(text string) {
		action, ok := router.Route(text)
		if !ok {
			return
		}
		switch action.Kind {
		case command.KindDispense:
			if err := dispenser.Dispense(action.Medicine); err != nil {
				log.Warn("Dispense failed", "medicine", action.Medicine, "err", err)
			}
		case command.KindNavigate:
			bus.Navigate(action.Destination)
		}
	}

	session := realtime.NewController(backend, realtime.NewRecorderCapture(rec), player, voice, bus, lines, onUserFinal, realtime.Config{
		BargeIn:        *bargeIn,
		BargeThreshold: *vadRMS,
		BargeHold:      *vadHold,
		BargeCooldown:  *vadCancel,
		OnState: func(s realtime.State) {
			bus.Status("session", s.String())
		},
	}, log.Default())

	registrar := voicereg.New(backend, rec, log.Default())

	ctl := &control{
		navigator:  navigator,
		session:    session,
		dispenser:  dispenser,
		summarizer: summarizer,
		registrar:  registrar,
		lines:      lines,
		store:      store,
		overlay:    overlay,
		bus:        bus,
	}

	srv, err := ipc.Serve(*socket, ctl.handle)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	go bus.Run(func(m uibus.Message) {
		if m.Kind != "control" {
			return
		}
		rep := ctl.handle(ipc.Request{Cmd: m.Text, Arg: m.Medicine})
		if !rep.OK {
			log.Warn("UI control rejected", "cmd", m.Text, "detail", rep.Detail)
		}
	})

	if store.GetBool(prefs.KeyVoiceNavEnabled, true) {
		navigator.Enable()
	}

	log.Info("Boot up - successful")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	navigator.Disable()
	session.Stop()
	overlay.Hide()
}

// control maps ipc commands onto the daemon's components.
type control struct {
	navigator  *voicenav.Navigator
	session    *realtime.Controller
	dispenser  *dispense.Dispenser
	summarizer *transcript.Summarizer
	registrar  *voicereg.Registrar
	lines      *transcript.Collector
	store      *prefs.Store
	overlay    *notify.Overlay
	bus        *uibus.Bus
}

func (c *control) handle(req ipc.Request) ipc.Reply {
	switch req.Cmd {
	case "voice-on":
		c.navigator.Enable()
		c.store.SetBool(prefs.KeyVoiceNavEnabled, true)
		return ipc.Reply{OK: true, Detail: "voice navigation on"}

	case "voice-off":
		c.navigator.Disable()
		c.store.SetBool(prefs.KeyVoiceNavEnabled, false)
		return ipc.Reply{OK: true, Detail: "voice navigation off"}

	case "voice-toggle":
		if c.navigator.Enabled() {
			return c.handle(ipc.Request{Cmd: "voice-off"})
		}
		return c.handle(ipc.Request{Cmd: "voice-on"})

	case "chat-start":
		// the command listener and the live session share the mic
		c.navigator.Disable()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.session.Start(ctx); err != nil {
			if c.store.GetBool(prefs.KeyVoiceNavEnabled, true) {
				c.navigator.Enable()
			}
			return ipc.Reply{OK: false, Detail: err.Error()}
		}
		return ipc.Reply{OK: true, Detail: "session " + c.session.State().String()}

	case "chat-stop":
		c.session.Stop()
		if c.store.GetBool(prefs.KeyVoiceNavEnabled, true) {
			c.navigator.Enable()
		}
		return ipc.Reply{OK: true, Detail: "session stopped"}

	case "dispense":
		if err := c.dispenser.Dispense(req.Arg); err != nil {
			return ipc.Reply{OK: false, Detail: err.Error()}
		}
		return ipc.Reply{OK: true, Detail: req.Arg + " dispensing"}

	case "summarize", "save":
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		var res transcript.Result
		var err error
		if req.Cmd == "save" {
			res, err = c.summarizer.Save(ctx, c.lines.Lines(), req.Arg)
		} else {
			res, err = c.summarizer.Summarize(ctx, c.lines.Lines())
		}
		if err != nil {
			c.bus.Status("summary", "요약에 실패했습니다")
			return ipc.Reply{OK: false, Detail: err.Error()}
		}
		c.overlay.Show(res.SummaryText, "")
		c.bus.Status("summary", "summary complete")
		return ipc.Reply{OK: true, Detail: res.SummaryText}

	case "voice-register":
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := c.registrar.Record(ctx, nil, 15*time.Second); err != nil {
			return ipc.Reply{OK: false, Detail: err.Error()}
		}
		return ipc.Reply{OK: true, Detail: "voice registered"}

	case "voice-import":
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := c.registrar.Import(ctx, req.Arg); err != nil {
			return ipc.Reply{OK: false, Detail: err.Error()}
		}
		return ipc.Reply{OK: true, Detail: "voice imported"}

	case "status":
		return ipc.Reply{OK: true, Detail: fmt.Sprintf("voice-nav=%v session=%s lines=%d",
			c.navigator.Enabled(), c.session.State(), c.lines.Len())}

	default:
		return ipc.Reply{OK: false, Detail: "unknown command: " + req.Cmd}
	}
}
