package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/siwon333/CarePill/internal/transcript"
)

// ChatView renders conversation lines; satisfied by the uibus chat sink.
// Repeated calls with the same id update that line in place, so each
// speaker turn stays a single visible line while deltas stream in.
type ChatView interface {
	ChatLine(id, role, text string)
}

// Demux routes realtime data-channel events to the chat view and the
// transcript collector. Malformed events are dropped without surfacing
// to the user.
type Demux struct {
	view  ChatView
	lines *transcript.Collector
	log   *slog.Logger

	// onSpeechStarted fires when the remote VAD hears the user start
	// talking; the controller uses it to cut assistant audio.
	onSpeechStarted func()
	// onUserFinal fires with each finalized user utterance so commands
	// can be routed mid-conversation.
	onUserFinal func(text string)
	// onAssistantFinal fires once per assistant turn; the controller
	// voices it through TTS.
	onAssistantFinal func(text string)

	mu       sync.Mutex
	userID   string
	userText string
	asstID   string
	asstText string
	done     map[string]struct{}
}

func NewDemux(view ChatView, lines *transcript.Collector, onSpeechStarted func(), onUserFinal, onAssistantFinal func(string), log *slog.Logger) *Demux {
	if log == nil {
		log = slog.Default()
	}
	return &Demux{
		view:             view,
		lines:            lines,
		log:              log,
		onSpeechStarted:  onSpeechStarted,
		onUserFinal:      onUserFinal,
		onAssistantFinal: onAssistantFinal,
		done:             make(map[string]struct{}),
	}
}

type wireEvent struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	ResponseID string `json:"response_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Response   struct {
		ID string `json:"id"`
	} `json:"response"`
}

// Handle processes one raw data-channel message.
func (d *Demux) Handle(raw []byte) {
	var ev wireEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.log.Debug("dropping malformed realtime event", "err", err)
		return
	}
	switch ev.Type {
	case "input_audio_buffer.speech_started":
		if d.onSpeechStarted != nil {
			d.onSpeechStarted()
		}
	case "input_audio_buffer.speech_stopped":
		// turn boundary handled by the transcription finals
	case "conversation.item.input_audio_transcription.delta":
		d.userDelta(ev.ItemID, ev.Delta)
	case "conversation.item.input_audio_transcription.completed":
		d.userFinal(ev.ItemID, ev.Transcript)
	case "response.audio_transcript.delta":
		d.assistantDelta(ev.ResponseID, ev.Delta)
	case "response.audio_transcript.done":
		d.assistantFinal(ev.ResponseID, ev.Transcript)
	case "response.done":
		d.assistantFinal(ev.Response.ID, "")
	default:
		d.log.Debug("unhandled realtime event", "type", ev.Type)
	}
}

// Reset clears turn state; called when a session ends so a new session
// starts with fresh lines.
func (d *Demux) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userID, d.userText = "", ""
	d.asstID, d.asstText = "", ""
	d.done = make(map[string]struct{})
}

func (d *Demux) userDelta(id, delta string) {
	d.mu.Lock()
	if id != d.userID {
		d.userID, d.userText = id, ""
	}
	d.userText += delta
	lineID, text := "u-"+id, d.userText
	d.mu.Unlock()
	d.view.ChatLine(lineID, transcript.RoleUser, text)
}

func (d *Demux) userFinal(id, text string) {
	d.mu.Lock()
	if text == "" {
		text = d.userText
	}
	d.userID, d.userText = "", ""
	d.mu.Unlock()
	if text == "" {
		return
	}
	d.view.ChatLine("u-"+id, transcript.RoleUser, text)
	d.lines.Append(transcript.RoleUser, text)
	if d.onUserFinal != nil {
		d.onUserFinal(text)
	}
}

func (d *Demux) assistantDelta(id, delta string) {
	d.mu.Lock()
	if _, finished := d.done[id]; finished {
		d.mu.Unlock()
		return
	}
	if id != d.asstID {
		d.asstID, d.asstText = id, ""
	}
	d.asstText += delta
	lineID, text := "a-"+id, d.asstText
	d.mu.Unlock()
	d.view.ChatLine(lineID, transcript.RoleAssistant, text)
}

// assistantFinal records the assistant turn once per response id, no
// matter how many terminal events the stream emits for it.
func (d *Demux) assistantFinal(id, text string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	if _, dup := d.done[id]; dup {
		d.mu.Unlock()
		return
	}
	d.done[id] = struct{}{}
	if text == "" && id == d.asstID {
		text = d.asstText
	}
	if id == d.asstID {
		d.asstID, d.asstText = "", ""
	}
	d.mu.Unlock()
	if text == "" {
		return
	}
	d.view.ChatLine("a-"+id, transcript.RoleAssistant, text)
	d.lines.Append(transcript.RoleAssistant, text)
	if d.onAssistantFinal != nil {
		d.onAssistantFinal(text)
	}
}
