package uibus

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
)

// Message is one frame on the kiosk UI bus. Kind selects the payload fields:
//
//	chat_line  — Line, Role, Text (upsert: same Line id updates in place)
//	status     — State, Text
//	navigate   — URL
//	overlay    — Text (show), overlay_hide — none
//	dispense   — Medicine
//	event      — Text (generic event log)
//	control    — inbound from the UI: Text holds the command, Medicine an
//	             optional argument
type Message struct {
	Kind     string `json:"kind"`
	Line     string `json:"line,omitempty"`
	Role     string `json:"role,omitempty"`
	Text     string `json:"text,omitempty"`
	State    string `json:"state,omitempty"`
	URL      string `json:"url,omitempty"`
	Medicine string `json:"medicine,omitempty"`
}

// Bus is the agent's connection to the kiosk UI. Writes are serialized;
// the read loop reconnects with a fixed delay when the UI restarts.
type Bus struct {
	url     string
	reconn  time.Duration
	log     *slog.Logger
	closed  atomic.Bool
	writeMu sync.Mutex
	connMu  sync.Mutex
	conn    *ws.Conn
}

func Dial(url string, reconnectDelay time.Duration, log *slog.Logger) (*Bus, error) {
	if log == nil {
		log = slog.Default()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}

	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	log.Info("connected to kiosk ui", "url", url)
	return &Bus{url: url, reconn: reconnectDelay, log: log, conn: conn}, nil
}

// Run reads inbound UI messages until Close, invoking handler for each.
// Connection loss triggers reconnect attempts every reconnectDelay.
func (b *Bus) Run(handler func(Message)) {
	for {
		conn := b.current()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if b.closed.Load() {
				return
			}
			if isClosed(err) {
				b.log.Warn("kiosk ui disconnected, reconnecting", "url", b.url)
			} else {
				b.log.Error("kiosk ui read failed, reconnecting", "err", err)
			}
			if !b.redial() {
				return
			}
			continue
		}

		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			b.log.Warn("bad ui frame", "err", err)
			continue
		}
		handler(m)
	}
}

// Send writes one frame to the UI. Failures are logged, not fatal: the UI
// is a display surface and the agent keeps running without it.
func (b *Bus) Send(m Message) {
	conn := b.current()
	if conn == nil {
		return
	}

	data, err := json.Marshal(m)
	if err != nil {
		b.log.Error("marshal ui frame", "err", err)
		return
	}

	b.writeMu.Lock()
	err = conn.WriteMessage(ws.TextMessage, data)
	b.writeMu.Unlock()
	if err != nil {
		b.log.Warn("ui send failed", "kind", m.Kind, "err", err)
	}
}

func (b *Bus) ChatLine(id, role, text string) {
	b.Send(Message{Kind: "chat_line", Line: id, Role: role, Text: text})
}

func (b *Bus) Status(state, text string) {
	b.Send(Message{Kind: "status", State: state, Text: text})
}

func (b *Bus) Navigate(url string) {
	b.Send(Message{Kind: "navigate", URL: url})
}

func (b *Bus) Overlay(text string) {
	b.Send(Message{Kind: "overlay", Text: text})
}

func (b *Bus) OverlayHide() {
	b.Send(Message{Kind: "overlay_hide"})
}

func (b *Bus) Dispense(medicine string) {
	b.Send(Message{Kind: "dispense", Medicine: medicine})
}

func (b *Bus) Event(text string) {
	b.Send(Message{Kind: "event", Text: text})
}

func (b *Bus) Close() error {
	b.closed.Store(true)
	conn := b.current()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (b *Bus) current() *ws.Conn {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.conn
}

func (b *Bus) redial() bool {
	for !b.closed.Load() {
		conn, _, err := ws.DefaultDialer.Dial(b.url, nil)
		if err == nil {
			b.connMu.Lock()
			b.conn = conn
			b.connMu.Unlock()
			b.log.Info("kiosk ui reconnected", "url", b.url)
			return true
		}
		time.Sleep(b.reconn)
	}
	return false
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
