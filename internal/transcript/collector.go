package transcript

import (
	"strings"
	"sync"
)

// Speaker roles in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Line is one finalized utterance in a conversation.
type Line struct {
	Role string
	Text string
}

// prefixes the realtime model sometimes prepends to its own transcript.
var speakerPrefixes = []string{
	"User:", "user:", "사용자:",
	"CarePill:", "carepill:", "케어필:",
}

// Collector accumulates finalized conversation lines for later
// summarization. Consecutive duplicates from the same speaker are
// dropped, as the transcription stream can emit the same final twice.
type Collector struct {
	mu    sync.Mutex
	lines []Line
}

func NewCollector() *Collector {
	return &Collector{}
}

// Append records one finalized line. Empty text and immediate repeats
// of the previous line by the same speaker are ignored.
func (c *Collector) Append(role, text string) {
	text = clean(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.lines); n > 0 {
		last := c.lines[n-1]
		if last.Role == role && last.Text == text {
			return
		}
	}
	c.lines = append(c.lines, Line{Role: role, Text: text})
}

// Lines renders the conversation as speaker-tagged strings in order.
func (c *Collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.lines))
	for _, l := range c.lines {
		tag := "CarePill"
		if l.Role == RoleUser {
			tag = "User"
		}
		out = append(out, tag+": "+l.Text)
	}
	return out
}

// Len reports the number of collected lines.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Reset drops all collected lines.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

func clean(text string) string {
	text = strings.TrimSpace(text)
	for _, p := range speakerPrefixes {
		if strings.HasPrefix(text, p) {
			return strings.TrimSpace(text[len(p):])
		}
	}
	return text
}
