package command

import (
	"strings"
	"unicode"
)

type Kind int

const (
	KindDispense Kind = iota
	KindNavigate
)

// Action is the result of routing one utterance: either a dispense request
// for a named medicine or a navigation to a kiosk page.
type Action struct {
	Kind        Kind
	Name        string
	Medicine    string
	Destination string
}

// DispenseRule matches a dispense request. The utterance must contain one of
// Any, one of Also when set, and one of Intent when set.
type DispenseRule struct {
	Medicine string
	Any      []string
	Also     []string
	Intent   []string
}

// NavRule matches a page navigation by keyword alone.
type NavRule struct {
	Name        string
	Destination string
	Keywords    []string
}

type Router struct {
	dispense []DispenseRule
	nav      []NavRule
}

func NewRouter(dispense []DispenseRule, nav []NavRule) *Router {
	return &Router{dispense: dispense, nav: nav}
}

func NewDefaultRouter() *Router {
	return NewRouter(DefaultDispenseRules(), DefaultNavRules())
}

// Normalize strips all whitespace and lower-cases, so matching is insensitive
// to how the recognizer segments the utterance.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Route maps an utterance to an action. Dispense rules are checked before
// navigation rules: sending a dispense request to a page is a worse failure
// than the reverse. First matching rule wins; ok=false means no rule matched
// and the caller must surface an unrecognized-command status.
func (r *Router) Route(utterance string) (Action, bool) {
	t := Normalize(utterance)
	if t == "" {
		return Action{}, false
	}

	for _, d := range r.dispense {
		if d.matches(t) {
			return Action{Kind: KindDispense, Name: d.Medicine, Medicine: d.Medicine}, true
		}
	}

	for _, n := range r.nav {
		for _, k := range n.Keywords {
			if strings.Contains(t, Normalize(k)) {
				return Action{Kind: KindNavigate, Name: n.Name, Destination: n.Destination}, true
			}
		}
	}

	return Action{}, false
}

func (d DispenseRule) matches(t string) bool {
	if !containsAny(t, d.Any) {
		return false
	}
	if len(d.Also) > 0 && !containsAny(t, d.Also) {
		return false
	}
	if len(d.Intent) > 0 && !containsAny(t, d.Intent) {
		return false
	}
	return true
}

func containsAny(t string, keys []string) bool {
	for _, k := range keys {
		if k != "" && strings.Contains(t, k) {
			return true
		}
	}
	return false
}
