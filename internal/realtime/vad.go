package realtime

import "time"

const (
	defaultBargeThreshold = 0.13
	defaultBargeHold      = 500 * time.Millisecond
	defaultBargeCooldown  = time.Second
)

// BargeIn detects sustained user speech over the mic while the
// assistant is talking, so playback can be cut locally without waiting
// for the remote VAD round trip. A cancel fires only after the signal
// stays above the threshold for the hold duration, and at most once per
// cooldown window.
type BargeIn struct {
	threshold float64
	hold      time.Duration
	cooldown  time.Duration
	now       func() time.Time

	loudSince  time.Time
	lastCancel time.Time
}

// NewBargeIn builds a detector. Zero values select the defaults.
func NewBargeIn(threshold float64, hold, cooldown time.Duration) *BargeIn {
	if threshold <= 0 {
		threshold = defaultBargeThreshold
	}
	if hold <= 0 {
		hold = defaultBargeHold
	}
	if cooldown <= 0 {
		cooldown = defaultBargeCooldown
	}
	return &BargeIn{
		threshold: threshold,
		hold:      hold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Observe feeds one mic frame's RMS level and reports whether a cancel
// should fire now.
func (b *BargeIn) Observe(rms float64) bool {
	t := b.now()
	if rms < b.threshold {
		b.loudSince = time.Time{}
		return false
	}
	if b.loudSince.IsZero() {
		b.loudSince = t
	}
	if t.Sub(b.loudSince) < b.hold {
		return false
	}
	if !b.lastCancel.IsZero() && t.Sub(b.lastCancel) < b.cooldown {
		return false
	}
	b.lastCancel = t
	b.loudSince = time.Time{}
	return true
}

// Reset clears accumulated state, e.g. when the assistant stops talking.
func (b *BargeIn) Reset() {
	b.loudSince = time.Time{}
}
