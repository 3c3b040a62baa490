package notify

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

const defaultDismiss = 3 * time.Second

// Display renders the notification on the kiosk; satisfied by uibus.Bus.
type Display interface {
	Overlay(text string)
	OverlayHide()
}

// ClipPlayer plays the announcement audio; satisfied by audio.Player.
type ClipPlayer interface {
	PlayFile(path string) error
	Stop()
}

// Overlay shows one transient notification at a time. Showing a new one
// replaces the current one; each self-dismisses after a fixed duration on
// its own timer, independent of the audio clip's length.
type Overlay struct {
	display Display
	player  ClipPlayer
	clipDir string
	dismiss time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	visible bool
}

func NewOverlay(display Display, player ClipPlayer, clipDir string, dismiss time.Duration, log *slog.Logger) *Overlay {
	if dismiss <= 0 {
		dismiss = defaultDismiss
	}
	if log == nil {
		log = slog.Default()
	}
	return &Overlay{
		display: display,
		player:  player,
		clipDir: clipDir,
		dismiss: dismiss,
		log:     log,
	}
}

// Show displays message and plays the named clip from the clip directory.
// An empty clip name shows the message silently.
func (o *Overlay) Show(message, clip string) {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.visible = true
	o.timer = time.AfterFunc(o.dismiss, o.expire)
	o.mu.Unlock()

	o.display.Overlay(message)

	if clip != "" {
		if err := o.player.PlayFile(filepath.Join(o.clipDir, clip)); err != nil {
			o.log.Warn("notification clip failed", "clip", clip, "err", err)
		}
	}
}

// Hide dismisses the notification and cuts its audio. Safe to call with
// nothing showing.
func (o *Overlay) Hide() {
	if o.hide() {
		o.player.Stop()
	}
}

// expire clears the display when the dismiss timer fires. The clip is
// left alone: the display window and the audio run on independent
// timers, and a clip longer than the window plays out.
func (o *Overlay) expire() {
	o.hide()
}

func (o *Overlay) hide() bool {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	wasVisible := o.visible
	o.visible = false
	o.mu.Unlock()

	if wasVisible {
		o.display.OverlayHide()
	}
	return wasVisible
}

// Visible reports whether a notification is currently showing.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}
