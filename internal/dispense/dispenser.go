package dispense

import (
	"fmt"
	"log/slog"
)

// Notifier shows the dispensing announcement; satisfied by notify.Overlay.
type Notifier interface {
	Show(message, clip string)
}

// Events pushes dispense events to the kiosk; satisfied by uibus.Bus.
type Events interface {
	Dispense(medicine string)
}

type entry struct {
	message string
	clip    string
}

// medicines maps a routed medicine name to its announcement. Pharmacy
// names resolve to the prescription slot.
var medicines = map[string]entry{
	"확펜":   {"확펜이 배출되고 있습니다", "hwakpen.mp3"},
	"처방약":  {"처방약이 배출되고 있습니다", "prescription.mp3"},
	"킴스약국": {"처방약이 배출되고 있습니다", "prescription.mp3"},
}

// Dispenser triggers the hardware dispense path for a named medicine and
// announces it on the kiosk.
type Dispenser struct {
	notifier Notifier
	events   Events
	log      *slog.Logger
}

func New(notifier Notifier, events Events, log *slog.Logger) *Dispenser {
	if log == nil {
		log = slog.Default()
	}
	return &Dispenser{notifier: notifier, events: events, log: log}
}

// Dispense announces and signals dispensing for medicine. Unknown
// medicines return an error and show nothing.
func (d *Dispenser) Dispense(medicine string) error {
	e, ok := medicines[medicine]
	if !ok {
		return fmt.Errorf("dispense: unknown medicine %q", medicine)
	}
	d.log.Info("dispensing", "medicine", medicine)
	d.notifier.Show(e.message, e.clip)
	d.events.Dispense(medicine)
	return nil
}

// Known reports whether medicine has a dispense slot.
func Known(medicine string) bool {
	_, ok := medicines[medicine]
	return ok
}
