package dispense

import "testing"

type fakeNotifier struct {
	messages []string
	clips    []string
}

func (n *fakeNotifier) Show(message, clip string) {
	n.messages = append(n.messages, message)
	n.clips = append(n.clips, clip)
}

type fakeEvents struct {
	dispensed []string
}

func (e *fakeEvents) Dispense(medicine string) {
	e.dispensed = append(e.dispensed, medicine)
}

func TestDispenseKnownMedicine(t *testing.T) {
	n := &fakeNotifier{}
	e := &fakeEvents{}
	d := New(n, e, nil)

	if err := d.Dispense("확펜"); err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if len(n.messages) != 1 || n.messages[0] != "확펜이 배출되고 있습니다" {
		t.Fatalf("messages = %v", n.messages)
	}
	if n.clips[0] != "hwakpen.mp3" {
		t.Fatalf("clip = %q", n.clips[0])
	}
	if len(e.dispensed) != 1 || e.dispensed[0] != "확펜" {
		t.Fatalf("dispensed = %v", e.dispensed)
	}
}

func TestDispensePharmacyAliasesToPrescription(t *testing.T) {
	n := &fakeNotifier{}
	e := &fakeEvents{}
	d := New(n, e, nil)

	if err := d.Dispense("킴스약국"); err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if n.messages[0] != "처방약이 배출되고 있습니다" {
		t.Fatalf("message = %q", n.messages[0])
	}
}

func TestDispenseUnknownMedicine(t *testing.T) {
	n := &fakeNotifier{}
	e := &fakeEvents{}
	d := New(n, e, nil)

	if err := d.Dispense("아스피린"); err == nil {
		t.Fatal("expected error for unknown medicine")
	}
	if len(n.messages) != 0 || len(e.dispensed) != 0 {
		t.Fatal("unknown medicine must not announce or signal")
	}
}

func TestKnown(t *testing.T) {
	if !Known("확펜") || !Known("처방약") {
		t.Fatal("expected known medicines")
	}
	if Known("비타민") {
		t.Fatal("비타민 should be unknown")
	}
}
