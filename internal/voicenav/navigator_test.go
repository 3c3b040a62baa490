package voicenav

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/siwon333/CarePill/internal/command"
)

type fakeUI struct {
	mu       sync.Mutex
	statuses []string
	navs     []string
}

func (u *fakeUI) Status(state, text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses = append(u.statuses, state+": "+text)
}

func (u *fakeUI) Navigate(url string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.navs = append(u.navs, url)
}

func (u *fakeUI) snapshot() ([]string, []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.statuses...), append([]string(nil), u.navs...)
}

type fakeSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	return nil
}

type fakeDispenser struct {
	mu        sync.Mutex
	medicines []string
}

func (d *fakeDispenser) Dispense(medicine string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.medicines = append(d.medicines, medicine)
	return nil
}

type scriptRecognizer struct {
	mu      sync.Mutex
	results []string
	errs    []error
	i       int
}

func (r *scriptRecognizer) Recognize(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.i >= len(r.results) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	text, err := r.results[r.i], r.errs[r.i]
	r.i++
	return text, err
}

func newTestNavigator(rec Recognizer) (*Navigator, *fakeUI, *fakeSpeaker, *fakeDispenser) {
	ui := &fakeUI{}
	sp := &fakeSpeaker{}
	disp := &fakeDispenser{}
	n := New(rec, command.NewRouter(command.DefaultDispenseRules(), command.DefaultNavRules()), ui, sp, disp, nil)
	n.restart = time.Millisecond
	return n, ui, sp, disp
}

func TestHandleDispenseBeatsNavigation(t *testing.T) {
	n, _, _, disp := newTestNavigator(nil)

	n.Handle(context.Background(), "처방약 좀 줘")

	disp.mu.Lock()
	defer disp.mu.Unlock()
	if len(disp.medicines) != 1 || disp.medicines[0] != "처방약" {
		t.Fatalf("dispensed = %v", disp.medicines)
	}
}

func TestHandleNavigationAnnouncesAndNavigates(t *testing.T) {
	n, ui, sp, _ := newTestNavigator(nil)

	n.Handle(context.Background(), "홈으로 가자")

	_, navs := ui.snapshot()
	if len(navs) != 1 || navs[0] != "/" {
		t.Fatalf("navs = %v", navs)
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.lines) != 1 || sp.lines[0] != "홈으로 이동합니다." {
		t.Fatalf("spoken = %v", sp.lines)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	n, ui, sp, disp := newTestNavigator(nil)

	n.Handle(context.Background(), "오늘 날씨 어때")

	statuses, navs := ui.snapshot()
	if len(navs) != 0 {
		t.Fatalf("navs = %v, want none", navs)
	}
	if len(statuses) != 1 || !strings.HasPrefix(statuses[0], "unknown:") {
		t.Fatalf("statuses = %v", statuses)
	}
	sp.mu.Lock()
	spoken := append([]string(nil), sp.lines...)
	sp.mu.Unlock()
	if len(spoken) != 1 || spoken[0] != "명령을 이해하지 못했어요. 다시 말씀해 주세요." {
		t.Fatalf("spoken = %v", spoken)
	}
	disp.mu.Lock()
	defer disp.mu.Unlock()
	if len(disp.medicines) != 0 {
		t.Fatalf("dispensed = %v, want none", disp.medicines)
	}
}

func TestLoopSurvivesErrorsAndKeepsListening(t *testing.T) {
	rec := &scriptRecognizer{
		results: []string{"", "", "확펜 좀 줘"},
		errs:    []error{&RecognitionError{Code: CodeNoSpeech}, &RecognitionError{Code: CodeNetwork}, nil},
	}
	n, ui, _, disp := newTestNavigator(rec)

	n.Enable()
	defer n.Disable()

	deadline := time.Now().Add(2 * time.Second)
	for {
		disp.mu.Lock()
		got := len(disp.medicines)
		disp.mu.Unlock()
		if got == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("dispense never happened after recognition errors")
		}
		time.Sleep(5 * time.Millisecond)
	}

	statuses, _ := ui.snapshot()
	var sawNetwork, sawNoSpeech bool
	for _, s := range statuses {
		if strings.Contains(s, "네트워크 오류가 발생했습니다") {
			sawNetwork = true
		}
		if strings.Contains(s, "음성이 감지되지 않았습니다") {
			sawNoSpeech = true
		}
	}
	if !sawNetwork {
		t.Fatalf("network error never surfaced: %v", statuses)
	}
	if sawNoSpeech {
		t.Fatalf("silence should not surface an error: %v", statuses)
	}
}

func TestEnableDisableIdempotent(t *testing.T) {
	n, _, _, _ := newTestNavigator(&scriptRecognizer{})

	n.Enable()
	n.Enable()
	if !n.Enabled() {
		t.Fatal("expected enabled")
	}
	n.Disable()
	n.Disable()
	if n.Enabled() {
		t.Fatal("expected disabled")
	}
}

func TestRecognitionErrorMessages(t *testing.T) {
	cases := map[string]string{
		CodeNoSpeech:     "음성이 감지되지 않았습니다",
		CodeAudioCapture: "마이크를 찾을 수 없습니다",
		CodeNotAllowed:   "마이크 권한이 거부되었습니다",
		CodeNetwork:      "네트워크 오류가 발생했습니다",
		"weird":          "오류: weird",
	}
	for code, want := range cases {
		e := &RecognitionError{Code: code}
		if got := e.Message(); got != want {
			t.Errorf("Message(%s) = %q, want %q", code, got, want)
		}
	}
}
