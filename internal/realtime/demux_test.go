package realtime

import (
	"reflect"
	"testing"

	"github.com/siwon333/CarePill/internal/transcript"
)

type chatLine struct {
	id, role, text string
}

type fakeView struct {
	lines []chatLine
}

func (v *fakeView) ChatLine(id, role, text string) {
	v.lines = append(v.lines, chatLine{id, role, text})
}

func (v *fakeView) byID(id string) (chatLine, int) {
	var last chatLine
	n := 0
	for _, l := range v.lines {
		if l.id == id {
			last = l
			n++
		}
	}
	return last, n
}

func newTestDemux() (*Demux, *fakeView, *transcript.Collector) {
	view := &fakeView{}
	lines := transcript.NewCollector()
	d := NewDemux(view, lines, nil, nil, nil, nil)
	return d, view, lines
}

func TestDemuxUserDeltasStayOneLine(t *testing.T) {
	d, view, lines := newTestDemux()

	d.Handle([]byte(`{"type":"conversation.item.input_audio_transcription.delta","item_id":"it1","delta":"안녕"}`))
	d.Handle([]byte(`{"type":"conversation.item.input_audio_transcription.delta","item_id":"it1","delta":"하세요"}`))
	d.Handle([]byte(`{"type":"conversation.item.input_audio_transcription.completed","item_id":"it1","transcript":"안녕하세요"}`))

	last, updates := view.byID("u-it1")
	if updates != 3 {
		t.Fatalf("line u-it1 updated %d times, want 3", updates)
	}
	if last.text != "안녕하세요" || last.role != transcript.RoleUser {
		t.Fatalf("final line = %+v", last)
	}
	if got := lines.Lines(); !reflect.DeepEqual(got, []string{"User: 안녕하세요"}) {
		t.Fatalf("collected = %v", got)
	}
}

func TestDemuxFinalReplacesBufferedText(t *testing.T) {
	d, view, _ := newTestDemux()

	d.Handle([]byte(`{"type":"conversation.item.input_audio_transcription.delta","item_id":"it2","delta":"확펜 좀"}`))
	d.Handle([]byte(`{"type":"conversation.item.input_audio_transcription.completed","item_id":"it2","transcript":"확펜 좀 줘"}`))

	last, _ := view.byID("u-it2")
	if last.text != "확펜 좀 줘" {
		t.Fatalf("final text = %q, want transcript to win over deltas", last.text)
	}
}

func TestDemuxAssistantResponseDoneDeduped(t *testing.T) {
	d, _, lines := newTestDemux()

	d.Handle([]byte(`{"type":"response.audio_transcript.delta","response_id":"r1","delta":"약을 "}`))
	d.Handle([]byte(`{"type":"response.audio_transcript.delta","response_id":"r1","delta":"드세요"}`))
	d.Handle([]byte(`{"type":"response.audio_transcript.done","response_id":"r1","transcript":"약을 드세요"}`))
	d.Handle([]byte(`{"type":"response.done","response":{"id":"r1"}}`))

	if got := lines.Lines(); !reflect.DeepEqual(got, []string{"CarePill: 약을 드세요"}) {
		t.Fatalf("collected = %v, want one assistant line", got)
	}
}

func TestDemuxResponseDoneFinalizesFromBuffer(t *testing.T) {
	d, view, lines := newTestDemux()

	d.Handle([]byte(`{"type":"response.audio_transcript.delta","response_id":"r2","delta":"반갑습니다"}`))
	d.Handle([]byte(`{"type":"response.done","response":{"id":"r2"}}`))

	last, _ := view.byID("a-r2")
	if last.text != "반갑습니다" {
		t.Fatalf("final text = %q", last.text)
	}
	if got := lines.Lines(); !reflect.DeepEqual(got, []string{"CarePill: 반갑습니다"}) {
		t.Fatalf("collected = %v", got)
	}
}

func TestDemuxSpeechStartedFiresInterrupt(t *testing.T) {
	fired := 0
	view := &fakeView{}
	d := NewDemux(view, transcript.NewCollector(), func() { fired++ }, nil, nil, nil)

	d.Handle([]byte(`{"type":"input_audio_buffer.speech_started"}`))
	d.Handle([]byte(`{"type":"input_audio_buffer.speech_stopped"}`))
	if fired != 1 {
		t.Fatalf("interrupt fired %d times, want 1", fired)
	}
}

func TestDemuxUserFinalRoutesCommand(t *testing.T) {
	var got []string
	view := &fakeView{}
	d := NewDemux(view, transcript.NewCollector(), nil, func(text string) { got = append(got, text) }, nil, nil)

	d.Handle([]byte(`{"type":"conversation.item.input_audio_transcription.completed","item_id":"it3","transcript":"확펜 좀 줘"}`))
	if !reflect.DeepEqual(got, []string{"확펜 좀 줘"}) {
		t.Fatalf("routed = %v", got)
	}
}

func TestDemuxAssistantFinalSpokenOnce(t *testing.T) {
	var spoken []string
	view := &fakeView{}
	d := NewDemux(view, transcript.NewCollector(), nil, nil, func(text string) { spoken = append(spoken, text) }, nil)

	d.Handle([]byte(`{"type":"response.audio_transcript.done","response_id":"r9","transcript":"약을 드세요"}`))
	d.Handle([]byte(`{"type":"response.done","response":{"id":"r9"}}`))

	if !reflect.DeepEqual(spoken, []string{"약을 드세요"}) {
		t.Fatalf("spoken = %v, want exactly one reply", spoken)
	}
}

func TestDemuxDropsMalformedAndUnknown(t *testing.T) {
	d, view, lines := newTestDemux()

	d.Handle([]byte(`{not json`))
	d.Handle([]byte(`{"type":"rate_limits.updated"}`))

	if len(view.lines) != 0 || lines.Len() != 0 {
		t.Fatal("malformed and unknown events must not produce output")
	}
}

func TestDemuxResetClearsDedup(t *testing.T) {
	d, _, lines := newTestDemux()

	d.Handle([]byte(`{"type":"response.audio_transcript.done","response_id":"r3","transcript":"첫 세션"}`))
	d.Reset()
	lines.Reset()
	d.Handle([]byte(`{"type":"response.audio_transcript.done","response_id":"r3","transcript":"둘째 세션"}`))

	if got := lines.Lines(); !reflect.DeepEqual(got, []string{"CarePill: 둘째 세션"}) {
		t.Fatalf("collected = %v", got)
	}
}
