package transcribe

import (
	"errors"
	"math"
	"testing"

	"github.com/snarg/callscribe/internal/dialogue"
)

func prob(v float64) *float64 { return &v }

func TestToSegments_PunctuationPreserved(t *testing.T) {
	// Word tokens lack punctuation, but the segment text has it.
	resp := &Response{Segments: []Segment{{
		Start: 0, End: 1.8, Text: " Hey, it's Jane. How are you?",
		Words: []Word{
			{Word: "Hey", Start: 0.0, End: 0.3, Probability: prob(0.9)},
			{Word: "it's", Start: 0.3, End: 0.5, Probability: prob(0.9)},
			{Word: "Jane", Start: 0.5, End: 0.9, Probability: prob(0.9)},
			{Word: "How", Start: 1.0, End: 1.2, Probability: prob(0.9)},
			{Word: "are", Start: 1.2, End: 1.4, Probability: prob(0.9)},
			{Word: "you", Start: 1.4, End: 1.8, Probability: prob(0.9)},
		},
	}}}

	segs := ToSegments(resp, dialogue.Other, DefaultSegmentOptions())
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Text != "Hey, it's Jane. How are you?" {
		t.Errorf("text = %q", segs[0].Text)
	}
	if segs[0].Channel != dialogue.Other {
		t.Errorf("channel = %s, want other", segs[0].Channel)
	}
}

func TestToSegments_SplitAtPause(t *testing.T) {
	resp := &Response{Segments: []Segment{{
		Start: 0, End: 3.0, Text: "Okay, sure. Talk soon.",
		Words: []Word{
			{Word: "Okay", Start: 0.0, End: 0.4},
			{Word: "sure", Start: 0.5, End: 0.9},
			{Word: "Talk", Start: 2.0, End: 2.4},
			{Word: "soon", Start: 2.5, End: 3.0},
		},
	}}}

	segs := ToSegments(resp, dialogue.Self, DefaultSegmentOptions())
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Text != "Okay, sure." {
		t.Errorf("segment 0: expected %q, got %q", "Okay, sure.", segs[0].Text)
	}
	if segs[0].Start != 0.0 || segs[0].End != 0.9 {
		t.Errorf("segment 0 times = %v-%v", segs[0].Start, segs[0].End)
	}
	if segs[1].Text != "Talk soon." {
		t.Errorf("segment 1: expected %q, got %q", "Talk soon.", segs[1].Text)
	}
	if segs[1].Start != 2.0 {
		t.Errorf("segment 1 start = %v, want 2.0", segs[1].Start)
	}
}

func TestToSegments_SplitDisabled(t *testing.T) {
	resp := &Response{Segments: []Segment{{
		Start: 0, End: 3.0, Text: "a b",
		Words: []Word{
			{Word: "a", Start: 0.0, End: 0.4},
			{Word: "b", Start: 2.5, End: 3.0},
		},
	}}}
	segs := ToSegments(resp, dialogue.Self, SegmentOptions{})
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
}

func TestToSegments_Confidence(t *testing.T) {
	t.Run("mean_word_probability", func(t *testing.T) {
		resp := &Response{Segments: []Segment{{
			Start: 0, End: 1, Text: "hello world",
			AvgLogprob: prob(-0.1),
			Words: []Word{
				{Word: "hello", Start: 0, End: 0.5, Probability: prob(0.8)},
				{Word: "world", Start: 0.5, End: 1, Probability: prob(0.4)},
			},
		}}}
		segs := ToSegments(resp, dialogue.Self, DefaultSegmentOptions())
		if segs[0].Confidence == nil || math.Abs(*segs[0].Confidence-0.6) > 1e-9 {
			t.Errorf("confidence = %v, want 0.6", segs[0].Confidence)
		}
	})

	t.Run("avg_logprob_fallback", func(t *testing.T) {
		resp := &Response{Segments: []Segment{{
			Start: 0, End: 1, Text: "hello", AvgLogprob: prob(-0.5),
		}}}
		segs := ToSegments(resp, dialogue.Self, DefaultSegmentOptions())
		want := math.Exp(-0.5)
		if segs[0].Confidence == nil || math.Abs(*segs[0].Confidence-want) > 1e-9 {
			t.Errorf("confidence = %v, want %v", segs[0].Confidence, want)
		}
	})

	t.Run("none", func(t *testing.T) {
		resp := &Response{Segments: []Segment{{Start: 0, End: 1, Text: "hello"}}}
		segs := ToSegments(resp, dialogue.Self, DefaultSegmentOptions())
		if segs[0].Confidence != nil {
			t.Errorf("confidence = %v, want nil", *segs[0].Confidence)
		}
	})
}

func TestToSegments_LowLogprobIsEvent(t *testing.T) {
	resp := &Response{Segments: []Segment{
		{Start: 0, End: 1, Text: "mumble mumble", AvgLogprob: prob(-1.6)},
		{Start: 2, End: 3, Text: "clear speech", AvgLogprob: prob(-0.2)},
	}}
	segs := ToSegments(resp, dialogue.Other, DefaultSegmentOptions())
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Kind != dialogue.Event {
		t.Errorf("segment 0 kind = %s, want event", segs[0].Kind)
	}
	if segs[1].Kind != dialogue.Speech {
		t.Errorf("segment 1 kind = %s, want speech", segs[1].Kind)
	}
}

func TestToSegments_ProviderEvents(t *testing.T) {
	// Word-only responses (ElevenLabs) with a tagged audio event in the middle.
	resp := &Response{
		Text: "I know (laughter) right",
		Words: []Word{
			{Word: "I", Start: 0.0, End: 0.2},
			{Word: "know", Start: 0.2, End: 0.5},
			{Word: "(laughter)", Start: 0.5, End: 1.2, Event: true},
			{Word: "right", Start: 1.3, End: 1.6},
		},
	}
	segs := ToSegments(resp, dialogue.Self, DefaultSegmentOptions())
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(segs), segs)
	}
	wantText := []string{"I know", "(laughter)", "right"}
	wantKind := []dialogue.Kind{dialogue.Speech, dialogue.Event, dialogue.Speech}
	for i := range segs {
		if segs[i].Text != wantText[i] {
			t.Errorf("segment %d text = %q, want %q", i, segs[i].Text, wantText[i])
		}
		if segs[i].Kind != wantKind[i] {
			t.Errorf("segment %d kind = %s, want %s", i, segs[i].Kind, wantKind[i])
		}
	}
}

func TestToSegments_RepeatedWords(t *testing.T) {
	resp := &Response{Segments: []Segment{{
		Start: 0, End: 3, Text: "no, no. No way.",
		Words: []Word{
			{Word: "no", Start: 0.0, End: 0.2},
			{Word: "no", Start: 0.3, End: 0.5},
			{Word: "No", Start: 2.0, End: 2.2},
			{Word: "way", Start: 2.2, End: 2.6},
		},
	}}}
	segs := ToSegments(resp, dialogue.Self, DefaultSegmentOptions())
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Text != "no, no." || segs[1].Text != "No way." {
		t.Errorf("texts = %q, %q", segs[0].Text, segs[1].Text)
	}
}

func TestToSegments_EmptyTextFallsBackToWords(t *testing.T) {
	resp := &Response{Words: []Word{
		{Word: " hello", Start: 0, End: 0.5},
		{Word: " world", Start: 0.5, End: 1},
	}}
	segs := ToSegments(resp, dialogue.Self, DefaultSegmentOptions())
	if len(segs) != 1 || segs[0].Text != "hello world" {
		t.Fatalf("segments = %+v", segs)
	}
}

func TestToSegments_TextOnly(t *testing.T) {
	resp := &Response{Text: " just text ", Duration: 4}
	segs := ToSegments(resp, dialogue.Other, DefaultSegmentOptions())
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != 4 || segs[0].Text != "just text" {
		t.Errorf("segment = %+v", segs[0])
	}
}

func TestToSegments_PassesMalformedTimesThrough(t *testing.T) {
	resp := &Response{Segments: []Segment{
		{Start: 5, End: 6, Text: "second"},
		{Start: 2, End: 1, Text: "backwards"},
	}}
	segs := ToSegments(resp, dialogue.Self, DefaultSegmentOptions())
	if len(segs) != 2 {
		t.Fatalf("segments = %+v", segs)
	}
	if segs[0].Text != "second" || segs[1].Start != 2 || segs[1].End != 1 {
		t.Errorf("segments were reordered or clamped: %+v", segs)
	}

	var ie *dialogue.InputIntegrityError
	if err := dialogue.ValidateStream(dialogue.Self, segs); !errors.As(err, &ie) {
		t.Errorf("ValidateStream = %v, want *InputIntegrityError", err)
	}
}

func TestToSegments_Nil(t *testing.T) {
	if segs := ToSegments(nil, dialogue.Self, DefaultSegmentOptions()); segs != nil {
		t.Errorf("expected nil, got %v", segs)
	}
}
