package dialogue

import (
	"regexp"
	"strings"
)

// IndistinctLabel marks an event the recognizer could not put a name to.
const IndistinctLabel = "indistinct"

var (
	reWordLike = regexp.MustCompile(`[\p{L}\p{N}]`)
	reAside    = regexp.MustCompile(`\[([^\]]*)\]|\(([^)]*)\)`)
)

// Classify decides a segment's kind before coalescing. Segments already
// tagged Event keep their kind. Speech becomes Event when its confidence is
// below threshold, when it has no letters or digits, or when the whole text
// is one bracketed tag such as "[laughter]". Event text is normalized to a
// bare label. Applying Classify twice gives the same result as once.
func Classify(s Segment, threshold float64) Segment {
	text := strings.TrimSpace(s.Text)
	if s.Kind == Speech {
		switch {
		case s.Confidence != nil && *s.Confidence < threshold:
			s.Kind = Event
		case !reWordLike.MatchString(text):
			s.Kind = Event
		case isWrappedTag(text):
			s.Kind = Event
		}
	}
	if s.Kind == Event {
		s.Text = EventLabel(text)
	} else {
		s.Text = text
	}
	return s
}

// EventLabel strips any *...*, [...] or (...) wrapping from an event label.
func EventLabel(text string) string {
	label := strings.TrimSpace(text)
	for len(label) >= 2 {
		first, last := label[0], label[len(label)-1]
		if (first == '*' && last == '*') || (first == '[' && last == ']') || (first == '(' && last == ')') {
			label = strings.TrimSpace(label[1 : len(label)-1])
			continue
		}
		break
	}
	return strings.Trim(label, "*")
}

func isWrappedTag(text string) bool {
	if len(text) < 2 {
		return false
	}
	first, last := text[0], text[len(text)-1]
	switch {
	case first == '[' && last == ']':
		return !strings.ContainsAny(text[1:len(text)-1], "[]")
	case first == '(' && last == ')':
		return !strings.ContainsAny(text[1:len(text)-1], "()")
	case first == '*' && last == '*':
		return !strings.Contains(text[1:len(text)-1], "*")
	}
	return false
}

// Annotate renders the text of a labeled line. Event labels are wrapped as
// *label* (an empty label becomes *indistinct*); bracketed asides inside
// speech become *aside*. Re-annotating an annotated line changes nothing.
// It reports false when the line has no text left and must be dropped.
func Annotate(l DialogueLine) (DialogueLine, bool) {
	if l.Kind == Event {
		label := EventLabel(l.Text)
		if label == "" {
			label = IndistinctLabel
		}
		l.Text = "*" + label + "*"
		return l, true
	}

	text := reAside.ReplaceAllStringFunc(l.Text, func(m string) string {
		inner := strings.TrimSpace(m[1 : len(m)-1])
		if inner == "" {
			return " "
		}
		return " *" + inner + "* "
	})
	l.Text = strings.Join(strings.Fields(text), " ")
	return l, l.Text != ""
}
