// Package dialogue turns two per-channel streams of recognized speech into a
// single ordered, speaker-labeled transcript.
//
// Everything in this package is pure: no I/O, no logging, no goroutines.
// Given identical inputs it produces byte-identical output.
package dialogue

import (
	"fmt"
	"math"
)

// Channel identifies which party a segment belongs to.
type Channel int

const (
	// Self is the recording party.
	Self Channel = iota
	// Other is the counterpart on the call.
	Other
)

func (c Channel) String() string {
	switch c {
	case Self:
		return "self"
	case Other:
		return "other"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Kind distinguishes recognized speech from non-speech events.
type Kind int

const (
	Speech Kind = iota
	// Event is laughter, noise, or audio too indistinct to transcribe.
	Event
)

func (k Kind) String() string {
	if k == Event {
		return "event"
	}
	return "speech"
}

// Segment is one timestamped unit of recognized audio on one channel.
// Times are seconds relative to the start of that channel's audio.
type Segment struct {
	Start   float64
	End     float64
	Text    string
	Channel Channel
	Kind    Kind

	// Confidence is a normalized [0,1] score, nil when the recognizer gave none.
	Confidence *float64
}

// Duration returns End - Start.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Conf returns a pointer to v, for building segments with a confidence score.
func Conf(v float64) *float64 { return &v }

// ValidateStream checks one channel's raw stream: every segment must have
// finite, non-negative times with start <= end, carry the expected channel,
// and appear in non-decreasing start order.
func ValidateStream(ch Channel, segs []Segment) error {
	prev := math.Inf(-1)
	for i, s := range segs {
		switch {
		case math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0):
			return &InputIntegrityError{Channel: ch, Index: i, Reason: "non-finite timestamp"}
		case s.Start < 0 || s.End < 0:
			return &InputIntegrityError{Channel: ch, Index: i, Reason: fmt.Sprintf("negative time (start=%.3f end=%.3f)", s.Start, s.End)}
		case s.Start > s.End:
			return &InputIntegrityError{Channel: ch, Index: i, Reason: fmt.Sprintf("start %.3f after end %.3f", s.Start, s.End)}
		case s.Channel != ch:
			return &InputIntegrityError{Channel: ch, Index: i, Reason: fmt.Sprintf("segment tagged %s in %s stream", s.Channel, ch)}
		case s.Start < prev:
			return &InputIntegrityError{Channel: ch, Index: i, Reason: fmt.Sprintf("start %.3f before previous start %.3f", s.Start, prev)}
		}
		prev = s.Start
	}
	return nil
}
