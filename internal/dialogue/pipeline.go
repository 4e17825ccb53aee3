package dialogue

import (
	"math"
	"strconv"
)

const (
	// DefaultMergeGap is the largest pause (seconds) bridged when coalescing.
	DefaultMergeGap = 0.8
	// DefaultEventConfidence is the confidence below which speech is treated
	// as an indistinct event.
	DefaultEventConfidence = 0.40
)

// Options is the per-run configuration passed into Build.
type Options struct {
	MergeGap        float64
	EventConfidence float64
	Speakers        SpeakerMap
}

// DefaultOptions returns Options with the default thresholds and speakers.
func DefaultOptions(speakers SpeakerMap) Options {
	return Options{
		MergeGap:        DefaultMergeGap,
		EventConfidence: DefaultEventConfidence,
		Speakers:        speakers,
	}
}

func (o Options) validate() error {
	if math.IsNaN(o.MergeGap) || math.IsInf(o.MergeGap, 0) || o.MergeGap < 0 {
		return &ConfigError{Field: "merge-gap", Value: strconv.FormatFloat(o.MergeGap, 'g', -1, 64), Reason: "must be a finite number >= 0"}
	}
	if math.IsNaN(o.EventConfidence) || o.EventConfidence < 0 || o.EventConfidence > 1 {
		return &ConfigError{Field: "event-confidence", Value: strconv.FormatFloat(o.EventConfidence, 'g', -1, 64), Reason: "must be within [0,1]"}
	}
	if o.Speakers.Self == "" || o.Speakers.Other == "" {
		return &ConfigError{Field: "speakers", Reason: "speaker map is not resolved"}
	}
	if _, err := ParseSide(string(o.Speakers.OtherOn)); err != nil {
		return err
	}
	return nil
}

// Stats counts what happened to the segments during Build.
type Stats struct {
	SelfSegments   int `json:"self_segments"`
	OtherSegments  int `json:"other_segments"`
	SelfCoalesced  int `json:"self_coalesced"`
	OtherCoalesced int `json:"other_coalesced"`
	Events         int `json:"events"`
	Dropped        int `json:"dropped"`
	Lines          int `json:"lines"`
}

// Result is the ordered dialogue produced by Build.
type Result struct {
	Lines []DialogueLine
	Stats Stats
}

// Build runs the whole merge: validate both raw streams, classify events,
// coalesce each channel, interleave, attach speaker names and annotate.
// Any error means no lines at all; a partial transcript is never returned.
func Build(self, other []Segment, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := ValidateStream(Self, self); err != nil {
		return nil, err
	}
	if err := ValidateStream(Other, other); err != nil {
		return nil, err
	}

	selfC := Coalesce(classifyAll(self, opts.EventConfidence), opts.MergeGap)
	otherC := Coalesce(classifyAll(other, opts.EventConfidence), opts.MergeGap)
	merged := Interleave(selfC, otherC)

	res := &Result{
		Lines: make([]DialogueLine, 0, len(merged)),
		Stats: Stats{
			SelfSegments:   len(self),
			OtherSegments:  len(other),
			SelfCoalesced:  len(selfC),
			OtherCoalesced: len(otherC),
		},
	}
	for _, seg := range merged {
		line, ok := Annotate(opts.Speakers.Line(seg))
		if !ok {
			res.Stats.Dropped++
			continue
		}
		if line.Kind == Event {
			res.Stats.Events++
		}
		res.Lines = append(res.Lines, line)
	}
	res.Stats.Lines = len(res.Lines)
	return res, nil
}

// Line attaches the display name for the segment's channel.
func (m SpeakerMap) Line(s Segment) DialogueLine {
	return DialogueLine{
		Start:   s.Start,
		End:     s.End,
		Speaker: m.Name(s.Channel),
		Text:    s.Text,
		Channel: s.Channel,
		Kind:    s.Kind,
	}
}

func classifyAll(segs []Segment, threshold float64) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = Classify(s, threshold)
	}
	return out
}
