package dialogue

import "strings"

// gapTolerance absorbs float subtraction error so a gap that is nominally
// equal to the threshold still merges.
const gapTolerance = 1e-6

// Coalesce merges consecutive same-kind segments of one channel whose gap
// (next.Start - prev.End) is at most gap seconds. Voice-activity detection
// tends to split a breath-paused sentence; merging restores the utterance
// before the two channels are interleaved.
//
// Speech joins Speech with a single space. Event joins Event by listing
// labels with ", ", skipping a label identical to the one before it. Speech
// and Event never merge, so an event between two speech fragments keeps them
// apart. The input must already satisfy ValidateStream; the result is a new
// slice and the input is not modified.
func Coalesce(segs []Segment, gap float64) []Segment {
	if len(segs) == 0 {
		return nil
	}

	out := make([]Segment, 0, len(segs))
	cur := segs[0]
	for i := 1; i < len(segs); i++ {
		next := segs[i]
		if next.Kind == cur.Kind && next.Start-cur.End <= gap+gapTolerance {
			cur = join(cur, next)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

func join(a, b Segment) Segment {
	merged := Segment{
		Start:      a.Start,
		End:        a.End,
		Channel:    a.Channel,
		Kind:       a.Kind,
		Confidence: weightedConfidence(a, b),
	}
	if b.End > merged.End {
		merged.End = b.End
	}

	at, bt := strings.TrimSpace(a.Text), strings.TrimSpace(b.Text)
	switch {
	case at == "":
		merged.Text = bt
	case bt == "":
		merged.Text = at
	case a.Kind == Event:
		merged.Text = joinLabels(at, bt)
	default:
		merged.Text = at + " " + bt
	}
	return merged
}

// joinLabels appends label b to the ", "-separated list a unless it repeats
// the last label already there.
func joinLabels(a, b string) string {
	last := a
	if i := strings.LastIndex(a, ", "); i >= 0 {
		last = a[i+2:]
	}
	if strings.EqualFold(last, b) {
		return a
	}
	return a + ", " + b
}

// weightedConfidence averages the two scores by duration. A missing score
// defers to the other; zero-length segments count equally.
func weightedConfidence(a, b Segment) *float64 {
	switch {
	case a.Confidence == nil && b.Confidence == nil:
		return nil
	case a.Confidence == nil:
		return Conf(*b.Confidence)
	case b.Confidence == nil:
		return Conf(*a.Confidence)
	}
	wa, wb := a.Duration(), b.Duration()
	if wa+wb <= 0 {
		wa, wb = 1, 1
	}
	return Conf((*a.Confidence*wa + *b.Confidence*wb) / (wa + wb))
}
