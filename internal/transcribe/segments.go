package transcribe

import (
	"math"
	"strings"

	"github.com/snarg/callscribe/internal/dialogue"
)

// SegmentOptions controls how a recognizer response is cut into dialogue
// segments.
type SegmentOptions struct {
	// SplitGap splits a recognizer segment wherever two consecutive words are
	// at least this many seconds apart. 0 disables splitting.
	SplitGap float64
	// MinLogprob marks a recognizer segment as indistinct when its
	// avg_logprob is below this value. 0 disables the check.
	MinLogprob float64
}

// DefaultSegmentOptions returns the splitting thresholds tuned for phone audio.
func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{SplitGap: 0.40, MinLogprob: -1.2}
}

// ToSegments converts one channel's recognizer response into dialogue
// segments in the recognizer's order. Word timestamps are preferred;
// segments without words are used as-is. Segment text is sliced from the
// recognizer's own text so punctuation missing from word tokens survives.
// Times are passed through untouched: a backwards or out-of-order stream is
// rejected by dialogue.Build rather than repaired here.
func ToSegments(resp *Response, ch dialogue.Channel, opts SegmentOptions) []dialogue.Segment {
	if resp == nil {
		return nil
	}

	var out []dialogue.Segment
	switch {
	case len(resp.Segments) > 0:
		for _, rs := range resp.Segments {
			out = append(out, fromRecognizerSegment(rs, ch, opts)...)
		}
	case len(resp.Words) > 0:
		out = groupWords(resp.Words, resp.Text, ch, opts.SplitGap)
	case strings.TrimSpace(resp.Text) != "":
		out = []dialogue.Segment{{
			Start:   0,
			End:     resp.Duration,
			Text:    strings.TrimSpace(resp.Text),
			Channel: ch,
		}}
	}

	return out
}

func fromRecognizerSegment(rs Segment, ch dialogue.Channel, opts SegmentOptions) []dialogue.Segment {
	indistinct := opts.MinLogprob != 0 && rs.AvgLogprob != nil && *rs.AvgLogprob < opts.MinLogprob

	if len(rs.Words) == 0 {
		text := strings.TrimSpace(rs.Text)
		if text == "" {
			return nil
		}
		seg := dialogue.Segment{Start: rs.Start, End: rs.End, Text: text, Channel: ch}
		if rs.AvgLogprob != nil {
			seg.Confidence = dialogue.Conf(clamp01(math.Exp(*rs.AvgLogprob)))
		}
		if indistinct {
			seg.Kind = dialogue.Event
		}
		return []dialogue.Segment{seg}
	}

	segs := groupWords(rs.Words, rs.Text, ch, opts.SplitGap)
	for i := range segs {
		if segs[i].Confidence == nil && rs.AvgLogprob != nil {
			segs[i].Confidence = dialogue.Conf(clamp01(math.Exp(*rs.AvgLogprob)))
		}
		if indistinct {
			segs[i].Kind = dialogue.Event
		}
	}
	return segs
}

type wordGroup struct {
	first, last int
	start, end  float64
	event       bool
}

// groupWords cuts a word run at pauses of splitGap or more and wherever
// speech and provider-tagged events meet.
func groupWords(words []Word, fullText string, ch dialogue.Channel, splitGap float64) []dialogue.Segment {
	if len(words) == 0 {
		return nil
	}

	var groups []wordGroup
	g := wordGroup{start: words[0].Start, end: words[0].End, event: words[0].Event}
	for i := 1; i < len(words); i++ {
		w := words[i]
		pause := w.Start - g.end
		if w.Event != g.event || (splitGap > 0 && pause >= splitGap) {
			groups = append(groups, g)
			g = wordGroup{first: i, last: i, start: w.Start, end: w.End, event: w.Event}
			continue
		}
		g.last = i
		if w.End > g.end {
			g.end = w.End
		}
	}
	groups = append(groups, g)

	var positions []int
	if strings.TrimSpace(fullText) != "" {
		positions = mapWordPositions(words, fullText)
	}

	out := make([]dialogue.Segment, 0, len(groups))
	for i, grp := range groups {
		var text string
		if positions != nil {
			end := len(fullText)
			if i+1 < len(groups) {
				end = positions[groups[i+1].first]
			}
			text = strings.TrimSpace(fullText[positions[grp.first]:end])
		}
		if text == "" {
			text = joinWords(words[grp.first : grp.last+1])
		}
		if text == "" {
			continue
		}
		seg := dialogue.Segment{
			Start:      grp.start,
			End:        grp.end,
			Text:       text,
			Channel:    ch,
			Confidence: meanProbability(words[grp.first : grp.last+1]),
		}
		if grp.event {
			seg.Kind = dialogue.Event
		}
		out = append(out, seg)
	}
	return out
}

// mapWordPositions maps each word token to its byte offset in fullText using
// sequential case-insensitive forward scanning. Each word is matched once,
// advancing past previous matches so repeated words land correctly.
// Offsets never decrease.
func mapWordPositions(words []Word, fullText string) []int {
	positions := make([]int, len(words))
	lower := strings.ToLower(fullText)
	searchFrom := 0

	for i, w := range words {
		wLower := strings.ToLower(strings.TrimSpace(w.Word))
		idx := -1
		if wLower != "" {
			idx = strings.Index(lower[searchFrom:], wLower)
		}
		if idx >= 0 {
			positions[i] = searchFrom + idx
			searchFrom += idx + len(wLower)
		} else {
			positions[i] = searchFrom
		}
	}
	return positions
}

func joinWords(words []Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if t := strings.TrimSpace(w.Word); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func meanProbability(words []Word) *float64 {
	var sum float64
	var n int
	for _, w := range words {
		if w.Probability != nil {
			sum += *w.Probability
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return dialogue.Conf(clamp01(sum / float64(n)))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
