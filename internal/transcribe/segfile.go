package transcribe

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/snarg/callscribe/internal/dialogue"
)

// segmentRecord is one entry of a pre-recognized segment file.
type segmentRecord struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Event      bool     `json:"event,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ReadSegments decodes a JSON array of segments for one channel. Records are
// returned in file order; ordering and time checks are left to the merge.
func ReadSegments(r io.Reader, ch dialogue.Channel) ([]dialogue.Segment, error) {
	var recs []segmentRecord
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode %s segments: %w", ch, err)
	}

	segs := make([]dialogue.Segment, len(recs))
	for i, rec := range recs {
		segs[i] = dialogue.Segment{
			Start:      rec.Start,
			End:        rec.End,
			Text:       rec.Text,
			Channel:    ch,
			Confidence: rec.Confidence,
		}
		if rec.Event {
			segs[i].Kind = dialogue.Event
		}
	}
	return segs, nil
}

// LoadSegments reads a segment file from disk.
func LoadSegments(path string, ch dialogue.Channel) ([]dialogue.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment file: %w", err)
	}
	defer f.Close()
	return ReadSegments(f, ch)
}
