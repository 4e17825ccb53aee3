package dialogue

// Interleave merges the coalesced Self and Other streams into one sequence
// ordered by non-decreasing start time.
//
// It is a stable two-index merge: segments from the same channel keep their
// relative order. When two heads start at exactly the same time the Other
// segment is emitted first. Overlapping segments from different channels are
// crosstalk and are emitted whole, one after the other; nothing is split or
// truncated.
func Interleave(self, other []Segment) []Segment {
	out := make([]Segment, 0, len(self)+len(other))
	i, j := 0, 0
	for i < len(self) && j < len(other) {
		if self[i].Start < other[j].Start {
			out = append(out, self[i])
			i++
		} else {
			out = append(out, other[j])
			j++
		}
	}
	out = append(out, self[i:]...)
	return append(out, other[j:]...)
}
