package dialogue

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
)

// DialogueLine is one finalized, labeled output unit.
type DialogueLine struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Channel Channel `json:"-"`
	Kind    Kind    `json:"-"`
}

// Header is the optional LRC metadata written above the dialogue lines.
type Header struct {
	Title   string
	Artists string
}

// Lines returns the [ti:] and [ar:] tag lines for the non-empty fields.
func (h Header) Lines() []string {
	var out []string
	if t := oneLine(h.Title); t != "" {
		out = append(out, "[ti:"+t+"]")
	}
	if a := oneLine(h.Artists); a != "" {
		out = append(out, "[ar:"+a+"]")
	}
	return out
}

// FormatTimestamp renders seconds as [MM:SS.ss]. The minutes field grows past
// two digits instead of wrapping; negative or NaN input renders as zero.
func FormatTimestamp(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	cs := int64(math.Round(sec * 100))
	minutes := cs / 6000
	cs %= 6000
	return fmt.Sprintf("[%02d:%02d.%02d]", minutes, cs/100, cs%100)
}

// FormatLine renders one dialogue line as "[MM:SS.ss] Speaker: text".
func FormatLine(l DialogueLine) string {
	return FormatTimestamp(l.Start) + " " + oneLine(l.Speaker) + ": " + oneLine(l.Text)
}

// Render returns the header tags followed by one formatted line per entry,
// in the order given.
func Render(h Header, lines []DialogueLine) []string {
	out := h.Lines()
	for _, l := range lines {
		out = append(out, FormatLine(l))
	}
	return out
}

// Write renders the transcript to w, one line per row with a trailing newline.
func Write(w io.Writer, h Header, lines []DialogueLine) error {
	bw := bufio.NewWriter(w)
	for _, row := range Render(h, lines) {
		if _, err := bw.WriteString(row); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// oneLine keeps multi-line recognizer text from breaking the line format.
func oneLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(s), " ")
}
