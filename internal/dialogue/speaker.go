package dialogue

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultSelfName labels the recording party.
	DefaultSelfName = "You"
	// FallbackOtherName labels the counterpart when nothing better is known.
	FallbackOtherName = "Other"
)

// Side is a physical channel of the stereo recording.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// ParseSide validates an other-on value.
func ParseSide(v string) (Side, error) {
	switch s := Side(strings.ToLower(strings.TrimSpace(v))); s {
	case Left, Right:
		return s, nil
	}
	return "", &ConfigError{Field: "other-on", Value: v, Reason: "must be left or right"}
}

// SpeakerMap is the fixed two-entry mapping from channel to display name,
// plus which physical side carries the Other party.
type SpeakerMap struct {
	Self    string
	Other   string
	OtherOn Side
}

// Name returns the display name for a channel.
func (m SpeakerMap) Name(c Channel) string {
	if c == Other {
		return m.Other
	}
	return m.Self
}

// ChannelOf returns which party is recorded on the given physical side.
func (m SpeakerMap) ChannelOf(side Side) Channel {
	if side == m.OtherOn {
		return Other
	}
	return Self
}

// NameOf returns the display name recorded on the given physical side.
func (m SpeakerMap) NameOf(side Side) string {
	return m.Name(m.ChannelOf(side))
}

// SpeakerOptions is the raw naming configuration for one run.
type SpeakerOptions struct {
	OtherOn   string
	SelfName  string
	OtherName string // explicit override, may be empty
	InputName string // input file name used for inference
}

// SpeakerResolution is the resolved map and where the Other name came from.
type SpeakerResolution struct {
	Map SpeakerMap
	// OtherSource is "override", "filename" or "fallback".
	OtherSource string
}

// ResolveSpeakers computes the SpeakerMap once per run. The Other name comes
// from the explicit override, then the input file name, then the fallback.
func ResolveSpeakers(opts SpeakerOptions) (SpeakerResolution, error) {
	side, err := ParseSide(opts.OtherOn)
	if err != nil {
		return SpeakerResolution{}, err
	}

	self := strings.TrimSpace(opts.SelfName)
	if opts.SelfName == "" {
		self = DefaultSelfName
	}
	if self == "" {
		return SpeakerResolution{}, &ConfigError{Field: "you-name", Value: opts.SelfName, Reason: "must not be blank"}
	}

	res := SpeakerResolution{Map: SpeakerMap{Self: self, OtherOn: side}}
	override := strings.TrimSpace(opts.OtherName)
	switch {
	case override != "":
		if strings.EqualFold(override, self) {
			return SpeakerResolution{}, &ConfigError{Field: "other-name", Value: opts.OtherName, Reason: "conflicts with you-name"}
		}
		res.Map.Other, res.OtherSource = override, "override"
	default:
		if name, ok := InferOtherName(opts.InputName); ok {
			res.Map.Other, res.OtherSource = name, "filename"
		} else {
			res.Map.Other, res.OtherSource = FallbackOtherName, "fallback"
		}
	}
	return res, nil
}

var (
	// Tel-From-Jane_Doe-2025-08-07-18-15-48.m4a
	reDatedCallName = regexp.MustCompile(`^[^-]+-(?:From|To)-(.+?)-\d{4}-\d{2}-\d{2}`)
	// Tel-To-John_Smith-anything
	reCallName = regexp.MustCompile(`^[^-]+-(?:From|To)-([^-]+)-.`)
)

// InferOtherName parses the counterpart's name from a recorder file name of
// the form <Prefix>-<From|To>-<Name>-<rest>. Underscores in the name become
// spaces. When a date follows the name, the name may itself contain hyphens.
func InferOtherName(path string) (string, bool) {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return "", false
	}

	m := reDatedCallName.FindStringSubmatch(base)
	if m == nil {
		m = reCallName.FindStringSubmatch(base)
	}
	if m == nil {
		return "", false
	}
	name := strings.Join(strings.Fields(strings.ReplaceAll(m[1], "_", " ")), " ")
	if name == "" {
		return "", false
	}
	return name, true
}
