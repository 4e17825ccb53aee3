package transcribe

import "context"

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "whisper", "elevenlabs"
	Model() string // model identifier for logs and the transcript index
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64   // audio duration in seconds
	Segments []Segment // recognizer segments, nil if the provider only returns words
	Words    []Word    // nil if provider doesn't support word timestamps
}

// Segment is a recognizer-level segment with its scoring metadata.
type Segment struct {
	Start        float64
	End          float64
	Text         string
	AvgLogprob   *float64
	NoSpeechProb *float64
	Words        []Word // words inside this segment, when available
}

// Word is a timestamped word from any STT provider.
type Word struct {
	Word        string
	Start       float64  // seconds
	End         float64  // seconds
	Probability *float64 // nil if the provider gives none
	Event       bool     // provider tagged this token as a non-speech audio event
}
