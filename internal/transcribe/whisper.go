package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// (speaches, faster-whisper-server, whisper.cpp server, OpenAI).
// Implements the Provider interface.
type WhisperClient struct {
	url     string
	model   string
	timeout time.Duration
	client  *http.Client
}

// TranscribeOpts are per-request options.
// Zero-value fields are omitted from the request, so servers that ignore
// unknown form fields keep working.
type TranscribeOpts struct {
	Temperature float64
	Language    string
	Prompt      string // domain vocabulary
	Hotwords    string // comma-separated boost terms

	BeamSize int // 0 = server default

	// VAD
	VadFilter            bool
	VadThreshold         float64 // 0 = server default
	MinSilenceDurationMs int
	SpeechPadMs          int
}

// DefaultTranscribeOpts mirrors the decoding settings tuned for phone calls:
// a tighter VAD so one utterance is not glued across pauses.
func DefaultTranscribeOpts() TranscribeOpts {
	return TranscribeOpts{
		Language:             "en",
		BeamSize:             5,
		VadFilter:            true,
		VadThreshold:         0.6,
		MinSilenceDurationMs: 220,
		SpeechPadMs:          80,
	}
}

// whisperResponse is the verbose_json response body.
type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Segments []whisperSegment `json:"segments"`
	Words    []whisperWord    `json:"words"`
}

type whisperSegment struct {
	Start        float64       `json:"start"`
	End          float64       `json:"end"`
	Text         string        `json:"text"`
	AvgLogprob   *float64      `json:"avg_logprob"`
	NoSpeechProb *float64      `json:"no_speech_prob"`
	Words        []whisperWord `json:"words"`
}

type whisperWord struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability"`
}

// NewWhisperClient creates a new Whisper HTTP client.
func NewWhisperClient(url, model string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:     url,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (wc *WhisperClient) Name() string { return "whisper" }

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends one mono channel to the Whisper API and returns segment
// and word level timestamps.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if wc.model != "" {
		w.WriteField("model", wc.model)
	}

	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	w.WriteField("language", lang)
	w.WriteField("temperature", fmt.Sprintf("%.2f", opts.Temperature))

	// verbose_json carries avg_logprob per segment; ask for both granularities.
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "segment")
	w.WriteField("timestamp_granularities[]", "word")

	if opts.Prompt != "" {
		w.WriteField("prompt", opts.Prompt)
	}
	if opts.Hotwords != "" {
		w.WriteField("hotwords", opts.Hotwords)
	}
	if opts.BeamSize > 0 {
		w.WriteField("beam_size", strconv.Itoa(opts.BeamSize))
	}
	if opts.VadFilter {
		w.WriteField("vad_filter", "true")
		if params := vadParameters(opts); params != "" {
			w.WriteField("vad_parameters", params)
		}
	}

	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.toResponse(), nil
}

func (r *whisperResponse) toResponse() *Response {
	out := &Response{
		Text:     r.Text,
		Language: r.Language,
		Duration: r.Duration,
		Words:    convertWhisperWords(r.Words),
	}
	for _, s := range r.Segments {
		seg := Segment{
			Start:        s.Start,
			End:          s.End,
			Text:         s.Text,
			AvgLogprob:   s.AvgLogprob,
			NoSpeechProb: s.NoSpeechProb,
			Words:        convertWhisperWords(s.Words),
		}
		// Servers that only return top-level words: attach them by time.
		if len(seg.Words) == 0 && len(out.Words) > 0 {
			seg.Words = wordsWithin(out.Words, s.Start, s.End)
		}
		out.Segments = append(out.Segments, seg)
	}
	return out
}

func convertWhisperWords(in []whisperWord) []Word {
	if len(in) == 0 {
		return nil
	}
	out := make([]Word, len(in))
	for i, w := range in {
		out[i] = Word{Word: w.Word, Start: w.Start, End: w.End, Probability: w.Probability}
	}
	return out
}

// wordsWithin returns the words whose midpoint falls in [start, end).
func wordsWithin(words []Word, start, end float64) []Word {
	var out []Word
	for _, w := range words {
		mid := (w.Start + w.End) / 2
		if mid >= start && mid < end {
			out = append(out, w)
		}
	}
	return out
}

func vadParameters(opts TranscribeOpts) string {
	params := map[string]any{}
	if opts.VadThreshold > 0 {
		params["threshold"] = opts.VadThreshold
	}
	if opts.MinSilenceDurationMs > 0 {
		params["min_silence_duration_ms"] = opts.MinSilenceDurationMs
	}
	if opts.SpeechPadMs > 0 {
		params["speech_pad_ms"] = opts.SpeechPadMs
	}
	if len(params) == 0 {
		return ""
	}
	b, _ := json.Marshal(params)
	return string(b)
}
