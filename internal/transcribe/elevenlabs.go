package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API.
// Implements the Provider interface.
type ElevenLabsClient struct {
	apiKey   string
	model    string // "scribe_v1" or "scribe_v2"
	keyterms string // comma-separated boost terms
	endpoint string
	client   *http.Client
}

type elevenlabsResponse struct {
	LanguageCode        string           `json:"language_code"`
	LanguageProbability float64          `json:"language_probability"`
	Text                string           `json:"text"`
	Words               []elevenlabsWord `json:"words"`
}

// elevenlabsWord is a word, spacing or audio_event entry.
type elevenlabsWord struct {
	Text    string   `json:"text"`
	Type    string   `json:"type"`
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Logprob *float64 `json:"logprob"`
}

// NewElevenLabsClient creates a new ElevenLabs STT client.
func NewElevenLabsClient(apiKey, model, keyterms string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:   apiKey,
		model:    model,
		keyterms: keyterms,
		endpoint: elevenLabsSTTEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Model returns the configured model identifier.
func (el *ElevenLabsClient) Model() string { return el.model }

// Transcribe sends one mono channel to the ElevenLabs STT API. Audio events
// (laughter, coughing) come back as words tagged Event.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
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

	w.WriteField("model_id", el.model)

	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	w.WriteField("language_code", lang)
	w.WriteField("timestamps_granularity", "word")
	w.WriteField("tag_audio_events", "true")
	// One speaker per channel; diarization would only split a single party.
	w.WriteField("diarize", "false")

	if keyterms := el.buildKeyterms(opts.Hotwords); keyterms != "" {
		w.WriteField("keyterms", keyterms)
	}

	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, el.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var words []Word
	var duration float64
	for _, ew := range result.Words {
		if ew.End > duration {
			duration = ew.End
		}
		switch ew.Type {
		case "word", "audio_event":
		default:
			continue
		}
		word := Word{
			Word:  ew.Text,
			Start: ew.Start,
			End:   ew.End,
			Event: ew.Type == "audio_event",
		}
		if ew.Logprob != nil {
			p := math.Exp(*ew.Logprob)
			word.Probability = &p
		}
		words = append(words, word)
	}

	return &Response{
		Text:     result.Text,
		Language: result.LanguageCode,
		Duration: duration,
		Words:    words,
	}, nil
}

// buildKeyterms merges config-level keyterms with per-request hotwords into a
// JSON array of {"text": "term"} objects for the ElevenLabs API.
func (el *ElevenLabsClient) buildKeyterms(hotwords string) string {
	var terms []string
	for _, src := range []string{el.keyterms, hotwords} {
		for _, t := range strings.Split(src, ",") {
			if t = strings.TrimSpace(t); t != "" {
				terms = append(terms, t)
			}
		}
	}
	if len(terms) == 0 {
		return ""
	}

	type keyterm struct {
		Text string `json:"text"`
	}
	arr := make([]keyterm, len(terms))
	for i, t := range terms {
		arr[i] = keyterm{Text: t}
	}
	b, _ := json.Marshal(arr)
	return string(b)
}
