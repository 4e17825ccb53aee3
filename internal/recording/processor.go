// Package recording runs one call recording through the whole conversion:
// split the stereo file, recognize both channels, merge them into a
// dialogue, then store, index and announce the transcript.
package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/callscribe/internal/audio"
	"github.com/snarg/callscribe/internal/database"
	"github.com/snarg/callscribe/internal/dialogue"
	"github.com/snarg/callscribe/internal/metrics"
	"github.com/snarg/callscribe/internal/storage"
	"github.com/snarg/callscribe/internal/transcribe"
)

// Indexer records finished transcripts, satisfied by *database.DB.
type Indexer interface {
	UpsertTranscript(ctx context.Context, row *database.TranscriptRow) (uuid.UUID, error)
}

// Notifier announces finished and failed recordings, satisfied by
// *mqttclient.Client and *events.Bus.
type Notifier interface {
	Publish(suffix string, payload any) error
}

// Notification suffixes.
const (
	TopicTranscript = "transcript"
	TopicFailed     = "failed"
)

type fanOut []Notifier

// FanOut returns a Notifier that publishes to every non-nil n. The first
// error is returned after all have been tried.
func FanOut(ns ...Notifier) Notifier {
	var out fanOut
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (f fanOut) Publish(suffix string, payload any) error {
	var first error
	for _, n := range f {
		if err := n.Publish(suffix, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ProcessorOptions configures a Processor. Provider is required unless
// every input carries pre-recognized segments. Store, Index and Notify are
// optional.
type ProcessorOptions struct {
	Provider       transcribe.Provider
	TranscribeOpts transcribe.TranscribeOpts
	Split          transcribe.SplitOptions
	Segments       transcribe.SegmentOptions

	OtherOn         string
	SelfName        string
	OtherName       string
	MergeGap        float64
	EventConfidence float64
	Headers         bool

	// KeyRoot is the inbox root; store keys keep a recording's path below it.
	KeyRoot string

	Store  storage.TranscriptStore
	Index  Indexer
	Notify Notifier
	Log    zerolog.Logger
}

// Processor converts recordings into transcripts.
type Processor struct {
	opts  ProcessorOptions
	split func(ctx context.Context, inputPath string, opts transcribe.SplitOptions) (*transcribe.SplitResult, error)
	log   zerolog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	return &Processor{
		opts:  opts,
		split: transcribe.SplitStereo,
		log:   opts.Log.With().Str("component", "processor").Logger(),
	}
}

// Input names one recording to convert.
type Input struct {
	ID        uuid.UUID // zero: a new ID is assigned
	AudioPath string    // recording path, also used for name inference and the title

	// Pre-recognized segments per physical side. When Segmented is set the
	// audio is never split or sent to a recognizer.
	Segmented bool
	Left      []dialogue.Segment
	Right     []dialogue.Segment

	// OutputKey is the store key; default is the recording's path below
	// KeyRoot with a .lrc extension.
	OutputKey string
}

// Outcome describes a finished recording.
type Outcome struct {
	ID          uuid.UUID
	InputPath   string
	OutputKey   string
	OutputPath  string // local path when the store keeps one
	Speakers    dialogue.SpeakerResolution
	Stats       dialogue.Stats
	Lines       []dialogue.DialogueLine
	Body        []byte
	Language    string
	Duration    float64
	Elapsed     time.Duration
	IndexFailed bool
}

// Completion is the JSON message published when a transcript is ready.
type Completion struct {
	ID          uuid.UUID      `json:"id"`
	Input       string         `json:"input"`
	Output      string         `json:"output"`
	SelfName    string         `json:"self_name"`
	OtherName   string         `json:"other_name"`
	OtherSource string         `json:"other_source"`
	Lines       int            `json:"lines"`
	Events      int            `json:"events"`
	Stats       dialogue.Stats `json:"stats"`
	ElapsedMs   int64          `json:"elapsed_ms"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// Failure is the JSON message published when a recording could not be
// converted.
type Failure struct {
	ID       uuid.UUID `json:"id"`
	Input    string    `json:"input"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Process converts one recording. Either a complete transcript is produced
// and stored or an error is returned and nothing is written.
func (p *Processor) Process(ctx context.Context, in Input) (*Outcome, error) {
	start := time.Now()
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	out, err := p.process(ctx, in)
	if err != nil {
		label := outcomeLabel(err)
		metrics.RecordingsTotal.WithLabelValues(label).Inc()
		p.publish(in.AudioPath, TopicFailed, Failure{
			ID:       in.ID,
			Input:    in.AudioPath,
			Outcome:  label,
			Error:    err.Error(),
			FailedAt: time.Now().UTC(),
		})
		return nil, err
	}
	out.Elapsed = time.Since(start)
	metrics.RecordingsTotal.WithLabelValues("ok").Inc()

	p.index(ctx, out)
	p.notify(out)

	p.log.Info().
		Str("id", out.ID.String()).
		Str("input", out.InputPath).
		Str("output", out.OutputKey).
		Str("other", out.Speakers.Map.Other).
		Str("other_source", out.Speakers.OtherSource).
		Int("lines", out.Stats.Lines).
		Int("events", out.Stats.Events).
		Dur("elapsed", out.Elapsed).
		Msg("transcript complete")
	return out, nil
}

func (p *Processor) process(ctx context.Context, in Input) (*Outcome, error) {
	id := in.ID
	log := p.log.With().Str("id", id.String()).Str("input", in.AudioPath).Logger()

	speakers, err := dialogue.ResolveSpeakers(dialogue.SpeakerOptions{
		OtherOn:   p.opts.OtherOn,
		SelfName:  p.opts.SelfName,
		OtherName: p.opts.OtherName,
		InputName: in.AudioPath,
	})
	if err != nil {
		return nil, err
	}
	metrics.SpeakerNameSourceTotal.WithLabelValues(speakers.OtherSource).Inc()
	if speakers.OtherSource == "fallback" {
		log.Debug().Str("name", speakers.Map.Other).Msg("no counterpart name in file name, using fallback")
	}

	out := &Outcome{
		ID:        id,
		InputPath: in.AudioPath,
		OutputKey: in.OutputKey,
		Speakers:  speakers,
	}
	if out.OutputKey == "" {
		out.OutputKey = audio.TranscriptKey(p.opts.KeyRoot, in.AudioPath)
	}

	left, right := in.Left, in.Right
	if !in.Segmented {
		left, right, err = p.recognize(ctx, log, in.AudioPath, out)
		if err != nil {
			return nil, err
		}
	}

	m := speakers.Map
	self, other := channelStreams(m, left, right)

	t := time.Now()
	res, err := dialogue.Build(self, other, dialogue.Options{
		MergeGap:        p.opts.MergeGap,
		EventConfidence: p.opts.EventConfidence,
		Speakers:        m,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordingDuration.WithLabelValues("merge").Observe(time.Since(t).Seconds())
	out.Stats = res.Stats
	out.Lines = res.Lines
	for _, l := range res.Lines {
		metrics.DialogueLinesTotal.WithLabelValues(l.Kind.String()).Inc()
	}

	var header dialogue.Header
	if p.opts.Headers {
		header = dialogue.Header{
			Title:   audio.BaseName(in.AudioPath),
			Artists: m.NameOf(dialogue.Left) + " & " + m.NameOf(dialogue.Right),
		}
	}
	var buf bytes.Buffer
	if err := dialogue.Write(&buf, header, res.Lines); err != nil {
		return nil, fmt.Errorf("render transcript: %w", err)
	}
	out.Body = buf.Bytes()

	if p.opts.Store != nil {
		t = time.Now()
		if err := p.opts.Store.Save(ctx, out.OutputKey, out.Body, storage.ContentTypeLRC); err != nil {
			return nil, fmt.Errorf("save transcript: %w", err)
		}
		metrics.RecordingDuration.WithLabelValues("store").Observe(time.Since(t).Seconds())
		out.OutputPath = p.opts.Store.LocalPath(out.OutputKey)
	}

	log.Debug().
		Interface("stats", res.Stats).
		Msg("dialogue merged")
	return out, nil
}

// recognize splits the stereo recording and transcribes both sides.
func (p *Processor) recognize(ctx context.Context, log zerolog.Logger, audioPath string, out *Outcome) (left, right []dialogue.Segment, err error) {
	if p.opts.Provider == nil {
		return nil, nil, errors.New("no speech-to-text provider configured")
	}

	t := time.Now()
	split, err := p.split(ctx, audioPath, p.opts.Split)
	if err != nil {
		return nil, nil, fmt.Errorf("split channels: %w", err)
	}
	defer split.Cleanup()
	metrics.RecordingDuration.WithLabelValues("split").Observe(time.Since(t).Seconds())

	t = time.Now()
	resp, err := transcribe.TranscribeChannels(ctx, p.opts.Provider, split.LeftPath, split.RightPath, p.opts.TranscribeOpts)
	if err != nil {
		return nil, nil, err
	}
	metrics.RecordingDuration.WithLabelValues("transcribe").Observe(time.Since(t).Seconds())

	m := out.Speakers.Map
	left = transcribe.ToSegments(resp.Left, m.ChannelOf(dialogue.Left), p.opts.Segments)
	right = transcribe.ToSegments(resp.Right, m.ChannelOf(dialogue.Right), p.opts.Segments)

	out.Language = resp.Left.Language
	if out.Language == "" {
		out.Language = resp.Right.Language
	}
	out.Duration = max(resp.Left.Duration, resp.Right.Duration)

	log.Debug().
		Str("provider", p.opts.Provider.Name()).
		Int("left_segments", len(left)).
		Int("right_segments", len(right)).
		Msg("channels recognized")
	return left, right, nil
}

// channelStreams assigns the two physical sides to Self and Other.
func channelStreams(m dialogue.SpeakerMap, left, right []dialogue.Segment) (self, other []dialogue.Segment) {
	if m.ChannelOf(dialogue.Left) == dialogue.Other {
		return retag(right, dialogue.Self), retag(left, dialogue.Other)
	}
	return retag(left, dialogue.Self), retag(right, dialogue.Other)
}

// retag stamps the channel on segments loaded without one.
func retag(segs []dialogue.Segment, ch dialogue.Channel) []dialogue.Segment {
	out := make([]dialogue.Segment, len(segs))
	for i, s := range segs {
		s.Channel = ch
		out[i] = s
	}
	return out
}

func (p *Processor) index(ctx context.Context, out *Outcome) {
	if p.opts.Index == nil {
		return
	}
	linesJSON, err := json.Marshal(out.Lines)
	if err != nil {
		p.log.Warn().Err(err).Msg("marshal lines for index")
		out.IndexFailed = true
		return
	}
	row := &database.TranscriptRow{
		ID:           out.ID,
		InputPath:    out.InputPath,
		InputName:    filepath.Base(out.InputPath),
		OutputKey:    out.OutputKey,
		SelfName:     out.Speakers.Map.Self,
		OtherName:    out.Speakers.Map.Other,
		OtherSource:  out.Speakers.OtherSource,
		OtherOn:      string(out.Speakers.Map.OtherOn),
		Language:     out.Language,
		LineCount:    out.Stats.Lines,
		EventCount:   out.Stats.Events,
		ProcessingMs: int(out.Elapsed.Milliseconds()),
		Body:         string(out.Body),
		Lines:        linesJSON,
	}
	if p.opts.Provider != nil {
		row.Provider = p.opts.Provider.Name()
		row.Model = p.opts.Provider.Model()
	}
	if out.Duration > 0 {
		d := float32(out.Duration)
		row.DurationS = &d
	}

	id, err := p.opts.Index.UpsertTranscript(ctx, row)
	if err != nil {
		p.log.Warn().Err(err).Str("input", out.InputPath).Msg("transcript index update failed")
		out.IndexFailed = true
		return
	}
	out.ID = id
}

func (p *Processor) notify(out *Outcome) {
	if p.opts.Notify == nil {
		return
	}
	msg := Completion{
		ID:          out.ID,
		Input:       out.InputPath,
		Output:      out.OutputKey,
		SelfName:    out.Speakers.Map.Self,
		OtherName:   out.Speakers.Map.Other,
		OtherSource: out.Speakers.OtherSource,
		Lines:       out.Stats.Lines,
		Events:      out.Stats.Events,
		Stats:       out.Stats,
		ElapsedMs:   out.Elapsed.Milliseconds(),
		FinishedAt:  time.Now().UTC(),
	}
	p.publish(out.InputPath, TopicTranscript, msg)
}

func (p *Processor) publish(input, suffix string, msg any) {
	if p.opts.Notify == nil {
		return
	}
	if err := p.opts.Notify.Publish(suffix, msg); err != nil {
		metrics.NotificationsFailedTotal.Inc()
		p.log.Warn().Err(err).Str("input", input).Str("topic", suffix).Msg("notification failed")
	}
}

func outcomeLabel(err error) string {
	var ce *dialogue.ConfigError
	var ie *dialogue.InputIntegrityError
	switch {
	case errors.As(err, &ce):
		return "config_error"
	case errors.As(err, &ie):
		return "input_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}
