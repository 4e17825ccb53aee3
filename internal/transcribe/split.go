package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Normalizer selects per-channel loudness normalization.
type Normalizer string

const (
	NormalizeLoudnorm   Normalizer = "loudnorm"
	NormalizeDynaudnorm Normalizer = "dynaudnorm"
	NormalizeNone       Normalizer = "none"
)

// ParseNormalizer validates a normalizer name.
func ParseNormalizer(v string) (Normalizer, error) {
	switch n := Normalizer(strings.ToLower(strings.TrimSpace(v))); n {
	case NormalizeLoudnorm, NormalizeDynaudnorm, NormalizeNone:
		return n, nil
	case "":
		return NormalizeLoudnorm, nil
	}
	return "", fmt.Errorf("unknown normalizer %q (want loudnorm, dynaudnorm or none)", v)
}

var (
	ffmpegOnce  sync.Once
	ffmpegFound bool
)

// CheckFFmpeg reports whether ffmpeg is in PATH. The lookup runs once.
func CheckFFmpeg() bool {
	ffmpegOnce.Do(func() {
		_, err := exec.LookPath("ffmpeg")
		ffmpegFound = err == nil
	})
	return ffmpegFound
}

// SplitOptions configures stereo channel extraction.
type SplitOptions struct {
	SampleRate int // default 16000
	Normalizer Normalizer
	TmpDir     string // parent for the working directory, default os.TempDir()
}

// SplitResult holds the two mono WAV files extracted from a stereo recording.
type SplitResult struct {
	LeftPath  string
	RightPath string
	TempDir   string
}

// Cleanup removes the working directory and both channel files.
func (r *SplitResult) Cleanup() {
	if r != nil && r.TempDir != "" {
		os.RemoveAll(r.TempDir)
	}
}

// channelFilter builds the ffmpeg audio filter for one side:
//   - pan the chosen input channel to mono
//   - loudnorm: EBU R128 single pass tuned for voice
//   - dynaudnorm: dynamic normalizer for uneven levels
func channelFilter(channel string, n Normalizer) string {
	base := "pan=mono|c0=" + channel
	switch n {
	case NormalizeLoudnorm:
		return base + ",loudnorm=I=-16:TP=-1.5:LRA=11:print_format=none"
	case NormalizeDynaudnorm:
		return base + ",dynaudnorm=f=200:g=31:m=15:s=10"
	default:
		return base
	}
}

// SplitStereo extracts the left and right channels of inputPath into two
// 16-bit PCM mono WAV files. Both extractions run concurrently; if either
// fails the working directory is removed and the error returned.
func SplitStereo(ctx context.Context, inputPath string, opts SplitOptions) (*SplitResult, error) {
	if !CheckFFmpeg() {
		return nil, fmt.Errorf("ffmpeg is required but was not found in PATH")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Normalizer == "" {
		opts.Normalizer = NormalizeLoudnorm
	}

	dir, err := os.MkdirTemp(opts.TmpDir, "callsplit-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	res := &SplitResult{
		LeftPath:  filepath.Join(dir, "left.wav"),
		RightPath: filepath.Join(dir, "right.wav"),
		TempDir:   dir,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return extractChannel(gctx, inputPath, res.LeftPath, "FL", opts) })
	g.Go(func() error { return extractChannel(gctx, inputPath, res.RightPath, "FR", opts) })
	if err := g.Wait(); err != nil {
		res.Cleanup()
		return nil, err
	}
	return res, nil
}

func extractChannel(ctx context.Context, inputPath, outPath, channel string, opts SplitOptions) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin", "-y",
		"-i", inputPath,
		"-filter:a", channelFilter(channel, opts.Normalizer),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s channel: %w: %s", channel, err, lastLines(stderr.String(), 5))
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
