package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TranscriptExt is the extension of rendered transcripts.
const TranscriptExt = ".lrc"

// audioExts lists the container formats ffmpeg is asked to split.
var audioExts = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".aac":  true,
	".amr":  true,
	".3gp":  true,
	".caf":  true,
}

// ResolveInput expands a leading ~, makes the path absolute and checks that
// it names a readable regular file.
func ResolveInput(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no input file given")
	}
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("input file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("input %q is a directory", abs)
	}
	return abs, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand ~: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// BaseName returns the file name of path without its extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TranscriptName returns the transcript file name for an input recording.
func TranscriptName(inputPath string) string {
	return BaseName(inputPath) + TranscriptExt
}

// TranscriptKey returns the store key for a recording found under root: its
// path relative to root with the extension swapped, slash-separated, so
// same-named recordings in different subdirectories stay apart. Paths outside
// root, or an empty root, fall back to TranscriptName.
func TranscriptKey(root, inputPath string) string {
	if root == "" {
		return TranscriptName(inputPath)
	}
	rel, err := filepath.Rel(root, inputPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return TranscriptName(inputPath)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + TranscriptExt
	return filepath.ToSlash(rel)
}

// DefaultOutputPath places the transcript beside the input, or in outputDir
// when one is configured.
func DefaultOutputPath(inputPath, outputDir string) string {
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	return filepath.Join(dir, TranscriptName(inputPath))
}

// IsAudioFile reports whether name has a known audio extension.
// Hidden and partial files are never audio.
func IsAudioFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return audioExts[strings.ToLower(filepath.Ext(base))]
}
