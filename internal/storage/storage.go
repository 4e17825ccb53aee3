package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/callscribe/internal/config"
)

// ContentTypeLRC is the content type transcripts are stored with.
const ContentTypeLRC = "text/plain; charset=utf-8"

// TranscriptStore abstracts transcript storage backends.
type TranscriptStore interface {
	// Save stores a rendered transcript. key is a slash-separated path
	// relative to the store root, e.g. "Tel-From-Jane-2024-05-01-1030.lrc".
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// LocalPath returns the local filesystem path if the file exists on disk.
	// Returns "" if not available locally.
	LocalPath(key string) string

	// Exists checks if a transcript exists in any backend.
	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "tiered".
	Type() string
}

// New creates a TranscriptStore rooted at dir. With S3 configured the store
// is tiered: the local file stays the source of truth and S3 is a mirror.
// Returns an error if S3 is configured but unreachable.
func New(cfg config.S3Config, dir string, log zerolog.Logger) (TranscriptStore, error) {
	local := NewLocalStore(dir)
	if !cfg.Enabled() {
		return local, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return NewTieredStore(s3store, local, log), nil
}
