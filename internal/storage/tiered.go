package storage

import (
	"context"

	"github.com/rs/zerolog"
)

// TieredStore combines local disk (source of truth) with S3 (mirror).
// Write path: save locally first, then push to S3, either inline or through
// an AsyncUploader when one is attached.
type TieredStore struct {
	s3       *S3Store
	local    *LocalStore
	uploader *AsyncUploader
	log      zerolog.Logger
}

// NewTieredStore creates a tiered local-primary + S3-mirror store.
func NewTieredStore(s3 *S3Store, local *LocalStore, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		s3:    s3,
		local: local,
		log:   log.With().Str("component", "tiered-store").Logger(),
	}
}

// UseUploader routes S3 writes through u instead of blocking Save.
func (s *TieredStore) UseUploader(u *AsyncUploader) { s.uploader = u }

// Save writes to local disk first (fatal on failure), then S3 (warning on failure).
func (s *TieredStore) Save(ctx context.Context, key string, data []byte, ct string) error {
	if err := s.local.Save(ctx, key, data, ct); err != nil {
		return err
	}
	if s.uploader != nil {
		s.uploader.Enqueue(key, data, ct)
		return nil
	}
	if err := s.s3.Save(ctx, key, data, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("S3 mirror write failed, local copy kept")
	}
	return nil
}

func (s *TieredStore) LocalPath(key string) string {
	return s.local.LocalPath(key)
}

func (s *TieredStore) Exists(ctx context.Context, key string) bool {
	if s.local.Exists(ctx, key) {
		return true
	}
	return s.s3.Exists(ctx, key)
}

func (s *TieredStore) Type() string { return "tiered" }

// S3Store returns the underlying S3 store.
func (s *TieredStore) S3Store() *S3Store { return s.s3 }
