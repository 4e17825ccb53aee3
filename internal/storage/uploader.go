package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// saver is the write side of a store, satisfied by *S3Store.
type saver interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// AsyncUploader mirrors transcripts to S3 in the background so watch-mode
// workers never wait on the network. Files are already on local disk
// before being enqueued here.
type AsyncUploader struct {
	dst      saver
	ch       chan uploadJob
	log      zerolog.Logger
	wg       sync.WaitGroup
	stopped  atomic.Bool
	stopOnce sync.Once

	uploaded atomic.Int64
	failed   atomic.Int64
}

type uploadJob struct {
	key         string
	data        []byte
	contentType string
}

// NewAsyncUploader creates an async uploader with the given buffer size.
func NewAsyncUploader(dst saver, bufferSize int, log zerolog.Logger) *AsyncUploader {
	return &AsyncUploader{
		dst: dst,
		ch:  make(chan uploadJob, bufferSize),
		log: log.With().Str("component", "async-uploader").Logger(),
	}
}

// Enqueue adds an upload job. Non-blocking: drops with a warning if full or stopped.
func (u *AsyncUploader) Enqueue(key string, data []byte, contentType string) bool {
	if u.stopped.Load() {
		return false
	}
	job := uploadJob{key: key, data: data, contentType: contentType}
	select {
	case u.ch <- job:
		return true
	default:
		u.log.Warn().Str("key", key).Msg("async upload queue full, skipping (local copy kept)")
		return false
	}
}

// Start launches worker goroutines.
func (u *AsyncUploader) Start(workers int) {
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	u.log.Info().Int("workers", workers).Int("buffer", cap(u.ch)).Msg("async uploader started")
}

// Stop stops accepting uploads and waits for queued ones to finish.
func (u *AsyncUploader) Stop() {
	u.stopped.Store(true)
	u.stopOnce.Do(func() { close(u.ch) })
	u.wg.Wait()
	u.log.Info().
		Int64("uploaded", u.uploaded.Load()).
		Int64("failed", u.failed.Load()).
		Msg("async uploader stopped")
}

func (u *AsyncUploader) worker() {
	defer u.wg.Done()
	for job := range u.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := u.dst.Save(ctx, job.key, job.data, job.contentType); err != nil {
			u.failed.Add(1)
			u.log.Error().Err(err).Str("key", job.key).Msg("async S3 upload failed (local copy kept)")
		} else {
			u.uploaded.Add(1)
		}
		cancel()
	}
}
