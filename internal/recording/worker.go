package recording

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job is one recording enqueued by the inbox watcher.
type Job struct {
	ID         uuid.UUID
	AudioPath  string
	EnqueuedAt time.Time
}

// QueueStats reports the current state of the recording queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Capacity  int   `json:"capacity"`
	Workers   int   `json:"workers"`
}

// JobProcessor converts one job, satisfied by *Processor via ProcessJob.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job Job) error
}

// ProcessJob adapts Process to the worker pool.
func (p *Processor) ProcessJob(ctx context.Context, job Job) error {
	_, err := p.Process(ctx, Input{ID: job.ID, AudioPath: job.AudioPath})
	return err
}

// WorkerPoolOptions configures the recording worker pool.
type WorkerPoolOptions struct {
	Processor JobProcessor
	Workers   int
	QueueSize int
	// JobTimeout bounds one recording end to end; 0 means no limit.
	JobTimeout time.Duration
	// OnDone, if set, is called after every job with its result.
	OnDone func(job Job, err error)
	Log    zerolog.Logger
}

// WorkerPool manages recording workers.
type WorkerPool struct {
	jobs   chan Job
	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards closing jobs against concurrent Enqueue.
	mu      sync.RWMutex
	stopped bool

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a new recording worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		opts:   opts,
		log:    opts.Log.With().Str("component", "workers").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("recording worker pool started")
}

// Stop stops accepting jobs, lets workers drain the queue and waits for them.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("recording worker pool stopped")
}

// Abort cancels in-flight recordings, then stops the pool.
func (wp *WorkerPool) Abort() {
	wp.cancel()
	wp.Stop()
}

// Enqueue adds a job to the queue. Returns false if the queue is full or
// the pool has stopped.
func (wp *WorkerPool) Enqueue(j Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}
	select {
	case wp.jobs <- j:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Active:    int(wp.active.Load()),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
		Capacity:  cap(wp.jobs),
		Workers:   wp.opts.Workers,
	}
}

// Pending returns the number of queued jobs.
func (wp *WorkerPool) Pending() int { return len(wp.jobs) }

// Active returns the number of jobs being processed.
func (wp *WorkerPool) Active() int { return int(wp.active.Load()) }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		wp.active.Add(1)
		err := wp.run(job)
		wp.active.Add(-1)
		if err != nil {
			wp.failed.Add(1)
			log.Warn().Err(err).
				Str("job", job.ID.String()).
				Str("path", job.AudioPath).
				Msg("recording failed")
		} else {
			wp.completed.Add(1)
		}
		if wp.opts.OnDone != nil {
			wp.opts.OnDone(job, err)
		}
	}
}

func (wp *WorkerPool) run(job Job) error {
	ctx := wp.ctx
	if wp.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.opts.JobTimeout)
		defer cancel()
	}
	return wp.opts.Processor.ProcessJob(ctx, job)
}
