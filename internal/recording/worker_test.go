package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type recordingProcessor struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
	block chan struct{}
}

func (r *recordingProcessor) ProcessJob(ctx context.Context, job Job) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, job.AudioPath)
	if r.fail[job.AudioPath] {
		return errors.New("boom")
	}
	return nil
}

func newTestPool(workers, queueSize int, p JobProcessor) *WorkerPool {
	if p == nil {
		p = &recordingProcessor{}
	}
	return NewWorkerPool(WorkerPoolOptions{
		Processor: p,
		Workers:   workers,
		QueueSize: queueSize,
		Log:       zerolog.Nop(),
	})
}

func TestNewWorkerPool(t *testing.T) {
	wp := newTestPool(4, 100, nil)
	if wp == nil {
		t.Fatal("NewWorkerPool returned nil")
	}
	if cap(wp.jobs) != 100 {
		t.Errorf("queue capacity = %d, want 100", cap(wp.jobs))
	}
}

func TestWorkerPool_EnqueueBeforeStart(t *testing.T) {
	wp := newTestPool(2, 5, nil)
	// Enqueue should work even before Start(); it just buffers
	if !wp.Enqueue(Job{AudioPath: "a.m4a"}) {
		t.Error("Enqueue should return true when queue has space")
	}
}

func TestWorkerPool_EnqueueAssignsID(t *testing.T) {
	wp := newTestPool(0, 1, nil)
	wp.Enqueue(Job{AudioPath: "a.m4a"})
	j := <-wp.jobs
	if j.ID == uuid.Nil {
		t.Error("job ID not assigned")
	}
	if j.EnqueuedAt.IsZero() {
		t.Error("EnqueuedAt not set")
	}
}

func TestWorkerPool_EnqueueFull(t *testing.T) {
	wp := newTestPool(0, 2, nil) // 0 workers = nobody draining

	wp.Enqueue(Job{AudioPath: "1.m4a"})
	wp.Enqueue(Job{AudioPath: "2.m4a"})

	// Queue is full (cap=2), third enqueue should return false
	if wp.Enqueue(Job{AudioPath: "3.m4a"}) {
		t.Error("Enqueue should return false when queue is full")
	}
}

func TestWorkerPool_EnqueueAfterStop(t *testing.T) {
	wp := newTestPool(1, 10, nil)
	wp.Start()
	wp.Stop()

	if wp.Enqueue(Job{AudioPath: "a.m4a"}) {
		t.Error("Enqueue should return false after Stop()")
	}
	// Second Stop is a no-op.
	wp.Stop()
}

func TestWorkerPool_Stats(t *testing.T) {
	wp := newTestPool(0, 10, nil) // 0 workers so nothing drains

	wp.Enqueue(Job{AudioPath: "1.m4a"})
	wp.Enqueue(Job{AudioPath: "2.m4a"})

	stats := wp.Stats()
	if stats.Pending != 2 {
		t.Errorf("Pending = %d, want 2", stats.Pending)
	}
	if stats.Completed != 0 {
		t.Errorf("Completed = %d, want 0", stats.Completed)
	}
	if stats.Failed != 0 {
		t.Errorf("Failed = %d, want 0", stats.Failed)
	}
	if stats.Capacity != 10 {
		t.Errorf("Capacity = %d, want 10", stats.Capacity)
	}
}

func TestWorkerPool_ProcessesAndCounts(t *testing.T) {
	p := &recordingProcessor{fail: map[string]bool{"bad.m4a": true}}
	wp := newTestPool(2, 10, p)
	wp.Start()

	for _, path := range []string{"a.m4a", "bad.m4a", "b.m4a"} {
		if !wp.Enqueue(Job{AudioPath: path}) {
			t.Fatalf("Enqueue(%s) failed", path)
		}
	}
	wp.Stop()

	stats := wp.Stats()
	if stats.Completed != 2 || stats.Failed != 1 {
		t.Errorf("completed=%d failed=%d, want 2/1", stats.Completed, stats.Failed)
	}
	if len(p.paths) != 3 {
		t.Errorf("processed %d jobs, want 3", len(p.paths))
	}
}

func TestWorkerPool_OnDone(t *testing.T) {
	var mu sync.Mutex
	results := map[string]error{}
	wp := NewWorkerPool(WorkerPoolOptions{
		Processor: &recordingProcessor{fail: map[string]bool{"bad.m4a": true}},
		Workers:   2,
		QueueSize: 10,
		OnDone: func(job Job, err error) {
			mu.Lock()
			results[job.AudioPath] = err
			mu.Unlock()
		},
		Log: zerolog.Nop(),
	})
	wp.Start()
	wp.Enqueue(Job{AudioPath: "good.m4a"})
	wp.Enqueue(Job{AudioPath: "bad.m4a"})
	wp.Stop()

	if len(results) != 2 {
		t.Fatalf("OnDone called for %d jobs, want 2", len(results))
	}
	if results["good.m4a"] != nil {
		t.Errorf("good.m4a err = %v, want nil", results["good.m4a"])
	}
	if results["bad.m4a"] == nil {
		t.Error("bad.m4a err = nil, want failure")
	}
}

func TestWorkerPool_StopDrains(t *testing.T) {
	wp := newTestPool(2, 10, nil)
	wp.Start()

	// Stop should return (not hang) even with no jobs
	done := make(chan struct{})
	go func() {
		wp.Stop()
		close(done)
	}()

	select {
	case <-done:
		// OK
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return within 5 seconds")
	}
}

func TestWorkerPool_AbortCancelsInFlight(t *testing.T) {
	p := &recordingProcessor{block: make(chan struct{})}
	wp := newTestPool(1, 10, p)
	wp.Start()
	wp.Enqueue(Job{AudioPath: "slow.m4a"})

	// Wait until the worker has picked the job up.
	deadline := time.Now().Add(5 * time.Second)
	for wp.Active() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		wp.Abort()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Abort() did not return within 5 seconds")
	}
	if wp.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1 (cancelled)", wp.Stats().Failed)
	}
}

func TestWorkerPool_StatsShape(t *testing.T) {
	wp := newTestPool(4, 10, nil)
	st := wp.Stats()
	if st.Workers != 4 || st.Capacity != 10 {
		t.Errorf("Workers = %d Capacity = %d, want 4/10", st.Workers, st.Capacity)
	}
}
