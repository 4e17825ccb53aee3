package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/callscribe/internal/recording"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []recording.Job
	full bool
}

func (q *fakeQueue) Enqueue(j recording.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, j)
	return true
}

func (q *fakeQueue) setFull(full bool) {
	q.mu.Lock()
	q.full = full
	q.mu.Unlock()
}

func (q *fakeQueue) paths() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, j := range q.jobs {
		out = append(out, j.AudioPath)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 5s")
}

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !mod.IsZero() {
		os.Chtimes(path, mod, mod)
	}
}

func TestFileWatcher_Backfill(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	touch(t, filepath.Join(dir, "b.m4a"), old.Add(time.Minute))
	touch(t, filepath.Join(dir, "a.m4a"), old)
	touch(t, filepath.Join(dir, "done.m4a"), old)
	touch(t, filepath.Join(dir, "notes.txt"), old)

	q := &fakeQueue{}
	fw := New(Options{
		Dir:      dir,
		Backfill: true,
		Queue:    q,
		Done: func(ctx context.Context, path string) bool {
			return filepath.Base(path) == "done.m4a"
		},
		Delay: 20 * time.Millisecond,
		Log:   zerolog.Nop(),
	})
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	waitFor(t, func() bool { return fw.Status().Status == "watching" })

	got := q.paths()
	if len(got) != 2 {
		t.Fatalf("queued %v, want a.m4a and b.m4a", got)
	}
	if filepath.Base(got[0]) != "a.m4a" || filepath.Base(got[1]) != "b.m4a" {
		t.Errorf("order = %v, want oldest first", got)
	}
	if s := fw.Status(); s.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", s.FilesSkipped)
	}
}

func TestFileWatcher_NewFile(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQueue{}
	fw := New(Options{Dir: dir, Queue: q, Delay: 20 * time.Millisecond, Log: zerolog.Nop()})
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	path := filepath.Join(dir, "Tel-From-Jane-2024-05-01-10-30-00.m4a")
	touch(t, path, time.Time{})
	touch(t, filepath.Join(dir, "ignored.lrc"), time.Time{})

	waitFor(t, func() bool { return len(q.paths()) == 1 })

	// Rewrites of a file still in flight are ignored.
	touch(t, path, time.Time{})
	time.Sleep(100 * time.Millisecond)
	if n := len(q.paths()); n != 1 {
		t.Errorf("queued %d jobs, want 1", n)
	}
	if fw.FilesSeen() < 1 {
		t.Errorf("FilesSeen = %d, want >= 1", fw.FilesSeen())
	}
}

func TestFileWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQueue{}
	fw := New(Options{Dir: dir, Queue: q, Delay: 20 * time.Millisecond, Log: zerolog.Nop()})
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	sub := filepath.Join(dir, "2024-05")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watch loop a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	touch(t, filepath.Join(sub, "call.wav"), time.Time{})

	waitFor(t, func() bool { return len(q.paths()) == 1 })
}

func TestFileWatcher_QueueFull(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQueue{full: true}
	fw := New(Options{Dir: dir, Queue: q, Log: zerolog.Nop()})
	fw.ctx, fw.cancel = context.WithCancel(context.Background())
	defer fw.cancel()

	if fw.enqueue(filepath.Join(dir, "a.m4a")) {
		t.Error("enqueue should fail when the queue is full")
	}
	if fw.Status().FilesRejected != 1 {
		t.Errorf("FilesRejected = %d, want 1", fw.Status().FilesRejected)
	}

	// A rejected file may be offered again later.
	q.setFull(false)
	if !fw.enqueue(filepath.Join(dir, "a.m4a")) {
		t.Error("enqueue should succeed once the queue has room")
	}
}

func TestFileWatcher_FailedRecordingRequeuedOnNextWrite(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQueue{}
	fw := New(Options{Dir: dir, Queue: q, Delay: 20 * time.Millisecond, Log: zerolog.Nop()})
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	path := filepath.Join(dir, "call.m4a")
	touch(t, path, time.Time{})
	waitFor(t, func() bool { return len(q.paths()) == 1 })

	fw.Release(path, errors.New("recognizer timeout"))
	touch(t, path, time.Time{})
	waitFor(t, func() bool { return len(q.paths()) == 2 })
}

func TestFileWatcher_RescanPicksUpRejected(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQueue{full: true}
	fw := New(Options{
		Dir:      dir,
		Backfill: true,
		Queue:    q,
		Delay:    20 * time.Millisecond,
		Rescan:   50 * time.Millisecond,
		Log:      zerolog.Nop(),
	})
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	touch(t, filepath.Join(dir, "call.m4a"), time.Time{})
	waitFor(t, func() bool { return fw.Status().FilesRejected >= 1 })

	q.setFull(false)
	waitFor(t, func() bool { return len(q.paths()) == 1 })
}

func TestFileWatcher_RescanIgnoresOldFilesWithoutBackfill(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.m4a"), time.Now().Add(-time.Hour))
	q := &fakeQueue{}
	fw := New(Options{Dir: dir, Queue: q, Rescan: 20 * time.Millisecond, Log: zerolog.Nop()})
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	fw.Stop()

	if got := q.paths(); len(got) != 0 {
		t.Errorf("queued %v, want nothing", got)
	}
}

func TestFileWatcher_ReleaseAttempts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.m4a")
	q := &fakeQueue{}
	fw := New(Options{Dir: dir, Queue: q, Log: zerolog.Nop()})
	fw.ctx, fw.cancel = context.WithCancel(context.Background())
	defer fw.cancel()

	if !fw.enqueue(path) {
		t.Fatal("first enqueue failed")
	}
	if fw.enqueue(path) {
		t.Error("enqueue while in flight should be skipped")
	}

	// A success clears the failure count.
	fw.Release(path, errors.New("split failed"))
	fw.enqueue(path)
	fw.Release(path, nil)

	for i := 0; i < maxAttempts; i++ {
		if !fw.enqueue(path) {
			t.Fatalf("attempt %d not queued", i+1)
		}
		fw.Release(path, errors.New("split failed"))
	}
	if fw.enqueue(path) {
		t.Errorf("queued after %d failures", maxAttempts)
	}
	if n := len(q.paths()); n != 2+maxAttempts {
		t.Errorf("queued %d jobs, want %d", n, 2+maxAttempts)
	}
}

func TestFileWatcher_StartMissingDir(t *testing.T) {
	fw := New(Options{Dir: filepath.Join(t.TempDir(), "missing"), Queue: &fakeQueue{}, Log: zerolog.Nop()})
	// WalkDir reports the missing root to the callback, which logs and continues.
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fw.Stop()
	if fw.Status().Status != "stopped" {
		t.Errorf("status = %q, want stopped", fw.Status().Status)
	}
}
