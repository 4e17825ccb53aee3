// Package watch feeds new call recordings from an inbox directory into the
// recording worker pool.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/callscribe/internal/audio"
	"github.com/snarg/callscribe/internal/recording"
)

// debounceDelay coalesces rapid Create+Write events while a recorder is
// still writing the file.
const debounceDelay = 2 * time.Second

// maxAttempts stops rescans from retrying a recording that keeps failing.
// A new write to the file resets its count.
const maxAttempts = 3

// Enqueuer accepts recording jobs, satisfied by *recording.WorkerPool.
type Enqueuer interface {
	Enqueue(j recording.Job) bool
}

// DoneChecker reports whether a recording already has a transcript.
type DoneChecker func(ctx context.Context, audioPath string) bool

// Options configures a FileWatcher.
type Options struct {
	Dir      string
	Backfill bool
	Queue    Enqueuer
	Done     DoneChecker // nil: nothing counts as done
	Delay    time.Duration
	// Rescan walks the inbox again at this interval, picking up files
	// rejected by a full queue and retrying failures. 0 disables it.
	Rescan time.Duration
	Log    zerolog.Logger
}

// Status is the watcher state reported by the health endpoint.
type Status struct {
	Status        string `json:"status"`
	WatchDir      string `json:"watch_dir"`
	FilesSeen     int64  `json:"files_seen"`
	FilesQueued   int64  `json:"files_queued"`
	FilesSkipped  int64  `json:"files_skipped"`
	FilesRejected int64  `json:"files_rejected"`
}

// FileWatcher monitors an inbox directory for new call recordings and
// enqueues them for transcription.
type FileWatcher struct {
	opts Options
	log  zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// queued holds paths handed to the pool and not yet released;
	// failures counts failed attempts per path.
	queuedMu sync.Mutex
	queued   map[string]bool
	failures map[string]int
	started  time.Time

	// Stats
	filesSeen     atomic.Int64
	filesQueued   atomic.Int64
	filesSkipped  atomic.Int64
	filesRejected atomic.Int64
	status        atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// New creates a FileWatcher. Call Start to begin watching.
func New(opts Options) *FileWatcher {
	if opts.Delay <= 0 {
		opts.Delay = debounceDelay
	}
	fw := &FileWatcher{
		opts:           opts,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		queued:         make(map[string]bool),
		failures:       make(map[string]int),
	}
	fw.status.Store("starting")
	return fw
}

// Start initializes the fsnotify watcher, adds all existing directories, and
// begins watching for new files. If backfill is enabled, it queues existing
// recordings that lack a transcript in a background goroutine.
func (fw *FileWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w
	fw.ctx, fw.cancel = context.WithCancel(ctx)
	fw.started = time.Now()

	// Walk the directory tree and add all directories to fsnotify.
	dirCount := 0
	err = filepath.WalkDir(fw.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		fw.cancel()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.opts.Dir).
		Msg("file watcher initialized")

	fw.wg.Add(1)
	go fw.watchLoop()

	if fw.opts.Backfill {
		fw.wg.Add(1)
		go fw.backfill()
	} else {
		fw.status.Store("watching")
	}
	if fw.opts.Rescan > 0 {
		fw.wg.Add(1)
		go fw.rescanLoop()
	}
	return nil
}

// Release marks a recording as no longer in flight, so a later event or
// rescan can queue it again. Wire it to the worker pool's OnDone.
func (fw *FileWatcher) Release(path string, err error) {
	fw.queuedMu.Lock()
	defer fw.queuedMu.Unlock()
	delete(fw.queued, path)
	if err != nil {
		fw.failures[path]++
		fw.log.Debug().Str("path", path).Int("attempts", fw.failures[path]).Msg("recording released after failure")
	} else {
		delete(fw.failures, path)
	}
}

// Stop closes the fsnotify watcher and cancels pending debounce timers.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}
	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()
	fw.wg.Wait()

	fw.log.Info().
		Int64("files_queued", fw.filesQueued.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Int64("files_rejected", fw.filesRejected.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() Status {
	s, _ := fw.status.Load().(string)
	return Status{
		Status:        s,
		WatchDir:      fw.opts.Dir,
		FilesSeen:     fw.filesSeen.Load(),
		FilesQueued:   fw.filesQueued.Load(),
		FilesSkipped:  fw.filesSkipped.Load(),
		FilesRejected: fw.filesRejected.Load(),
	}
}

// FilesSeen returns the number of audio files noticed since start.
func (fw *FileWatcher) FilesSeen() int64 { return fw.filesSeen.Load() }

// watchLoop is the main event loop that processes fsnotify events.
func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it to the watch set so we catch files in
			// newly created subdirectories.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !audio.IsAudioFile(event.Name) {
				continue
			}

			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces file processing. This coalesces rapid
// Create+Write events and ensures the file is fully written before it is
// queued.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(fw.opts.Delay)
		return
	}

	fw.filesSeen.Add(1)
	fw.debounceTimers[path] = time.AfterFunc(fw.opts.Delay, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		// The file changed, so earlier failures no longer count.
		fw.queuedMu.Lock()
		delete(fw.failures, path)
		fw.queuedMu.Unlock()

		fw.enqueue(path)
	})
}

// enqueue hands one recording to the pool unless it is already done, in
// flight, or has failed maxAttempts times.
func (fw *FileWatcher) enqueue(path string) bool {
	if fw.ctx.Err() != nil {
		return false
	}
	if fw.opts.Done != nil && fw.opts.Done(fw.ctx, path) {
		fw.filesSkipped.Add(1)
		return false
	}

	fw.queuedMu.Lock()
	if fw.queued[path] || fw.failures[path] >= maxAttempts {
		fw.queuedMu.Unlock()
		fw.filesSkipped.Add(1)
		return false
	}
	fw.queued[path] = true
	fw.queuedMu.Unlock()

	if !fw.opts.Queue.Enqueue(recording.Job{AudioPath: path}) {
		fw.queuedMu.Lock()
		delete(fw.queued, path)
		fw.queuedMu.Unlock()
		fw.filesRejected.Add(1)
		fw.log.Warn().Str("path", path).Msg("recording queue full, file will be retried on its next change or rescan")
		return false
	}
	fw.filesQueued.Add(1)
	fw.log.Debug().Str("path", path).Msg("recording queued")
	return true
}

// backfill queues existing recordings that have no transcript yet.
func (fw *FileWatcher) backfill() {
	defer fw.wg.Done()
	fw.status.Store("backfilling")
	fw.scan("backfill", time.Time{})
	if fw.ctx.Err() == nil {
		fw.status.Store("watching")
	}
}

// rescanLoop periodically rescans the inbox. Without backfill only files
// modified since Start are considered.
func (fw *FileWatcher) rescanLoop() {
	defer fw.wg.Done()
	var since time.Time
	if !fw.opts.Backfill {
		since = fw.started
	}
	t := time.NewTicker(fw.opts.Rescan)
	defer t.Stop()
	for {
		select {
		case <-fw.ctx.Done():
			return
		case <-t.C:
			fw.scan("rescan", since)
		}
	}
}

// scan walks the watch directory and queues recordings modified after
// since, oldest first.
func (fw *FileWatcher) scan(kind string, since time.Time) {
	start := time.Now()
	log := fw.log.With().Str("scan", kind).Logger()

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry

	_ = filepath.WalkDir(fw.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !audio.IsAudioFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().Before(since) {
			return nil
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	log.Debug().Int("files", len(files)).Msg("scan starting")

	queued := 0
	for _, f := range files {
		if fw.ctx.Err() != nil {
			log.Info().Int("queued", queued).Msg("scan interrupted by shutdown")
			return
		}
		if kind == "backfill" {
			fw.filesSeen.Add(1)
		}
		if fw.enqueue(f.path) {
			queued++
		}
	}

	log.Info().
		Int("queued", queued).
		Int("scanned", len(files)).
		Dur("elapsed", time.Since(start)).
		Msg("scan complete")
}
