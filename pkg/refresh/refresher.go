// Package refresh keeps a catalog store in sync with its configured source,
// either on a cron schedule or whenever a local source file changes.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ssargent/ipfdb/pkg/config"
	"github.com/ssargent/ipfdb/pkg/ipf"
	"github.com/ssargent/ipfdb/pkg/store"
)

const defaultDebounce = 500 * time.Millisecond

// ErrNoSource is returned when the source has no URL.
var ErrNoSource = errors.New("refresh: no source url configured")

// Importer is the part of the store a Refresher writes to.
type Importer interface {
	ImportStream(ctx context.Context, r io.Reader, name string) (*store.ImportResult, error)
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Refresher) { r.logger = logger }
}

// WithDebounce sets how long file changes settle before an import runs.
func WithDebounce(d time.Duration) Option {
	return func(r *Refresher) { r.debounce = d }
}

// WithResultHandler registers fn to be called after every refresh.
func WithResultHandler(fn func(*store.ImportResult, error)) Option {
	return func(r *Refresher) { r.onResult = fn }
}

// Refresher re-imports a source into a store.
type Refresher struct {
	importer Importer
	source   config.Source
	logger   *zap.Logger
	debounce time.Duration
	onResult func(*store.ImportResult, error)

	runMu sync.Mutex
	// debounced refreshes started by watch
	pending sync.WaitGroup

	mu      sync.Mutex
	last    *store.ImportResult
	cron    *cron.Cron
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates source and returns a stopped Refresher.
func New(importer Importer, source config.Source, opts ...Option) (*Refresher, error) {
	if source.URL == "" {
		return nil, ErrNoSource
	}
	if source.Schedule != "" {
		if _, err := cron.ParseStandard(source.Schedule); err != nil {
			return nil, fmt.Errorf("refresh: invalid schedule %q: %w", source.Schedule, err)
		}
	}

	r := &Refresher{
		importer: importer,
		source:   source,
		logger:   zap.NewNop(),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("source", source.URL))
	return r, nil
}

// RefreshNow fetches the source and imports it. Concurrent calls run one
// after the other.
func (r *Refresher) RefreshNow(ctx context.Context) (*store.ImportResult, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.source.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.source.Timeout)
		defer cancel()
	}

	res, err := r.refresh(ctx)
	if err != nil {
		r.logger.Error("refresh failed", zap.Error(err))
	} else {
		r.logger.Info("refresh finished",
			zap.Int("upserted", res.Upserted),
			zap.Int("removed", res.Removed),
			zap.Duration("duration", res.Duration))
	}

	if res != nil {
		r.mu.Lock()
		r.last = res
		r.mu.Unlock()
	}
	if r.onResult != nil {
		r.onResult(res, err)
	}
	return res, err
}

func (r *Refresher) refresh(ctx context.Context) (*store.ImportResult, error) {
	rc, name, err := ipf.Fetch(ctx, r.source.URL)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return r.importer.ImportStream(ctx, rc, name)
}

// Last returns the result of the most recent refresh, or nil.
func (r *Refresher) Last() *store.ImportResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Start schedules refreshes and starts watching a local source when
// configured. Refreshes stop when ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return errors.New("refresh: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	if r.source.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(r.source.Schedule, func() {
			r.logger.Debug("scheduled refresh")
			_, _ = r.RefreshNow(ctx)
		}); err != nil {
			cancel()
			r.done = nil
			return fmt.Errorf("refresh: invalid schedule %q: %w", r.source.Schedule, err)
		}
		c.Start()
		r.cron = c
		r.logger.Info("refresh scheduled", zap.String("schedule", r.source.Schedule))
	}

	if !r.source.Watch {
		close(r.done)
		return nil
	}

	path, ok := localPath(r.source.URL)
	if !ok {
		r.logger.Warn("watch ignored for remote source")
		close(r.done)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(r.done)
		r.stopLocked()
		return fmt.Errorf("refresh: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		close(r.done)
		r.stopLocked()
		return fmt.Errorf("refresh: watch %s: %w", filepath.Dir(path), err)
	}
	r.watcher = watcher

	go r.watch(ctx, watcher, path)
	r.logger.Info("watching source file", zap.String("path", path))
	return nil
}

// watch runs until ctx is done or the watcher closes. Bursts of events on
// path collapse into one refresh.
func (r *Refresher) watch(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer close(r.done)

	var timer *time.Timer
	defer func() {
		if timer != nil && timer.Stop() {
			r.pending.Done()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if abs, _ := filepath.Abs(event.Name); abs != path {
				continue
			}
			if timer != nil && timer.Stop() {
				r.pending.Done()
			}
			r.pending.Add(1)
			timer = time.AfterFunc(r.debounce, func() {
				defer r.pending.Done()
				if ctx.Err() != nil {
					return
				}
				r.logger.Debug("source file changed")
				_, _ = r.RefreshNow(ctx)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Stop halts scheduling and watching. A debounced refresh that has not fired
// yet is dropped; Stop waits for running scheduled or debounced refreshes to
// finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	done := r.stopLocked()
	r.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (r *Refresher) stopLocked() chan struct{} {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}

	var stopped context.Context
	if r.cron != nil {
		stopped = r.cron.Stop()
		r.cron = nil
	}

	done := r.done
	r.done = nil
	if done == nil {
		return nil
	}

	// the watch goroutine closes done; without one it is already closed
	merged := make(chan struct{})
	go func() {
		defer close(merged)
		<-done
		r.pending.Wait()
		if stopped != nil {
			<-stopped.Done()
		}
	}()
	return merged
}

// localPath reports the filesystem path behind location, if it has one.
func localPath(location string) (string, bool) {
	u, err := url.Parse(location)
	path := location
	if err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		if u.Scheme != "file" {
			return "", false
		}
		path = u.Path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	return abs, true
}
