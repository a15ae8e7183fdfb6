// Package watch polls files and directories and calls back, debounced, when
// anything under them changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/radovskyb/watcher"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	pollInterval    = 100 * time.Millisecond
)

// notifier collapses a burst of notify calls into a single call of out,
// made once delay has passed since the first of them.
type notifier struct {
	out      func()
	delay    time.Duration
	notified bool
	lock     sync.Mutex
}

func (n *notifier) notify() {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.notified {
		return
	}
	n.notified = true
	go func() {
		time.Sleep(n.delay)
		n.lock.Lock()
		n.notified = false
		n.lock.Unlock()
		n.out()
	}()
}

type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	Logger   *log.Logger
}

type Watcher struct {
	w        *watcher.Watcher
	n        *notifier
	logger   *log.Logger
	interval time.Duration
}

// New watches every path, recursing into directories. onChange runs on its
// own goroutine; calls do not overlap as long as it returns within the
// debounce window.
func New(paths []string, onChange func(), opts Options) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("watch: no paths given")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	w := watcher.New()
	w.IgnoreHiddenFiles(true)
	w.FilterOps(watcher.Write, watcher.Create, watcher.Remove, watcher.Rename, watcher.Move)
	for _, p := range paths {
		if err := w.AddRecursive(p); err != nil {
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
	}
	return &Watcher{
		w:        w,
		n:        &notifier{out: onChange, delay: opts.Debounce},
		logger:   opts.Logger,
		interval: pollInterval,
	}, nil
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	started := make(chan error, 1)
	go func() {
		started <- w.w.Start(w.interval)
	}()
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-w.w.Event:
			w.logger.Debug("file changed", "op", e.Op, "path", e.Path)
			w.n.notify()
		case err := <-w.w.Error:
			if errors.Is(err, watcher.ErrWatchedFileDeleted) {
				w.logger.Warn("watched path was deleted", "err", err)
				continue
			}
			return fmt.Errorf("watch: %w", err)
		case err := <-started:
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		case <-w.w.Closed:
			return nil
		}
	}
}

// Wait blocks until Run has started polling.
func (w *Watcher) Wait() {
	w.w.Wait()
}
