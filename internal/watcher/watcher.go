// Package watcher reports pipeline artifacts appearing under a session's
// output directories. Stage attribution is best-effort, keyed off the
// worker's filename conventions.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Stage labels which pipeline stage most likely produced an artifact.
type Stage string

const (
	StageCompensation Stage = "stage1"
	StageSegmentation Stage = "stage2"
	StageTraces       Stage = "stage3"
	StageUnknown      Stage = "unknown"
)

// ArtifactEvent is a debounced file change under a watched directory.
type ArtifactEvent struct {
	Path  string    `json:"path"`
	Op    string    `json:"op"` // "created" or "modified"
	Stage Stage     `json:"stage"`
	Time  time.Time `json:"time"`
}

const (
	defaultDebounce = 500 * time.Millisecond
	eventBuffer     = 100
)

// Watcher monitors directories for pipeline output files.
type Watcher struct {
	debounce time.Duration
	logger   *slog.Logger
}

// Option adjusts watcher behavior.
type Option func(*Watcher)

// WithDebounce sets how long a path must stay quiet before its event is
// reported. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger routes watcher diagnostics to the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher with the default debounce window.
func New(opts ...Option) *Watcher {
	w := &Watcher{debounce: defaultDebounce, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch monitors dirs with default settings until ctx is cancelled.
func Watch(ctx context.Context, dirs ...string) (<-chan ArtifactEvent, error) {
	return New().Watch(ctx, dirs...)
}

// Watch starts monitoring dirs. The returned channel closes when ctx is
// cancelled or the underlying watcher fails.
func (w *Watcher) Watch(ctx context.Context, dirs ...string) (<-chan ArtifactEvent, error) {
	if len(dirs) == 0 {
		return nil, errors.New("watcher: no directories to watch")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watcher: watch %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", "dir", dir)
	}

	out := make(chan ArtifactEvent, eventBuffer)
	go w.run(ctx, fsw, out)
	return out, nil
}

type pendingArtifact struct {
	op       string
	deadline time.Time
}

// run owns all sends on out so close never races a late debounce flush.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, out chan<- ArtifactEvent) {
	defer close(out)
	defer fsw.Close()

	pending := make(map[string]pendingArtifact)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			op := operation(event.Op)
			if op == "" || !artifactFile(event.Name) {
				continue
			}
			p := pending[event.Name]
			if p.op != "created" {
				p.op = op
			}
			p.deadline = time.Now().Add(w.debounce)
			pending[event.Name] = p

		case now := <-ticker.C:
			for path, p := range pending {
				if now.Before(p.deadline) {
					continue
				}
				delete(pending, path)
				evt := ArtifactEvent{Path: path, Op: p.op, Stage: Classify(path), Time: now}
				select {
				case out <- evt:
				default:
					w.logger.Warn("artifact buffer full, dropping event", "path", path)
				}
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func operation(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return "created"
	case op&fsnotify.Write == fsnotify.Write:
		return "modified"
	default:
		return ""
	}
}

// artifactFile reports whether the path looks like pipeline output data.
func artifactFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff", ".h5", ".hdf5", ".mat", ".csv", ".npy":
		return true
	default:
		return false
	}
}

// Classify attributes a file to a pipeline stage by its name: compensated
// recordings and displacement fields come out of stage 1, masks out of
// stage 2, traces out of stage 3.
func Classify(path string) Stage {
	name := strings.ToLower(filepath.Base(path))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	switch {
	case strings.HasSuffix(stem, "_traces") || strings.HasSuffix(stem, "_trace"):
		return StageTraces
	case strings.HasSuffix(stem, "_masks") || strings.HasSuffix(stem, "_mask") || strings.HasSuffix(stem, "_segmentation"):
		return StageSegmentation
	case strings.HasSuffix(stem, "_compensated") || strings.HasSuffix(stem, "_w") || stem == "w":
		return StageCompensation
	default:
		return StageUnknown
	}
}
