package rules

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sentra-ai/sentra/internal/redact"
)

// Registry hands out the current rule snapshot. Reload replaces the
// snapshot pointer atomically; in-flight scans keep the snapshot they
// started with.
type Registry struct {
	path string
	snap atomic.Pointer[Snapshot]
}

// NewRegistry loads the pack at path and returns a registry serving it.
func NewRegistry(path string) (*Registry, error) {
	snap, err := LoadPack(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path}
	r.snap.Store(snap)
	redact.Logf("rules: loaded pack=%s version=%s rules=%d", snap.PackID, snap.PackVersion, len(snap.Rules))
	return r, nil
}

// NewStaticRegistry wraps a pre-built snapshot, mainly for tests and
// embedded callers that manage their own rules.
func NewStaticRegistry(snap *Snapshot) *Registry {
	r := &Registry{}
	r.snap.Store(snap)
	return r
}

// Snapshot returns the current rule set. The returned value is read-only.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Reload re-reads the pack from disk. On failure the previous snapshot
// stays active.
func (r *Registry) Reload() error {
	snap, err := LoadPack(r.path)
	if err != nil {
		return err
	}
	r.snap.Store(snap)
	redact.Logf("rules: reloaded pack=%s version=%s rules=%d", snap.PackID, snap.PackVersion, len(snap.Rules))
	return nil
}

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the pack when the file changes on disk. Blocks until ctx is
// cancelled. Events are debounced so editors that write in several steps
// trigger one reload.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: rename-based saves replace the
	// inode and would silently drop a file-level watch.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			redact.Warnf("rules: watch error: %v", err)
		case <-fire:
			if err := r.Reload(); err != nil {
				redact.Errorf("rules: reload failed, keeping previous snapshot: %v", err)
			}
		}
	}
}
