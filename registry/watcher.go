package registry

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"speakerid/logger"
)

const reloadDebounce = 500 * time.Millisecond

// Watched is the minimal registry surface the watcher needs.
type Watched interface {
	ModelsDir() string
	Reload() int
}

// NewWatcher starts watching the registry's models directory and reloads the
// registry when model, metadata or label files change, covering training runs
// done out of process (the CLI) without a service restart. Events are
// debounced so one run writing model, metadata and labels triggers a single
// reload. The returned watcher is closed when ctx is cancelled.
func NewWatcher(ctx context.Context, reg Watched) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(reg.ModelsDir()); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		reload := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !relevantFile(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case <-reload:
				count := reg.Reload()
				logger.L().Infow("registry reloaded after file change", "models", count)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.L().Warnw("models directory watch error", "error", err)
			}
		}
	}()
	return watcher, nil
}

func relevantFile(path string) bool {
	name := filepath.Base(path)
	if name == SpeakerLabelsFile {
		return true
	}
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".meta")
}
