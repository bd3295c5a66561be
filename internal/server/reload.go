package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches the classifier config file and swaps the rule table
// on change, without restarting the server.
type Reloader struct {
	watcher *fsnotify.Watcher
	server  *Server
	logger  *slog.Logger
}

// NewReloader creates a file watcher for the server's classifier config
// path. A missing or empty path is not an error: there is nothing to
// watch, so the reloader is nil.
func NewReloader(server *Server) (*Reloader, error) {
	path := server.cfg.ClassifierPath
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("server: create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("server: watch %q: %w", path, err)
	}

	return &Reloader{watcher: watcher, server: server, logger: server.logger}, nil
}

// Run watches for file changes and reloads the classifier config.
// Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after the last write before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.server.ReloadClassifier(); err != nil {
						r.logger.Warn("hot-reload failed", "error", err)
					} else {
						r.logger.Info("hot-reload: classifier config reloaded")
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", "error", err)
		}
	}
}
