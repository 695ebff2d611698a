package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// Editors produce bursts of write/rename events; reloading is
	// deferred until the burst settles so partial writes are not parsed.
	debounceDelay = 250 * time.Millisecond

	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watch monitors the config file and invokes onChange with the reloaded
// config (or the load error) after every settled change. It blocks until
// ctx is cancelled. The watcher is recreated with backoff if it breaks,
// which happens on some platforms when the watched directory is replaced.
func Watch(ctx context.Context, path string, onChange func(Config, error)) {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	var timerMu sync.Mutex
	var timer *time.Timer
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() {
			cfg, err := Load(path)
			if err != nil {
				slog.Warn("[CONFIG] Reload failed", "path", path, "error", err)
			} else {
				slog.Info("[CONFIG] Reloaded", "path", path)
			}
			onChange(cfg, err)
		})
	}

	backoff := restartBackoffBase
	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			slog.Warn("[CONFIG] Watch setup failed", "dir", dir, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, restartBackoffMax)
			continue
		}
		backoff = restartBackoffBase
		slog.Debug("[CONFIG] Watching", "dir", dir, "file", file)

		if !watchEvents(ctx, w, file, debounce) {
			_ = w.Close()
			return
		}
		_ = w.Close()

		// Watcher broke; recreate after a short pause.
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, restartBackoffMax)
	}
}

// watchEvents consumes watcher events until the context is cancelled
// (returns false) or the watcher breaks (returns true, caller restarts).
func watchEvents(ctx context.Context, w *fsnotify.Watcher, file string, debounce func()) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-w.Events:
			if !ok {
				return true
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return true
			}
			if err != nil {
				slog.Warn("[CONFIG] Watch error", "error", err)
			}
		}
	}
}
