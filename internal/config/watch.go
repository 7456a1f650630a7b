package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events an editor save produces.
const DefaultWatchDebounce = 250 * time.Millisecond

// WatchOptions tunes Watch.
type WatchOptions struct {
	Debounce time.Duration
	// OnError receives watcher errors. Nil drops them.
	OnError func(error)
}

// Watch reports changes to any of paths until ctx is done. The parent
// directory of each path is watched so files created after startup are seen;
// directories that do not exist are skipped. onChange runs on the watcher
// goroutine with the last changed path of each debounce window.
func Watch(ctx context.Context, paths []string, opts WatchOptions, onChange func(path string)) error {
	if onChange == nil {
		return fmt.Errorf("watch config: onChange is required")
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	targets := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = fsw.Close()
			return fmt.Errorf("resolve config path %q: %w", path, err)
		}
		targets[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, seen := dirs[dir]; seen {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch config directory %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	go watchLoop(ctx, fsw, targets, debounce, opts.OnError, onChange)
	return nil
}

func watchLoop(
	ctx context.Context,
	fsw *fsnotify.Watcher,
	targets map[string]struct{},
	debounce time.Duration,
	onError func(error),
	onChange func(path string),
) {
	defer fsw.Close()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, ok := targets[name]; !ok {
				continue
			}
			pending = name
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if pending != "" {
				onChange(pending)
				pending = ""
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
