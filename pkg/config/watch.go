package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/onyx-dev/onyx-database-go/internal/debug"
)

const watchDebounce = 200 * time.Millisecond

// Watcher invalidates a Resolver when one of its credential files changes.
type Watcher struct {
	resolver *Resolver
	files    map[string]bool
	watcher  *fsnotify.Watcher
	onChange func(path string)
	done     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching paths on the OS filesystem. onChange, if not nil,
// runs after each invalidation. Files that do not exist yet are picked up
// when they are created.
func (r *Resolver) Watch(paths []string, onChange func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		resolver: r,
		files:    make(map[string]bool),
		watcher:  fw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		// The directory is watched so that replaced files are seen.
		if err := fw.Add(dir); err != nil {
			debug.Debug("cannot watch config directory", "dir", dir, "error", err)
		}
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	debounceTimer := time.NewTimer(watchDebounce)
	debounceTimer.Stop()
	var debounceCh <-chan time.Time
	var changed string

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			path, err := filepath.Abs(event.Name)
			if err != nil || !w.files[path] {
				continue
			}
			changed = path
			debounceTimer.Reset(watchDebounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.resolver.Invalidate()
			debug.Debug("config file changed; cache invalidated", "path", changed)
			if w.onChange != nil {
				w.onChange(changed)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			debug.Warn("config watch error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// CandidatePaths lists the files a full resolver would consult for
// databaseID, in precedence order.
func (r *Resolver) CandidatePaths(databaseID, configPath string) []string {
	var out []string
	if configPath != "" {
		out = append(out, configPath)
	}
	if databaseID != "" {
		out = append(out, filepath.Join(r.workDir, ProfileFileName(databaseID)))
	}
	out = append(out, filepath.Join(r.workDir, FileName))
	if home, err := r.home(); err == nil && home != "" {
		dir := filepath.Join(home, ProfileDir)
		if databaseID != "" {
			out = append(out, filepath.Join(dir, ProfileFileName(databaseID)))
		}
		out = append(out, filepath.Join(dir, FileName), filepath.Join(home, FileName))
	}
	return out
}
