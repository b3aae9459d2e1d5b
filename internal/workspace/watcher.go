package workspace

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler receives the debounced set of files written outside this
// process, in the order they were first seen.
type ChangeHandler func(paths []string)

// Watcher reports external writes to source files and the architecture
// file. Writes whose content matches what the workspace itself saved are
// dropped.
type Watcher struct {
	ws       *Workspace
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	extra    map[string]bool

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher over the workspace root. Files listed in
// extra are reported even if they do not carry the source extension.
func NewWatcher(ws *Workspace, debounce time.Duration, handler ChangeHandler, extra ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	w := &Watcher{
		ws:       ws,
		watcher:  fw,
		handler:  handler,
		debounce: debounce,
		extra:    make(map[string]bool),
		changes:  make(chan string, 256),
		done:     make(chan struct{}),
	}
	for _, e := range extra {
		w.extra[filepath.Clean(e)] = true
	}
	return w, nil
}

// Start registers every project directory and begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.ws.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.ws.root && ignoreDir(d.Name(), w.ws.opts.IgnoreDirs) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
	if err != nil {
		return err
	}
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) relevant(path string) bool {
	return filepath.Ext(path) == w.ws.opts.Extension || w.extra[filepath.Clean(path)]
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !ignoreDir(filepath.Base(event.Name), w.ws.opts.IgnoreDirs) {
						w.watcher.Add(event.Name)
					}
					continue
				}
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
				log.Warning("dropping file change, buffer full", "path", event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []string
	seen := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	flush := func() {
		var external []string
		for _, path := range batch {
			if w.ws.IsEcho(path) {
				log.Debug("ignoring echo of own save", "path", path)
				continue
			}
			external = append(external, path)
		}
		batch = batch[:0]
		seen = map[string]bool{}
		if len(external) > 0 && w.handler != nil {
			w.handler(external)
		}
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.done:
			timer.Stop()
			return
		case path := <-w.changes:
			if !seen[path] {
				seen[path] = true
				batch = append(batch, path)
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			flush()
		}
	}
}
