package registry

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback receives the ids of automations whose files changed on disk.
// A removed file reports its id too; the caller re-reads the registry to find
// out what happened.
type ChangeCallback func(ids []string)

// Watcher monitors the registry directory for external edits. The desktop
// app and the user both write these files, so the engine re-syncs its timers
// whenever something changes underneath it.
type Watcher struct {
	watcher  *fsnotify.Watcher
	callback ChangeCallback
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	cancel context.CancelFunc
}

// NewWatcher creates a watcher over the registry's directory
func NewWatcher(reg *Registry, callback ChangeCallback) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(reg.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fsw,
		callback: callback,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
	}, nil
}

// SetDebounce overrides the batching window, mainly for tests
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins delivering change callbacks until ctx is cancelled or Stop is
// called
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("registry watcher: %v", err)
			}
		}
	}()
}

// Stop stops watching
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := event.Name
	if !strings.HasSuffix(name, ".md") {
		return
	}
	// Atomic writes land as a rename; deletes matter too.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	base := name[strings.LastIndexByte(name, '/')+1:]
	id := strings.TrimSuffix(base, ".md")
	if id == "" || strings.HasPrefix(id, ".") {
		return // temp files from atomic writes
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[id] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	w.callback(ids)
}
