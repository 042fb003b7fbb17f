package service

import (
	"context"
	"sync"

	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

type watcher struct {
	ch     chan *entity.Match
	closed bool
}

// watchers fans match snapshots out to subscribers. Sends and closes happen
// under mu so a channel is never written after it was closed.
type watchers struct {
	mu   sync.Mutex
	subs map[string]map[*watcher]struct{}
}

func newWatchers() *watchers {
	return &watchers{subs: make(map[string]map[*watcher]struct{})}
}

func (that *watchers) subscribe(ctx context.Context, id string) (<-chan *entity.Match, func()) {
	that.mu.Lock()
	defer that.mu.Unlock()

	set := that.subs[id]
	if set == nil {
		set = make(map[*watcher]struct{})
		that.subs[id] = set
	}

	w := &watcher{ch: make(chan *entity.Match, 1)}
	set[w] = struct{}{}

	done := make(chan struct{})

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)

			that.mu.Lock()
			defer that.mu.Unlock()

			that.removeLocked(id, w)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-done:
		}
	}()

	return w.ch, unsubscribe
}

// publish sends a copy of match to every subscriber. A subscriber whose buffer
// is still full is dropped.
func (that *watchers) publish(match *entity.Match) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for w := range that.subs[match.ID] {
		select {
		case w.ch <- match.Clone():
		default:
			that.removeLocked(match.ID, w)
		}
	}
}

func (that *watchers) closeAll(id string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for w := range that.subs[id] {
		that.removeLocked(id, w)
	}
}

func (that *watchers) count(id string) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.subs[id])
}

func (that *watchers) removeLocked(id string, w *watcher) {
	if !w.closed {
		w.closed = true
		close(w.ch)
	}

	set := that.subs[id]
	delete(set, w)

	if len(set) == 0 {
		delete(that.subs, id)
	}
}
