package diag

import (
	"sync"

	"github.com/zjrosen/cordee/internal/log"
)

// Filter is the re-emission policy for captured warnings. Each unique
// warning passes through once per Filter lifetime; repeats are dropped.
// First occurrences are written to the structured log and fanned out to
// broker subscribers.
type Filter struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	broker *Broker
}

// NewFilter creates a filter with its own broker.
func NewFilter() *Filter {
	return &Filter{
		seen:   make(map[string]struct{}),
		broker: NewBroker(),
	}
}

// Emit forwards first-seen warnings to the log and the broker.
func (f *Filter) Emit(warnings []Warning) {
	for _, w := range warnings {
		f.mu.Lock()
		if _, dup := f.seen[w.key()]; dup {
			f.mu.Unlock()
			continue
		}
		f.seen[w.key()] = struct{}{}
		f.mu.Unlock()

		log.Warn(log.CatDiag, w.Message,
			"category", w.Category,
			"launcher", w.Launcher,
			"query", w.Query)
		f.broker.Publish(w)
	}
}

// Broker exposes the filter's broker for subscriptions.
func (f *Filter) Broker() *Broker {
	return f.broker
}

// SeenCount returns how many unique warnings have passed the filter.
func (f *Filter) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Reset clears the dedup set so previously seen warnings re-emit.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]struct{})
}

var (
	defaultFilter     *Filter
	defaultFilterOnce sync.Once
)

// Default returns the process-wide shared filter.
func Default() *Filter {
	defaultFilterOnce.Do(func() {
		defaultFilter = NewFilter()
	})
	return defaultFilter
}
