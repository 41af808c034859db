package launcher

import (
	"slices"
	"sync"

	"github.com/zjrosen/cordee/internal/log"
)

// Registry holds launcher APIs ordered by precedence: descending Priority
// value, ties kept in registration order (the first registered of an equal
// priority sits earlier). Registration is additive; the registry never
// shrinks and never deduplicates.
//
// Reads and writes are guarded by an RWMutex so packages may register
// launchers from init while others already query.
type Registry struct {
	mu   sync.RWMutex
	apis []API
	cfg  Config
}

// NewRegistry creates an empty registry. cfg configures the fresh Default
// fallback that Active constructs when no registered API claims the
// environment.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg.withDefaults()}
}

// Register inserts api before the first entry with strictly lower
// priority, appending when none exists. Nil entries are skipped silently.
func (r *Registry) Register(api API) {
	if api == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pos := len(r.apis)
	for i, existing := range r.apis {
		if existing.Priority() >= api.Priority() {
			continue
		}
		pos = i
		break
	}
	r.apis = slices.Insert(r.apis, pos, api)

	log.Debug(log.CatRegistry, "registered launcher API",
		"name", api.Name(), "priority", api.Priority(), "position", pos, "total", len(r.apis))
}

// RegisterAll registers every non-nil entry in order.
func (r *Registry) RegisterAll(apis ...API) {
	for _, api := range apis {
		r.Register(api)
	}
}

// Active returns the highest-precedence API whose IsActive reports true,
// scanning head to tail and short-circuiting on the first match. When no
// entry claims the environment it returns a fresh Default, constructed per
// call and never stored in the registry.
func (r *Registry) Active() API {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, api := range r.apis {
		if api.IsActive() {
			return api
		}
	}
	return NewDefault(r.cfg)
}

// All returns a snapshot of the registered APIs in precedence order.
// The slice is the caller's; the entries are shared.
func (r *Registry) All() []API {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]API, len(r.apis))
	copy(out, r.apis)
	return out
}

// Len returns the number of registered APIs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.apis)
}
