// Package diag carries advisory diagnostics raised while launcher
// environments are queried. Warnings produced during a query are captured
// in a context-scoped recorder, then re-emitted once per unique warning
// through a shared filter. Warnings never fail the query that raised them.
package diag

import (
	"context"
	"fmt"
	"sync"
)

// Category groups warnings by origin.
type Category string

const (
	// CategoryLauncher tags advisories raised by launcher detection and
	// queries: approximated values, single-process assumptions, deprecated
	// environment variables.
	CategoryLauncher Category = "launcher"

	// CategoryBootstrap tags failures of one-time setup side effects.
	CategoryBootstrap Category = "bootstrap"
)

// Warning is a single advisory diagnostic.
type Warning struct {
	Category Category
	Launcher string
	Query    string
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s/%s: %s", w.Category, w.Launcher, w.Query, w.Message)
}

// key identifies a warning for deduplication.
func (w Warning) key() string {
	return fmt.Sprintf("%s|%s|%s|%s", w.Category, w.Launcher, w.Query, w.Message)
}

// Advisory builds a launcher-category warning.
func Advisory(launcher, query, message string) Warning {
	return Warning{
		Category: CategoryLauncher,
		Launcher: launcher,
		Query:    query,
		Message:  message,
	}
}

type ctxKey int

const (
	recorderKey ctxKey = iota
	mutedKey
)

// Recorder collects warnings raised within a capture scope.
type Recorder struct {
	mu       sync.Mutex
	muted    map[Category]bool
	warnings []Warning
}

// Capture installs a fresh recorder in the context. Warnings raised with
// Warn against the returned context accumulate in the recorder instead of
// reaching the shared filter directly. Muted categories from the parent
// context carry over.
func Capture(ctx context.Context) (context.Context, *Recorder) {
	rec := &Recorder{muted: mutedFrom(ctx)}
	return context.WithValue(ctx, recorderKey, rec), rec
}

// WithMuted marks categories to be dropped by any capture scope (or
// unscoped Warn) derived from the returned context.
func WithMuted(ctx context.Context, cats ...Category) context.Context {
	muted := make(map[Category]bool, len(cats))
	for k, v := range mutedFrom(ctx) {
		muted[k] = v
	}
	for _, c := range cats {
		muted[c] = true
	}
	return context.WithValue(ctx, mutedKey, muted)
}

func mutedFrom(ctx context.Context) map[Category]bool {
	if m, ok := ctx.Value(mutedKey).(map[Category]bool); ok {
		return m
	}
	return nil
}

// Warn records the warning in the innermost capture scope. Without a scope
// it goes straight to the shared filter.
func Warn(ctx context.Context, w Warning) {
	if rec, ok := ctx.Value(recorderKey).(*Recorder); ok && rec != nil {
		rec.record(w)
		return
	}
	if mutedFrom(ctx)[w.Category] {
		return
	}
	Default().Emit([]Warning{w})
}

func (r *Recorder) record(w Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.muted[w.Category] {
		return
	}
	r.warnings = append(r.warnings, w)
}

// Drain returns the captured warnings and clears the recorder.
func (r *Recorder) Drain() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.warnings
	r.warnings = nil
	return out
}

// Len returns the number of warnings currently captured.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}
