package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

// Registry hands out one Aggregator per view: a single selector aggregator
// and one details aggregator per group.
type Registry struct {
	mu    sync.Mutex
	deps  Deps
	now   func() time.Time
	views map[string]*entry
}

type entry struct {
	agg      *Aggregator
	lastUsed time.Time
}

// NewRegistry creates a registry sharing deps across its aggregators.
func NewRegistry(d Deps) *Registry {
	return &Registry{deps: d, now: time.Now, views: make(map[string]*entry)}
}

// Selector returns the selector-mode aggregator.
func (r *Registry) Selector() *Aggregator {
	return r.get(string(ModeSelector))
}

// Details returns the details-mode aggregator of group.
func (r *Registry) Details(group string) *Aggregator {
	return r.get(detailsKey(group))
}

func detailsKey(group string) string {
	return string(ModeDetails) + ":" + group
}

func (r *Registry) get(key string) *Aggregator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.views[key]; ok {
		e.lastUsed = r.now()
		return e.agg
	}
	d := r.deps
	if d.Logger != nil {
		d.Logger = d.Logger.With(logger.String("view", key))
	}
	a := New(d)
	r.views[key] = &entry{agg: a, lastUsed: r.now()}
	return a
}

// Query runs one selector cycle for filter on a private aggregator, so callers
// listing with different table parameters never share rows. The observer is
// not notified. A cycle cut short by ctx returns ctx's error.
func (r *Registry) Query(ctx context.Context, filter domain.HostFilter) (View, error) {
	d := r.deps
	d.Observer = nil
	if d.Logger != nil {
		d.Logger = d.Logger.With(logger.String("view", "query"))
	}
	a := New(d)
	defer a.Dispose()

	var fetchErr error
	a.Fetch(ctx, ModeSelector, "", NewFetchContext(filter, func(err error) { fetchErr = err }))
	if fetchErr != nil {
		return View{}, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return View{}, err
	}
	return a.View(), nil
}

// Len returns the number of live aggregators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// PruneIdle disposes details aggregators not handed out for idle and returns
// their keys. The selector aggregator is never pruned, nor is one with a
// cycle in flight.
func (r *Registry) PruneIdle(idle time.Duration) []string {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var pruned []*Aggregator
	var keys []string
	for key, e := range r.views {
		if key == string(ModeSelector) || !e.lastUsed.Before(cutoff) || e.agg.Loading() {
			continue
		}
		delete(r.views, key)
		pruned = append(pruned, e.agg)
		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, a := range pruned {
		a.Dispose()
	}
	sort.Strings(keys)
	return keys
}

// DisposeAll disposes every aggregator and empties the registry.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range views {
		e.agg.Dispose()
	}
}
