package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
)

type fakeSource struct {
	mu        sync.Mutex
	hosts     []domain.Host
	groups    [][]domain.ServiceSpec
	err       error
	block     chan struct{} // when set, calls wait on it or on ctx
	entered   chan struct{}
	listCalls atomic.Int32
	grpCalls  atomic.Int32
	bothCalls atomic.Int32
	filters   []domain.HostFilter
}

func (f *fakeSource) wait(ctx context.Context) error {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSource) ListHosts(ctx context.Context, filter domain.HostFilter) ([]domain.Host, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hosts, f.err
}

func (f *fakeSource) ListGatewayGroups(ctx context.Context) ([][]domain.ServiceSpec, error) {
	f.grpCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups, nil
}

func (f *fakeSource) FetchHostsAndGroups(ctx context.Context) ([]domain.Host, [][]domain.ServiceSpec, error) {
	f.bothCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.hosts, f.groups, nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeUpdater struct {
	mu    sync.Mutex
	specs []domain.ServiceSpec
	err   error
}

func (f *fakeUpdater) UpdateService(_ context.Context, spec domain.ServiceSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	return f.err
}

type fakeTasks struct {
	names []string
	metas []map[string]any
}

func (f *fakeTasks) Run(ctx context.Context, name string, meta map[string]any, call func(context.Context) error) error {
	f.names = append(f.names, name)
	f.metas = append(f.metas, meta)
	return call(ctx)
}

type fakeNotifier struct{ messages []string }

func (f *fakeNotifier) NotifyError(m string) { f.messages = append(f.messages, m) }

type recorder struct {
	mu     sync.Mutex
	events []string
	rows   [][]domain.GatewayNodeRow
	counts []int
}

func (r *recorder) RowsChanged(rows []domain.GatewayNodeRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "rows")
	r.rows = append(r.rows, rows)
}

func (r *recorder) CountChanged(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "count")
	r.counts = append(r.counts, n)
}

func hostsNamed(names ...string) []domain.Host {
	out := make([]domain.Host, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Host{Hostname: n})
	}
	return out
}

func rowNames(rows []domain.GatewayNodeRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Hostname)
	}
	return out
}

func group1(hosts ...string) [][]domain.ServiceSpec {
	return [][]domain.ServiceSpec{{{
		ServiceType: "nvmeof",
		ServiceID:   "nvmeof.group1",
		ServiceName: "nvmeof.group1",
		Spec:        map[string]any{"group": "group1"},
		Placement:   &domain.Placement{Hosts: hosts},
	}}}
}

func TestSelectorExcludesUsedHosts(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1", "h2", "h3"), groups: group1("h1")}
	rec := &recorder{}
	a := New(Deps{Source: src, Observer: rec})
	defer a.Dispose()

	fc := NewFetchContext(domain.HostFilter{Search: "h", Limit: 5}, nil)
	require.True(t, a.Fetch(context.Background(), ModeSelector, "", fc))

	view := a.View()
	assert.Equal(t, []string{"h2", "h3"}, rowNames(view.Rows))
	assert.Equal(t, 2, view.Count)
	assert.Equal(t, []string{"rows", "count"}, rec.events)
	assert.Equal(t, []int{2}, rec.counts)
	assert.Equal(t, []domain.HostFilter{{Search: "h", Limit: 5}}, src.filters)
}

func TestDetailsListsGroupMembers(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1", "h2", "h3"), groups: group1("h1", "h3")}
	a := New(Deps{Source: src})
	defer a.Dispose()

	require.True(t, a.Fetch(context.Background(), ModeDetails, "group1", nil))

	view := a.View()
	assert.Equal(t, []string{"h1", "h3"}, rowNames(view.Rows))
	assert.True(t, view.GroupFound)
	assert.True(t, view.HasAvailableHosts)
	assert.Equal(t, []string{"h1", "h3"}, view.UsedHostnames)
	assert.Equal(t, int32(1), src.bothCalls.Load())
	assert.Equal(t, int32(0), src.listCalls.Load())
}

func TestDetailsUnknownGroupEmitsZero(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1"), groups: group1("h1")}
	rec := &recorder{}
	a := New(Deps{Source: src, Observer: rec})
	defer a.Dispose()

	require.True(t, a.Fetch(context.Background(), ModeDetails, "other", nil))

	assert.Empty(t, a.View().Rows)
	assert.False(t, a.View().GroupFound)
	assert.Equal(t, []int{0}, rec.counts)
}

func TestDetailsRequiresGroupName(t *testing.T) {
	src := &fakeSource{}
	var errs []error
	a := New(Deps{Source: src})
	defer a.Dispose()

	a.Fetch(context.Background(), ModeDetails, "", NewFetchContext(domain.HostFilter{}, func(err error) { errs = append(errs, err) }))

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrGroupRequired)
	assert.Equal(t, int32(0), src.bothCalls.Load())
}

func TestConcurrentFetchIsDropped(t *testing.T) {
	src := &fakeSource{
		hosts:   hostsNamed("h1"),
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	rec := &recorder{}
	a := New(Deps{Source: src, Observer: rec})
	defer a.Dispose()

	done := make(chan bool)
	go func() { done <- a.Fetch(context.Background(), ModeSelector, "", nil) }()

	<-src.entered
	assert.True(t, a.Loading())
	assert.False(t, a.Fetch(context.Background(), ModeSelector, "", nil))

	close(src.block)
	assert.True(t, <-done)

	assert.Equal(t, int32(1), src.listCalls.Load())
	assert.Len(t, rec.rows, 1)
	assert.False(t, a.Loading())
}

func TestFetchErrorKeepsRowsAndCallsBackOnce(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1", "h2"), groups: group1("h1")}
	rec := &recorder{}
	a := New(Deps{Source: src, Observer: rec})
	defer a.Dispose()

	var calls int
	fc := NewFetchContext(domain.HostFilter{}, func(error) { calls++ })
	require.True(t, a.Fetch(context.Background(), ModeDetails, "group1", fc))
	require.Equal(t, []string{"h1"}, rowNames(a.View().Rows))

	src.setErr(errors.New("500 internal error"))
	require.True(t, a.Fetch(context.Background(), ModeDetails, "group1", nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"h1"}, rowNames(a.View().Rows))
	assert.Contains(t, a.View().LastError, "500 internal error")
	assert.Len(t, rec.rows, 1)

	src.setErr(nil)
	assert.True(t, a.Fetch(context.Background(), ModeDetails, "group1", nil), "guard must be cleared after an error")
	assert.Empty(t, a.View().LastError)
}

func TestFetchContextIsReplaced(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	a := New(Deps{Source: src})
	defer a.Dispose()

	var first, second int
	a.Fetch(context.Background(), ModeDetails, "g", NewFetchContext(domain.HostFilter{}, func(error) { first++ }))
	a.Fetch(context.Background(), ModeDetails, "g", NewFetchContext(domain.HostFilter{}, func(error) { second++ }))
	a.Fetch(context.Background(), ModeDetails, "g", nil)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestDroppedFetchKeepsContext(t *testing.T) {
	src := &fakeSource{
		hosts:   hostsNamed("h1", "h2"),
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	a := New(Deps{Source: src})
	defer a.Dispose()

	running := NewFetchContext(domain.HostFilter{Search: "h1"}, nil)
	done := make(chan bool)
	go func() { done <- a.Fetch(context.Background(), ModeSelector, "", running) }()
	<-src.entered

	dropped := NewFetchContext(domain.HostFilter{Search: "h2"}, nil)
	assert.False(t, a.Fetch(context.Background(), ModeSelector, "", dropped))

	close(src.block)
	require.True(t, <-done)
	assert.Equal(t, "h1", a.View().Filter.Search)

	require.True(t, a.Fetch(context.Background(), ModeSelector, "", nil))
	src.mu.Lock()
	last := src.filters[len(src.filters)-1]
	src.mu.Unlock()
	assert.Equal(t, "h1", last.Search, "a dropped call must not replace the reused context")
}

func TestViewRecordsFilter(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1"), groups: group1()}
	a := New(Deps{Source: src})
	defer a.Dispose()

	filter := domain.HostFilter{Search: "h", Sort: "-hostname", Limit: 5}
	require.True(t, a.Fetch(context.Background(), ModeSelector, "", NewFetchContext(filter, nil)))
	assert.Equal(t, filter, a.View().Filter)

	require.True(t, a.Fetch(context.Background(), ModeDetails, "group1", NewFetchContext(filter, nil)))
	assert.True(t, a.View().Filter.IsZero(), "details rows are not filtered")
}

func TestCancelledFetchDoesNotReportError(t *testing.T) {
	src := &fakeSource{
		hosts:   hostsNamed("h1"),
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	a := New(Deps{Source: src})
	defer a.Dispose()

	var calls atomic.Int32
	fc := NewFetchContext(domain.HostFilter{}, func(error) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Fetch(ctx, ModeDetails, "group1", fc)
		close(done)
	}()
	<-src.entered
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, a.View().Loaded)
	assert.False(t, a.Loading())
}

func TestDisposeStopsFetching(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1")}
	a := New(Deps{Source: src})
	a.Dispose()

	assert.False(t, a.Fetch(context.Background(), ModeSelector, "", nil))
	assert.Equal(t, int32(0), src.listCalls.Load())
}

func TestSelectionFollowsRows(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1", "h2"), groups: group1("h1", "h2")}
	a := New(Deps{Source: src})
	defer a.Dispose()

	require.True(t, a.Fetch(context.Background(), ModeDetails, "group1", nil))
	assert.Equal(t, []string{"h1", "h2"}, a.Select("h1", "h2", "ghost"))

	src.mu.Lock()
	src.groups = group1("h2")
	src.mu.Unlock()
	require.True(t, a.Fetch(context.Background(), ModeDetails, "group1", nil))

	assert.Equal(t, []string{"h2"}, a.Selected())
	a.ClearSelection()
	assert.Empty(t, a.Selected())
}

func TestRegistryReusesAggregators(t *testing.T) {
	r := NewRegistry(Deps{Source: &fakeSource{}})
	assert.Same(t, r.Selector(), r.Selector())
	assert.Same(t, r.Details("g1"), r.Details("g1"))
	assert.NotSame(t, r.Details("g1"), r.Details("g2"))
	assert.Equal(t, 3, r.Len())

	sel := r.Selector()
	r.DisposeAll()
	assert.Equal(t, 0, r.Len())
	assert.False(t, sel.Fetch(context.Background(), ModeSelector, "", nil))
}

func TestRegistryPrunesIdleDetails(t *testing.T) {
	r := NewRegistry(Deps{Source: &fakeSource{}})
	clock := time.Now()
	r.now = func() time.Time { return clock }

	sel := r.Selector()
	stale := r.Details("g1")
	clock = clock.Add(time.Hour)
	fresh := r.Details("g2")

	assert.Equal(t, []string{"details:g1"}, r.PruneIdle(30*time.Minute))
	assert.Equal(t, 2, r.Len())
	assert.False(t, stale.Fetch(context.Background(), ModeDetails, "g1", nil), "pruned aggregator is disposed")
	assert.Same(t, fresh, r.Details("g2"))
	assert.Same(t, sel, r.Selector())
	assert.NotSame(t, stale, r.Details("g1"))
}

func TestRegistryQuery(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1", "h2"), groups: group1("h1")}
	rec := &recorder{}
	r := NewRegistry(Deps{Source: src, Observer: rec})
	defer r.DisposeAll()

	require.True(t, r.Selector().Fetch(context.Background(), ModeSelector, "", nil))

	v, err := r.Query(context.Background(), domain.HostFilter{Search: "h2"})
	require.NoError(t, err)
	assert.Equal(t, "h2", v.Filter.Search)
	assert.Equal(t, []string{"h2"}, rowNames(v.Rows))

	assert.True(t, r.Selector().View().Filter.IsZero(), "shared selector untouched")
	assert.Len(t, rec.rows, 1, "queries do not notify the observer")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryQueryTimeout(t *testing.T) {
	src := &fakeSource{hosts: hostsNamed("h1"), block: make(chan struct{})}
	r := NewRegistry(Deps{Source: src})
	defer r.DisposeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Query(ctx, domain.HostFilter{Search: "h"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
