package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/metrics"
)

// Mode selects which view an aggregator produces.
type Mode string

const (
	// ModeSelector lists hosts not placed on any gateway group.
	ModeSelector Mode = "selector"
	// ModeDetails lists the hosts placed on one gateway group.
	ModeDetails Mode = "details"
)

var (
	ErrGroupRequired   = errors.New("group name is required in details mode")
	ErrGroupNotFound   = errors.New("gateway group not found")
	ErrNoSelection     = errors.New("exactly one gateway node must be selected")
	ErrNotMember       = errors.New("host is not a member of the gateway group")
	ErrHostUnavailable = errors.New("host is not available")
	ErrDeclined        = errors.New("action was not confirmed")
	ErrDisposed        = errors.New("aggregator disposed")
)

// ClusterSource provides the host inventory and the gateway group placements.
type ClusterSource interface {
	ListHosts(ctx context.Context, filter domain.HostFilter) ([]domain.Host, error)
	ListGatewayGroups(ctx context.Context) ([][]domain.ServiceSpec, error)
	FetchHostsAndGroups(ctx context.Context) ([]domain.Host, [][]domain.ServiceSpec, error)
}

// PlacementUpdater submits a full replacement service spec.
type PlacementUpdater interface {
	UpdateService(ctx context.Context, spec domain.ServiceSpec) error
}

// TaskRunner wraps a mutation with task bookkeeping.
type TaskRunner interface {
	Run(ctx context.Context, name string, metadata map[string]any, call func(context.Context) error) error
}

// ErrorNotifier surfaces non-blocking error messages.
type ErrorNotifier interface {
	NotifyError(message string)
}

// Observer receives every successful emission, rows first then the count.
type Observer interface {
	RowsChanged(rows []domain.GatewayNodeRow)
	CountChanged(n int)
}

// FetchContext carries the table parameters of a fetch and its error callback.
type FetchContext struct {
	Filter  domain.HostFilter
	OnError func(error)
}

// NewFetchContext builds a FetchContext.
func NewFetchContext(filter domain.HostFilter, onError func(error)) *FetchContext {
	return &FetchContext{Filter: filter, OnError: onError}
}

// Error reports a failed cycle.
func (fc *FetchContext) Error(err error) {
	if fc != nil && fc.OnError != nil {
		fc.OnError(err)
	}
}

// Deps are the collaborators of an Aggregator. Updater, Tasks, Notifier and
// Observer are optional.
type Deps struct {
	Source   ClusterSource
	Updater  PlacementUpdater
	Tasks    TaskRunner
	Notifier ErrorNotifier
	Observer Observer
	Logger   logger.Logger
}

// View is a consistent copy of the aggregator state.
type View struct {
	Mode              Mode                    `json:"mode"`
	Group             string                  `json:"group,omitempty"`
	Filter            domain.HostFilter       `json:"filter"`
	Rows              []domain.GatewayNodeRow `json:"rows"`
	Count             int                     `json:"count"`
	Selected          []string                `json:"selected"`
	UsedHostnames     []string                `json:"used_hostnames,omitempty"`
	HasAvailableHosts bool                    `json:"has_available_hosts"`
	GroupFound        bool                    `json:"group_found"`
	Loaded            bool                    `json:"loaded"`
	UpdatedAt         time.Time               `json:"updated_at,omitzero"`
	LastError         string                  `json:"last_error,omitempty"`
}

// Aggregator joins host inventory with gateway group placements.
//
// At most one fetch cycle runs at a time: a Fetch issued while another is in
// flight is dropped. Every cycle derives from the aggregator lifetime, which
// Dispose ends.
type Aggregator struct {
	deps Deps
	log  logger.Logger

	lifetime context.Context
	dispose  context.CancelFunc
	inFlight atomic.Bool

	mu           sync.Mutex
	cycleCancel  context.CancelFunc
	fetchCtx     *FetchContext
	mode         Mode
	group        string
	filter       domain.HostFilter
	rows         []domain.GatewayNodeRow
	selection    map[string]struct{}
	spec         *domain.ServiceSpec
	hosts        map[string]struct{}
	used         map[string]struct{}
	hasAvailable bool
	loaded       bool
	updatedAt    time.Time
	lastErr      string
}

// New creates an aggregator whose lifetime ends with Dispose.
func New(d Deps) *Aggregator {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		deps:      d,
		log:       log,
		lifetime:  ctx,
		dispose:   cancel,
		mode:      ModeSelector,
		rows:      []domain.GatewayNodeRow{},
		selection: make(map[string]struct{}),
	}
}

// Fetch runs one fetch cycle and blocks until it completes. It returns false
// when the call was dropped because a cycle was already in flight or the
// aggregator is disposed.
//
// A nil fc reuses the context of the last call that ran.
func (a *Aggregator) Fetch(ctx context.Context, mode Mode, groupName string, fc *FetchContext) bool {
	if a.lifetime.Err() != nil {
		return false
	}
	if !a.inFlight.CompareAndSwap(false, true) {
		metrics.ObserveDropped(metrics.PipelineGatewayNodes)
		a.log.Debug("gateway node fetch dropped, cycle in flight",
			logger.String("mode", string(mode)),
			logger.String("group", groupName))
		return false
	}
	defer a.inFlight.Store(false)

	a.mu.Lock()
	if fc != nil {
		a.fetchCtx = fc
	} else if a.fetchCtx == nil {
		a.fetchCtx = NewFetchContext(domain.HostFilter{}, nil)
	}
	fc = a.fetchCtx
	a.mu.Unlock()

	cycleCtx, cancel := a.startCycle(ctx)
	defer cancel()
	start := time.Now()

	err := a.runCycle(cycleCtx, mode, groupName, fc.Filter)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.ObserveFetch(metrics.PipelineGatewayNodes, metrics.OutcomeSuccess, elapsed)
	case cycleCtx.Err() != nil:
		metrics.ObserveFetch(metrics.PipelineGatewayNodes, metrics.OutcomeCancelled, elapsed)
		a.log.Debug("gateway node fetch cancelled",
			logger.String("mode", string(mode)),
			logger.String("group", groupName))
	default:
		metrics.ObserveFetch(metrics.PipelineGatewayNodes, metrics.OutcomeError, elapsed)
		a.log.Warn("gateway node fetch failed",
			logger.String("mode", string(mode)),
			logger.String("group", groupName),
			logger.Error(err))
		a.mu.Lock()
		a.lastErr = err.Error()
		a.mu.Unlock()
		fc.Error(err)
	}
	return true
}

// startCycle cancels any previous cycle and returns the context of a new one.
// The caller's ctx also cancels the cycle.
func (a *Aggregator) startCycle(ctx context.Context) (context.Context, context.CancelFunc) {
	cycleCtx, cancel := context.WithCancel(a.lifetime)
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		context.AfterFunc(cycleCtx, func() { stop() })
	}

	a.mu.Lock()
	if a.cycleCancel != nil {
		a.cycleCancel()
	}
	a.cycleCancel = cancel
	a.mu.Unlock()
	return cycleCtx, cancel
}

func (a *Aggregator) runCycle(ctx context.Context, mode Mode, groupName string, filter domain.HostFilter) error {
	switch mode {
	case ModeSelector:
		hosts, groups, err := a.fetchSelector(ctx, filter)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		used := domain.UsedHostnames(groups)
		a.apply(mode, groupName, filter, domain.AvailableHosts(hosts, used), hosts, used, nil)
		return nil

	case ModeDetails:
		if groupName == "" {
			return ErrGroupRequired
		}
		hosts, groups, err := a.deps.Source.FetchHostsAndGroups(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch hosts and groups: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		used := domain.UsedHostnames(groups)
		var (
			rows []domain.Host
			spec *domain.ServiceSpec
		)
		if g, ok := domain.FindGroup(groups, groupName); ok {
			spec = &g
			rows = domain.MemberHosts(hosts, g)
		}
		a.apply(mode, groupName, domain.HostFilter{}, rows, hosts, used, spec)
		return nil

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (a *Aggregator) fetchSelector(ctx context.Context, filter domain.HostFilter) ([]domain.Host, [][]domain.ServiceSpec, error) {
	var (
		hosts  []domain.Host
		groups [][]domain.ServiceSpec
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hosts, err = a.deps.Source.ListHosts(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = a.deps.Source.ListGatewayGroups(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch available hosts: %w", err)
	}
	return hosts, groups, nil
}

// apply replaces the view wholesale and emits it. filter is the one the rows
// were listed with; details rows are never filtered.
func (a *Aggregator) apply(mode Mode, group string, filter domain.HostFilter, selected, all []domain.Host, used map[string]struct{}, spec *domain.ServiceSpec) {
	rows := make([]domain.GatewayNodeRow, 0, len(selected))
	for _, h := range selected {
		rows = append(rows, domain.NewGatewayNodeRow(h))
	}
	hostSet := make(map[string]struct{}, len(all))
	hasAvailable := false
	for _, h := range all {
		hostSet[h.Hostname] = struct{}{}
		if _, taken := used[h.Hostname]; !taken {
			hasAvailable = true
		}
	}

	a.mu.Lock()
	a.mode = mode
	a.group = group
	a.filter = filter
	a.rows = rows
	a.hosts = hostSet
	a.used = used
	a.hasAvailable = hasAvailable
	a.spec = spec
	a.loaded = true
	a.updatedAt = time.Now()
	a.lastErr = ""
	a.reconcileSelection()
	emitted := append([]domain.GatewayNodeRow(nil), rows...)
	a.mu.Unlock()

	metrics.ObserveRows(metrics.PipelineGatewayNodes, len(emitted))
	a.log.Debug("gateway node view updated",
		logger.String("mode", string(mode)),
		logger.String("group", group),
		logger.Int("count", len(emitted)))

	if o := a.deps.Observer; o != nil {
		o.RowsChanged(emitted)
		o.CountChanged(len(emitted))
	}
}

// View returns a copy of the current state.
func (a *Aggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()

	used := make([]string, 0, len(a.used))
	for h := range a.used {
		used = append(used, h)
	}
	sort.Strings(used)

	return View{
		Mode:              a.mode,
		Group:             a.group,
		Filter:            a.filter,
		Rows:              append([]domain.GatewayNodeRow{}, a.rows...),
		Count:             len(a.rows),
		Selected:          a.selectedLocked(),
		UsedHostnames:     used,
		HasAvailableHosts: a.hasAvailable,
		GroupFound:        a.spec != nil,
		Loaded:            a.loaded,
		UpdatedAt:         a.updatedAt,
		LastError:         a.lastErr,
	}
}

// ServiceSpec returns a copy of the matched group spec, if any.
func (a *Aggregator) ServiceSpec() (domain.ServiceSpec, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.spec == nil {
		return domain.ServiceSpec{}, false
	}
	out, err := a.spec.Clone()
	if err != nil {
		return domain.ServiceSpec{}, false
	}
	return out, true
}

// Loading reports whether a cycle is in flight.
func (a *Aggregator) Loading() bool {
	return a.inFlight.Load()
}

// Dispose ends the aggregator lifetime. Later fetches are no-ops.
func (a *Aggregator) Dispose() {
	a.dispose()
	a.mu.Lock()
	if a.cycleCancel != nil {
		a.cycleCancel()
		a.cycleCancel = nil
	}
	a.mu.Unlock()
}
