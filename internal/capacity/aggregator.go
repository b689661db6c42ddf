package capacity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/metrics"
	"github.com/MrSnakeDoc/clusterview/internal/scheduler"
)

// ChartPrecision is the number of decimals kept on converted chart values.
const ChartPrecision = 10

var (
	ErrUnknownStorageType  = errors.New("unknown storage type")
	ErrUnknownCapacityType = errors.New("unknown capacity type")
)

// MetricSource returns per-application samples for a query.
type MetricSource interface {
	QueryByApplication(ctx context.Context, query string) ([]domain.MetricSample, error)
}

// Aggregator polls per-application pool usage and derives the capacity card
// state: chart series, storage type selector and total/used display values.
type Aggregator struct {
	source  MetricSource
	queries map[domain.CapacityType]string
	poller  *scheduler.Poller
	log     logger.Logger
	now     func() time.Time

	mu           sync.RWMutex
	capacityType domain.CapacityType
	selected     string
	dropdown     []domain.DropdownItem
	allData      []domain.SeriesPoint // nil until the first cycle ends
	displayData  []domain.SeriesPoint
	chartUnit    string
	total        *domain.CapacityDisplay
	used         *domain.CapacityDisplay
	updatedAt    time.Time
	lastErr      string
}

// New creates a capacity aggregator polling source every interval. queries
// maps each capacity type to its PromQL expression.
func New(source MetricSource, queries map[domain.CapacityType]string, interval time.Duration, log logger.Logger) *Aggregator {
	a := &Aggregator{
		source:       source,
		queries:      queries,
		log:          log,
		now:          time.Now,
		capacityType: domain.CapacityRaw,
		selected:     domain.StorageTypeAll,
		dropdown:     domain.DefaultDropdownItems(),
	}
	a.poller = scheduler.NewPoller(metrics.PipelineCapacity, interval, a.Refresh, log)
	return a
}

// Start begins polling. The first cycle runs immediately.
func (a *Aggregator) Start(ctx context.Context) {
	a.poller.Start(ctx)
}

// Stop ends polling and waits for the running cycle.
func (a *Aggregator) Stop() {
	a.poller.Stop()
}

// Refresh runs one cycle. A result arriving after ctx was cancelled is
// discarded. On failure the previous series is kept.
func (a *Aggregator) Refresh(ctx context.Context) error {
	a.mu.RLock()
	ct := a.capacityType
	unit := ""
	if a.used != nil {
		unit = a.used.Unit
	}
	a.mu.RUnlock()

	query, ok := a.queries[ct]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapacityType, ct)
	}

	samples, err := a.source.QueryByApplication(ctx, query)

	a.mu.Lock()
	defer a.mu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		if a.allData == nil {
			a.allData = []domain.SeriesPoint{}
			a.displayData = []domain.SeriesPoint{}
		}
		a.lastErr = err.Error()
		return fmt.Errorf("capacity query failed: %w", err)
	}

	if unit == "" {
		unit = unitForSamples(samples)
	}
	all := domain.BuildSeries(samples, unit, ChartPrecision)
	items, selected := domain.ReconcileDropdown(all, a.selected)

	a.allData = all
	a.dropdown = items
	a.selected = selected
	a.displayData = domain.FilterSeries(all, selected)
	a.chartUnit = unit
	a.updatedAt = a.now()
	a.lastErr = ""

	metrics.ObserveRows(metrics.PipelineCapacity, len(all))
	a.log.Debug("capacity series updated",
		logger.String("capacity_type", string(ct)),
		logger.String("unit", unit),
		logger.Int("series", len(all)),
		logger.String("selected", selected))
	return nil
}

func unitForSamples(samples []domain.MetricSample) string {
	largest := 0.0
	for _, s := range samples {
		if !math.IsNaN(s.Value) && s.Value > largest {
			largest = s.Value
		}
	}
	return domain.UnitFor(largest)
}

// SetTotal records the total capacity in bytes. Values that do not format to
// a number are rejected and the previous value kept.
func (a *Aggregator) SetTotal(bytes float64) bool {
	d, ok := display(bytes)
	if !ok {
		a.log.Debug("rejected total capacity", logger.Float64("bytes", bytes))
		return false
	}
	a.mu.Lock()
	a.total = d
	a.mu.Unlock()
	a.log.Debug("total capacity updated", logger.String("size", domain.HumanBytes(bytes)))
	return true
}

// SetUsed records the used capacity in bytes. Its unit becomes the chart
// unit from the next cycle on.
func (a *Aggregator) SetUsed(bytes float64) bool {
	d, ok := display(bytes)
	if !ok {
		a.log.Debug("rejected used capacity", logger.Float64("bytes", bytes))
		return false
	}
	a.mu.Lock()
	a.used = d
	a.mu.Unlock()
	a.log.Debug("used capacity updated", logger.String("size", domain.HumanBytes(bytes)))
	return true
}

func display(bytes float64) (*domain.CapacityDisplay, bool) {
	v, unit := domain.FormatToBinary(bytes)
	if math.IsNaN(v) {
		return nil, false
	}
	return &domain.CapacityDisplay{Value: v, Unit: unit, Bytes: bytes}, true
}

// SetCapacityType switches between raw and used capacity and re-queries
// immediately, superseding any running cycle.
func (a *Aggregator) SetCapacityType(ct domain.CapacityType) error {
	if !ct.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCapacityType, ct)
	}
	a.mu.Lock()
	a.capacityType = ct
	a.mu.Unlock()

	a.poller.Trigger()
	return nil
}

// SelectStorageType changes the chart filter. Only current dropdown entries
// are accepted.
func (a *Aggregator) SelectStorageType(label string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !slices.ContainsFunc(a.dropdown, func(it domain.DropdownItem) bool { return it.Content == label }) {
		return fmt.Errorf("%w: %q", ErrUnknownStorageType, label)
	}
	a.selected = label
	a.displayData = domain.FilterSeries(a.allData, label)
	return nil
}

// Snapshot returns a copy of the derived state.
func (a *Aggregator) Snapshot() domain.CapacitySnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := domain.CapacitySnapshot{
		CapacityType:        a.capacityType,
		SelectedStorageType: a.selected,
		DropdownItems:       slices.Clone(a.dropdown),
		ChartUnit:           a.chartUnit,
		AllData:             slices.Clone(a.allData),
		DisplayData:         slices.Clone(a.displayData),
		UpdatedAt:           a.updatedAt,
		LastError:           a.lastErr,
	}
	if s.AllData == nil {
		s.AllData = []domain.SeriesPoint{}
	}
	if s.DisplayData == nil {
		s.DisplayData = []domain.SeriesPoint{}
	}
	if a.total != nil {
		t := *a.total
		s.Total = &t
	}
	if a.used != nil {
		u := *a.used
		s.Used = &u
	}
	return s
}

// Restore seeds the state from a persisted snapshot. It is a no-op once a
// cycle has completed.
func (a *Aggregator) Restore(s domain.CapacitySnapshot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.allData != nil {
		return false
	}
	if s.CapacityType.Valid() {
		a.capacityType = s.CapacityType
	}
	a.allData = slices.Clone(s.AllData)
	if a.allData == nil {
		a.allData = []domain.SeriesPoint{}
	}
	a.dropdown, a.selected = domain.ReconcileDropdown(a.allData, s.SelectedStorageType)
	if len(a.allData) == 0 {
		a.dropdown = domain.DefaultDropdownItems()
	}
	a.displayData = domain.FilterSeries(a.allData, a.selected)
	a.chartUnit = s.ChartUnit
	a.updatedAt = s.UpdatedAt
	if s.Total != nil && a.total == nil {
		t := *s.Total
		a.total = &t
	}
	if s.Used != nil && a.used == nil {
		u := *s.Used
		a.used = &u
	}
	return true
}
