package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/gateway"
	"github.com/MrSnakeDoc/clusterview/internal/index"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	redisstore "github.com/MrSnakeDoc/clusterview/internal/store/redis"
)

// Persisted view names.
const (
	ViewAvailableNodes = "gateway-nodes:available"
	ViewFilesystems    = "filesystems"
)

// NodeView is the selector-mode gateway node aggregator.
type NodeView interface {
	Fetch(ctx context.Context, mode gateway.Mode, groupName string, fc *gateway.FetchContext) bool
	View() gateway.View
}

// FilesystemLister builds the filesystem selector rows.
type FilesystemLister interface {
	Rows(ctx context.Context) ([]domain.FilesystemRow, error)
}

// CapacityState exposes the capacity card state for persistence.
type CapacityState interface {
	Snapshot() domain.CapacitySnapshot
	Restore(s domain.CapacitySnapshot) bool
}

// ViewRefresher periodically refreshes the selector views into the memory
// index and persists them to Redis.
type ViewRefresher struct {
	nodes         NodeView
	filesystems   FilesystemLister
	capacity      CapacityState
	store         *redisstore.Store
	index         *index.MemoryIndex
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
}

// NewViewRefresher creates a new view refresher. filesystems, capacity and
// store may be nil.
func NewViewRefresher(
	nodes NodeView,
	filesystems FilesystemLister,
	capacity CapacityState,
	store *redisstore.Store,
	idx *index.MemoryIndex,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *ViewRefresher {
	return &ViewRefresher{
		nodes:         nodes,
		filesystems:   filesystems,
		capacity:      capacity,
		store:         store,
		index:         idx,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start refreshes once, then on every interval and manual trigger. A failed
// first refresh is logged; the index keeps whatever was synced from Redis.
func (vr *ViewRefresher) Start(ctx context.Context) {
	if err := vr.Reload(ctx); err != nil {
		vr.logger.Warn("initial view refresh failed", logger.Error(err))
	}

	ticker := time.NewTicker(vr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := vr.Reload(ctx); err != nil {
					vr.logger.Error("failed to refresh views",
						logger.Error(err))
				}
			case <-vr.manualTrigger:
				vr.logger.Info("manual view refresh triggered")
				if err := vr.Reload(ctx); err != nil {
					vr.logger.Error("failed to refresh views",
						logger.Error(err))
				}
			case <-vr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the refresher
func (vr *ViewRefresher) Stop() {
	vr.stopOnce.Do(func() { close(vr.stopCh) })
}

// Reload refreshes every view and returns the joined failures.
func (vr *ViewRefresher) Reload(ctx context.Context) error {
	vr.logger.Debug("refreshing views")

	var errs []error
	if err := vr.refreshNodes(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := vr.refreshFilesystems(ctx); err != nil {
		errs = append(errs, err)
	}
	vr.persistCapacity(ctx)

	return errors.Join(errs...)
}

func (vr *ViewRefresher) refreshNodes(ctx context.Context) error {
	var fetchErr error
	fc := gateway.NewFetchContext(domain.HostFilter{}, func(err error) { fetchErr = err })

	if !vr.nodes.Fetch(ctx, gateway.ModeSelector, "", fc) {
		vr.logger.Debug("gateway node refresh skipped, fetch in flight")
		return nil
	}
	if fetchErr != nil {
		return fmt.Errorf("failed to refresh gateway nodes: %w", fetchErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rows := vr.nodes.View().Rows
	vr.index.UpdateAvailableNodes(rows)
	vr.logger.Info("gateway nodes refreshed", logger.Int("available", len(rows)))
	vr.save(ctx, ViewAvailableNodes, rows)
	return nil
}

func (vr *ViewRefresher) refreshFilesystems(ctx context.Context) error {
	if vr.filesystems == nil {
		return nil
	}
	rows, err := vr.filesystems.Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh filesystems: %w", err)
	}
	vr.index.UpdateFilesystems(rows)
	vr.logger.Info("filesystems refreshed", logger.Int("count", len(rows)))
	vr.save(ctx, ViewFilesystems, rows)
	return nil
}

func (vr *ViewRefresher) persistCapacity(ctx context.Context) {
	if vr.capacity == nil || vr.store == nil {
		return
	}
	snap := vr.capacity.Snapshot()
	if snap.UpdatedAt.IsZero() {
		return
	}
	if err := vr.store.SaveCapacity(ctx, snap); err != nil {
		vr.logger.Warn("failed to save capacity snapshot to redis", logger.Error(err))
	}
}

// save persists a view to Redis (best effort)
func (vr *ViewRefresher) save(ctx context.Context, name string, view any) {
	if vr.store == nil {
		return
	}
	if err := vr.store.SaveView(ctx, name, view); err != nil {
		vr.logger.Warn("failed to save view to redis",
			logger.String("view", name),
			logger.Error(err))
		// Don't fail - memory index is the primary source
	}
}
