package scheduler

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/index"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	redisstore "github.com/MrSnakeDoc/clusterview/internal/store/redis"
)

// SnapshotSyncer warms the memory index and the capacity card from Redis on
// startup.
type SnapshotSyncer struct {
	store    *redisstore.Store
	index    *index.MemoryIndex
	capacity CapacityState
	logger   logger.Logger
}

// NewSnapshotSyncer creates a new snapshot syncer. capacity may be nil.
func NewSnapshotSyncer(
	store *redisstore.Store,
	idx *index.MemoryIndex,
	capacity CapacityState,
	log logger.Logger,
) *SnapshotSyncer {
	return &SnapshotSyncer{
		store:    store,
		index:    idx,
		capacity: capacity,
		logger:   log,
	}
}

// Sync loads persisted views into empty index slots and restores the
// capacity card if no cycle has completed yet.
func (ss *SnapshotSyncer) Sync(ctx context.Context) error {
	ss.logger.Info("syncing views from redis to memory")

	var errs []error

	if ss.index.GetLastReload().IsZero() {
		var nodes []domain.GatewayNodeRow
		found, err := ss.store.LoadView(ctx, ViewAvailableNodes, &nodes)
		switch {
		case err != nil:
			errs = append(errs, err)
		case found:
			ss.index.UpdateAvailableNodes(nodes)
			ss.logger.Info("synced gateway nodes from redis", logger.Int("count", len(nodes)))
		}
	}

	if ss.index.GetLastFilesystemReload().IsZero() {
		var filesystems []domain.FilesystemRow
		found, err := ss.store.LoadView(ctx, ViewFilesystems, &filesystems)
		switch {
		case err != nil:
			errs = append(errs, err)
		case found:
			ss.index.UpdateFilesystems(filesystems)
			ss.logger.Info("synced filesystems from redis", logger.Int("count", len(filesystems)))
		}
	}

	if ss.capacity != nil {
		snap, err := ss.store.LoadCapacity(ctx)
		switch {
		case err != nil:
			errs = append(errs, err)
		case snap == nil:
			ss.logger.Info("no capacity snapshot found in redis")
		case ss.capacity.Restore(*snap):
			ss.logger.Info("restored capacity snapshot from redis",
				logger.String("capacity_type", string(snap.CapacityType)),
				logger.Int("series", len(snap.AllData)))
		}
	}

	return errors.Join(errs...)
}
