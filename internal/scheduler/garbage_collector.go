package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/index"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	redisstore "github.com/MrSnakeDoc/clusterview/internal/store/redis"
)

const (
	// DefaultGCThreshold is the idle time after which per-group views are dropped
	DefaultGCThreshold = 30 * time.Minute
)

// IdlePruner disposes views nobody asked for within idle.
type IdlePruner interface {
	PruneIdle(idle time.Duration) []string
}

// GarbageCollector drops per-group aggregators and listings that went idle
type GarbageCollector struct {
	views     IdlePruner
	store     *redisstore.Store
	index     *index.MemoryIndex
	logger    logger.Logger
	interval  time.Duration
	threshold time.Duration
	stopCh    chan struct{}
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(
	views IdlePruner,
	store *redisstore.Store,
	idx *index.MemoryIndex,
	log logger.Logger,
	interval time.Duration,
	threshold time.Duration,
) *GarbageCollector {
	if threshold == 0 {
		threshold = DefaultGCThreshold
	}

	return &GarbageCollector{
		views:     views,
		store:     store,
		index:     idx,
		logger:    log,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				gc.Collect(ctx)
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	close(gc.stopCh)
}

// Collect disposes idle details aggregators and drops stale subsystem
// listings. It returns the number of items removed.
func (gc *GarbageCollector) Collect(ctx context.Context) int {
	aggregators := 0
	if gc.views != nil {
		for _, key := range gc.views.PruneIdle(gc.threshold) {
			gc.logger.Debug("garbage collected idle view", logger.String("view", key))
			aggregators++
		}
	}

	listings := 0
	for _, group := range gc.index.PruneSubsystems(time.Now().Add(-gc.threshold)) {
		// Delete from Redis cache (best effort)
		if gc.store != nil {
			if err := gc.store.InvalidateCache(ctx, redisstore.CacheKey("subsystems", group)); err != nil {
				gc.logger.Warn("failed to invalidate subsystem cache",
					logger.String("group", group),
					logger.Error(err))
			}
		}
		listings++
	}

	total := aggregators + listings
	if total > 0 {
		gc.logger.Info("garbage collection completed",
			logger.Int("aggregators_disposed", aggregators),
			logger.Int("listings_deleted", listings))
	} else {
		gc.logger.Debug("no items to garbage collect")
	}
	return total
}
