package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

// Reloadable is a source backed by a file that can be re-read.
type Reloadable interface {
	Reload() error
}

// InventoryReloader periodically re-reads the offline inventory file.
type InventoryReloader struct {
	source        Reloadable
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
	onReload      func()
}

// NewInventoryReloader creates a new inventory reloader. onReload, if set,
// runs after every successful reload.
func NewInventoryReloader(
	source Reloadable,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
	onReload func(),
) *InventoryReloader {
	return &InventoryReloader{
		source:        source,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		onReload:      onReload,
	}
}

// Start begins the periodic reload process. The source performed its
// initial load on construction.
func (ir *InventoryReloader) Start(ctx context.Context) {
	ticker := time.NewTicker(ir.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ir.reload()
			case <-ir.manualTrigger:
				ir.logger.Info("manual inventory reload triggered")
				ir.reload()
			case <-ir.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the reloader
func (ir *InventoryReloader) Stop() {
	ir.stopOnce.Do(func() { close(ir.stopCh) })
}

func (ir *InventoryReloader) reload() {
	if err := ir.source.Reload(); err != nil {
		ir.logger.Error("failed to reload inventory", logger.Error(err))
		return
	}
	if ir.onReload != nil {
		ir.onReload()
	}
}
