package app

import (
	"sync/atomic"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

// countObserver logs gateway node count changes.
type countObserver struct {
	logger logger.Logger
	last   atomic.Int64
}

func newCountObserver(log logger.Logger) *countObserver {
	o := &countObserver{logger: log}
	o.last.Store(-1)
	return o
}

func (o *countObserver) RowsChanged([]domain.GatewayNodeRow) {}

func (o *countObserver) CountChanged(n int) {
	if prev := o.last.Swap(int64(n)); prev != int64(n) {
		o.logger.Debug("gateway node count changed",
			logger.Int("previous", int(prev)),
			logger.Int("count", n))
	}
}
