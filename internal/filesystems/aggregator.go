package filesystems

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/metrics"
)

// detailConcurrency caps parallel detail requests.
const detailConcurrency = 8

// Source lists filesystems and fetches their details.
type Source interface {
	ListFilesystems(ctx context.Context) ([]domain.FilesystemSummary, error)
	GetFilesystem(ctx context.Context, id int) (*domain.FilesystemDetail, error)
}

// Aggregator builds the filesystem selector rows.
type Aggregator struct {
	source Source
	log    logger.Logger
}

func New(source Source, log logger.Logger) *Aggregator {
	return &Aggregator{source: source, log: log}
}

// Rows lists filesystems and joins each with its detail. Filesystems whose
// detail fails or is empty are left out. Only a list failure is an error.
func (a *Aggregator) Rows(ctx context.Context) (rows []domain.FilesystemRow, err error) {
	start := time.Now()
	defer func() {
		observe(ctx, err, time.Since(start))
	}()

	list, err := a.source.ListFilesystems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list filesystems: %w", err)
	}
	if len(list) == 0 {
		metrics.ObserveRows(metrics.PipelineFilesystems, 0)
		return []domain.FilesystemRow{}, nil
	}

	var (
		mu  sync.Mutex
		out = make([]domain.FilesystemRow, 0, len(list))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for _, fs := range list {
		g.Go(func() error {
			detail, derr := a.source.GetFilesystem(gctx, fs.ID)
			if derr != nil {
				a.log.Warn("dropping filesystem, detail unavailable",
					logger.Int("fs_id", fs.ID),
					logger.String("fs_name", fs.MdsMap.FsName),
					logger.Error(derr))
				return nil
			}
			row, ok := domain.NewFilesystemRow(fs, detail)
			if !ok {
				a.log.Debug("dropping filesystem, empty detail", logger.Int("fs_id", fs.ID))
				return nil
			}
			mu.Lock()
			out = append(out, row)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	metrics.ObserveRows(metrics.PipelineFilesystems, len(out))
	return out, nil
}

func observe(ctx context.Context, err error, elapsed time.Duration) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveFetch(metrics.PipelineFilesystems, outcome, elapsed)
}
