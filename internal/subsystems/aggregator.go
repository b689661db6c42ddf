package subsystems

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/metrics"
)

const initiatorConcurrency = 8

// Source lists the subsystems of a gateway group and their allowed hosts.
type Source interface {
	ListSubsystems(ctx context.Context, group string) ([]domain.Subsystem, error)
	ListInitiators(ctx context.Context, nqn, group string) ([]domain.Initiator, error)
}

// Aggregator builds the subsystem listing of a gateway group.
type Aggregator struct {
	source Source
	log    logger.Logger
}

func New(source Source, log logger.Logger) *Aggregator {
	return &Aggregator{source: source, log: log}
}

// Rows returns one row per subsystem of group, in list order.
//
// A failing initiator lookup counts as no initiators. A failing list yields
// empty rows together with the error.
func (a *Aggregator) Rows(ctx context.Context, group string) ([]domain.SubsystemRow, error) {
	start := time.Now()

	list, err := a.source.ListSubsystems(ctx, group)
	if err != nil {
		a.observe(ctx, err, start)
		a.log.Warn("failed to list subsystems", logger.String("group", group), logger.Error(err))
		return []domain.SubsystemRow{}, fmt.Errorf("failed to list subsystems of %q: %w", group, err)
	}

	rows := make([]domain.SubsystemRow, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(initiatorConcurrency)
	for i, s := range list {
		g.Go(func() error {
			initiators, ierr := a.source.ListInitiators(gctx, s.NQN, group)
			if ierr != nil {
				a.log.Debug("initiators unavailable",
					logger.String("nqn", s.NQN),
					logger.String("group", group),
					logger.Error(ierr))
				initiators = nil
			}
			rows[i] = domain.SubsystemRow{
				Subsystem: s,
				Auth:      domain.SubsystemAuthStatus(s, initiators),
				Hosts:     len(initiators),
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		a.observe(ctx, err, start)
		return []domain.SubsystemRow{}, err
	}

	a.observe(ctx, nil, start)
	metrics.ObserveRows(metrics.PipelineSubsystems, len(rows))
	return rows, nil
}

func (a *Aggregator) observe(ctx context.Context, err error, start time.Time) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveFetch(metrics.PipelineSubsystems, outcome, time.Since(start))
}
