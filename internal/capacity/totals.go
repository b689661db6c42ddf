package capacity

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ScalarSource returns a single value for a query; NaN when there is none.
type ScalarSource interface {
	QueryScalar(ctx context.Context, query string) (float64, error)
}

// TotalsFeeder pushes cluster-wide total and used bytes into an Aggregator.
type TotalsFeeder struct {
	Source     ScalarSource
	Target     *Aggregator
	TotalQuery string
	UsedQuery  string
}

// Push queries both values concurrently and forwards them. NaN results are
// rejected by the aggregator, leaving the previous values in place.
func (f *TotalsFeeder) Push(ctx context.Context) error {
	var total, used float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = f.Source.QueryScalar(gctx, f.TotalQuery)
		return err
	})
	g.Go(func() error {
		var err error
		used, err = f.Source.QueryScalar(gctx, f.UsedQuery)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to query capacity totals: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	f.Target.SetTotal(total)
	f.Target.SetUsed(used)
	return nil
}
