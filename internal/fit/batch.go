package fit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchOption configures EvaluateBatch
type BatchOption func(*batchConfig)

type batchConfig struct {
	observe func(d time.Duration, err error)
}

// WithObserver calls f after every single fit of a batch with its
// duration and error. f is called from several goroutines at once.
func WithObserver(f func(d time.Duration, err error)) BatchOption {
	return func(c *batchConfig) { c.observe = f }
}

// EvaluateBatch fits every observed spectrum against the same references
// using up to workers goroutines. Results are returned in input order.
// The first error cancels the remaining work.
func (e *Engine) EvaluateBatch(ctx context.Context, observed [][]float64, withError bool, workers int, opts ...BatchOption) ([]Result, error) {
	var cfg batchConfig
	for _, o := range opts {
		o(&cfg)
	}
	if err := e.Prepare(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(observed))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range observed {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t := time.Now()
			r, err := e.Evaluate(observed[i], withError)
			if cfg.observe != nil {
				cfg.observe(time.Since(t), err)
			}
			if err != nil {
				return fmt.Errorf("observation %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
