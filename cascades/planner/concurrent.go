package planner

import (
	"context"
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
)

// PlanAll plans independent queries concurrently. Every query must own its
// memo. Results are in query order; the error combines every failure.
func (p *Planner) PlanAll(ctx context.Context, queries []Query) ([]*Result, error) {
	workers := p.config.MaxConcurrentPlans
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "creating planning pool")
	}
	defer pool.Release()

	results := make([]*Result, len(queries))
	errs := make([]error, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = errors.AssertionFailedf("planning query %d panicked: %v", i, r)
				}
				wg.Done()
			}()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = p.Plan(q)
		}); err != nil {
			wg.Done()
			errs[i] = errors.Wrapf(err, "submitting query %d", i)
		}
	}
	wg.Wait()

	var combined error
	for i, err := range errs {
		if err != nil {
			combined = errors.CombineErrors(combined, errors.Wrapf(err, "query %d", i))
		}
	}
	return results, combined
}
