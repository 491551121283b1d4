package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "garagedata/pkg/domain-errors"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes   int32
	Errors      int32
	RateLimited int32
	Unavailable int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.RateLimited + r.Unavailable
}

// RunConcurrent executes fn in parallel goroutines and sorts the outcomes by
// domain error code.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, errs, limited, unavailable atomic.Int32

	for i := range goroutines {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			var de *dErrors.Error
			switch {
			case err == nil:
				successes.Add(1)
			case errors.As(err, &de) && de.Code == dErrors.CodeRateLimited:
				limited.Add(1)
			case errors.As(err, &de) && de.Code == dErrors.CodeUnavailable:
				unavailable.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		Errors:      errs.Load(),
		RateLimited: limited.Load(),
		Unavailable: unavailable.Load(),
	}
}
