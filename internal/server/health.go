package server

import (
	"context"
	"sync"
	"time"
)

// Check probes one dependency.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// CheckResult is the outcome of one Check.
type CheckResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// RunChecks runs every check concurrently, each bounded by timeout.
func RunChecks(ctx context.Context, checks []Check, timeout time.Duration) (bool, []CheckResult) {
	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			cctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			start := time.Now()
			err := c.Fn(cctx)
			results[i] = CheckResult{Name: c.Name, OK: err == nil, ElapsedMs: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Error = err.Error()
			}
		}(i, c)
	}
	wg.Wait()

	ok := true
	for _, r := range results {
		ok = ok && r.OK
	}
	return ok, results
}
