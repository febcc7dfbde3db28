// Package parallel splits independent row work across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	// MinWork is the smallest amount of work (rows × cost per row) worth a
	// goroutine of its own.
	MinWork int
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.GOMAXPROCS(0)
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinWork:    1 << 14,
	}
}

// Sequential runs everything on the calling goroutine.
var Sequential = Config{}

// Range calls f on disjoint [lo, hi) chunks covering [0, n) and waits for
// all of them. cost is the approximate work per item. Chunks never overlap,
// so f may write to per-item output without locking.
func Range(n, cost int, cfg Config, f func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers := cfg.NumWorkers
	if cost > 0 && cfg.MinWork > 0 {
		workers = min(workers, n*cost/cfg.MinWork)
	}
	workers = min(workers, n)
	if !cfg.Enabled || workers <= 1 {
		f(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(lo, hi)
		}()
	}
	wg.Wait()
}

// For calls f(i) for every i in [0, n).
func For(n, cost int, cfg Config, f func(i int)) {
	Range(n, cost, cfg, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	})
}
