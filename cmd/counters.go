package cmd

import "go.uber.org/atomic"

// Counters is the concurrency-safe view onto a running driver's
// progress. The sync loop itself is single-threaded (spec section 5),
// but a long run's counts are also useful to a status endpoint or
// signal handler polling from a different goroutine while the run is
// in flight, so every field is an atomic rather than a plain int64.
type Counters struct {
	errors          atomic.Int64
	silentErrors    atomic.Int64
	bytesRead       atomic.Int64
	blocksProcessed atomic.Int64
}

// Snapshot copies the current counts into a Result. Safe to call
// concurrently with an in-progress Run.
func (c *Counters) Snapshot() Result {
	return Result{
		Errors:          c.errors.Load(),
		SilentErrors:    c.silentErrors.Load(),
		BytesRead:       c.bytesRead.Load(),
		BlocksProcessed: c.blocksProcessed.Load(),
	}
}
