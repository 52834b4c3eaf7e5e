package engine

import "sync/atomic"

// Counter is a monotonic version counter.
//
// The shared-publication slot is stamped with a strictly increasing value
// from this counter. Consumers detect new publications by comparing the
// version they last saw against the current one - polled state, not push
// notification, so publisher and subscriber never couple directly.
//
// Thread-safety: Counter is safe for concurrent use (atomic operations).
type Counter struct {
	v atomic.Int64
}

// Next returns the next value and increments the counter.
// Each call returns a unique, strictly increasing value.
func (c *Counter) Next() int64 {
	return c.v.Add(1)
}

// Current returns the current value without incrementing.
func (c *Counter) Current() int64 {
	return c.v.Load()
}
