package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reaper periodically unloads files that are ready, unused, and idle.
//
// Usage dropping to zero never triggers eviction on its own - a consumer
// that remounts quickly expects the cache warm. The reaper consults the
// usage map as an advisory signal only, and runs only when started
// explicitly.
type Reaper struct {
	m        *Manager
	interval time.Duration
	maxIdle  time.Duration
	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewReaper creates a reaper that sweeps every interval, unloading ready
// files with no recorded users that became ready more than maxIdle ago.
// The reaper does not run until Start is called.
func (m *Manager) NewReaper(interval, maxIdle time.Duration) *Reaper {
	return &Reaper{
		m:        m,
		interval: interval,
		maxIdle:  maxIdle,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine. Repeated
// calls are no-ops.
func (r *Reaper) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				n := r.m.SweepIdleFiles(ctx, r.maxIdle)
				if n > 0 {
					slog.Info("reaper unloaded idle files", "count", n)
				}
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit. Safe to call more
// than once, and before Start; a reaper that never ran returns at once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if !r.started.Load() {
		return
	}
	<-r.done
}

// SweepIdleFiles unloads every file that is ready, has an empty usage
// set, and became ready more than maxIdle ago. Returns how many files
// were unloaded. Exposed for tests and for callers that prefer manual
// sweeps over a background reaper.
func (m *Manager) SweepIdleFiles(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var victims []string
	for key, f := range m.files {
		if f.State != FileStateReady {
			continue
		}
		if len(m.usage[key]) > 0 {
			continue
		}
		if f.LoadedAt.After(cutoff) {
			continue
		}
		victims = append(victims, key)
	}
	m.mu.Unlock()

	n := 0
	for _, key := range victims {
		if err := m.UnloadFile(ctx, key); err != nil {
			slog.Warn("reaper failed to unload file", "key", key, "error", err)
			continue
		}
		n++
	}
	return n
}
