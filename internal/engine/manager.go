package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sciview/querystore/internal/ingest"
	"github.com/sciview/querystore/internal/store"
)

// Manager coordinates all access to the shared embedded engine.
//
// It owns the engine handle, the connection registry, the loaded-file
// registry with its usage map, and the shared-publication slot. Consumers
// never hold engine state outside what CreateConnection hands back.
//
// Thread-safety model:
//   - all registry mutations happen under one mutex, so no two mutations
//     interleave mid-operation
//   - the expensive phases (engine construction, fetch, import) run
//     outside the lock; EnsureInitialized single-flights construction,
//     while LoadFile deliberately does not single-flight first-time
//     imports (see LoadFile)
type Manager struct {
	mu sync.Mutex

	store   *store.Store
	initErr error
	// initing is non-nil while an initialization attempt is in flight;
	// concurrent callers wait on it instead of racing to construct a
	// second engine.
	initing chan struct{}

	conns map[string]*Connection
	files map[string]*LoadedFile
	// usage maps file key -> set of connection ids depending on it.
	// Bookkeeping and advisory cleanup only; never gates execution.
	usage map[string]map[string]struct{}

	pubName    string
	pubVersion *Counter

	open     opener
	idGen    IDGenerator
	importer *ingest.Importer
	maxRows  int
	metrics  *managerMetrics
}

// opener constructs the underlying engine. Swapped out in tests to count
// constructions and to inject failures.
type opener func(ctx context.Context) (*store.Store, error)

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator overrides connection id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) {
		m.idGen = g
	}
}

// WithImporter overrides the file importer (e.g. to change fetch behavior).
func WithImporter(im *ingest.Importer) Option {
	return func(m *Manager) {
		m.importer = im
	}
}

// WithMaxRows bounds ExecuteQuery result sizes. Results larger than n
// rows fail with a QUERY_FAILED error. Zero means unlimited.
func WithMaxRows(n int) Option {
	return func(m *Manager) {
		m.maxRows = n
	}
}

// WithMetricsRegistry registers the manager's metrics on reg instead of a
// private registry.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.metrics = newManagerMetrics(reg)
	}
}

// withOpener overrides engine construction. Test-only.
func withOpener(open opener) Option {
	return func(m *Manager) {
		m.open = open
	}
}

// NewManager creates a Manager. The engine itself is not constructed
// until the first EnsureInitialized (or an operation that implies it).
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		conns:      make(map[string]*Connection),
		files:      make(map[string]*LoadedFile),
		usage:      make(map[string]map[string]struct{}),
		pubVersion: &Counter{},
		open:       store.Open,
		idGen:      UUIDv7Generator{},
		importer:   ingest.NewImporter(nil),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = newManagerMetrics(nil)
	}

	return m
}

// EnsureInitialized guarantees that exactly one engine instance exists
// and is ready to accept connections, or fails with an INIT_FAILED error
// leaving no partial handle installed.
//
// Construction is expensive and happens at most once per manager
// lifetime: concurrent callers await the single in-flight attempt rather
// than starting their own. A failed attempt is recorded, surfaced to
// every waiter, and retried from scratch by the next call.
func (m *Manager) EnsureInitialized(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.store != nil {
			m.mu.Unlock()
			return nil
		}

		if ch := m.initing; ch != nil {
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ch:
			}

			m.mu.Lock()
			ready := m.store != nil
			err := m.initErr
			m.mu.Unlock()
			if ready {
				return nil
			}
			if err != nil {
				return err
			}
			// The attempt we waited on was superseded; try again.
			continue
		}

		ch := make(chan struct{})
		m.initing = ch
		m.initErr = nil
		m.mu.Unlock()

		st, err := m.open(ctx)

		m.mu.Lock()
		if err != nil {
			m.initErr = newInitError(err)
		} else {
			m.store = st
		}
		m.initing = nil
		result := m.initErr
		m.mu.Unlock()
		close(ch)

		if result != nil {
			m.metrics.initFailures.Inc()
			slog.Error("engine initialization failed", "error", err)
			return result
		}

		m.metrics.inits.Inc()
		slog.Info("engine initialized", "db", st.Name())
		return nil
	}
}

// Publication returns the current shared-publication slot: the most
// recently published name (empty when nothing has been published) and the
// monotonic version counter consumers poll-compare against.
func (m *Manager) Publication() (name string, version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pubName, m.pubVersion.Current()
}

// Cleanup tears the engine down only when no connections remain open,
// unless force is set. Returns whether teardown happened. This is the
// guard against destroying an engine other consumers are actively using.
func (m *Manager) Cleanup(ctx context.Context, force bool) (bool, error) {
	m.mu.Lock()
	open := len(m.conns)
	m.mu.Unlock()

	if open > 0 && !force {
		slog.Debug("cleanup skipped: connections still open", "open", open)
		return false, nil
	}
	return true, m.PerformGlobalCleanup(ctx)
}

// PerformGlobalCleanup closes every open connection, terminates the
// engine, and clears all registries, the shared-publication slot, and the
// initialization-error flag, returning the manager to its pristine
// pre-init state.
//
// Teardown is best-effort: one connection failing to close does not abort
// closing the rest; failures are logged, not returned.
func (m *Manager) PerformGlobalCleanup(ctx context.Context) error {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	st := m.store

	m.store = nil
	m.initErr = nil
	m.conns = make(map[string]*Connection)
	m.files = make(map[string]*LoadedFile)
	m.usage = make(map[string]map[string]struct{})
	m.pubName = ""
	m.pubVersion = &Counter{}
	m.mu.Unlock()

	for _, c := range conns {
		if err := c.conn.Close(); err != nil {
			slog.Warn("failed to close connection during cleanup",
				"connection_id", c.ID, "error", err)
		}
	}
	m.metrics.openConns.Set(0)

	if st != nil {
		if err := st.Close(); err != nil {
			slog.Warn("failed to close engine during cleanup", "error", err)
		}
		slog.Info("engine terminated")
	}

	return nil
}
