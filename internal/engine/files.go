package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/sciview/querystore/internal/ingest"
	"github.com/sciview/querystore/internal/store"
)

// FileState tracks a loaded-file entry through its lifecycle.
// Transitions: pending -> ready, pending -> failed; failed entries may be
// retried and re-enter pending. There is no automatic re-trigger of an
// in-flight load.
type FileState string

const (
	// FileStatePending means a load is in flight for this key.
	FileStatePending FileState = "pending"
	// FileStateReady means the file is materialized and queryable.
	FileStateReady FileState = "ready"
	// FileStateFailed means the last load attempt failed; retryable.
	FileStateFailed FileState = "failed"
)

// LoadedFile is one imported dataset materialized as an engine table.
type LoadedFile struct {
	// Key is the de-duplication key: the caller's stable id, or the URL
	// when none was supplied.
	Key string

	// URL is the source the file was (last) fetched from.
	URL string

	// Kind is the source format.
	Kind ingest.Kind

	// Table is the materialized table name.
	Table string

	// State is the entry's lifecycle state.
	State FileState

	// Rows is the imported row count, known once ready.
	Rows int64

	// Error holds the failure detail when State is failed.
	Error string

	// LoadedAt records when the entry last became ready.
	LoadedAt time.Time
}

// FileRequest describes one LoadFile call.
type FileRequest struct {
	// URL is the resolved source location. May be ephemeral (presigned).
	URL string

	// Kind is the source format: csv or parquet.
	Kind ingest.Kind

	// Table is the desired materialized table name.
	Table string

	// Options carries format-specific settings and the opaque bearer.
	Options ingest.Options

	// ConsumerID is the requesting consumer, recorded in the usage map.
	ConsumerID string

	// StableID is the de-duplication key. Callers should supply a
	// content-derived id when the URL changes between requests for the
	// same logical file; falls back to URL when empty.
	StableID string
}

// LoadFile materializes a file as an engine table, de-duplicated by
// stable id: once an entry is ready, every later request for the same key
// records usage and returns the existing table name without fetching.
// N consumers referencing the same logical file pay the import cost once.
//
// Two consumers racing on a brand-new key can both fetch and import -
// there is no in-flight de-dup below the ready state. Each import's
// insert phase runs in one table-clearing transaction on a private
// session, so the duplicate work is wasted effort, not corruption:
// whichever commit lands last holds exactly one import's content.
//
// Returns the materialized table name.
func (m *Manager) LoadFile(ctx context.Context, req FileRequest) (string, error) {
	if err := m.EnsureInitialized(ctx); err != nil {
		return "", err
	}

	key := req.StableID
	if key == "" {
		key = req.URL
	}

	m.mu.Lock()
	if f, ok := m.files[key]; ok && f.State == FileStateReady {
		m.recordUsageLocked(key, req.ConsumerID)
		table := f.Table
		m.mu.Unlock()

		m.metrics.dedupHits.Inc()
		slog.Debug("file load short-circuited", "key", key, "table", table,
			"consumer", req.ConsumerID)
		return table, nil
	}

	m.files[key] = &LoadedFile{
		Key:   key,
		URL:   req.URL,
		Kind:  req.Kind,
		Table: req.Table,
		State: FileStatePending,
	}
	m.recordUsageLocked(key, req.ConsumerID)
	st := m.store
	m.mu.Unlock()

	table, rows, err := m.importFile(ctx, st, req)

	m.mu.Lock()
	f := m.files[key]
	if f == nil {
		// Unloaded while the import was in flight; re-register so the
		// outcome stays observable.
		f = &LoadedFile{Key: key, URL: req.URL, Kind: req.Kind, Table: req.Table}
		m.files[key] = f
	}
	if err != nil {
		f.State = FileStateFailed
		f.Error = err.Error()
	} else {
		f.State = FileStateReady
		f.Table = table
		f.Rows = rows
		f.Error = ""
		f.LoadedAt = time.Now()
	}
	m.mu.Unlock()

	if err != nil {
		m.metrics.loads.WithLabelValues("error").Inc()
		return "", newFileLoadError(key, err)
	}

	m.metrics.loads.WithLabelValues("ok").Inc()
	slog.Info("file loaded", "key", key, "table", table, "rows", rows,
		"kind", string(req.Kind))
	return table, nil
}

// importFile runs the fetch + ingestion on a private short-lived session.
func (m *Manager) importFile(ctx context.Context, st *store.Store, req FileRequest) (string, int64, error) {
	if st == nil {
		// Torn down between EnsureInitialized and the registry update.
		return "", 0, errors.New("engine is not initialized")
	}
	session, err := st.Session(ctx)
	if err != nil {
		return "", 0, err
	}
	defer session.Close()

	rows, err := m.importer.Import(ctx, session, ingest.Spec{
		URL:     req.URL,
		Kind:    req.Kind,
		Table:   req.Table,
		Options: req.Options,
	})
	if err != nil {
		return "", 0, err
	}
	return req.Table, rows, nil
}

// UnloadFile drops the backing table and removes the LoadedFile and
// usage entries. Tolerant of unknown keys and already-missing tables.
// Never invoked automatically - lifecycle is caller-driven.
func (m *Manager) UnloadFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	f, ok := m.files[fileID]
	if ok {
		delete(m.files, fileID)
	}
	delete(m.usage, fileID)
	st := m.store
	m.mu.Unlock()

	if !ok || st == nil {
		return nil
	}

	session, err := st.Session(ctx)
	if err != nil {
		return newFileLoadError(fileID, err)
	}
	defer session.Close()

	drop := "DROP TABLE IF EXISTS " + store.QuoteIdent(f.Table)
	if _, err := session.ExecContext(ctx, drop); err != nil {
		return newFileLoadError(fileID, err)
	}

	slog.Debug("file unloaded", "key", fileID, "table", f.Table)
	return nil
}

// File returns a snapshot of the loaded-file entry for key.
func (m *Manager) File(key string) (LoadedFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[key]
	if !ok {
		return LoadedFile{}, false
	}
	return *f, true
}

// Files returns snapshots of all loaded-file entries, sorted by key.
func (m *Manager) Files() []LoadedFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LoadedFile, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Usage returns the sorted consumer ids currently recorded against key.
func (m *Manager) Usage(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := m.usage[key]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// recordUsageLocked adds consumerID to the usage set for key.
// Callers hold m.mu.
func (m *Manager) recordUsageLocked(key, consumerID string) {
	if consumerID == "" {
		return
	}
	users := m.usage[key]
	if users == nil {
		users = make(map[string]struct{})
		m.usage[key] = users
	}
	users[consumerID] = struct{}{}
}

// FormatIDFromURL derives a stable id from a URL: the query string and
// fragment (where presigned-link churn lives) are discarded and the rest
// is hashed. Same URL, same id - pure and deterministic.
func FormatIDFromURL(raw string) string {
	base := raw
	if u, err := url.Parse(raw); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		base = u.String()
	}
	sum := sha256.Sum256([]byte(base))
	return "file-" + hex.EncodeToString(sum[:])[:16]
}
