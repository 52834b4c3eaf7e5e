// Package harness executes YAML conformance scenarios against the
// engine manager and snapshots the outcomes for golden comparison.
package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/sciview/querystore/internal/engine"
	"github.com/sciview/querystore/internal/ingest"
)

// Run executes a scenario against a fresh manager, serving its fixtures
// over an ephemeral HTTP server. Step failures that were expected count
// as passes; everything else is recorded as an expectation failure on
// the result rather than aborting the run.
func Run(scenario *Scenario) (*Result, error) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := scenario.Fixtures[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	ctx := context.Background()
	m := engine.NewManager()
	defer m.PerformGlobalCleanup(context.Background())

	result := &Result{Pass: true}
	result.Snapshot.ScenarioName = scenario.Name
	conns := make(map[string]*engine.Connection)

	for i, step := range scenario.Steps {
		sr, err := runStep(ctx, m, conns, srv.URL, &step)
		checkExpectation(result, i, &step, sr, err)
		result.Snapshot.Steps = append(result.Snapshot.Steps, *sr)
	}

	finalizeSnapshot(m, srv.URL, &result.Snapshot)
	return result, nil
}

func runStep(ctx context.Context, m *engine.Manager, conns map[string]*engine.Connection, baseURL string, step *Step) (*StepResult, error) {
	sr := &StepResult{Op: step.Op, Label: step.Label}
	if sr.Label == "" {
		sr.Label = step.Op
	}

	connID := ""
	if step.Connection != "" {
		c, err := connectionFor(ctx, m, conns, step.Connection)
		if err != nil {
			sr.ErrorCode = errorCode(err)
			return sr, err
		}
		connID = c.ID
	}

	switch step.Op {
	case OpLoad:
		table, err := m.LoadFile(ctx, engine.FileRequest{
			URL:        baseURL + step.Path,
			Kind:       ingest.Kind(step.Kind),
			Table:      step.Table,
			ConsumerID: connID,
			StableID:   step.StableID,
		})
		if err != nil {
			sr.ErrorCode = errorCode(err)
			return sr, err
		}
		sr.Table = table
		key := step.StableID
		if key == "" {
			key = baseURL + step.Path
		}
		if f, ok := m.File(key); ok {
			sr.Rows = f.Rows
		}
		return sr, nil

	case OpQuery:
		res, err := m.ExecuteQuery(ctx, step.SQL, connID)
		if err != nil {
			sr.ErrorCode = errorCode(err)
			return sr, err
		}
		sr.Columns = res.Columns
		sr.Records = res.Rows
		return sr, nil

	case OpPublishView:
		err := m.PublishViewFromQuery(ctx, step.Name, step.SQL, connID)
		if err != nil {
			sr.ErrorCode = errorCode(err)
		}
		return sr, err

	case OpPublishTable:
		err := m.PublishTableFromQuery(ctx, step.Name, step.SQL, connID)
		if err != nil {
			sr.ErrorCode = errorCode(err)
		}
		return sr, err

	case OpClose:
		err := m.CloseConnection(ctx, connID)
		if err != nil {
			sr.ErrorCode = errorCode(err)
		} else {
			delete(conns, step.Connection)
		}
		return sr, err

	case OpUnload:
		err := m.UnloadFile(ctx, step.Name)
		if err != nil {
			sr.ErrorCode = errorCode(err)
		}
		return sr, err
	}

	return sr, fmt.Errorf("unknown op %q", step.Op)
}

// connectionFor returns the named connection, creating it on first use.
// The scenario's connection label doubles as the connection id so
// snapshots stay deterministic.
func connectionFor(ctx context.Context, m *engine.Manager, conns map[string]*engine.Connection, name string) (*engine.Connection, error) {
	if c, ok := conns[name]; ok {
		return c, nil
	}
	c, err := m.CreateConnection(ctx, name)
	if err != nil {
		return nil, err
	}
	conns[name] = c
	return c, nil
}

// checkExpectation validates a step outcome against its expect clause.
func checkExpectation(result *Result, index int, step *Step, sr *StepResult, err error) {
	expectCode := ""
	var expectRows *int64
	if step.Expect != nil {
		expectCode = step.Expect.ErrorCode
		expectRows = step.Expect.Rows
	}

	if expectCode == "" && err != nil {
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected failure %s: %v", index, sr.Label, sr.ErrorCode, err))
		return
	}
	if expectCode != "" {
		if err == nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, step succeeded", index, sr.Label, expectCode))
		} else if sr.ErrorCode != expectCode {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got %s", index, sr.Label, expectCode, sr.ErrorCode))
		}
		return
	}

	if expectRows != nil {
		got := sr.Rows
		if step.Op == OpQuery {
			got = int64(len(sr.Records))
		}
		if got != *expectRows {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %d rows, got %d", index, sr.Label, *expectRows, got))
		}
	}
}

// finalizeSnapshot records the loaded-file registry and publication slot.
// Keys containing the ephemeral server URL are reduced to their path so
// snapshots are stable across runs.
func finalizeSnapshot(m *engine.Manager, baseURL string, snap *Snapshot) {
	for _, f := range m.Files() {
		snap.Files = append(snap.Files, FileSnapshot{
			Key:   strings.TrimPrefix(f.Key, baseURL),
			Table: f.Table,
			State: string(f.State),
			Rows:  f.Rows,
			Users: m.Usage(f.Key),
		})
	}

	name, version := m.Publication()
	snap.Publication = name
	snap.PubVersion = version
}

// errorCode reduces an error to its stable engine code for snapshots.
func errorCode(err error) string {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	return "ERROR"
}
