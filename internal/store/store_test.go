package store

import (
	"context"
	"database/sql"
	"testing"
)

func TestOpen_CreatesEngine(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		t.Errorf("query failed: %v", err)
	}
	if one != 1 {
		t.Errorf("SELECT 1 = %d", one)
	}
}

func TestOpen_IsolatedInstances(t *testing.T) {
	ctx := context.Background()

	s1, err := Open(ctx)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	defer s1.Close()

	s2, err := Open(ctx)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	if s1.Name() == s2.Name() {
		t.Fatalf("two Opens returned the same database name %q", s1.Name())
	}

	if _, err := s1.db.ExecContext(ctx, "CREATE TABLE only_in_one (x INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	var count int
	err = s2.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='only_in_one'",
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Error("table created in one engine is visible in another")
	}
}

func TestSession_SharedSchema(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	a, err := s.Session(ctx)
	if err != nil {
		t.Fatalf("session a: %v", err)
	}
	defer a.Close()

	b, err := s.Session(ctx)
	if err != nil {
		t.Fatalf("session b: %v", err)
	}
	defer b.Close()

	if _, err := a.ExecContext(ctx, "CREATE TABLE shared (v INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.ExecContext(ctx, "INSERT INTO shared VALUES (42)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var v int
	if err := b.QueryRowContext(ctx, "SELECT v FROM shared").Scan(&v); err != nil {
		t.Fatalf("other session cannot read shared table: %v", err)
	}
	if v != 42 {
		t.Errorf("v = %d, want 42", v)
	}
}

func TestSession_ReadUncommittedApplied(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Two sessions so the pool is forced past the first connection.
	a, err := s.Session(ctx)
	if err != nil {
		t.Fatalf("session a: %v", err)
	}
	defer a.Close()
	b, err := s.Session(ctx)
	if err != nil {
		t.Fatalf("session b: %v", err)
	}
	defer b.Close()

	for name, conn := range map[string]*sql.Conn{"a": a, "b": b} {
		var v int
		if err := conn.QueryRowContext(ctx, "PRAGMA read_uncommitted").Scan(&v); err != nil {
			t.Fatalf("session %s: read pragma: %v", name, err)
		}
		if v != 1 {
			t.Errorf("session %s: read_uncommitted = %d, want 1", name, v)
		}
	}
}

func TestSession_ReadsDuringOpenWriteTx(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	mustExec(t, s, "CREATE TABLE a (v INTEGER)")
	mustExec(t, s, "CREATE TABLE b (v INTEGER)")
	mustExec(t, s, "INSERT INTO b VALUES (7)")

	writer, err := s.Session(ctx)
	if err != nil {
		t.Fatalf("writer session: %v", err)
	}
	defer writer.Close()

	tx, err := writer.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "INSERT INTO a VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// With the write lock held on table a, an independent session must
	// still be handed out and must still read table b.
	reader, err := s.Session(ctx)
	if err != nil {
		t.Fatalf("reader session during write tx: %v", err)
	}
	defer reader.Close()

	var v int
	if err := reader.QueryRowContext(ctx, "SELECT v FROM b").Scan(&v); err != nil {
		t.Fatalf("read during write tx: %v", err)
	}
	if v != 7 {
		t.Errorf("v = %d, want 7", v)
	}
}

func TestSession_AfterClose(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if _, err := s.Session(ctx); err == nil {
		t.Fatal("Session() after Close() succeeded")
	}
}

func TestClose_Idempotent(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestCollect_MaterializesRows(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	mustExec(t, s, "CREATE TABLE items (name TEXT, qty INTEGER, price REAL)")
	mustExec(t, s, "INSERT INTO items VALUES ('bolt', 10, 0.25), ('nut', 20, 0.1)")

	rows, err := s.db.QueryContext(ctx, "SELECT name, qty, price FROM items ORDER BY name")
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	cols, recs, err := Collect(rows)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	wantCols := []string{"name", "qty", "price"}
	if len(cols) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", cols, wantCols)
	}
	for i := range wantCols {
		if cols[i] != wantCols[i] {
			t.Errorf("column[%d] = %q, want %q", i, cols[i], wantCols[i])
		}
	}

	if len(recs) != 2 {
		t.Fatalf("got %d rows, want 2", len(recs))
	}
	if recs[0]["name"] != "bolt" {
		t.Errorf("row 0 name = %v", recs[0]["name"])
	}
	if recs[0]["qty"] != int64(10) {
		t.Errorf("row 0 qty = %v (%T), want int64(10)", recs[0]["qty"], recs[0]["qty"])
	}
	if recs[1]["price"] != 0.1 {
		t.Errorf("row 1 price = %v", recs[1]["price"])
	}
}

func TestCollect_EmptyResult(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	mustExec(t, s, "CREATE TABLE empty (x INTEGER)")

	rows, err := s.db.QueryContext(ctx, "SELECT x FROM empty")
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	cols, recs, err := Collect(rows)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(cols) != 1 || cols[0] != "x" {
		t.Errorf("columns = %v", cols)
	}
	if len(recs) != 0 {
		t.Errorf("got %d rows, want 0", len(recs))
	}
}

func mustExec(t *testing.T, s *Store, query string) {
	t.Helper()
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
