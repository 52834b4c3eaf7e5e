package ingest

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciview/querystore/internal/store"
)

// serveFile returns a test server serving body at every path.
func serveFile(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupSession(t *testing.T) (*store.Store, *sql.Conn) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	conn, err := s.Session(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return s, conn
}

func TestImport_CSVWithHeader(t *testing.T) {
	srv := serveFile(t, "name,qty,price\nbolt,10,0.25\nnut,20,0.10\n")
	_, conn := setupSession(t)

	im := NewImporter(nil)
	count, err := im.Import(context.Background(), conn, Spec{
		URL:   srv.URL + "/parts.csv",
		Kind:  KindCSV,
		Table: "parts",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var qty int64
	err = conn.QueryRowContext(context.Background(),
		"SELECT qty FROM parts WHERE name = 'bolt'").Scan(&qty)
	require.NoError(t, err)
	assert.Equal(t, int64(10), qty)
}

func TestImport_CSVTypeInference(t *testing.T) {
	srv := serveFile(t, "id,score,label\n1,0.5,alpha\n2,0.75,beta\n")
	_, conn := setupSession(t)

	im := NewImporter(nil)
	_, err := im.Import(context.Background(), conn, Spec{
		URL:   srv.URL + "/scores.csv",
		Kind:  KindCSV,
		Table: "scores",
	})
	require.NoError(t, err)

	// Numeric affinity means SUM works on imported text fields.
	var total float64
	err = conn.QueryRowContext(context.Background(),
		"SELECT SUM(score) FROM scores").Scan(&total)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, total, 1e-9)
}

func TestImport_CSVNoHeader(t *testing.T) {
	srv := serveFile(t, "1,alpha\n2,beta\n")
	_, conn := setupSession(t)

	im := NewImporter(nil)
	count, err := im.Import(context.Background(), conn, Spec{
		URL:   srv.URL + "/raw.csv",
		Kind:  KindCSV,
		Table: "raw",
		Options: Options{
			NoHeader: true,
			Columns:  []string{"id", "label"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var label string
	err = conn.QueryRowContext(context.Background(),
		"SELECT label FROM raw WHERE id = 2").Scan(&label)
	require.NoError(t, err)
	assert.Equal(t, "beta", label)
}

func TestImport_CSVNoHeaderSynthesizedColumns(t *testing.T) {
	srv := serveFile(t, "7,x\n8,y\n")
	_, conn := setupSession(t)

	im := NewImporter(nil)
	_, err := im.Import(context.Background(), conn, Spec{
		URL:     srv.URL + "/anon.csv",
		Kind:    KindCSV,
		Table:   "anon",
		Options: Options{NoHeader: true},
	})
	require.NoError(t, err)

	var v int64
	err = conn.QueryRowContext(context.Background(),
		"SELECT c0 FROM anon WHERE c1 = 'y'").Scan(&v)
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)
}

func TestImport_CSVCustomDelimiter(t *testing.T) {
	srv := serveFile(t, "a;b\n1;2\n")
	_, conn := setupSession(t)

	im := NewImporter(nil)
	count, err := im.Import(context.Background(), conn, Spec{
		URL:     srv.URL + "/semi.csv",
		Kind:    KindCSV,
		Table:   "semi",
		Options: Options{Delimiter: ";"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestImport_CSVEmptyFieldsBecomeNull(t *testing.T) {
	srv := serveFile(t, "id,note\n1,\n2,filled\n")
	_, conn := setupSession(t)

	im := NewImporter(nil)
	_, err := im.Import(context.Background(), conn, Spec{
		URL:   srv.URL + "/notes.csv",
		Kind:  KindCSV,
		Table: "notes",
	})
	require.NoError(t, err)

	var nulls int64
	err = conn.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM notes WHERE note IS NULL").Scan(&nulls)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nulls)
}

func TestImport_CSVHeaderOnly(t *testing.T) {
	srv := serveFile(t, "a,b\n")
	_, conn := setupSession(t)

	im := NewImporter(nil)
	count, err := im.Import(context.Background(), conn, Spec{
		URL:   srv.URL + "/hdr.csv",
		Kind:  KindCSV,
		Table: "hdr",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestImport_CSVEmptyFileFails(t *testing.T) {
	srv := serveFile(t, "")
	_, conn := setupSession(t)

	im := NewImporter(nil)
	_, err := im.Import(context.Background(), conn, Spec{
		URL:   srv.URL + "/empty.csv",
		Kind:  KindCSV,
		Table: "empty",
	})
	require.Error(t, err)
}

func TestImport_ReplacesExistingTable(t *testing.T) {
	_, conn := setupSession(t)
	im := NewImporter(nil)

	srv1 := serveFile(t, "v\n1\n2\n3\n")
	_, err := im.Import(context.Background(), conn, Spec{
		URL: srv1.URL + "/d.csv", Kind: KindCSV, Table: "d",
	})
	require.NoError(t, err)

	srv2 := serveFile(t, "v\n9\n")
	count, err := im.Import(context.Background(), conn, Spec{
		URL: srv2.URL + "/d.csv", Kind: KindCSV, Table: "d",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestImport_UnsupportedKind(t *testing.T) {
	_, conn := setupSession(t)

	im := NewImporter(nil)
	_, err := im.Import(context.Background(), conn, Spec{
		URL: "http://unused", Kind: Kind("xlsx"), Table: "t",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file kind")
}

func TestImport_FetchFailureFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	_, conn := setupSession(t)

	im := NewImporter(nil)
	_, err := im.Import(context.Background(), conn, Spec{
		URL: srv.URL + "/gone.csv", Kind: KindCSV, Table: "gone",
	})
	require.Error(t, err)
}
