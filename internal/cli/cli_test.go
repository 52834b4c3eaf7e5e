package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout, stderr, err.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeManifestDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.cue"), []byte(content), 0o644))
	return dir
}

func serveCSVFile(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRoot_RejectsInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "yaml", "validate", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestValidate_ValidManifests(t *testing.T) {
	dir := writeManifestDir(t, `
dataset: demo: files: d: {url: "https://x.example.org/d.csv", kind: "csv"}
`)

	out, _, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 dataset(s), 1 file(s) valid")
}

func TestValidate_JSONOutput(t *testing.T) {
	dir := writeManifestDir(t, `
dataset: demo: files: d: {url: "https://x.example.org/d.csv", kind: "csv"}
`)

	out, _, err := execute(t, "--format", "json", "validate", dir)
	require.NoError(t, err)

	var resp Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidate_BadManifestFails(t *testing.T) {
	dir := writeManifestDir(t, `
dataset: demo: files: d: {kind: "csv"}
`)

	out, _, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E101")
}

func TestValidate_MissingDirectoryIsCommandError(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoad_ImportsManifestFiles(t *testing.T) {
	srv := serveCSVFile(t, "a,b\n1,2\n3,4\n")
	dir := writeManifestDir(t, `
dataset: demo: files: pairs: {url: "`+srv.URL+`/pairs.csv", kind: "csv"}
`)

	out, _, err := execute(t, "load", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ demo/pairs -> pairs (2 rows)")
}

func TestLoad_JSONReport(t *testing.T) {
	srv := serveCSVFile(t, "a\n1\n")
	dir := writeManifestDir(t, `
dataset: demo: files: ones: {url: "`+srv.URL+`/ones.csv", kind: "csv"}
`)

	out, _, err := execute(t, "--format", "json", "load", dir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   LoadReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Files, 1)
	assert.Equal(t, int64(1), resp.Data.Files[0].Rows)
	assert.Zero(t, resp.Data.Failed)
}

func TestLoad_FetchFailureExitsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	dir := writeManifestDir(t, `
dataset: demo: files: missing: {url: "`+srv.URL+`/missing.csv", kind: "csv"}
`)

	out, _, err := execute(t, "load", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ demo/missing")
}

func TestLoad_DatasetFilter(t *testing.T) {
	srv := serveCSVFile(t, "a\n1\n")
	dir := writeManifestDir(t, `
dataset: {
	wanted: files: w: {url: "`+srv.URL+`/w.csv", kind: "csv"}
	skipped: files: s: {url: "https://unreachable.invalid/s.csv", kind: "csv"}
}
`)

	out, _, err := execute(t, "load", dir, "--dataset", "wanted")
	require.NoError(t, err)
	assert.Contains(t, out, "wanted/w")
	assert.NotContains(t, out, "skipped")
}

func TestLoad_UnknownDatasetIsCommandError(t *testing.T) {
	dir := writeManifestDir(t, `
dataset: demo: files: d: {url: "https://x.example.org/d.csv", kind: "csv"}
`)

	_, _, err := execute(t, "load", dir, "--dataset", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQuery_EndToEnd(t *testing.T) {
	srv := serveCSVFile(t, "name,score\nada,3\ngrace,5\n")
	dir := writeManifestDir(t, `
dataset: demo: files: scores: {url: "`+srv.URL+`/scores.csv", kind: "csv"}
`)

	out, _, err := execute(t, "query", dir, "SELECT name FROM scores ORDER BY score DESC LIMIT 1")
	require.NoError(t, err)
	assert.Contains(t, out, "grace")
	assert.Contains(t, out, "(1 rows)")
}

func TestQuery_JSONResult(t *testing.T) {
	srv := serveCSVFile(t, "a\n1\n2\n")
	dir := writeManifestDir(t, `
dataset: demo: files: nums: {url: "`+srv.URL+`/nums.csv", kind: "csv"}
`)

	out, _, err := execute(t, "--format", "json", "query", dir, "SELECT SUM(a) AS total FROM nums")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   QueryReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"total"}, resp.Data.Columns)
	require.Len(t, resp.Data.Rows, 1)
	assert.Equal(t, float64(3), resp.Data.Rows[0]["total"])
}

func TestQuery_BadSQLFails(t *testing.T) {
	srv := serveCSVFile(t, "a\n1\n")
	dir := writeManifestDir(t, `
dataset: demo: files: nums: {url: "`+srv.URL+`/nums.csv", kind: "csv"}
`)

	_, _, err := execute(t, "query", dir, "SELECT nope FROM nowhere")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestQuery_MaxRowsGuard(t *testing.T) {
	srv := serveCSVFile(t, "a\n1\n2\n3\n")
	dir := writeManifestDir(t, `
dataset: demo: files: nums: {url: "`+srv.URL+`/nums.csv", kind: "csv"}
`)

	_, _, err := execute(t, "--max-rows", "2", "query", dir, "SELECT a FROM nums")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
