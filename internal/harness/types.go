package harness

// Step operation constants.
const (
	OpLoad         = "load"
	OpQuery        = "query"
	OpPublishView  = "publish_view"
	OpPublishTable = "publish_table"
	OpClose        = "close"
	OpUnload       = "unload"
)

// StepResult is the recorded outcome of one scenario step.
type StepResult struct {
	Op    string `json:"op"`
	Label string `json:"label,omitempty"`

	// Load outcomes.
	Table string `json:"table,omitempty"`
	Rows  int64  `json:"rows,omitempty"`

	// Query outcomes.
	Columns []string         `json:"columns,omitempty"`
	Records []map[string]any `json:"records,omitempty"`

	// Failure outcome, as a stable error code rather than a message so
	// snapshots stay deterministic.
	ErrorCode string `json:"error_code,omitempty"`
}

// FileSnapshot is the deterministic view of one loaded-file entry.
type FileSnapshot struct {
	Key   string   `json:"key"`
	Table string   `json:"table"`
	State string   `json:"state"`
	Rows  int64    `json:"rows,omitempty"`
	Users []string `json:"users,omitempty"`
}

// Snapshot captures everything a scenario run produced: per-step
// outcomes, the final loaded-file registry, and the publication slot.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Steps        []StepResult   `json:"steps"`
	Files        []FileSnapshot `json:"files,omitempty"`
	Publication  string         `json:"publication,omitempty"`
	PubVersion   int64          `json:"pub_version,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as its expect
	// clause (or the default expectation of success) demanded.
	Pass bool `json:"pass"`

	// Snapshot is the deterministic run record used for golden files.
	Snapshot Snapshot `json:"snapshot"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
