package main

import (
	"database/sql"
	"encoding/json"
)

// nullStringJSON marshals as string or null (for API contract: "commit": "x" or "commit": null).
type nullStringJSON struct{ sql.NullString }

func (n nullStringJSON) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n *nullStringJSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Valid = false
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.String, n.Valid = s, true
	return nil
}

// nullInt64JSON marshals as number or null.
type nullInt64JSON struct{ sql.NullInt64 }

func (n nullInt64JSON) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Int64)
}

func (n *nullInt64JSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Valid = false
		return nil
	}
	var i int64
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	n.Int64, n.Valid = i, true
	return nil
}

// DB wraps *sql.DB and provides report query helpers.
type DB struct {
	*sql.DB

	// DefaultSchema qualifies bare procedure names in lookups.
	DefaultSchema string
}

// NewDB returns a DB wrapper using the "dbo" default schema.
func NewDB(db *sql.DB) *DB {
	return &DB{DB: db, DefaultSchema: "dbo"}
}

// Run is one recorded check run.
type Run struct {
	RunID          string         `json:"run_id"`
	StartedAt      string         `json:"started_at"`
	Commit         nullStringJSON `json:"commit"`
	Branch         nullStringJSON `json:"branch"`
	Dirty          bool           `json:"dirty"`
	Endpoints      int            `json:"endpoints"`
	BoundEndpoints int            `json:"bound_endpoints"`
	Procedures     int            `json:"procedures"`
	Errors         int            `json:"errors"`
	Warnings       int            `json:"warnings"`
}

// RunSummary is a run with its full summary document.
type RunSummary struct {
	Run
	Summary json.RawMessage `json:"summary"`
}

// Result is one endpoint correlation of a run.
type Result struct {
	Key                string          `json:"key"`
	Verb               nullStringJSON  `json:"verb"`
	Route              nullStringJSON  `json:"route"`
	CollaboratorMethod nullStringJSON  `json:"collaborator_method"`
	Procedure          nullStringJSON  `json:"procedure"`
	Calls              json.RawMessage `json:"calls"`
	HasErrors          bool            `json:"has_errors"`
}

// Finding is one reported problem.
type Finding struct {
	ResultKey string         `json:"result_key"`
	Procedure nullStringJSON `json:"procedure"`
	Kind      string         `json:"kind"`
	Subtype   nullStringJSON `json:"subtype"`
	Severity  string         `json:"severity"`
	Parameter nullStringJSON `json:"parameter"`
	Message   string         `json:"message"`
}

// ProcedureParam is one parameter row of a procedure contract.
type ProcedureParam struct {
	Ordinal   int            `json:"ordinal"`
	Name      string         `json:"name"`
	SQLType   string         `json:"sql_type"`
	Direction string         `json:"direction"`
	Nullable  bool           `json:"nullable"`
	MaxLength nullInt64JSON  `json:"max_length"`
	Precision nullInt64JSON  `json:"precision"`
	Scale     nullInt64JSON  `json:"scale"`
	Default   nullStringJSON `json:"default"`
}

// Invocation is one synthetic call of a procedure.
type Invocation struct {
	DurationMS int64           `json:"duration_ms"`
	RowCount   int64           `json:"row_count"`
	Arguments  json.RawMessage `json:"arguments"`
	Outputs    json.RawMessage `json:"outputs,omitempty"`
	Error      nullStringJSON  `json:"error"`
}

// Procedure is everything a run recorded about one stored procedure.
type Procedure struct {
	Name        string           `json:"name"`
	Params      []ProcedureParam `json:"params"`
	Endpoints   []string         `json:"endpoints"`
	Findings    []Finding        `json:"findings"`
	Invocations []Invocation     `json:"invocations"`
}

const (
	defaultListLimit = 200
	maxListLimit     = 1000
)
