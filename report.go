package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// reportSchema is shared with the report server; every table is keyed by run_id
// so one database accumulates runs.
const reportSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    commit_sha TEXT,
    branch TEXT,
    dirty INTEGER NOT NULL DEFAULT 0,
    endpoints INTEGER NOT NULL,
    bound_endpoints INTEGER NOT NULL,
    procedures INTEGER NOT NULL,
    errors INTEGER NOT NULL,
    warnings INTEGER NOT NULL,
    summary TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS endpoints (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    key TEXT NOT NULL,
    package TEXT NOT NULL,
    controller TEXT NOT NULL,
    method TEXT NOT NULL,
    verb TEXT NOT NULL,
    route TEXT NOT NULL,
    procedure TEXT,
    procedure_source TEXT,
    collaborator TEXT,
    pos TEXT,
    params TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS results (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    key TEXT NOT NULL,
    endpoint_key TEXT NOT NULL,
    collaborator_method TEXT,
    procedure TEXT,
    calls TEXT NOT NULL,
    has_errors INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS findings (
    run_id TEXT NOT NULL,
    result_key TEXT NOT NULL,
    procedure TEXT,
    kind TEXT NOT NULL,
    subtype TEXT,
    severity TEXT NOT NULL,
    parameter TEXT,
    message TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS procedure_params (
    run_id TEXT NOT NULL,
    procedure TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    name TEXT NOT NULL,
    sql_type TEXT NOT NULL,
    direction TEXT NOT NULL,
    nullable INTEGER NOT NULL,
    max_length INTEGER,
    precision INTEGER,
    scale INTEGER,
    default_value TEXT
);

CREATE TABLE IF NOT EXISTS invocations (
    run_id TEXT NOT NULL,
    procedure TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    row_count INTEGER NOT NULL,
    arguments TEXT NOT NULL,
    outputs TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id, severity);
CREATE INDEX IF NOT EXISTS idx_params_proc ON procedure_params(run_id, procedure);
CREATE INDEX IF NOT EXISTS idx_invocations_run ON invocations(run_id, procedure);
`

// WriteReportDB appends the report as one run to the SQLite database at path,
// creating the schema when needed.
func WriteReportDB(path string, r *Report, prog *Progress) (err error) {
	prog.Log("Writing report to %s ...", path)

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous = NORMAL", nil); err != nil {
		return err
	}
	if err := sqlitex.ExecuteScript(conn, reportSchema, nil); err != nil {
		return fmt.Errorf("create report schema: %w", err)
	}

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	if err = insertRun(conn, r); err != nil {
		return err
	}
	if err = insertEndpoints(conn, r.RunID, r.Endpoints); err != nil {
		return err
	}
	if err = insertResults(conn, r.RunID, r.Results); err != nil {
		return err
	}
	if err = insertContracts(conn, r.RunID, r.Contracts); err != nil {
		return err
	}
	if err = insertInvocations(conn, r.RunID, r.Invocations); err != nil {
		return err
	}

	prog.Log("Wrote run %s: %d endpoints, %d results, %d procedures, %d invocations",
		r.RunID, len(r.Endpoints), len(r.Results), len(r.Contracts), len(r.Invocations))
	return nil
}

func insertRun(conn *sqlite.Conn, r *Report) error {
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	stmt, err := conn.Prepare(`INSERT INTO runs (run_id, started_at, commit_sha, branch, dirty, endpoints, bound_endpoints, procedures, errors, warnings, summary) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	stmt.BindText(1, r.RunID)
	stmt.BindText(2, r.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	if r.Revision != nil {
		bindTextOrNull(stmt, 3, r.Revision.Commit)
		bindTextOrNull(stmt, 4, r.Revision.Branch)
		stmt.BindBool(5, r.Revision.Dirty)
	} else {
		stmt.BindNull(3)
		stmt.BindNull(4)
		stmt.BindBool(5, false)
	}
	stmt.BindInt64(6, int64(r.Summary.Endpoints))
	stmt.BindInt64(7, int64(r.Summary.BoundEndpoints))
	stmt.BindInt64(8, int64(r.Summary.Procedures))
	stmt.BindInt64(9, int64(r.Summary.Errors))
	stmt.BindInt64(10, int64(r.Summary.Warnings))
	stmt.BindText(11, string(summary))
	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	return nil
}

func insertEndpoints(conn *sqlite.Conn, runID string, eps []*Endpoint) error {
	stmt, err := conn.Prepare(`INSERT INTO endpoints (run_id, seq, key, package, controller, method, verb, route, procedure, procedure_source, collaborator, pos, params) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare endpoint insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for i, ep := range eps {
		params, err := json.Marshal(ep.Params)
		if err != nil {
			return fmt.Errorf("encode params of %s: %w", ep.Method, err)
		}
		stmt.BindText(1, runID)
		stmt.BindInt64(2, int64(i))
		stmt.BindText(3, EndpointKey(ep.Controller, ep.Method))
		stmt.BindText(4, ep.Package)
		stmt.BindText(5, ep.Controller)
		stmt.BindText(6, ep.Method)
		stmt.BindText(7, ep.Verb)
		stmt.BindText(8, ep.Route)
		bindProcedure(stmt, 9, ep.Procedure)
		bindTextOrNull(stmt, 10, string(ep.ProcedureSource))
		if ep.Collaborator != nil {
			stmt.BindText(11, ep.Collaborator.Interface)
		} else {
			stmt.BindNull(11)
		}
		bindTextOrNull(stmt, 12, ep.Pos)
		stmt.BindText(13, string(params))
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert endpoint %s.%s: %w", ep.Controller, ep.Method, err)
		}
		_ = stmt.Reset()
	}
	return nil
}

func insertResults(conn *sqlite.Conn, runID string, results []CorrelationResult) error {
	stmt, err := conn.Prepare(`INSERT INTO results (run_id, seq, key, endpoint_key, collaborator_method, procedure, calls, has_errors) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for i, r := range results {
		calls, err := json.Marshal(r.Calls)
		if err != nil {
			return fmt.Errorf("encode calls of %s: %w", r.Key, err)
		}
		endpointKey := r.Key
		if r.Endpoint != nil {
			endpointKey = EndpointKey(r.Endpoint.Controller, r.Endpoint.Method)
		}
		stmt.BindText(1, runID)
		stmt.BindInt64(2, int64(i))
		stmt.BindText(3, r.Key)
		stmt.BindText(4, endpointKey)
		bindTextOrNull(stmt, 5, r.CollaboratorMethod)
		bindProcedure(stmt, 6, r.Procedure)
		stmt.BindText(7, string(calls))
		stmt.BindBool(8, r.HasErrors())
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert result %s: %w", r.Key, err)
		}
		_ = stmt.Reset()

		if err := insertFindings(conn, runID, r.Key, r.Procedure, r.Findings); err != nil {
			return err
		}
	}
	return nil
}

func insertFindings(conn *sqlite.Conn, runID, key string, proc QualifiedName, findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	stmt, err := conn.Prepare(`INSERT INTO findings (run_id, result_key, procedure, kind, subtype, severity, parameter, message) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare finding insert: %w", err)
	}
	for _, f := range findings {
		stmt.BindText(1, runID)
		stmt.BindText(2, key)
		bindProcedure(stmt, 3, proc)
		stmt.BindText(4, f.Kind.String())
		bindTextOrNull(stmt, 5, f.Subtype)
		stmt.BindText(6, string(f.Severity))
		bindTextOrNull(stmt, 7, f.Parameter)
		stmt.BindText(8, f.Message)
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert finding for %s: %w", key, err)
		}
		_ = stmt.Reset()
	}
	return nil
}

func insertContracts(conn *sqlite.Conn, runID string, contracts []*ProcedureContract) error {
	stmt, err := conn.Prepare(`INSERT INTO procedure_params (run_id, procedure, ordinal, name, sql_type, direction, nullable, max_length, precision, scale, default_value) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare parameter insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for _, c := range contracts {
		for _, p := range c.Params {
			stmt.BindText(1, runID)
			stmt.BindText(2, c.Name.UnescapedFullName())
			stmt.BindInt64(3, int64(p.Ordinal))
			stmt.BindText(4, p.Name)
			stmt.BindText(5, p.SQLType)
			stmt.BindText(6, p.Direction())
			stmt.BindBool(7, p.Nullable)
			bindOptionalInt(stmt, 8, p.MaxLength)
			bindOptionalInt(stmt, 9, p.Precision)
			bindOptionalInt(stmt, 10, p.Scale)
			if p.Default != nil {
				stmt.BindText(11, *p.Default)
			} else {
				stmt.BindNull(11)
			}
			if _, err := stmt.Step(); err != nil {
				return fmt.Errorf("insert parameter %s of %s: %w", p.Name, c.Name, err)
			}
			_ = stmt.Reset()
		}
	}
	return nil
}

func insertInvocations(conn *sqlite.Conn, runID string, invocations []InvocationResult) error {
	stmt, err := conn.Prepare(`INSERT INTO invocations (run_id, procedure, duration_ms, row_count, arguments, outputs, error) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare invocation insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for _, inv := range invocations {
		args, err := json.Marshal(inv.Arguments)
		if err != nil {
			return fmt.Errorf("encode arguments of %s: %w", inv.Procedure, err)
		}
		stmt.BindText(1, runID)
		stmt.BindText(2, inv.Procedure.UnescapedFullName())
		stmt.BindInt64(3, inv.Duration.Milliseconds())
		stmt.BindInt64(4, int64(len(inv.Rows)))
		stmt.BindText(5, string(args))
		if len(inv.Outputs) > 0 {
			outputs, err := json.Marshal(inv.Outputs)
			if err != nil {
				return fmt.Errorf("encode outputs of %s: %w", inv.Procedure, err)
			}
			stmt.BindText(6, string(outputs))
		} else {
			stmt.BindNull(6)
		}
		if inv.Err != nil {
			stmt.BindText(7, inv.Err.Error())
		} else {
			stmt.BindNull(7)
		}
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert invocation of %s: %w", inv.Procedure, err)
		}
		_ = stmt.Reset()

		if err := insertFindings(conn, runID, inv.Procedure.UnescapedFullName(), inv.Procedure, inv.Warnings); err != nil {
			return err
		}
	}
	return nil
}

// WriteReportJSON encodes the report as indented JSON. An empty path or "-"
// writes to stdout.
func WriteReportJSON(path string, r *Report, stdout io.Writer) error {
	w := stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	return encodeJSON(w, r)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Helper functions for nullable bindings.

func bindTextOrNull(stmt *sqlite.Stmt, param int, val string) {
	if val == "" {
		stmt.BindNull(param)
	} else {
		stmt.BindText(param, val)
	}
}

func bindOptionalInt(stmt *sqlite.Stmt, param int, val *int) {
	if val == nil {
		stmt.BindNull(param)
	} else {
		stmt.BindInt64(param, int64(*val))
	}
}

func bindProcedure(stmt *sqlite.Stmt, param int, q QualifiedName) {
	bindTextOrNull(stmt, param, strings.TrimPrefix(q.UnescapedFullName(), "."))
}
