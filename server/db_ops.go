package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// errNotFound reports an unknown run or procedure.
var errNotFound = errors.New("not found")

// EnsureSchema creates the report tables when the database has none yet.
func (db *DB) EnsureSchema() error {
	if _, err := db.Exec(reportTables); err != nil {
		return fmt.Errorf("ensure report tables: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner, extra ...any) (Run, error) {
	var run Run
	dest := []any{&run.RunID, &run.StartedAt, &run.Commit, &run.Branch, &run.Dirty,
		&run.Endpoints, &run.BoundEndpoints, &run.Procedures, &run.Errors, &run.Warnings}
	err := s.Scan(append(dest, extra...)...)
	return run, err
}

// Runs lists recorded runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	rows, err := db.Query(queryRuns, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ResolveRun returns runID when it is recorded, or the newest run when
// runID is empty. errNotFound means no such run exists.
func (db *DB) ResolveRun(runID string) (string, error) {
	var err error
	if runID == "" {
		err = db.QueryRow(queryLatestRun).Scan(&runID)
	} else {
		err = db.QueryRow(`SELECT run_id FROM runs WHERE run_id = ?`, runID).Scan(&runID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNotFound
	}
	return runID, err
}

// Summary returns the run row with its stored summary document.
func (db *DB) Summary(runID string) (*RunSummary, error) {
	var summary string
	run, err := scanRun(db.QueryRow(queryRunSummary, runID), &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &RunSummary{Run: run, Summary: []byte(summary)}, nil
}

// Results returns the correlation results of a run in endpoint order.
func (db *DB) Results(runID string, errorsOnly bool, limit int) ([]Result, error) {
	rows, err := db.Query(queryResults, runID, errorsOnly, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Result{}
	for rows.Next() {
		var r Result
		var calls string
		if err := rows.Scan(&r.Key, &r.Verb, &r.Route, &r.CollaboratorMethod, &r.Procedure, &calls, &r.HasErrors); err != nil {
			return nil, err
		}
		r.Calls = []byte(calls)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Findings returns the findings of a run, optionally filtered by severity and kind.
func (db *DB) Findings(runID, severity, kind string, limit int) ([]Finding, error) {
	rows, err := db.Query(queryFindings, runID, severity, severity, kind, kind, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanFindings(rows)
}

func scanFindings(rows *sql.Rows) ([]Finding, error) {
	defer rows.Close()
	out := []Finding{}
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.ResultKey, &f.Procedure, &f.Kind, &f.Subtype, &f.Severity, &f.Parameter, &f.Message); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Procedure gathers the contract, bound endpoints, findings and invocations
// recorded for one procedure in a run.
func (db *DB) Procedure(runID, name string) (*Procedure, error) {
	key := procedureKey(name, db.DefaultSchema)
	err := db.QueryRow(queryProcedureName, runID, key, runID, key, runID, key).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}

	p := &Procedure{Name: name, Params: []ProcedureParam{}, Endpoints: []string{}, Invocations: []Invocation{}}

	rows, err := db.Query(queryProcedureParams, runID, name)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var pp ProcedureParam
		if err := rows.Scan(&pp.Ordinal, &pp.Name, &pp.SQLType, &pp.Direction, &pp.Nullable,
			&pp.MaxLength, &pp.Precision, &pp.Scale, &pp.Default); err != nil {
			rows.Close()
			return nil, err
		}
		p.Params = append(p.Params, pp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Query(queryProcedureEndpoints, runID, name)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, err
		}
		p.Endpoints = append(p.Endpoints, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Query(queryProcedureFindings, runID, name)
	if err != nil {
		return nil, err
	}
	if p.Findings, err = scanFindings(rows); err != nil {
		return nil, err
	}

	rows, err = db.Query(queryProcedureInvocations, runID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var inv Invocation
		var args string
		var outputs sql.NullString
		if err := rows.Scan(&inv.DurationMS, &inv.RowCount, &args, &outputs, &inv.Error); err != nil {
			return nil, err
		}
		inv.Arguments = []byte(args)
		if outputs.Valid {
			inv.Outputs = []byte(outputs.String)
		}
		p.Invocations = append(p.Invocations, inv)
	}
	return p, rows.Err()
}

// procedureKey normalizes "[dbo].[name]", "dbo.name" and a bare "name" to
// the stored "schema.name" form, qualifying bare names with defaultSchema.
func procedureKey(name, defaultSchema string) string {
	name = strings.NewReplacer("[", "", "]", "").Replace(strings.TrimSpace(name))
	if !strings.Contains(name, ".") {
		name = defaultSchema + "." + name
	}
	return name
}
