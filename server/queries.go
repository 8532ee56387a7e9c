package main

// SQL constants aligned with the report schema written by sprocheck check --sqlite.
// Every table is keyed by run_id; parameters are bound by position.

// reportTables mirrors the tables the checker creates, so a fresh or empty
// database still answers every endpoint with 200 and empty data.
const reportTables = `
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
`

const runColumns = `run_id, started_at, commit_sha, branch, dirty, endpoints, bound_endpoints, procedures, errors, warnings`

const queryRuns = `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id LIMIT ?`

const queryLatestRun = `SELECT run_id FROM runs ORDER BY started_at DESC, run_id LIMIT 1`

const queryRunSummary = `SELECT ` + runColumns + `, summary FROM runs WHERE run_id = ?`

// Results and endpoints are written in the same order, so seq joins them.
const queryResults = `
SELECT r.key, e.verb, e.route, r.collaborator_method, r.procedure, r.calls, r.has_errors
FROM results r
LEFT JOIN endpoints e ON e.run_id = r.run_id AND e.seq = r.seq
WHERE r.run_id = ? AND (? = 0 OR r.has_errors = 1)
ORDER BY r.seq
LIMIT ?
`

const queryFindings = `
SELECT result_key, procedure, kind, subtype, severity, parameter, message
FROM findings
WHERE run_id = ? AND (? = '' OR severity = ?) AND (? = '' OR kind = ?)
ORDER BY rowid
LIMIT ?
`

// queryProcedureName finds the stored spelling of a procedure name;
// SQL Server identifiers are case-insensitive.
const queryProcedureName = `
SELECT procedure FROM (
  SELECT procedure FROM procedure_params WHERE run_id = ? AND procedure = ? COLLATE NOCASE
  UNION ALL SELECT procedure FROM results WHERE run_id = ? AND procedure = ? COLLATE NOCASE
  UNION ALL SELECT procedure FROM invocations WHERE run_id = ? AND procedure = ? COLLATE NOCASE
)
LIMIT 1
`

const queryProcedureParams = `
SELECT ordinal, name, sql_type, direction, nullable, max_length, precision, scale, default_value
FROM procedure_params
WHERE run_id = ? AND procedure = ?
ORDER BY ordinal
`

const queryProcedureEndpoints = `SELECT DISTINCT key FROM results WHERE run_id = ? AND procedure = ? ORDER BY key`

const queryProcedureFindings = `
SELECT result_key, procedure, kind, subtype, severity, parameter, message
FROM findings
WHERE run_id = ? AND procedure = ?
ORDER BY rowid
`

const queryProcedureInvocations = `
SELECT duration_ms, row_count, arguments, outputs, error
FROM invocations
WHERE run_id = ? AND procedure = ?
ORDER BY rowid
`
