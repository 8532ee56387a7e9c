package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func sampleReport(runID string) *Report {
	ep := &Endpoint{
		Package: "example.com/shop", Controller: "OrdersController", Method: "GetOrderById",
		Verb: "GET", Route: "api/Orders/GetOrderById",
		Params:    []ParameterDescriptor{{Name: "id", Type: "int", Category: CategoryInteger}},
		Procedure: qn("dbo", "sp_Orders_GetById"), ProcedureSource: BindingConvention,
		Pos: "orders.go:12",
	}
	unbound := &Endpoint{Package: "example.com/shop", Controller: "OrdersController", Method: "GetHealth", Verb: "GET", Route: "health"}
	contract := &ProcedureContract{
		Name:   qn("dbo", "sp_Orders_GetById"),
		Params: []ProcedureParameter{{Name: "@OrderId", SQLType: "int", MaxLength: intPtr(4), Ordinal: 1}},
	}
	r := &Report{
		RunID:     runID,
		StartedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		Revision:  &GitRevision{Commit: "0123456789abcdef", Short: "0123456789ab", Branch: "main"},
		Endpoints: []*Endpoint{ep, unbound},
		Contracts: []*ProcedureContract{contract},
		Results: []CorrelationResult{
			{Key: "OrdersController.GetOrderById", Endpoint: ep, Calls: []string{"GetOrderById"}, Procedure: ep.Procedure, Contract: contract, Findings: []Finding{}},
			{Key: "OrdersController.GetHealth", Endpoint: unbound, Calls: []string{}, Findings: []Finding{
				{Kind: KindAmbiguousBinding, Subtype: SubtypeMultipleCandidates, Severity: SeverityError, Message: "two"},
			}},
		},
		Invocations: []InvocationResult{
			{Procedure: contract.Name, Arguments: []Argument{{Name: "OrderId", Value: int32(0), Source: ArgumentMapperDefault}}, Rows: [][]any{{int64(1)}}, Duration: 15 * time.Millisecond},
			{Procedure: qn("dbo", "sp_Other"), Err: errors.New("boom")},
		},
	}
	r.Summary = ComputeSummary(r)
	return r
}

func countRows(t *testing.T, conn *sqlite.Conn, query string, args ...any) int64 {
	t.Helper()
	var n int64
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	require.NoError(t, err)
	return n
}

func TestWriteReportDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.db")
	require.NoError(t, WriteReportDB(path, sampleReport("run-1"), NopProgress()))
	require.NoError(t, WriteReportDB(path, sampleReport("run-2"), NopProgress()), "runs accumulate")

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite)
	require.NoError(t, err)
	defer conn.Close()

	assert.EqualValues(t, 2, countRows(t, conn, `SELECT COUNT(*) FROM runs`))
	assert.EqualValues(t, 2, countRows(t, conn, `SELECT COUNT(*) FROM endpoints WHERE run_id = ?`, "run-1"))
	assert.EqualValues(t, 1, countRows(t, conn, `SELECT COUNT(*) FROM endpoints WHERE run_id = ? AND procedure IS NULL`, "run-1"))
	assert.EqualValues(t, 1, countRows(t, conn, `SELECT COUNT(*) FROM results WHERE run_id = ? AND has_errors = 1`, "run-1"))
	assert.EqualValues(t, 1, countRows(t, conn, `SELECT COUNT(*) FROM findings WHERE run_id = ? AND subtype = ?`, "run-2", SubtypeMultipleCandidates))
	assert.EqualValues(t, 4, countRows(t, conn, `SELECT max_length FROM procedure_params WHERE run_id = ? AND procedure = ?`, "run-1", "dbo.sp_Orders_GetById"))
	assert.EqualValues(t, 1, countRows(t, conn, `SELECT COUNT(*) FROM invocations WHERE run_id = ? AND error IS NOT NULL`, "run-1"))
	assert.EqualValues(t, 2, countRows(t, conn, `SELECT errors FROM runs WHERE run_id = ?`, "run-1"))

	var summary string
	require.NoError(t, sqlitex.Execute(conn, `SELECT summary FROM runs WHERE run_id = ?`, &sqlitex.ExecOptions{
		Args: []any{"run-2"},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			summary = stmt.ColumnText(0)
			return nil
		},
	}))
	var s Summary
	require.NoError(t, json.Unmarshal([]byte(summary), &s))
	assert.Equal(t, 1, s.BoundEndpoints)
}

func TestWriteReportDB_DuplicateRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.db")
	require.NoError(t, WriteReportDB(path, sampleReport("same"), NopProgress()))
	assert.Error(t, WriteReportDB(path, sampleReport("same"), NopProgress()))

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite)
	require.NoError(t, err)
	defer conn.Close()
	assert.EqualValues(t, 2, countRows(t, conn, `SELECT COUNT(*) FROM endpoints`), "failed run is rolled back")
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReportJSON("-", sampleReport("run-json"), &buf))

	var decoded struct {
		RunID       string `json:"run_id"`
		Results     []map[string]any
		Invocations []map[string]any
		Summary     Summary
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-json", decoded.RunID)
	require.Len(t, decoded.Results, 2)
	assert.Equal(t, "OrdersController.GetOrderById", decoded.Results[0]["key"])
	require.Len(t, decoded.Invocations, 2)
	assert.Equal(t, "boom", decoded.Invocations[1]["error"])
	assert.Equal(t, 2, decoded.Summary.Errors)
}
