package main

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func refundContract() *ProcedureContract {
	reason := ProcedureParameter{Name: "@Reason", SQLType: "nvarchar", Nullable: true, Ordinal: 3}
	note := ProcedureParameter{Name: "@Note", SQLType: "nvarchar", Default: strPtr("n/a"), Ordinal: 4}
	out := ProcedureParameter{Name: "@RefundId", SQLType: "int", Output: true, Nullable: true, Ordinal: 5}
	return &ProcedureContract{
		Name: qn("sales", "usp_Refund"),
		Params: []ProcedureParameter{
			{Name: "@OrderId", SQLType: "int", Ordinal: 1},
			{Name: "@Amount", SQLType: "decimal", Ordinal: 2},
			reason, note, out,
		},
	}
}

func newMockInvoker(t *testing.T, opts InvokerOptions) (*Invoker, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return NewInvoker(db, NewTypeMapper(WithClock(func() time.Time { return fixedNow })), opts, nil), mock, db
}

func TestBuildArguments(t *testing.T) {
	inv := NewInvoker(nil, NewTypeMapper(WithClock(func() time.Time { return fixedNow })), InvokerOptions{}, nil)
	c := refundContract()
	c.Params = append(c.Params,
		ProcedureParameter{Name: "@At", SQLType: "datetime2", Ordinal: 6},
		ProcedureParameter{Name: "@Extra", SQLType: "sql_variant", Ordinal: 7},
	)

	args, warnings := inv.BuildArguments(c)
	require.Len(t, args, 7)

	assert.Equal(t, Argument{Name: "OrderId", Value: int32(0), Source: ArgumentMapperDefault, sqlType: "int"}, args[0])
	assert.Equal(t, decimal.Zero, args[1].Value)
	assert.Equal(t, ArgumentNull, args[2].Source)
	assert.Nil(t, args[2].Value)
	assert.Equal(t, ArgumentCatalogDefault, args[3].Source)
	assert.Equal(t, "n/a", args[3].Value)
	assert.True(t, args[4].Output)
	assert.Equal(t, ArgumentOutput, args[4].Source)
	assert.Equal(t, fixedNow, args[5].Value)
	assert.Equal(t, ArgumentNull, args[6].Source)

	require.Len(t, warnings, 1)
	assert.Equal(t, SubtypeVariantParameter, warnings[0].Subtype)
	assert.Equal(t, "@Extra", warnings[0].Parameter)
}

func TestExecStatement(t *testing.T) {
	assert.Equal(t,
		"EXEC [sales].[usp_Refund] @OrderId = @OrderId, @Amount = @Amount, @Reason = @Reason, @Note = @Note, @RefundId = @RefundId OUTPUT",
		ExecStatement(refundContract()))
	assert.Equal(t, "EXEC [dbo].[sp_Ping]", ExecStatement(&ProcedureContract{Name: qn("dbo", "sp_Ping")}))
}

func TestInvokeWithDefaults(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	inv, mock, db := newMockInvoker(t, InvokerOptions{})
	defer db.Close()

	c := refundContract()
	mock.ExpectQuery(ExecStatement(c)).
		WithArgs(
			sql.Named("OrderId", int32(0)),
			sql.Named("Amount", decimal.Zero),
			sql.Named("Reason", nil),
			sql.Named("Note", "n/a"),
			outputArg{value: int64(7)},
		).
		WillReturnRows(
			sqlmock.NewRows([]string{"RefundId", "Payload"}).AddRow(int64(7), []byte("ok")),
			sqlmock.NewRows([]string{"Ignored"}).AddRow("second set"),
		)

	res := inv.InvokeWithDefaults(context.Background(), c)
	require.NoError(t, res.Err)
	assert.Equal(t, c.Name, res.Procedure)
	assert.Equal(t, []string{"RefundId", "Payload"}, res.Columns)
	assert.Equal(t, [][]any{{int64(7), []byte("ok")}}, res.Rows, "only the first result set is kept")
	assert.Equal(t, map[string]any{"RefundId": int32(7)}, res.Outputs)
	assert.Positive(t, res.Duration)
	require.NoError(t, mock.ExpectationsWereMet())
}

// outputArg stands in for the driver on an OUTPUT parameter. Like
// go-mssqldb it refuses destinations whose type cannot be declared, then
// writes value into the destination as the server would after the call.
type outputArg struct {
	value driver.Value
}

func (a outputArg) Match(v driver.Value) bool {
	out, ok := v.(sql.Out)
	if !ok {
		return false
	}
	dest := reflect.ValueOf(out.Dest)
	if dest.Kind() != reflect.Pointer || dest.IsNil() {
		return false
	}
	if k := dest.Elem().Kind(); k == reflect.Pointer || k == reflect.Interface {
		return false
	}
	switch d := out.Dest.(type) {
	case sql.Scanner:
		return d.Scan(a.value) == nil
	case *[]byte:
		b, _ := a.value.([]byte)
		*d = b
		return true
	}
	return false
}

func TestInvokeWithDefaults_NullOutput(t *testing.T) {
	inv, mock, db := newMockInvoker(t, InvokerOptions{})
	defer db.Close()

	c := &ProcedureContract{
		Name:   qn("sales", "usp_Refund"),
		Params: []ProcedureParameter{{Name: "@RefundId", SQLType: "int", Output: true, Nullable: true, Ordinal: 1}},
	}
	mock.ExpectQuery(ExecStatement(c)).
		WithArgs(outputArg{value: nil}).
		WillReturnRows(sqlmock.NewRows([]string{"x"}))

	res := inv.InvokeWithDefaults(context.Background(), c)
	require.NoError(t, res.Err, "a NULL output must not fail the call")
	assert.Equal(t, map[string]any{"RefundId": nil}, res.Outputs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvokeWithDefaults_TypedOutputs(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	tests := []struct {
		sqlType string
		value   driver.Value
		want    any
	}{
		{"sql_variant", "blue", "blue"},
		{"sql_variant", nil, nil},
		{"decimal(10,2)", []byte("12.50"), decimal.RequireFromString("12.50")},
		{"bigint", int64(9), int64(9)},
		{"tinyint", int64(3), uint8(3)},
		{"bit", true, true},
		{"real", float64(1.5), float32(1.5)},
		{"datetime2", fixedNow, fixedNow},
		{"varbinary", []byte{1, 2}, []byte{1, 2}},
		{"varbinary", nil, nil},
		{"uniqueidentifier", id.String(), id},
		{"nvarchar", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			inv, mock, db := newMockInvoker(t, InvokerOptions{})
			defer db.Close()

			c := &ProcedureContract{
				Name:   qn("dbo", "usp_Out"),
				Params: []ProcedureParameter{{Name: "@Result", SQLType: tt.sqlType, Output: true, Nullable: true, Ordinal: 1}},
			}
			mock.ExpectQuery(ExecStatement(c)).
				WithArgs(outputArg{value: tt.value}).
				WillReturnRows(sqlmock.NewRows([]string{"x"}))

			res := inv.InvokeWithDefaults(context.Background(), c)
			require.NoError(t, res.Err)
			assert.Equal(t, map[string]any{"Result": tt.want}, res.Outputs)
		})
	}
}

func TestInvokeWithDefaults_ErrorIsCaptured(t *testing.T) {
	inv, mock, db := newMockInvoker(t, InvokerOptions{})
	defer db.Close()

	c := &ProcedureContract{Name: qn("dbo", "sp_Ping")}
	boom := errors.New("deadlock victim")
	mock.ExpectQuery("EXEC [dbo].[sp_Ping]").WillReturnError(boom)

	res := inv.InvokeWithDefaults(context.Background(), c)
	require.Error(t, res.Err)
	assert.Equal(t, KindConnection, KindOf(res.Err))
	assert.ErrorIs(t, res.Err, boom)
	assert.Empty(t, res.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvokeWithDefaults_Timeout(t *testing.T) {
	inv, mock, db := newMockInvoker(t, InvokerOptions{Timeout: 20 * time.Millisecond})
	defer db.Close()

	mock.ExpectQuery("EXEC [dbo].[sp_Ping]").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"x"}))

	res := inv.InvokeWithDefaults(context.Background(), &ProcedureContract{Name: qn("dbo", "sp_Ping")})
	require.Error(t, res.Err)
	assert.Equal(t, KindConnection, KindOf(res.Err))
	assert.Less(t, res.Duration, time.Second)
}

func TestInvokeAll_OrderAndIsolation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	inv, mock, db := newMockInvoker(t, InvokerOptions{Concurrency: 1})
	defer db.Close()

	contracts := []*ProcedureContract{
		{Name: qn("dbo", "sp_A")},
		{Name: qn("dbo", "sp_B")},
		{Name: qn("dbo", "sp_C")},
	}
	mock.ExpectQuery("EXEC [dbo].[sp_A]").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectQuery("EXEC [dbo].[sp_B]").WillReturnError(errors.New("permission denied"))
	mock.ExpectQuery("EXEC [dbo].[sp_C]").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(3)))

	results := inv.InvokeAll(context.Background(), contracts)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, contracts[i].Name, r.Procedure)
	}
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, [][]any{{int64(3)}}, results[2].Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}
