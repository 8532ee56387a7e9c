package main

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ArgumentSource records where a synthesized argument came from.
type ArgumentSource string

const (
	ArgumentCatalogDefault ArgumentSource = "catalog_default"
	ArgumentNull           ArgumentSource = "null"
	ArgumentMapperDefault  ArgumentSource = "mapper_default"
	ArgumentOutput         ArgumentSource = "output"
)

// Argument is one synthesized procedure argument.
type Argument struct {
	Name   string         `json:"name"` // without the leading "@"
	Value  any            `json:"value"`
	Source ArgumentSource `json:"source"`
	Output bool           `json:"output,omitempty"`

	sqlType string
}

// InvokerOptions bounds synthetic invocations.
type InvokerOptions struct {
	Timeout     time.Duration // per invocation; 0 means only the caller's context
	Concurrency int           // InvokeAll parallelism; <= 1 is sequential
}

// Invoker executes procedures with synthesized default arguments.
type Invoker struct {
	db     *sql.DB
	mapper *TypeMapper
	opts   InvokerOptions
	log    *Progress
}

// NewInvoker returns an Invoker running statements on db.
func NewInvoker(db *sql.DB, mapper *TypeMapper, opts InvokerOptions, log *Progress) *Invoker {
	if log == nil {
		log = NopProgress()
	}
	return &Invoker{db: db, mapper: mapper, opts: opts, log: log}
}

// BuildArguments synthesizes one argument per parameter in ordinal order:
// the catalog default if declared, else NULL for nullable parameters, else
// the mapper default. Unmapped types become NULL with a warning.
func (inv *Invoker) BuildArguments(c *ProcedureContract) ([]Argument, []Finding) {
	args := make([]Argument, 0, len(c.Params))
	var warnings []Finding
	for _, p := range c.Params {
		a := Argument{Name: strings.TrimPrefix(p.Name, "@"), Output: p.Output, sqlType: p.SQLType}
		switch {
		case p.Output:
			a.Source = ArgumentOutput
		case p.Default != nil:
			a.Value, a.Source = *p.Default, ArgumentCatalogDefault
		case p.Nullable:
			a.Source = ArgumentNull
		default:
			v := inv.mapper.DefaultValue(p.SQLType)
			if _, unsupported := v.(Variant); unsupported {
				warnings = append(warnings, Finding{
					Kind:      KindUnsupportedType,
					Subtype:   SubtypeVariantParameter,
					Severity:  SeverityWarning,
					Parameter: p.Name,
					Message:   fmt.Sprintf("no default for SQL type %s; passing NULL", p.SQLType),
				})
				a.Source = ArgumentNull
				break
			}
			a.Value, a.Source = v, ArgumentMapperDefault
		}
		args = append(args, a)
	}
	return args, warnings
}

// ExecStatement renders "EXEC [s].[p] @A = @A, @B = @B OUTPUT".
func ExecStatement(c *ProcedureContract) string {
	var b strings.Builder
	b.WriteString("EXEC ")
	b.WriteString(c.Name.FullName())
	for i, p := range c.Params {
		name := strings.TrimPrefix(p.Name, "@")
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@%s = @%s", name, name)
		if p.Output {
			b.WriteString(" OUTPUT")
		}
	}
	return b.String()
}

// InvokeWithDefaults executes c once with synthesized arguments on its own
// connection. The connection is released on every path. Errors are carried
// in the result, never returned, and never retried.
func (inv *Invoker) InvokeWithDefaults(ctx context.Context, c *ProcedureContract) (res InvocationResult) {
	start := time.Now()
	res = InvocationResult{Procedure: c.Name}
	res.Arguments, res.Warnings = inv.BuildArguments(c)
	defer func() { res.Duration = time.Since(start) }()

	if inv.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.opts.Timeout)
		defer cancel()
	}

	proc := c.Name.UnescapedFullName()
	conn, err := inv.db.Conn(ctx)
	if err != nil {
		res.Err = newConnectionError("invoke", proc, err)
		return res
	}
	defer func() { _ = conn.Close() }()

	namedArgs := make([]any, len(res.Arguments))
	outputs := make(map[string]func() any)
	for i, a := range res.Arguments {
		if a.Output {
			dest, read := outputSlot(inv.mapper.ClientType(a.sqlType))
			outputs[a.Name] = read
			namedArgs[i] = sql.Named(a.Name, sql.Out{Dest: dest})
			continue
		}
		namedArgs[i] = sql.Named(a.Name, a.Value)
	}

	rows, err := conn.QueryContext(ctx, ExecStatement(c), namedArgs...)
	if err != nil {
		res.Err = newConnectionError("invoke", proc, err)
		return res
	}
	if err := inv.drain(rows, &res); err != nil {
		_ = rows.Close()
		res.Err = newConnectionError("invoke", proc, err)
		return res
	}
	// Output parameters are only written once the rows are closed.
	if err := rows.Close(); err != nil {
		res.Err = newConnectionError("invoke", proc, err)
		return res
	}
	if len(outputs) > 0 {
		res.Outputs = make(map[string]any, len(outputs))
		for name, read := range outputs {
			res.Outputs[name] = read()
		}
	}
	inv.log.Verbose("Invoked %s: %d rows in %s", proc, len(res.Rows), time.Since(start))
	return res
}

// outputSlot returns a typed, nullable OUTPUT destination for t and a reader
// yielding its post-call value, or nil when the procedure left it NULL.
// The driver needs a concrete non-pointer type to declare the parameter, so
// decimals and variants travel as nvarchar.
func outputSlot(t reflect.Type) (any, func() any) {
	switch t {
	case typeInt64:
		n := new(sql.NullInt64)
		return n, func() any { return nullable(n.Int64, n.Valid) }
	case typeInt32:
		n := new(sql.NullInt32)
		return n, func() any { return nullable(n.Int32, n.Valid) }
	case typeInt16:
		n := new(sql.NullInt16)
		return n, func() any { return nullable(n.Int16, n.Valid) }
	case typeUint8:
		n := new(sql.NullByte)
		return n, func() any { return nullable(n.Byte, n.Valid) }
	case typeBool:
		n := new(sql.NullBool)
		return n, func() any { return nullable(n.Bool, n.Valid) }
	case typeTime:
		n := new(sql.NullTime)
		return n, func() any { return nullable(n.Time, n.Valid) }
	case typeFloat64:
		n := new(sql.NullFloat64)
		return n, func() any { return nullable(n.Float64, n.Valid) }
	case typeFloat32:
		n := new(sql.NullFloat64)
		return n, func() any { return nullable(float32(n.Float64), n.Valid) }
	case typeUUID:
		n := new(mssql.NullUniqueIdentifier)
		return n, func() any { return nullable(uuid.UUID(n.UUID), n.Valid) }
	case typeBytes:
		b := new([]byte)
		return b, func() any { return nullable(*b, *b != nil) }
	case typeDecimal:
		n := new(sql.NullString)
		return n, func() any {
			if !n.Valid {
				return nil
			}
			if d, err := decimal.NewFromString(n.String); err == nil {
				return d
			}
			return n.String
		}
	default: // text, xml and Variant
		n := new(sql.NullString)
		return n, func() any { return nullable(n.String, n.Valid) }
	}
}

func nullable[T any](v T, valid bool) any {
	if !valid {
		return nil
	}
	return v
}

// drain reads the first result set into res and discards any further sets.
func (inv *Invoker) drain(rows *sql.Rows, res *InvocationResult) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	res.Columns = cols
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = append([]byte(nil), b...)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for rows.NextResultSet() {
		for rows.Next() {
			// discard
		}
	}
	return rows.Err()
}

// InvokeAll invokes every contract with at most Concurrency invocations in
// flight. Results are in input order; one failure never cancels the others.
func (inv *Invoker) InvokeAll(ctx context.Context, contracts []*ProcedureContract) []InvocationResult {
	inv.log.Log("Invoking %d procedures with synthesized arguments...", len(contracts))
	results := make([]InvocationResult, len(contracts))

	var g errgroup.Group
	g.SetLimit(max(inv.opts.Concurrency, 1))
	for i, c := range contracts {
		g.Go(func() error {
			results[i] = inv.InvokeWithDefaults(ctx, c)
			return nil
		})
	}
	_ = g.Wait() // invocations record their own errors

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			inv.log.Warn("Invocation of %s failed: %v", r.Procedure.UnescapedFullName(), r.Err)
		}
	}
	inv.log.Log("Invoked %d procedures (%d failed)", len(results), failed)
	return results
}
