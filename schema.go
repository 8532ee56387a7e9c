package main

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// catalogQuery reads one procedure's parameters from the SQL Server catalog
// views. The LEFT JOIN keeps a single all-NULL parameter row for procedures
// without parameters, so zero rows always means the procedure is missing.
// The statement is kept to portable SQL so SQLite fixtures with an attached
// "sys" schema can answer it unchanged.
const catalogQuery = `
SELECT
	p.name,
	t.name,
	p.is_output,
	p.max_length,
	p.precision,
	p.scale,
	p.parameter_id,
	p.is_nullable,
	CASE WHEN p.has_default_value = 1 THEN CAST(p.default_value AS NVARCHAR(4000)) END
FROM sys.procedures AS pr
JOIN sys.schemas AS s ON s.schema_id = pr.schema_id
LEFT JOIN sys.parameters AS p ON p.object_id = pr.object_id
LEFT JOIN sys.types AS t ON t.user_type_id = p.user_type_id
WHERE s.name = @schema AND pr.name = @name
ORDER BY p.parameter_id`

// Introspector fetches procedure contracts from a database catalog.
type Introspector struct {
	db   *sql.DB
	prog *Progress
}

// NewIntrospector returns an Introspector reading through db.
func NewIntrospector(db *sql.DB, prog *Progress) *Introspector {
	return &Introspector{db: db, prog: prog}
}

// FetchContract returns the parameter contract of schema.name. It fails with
// a NotFound ContractError when the catalog has no such procedure and with a
// ConnectionError when the database cannot answer. Neither is retried.
func (in *Introspector) FetchContract(ctx context.Context, schema, name string) (*ProcedureContract, error) {
	qn := QualifiedName{Schema: schema, Name: name}

	conn, err := in.db.Conn(ctx)
	if err != nil {
		return nil, newConnectionError("introspect", qn.UnescapedFullName(), err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, catalogQuery, sql.Named("schema", schema), sql.Named("name", name))
	if err != nil {
		return nil, newConnectionError("introspect", qn.UnescapedFullName(), err)
	}
	defer rows.Close()

	contract := &ProcedureContract{Name: qn, Params: []ProcedureParameter{}}
	var found bool
	for rows.Next() {
		found = true
		var pName, tName, defaultValue sql.NullString
		var isOutput, isNullable sql.NullBool
		var maxLength, precision, scale, ordinal sql.NullInt64
		if err := rows.Scan(&pName, &tName, &isOutput, &maxLength, &precision, &scale, &ordinal, &isNullable, &defaultValue); err != nil {
			return nil, newConnectionError("introspect", qn.UnescapedFullName(), fmt.Errorf("scan catalog row: %w", err))
		}
		if !pName.Valid && !ordinal.Valid {
			continue // procedure without parameters
		}
		contract.Params = append(contract.Params, ProcedureParameter{
			Name:      pName.String,
			SQLType:   tName.String,
			Output:    isOutput.Valid && isOutput.Bool,
			Nullable:  isNullable.Valid && isNullable.Bool,
			MaxLength: optionalInt(maxLength),
			Precision: optionalInt(precision),
			Scale:     optionalInt(scale),
			Default:   optionalString(defaultValue),
			Ordinal:   int(ordinal.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, newConnectionError("introspect", qn.UnescapedFullName(), err)
	}
	if !found {
		return nil, newNotFound("introspect", qn.UnescapedFullName())
	}

	slices.SortStableFunc(contract.Params, func(a, b ProcedureParameter) int {
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})

	if in.prog != nil {
		in.prog.Verbose("Introspected %s: %d parameters", qn.UnescapedFullName(), len(contract.Params))
	}
	return contract, nil
}

func optionalInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func optionalString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// ContractSet holds the contracts fetched for one run, together with the
// per-procedure failures, keyed case-insensitively.
type ContractSet struct {
	order     []QualifiedName
	contracts map[string]*ProcedureContract
	failures  map[string]error
}

// NewContractSet returns an empty set.
func NewContractSet() *ContractSet {
	return &ContractSet{
		contracts: make(map[string]*ProcedureContract),
		failures:  make(map[string]error),
	}
}

// Add records a fetched contract.
func (s *ContractSet) Add(c *ProcedureContract) {
	k := c.Name.key()
	if _, dup := s.contracts[k]; !dup {
		s.order = append(s.order, c.Name)
	}
	s.contracts[k] = c
	delete(s.failures, k)
}

// Fail records why a procedure's contract could not be fetched.
func (s *ContractSet) Fail(name QualifiedName, err error) {
	s.failures[name.key()] = err
}

// Lookup returns the contract for name, the recorded failure, or a NotFound
// error when the procedure was never fetched.
func (s *ContractSet) Lookup(name QualifiedName) (*ProcedureContract, error) {
	if c, ok := s.contracts[name.key()]; ok {
		return c, nil
	}
	if err, ok := s.failures[name.key()]; ok {
		return nil, err
	}
	return nil, newNotFound("lookup", name.UnescapedFullName())
}

// Contracts returns fetched contracts in the order they were added.
func (s *ContractSet) Contracts() []*ProcedureContract {
	out := make([]*ProcedureContract, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.contracts[n.key()])
	}
	return out
}

// FetchAll fetches every distinct name. A failure for one procedure is
// recorded in the set and logged; it never stops the others.
func (in *Introspector) FetchAll(ctx context.Context, names []QualifiedName) *ContractSet {
	set := NewContractSet()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n.IsZero() || seen[n.key()] {
			continue
		}
		seen[n.key()] = true

		c, err := in.FetchContract(ctx, n.Schema, n.Name)
		if err != nil {
			set.Fail(n, err)
			if in.prog != nil {
				if errors.Is(err, ErrNotFound) {
					in.prog.Warn("Procedure %s not found in catalog", n.UnescapedFullName())
				} else {
					in.prog.Warn("Introspection of %s failed: %v", n.UnescapedFullName(), err)
				}
			}
			continue
		}
		set.Add(c)
	}
	return set
}
