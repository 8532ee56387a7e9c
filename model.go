package main

import (
	"encoding/json"
	"go/types"
	"time"
)

// ParameterDescriptor describes one parameter of an endpoint or collaborator method.
type ParameterDescriptor struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Category TypeCategory `json:"category"`
	Optional bool         `json:"optional,omitempty"`
	Default  *string      `json:"default,omitempty"`
}

// BindingSource records how a procedure binding was established.
type BindingSource string

const (
	BindingNone       BindingSource = ""
	BindingMarker     BindingSource = "marker"
	BindingConvention BindingSource = "convention"
)

// MethodDescriptor is one method of a collaborator interface.
type MethodDescriptor struct {
	Name            string                `json:"name"`
	Params          []ParameterDescriptor `json:"params"`
	Procedure       QualifiedName         `json:"procedure,omitzero"`
	ProcedureSource BindingSource         `json:"procedure_source,omitempty"`
}

// CollaboratorDescriptor is the injected manager interface of a controller.
type CollaboratorDescriptor struct {
	Interface       string             `json:"interface"`
	Field           string             `json:"field"`
	Methods         []MethodDescriptor `json:"methods"`
	Implementations []string           `json:"implementations,omitempty"`

	iface *types.Interface
}

// Method returns the named method, or nil.
func (c *CollaboratorDescriptor) Method(name string) *MethodDescriptor {
	if c == nil {
		return nil
	}
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i]
		}
	}
	return nil
}

// Endpoint describes one HTTP action method. Built once during extraction
// and never modified afterwards.
type Endpoint struct {
	Package         string                  `json:"package"`
	Controller      string                  `json:"controller"`
	Method          string                  `json:"method"`
	Verb            string                  `json:"verb"`
	Route           string                  `json:"route"`
	Params          []ParameterDescriptor   `json:"params"`
	Procedure       QualifiedName           `json:"procedure,omitzero"`
	ProcedureSource BindingSource           `json:"procedure_source,omitempty"`
	Collaborator    *CollaboratorDescriptor `json:"collaborator,omitempty"`
	Markers         []Marker                `json:"-"`
	Pos             string                  `json:"pos,omitempty"`

	method *types.Func
}

// ProcedureParameter is one row of a procedure contract, as reported by the catalog.
type ProcedureParameter struct {
	Name      string  `json:"name"`
	SQLType   string  `json:"sql_type"`
	Output    bool    `json:"output"`
	Nullable  bool    `json:"nullable"`
	MaxLength *int    `json:"max_length"`
	Precision *int    `json:"precision"`
	Scale     *int    `json:"scale"`
	Default   *string `json:"default"`
	Ordinal   int     `json:"ordinal"`
}

// Direction returns "out" for output parameters and "in" otherwise.
func (p ProcedureParameter) Direction() string {
	if p.Output {
		return "out"
	}
	return "in"
}

// ProcedureContract is the ordered parameter list of a stored procedure.
type ProcedureContract struct {
	Name   QualifiedName        `json:"name"`
	Params []ProcedureParameter `json:"params"`
}

// InputParams returns the input-direction parameters in ordinal order.
func (c *ProcedureContract) InputParams() []ProcedureParameter {
	var in []ProcedureParameter
	for _, p := range c.Params {
		if !p.Output {
			in = append(in, p)
		}
	}
	return in
}

// CorrelationResult joins one endpoint with its resolved procedure.
type CorrelationResult struct {
	Key                string             `json:"key"`
	Endpoint           *Endpoint          `json:"-"`
	CollaboratorMethod string             `json:"collaborator_method,omitempty"`
	Calls              []string           `json:"calls"`
	Procedure          QualifiedName      `json:"procedure,omitzero"`
	Contract           *ProcedureContract `json:"-"`
	Findings           []Finding          `json:"findings"`
}

// HasErrors reports whether any finding is error-severity.
func (r *CorrelationResult) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// InvocationResult is the outcome of one synthetic procedure call.
type InvocationResult struct {
	Procedure QualifiedName  `json:"procedure"`
	Arguments []Argument     `json:"arguments"`
	Columns   []string       `json:"columns,omitempty"`
	Rows      [][]any        `json:"rows,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Warnings  []Finding      `json:"warnings,omitempty"`
	Err       error          `json:"-"`
	Duration  time.Duration  `json:"duration"`
}

// MarshalJSON adds the error message, which error values do not encode.
func (r InvocationResult) MarshalJSON() ([]byte, error) {
	type plain InvocationResult
	var msg string
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return json.Marshal(struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain(r), msg})
}

// Report is the complete output of one analysis run.
type Report struct {
	RunID       string               `json:"run_id"`
	StartedAt   time.Time            `json:"started_at"`
	Revision    *GitRevision         `json:"revision,omitempty"`
	Endpoints   []*Endpoint          `json:"endpoints"`
	Contracts   []*ProcedureContract `json:"contracts"`
	Results     []CorrelationResult  `json:"results"`
	Invocations []InvocationResult   `json:"invocations,omitempty"`
	Summary     Summary              `json:"summary"`
}
