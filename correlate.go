package main

import (
	"errors"
	"fmt"
	"strings"
)

// ContractLookup resolves a procedure name to its fetched contract.
// *ContractSet implements it.
type ContractLookup interface {
	Lookup(name QualifiedName) (*ProcedureContract, error)
}

// Correlator joins endpoints, their collaborator calls and procedure
// contracts into CorrelationResults.
type Correlator struct {
	mapper *TypeMapper
	log    *Progress
}

// NewCorrelator returns a Correlator classifying SQL types with mapper.
func NewCorrelator(mapper *TypeMapper, log *Progress) *Correlator {
	if log == nil {
		log = NopProgress()
	}
	return &Correlator{mapper: mapper, log: log}
}

// Correlate produces one result per endpoint, in endpoint order. calls is
// parallel to endpoints and holds each endpoint's collaborator calls; a
// short or nil slice means no calls. A failure for one endpoint becomes a
// finding on its result and never stops the others.
func (c *Correlator) Correlate(endpoints []*Endpoint, calls [][]string, contracts ContractLookup) []CorrelationResult {
	results := make([]CorrelationResult, 0, len(endpoints))
	var mismatches int
	for i, ep := range endpoints {
		var epCalls []string
		if i < len(calls) {
			epCalls = calls[i]
		}
		r := c.correlate(ep, epCalls, contracts)
		if r.HasErrors() {
			mismatches++
		}
		results = append(results, r)
	}
	c.log.Log("Correlated %d endpoints (%d with errors)", len(results), mismatches)
	return results
}

// ProceduresOf returns the distinct procedures the endpoints can bind to,
// explicitly or through collaborator methods, in first-seen order.
func ProceduresOf(endpoints []*Endpoint, calls [][]string) []QualifiedName {
	var out []QualifiedName
	seen := make(map[string]bool)
	add := func(q QualifiedName) {
		if q.IsZero() || seen[q.key()] {
			return
		}
		seen[q.key()] = true
		out = append(out, q)
	}
	for i, ep := range endpoints {
		add(ep.Procedure)
		if i >= len(calls) {
			continue
		}
		for _, name := range calls[i] {
			if md := ep.Collaborator.Method(name); md != nil {
				add(md.Procedure)
			}
		}
	}
	return out
}

func (c *Correlator) correlate(ep *Endpoint, calls []string, contracts ContractLookup) CorrelationResult {
	if calls == nil {
		calls = []string{}
	}
	r := CorrelationResult{
		Key:      EndpointKey(ep.Controller, ep.Method),
		Endpoint: ep,
		Calls:    calls,
		Findings: []Finding{},
	}

	// Distinct procedures reached through collaborator methods, first
	// method wins for each procedure.
	var inferred []QualifiedName
	var inferredFrom []*MethodDescriptor
	for _, name := range calls {
		md := ep.Collaborator.Method(name)
		if md == nil || md.Procedure.IsZero() {
			continue
		}
		if containsName(inferred, md.Procedure) {
			continue
		}
		inferred = append(inferred, md.Procedure)
		inferredFrom = append(inferredFrom, md)
	}

	params := ep.Params
	explicit := ep.Procedure
	switch {
	case !explicit.IsZero():
		r.Procedure = explicit
		if len(inferred) > 0 && !containsName(inferred, explicit) {
			r.Findings = append(r.Findings, Finding{
				Kind:     KindAmbiguousBinding,
				Subtype:  SubtypeBindingConflict,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("%s binding %s disagrees with call graph (%s); using %s",
					ep.ProcedureSource, explicit.FullName(), joinNames(inferred), explicit.FullName()),
			})
		}
	case len(inferred) == 1:
		md := inferredFrom[0]
		r.Procedure = inferred[0]
		r.CollaboratorMethod = md.Name
		r.Key = BindingKey(ep.Controller, ep.Method, ep.Collaborator.Interface, md.Name)
		params = md.Params
	case len(inferred) > 1:
		r.Findings = append(r.Findings, Finding{
			Kind:     KindAmbiguousBinding,
			Subtype:  SubtypeMultipleCandidates,
			Severity: SeverityError,
			Message:  fmt.Sprintf("endpoint reaches %d procedures: %s", len(inferred), joinNames(inferred)),
		})
		return r
	default:
		c.log.Verbose("%s: no procedure binding", r.Key)
		return r
	}

	contract, err := contracts.Lookup(r.Procedure)
	if err != nil {
		r.Findings = append(r.Findings, lookupFinding(r.Procedure, err))
		return r
	}
	r.Contract = contract
	r.Findings = append(r.Findings, c.compare(params, contract)...)
	return r
}

func lookupFinding(proc QualifiedName, err error) Finding {
	if errors.Is(err, ErrNotFound) {
		return Finding{
			Kind:     KindContractMismatch,
			Subtype:  SubtypeProcedureNotFound,
			Severity: SeverityError,
			Message:  fmt.Sprintf("procedure %s does not exist", proc.FullName()),
		}
	}
	return Finding{
		Kind:     KindConnection,
		Severity: SeverityError,
		Message:  fmt.Sprintf("contract of %s unavailable: %v", proc.FullName(), err),
	}
}

// compare checks the parameter count against the input-direction procedure
// parameters, then categories position by position over the shared prefix.
func (c *Correlator) compare(params []ParameterDescriptor, contract *ProcedureContract) []Finding {
	var findings []Finding
	inputs := contract.InputParams()
	if len(params) != len(inputs) {
		findings = append(findings, Finding{
			Kind:     KindContractMismatch,
			Subtype:  SubtypeParameterCount,
			Severity: SeverityError,
			Message: fmt.Sprintf("code supplies %d parameters, %s expects %d input parameters",
				len(params), contract.Name.FullName(), len(inputs)),
		})
	}

	for i := 0; i < min(len(params), len(inputs)); i++ {
		code, proc := params[i], inputs[i]
		if !c.mapper.Supported(proc.SQLType) {
			findings = append(findings, Finding{
				Kind:      KindUnsupportedType,
				Subtype:   SubtypeVariantParameter,
				Severity:  SeverityWarning,
				Parameter: proc.Name,
				Message:   fmt.Sprintf("SQL type %s of %s is not mapped; not compared", proc.SQLType, proc.Name),
			})
			continue
		}
		sqlCat := c.mapper.Category(proc.SQLType)
		if code.Category == CategoryVariant {
			continue // interface-typed code parameter, nothing to compare
		}
		if !code.Category.Compatible(sqlCat) {
			findings = append(findings, Finding{
				Kind:      KindContractMismatch,
				Subtype:   SubtypeParameterType,
				Severity:  SeverityError,
				Parameter: proc.Name,
				Message: fmt.Sprintf("parameter %d: %s %s (%s) does not match %s %s (%s)",
					i+1, code.Name, code.Type, code.Category, proc.Name, proc.SQLType, sqlCat),
			})
		}
	}
	return findings
}

func containsName(names []QualifiedName, q QualifiedName) bool {
	for _, n := range names {
		if n.key() == q.key() {
			return true
		}
	}
	return false
}

func joinNames(names []QualifiedName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n.FullName()
	}
	return strings.Join(parts, ", ")
}
