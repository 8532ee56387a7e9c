package main

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes contract-checking failures and findings.
type ErrorKind int

const (
	// KindUnknown is an uncategorized error.
	KindUnknown ErrorKind = iota
	// KindNotFound: the named procedure is absent from the catalog.
	KindNotFound
	// KindConnection: the database could not be reached or the query failed.
	KindConnection
	// KindContractMismatch: code-derived and catalog-derived shapes disagree.
	KindContractMismatch
	// KindUnsupportedType: a SQL type is missing from the type mapper table.
	KindUnsupportedType
	// KindAmbiguousBinding: more than one plausible procedure for an endpoint.
	KindAmbiguousBinding
)

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConnection:
		return "connection_error"
	case KindContractMismatch:
		return "contract_mismatch"
	case KindUnsupportedType:
		return "unsupported_type"
	case KindAmbiguousBinding:
		return "ambiguous_binding"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ContractError is a categorized failure raised by introspection or invocation.
type ContractError struct {
	Kind      ErrorKind
	Procedure string // unbracketed qualified name, may be empty
	Op        string // "introspect", "invoke", ...
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	msg := fmt.Sprintf("%s during %s", e.Kind, e.Op)
	if e.Procedure != "" {
		msg += " of " + e.Procedure
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ContractError) Unwrap() error {
	return e.Cause
}

// Is matches another *ContractError by Kind only.
func (e *ContractError) Is(target error) bool {
	t, ok := target.(*ContractError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound   = &ContractError{Kind: KindNotFound}
	ErrConnection = &ContractError{Kind: KindConnection}
)

func newNotFound(op, procedure string) *ContractError {
	return &ContractError{
		Kind:      KindNotFound,
		Procedure: procedure,
		Op:        op,
		Message:   "procedure does not exist in the catalog",
	}
}

func newConnectionError(op, procedure string, cause error) *ContractError {
	return &ContractError{
		Kind:      KindConnection,
		Procedure: procedure,
		Op:        op,
		Cause:     cause,
	}
}

// KindOf returns the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Severity grades a finding for reporting and exit codes.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding subtypes.
const (
	SubtypeProcedureNotFound  = "procedure_not_found"
	SubtypeParameterCount     = "parameter_count"
	SubtypeParameterType      = "parameter_type"
	SubtypeBindingConflict    = "binding_conflict"
	SubtypeMultipleCandidates = "multiple_candidates"
	SubtypeVariantParameter   = "variant_parameter"
)

// Finding is one reportable disagreement attached to a correlation result.
type Finding struct {
	Kind      ErrorKind `json:"kind"`
	Subtype   string    `json:"subtype,omitempty"`
	Severity  Severity  `json:"severity"`
	Parameter string    `json:"parameter,omitempty"`
	Message   string    `json:"message"`
}
