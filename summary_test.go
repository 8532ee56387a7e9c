package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSummary(t *testing.T) {
	r := &Report{
		Endpoints: make([]*Endpoint, 3),
		Contracts: []*ProcedureContract{{Name: qn("dbo", "sp_A")}},
		Results: []CorrelationResult{
			{Procedure: qn("dbo", "sp_A"), Findings: []Finding{}},
			{Procedure: qn("dbo", "sp_Missing"), Findings: []Finding{
				{Kind: KindContractMismatch, Subtype: SubtypeProcedureNotFound, Severity: SeverityError},
			}},
			{Findings: []Finding{
				{Kind: KindAmbiguousBinding, Subtype: SubtypeMultipleCandidates, Severity: SeverityError},
				{Kind: KindUnsupportedType, Subtype: SubtypeVariantParameter, Severity: SeverityWarning},
			}},
		},
		Invocations: []InvocationResult{
			{Procedure: qn("dbo", "sp_A")},
			{Procedure: qn("dbo", "sp_B"), Err: newConnectionError("invoke", "dbo.sp_B", errors.New("timeout"))},
		},
	}

	s := ComputeSummary(r)
	assert.Equal(t, Summary{
		Endpoints:      3,
		BoundEndpoints: 2,
		Procedures:     1,
		Errors:         3,
		Warnings:       1,
		ByKind: map[string]int{
			"contract_mismatch": 1,
			"ambiguous_binding": 1,
			"unsupported_type":  1,
			"connection_error":  1,
		},
		BySubtype: map[string]int{
			SubtypeProcedureNotFound:  1,
			SubtypeMultipleCandidates: 1,
			SubtypeVariantParameter:   1,
		},
		Invocations:        2,
		InvocationFailures: 1,
	}, s)
	assert.True(t, s.Failed())
	assert.False(t, ComputeSummary(&Report{}).Failed())
}
