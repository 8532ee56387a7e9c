package main

// Summary aggregates a report for display and exit codes.
type Summary struct {
	Endpoints          int            `json:"endpoints"`
	BoundEndpoints     int            `json:"bound_endpoints"`
	Procedures         int            `json:"procedures"`
	Errors             int            `json:"errors"`
	Warnings           int            `json:"warnings"`
	ByKind             map[string]int `json:"by_kind"`
	BySubtype          map[string]int `json:"by_subtype"`
	Invocations        int            `json:"invocations"`
	InvocationFailures int            `json:"invocation_failures"`
}

// ComputeSummary counts endpoints, bindings and findings by kind and
// severity. Invocation warnings count like correlation warnings.
func ComputeSummary(r *Report) Summary {
	s := Summary{
		Endpoints:   len(r.Endpoints),
		Procedures:  len(r.Contracts),
		Invocations: len(r.Invocations),
		ByKind:      make(map[string]int),
		BySubtype:   make(map[string]int),
	}

	count := func(f Finding) {
		switch f.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		}
		s.ByKind[f.Kind.String()]++
		if f.Subtype != "" {
			s.BySubtype[f.Subtype]++
		}
	}

	for _, res := range r.Results {
		if !res.Procedure.IsZero() {
			s.BoundEndpoints++
		}
		for _, f := range res.Findings {
			count(f)
		}
	}
	for _, inv := range r.Invocations {
		if inv.Err != nil {
			s.InvocationFailures++
			s.Errors++
			s.ByKind[KindOf(inv.Err).String()]++
		}
		for _, f := range inv.Warnings {
			count(f)
		}
	}
	return s
}

// Failed reports whether the run has any error-severity outcome.
func (s Summary) Failed() bool {
	return s.Errors > 0
}
