package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// queryLimit parses ?limit=, logging and ignoring malformed values.
func queryLimit(r *http.Request) int {
	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if limitStr != "" && err != nil {
		hlog.FromRequest(r).Warn().Str("limit", limitStr).Msg("invalid limit, using default")
	}
	return limit
}

// runFor resolves ?run= (default: newest run) and writes the error response
// itself when it fails.
func (a *App) runFor(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID, err := a.db.ResolveRun(r.URL.Query().Get("run"))
	if err != nil {
		a.writeError(w, r, err)
		return "", false
	}
	return runID, true
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("query failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (a *App) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.db.Runs(queryLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, runs)
}

func (a *App) handleSummary(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runFor(w, r)
	if !ok {
		return
	}
	s, err := a.db.Summary(runID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, s)
}

func (a *App) handleResults(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runFor(w, r)
	if !ok {
		return
	}
	errorsOnly := r.URL.Query().Get("errors") == "true"
	results, err := a.db.Results(runID, errorsOnly, queryLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, results)
}

func (a *App) handleFindings(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runFor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	severity := q.Get("severity")
	switch severity {
	case "", "error", "warning", "info":
	default:
		http.Error(w, "severity must be error, warning or info", http.StatusBadRequest)
		return
	}
	findings, err := a.db.Findings(runID, severity, q.Get("kind"), queryLimit(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, findings)
}

func (a *App) handleProcedure(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runFor(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, "missing procedure name", http.StatusBadRequest)
		return
	}
	p, err := a.db.Procedure(runID, name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, p)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
