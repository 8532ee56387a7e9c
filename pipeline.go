package main

import (
	"context"
	"database/sql"
	"fmt"
	"go/types"
	"time"

	"github.com/google/uuid"
)

// Checker runs the whole analysis against one catalog database: extract
// endpoints, resolve collaborator calls, introspect the bound procedures,
// correlate and optionally invoke them.
type Checker struct {
	cfg    *Config
	db     *sql.DB
	mapper *TypeMapper
	log    *Progress
	now    func() time.Time
}

// NewChecker returns a Checker reading the catalog through db.
func NewChecker(cfg *Config, db *sql.DB, log *Progress) *Checker {
	if log == nil {
		log = NopProgress()
	}
	return &Checker{cfg: cfg, db: db, mapper: NewTypeMapper(), log: log, now: time.Now}
}

// Run loads the configured modules and checks them.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	ms, err := c.cfg.ModuleSet()
	if err != nil {
		return nil, err
	}
	prog, err := LoadProgram(ms, LoadOptions{Patterns: c.cfg.Patterns, SkipTests: c.cfg.SkipTests}, c.log)
	if err != nil {
		return nil, err
	}
	return c.Check(ctx, prog)
}

// Check runs every phase after loading over an already built program.
func (c *Checker) Check(ctx context.Context, prog *Program) (*Report, error) {
	r := &Report{RunID: uuid.NewString(), StartedAt: c.now().UTC()}
	if prog.Modules != nil {
		r.Revision = ReadGitRevision(prog.Modules.PrimaryDir(), c.log)
	}

	endpoints, calls := Analyze(prog, c.cfg.ExtractOptions(), c.cfg.Precise, c.log)
	r.Endpoints = endpoints

	procs := ProceduresOf(endpoints, calls)
	c.log.Log("Introspecting %d procedures...", len(procs))
	contracts := NewIntrospector(c.db, c.log).FetchAll(ctx, procs)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	r.Contracts = contracts.Contracts()

	r.Results = NewCorrelator(c.mapper, c.log).Correlate(endpoints, calls, contracts)

	if c.cfg.Invoke.Enabled && len(r.Contracts) > 0 {
		inv := NewInvoker(c.db, c.mapper, c.cfg.InvokerOptions(), c.log)
		r.Invocations = inv.InvokeAll(ctx, r.Contracts)
	}

	r.Summary = ComputeSummary(r)
	c.log.Logger().Info().
		Str("run_id", r.RunID).
		Int("endpoints", r.Summary.Endpoints).
		Int("bound", r.Summary.BoundEndpoints).
		Int("errors", r.Summary.Errors).
		Int("warnings", r.Summary.Warnings).
		Msg("check complete")
	return r, nil
}

// Analyze extracts endpoints and resolves the collaborator calls of each
// one. calls is parallel to the returned endpoints. With precise set the
// scan is widened by the VTA call graph.
func Analyze(prog *Program, opts ExtractOptions, precise bool, log *Progress) ([]*Endpoint, [][]string) {
	if log == nil {
		log = NopProgress()
	}
	endpoints := ExtractEndpoints(prog, opts, log)

	scan := NewScanResolver(opts.withDefaults().CollaboratorToken)
	var resolver CallResolver = scan
	if precise {
		resolver = NewGraphResolver(prog, scan, collaboratorInterfaces(endpoints), log)
	}

	calls := make([][]string, len(endpoints))
	for i, ep := range endpoints {
		if ep.method == nil {
			calls[i] = []string{}
			continue
		}
		calls[i] = resolver.FindCollaboratorCalls(prog.methodFunc(ep.method))
	}
	return endpoints, calls
}

// collaboratorInterfaces returns the distinct collaborator interfaces of
// endpoints in first-seen order.
func collaboratorInterfaces(endpoints []*Endpoint) []*types.Interface {
	var out []*types.Interface
	seen := make(map[*types.Interface]bool)
	for _, ep := range endpoints {
		if ep.Collaborator == nil || ep.Collaborator.iface == nil || seen[ep.Collaborator.iface] {
			continue
		}
		seen[ep.Collaborator.iface] = true
		out = append(out, ep.Collaborator.iface)
	}
	return out
}
