package main

import (
	"go/token"
	"go/types"
	"slices"
	"strings"

	"golang.org/x/tools/go/ssa"
)

// CallResolver finds the collaborator methods an endpoint method calls.
// Results are sorted and de-duplicated method names; never nil.
type CallResolver interface {
	FindCollaboratorCalls(fn *ssa.Function) []string
}

// ScanResolver is a heuristic scan of a method's SSA instructions. A call
// counts when the nearest preceding field load reads a field whose name
// contains the collaborator token and the call's receiver is that load.
//
// Known misses: receivers kept in locals assigned in another block, merged
// through phi nodes, or returned from helper calls.
type ScanResolver struct {
	token string // lower-case
}

// NewScanResolver returns a resolver matching fields whose names contain token.
func NewScanResolver(token string) *ScanResolver {
	return &ScanResolver{token: strings.ToLower(token)}
}

func (r *ScanResolver) matchesField(name string) bool {
	return name != "" && strings.Contains(strings.ToLower(name), r.token)
}

// FindCollaboratorCalls scans fn and the closures it declares.
func (r *ScanResolver) FindCollaboratorCalls(fn *ssa.Function) []string {
	if fn == nil || len(fn.Blocks) == 0 {
		return []string{}
	}
	var recv ssa.Value
	if fn.Signature.Recv() != nil && len(fn.Params) > 0 {
		recv = fn.Params[0]
	}

	seen := make(map[string]bool)
	r.scan(fn, recv, seen)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *ScanResolver) scan(fn *ssa.Function, recv ssa.Value, seen map[string]bool) {
	instrs := linearize(fn)
	for i, instr := range instrs {
		call, ok := instr.(ssa.CallInstruction)
		if !ok {
			continue
		}
		target, method := callReceiver(call.Common())
		if target == nil {
			continue
		}

		load, field := nearestFieldLoad(instrs[:i])
		switch {
		case load != nil && r.matchesField(field) && derivesFrom(target, load):
			seen[method] = true
		case recv != nil && derivesFrom(target, recv) && !loadsBefore(instr):
			// Calling through the receiver itself, nothing loaded in between.
			seen[method] = true
		}
	}
	for _, anon := range fn.AnonFuncs {
		// Closures see the receiver only as a free variable; no convention.
		r.scan(anon, nil, seen)
	}
}

// linearize flattens fn's blocks into one instruction list in block order.
func linearize(fn *ssa.Function) []ssa.Instruction {
	var n int
	for _, b := range fn.Blocks {
		n += len(b.Instrs)
	}
	out := make([]ssa.Instruction, 0, n)
	for _, b := range fn.Blocks {
		out = append(out, b.Instrs...)
	}
	return out
}

// loadsBefore reports whether a field load precedes instr in its own block.
func loadsBefore(instr ssa.Instruction) bool {
	instrs := instr.Block().Instrs
	for j, x := range instrs {
		if x == instr {
			load, _ := nearestFieldLoad(instrs[:j])
			return load != nil
		}
	}
	return false
}

// callReceiver returns the receiver value and method name of a method call,
// or nil for calls of plain functions and builtins.
func callReceiver(c *ssa.CallCommon) (ssa.Value, string) {
	if c.IsInvoke() {
		return c.Value, c.Method.Name()
	}
	callee := c.StaticCallee()
	if callee == nil || callee.Signature.Recv() == nil || len(c.Args) == 0 {
		return nil, ""
	}
	return c.Args[0], callee.Name()
}

// nearestFieldLoad walks backwards to the closest field load.
func nearestFieldLoad(instrs []ssa.Instruction) (ssa.Value, string) {
	for j := len(instrs) - 1; j >= 0; j-- {
		switch v := instrs[j].(type) {
		case *ssa.FieldAddr:
			return v, fieldName(v.X.Type(), v.Field)
		case *ssa.Field:
			return v, fieldName(v.X.Type(), v.Field)
		}
	}
	return nil, ""
}

// derivesFrom reports whether v is base, or a pointer load of base.
func derivesFrom(v, base ssa.Value) bool {
	if v == base {
		return true
	}
	if u, ok := v.(*ssa.UnOp); ok && u.Op == token.MUL {
		return u.X == base
	}
	return false
}

func fieldName(t types.Type, index int) string {
	t = t.Underlying()
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem().Underlying()
	}
	st, ok := t.(*types.Struct)
	if !ok || index >= st.NumFields() {
		return ""
	}
	return st.Field(index).Name()
}
