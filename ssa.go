package main

import (
	"go/types"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// BuildSSA constructs the SSA representation from loaded packages. The
// returned slice is parallel to pkgs; entries are nil for packages that
// failed to type-check.
func BuildSSA(pkgs []*packages.Package, prog *Progress) (*ssa.Program, []*ssa.Package) {
	prog.Log("Building SSA...")

	ssaProg, ssaPkgs := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	var ssaFailed int
	for i, sp := range ssaPkgs {
		if sp == nil && i < len(pkgs) {
			prog.Verbose("SSA build skipped package: %s", pkgs[i].PkgPath)
			ssaFailed++
		}
	}
	if ssaFailed > 0 {
		prog.Log("Warning: %d packages failed SSA construction", ssaFailed)
	}
	ssaProg.Build()

	var count int
	for _, sp := range ssaPkgs {
		if sp == nil {
			continue
		}
		for _, m := range sp.Members {
			if _, ok := m.(*ssa.Function); ok {
				count++
			}
		}
	}
	prog.Log("Built SSA for %d packages (%d package-level functions)", len(ssaPkgs)-ssaFailed, count)
	return ssaProg, ssaPkgs
}

// methodFunc returns the SSA function for a declared method, or nil when the
// program has no body for it (type errors, external package).
func (p *Program) methodFunc(m *types.Func) *ssa.Function {
	if p.SSA == nil || m == nil {
		return nil
	}
	return p.SSA.FuncValue(m)
}
