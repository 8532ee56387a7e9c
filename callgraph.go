package main

import (
	"go/token"
	"go/types"
	"slices"

	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/callgraph/vta"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// GraphResolver adds call-graph precision to the instruction scan: every
// callee reachable in one step through a VTA call graph is reported too when
// its receiver implements a collaborator interface and the call site's
// receiver was loaded from a collaborator field, directly or through a
// method returning one. Its results are a superset of the scan's.
type GraphResolver struct {
	scan   *ScanResolver
	graph  *callgraph.Graph
	ifaces []*types.Interface
}

// NewGraphResolver builds the VTA call graph of the whole program once,
// seeded with a CHA graph.
func NewGraphResolver(prog *Program, scan *ScanResolver, ifaces []*types.Interface, log *Progress) *GraphResolver {
	log.Log("Building VTA call graph...")

	funcs := ssautil.AllFunctions(prog.SSA)
	cg := vta.CallGraph(funcs, cha.CallGraph(prog.SSA))
	cg.DeleteSyntheticNodes()

	var edges int
	_ = callgraph.GraphVisitEdges(cg, func(*callgraph.Edge) error {
		edges++
		return nil
	})
	log.Log("VTA: %d functions, %d edges, %d collaborator interfaces", len(cg.Nodes), edges, len(ifaces))

	return &GraphResolver{scan: scan, graph: cg, ifaces: ifaces}
}

// FindCollaboratorCalls unions the scan result with the graph's edges out of
// fn and its closures.
func (r *GraphResolver) FindCollaboratorCalls(fn *ssa.Function) []string {
	names := r.scan.FindCollaboratorCalls(fn)
	if fn == nil {
		return names
	}

	var visit func(f *ssa.Function)
	visit = func(f *ssa.Function) {
		if node := r.graph.Nodes[f]; node != nil {
			for _, edge := range node.Out {
				if edge.Site == nil {
					continue
				}
				recv, _ := callReceiver(edge.Site.Common())
				if recv == nil || !r.loadedFromCollaborator(recv, maxHelperDepth) {
					continue
				}
				if name, ok := r.collaboratorMethod(edge.Callee.Func); ok {
					names = append(names, name)
				}
			}
		}
		for _, anon := range f.AnonFuncs {
			visit(anon)
		}
	}
	visit(fn)

	slices.Sort(names)
	return slices.Compact(names)
}

const maxHelperDepth = 2

// loadedFromCollaborator reports whether v derives from a load of a field
// matching the collaborator token. Results of statically called methods
// count when every return of the method does, up to depth calls deep.
func (r *GraphResolver) loadedFromCollaborator(v ssa.Value, depth int) bool {
	switch x := v.(type) {
	case *ssa.UnOp:
		return x.Op == token.MUL && r.loadedFromCollaborator(x.X, depth)
	case *ssa.FieldAddr:
		return r.scan.matchesField(fieldName(x.X.Type(), x.Field))
	case *ssa.Field:
		return r.scan.matchesField(fieldName(x.X.Type(), x.Field))
	case *ssa.MakeInterface:
		return r.loadedFromCollaborator(x.X, depth)
	case *ssa.ChangeInterface:
		return r.loadedFromCollaborator(x.X, depth)
	case *ssa.Call:
		callee := x.Call.StaticCallee()
		if depth == 0 || callee == nil || callee.Signature.Results().Len() != 1 {
			return false
		}
		var returns int
		for _, b := range callee.Blocks {
			ret, ok := b.Instrs[len(b.Instrs)-1].(*ssa.Return)
			if !ok {
				continue
			}
			if !r.loadedFromCollaborator(ret.Results[0], depth-1) {
				return false
			}
			returns++
		}
		return returns > 0
	}
	return false
}

// collaboratorMethod reports callee's name when callee is a method of a type
// implementing one of the collaborator interfaces and the interface declares
// a method of that name.
func (r *GraphResolver) collaboratorMethod(callee *ssa.Function) (string, bool) {
	if callee == nil {
		return "", false
	}
	recv := callee.Signature.Recv()
	if recv == nil {
		return "", false
	}
	for _, iface := range r.ifaces {
		if !declaresMethod(iface, callee.Name()) {
			continue
		}
		if implementsCollaborator(recv.Type(), iface) {
			return callee.Name(), true
		}
	}
	return "", false
}

func declaresMethod(iface *types.Interface, name string) bool {
	for i := 0; i < iface.NumMethods(); i++ {
		if iface.Method(i).Name() == name {
			return true
		}
	}
	return false
}
