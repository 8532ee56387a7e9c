package main

import (
	"go/types"
	"slices"
)

// FindImplementations returns the concrete named types of the loaded program
// that implement iface, by value or by pointer. Pointer implementations are
// reported as "*pkg.T". Results follow package order, then declaration order.
func FindImplementations(prog *Program, iface *types.Interface) []string {
	if iface == nil || iface.NumMethods() == 0 {
		return nil // everything implements the empty interface
	}

	var out []string
	for _, pkg := range prog.Packages {
		if pkg.Types == nil {
			continue
		}
		var concretes []*types.TypeName
		scope := pkg.Types.Scope()
		for _, name := range scope.Names() {
			obj, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || obj.IsAlias() || types.IsInterface(obj.Type()) {
				continue
			}
			if named, ok := obj.Type().(*types.Named); ok && named.TypeParams().Len() > 0 {
				continue // uninstantiated generic types implement nothing
			}
			concretes = append(concretes, obj)
		}
		slices.SortFunc(concretes, func(a, b *types.TypeName) int { return int(a.Pos() - b.Pos()) })

		for _, obj := range concretes {
			concreteType := obj.Type()
			name := obj.Pkg().Path() + "." + obj.Name()
			switch {
			case types.Implements(concreteType, iface):
				out = append(out, name)
			case types.Implements(types.NewPointer(concreteType), iface):
				out = append(out, "*"+name)
			}
		}
	}
	return out
}

// implementsCollaborator reports whether a receiver type, or the pointer to
// it, satisfies iface.
func implementsCollaborator(recv types.Type, iface *types.Interface) bool {
	if iface == nil || iface.NumMethods() == 0 {
		return false
	}
	if types.Implements(recv, iface) {
		return true
	}
	if _, isPtr := recv.(*types.Pointer); !isPtr && !types.IsInterface(recv) {
		return types.Implements(types.NewPointer(recv), iface)
	}
	return false
}

// embedsAny reports whether the struct underlying named embeds, by value or
// by pointer, a named type whose name is in bases.
func embedsAny(named *types.Named, bases []string) bool {
	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		return false
	}
	for field := range st.Fields() {
		if !field.Embedded() {
			continue
		}
		embeddedType := field.Type()
		if ptr, ok := embeddedType.(*types.Pointer); ok {
			embeddedType = ptr.Elem()
		}
		embedded, ok := types.Unalias(embeddedType).(*types.Named)
		if !ok {
			continue
		}
		if slices.Contains(bases, embedded.Obj().Name()) {
			return true
		}
	}
	return false
}

// interfaceOf returns the interface underlying t, or nil.
func interfaceOf(t types.Type) *types.Interface {
	iface, _ := t.Underlying().(*types.Interface)
	return iface
}
