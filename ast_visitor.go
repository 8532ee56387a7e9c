package main

import (
	"go/ast"
	"go/token"
	"go/types"
)

// DocLookup maps declaration positions (the position of the declared name,
// which is what types.Object.Pos reports) to their doc comments.
type DocLookup struct {
	m map[token.Pos]*ast.CommentGroup
}

func NewDocLookup() *DocLookup {
	return &DocLookup{m: make(map[token.Pos]*ast.CommentGroup)}
}

// Set records doc for the name at pos. First-wins.
func (dl *DocLookup) Set(pos token.Pos, doc *ast.CommentGroup) {
	if doc == nil || !pos.IsValid() {
		return
	}
	if _, exists := dl.m[pos]; !exists {
		dl.m[pos] = doc
	}
}

// Get returns the doc comment of obj, or nil.
func (dl *DocLookup) Get(obj types.Object) *ast.CommentGroup {
	if obj == nil {
		return nil
	}
	return dl.m[obj.Pos()]
}

// DeclIndex is the source-ordered view of one package's declarations.
// types.Scope sorts names alphabetically; discovery order needs file order.
type DeclIndex struct {
	Docs  *DocLookup
	Types []*ast.TypeSpec // every type declaration, in source order
	Funcs []*ast.FuncDecl // package-level functions (no receiver), in source order
}

// WalkAST indexes the declarations and doc comments of pkg. Files that
// should be skipped (tests when requested, generated protobuf) are ignored.
func WalkAST(pkg *Package, fset *token.FileSet, skipTests bool) *DeclIndex {
	idx := &DeclIndex{Docs: NewDocLookup()}

	for _, file := range pkg.Syntax {
		if shouldSkipFile(fset.Position(file.Pos()).Filename, skipTests) {
			continue
		}
		ast.Inspect(file, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.GenDecl:
				idx.visitGenDecl(n)
				return false
			case *ast.FuncDecl:
				idx.Docs.Set(n.Name.Pos(), n.Doc)
				if n.Recv == nil {
					idx.Funcs = append(idx.Funcs, n)
				}
				return false
			}
			return true
		})
	}
	return idx
}

func (idx *DeclIndex) visitGenDecl(n *ast.GenDecl) {
	if n.Tok != token.TYPE {
		return
	}
	for _, spec := range n.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		// Doc from TypeSpec first, fall back to the GenDecl doc for the
		// common unparenthesised "type X struct" form.
		doc := ts.Doc
		if doc == nil && !n.Lparen.IsValid() {
			doc = n.Doc
		}
		idx.Docs.Set(ts.Name.Pos(), doc)
		idx.Types = append(idx.Types, ts)

		if it, ok := ts.Type.(*ast.InterfaceType); ok && it.Methods != nil {
			for _, field := range it.Methods.List {
				for _, name := range field.Names {
					idx.Docs.Set(name.Pos(), field.Doc)
				}
			}
		}
	}
}

// isNamedType reports whether t (after one pointer indirection when
// pointer is true) is the named type pkg.name.
func isNamedType(t types.Type, pkg, name string, pointer bool) bool {
	if pointer {
		ptr, ok := t.(*types.Pointer)
		if !ok {
			return false
		}
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj != nil && obj.Pkg() != nil && obj.Pkg().Path() == pkg && obj.Name() == name
}

// isContextType returns true if the type is context.Context.
func isContextType(t types.Type) bool {
	return isNamedType(t, "context", "Context", false)
}
