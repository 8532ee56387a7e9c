package main

import (
	"bytes"
	"fmt"
	"go/types"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/tools/imports"
)

// StubImportPath is the import path generated stubs use for NotImplemented.
const StubImportPath = "sprocheck/stub"

var stubCounter atomic.Int64

// StubOptions controls GenerateStub.
type StubOptions struct {
	Package     string // output package name; defaults to the interface's package name
	PackagePath string // output package import path; types from it are left unqualified
	TypeName    string // base type name; a unique numeric suffix is always appended
}

// StubSource is a generated, formatted Go file.
type StubSource struct {
	TypeName string
	Package  string
	Source   []byte
}

// GenerateStub emits a Go file declaring a struct type that implements every
// method of the interface named (embedded interfaces included). Each method
// returns zero values and stub.NotImplemented, or panics with it when the
// method has no error result.
func GenerateStub(named *types.Named, opts StubOptions) (*StubSource, error) {
	iface, ok := named.Underlying().(*types.Interface)
	if !ok {
		return nil, fmt.Errorf("%s is not an interface", named)
	}
	obj := named.Obj()
	if opts.Package == "" {
		opts.Package = obj.Pkg().Name()
		if opts.PackagePath == "" {
			opts.PackagePath = obj.Pkg().Path()
		}
	}
	base := opts.TypeName
	if base == "" {
		base = obj.Name() + "Stub"
	}
	typeName := fmt.Sprintf("%s%d", base, stubCounter.Add(1))

	g := &stubWriter{self: opts.PackagePath, aliases: make(map[string]string), used: map[string]bool{"stub": true}}
	ifaceRef := g.typeString(named)

	var body bytes.Buffer
	fmt.Fprintf(&body, "// %s implements %s. Every method fails with stub.NotImplemented.\n", typeName, ifaceRef)
	fmt.Fprintf(&body, "type %s struct{}\n\n", typeName)
	fmt.Fprintf(&body, "var _ %s = %s{}\n", ifaceRef, typeName)

	for i := 0; i < iface.NumMethods(); i++ {
		m := iface.Method(i)
		body.WriteString("\n")
		g.writeMethod(&body, typeName, m.Name(), m.Type().(*types.Signature))
	}

	var src bytes.Buffer
	fmt.Fprintf(&src, "// Code generated by sprocheck stub. DO NOT EDIT.\n\npackage %s\n\n", opts.Package)
	src.WriteString("import (\n")
	fmt.Fprintf(&src, "\t%q\n", StubImportPath)
	for _, path := range slices.Sorted(maps.Keys(g.aliases)) {
		alias := g.aliases[path]
		if alias == importName(path) {
			fmt.Fprintf(&src, "\t%q\n", path)
		} else {
			fmt.Fprintf(&src, "\t%s %q\n", alias, path)
		}
	}
	src.WriteString(")\n\n")
	src.Write(body.Bytes())

	formatted, err := imports.Process(strings.ToLower(typeName)+".go", src.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("format stub %s: %w", typeName, err)
	}
	return &StubSource{TypeName: typeName, Package: opts.Package, Source: formatted}, nil
}

type stubWriter struct {
	self    string            // output package path
	aliases map[string]string // import path -> local name
	used    map[string]bool   // local names taken
}

// qualifier assigns each imported package a local name, aliasing on clashes.
func (g *stubWriter) qualifier(p *types.Package) string {
	if p.Path() == g.self {
		return ""
	}
	if alias, ok := g.aliases[p.Path()]; ok {
		return alias
	}
	name := p.Name()
	alias := name
	for n := 2; g.used[alias]; n++ {
		alias = fmt.Sprintf("%s%d", name, n)
	}
	g.used[alias] = true
	g.aliases[p.Path()] = alias
	return alias
}

func (g *stubWriter) typeString(t types.Type) string {
	return types.TypeString(t, g.qualifier)
}

func (g *stubWriter) writeMethod(buf *bytes.Buffer, typeName, method string, sig *types.Signature) {
	params := make([]string, sig.Params().Len())
	for i := range params {
		t := sig.Params().At(i).Type()
		if sig.Variadic() && i == len(params)-1 {
			params[i] = fmt.Sprintf("p%d ...%s", i, g.typeString(t.(*types.Slice).Elem()))
			continue
		}
		params[i] = fmt.Sprintf("p%d %s", i, g.typeString(t))
	}

	n := sig.Results().Len()
	hasErr := n > 0 && types.Identical(sig.Results().At(n-1).Type(), types.Universe.Lookup("error").Type())
	results := make([]string, n)
	for i := range results {
		name := fmt.Sprintf("r%d", i)
		if hasErr && i == n-1 {
			name = "err"
		}
		results[i] = name + " " + g.typeString(sig.Results().At(i).Type())
	}

	fmt.Fprintf(buf, "func (%s) %s(%s)", typeName, method, strings.Join(params, ", "))
	if n > 0 {
		fmt.Fprintf(buf, " (%s)", strings.Join(results, ", "))
	}
	buf.WriteString(" {\n")
	call := fmt.Sprintf("stub.NotImplemented(%q, %q)", typeName, method)
	if hasErr {
		fmt.Fprintf(buf, "\terr = %s\n\treturn\n", call)
	} else {
		fmt.Fprintf(buf, "\tpanic(%s)\n", call)
	}
	buf.WriteString("}\n")
}

// importName is the default local name of an import path.
func importName(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}
