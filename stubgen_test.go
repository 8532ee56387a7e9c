package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) { return f(path) }

// typeCheckStub compiles src against the given packages plus a minimal
// stand-in for the stub runtime package.
func typeCheckStub(t *testing.T, src []byte, deps ...*types.Package) {
	t.Helper()
	fset := token.NewFileSet()

	stubFile, err := parser.ParseFile(fset, "stub.go", `package stub
func NotImplemented(typeName, method string) error { return nil }
`, 0)
	require.NoError(t, err)
	stubPkg, err := (&types.Config{}).Check(StubImportPath, fset, []*ast.File{stubFile}, nil)
	require.NoError(t, err)

	byPath := map[string]*types.Package{StubImportPath: stubPkg}
	for _, d := range deps {
		byPath[d.Path()] = d
	}
	imp := importerFunc(func(path string) (*types.Package, error) {
		if p, ok := byPath[path]; ok {
			return p, nil
		}
		fixtureMu.Lock()
		defer fixtureMu.Unlock()
		return fixtureImporter.Import(path)
	})

	f, err := parser.ParseFile(fset, "generated.go", src, parser.ParseComments)
	require.NoError(t, err, "%s", src)
	_, err = (&types.Config{Importer: imp}).Check("example.com/generated", fset, []*ast.File{f}, nil)
	require.NoError(t, err, "%s", src)
}

func lookupNamed(t *testing.T, pkg *types.Package, name string) *types.Named {
	t.Helper()
	obj := pkg.Scope().Lookup(name)
	require.NotNil(t, obj, name)
	return obj.Type().(*types.Named)
}

func TestGenerateStub_CompilesAgainstInterface(t *testing.T) {
	prog := shopProgram(t)
	shop := prog.Packages[0].Types

	out, err := GenerateStub(lookupNamed(t, shop, "OrderManager"), StubOptions{
		Package:     "shopfake",
		PackagePath: "example.com/shopfake",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^OrderManagerStub\d+$`, out.TypeName)
	assert.Equal(t, "shopfake", out.Package)

	src := string(out.Source)
	assert.Contains(t, src, "// Code generated by sprocheck stub. DO NOT EDIT.")
	assert.Contains(t, src, `"example.com/shop"`)
	assert.Contains(t, src, "var _ shop.OrderManager = "+out.TypeName+"{}")
	assert.Contains(t, src, "FetchOrder(p0 context.Context, p1 int) (r0 *shop.Order, err error)")
	assert.Contains(t, src, "Audit(p0 string) (err error)", "embedded interface methods are included")
	assert.Contains(t, src, `err = stub.NotImplemented("`+out.TypeName+`", "GetOrderById")`)

	typeCheckStub(t, out.Source, shop)
}

func TestGenerateStub_PanicsWithoutErrorResult(t *testing.T) {
	prog := shopProgram(t)
	shop := prog.Packages[0].Types

	out, err := GenerateStub(lookupNamed(t, shop, "Logger"), StubOptions{TypeName: "FakeLogger"})
	require.NoError(t, err)
	assert.Regexp(t, `^FakeLogger\d+$`, out.TypeName)
	assert.Equal(t, "shop", out.Package, "defaults to the interface's package")

	src := string(out.Source)
	assert.Contains(t, src, "func ("+out.TypeName+") Log(p0 string) {")
	assert.Contains(t, src, "panic(stub.NotImplemented(")
	assert.NotContains(t, src, `"example.com/shop"`, "same-package types stay unqualified")
}

func TestGenerateStub_AliasesClashingImports(t *testing.T) {
	prog := buildProgram(t, "example.com/stub", map[string]string{"store.go": `package stub

type Item struct{ Key string }

type Store interface {
	Put(items ...Item) error
	Len() int
}
`})
	pkg := prog.Packages[0].Types

	out, err := GenerateStub(lookupNamed(t, pkg, "Store"), StubOptions{Package: "other", PackagePath: "example.com/other"})
	require.NoError(t, err)

	src := string(out.Source)
	assert.Contains(t, src, `stub2 "example.com/stub"`)
	assert.Contains(t, src, "Put(p0 ...stub2.Item) (err error)")
	assert.Contains(t, src, "Len() (r0 int)")

	typeCheckStub(t, out.Source, pkg)
}

func TestGenerateStub_RejectsNonInterface(t *testing.T) {
	prog := shopProgram(t)
	_, err := GenerateStub(lookupNamed(t, prog.Packages[0].Types, "Order"), StubOptions{})
	assert.ErrorContains(t, err, "not an interface")
}

func TestStubNamesAreUnique(t *testing.T) {
	prog := shopProgram(t)
	named := lookupNamed(t, prog.Packages[0].Types, "Auditor")
	a, err := GenerateStub(named, StubOptions{})
	require.NoError(t, err)
	b, err := GenerateStub(named, StubOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a.TypeName, b.TypeName)
}
