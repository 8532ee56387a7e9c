package main

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"maps"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Fixture programs share one file set and a source importer, so standard
// library packages are type-checked once per test binary.
var (
	fixtureMu       sync.Mutex
	fixtureFset     = token.NewFileSet()
	fixtureImporter = importer.ForCompiler(fixtureFset, "source", nil)
)

// buildProgram type-checks files as the single package path and builds its
// SSA form, the way LoadProgram would for a real module.
func buildProgram(t *testing.T, path string, files map[string]string) *Program {
	t.Helper()
	fixtureMu.Lock()
	defer fixtureMu.Unlock()

	names := slices.Sorted(maps.Keys(files))
	syntax := make([]*ast.File, 0, len(names))
	for _, name := range names {
		f, err := parser.ParseFile(fixtureFset, name, files[name], parser.ParseComments)
		require.NoError(t, err)
		syntax = append(syntax, f)
	}

	tc := &types.Config{Importer: fixtureImporter}
	ssaPkg, info, err := ssautil.BuildPackage(tc, fixtureFset, types.NewPackage(path, ""), syntax, ssa.InstantiateGenerics)
	require.NoError(t, err)

	return &Program{
		Fset: fixtureFset,
		SSA:  ssaPkg.Prog,
		Packages: []*Package{{
			Path:   path,
			Types:  ssaPkg.Pkg,
			Info:   info,
			Syntax: syntax,
			Files:  names,
			SSA:    ssaPkg,
		}},
	}
}

// methodFn returns the SSA function of typeName.method in prog's package.
func methodFn(t *testing.T, prog *Program, typeName, method string) *ssa.Function {
	t.Helper()
	pkg := prog.Packages[0].Types
	obj, ok := pkg.Scope().Lookup(typeName).(*types.TypeName)
	require.True(t, ok, "type %s", typeName)
	m, _, _ := types.LookupFieldOrMethod(types.NewPointer(obj.Type()), true, pkg, method)
	fn, ok := m.(*types.Func)
	require.True(t, ok, "method %s.%s", typeName, method)
	return prog.methodFunc(fn)
}

const shopSource = `package shop

import (
	"context"
	"net/http"
	"time"
)

type Order struct{ ID int }

// Auditor records changes.
type Auditor interface {
	Audit(msg string) error
}

// OrderManager is the business layer behind OrdersController.
type OrderManager interface {
	Auditor

	//sprocheck:proc [sales].[usp_Order_Fetch]
	FetchOrder(ctx context.Context, orderID int) (*Order, error)

	GetOrderById(id int) (*Order, error)
}

type Logger interface{ Log(string) }

type Controller struct{}

// OrdersController serves orders.
//
//sprocheck:route api/v1/orders
type OrdersController struct {
	Controller
	log     Logger
	manager OrderManager
}

func NewOrdersController(m OrderManager) *OrdersController {
	return &OrdersController{manager: m}
}

func NewOrdersControllerWithLogger(l Logger, orderManager OrderManager) *OrdersController {
	return &OrdersController{log: l, manager: orderManager}
}

// GetOrderById returns one order.
func (c *OrdersController) GetOrderById(ctx context.Context, id int) (*Order, error) {
	return c.manager.GetOrderById(id)
}

//sprocheck:post create
//sprocheck:default note=none
func (c *OrdersController) Submit(w http.ResponseWriter, r *http.Request, order Order, note *string) {
	_ = c.manager.Audit("submit")
}

//sprocheck:route /health
func (c *OrdersController) GetHealth() {}

func (c *OrdersController) Getaway() {}

func (c *OrdersController) get2() {}

func (c *OrdersController) Delete2(since time.Time) {}

//sprocheck:bogus
func (c *OrdersController) PatchNote(n string) {}

// GetFetched calls the collaborator twice through the same field.
func (c *OrdersController) GetFetched(ctx context.Context, id int) (*Order, error) {
	c.log.Log("fetch")
	o, err := c.manager.FetchOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	_, _ = c.manager.GetOrderById(id)
	return o, nil
}

// GetLogged only talks to the logger.
func (c *OrdersController) GetLogged() {
	c.log.Log("hello")
}

// GetDeferred calls through a closure.
func (c *OrdersController) GetDeferred(id int) {
	func() {
		_, _ = c.manager.GetOrderById(id)
	}()
}

// GetSelf calls another controller method on its own receiver.
func (c *OrdersController) GetSelf() {
	c.get2()
}

func (c *OrdersController) mgr() OrderManager { return c.manager }

// GetIndirect reaches the collaborator through a helper.
func (c *OrdersController) GetIndirect(id int) {
	_, _ = c.mgr().GetOrderById(id)
}

type BaseController struct{}

type Reports struct{ BaseController }

func (Reports) GetDaily(day time.Time) {}

type Helper struct{}

func (Helper) GetThing() {}

type orderStore struct{}

func (s *orderStore) Audit(msg string) error                                    { return nil }
func (s *orderStore) FetchOrder(ctx context.Context, orderID int) (*Order, error) { return &Order{ID: orderID}, nil }
func (s *orderStore) GetOrderById(id int) (*Order, error)                       { return &Order{ID: id}, nil }

func wire() *OrdersController {
	return NewOrdersController(&orderStore{})
}
`

func shopProgram(t *testing.T) *Program {
	return buildProgram(t, "example.com/shop", map[string]string{"shop.go": shopSource})
}
