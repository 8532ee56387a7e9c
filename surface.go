package main

import (
	"cmp"
	"fmt"
	"go/types"
	"net/http"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// ExtractOptions controls how controllers, endpoints and collaborators are recognised.
type ExtractOptions struct {
	ControllerSuffix  string   // default "Controller"
	BaseControllers   []string // embedded base types that make a struct a controller
	CollaboratorToken string   // default "manager", matched case-insensitively
	Convention        ProcedureConvention
	SkipTests         bool
	Parallelism       int // packages extracted concurrently; <= 1 is sequential
}

// DefaultExtractOptions returns the stock recognition rules.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		ControllerSuffix:  "Controller",
		BaseControllers:   []string{"Controller", "ControllerBase", "BaseController"},
		CollaboratorToken: "manager",
		Convention:        DefaultConvention,
		SkipTests:         true,
	}
}

var verbPrefixes = []struct {
	prefix string
	verb   string
}{
	{"Get", http.MethodGet},
	{"Post", http.MethodPost},
	{"Put", http.MethodPut},
	{"Delete", http.MethodDelete},
	{"Patch", http.MethodPatch},
}

type extractor struct {
	prog *Program
	opts ExtractOptions
	log  *Progress
	docs *DocLookup

	mu    sync.Mutex
	impls map[*types.Interface][]string
}

// ExtractEndpoints returns every endpoint of every controller in prog,
// controllers in package and source order, endpoints in declaration order.
// Malformed declarations are logged and skipped; they never fail extraction.
func ExtractEndpoints(prog *Program, opts ExtractOptions, log *Progress) []*Endpoint {
	if log == nil {
		log = NopProgress()
	}
	opts = opts.withDefaults()
	log.Log("Extracting endpoints from %d packages...", len(prog.Packages))

	// Index every package first: collaborator interfaces may be declared in
	// a package other than the controller's, and their markers must be found.
	indexes := make([]*DeclIndex, len(prog.Packages))
	for i, pkg := range prog.Packages {
		indexes[i] = WalkAST(pkg, prog.Fset, opts.SkipTests)
	}
	docs := NewDocLookup()
	for _, idx := range indexes {
		for pos, doc := range idx.Docs.m {
			docs.Set(pos, doc)
		}
	}

	e := &extractor{
		prog:  prog,
		opts:  opts,
		log:   log,
		docs:  docs,
		impls: make(map[*types.Interface][]string),
	}

	perPkg := make([][]*Endpoint, len(prog.Packages))
	var g errgroup.Group
	g.SetLimit(max(opts.Parallelism, 1))
	for i, pkg := range prog.Packages {
		g.Go(func() error {
			perPkg[i] = e.extractPackage(pkg, indexes[i])
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	var out []*Endpoint
	for _, eps := range perPkg {
		out = append(out, eps...)
	}
	log.Log("Extracted %d endpoints", len(out))
	return out
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	d := DefaultExtractOptions()
	if o.ControllerSuffix == "" {
		o.ControllerSuffix = d.ControllerSuffix
	}
	if o.BaseControllers == nil {
		o.BaseControllers = d.BaseControllers
	}
	if o.CollaboratorToken == "" {
		o.CollaboratorToken = d.CollaboratorToken
	}
	o.CollaboratorToken = strings.ToLower(o.CollaboratorToken)
	return o
}

func (e *extractor) extractPackage(pkg *Package, idx *DeclIndex) []*Endpoint {
	if pkg.Info == nil {
		return nil
	}
	var out []*Endpoint
	for _, ts := range idx.Types {
		obj, ok := pkg.Info.Defs[ts.Name].(*types.TypeName)
		if !ok || obj.IsAlias() {
			continue
		}
		named, ok := obj.Type().(*types.Named)
		if !ok {
			continue
		}
		if _, ok := named.Underlying().(*types.Struct); !ok {
			continue
		}
		if !e.isController(named) {
			continue
		}
		out = append(out, e.extractController(pkg, idx, named)...)
	}
	return out
}

// isController: the name carries the suffix, or the struct embeds a known
// base. The bases themselves are never controllers.
func (e *extractor) isController(named *types.Named) bool {
	name := named.Obj().Name()
	if slices.Contains(e.opts.BaseControllers, name) {
		return false
	}
	if strings.HasSuffix(name, e.opts.ControllerSuffix) && name != e.opts.ControllerSuffix {
		return true
	}
	return embedsAny(named, e.opts.BaseControllers)
}

func (e *extractor) warn(pos, format string, args ...any) {
	e.log.Warn("%s: %s", pos, fmt.Sprintf(format, args...))
}

func (e *extractor) markersOf(obj types.Object) []Marker {
	markers, problems := ParseMarkers(e.docs.Get(obj))
	for _, p := range problems {
		e.warn(e.prog.Position(obj.Pos()), "%s: %s", obj.Name(), p)
	}
	return markers
}

func (e *extractor) extractController(pkg *Package, idx *DeclIndex, named *types.Named) []*Endpoint {
	obj := named.Obj()
	ctrlName := obj.Name()

	ctrlTemplate := "api/" + strings.TrimSuffix(ctrlName, e.opts.ControllerSuffix)
	if rm, ok := findRouteMarker(e.markersOf(obj)); ok {
		ctrlTemplate = rm.Template
	}

	collab := e.findCollaborator(pkg, idx, named)

	methods := make([]*types.Func, 0, named.NumMethods())
	for i := 0; i < named.NumMethods(); i++ {
		methods = append(methods, named.Method(i))
	}
	slices.SortFunc(methods, func(a, b *types.Func) int { return cmp.Compare(a.Pos(), b.Pos()) })

	var out []*Endpoint
	for _, m := range methods {
		if !m.Exported() {
			continue
		}
		markers := e.markersOf(m)
		verb, methodTemplate, ok := endpointVerb(m.Name(), markers)
		if !ok {
			continue
		}
		if methodTemplate == "" {
			if rm, ok := findRouteMarker(markers); ok {
				methodTemplate = rm.Template
			} else {
				methodTemplate = m.Name()
			}
		}

		pos := e.prog.Position(m.Pos())
		sig := m.Type().(*types.Signature)
		params := e.describeParams(pos, m.Name(), sig, defaultMarkers(markers))
		proc, source := e.bindProcedure(pos, m.Name(), markers)

		out = append(out, &Endpoint{
			Package:         pkg.Path,
			Controller:      ctrlName,
			Method:          m.Name(),
			Verb:            verb,
			Route:           joinRoute(ctrlTemplate, methodTemplate),
			Params:          params,
			Procedure:       proc,
			ProcedureSource: source,
			Collaborator:    collab,
			Markers:         markers,
			Pos:             pos,
			method:          m,
		})
	}
	e.log.Verbose("Controller %s.%s: %d endpoints", pkg.Path, ctrlName, len(out))
	return out
}

// endpointVerb decides whether a method is an endpoint. An explicit verb
// marker wins over the name prefix.
func endpointVerb(name string, markers []Marker) (verb, template string, ok bool) {
	if vm, ok := findVerbMarker(markers); ok {
		return vm.Verb, vm.Template, true
	}
	for _, vp := range verbPrefixes {
		rest, found := strings.CutPrefix(name, vp.prefix)
		if !found {
			continue
		}
		if rest == "" {
			return vp.verb, "", true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			return vp.verb, "", true
		}
	}
	return "", "", false
}

// joinRoute joins the controller and method templates. A method template
// starting with "/" replaces the controller template.
func joinRoute(controller, method string) string {
	if abs, ok := strings.CutPrefix(method, "/"); ok {
		return abs
	}
	controller = strings.Trim(controller, "/")
	if controller == "" {
		return method
	}
	return controller + "/" + method
}

// bindProcedure resolves the explicit binding of a method: a proc marker,
// else the naming convention.
func (e *extractor) bindProcedure(pos, method string, markers []Marker) (QualifiedName, BindingSource) {
	procs := findProcedureMarkers(markers)
	switch {
	case len(procs) > 1:
		e.warn(pos, "%s has %d sprocheck:proc markers; binding left unset", method, len(procs))
		return QualifiedName{}, BindingNone
	case len(procs) == 1:
		qn := ParseQualifiedName(procs[0].Name, e.opts.Convention.Schema)
		if qn.Name == "" {
			e.warn(pos, "%s: cannot parse procedure name %q", method, procs[0].Name)
			return QualifiedName{}, BindingNone
		}
		return qn, BindingMarker
	}
	if qn, ok := e.opts.Convention.Bind(method); ok {
		return qn, BindingConvention
	}
	return QualifiedName{}, BindingNone
}

func (e *extractor) describeParams(pos, method string, sig *types.Signature, defaults map[string]string) []ParameterDescriptor {
	params := make([]ParameterDescriptor, 0, sig.Params().Len())
	used := make(map[string]bool, len(defaults))
	for i := 0; i < sig.Params().Len(); i++ {
		v := sig.Params().At(i)
		t := v.Type()
		if isAmbientParam(t) {
			continue
		}
		name := v.Name()
		if name == "" || name == "_" {
			name = fmt.Sprintf("p%d", i)
		}
		pd := ParameterDescriptor{
			Name:     name,
			Type:     types.TypeString(t, packageNameQualifier),
			Category: goTypeCategory(t),
			Optional: isOptionalType(t),
		}
		if d, ok := defaults[name]; ok {
			pd.Default = &d
			pd.Optional = true
			used[name] = true
		}
		params = append(params, pd)
	}
	for name := range defaults {
		if !used[name] {
			e.warn(pos, "%s: sprocheck:default names unknown parameter %q", method, name)
		}
	}
	return params
}

func packageNameQualifier(p *types.Package) string { return p.Name() }

// isAmbientParam reports parameters supplied by the HTTP stack rather than
// the caller: context.Context, http.ResponseWriter and *http.Request.
func isAmbientParam(t types.Type) bool {
	return isContextType(t) ||
		isNamedType(t, "net/http", "ResponseWriter", false) ||
		isNamedType(t, "net/http", "Request", true)
}

// isOptionalType: pointers and database/sql null wrappers may be omitted.
func isOptionalType(t types.Type) bool {
	if _, ok := types.Unalias(t).(*types.Pointer); ok {
		return true
	}
	named, ok := types.Unalias(t).(*types.Named)
	if !ok || named.Obj().Pkg() == nil {
		return false
	}
	return named.Obj().Pkg().Path() == "database/sql" && strings.HasPrefix(named.Obj().Name(), "Null")
}

// goTypeCategory classifies a Go parameter type for comparison with
// procedure parameter categories. Types with no sensible SQL counterpart
// (interfaces, channels, functions) are Variant and never compared.
func goTypeCategory(t types.Type) TypeCategory {
	t = types.Unalias(t)
	if ptr, ok := t.(*types.Pointer); ok {
		return goTypeCategory(ptr.Elem())
	}
	if named, ok := t.(*types.Named); ok && named.Obj().Pkg() != nil {
		switch named.Obj().Pkg().Path() + "." + named.Obj().Name() {
		case "time.Time", "database/sql.NullTime":
			return CategoryTemporal
		case "github.com/shopspring/decimal.Decimal", "github.com/shopspring/decimal.NullDecimal",
			"math/big.Float", "math/big.Rat", "database/sql.NullFloat64":
			return CategoryNumeric
		case "github.com/google/uuid.UUID", "github.com/google/uuid.NullUUID":
			return CategoryIdentifier
		case "database/sql.NullString":
			return CategoryText
		case "database/sql.NullBool":
			return CategoryBoolean
		case "database/sql.NullInt64", "database/sql.NullInt32", "database/sql.NullInt16", "database/sql.NullByte":
			return CategoryInteger
		case "encoding/json.RawMessage":
			return CategoryStructured
		}
	}

	switch u := t.Underlying().(type) {
	case *types.Basic:
		info := u.Info()
		switch {
		case info&types.IsBoolean != 0:
			return CategoryBoolean
		case info&types.IsInteger != 0:
			return CategoryInteger
		case info&(types.IsFloat|types.IsComplex) != 0:
			return CategoryNumeric
		case info&types.IsString != 0:
			return CategoryText
		}
	case *types.Slice:
		if isByteType(u.Elem()) {
			return CategoryBinary
		}
		return CategoryStructured
	case *types.Array:
		if isByteType(u.Elem()) {
			if u.Len() == 16 {
				return CategoryIdentifier
			}
			return CategoryBinary
		}
		return CategoryStructured
	case *types.Struct, *types.Map:
		return CategoryStructured
	}
	return CategoryVariant
}

func isByteType(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Kind() == types.Byte
}

// findCollaborator locates the constructor of named with the most parameters
// (first in source order on ties) and returns its first interface parameter
// whose name contains the collaborator token.
func (e *extractor) findCollaborator(pkg *Package, idx *DeclIndex, named *types.Named) *CollaboratorDescriptor {
	var ctor *types.Signature
	for _, fd := range idx.Funcs {
		fn, ok := pkg.Info.Defs[fd.Name].(*types.Func)
		if !ok {
			continue
		}
		sig := fn.Type().(*types.Signature)
		if sig.Results().Len() == 0 || !isTypeOrPointer(sig.Results().At(0).Type(), named) {
			continue
		}
		if ctor == nil || sig.Params().Len() > ctor.Params().Len() {
			ctor = sig
		}
	}
	if ctor == nil {
		return nil
	}

	for i := 0; i < ctor.Params().Len(); i++ {
		p := ctor.Params().At(i)
		iface := interfaceOf(p.Type())
		if iface == nil || !strings.Contains(strings.ToLower(p.Name()), e.opts.CollaboratorToken) {
			continue
		}
		return e.describeCollaborator(p, iface)
	}
	return nil
}

func isTypeOrPointer(t types.Type, named *types.Named) bool {
	t = types.Unalias(t)
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	return types.Identical(t, named)
}

func (e *extractor) describeCollaborator(field *types.Var, iface *types.Interface) *CollaboratorDescriptor {
	c := &CollaboratorDescriptor{
		Interface:       types.TypeString(field.Type(), nil),
		Field:           field.Name(),
		Methods:         make([]MethodDescriptor, 0, iface.NumMethods()),
		Implementations: e.implementations(iface),
		iface:           iface,
	}
	// NumMethods covers embedded interfaces, de-duplicated and sorted by name.
	for i := 0; i < iface.NumMethods(); i++ {
		m := iface.Method(i)
		markers := e.markersOf(m)
		pos := e.prog.Position(m.Pos())
		proc, source := e.bindProcedure(pos, m.Name(), markers)
		c.Methods = append(c.Methods, MethodDescriptor{
			Name:            m.Name(),
			Params:          e.describeParams(pos, m.Name(), m.Type().(*types.Signature), defaultMarkers(markers)),
			Procedure:       proc,
			ProcedureSource: source,
		})
	}
	return c
}

func (e *extractor) implementations(iface *types.Interface) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if impls, ok := e.impls[iface]; ok {
		return impls
	}
	impls := FindImplementations(e.prog, iface)
	e.impls[iface] = impls
	return impls
}
