// Package stub builds stand-in implementations of collaborator interfaces
// whose every method fails with NotImplementedError.
//
// Go cannot declare new types at run time, so New returns a dispatch table of
// functions with the interface's exact method signatures. Compile-time stub
// types are generated as source by the sprocheck stub command and call
// NotImplemented from this package.
package stub

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"
)

// NotImplementedError is returned (or panicked) by every stub method.
type NotImplementedError struct {
	Type   string // stub type name, e.g. "OrderManagerStub1"
	Method string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s.%s is not implemented", e.Type, e.Method)
}

// Unwrap lets callers test with errors.Is(err, errors.ErrUnsupported).
func (e *NotImplementedError) Unwrap() error {
	return errors.ErrUnsupported
}

// NotImplemented returns the error a generated stub method reports.
func NotImplemented(typeName, method string) error {
	return &NotImplementedError{Type: typeName, Method: method}
}

var counter atomic.Int64

var errorType = reflect.TypeFor[error]()

// Stub is a table-driven implementation of an interface.
type Stub struct {
	iface   reflect.Type
	name    string
	methods map[string]reflect.Value
}

// New builds a stub for iface, which must be an interface type. Every call
// yields a distinct type name.
func New(iface reflect.Type) (*Stub, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("stub: %v is not an interface type", iface)
	}
	ifaceName := iface.Name()
	if ifaceName == "" {
		ifaceName = "Interface"
	}
	s := &Stub{
		iface:   iface,
		name:    fmt.Sprintf("%sStub%d", ifaceName, counter.Add(1)),
		methods: make(map[string]reflect.Value, iface.NumMethod()),
	}
	// reflect flattens embedded interfaces and de-duplicates by name.
	for i := 0; i < iface.NumMethod(); i++ {
		m := iface.Method(i)
		s.methods[m.Name] = reflect.MakeFunc(m.Type, s.notImplemented(m.Name, m.Type))
	}
	return s, nil
}

// For is New for a static interface type.
//
//	s, err := stub.For[orders.Manager]()
func For[T any]() (*Stub, error) {
	return New(reflect.TypeFor[T]())
}

func (s *Stub) notImplemented(method string, ft reflect.Type) func([]reflect.Value) []reflect.Value {
	return func([]reflect.Value) []reflect.Value {
		err := &NotImplementedError{Type: s.name, Method: method}
		n := ft.NumOut()
		if n == 0 || ft.Out(n-1) != errorType {
			panic(err)
		}
		out := make([]reflect.Value, n)
		for i := 0; i < n-1; i++ {
			out[i] = reflect.Zero(ft.Out(i))
		}
		out[n-1] = reflect.ValueOf(error(err))
		return out
	}
}

// Name returns the stub's unique type name.
func (s *Stub) Name() string { return s.name }

// Interface returns the stubbed interface type.
func (s *Stub) Interface() reflect.Type { return s.iface }

// Methods returns the stubbed method names, sorted.
func (s *Stub) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func returns the function implementing method, with the method's exact
// signature (receiver excluded), for use with type assertions:
//
//	fn, _ := s.Func("GetOrder")
//	get := fn.Interface().(func(int) (*Order, error))
func (s *Stub) Func(method string) (reflect.Value, bool) {
	fn, ok := s.methods[method]
	return fn, ok
}

// Call invokes method with args and returns its results. The error is the
// method's final error result, or the NotImplementedError a method without
// an error result panics with.
func (s *Stub) Call(method string, args ...any) (results []any, err error) {
	fn, ok := s.methods[method]
	if !ok {
		return nil, fmt.Errorf("stub: %s has no method %s", s.iface, method)
	}
	ft := fn.Type()
	if (!ft.IsVariadic() && len(args) != ft.NumIn()) || (ft.IsVariadic() && len(args) < ft.NumIn()-1) {
		return nil, fmt.Errorf("stub: %s.%s takes %d arguments, got %d", s.name, method, ft.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := paramType(ft, i)
		if a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		v := reflect.ValueOf(a)
		if !v.Type().AssignableTo(pt) {
			return nil, fmt.Errorf("stub: %s.%s argument %d: %s is not assignable to %s", s.name, method, i, v.Type(), pt)
		}
		in[i] = v
	}

	defer func() {
		if r := recover(); r != nil {
			nie, ok := r.(*NotImplementedError)
			if !ok {
				panic(r)
			}
			results, err = nil, nie
		}
	}()

	values := fn.Call(in)
	out := make([]any, len(values))
	for i, r := range values {
		out[i] = r.Interface()
	}
	if n := len(out); n > 0 {
		if e, ok := out[n-1].(error); ok {
			return out, e
		}
	}
	return out, nil
}

func paramType(ft reflect.Type, i int) reflect.Type {
	if ft.IsVariadic() && i >= ft.NumIn()-1 {
		return ft.In(ft.NumIn() - 1).Elem()
	}
	return ft.In(i)
}
