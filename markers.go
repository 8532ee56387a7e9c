package main

import (
	"fmt"
	"go/ast"
	"net/http"
	"strings"
)

// directivePrefix introduces a declarative marker in a doc comment, in the
// same shape as //go: directives (no space after the slashes).
const directivePrefix = "//sprocheck:"

// Marker is a declarative annotation read from a doc comment. The set of
// implementations is closed.
type Marker interface {
	marker()
}

// HTTPVerbMarker marks a method as an endpoint for Verb, optionally with a route template.
//
//	//sprocheck:get orders/{id}
type HTTPVerbMarker struct {
	Verb     string
	Template string
}

// RouteMarker sets the route template of a controller or method.
//
//	//sprocheck:route api/orders
type RouteMarker struct {
	Template string
}

// ProcedureNameMarker binds a method to a stored procedure.
//
//	//sprocheck:proc [dbo].[sp_Orders_GetById]
type ProcedureNameMarker struct {
	Name string
}

// DefaultMarker declares a default value for a parameter.
//
//	//sprocheck:default pageSize=20
type DefaultMarker struct {
	Param string
	Value string
}

func (HTTPVerbMarker) marker()      {}
func (RouteMarker) marker()         {}
func (ProcedureNameMarker) marker() {}
func (DefaultMarker) marker()       {}

var verbDirectives = map[string]string{
	"get":    http.MethodGet,
	"post":   http.MethodPost,
	"put":    http.MethodPut,
	"delete": http.MethodDelete,
	"patch":  http.MethodPatch,
}

// ParseMarkers extracts markers from a doc comment. Malformed directives are
// returned as problems instead of failing the whole declaration.
func ParseMarkers(doc *ast.CommentGroup) (markers []Marker, problems []string) {
	if doc == nil {
		return nil, nil
	}
	// CommentGroup.Text drops directive lines, so read the raw comments.
	for _, c := range doc.List {
		rest, ok := strings.CutPrefix(c.Text, directivePrefix)
		if !ok {
			continue
		}
		m, err := parseDirective(rest)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		markers = append(markers, m)
	}
	return markers, problems
}

func parseDirective(s string) (Marker, error) {
	keyword, arg, _ := strings.Cut(strings.TrimSpace(s), " ")
	arg = strings.TrimSpace(arg)
	keyword = strings.ToLower(keyword)

	if verb, ok := verbDirectives[keyword]; ok {
		return HTTPVerbMarker{Verb: verb, Template: arg}, nil
	}
	switch keyword {
	case "route":
		if arg == "" {
			return nil, fmt.Errorf("sprocheck:route needs a template")
		}
		return RouteMarker{Template: arg}, nil
	case "proc":
		if arg == "" {
			return nil, fmt.Errorf("sprocheck:proc needs a procedure name")
		}
		return ProcedureNameMarker{Name: arg}, nil
	case "default":
		name, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("sprocheck:default wants name=value, got %q", arg)
		}
		return DefaultMarker{Param: strings.TrimSpace(name), Value: strings.TrimSpace(value)}, nil
	}
	return nil, fmt.Errorf("unknown directive sprocheck:%s", keyword)
}

func findVerbMarker(ms []Marker) (HTTPVerbMarker, bool) {
	for _, m := range ms {
		if v, ok := m.(HTTPVerbMarker); ok {
			return v, true
		}
	}
	return HTTPVerbMarker{}, false
}

func findRouteMarker(ms []Marker) (RouteMarker, bool) {
	for _, m := range ms {
		if r, ok := m.(RouteMarker); ok {
			return r, true
		}
	}
	return RouteMarker{}, false
}

// findProcedureMarkers returns every proc marker; more than one is ambiguous.
func findProcedureMarkers(ms []Marker) []ProcedureNameMarker {
	var out []ProcedureNameMarker
	for _, m := range ms {
		if p, ok := m.(ProcedureNameMarker); ok {
			out = append(out, p)
		}
	}
	return out
}

func defaultMarkers(ms []Marker) map[string]string {
	var out map[string]string
	for _, m := range ms {
		if d, ok := m.(DefaultMarker); ok {
			if out == nil {
				out = make(map[string]string)
			}
			out[d.Param] = d.Value
		}
	}
	return out
}
