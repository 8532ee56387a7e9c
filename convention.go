package main

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// conventionVerbs are the method-name prefixes the naming convention
// recognises. Longer names go first so no verb shadows another.
var conventionVerbs = []string{
	"Delete", "Insert", "Remove", "Update", "Create",
	"Patch", "Post", "List", "Find", "Get", "Put",
}

// ProcedureConvention derives a procedure name from a method name:
// <Verb><Entity><Infix><Rest> becomes [Schema].[<Prefix><Entity>s_<Verb><Infix><Rest>].
type ProcedureConvention struct {
	Schema string // default "dbo"
	Prefix string // default "sp_"
	Infix  string // default "By"
}

// DefaultConvention is the convention used when configuration sets nothing.
var DefaultConvention = ProcedureConvention{Schema: DefaultSchema, Prefix: "sp_", Infix: "By"}

// Bind applies the convention to a method name. It reports false when the
// name has no recognised verb, no entity, or no infix after the entity; the
// first infix occurrence after a non-empty entity is the split point.
//
//	GetOrderById     -> [dbo].[sp_Orders_GetById]
//	ListAddressByZip -> [dbo].[sp_Address_ListByZip]
func (c ProcedureConvention) Bind(method string) (QualifiedName, bool) {
	c = c.withDefaults()

	verb, rest, ok := splitConventionVerb(method)
	if !ok {
		return QualifiedName{}, false
	}
	// The entity needs at least one character, so search from index 1.
	i := strings.Index(rest[1:], c.Infix)
	if i < 0 {
		return QualifiedName{}, false
	}
	entity, tail := rest[:i+1], rest[i+1+len(c.Infix):]

	name := c.Prefix + pluralize(entity) + "_" + verb + c.Infix + tail
	return QualifiedName{Schema: c.Schema, Name: name}, true
}

func (c ProcedureConvention) withDefaults() ProcedureConvention {
	if c.Schema == "" {
		c.Schema = DefaultConvention.Schema
	}
	if c.Infix == "" {
		c.Infix = DefaultConvention.Infix
	}
	// Prefix may legitimately be empty.
	return c
}

// splitConventionVerb splits "GetOrderById" into "Get" and "OrderById". The
// remainder must start with an upper-case letter.
func splitConventionVerb(method string) (verb, rest string, ok bool) {
	for _, v := range conventionVerbs {
		r, found := strings.CutPrefix(method, v)
		if !found || r == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(r)
		if unicode.IsUpper(first) {
			return v, r, true
		}
	}
	return "", "", false
}

// pluralize appends "s" unless the entity already ends in one.
func pluralize(entity string) string {
	if strings.HasSuffix(entity, "s") || strings.HasSuffix(entity, "S") {
		return entity
	}
	return entity + "s"
}
