package main

import "strings"

// DefaultSchema is assigned to procedure names given without a schema.
const DefaultSchema = "dbo"

// QualifiedName is a schema-qualified procedure name.
type QualifiedName struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// ParseQualifiedName parses "[schema].[name]", "schema.name" or a bare "name".
// Bracket and quote delimiters are stripped, the string is split on the first
// separator, and a name without separator gets defaultSchema.
func ParseQualifiedName(s, defaultSchema string) QualifiedName {
	s = strings.TrimSpace(s)
	if defaultSchema == "" {
		defaultSchema = DefaultSchema
	}
	schema, name, ok := splitQualified(s)
	if !ok {
		return QualifiedName{Schema: defaultSchema, Name: unquote(s)}
	}
	return QualifiedName{Schema: unquote(schema), Name: unquote(name)}
}

// splitQualified splits on the first '.' that is not inside a delimited part.
func splitQualified(s string) (schema, name string, ok bool) {
	var closer rune
	for i, r := range s {
		switch {
		case closer != 0:
			if r == closer {
				closer = 0
			}
		case r == '[':
			closer = ']'
		case r == '"' || r == '`':
			closer = r
		case r == '.':
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch {
		case s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		case s[0] == '"' && s[len(s)-1] == '"', s[0] == '`' && s[len(s)-1] == '`':
			return s[1 : len(s)-1]
		}
	}
	return s
}

// FullName returns the bracketed form "[schema].[name]".
func (q QualifiedName) FullName() string {
	return "[" + q.Schema + "].[" + q.Name + "]"
}

// UnescapedFullName returns the plain form "schema.name".
func (q QualifiedName) UnescapedFullName() string {
	return q.Schema + "." + q.Name
}

// IsZero reports whether no procedure is named.
func (q QualifiedName) IsZero() bool {
	return q.Name == ""
}

func (q QualifiedName) String() string {
	return q.UnescapedFullName()
}

// key folds case so lookups follow SQL Server's default case-insensitive collation.
func (q QualifiedName) key() string {
	return strings.ToLower(q.UnescapedFullName())
}
