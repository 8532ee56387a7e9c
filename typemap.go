package main

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TypeCategory groups SQL and Go types for contract comparison.
type TypeCategory string

const (
	CategoryInteger    TypeCategory = "integer"
	CategoryBoolean    TypeCategory = "boolean"
	CategoryText       TypeCategory = "text"
	CategoryTemporal   TypeCategory = "temporal"
	CategoryNumeric    TypeCategory = "numeric"
	CategoryBinary     TypeCategory = "binary"
	CategoryIdentifier TypeCategory = "identifier"
	CategoryStructured TypeCategory = "structured"
	CategoryVariant    TypeCategory = "variant"
)

// Compatible reports whether a code-side category can carry a value of the
// procedure-side category. Variant is never compatible; callers report it
// separately as an unsupported type.
func (c TypeCategory) Compatible(sql TypeCategory) bool {
	if c == CategoryVariant || sql == CategoryVariant {
		return false
	}
	if c == sql {
		return true
	}
	textual := func(x TypeCategory) bool { return x == CategoryText || x == CategoryStructured }
	return textual(c) && textual(sql)
}

// Variant is the sentinel for SQL types absent from the mapping table.
type Variant struct {
	SQLType string
}

// VariantType is what ClientType returns for unsupported SQL types.
var VariantType = reflect.TypeOf(Variant{})

type sqlTypeEntry struct {
	goType   reflect.Type
	category TypeCategory
	zero     func(now func() time.Time) any
}

var (
	typeInt64   = reflect.TypeOf(int64(0))
	typeInt32   = reflect.TypeOf(int32(0))
	typeInt16   = reflect.TypeOf(int16(0))
	typeUint8   = reflect.TypeOf(uint8(0))
	typeBool    = reflect.TypeOf(false)
	typeString  = reflect.TypeOf("")
	typeTime    = reflect.TypeOf(time.Time{})
	typeDecimal = reflect.TypeOf(decimal.Decimal{})
	typeFloat64 = reflect.TypeOf(float64(0))
	typeFloat32 = reflect.TypeOf(float32(0))
	typeBytes   = reflect.TypeOf([]byte(nil))
	typeUUID    = reflect.TypeOf(uuid.UUID{})
)

func constant(v any) func(func() time.Time) any {
	return func(func() time.Time) any { return v }
}

func emptyBytes(func() time.Time) any { return []byte{} }

func currentTime(now func() time.Time) any { return now() }

// sqlTypes is the canonical mapping table, keyed by normalized SQL type name.
var sqlTypes = map[string]sqlTypeEntry{
	"bigint":   {typeInt64, CategoryInteger, constant(int64(0))},
	"int":      {typeInt32, CategoryInteger, constant(int32(0))},
	"smallint": {typeInt16, CategoryInteger, constant(int16(0))},
	"tinyint":  {typeUint8, CategoryInteger, constant(uint8(0))},

	"bit": {typeBool, CategoryBoolean, constant(false)},

	"char":     {typeString, CategoryText, constant("")},
	"varchar":  {typeString, CategoryText, constant("")},
	"nchar":    {typeString, CategoryText, constant("")},
	"nvarchar": {typeString, CategoryText, constant("")},
	"text":     {typeString, CategoryText, constant("")},
	"ntext":    {typeString, CategoryText, constant("")},
	"sysname":  {typeString, CategoryText, constant("")},

	"date":           {typeTime, CategoryTemporal, currentTime},
	"datetime":       {typeTime, CategoryTemporal, currentTime},
	"datetime2":      {typeTime, CategoryTemporal, currentTime},
	"smalldatetime":  {typeTime, CategoryTemporal, currentTime},
	"datetimeoffset": {typeTime, CategoryTemporal, currentTime},
	"time":           {typeTime, CategoryTemporal, currentTime},

	"decimal":    {typeDecimal, CategoryNumeric, constant(decimal.Zero)},
	"numeric":    {typeDecimal, CategoryNumeric, constant(decimal.Zero)},
	"money":      {typeDecimal, CategoryNumeric, constant(decimal.Zero)},
	"smallmoney": {typeDecimal, CategoryNumeric, constant(decimal.Zero)},
	"float":      {typeFloat64, CategoryNumeric, constant(float64(0))},
	"real":       {typeFloat32, CategoryNumeric, constant(float32(0))},

	"binary":     {typeBytes, CategoryBinary, emptyBytes},
	"varbinary":  {typeBytes, CategoryBinary, emptyBytes},
	"image":      {typeBytes, CategoryBinary, emptyBytes},
	"rowversion": {typeBytes, CategoryBinary, emptyBytes},
	"timestamp":  {typeBytes, CategoryBinary, emptyBytes},

	"uniqueidentifier": {typeUUID, CategoryIdentifier, constant(uuid.Nil)},

	"xml": {typeString, CategoryStructured, constant("")},
}

// SupportedSQLTypes lists every SQL type name the mapper recognizes.
func SupportedSQLTypes() []string {
	names := make([]string, 0, len(sqlTypes))
	for name := range sqlTypes {
		names = append(names, name)
	}
	return names
}

// TypeMapper maps SQL scalar type names to Go types and default values.
// The zero value is not usable; construct with NewTypeMapper.
type TypeMapper struct {
	now func() time.Time
}

// TypeMapperOption configures a TypeMapper.
type TypeMapperOption func(*TypeMapper)

// WithClock replaces time.Now for temporal defaults.
func WithClock(now func() time.Time) TypeMapperOption {
	return func(m *TypeMapper) { m.now = now }
}

// NewTypeMapper returns a mapper using the wall clock unless overridden.
func NewTypeMapper(opts ...TypeMapperOption) *TypeMapper {
	m := &TypeMapper{now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// normalizeSQLType lower-cases and strips "sys." prefixes and size suffixes,
// so "NVARCHAR(50)" and "sys.nvarchar" both become "nvarchar".
func normalizeSQLType(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Trim(name, "[]")
	name = strings.TrimPrefix(name, "sys.")
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return name
}

func (m *TypeMapper) lookup(sqlType string) (sqlTypeEntry, bool) {
	e, ok := sqlTypes[normalizeSQLType(sqlType)]
	return e, ok
}

// Supported reports whether sqlType is in the canonical table.
func (m *TypeMapper) Supported(sqlType string) bool {
	_, ok := m.lookup(sqlType)
	return ok
}

// ClientType returns the Go type used to carry sqlType, or VariantType.
func (m *TypeMapper) ClientType(sqlType string) reflect.Type {
	if e, ok := m.lookup(sqlType); ok {
		return e.goType
	}
	return VariantType
}

// DefaultValue returns the deterministic default for sqlType. Temporal types
// yield the mapper clock's current time. Unsupported types yield Variant.
func (m *TypeMapper) DefaultValue(sqlType string) any {
	if e, ok := m.lookup(sqlType); ok {
		return e.zero(m.now)
	}
	return Variant{SQLType: sqlType}
}

// Category returns the comparison category of sqlType.
func (m *TypeMapper) Category(sqlType string) TypeCategory {
	if e, ok := m.lookup(sqlType); ok {
		return e.category
	}
	return CategoryVariant
}
