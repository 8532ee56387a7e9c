package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var typemapFixedNow = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

func fixedMapper() *TypeMapper {
	return NewTypeMapper(WithClock(func() time.Time { return typemapFixedNow }))
}

func TestTypeMapper_ClientType(t *testing.T) {
	m := fixedMapper()
	tests := []struct {
		sqlType string
		want    reflect.Type
	}{
		{"bigint", reflect.TypeOf(int64(0))},
		{"int", reflect.TypeOf(int32(0))},
		{"INT", reflect.TypeOf(int32(0))},
		{"smallint", reflect.TypeOf(int16(0))},
		{"tinyint", reflect.TypeOf(uint8(0))},
		{"bit", reflect.TypeOf(false)},
		{"nvarchar(50)", reflect.TypeOf("")},
		{"sys.varchar", reflect.TypeOf("")},
		{"datetime2", reflect.TypeOf(time.Time{})},
		{"decimal(18,2)", reflect.TypeOf(decimal.Decimal{})},
		{"float", reflect.TypeOf(float64(0))},
		{"real", reflect.TypeOf(float32(0))},
		{"varbinary", reflect.TypeOf([]byte(nil))},
		{"uniqueidentifier", reflect.TypeOf(uuid.UUID{})},
		{"xml", reflect.TypeOf("")},
		{"sql_variant", VariantType},
		{"geography", VariantType},
	}
	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			if got := m.ClientType(tt.sqlType); got != tt.want {
				t.Errorf("ClientType(%q) = %v, want %v", tt.sqlType, got, tt.want)
			}
		})
	}
}

func TestTypeMapper_DefaultValue(t *testing.T) {
	m := fixedMapper()

	assert.Equal(t, int32(0), m.DefaultValue("int"))
	assert.Equal(t, int64(0), m.DefaultValue("bigint"))
	assert.Equal(t, false, m.DefaultValue("bit"))
	assert.Equal(t, "", m.DefaultValue("nvarchar"))
	assert.Equal(t, typemapFixedNow, m.DefaultValue("datetime"))
	assert.Equal(t, uuid.Nil, m.DefaultValue("uniqueidentifier"))
	assert.Equal(t, []byte{}, m.DefaultValue("varbinary"))

	d, ok := m.DefaultValue("money").(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, d.IsZero())

	assert.Equal(t, Variant{SQLType: "hierarchyid"}, m.DefaultValue("hierarchyid"))
}

// Every supported type has a default whose dynamic type is its client type,
// and repeated calls agree under a fixed clock.
func TestTypeMapper_TotalAndStable(t *testing.T) {
	m := fixedMapper()
	for _, name := range SupportedSQLTypes() {
		first := m.DefaultValue(name)
		second := m.DefaultValue(name)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: default not stable: %v vs %v", name, first, second)
		}
		if got := reflect.TypeOf(first); got != m.ClientType(name) {
			t.Errorf("%s: default has type %v, client type is %v", name, got, m.ClientType(name))
		}
		if m.Category(name) == CategoryVariant || !m.Supported(name) {
			t.Errorf("%s: supported type reported as variant", name)
		}
	}
	assert.True(t, m.Supported("sys.NVARCHAR(50)"))
	assert.False(t, m.Supported("hierarchyid"))
}

func TestTypeMapper_WallClock(t *testing.T) {
	m := NewTypeMapper()
	before := time.Now()
	got, ok := m.DefaultValue("date").(time.Time)
	require.True(t, ok)
	assert.False(t, got.Before(before))
}

func TestTypeCategory_Compatible(t *testing.T) {
	tests := []struct {
		code, sql TypeCategory
		want      bool
	}{
		{CategoryInteger, CategoryInteger, true},
		{CategoryText, CategoryStructured, true},
		{CategoryStructured, CategoryText, true},
		{CategoryInteger, CategoryNumeric, false},
		{CategoryText, CategoryIdentifier, false},
		{CategoryVariant, CategoryVariant, false},
	}
	for _, tt := range tests {
		if got := tt.code.Compatible(tt.sql); got != tt.want {
			t.Errorf("%s.Compatible(%s) = %v, want %v", tt.code, tt.sql, got, tt.want)
		}
	}
}
