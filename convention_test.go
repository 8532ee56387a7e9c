package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcedureConvention_Bind(t *testing.T) {
	tests := []struct {
		method string
		want   string
		ok     bool
	}{
		{"GetOrderById", "[dbo].[sp_Orders_GetById]", true},
		{"GetOrderByIdAndByStatus", "[dbo].[sp_Orders_GetByIdAndByStatus]", true},
		{"DeleteAddressByZip", "[dbo].[sp_Address_DeleteByZip]", true},
		{"ListCustomerBy", "[dbo].[sp_Customers_ListBy]", true},
		{"FindBypassByRule", "[dbo].[sp_Bypass_FindByRule]", true},
		{"UpdateOrder", "", false},
		{"GetByName", "", false},
		{"Getorderbyid", "", false},
		{"FetchOrderById", "", false},
		{"Get", "", false},
	}
	for _, tt := range tests {
		qn, ok := DefaultConvention.Bind(tt.method)
		assert.Equal(t, tt.ok, ok, tt.method)
		if tt.ok {
			assert.Equal(t, tt.want, qn.FullName(), tt.method)
		}
	}
}

func TestProcedureConvention_Configured(t *testing.T) {
	c := ProcedureConvention{Schema: "sales", Prefix: "", Infix: "With"}
	qn, ok := c.Bind("CreateInvoiceWithLines")
	assert.True(t, ok)
	assert.Equal(t, QualifiedName{Schema: "sales", Name: "Invoices_CreateWithLines"}, qn)

	// Zero value falls back to the default schema and infix.
	qn, ok = ProcedureConvention{}.Bind("GetOrderById")
	assert.True(t, ok)
	assert.Equal(t, QualifiedName{Schema: "dbo", Name: "Orders_GetById"}, qn)
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "Orders", pluralize("Order"))
	assert.Equal(t, "Address", pluralize("Address"))
	assert.Equal(t, "STATUS", pluralize("STATUS"))
}
