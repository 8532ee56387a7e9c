package main

import (
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphResolver_FindsCallsThroughHelpers(t *testing.T) {
	prog := shopProgram(t)
	eps := ExtractEndpoints(prog, DefaultExtractOptions(), NopProgress())
	collab := endpointByName(t, eps, "OrdersController", "GetIndirect").Collaborator
	require.NotNil(t, collab)
	require.NotNil(t, collab.iface)

	scan := NewScanResolver("manager")
	r := NewGraphResolver(prog, scan, []*types.Interface{collab.iface}, NopProgress())

	// wire() is the only place an OrderManager is constructed, so the
	// interface call in GetIndirect resolves to orderStore.
	got := r.FindCollaboratorCalls(methodFn(t, prog, "OrdersController", "GetIndirect"))
	assert.Equal(t, []string{"GetOrderById", "mgr"}, got)

	tests := []struct {
		method string
		want   []string
	}{
		{"GetFetched", []string{"FetchOrder", "GetOrderById"}},
		{"GetDeferred", []string{"GetOrderById"}},
		{"GetLogged", []string{}},
	}
	for _, tt := range tests {
		fn := methodFn(t, prog, "OrdersController", tt.method)
		assert.Equal(t, tt.want, r.FindCollaboratorCalls(fn), tt.method)
		assert.Subset(t, r.FindCollaboratorCalls(fn), scan.FindCollaboratorCalls(fn), tt.method)
	}
}

func TestDeclaresMethod(t *testing.T) {
	prog := shopProgram(t)
	obj := prog.Packages[0].Types.Scope().Lookup("OrderManager")
	iface := obj.Type().Underlying().(*types.Interface)

	assert.True(t, declaresMethod(iface, "Audit"), "embedded methods count")
	assert.True(t, declaresMethod(iface, "FetchOrder"))
	assert.False(t, declaresMethod(iface, "Log"))
}

const auditSource = `package audit

type OrderManager interface {
	GetOrderById(id int) (int, error)
}

type orderStore struct{}

func (s *orderStore) GetOrderById(id int) (int, error) { return id, nil }

type AuditController struct {
	manager OrderManager
	store   *orderStore
}

// GetAudit goes through the concrete store, never the manager.
func (c *AuditController) GetAudit(id int) {
	_, _ = c.store.GetOrderById(id)
}

// GetStoreIface converts the store to the interface before calling it.
func (c *AuditController) GetStoreIface(id int) {
	var m OrderManager = c.store
	_, _ = m.GetOrderById(id)
}

func (c *AuditController) GetManaged(id int) {
	_, _ = c.manager.GetOrderById(id)
}

func wire() *AuditController {
	s := &orderStore{}
	return &AuditController{manager: s, store: s}
}
`

func TestGraphResolver_IgnoresUnrelatedFields(t *testing.T) {
	prog := buildProgram(t, "example.com/audit", map[string]string{"audit.go": auditSource})
	obj := prog.Packages[0].Types.Scope().Lookup("OrderManager")
	iface := obj.Type().Underlying().(*types.Interface)

	scan := NewScanResolver("manager")
	r := NewGraphResolver(prog, scan, []*types.Interface{iface}, NopProgress())

	tests := []struct {
		method string
		want   []string
	}{
		{"GetAudit", []string{}},
		{"GetStoreIface", []string{}},
		{"GetManaged", []string{"GetOrderById"}},
	}
	for _, tt := range tests {
		fn := methodFn(t, prog, "AuditController", tt.method)
		assert.Equal(t, tt.want, scan.FindCollaboratorCalls(fn), "scan %s", tt.method)
		assert.Equal(t, tt.want, r.FindCollaboratorCalls(fn), "graph %s", tt.method)
	}
}
