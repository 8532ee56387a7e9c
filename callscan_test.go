package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanResolver_FindCollaboratorCalls(t *testing.T) {
	prog := shopProgram(t)
	r := NewScanResolver("Manager")

	tests := []struct {
		method string
		want   []string
	}{
		{"GetOrderById", []string{"GetOrderById"}},
		{"Submit", []string{"Audit"}},
		{"GetFetched", []string{"FetchOrder", "GetOrderById"}},
		{"GetLogged", []string{}},
		{"GetDeferred", []string{"GetOrderById"}},
		{"GetSelf", []string{"get2"}},
		// The helper's result is opaque to the scan.
		{"GetIndirect", []string{"mgr"}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := r.FindCollaboratorCalls(methodFn(t, prog, "OrdersController", tt.method))
			assert.Equal(t, tt.want, got)
		})
	}
}

const pingSource = `package ping

type Logger interface{ Log(string) }

type PingController struct {
	debug bool
	log   Logger
}

func (c *PingController) helper() {}

// GetPing reads a flag in one block and calls its own helper in another.
func (c *PingController) GetPing() {
	if c.debug {
		c.log.Log("ping")
	}
	c.helper()
}

// GetTraced loads a field right before the self call.
func (c *PingController) GetTraced() {
	c.log.Log("trace")
	c.helper()
}
`

func TestScanResolver_SelfCallAcrossBlocks(t *testing.T) {
	prog := buildProgram(t, "example.com/ping", map[string]string{"ping.go": pingSource})
	r := NewScanResolver("manager")

	assert.Equal(t, []string{"helper"}, r.FindCollaboratorCalls(methodFn(t, prog, "PingController", "GetPing")))
	assert.Equal(t, []string{}, r.FindCollaboratorCalls(methodFn(t, prog, "PingController", "GetTraced")))
}

func TestScanResolver_NoBody(t *testing.T) {
	got := NewScanResolver("manager").FindCollaboratorCalls(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestScanResolver_TokenMismatch(t *testing.T) {
	prog := shopProgram(t)
	got := NewScanResolver("repository").FindCollaboratorCalls(methodFn(t, prog, "OrdersController", "GetFetched"))
	assert.Empty(t, got)

	got = NewScanResolver("LOG").FindCollaboratorCalls(methodFn(t, prog, "OrdersController", "GetLogged"))
	assert.Equal(t, []string{"Log"}, got)
}
