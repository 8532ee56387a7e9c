package main

import (
	"fmt"
	"strings"
)

// EndpointKey names an endpoint in results: "Controller.Method".
func EndpointKey(controller, method string) string {
	return controller + "." + method
}

// BindingKey names a binding reached through a collaborator method:
// "Controller.Method->Interface.Method".
func BindingKey(controller, method, iface, collabMethod string) string {
	return fmt.Sprintf("%s.%s->%s.%s", controller, method, shortTypeName(iface), collabMethod)
}

// PosString formats a declaration position as "file:line".
func PosString(relFile string, line int) string {
	return fmt.Sprintf("%s:%d", relFile, line)
}

// shortTypeName drops the package path from a qualified type name:
// "example.com/shop/orders.OrderManager" becomes "OrderManager".
func shortTypeName(qualified string) string {
	if idx := strings.LastIndex(qualified, "."); idx >= 0 {
		return qualified[idx+1:]
	}
	return qualified
}

// BaseName extracts the filename without directory from a path.
func BaseName(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
