// Package state provides filesystem-backed storage implementations.
package state

import "github.com/user/hookrelay/internal/types"

// Compile-time interface compliance check.
var _ types.EventLog = (*AuditLog)(nil)
