// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID   = "request_id"
	FieldPrincipalID = "principal_id"
	FieldSessionID   = "session_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Engine fields
	FieldKind      = "kind"
	FieldAction    = "action"
	FieldElapsed   = "elapsed"
	FieldRemaining = "remaining"
	FieldTotal     = "total"
	FieldOldState  = "old_state"
	FieldNewState  = "new_state"

	// Storage fields
	FieldBackend = "backend"
	FieldPath    = "path"
)
