// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by the engine, session writer and recovery store.
const (
	TimerKindKey   = "timer.kind"
	TimerActionKey = "timer.action"
	PrincipalKey   = "chrono.principal"

	SessionIDKey       = "session.id"
	SessionTypeKey     = "session.type"
	SessionDurationKey = "session.duration_s"

	RecoveryBackendKey = "recovery.backend"
	RecoveryOpKey      = "recovery.op"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// TimerAttributes describes an engine operation.
func TimerAttributes(principal, kind, action string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if principal != "" {
		attrs = append(attrs, attribute.String(PrincipalKey, principal))
	}
	return append(attrs,
		attribute.String(TimerKindKey, kind),
		attribute.String(TimerActionKey, action),
	)
}

// SessionAttributes describes a session write.
func SessionAttributes(id, typ string, durationSec int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, id),
		attribute.String(SessionTypeKey, typ),
		attribute.Int64(SessionDurationKey, durationSec),
	}
}

// RecoveryAttributes describes a snapshot store operation.
func RecoveryAttributes(backend, op string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RecoveryBackendKey, backend),
		attribute.String(RecoveryOpKey, op),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
