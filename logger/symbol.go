package logger

import (
	"go.uber.org/zap"
)

// Subsystem glyphs tagged onto log lines as a structured field, not the
// message text, so logs stay queryable by subsystem regardless of level.
const (
	SymbolScheduler  = "◔" // scene scheduler tick grants / frame budget
	SymbolCRDT       = "▦" // CRDT store mutation / dispatch
	SymbolTransport  = "⇄" // room transport connect/send/events
	SymbolPresence   = "☺" // foreign player presence / global CRDT
	SymbolPermission = "⚷" // permission broker prompts
	SymbolLifecycle  = "↻" // scene load/despawn
	SymbolWorker     = "⚙" // script worker / isolate
)

// Symbol-aware logging helpers.
// These functions log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(logger.SymbolScheduler + " tick granted", "scene_id", id)
//
//	// Use:
//	logger.SchedInfow("tick granted", "scene_id", id)
//
// This makes logs queryable by symbol and keeps messages clean.

// SchedInfow logs an info message tagged with the scheduler symbol.
func SchedInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolScheduler}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// SchedDebugw logs a debug message tagged with the scheduler symbol.
func SchedDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolScheduler}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// CRDTWarnw logs a warning tagged with the CRDT symbol — used for dropped
// frames (policy violations, malformed buffers).
func CRDTWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolCRDT}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// CRDTDebugw logs a debug message tagged with the CRDT symbol.
func CRDTDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolCRDT}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// TransportInfow logs an info message tagged with the transport symbol.
func TransportInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolTransport}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// TransportWarnw logs a warning tagged with the transport symbol.
func TransportWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolTransport}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// PresenceInfow logs an info message tagged with the presence symbol.
func PresenceInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolPresence}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// PresenceWarnw logs a warning tagged with the presence symbol.
func PresenceWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolPresence}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// PermissionInfow logs an info message tagged with the permission symbol.
func PermissionInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolPermission}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// LifecycleInfow logs an info message tagged with the lifecycle symbol.
func LifecycleInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolLifecycle}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// LifecycleWarnw logs a warning tagged with the lifecycle symbol.
func LifecycleWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolLifecycle}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// WorkerWarnw logs a warning tagged with the worker symbol — used when a
// scene's script panics or an isolate call errors.
func WorkerWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolWorker}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// WithSymbol returns a logger with the given symbol as a field.
// For ad-hoc symbol usage not covered by the helpers above.
func WithSymbol(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldSymbol, symbol)
}

// SymbolInfow logs with any symbol - for dynamic symbol usage
func SymbolInfow(symbol, msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}
