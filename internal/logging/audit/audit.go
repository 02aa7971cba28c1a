// Package audit records destructive changes made to replica tables and data.
package audit

import (
	"github.com/rs/zerolog"
)

// Results of an audited operation.
const (
	ResultDeleted     = "deleted"
	ResultEmpty       = "empty"
	ResultFailed      = "failed"
	ResultUnsupported = "unsupported"
	ResultDropped     = "dropped"
	ResultUpdated     = "updated"
)

// Logger writes one structured entry per audited operation.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger writing to logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

// Nop returns a logger that discards every entry.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// LogDataDelete logs the deletion of replica data at location.
// result: ResultDeleted, ResultEmpty, ResultFailed or ResultUnsupported
// details: error text for failures
func (l *Logger) LogDataDelete(table, location, result, details string) {
	level := zerolog.InfoLevel
	if result == ResultFailed || result == ResultUnsupported {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "data_delete").
		Str("table", table).
		Str("location", location).
		Str("result", result)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Replica data deletion")
}

// LogTableDrop logs the removal of a replica table from the catalog.
func (l *Logger) LogTableDrop(table string, external bool, result, details string) {
	level := zerolog.InfoLevel
	if result == ResultFailed {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "table_drop").
		Str("table", table).
		Bool("external", external).
		Str("result", result)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Replica table drop")
}

// LogParameterChange logs table parameters written to a replica table.
// keys are the parameter names that were set.
func (l *Logger) LogParameterChange(table, replicationID string, keys []string, result, details string) {
	level := zerolog.InfoLevel
	if result == ResultFailed {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "parameter_change").
		Str("table", table).
		Str("replication", replicationID).
		Strs("keys", keys).
		Str("result", result)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Replica table parameters")
}
