package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across civicload.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID     = "run_id"
	FieldDataset   = "dataset"
	FieldComponent = "component"

	// Pipeline
	FieldStage     = "stage"
	FieldState     = "state"
	FieldErrorKind = "error_kind"
	FieldTable     = "table"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount    = "count"
	FieldSize     = "size"
	FieldRows     = "rows"
	FieldInserted = "inserted"
	FieldUpdated  = "updated"

	// Files and network
	FieldFile   = "file"
	FieldURL    = "url"
	FieldStatus = "status"
	FieldHash   = "content_hash"
)

type contextKey string

const (
	runIDKey   contextKey = "logger_run_id"
	datasetKey contextKey = "logger_dataset"
)

// WithRunID adds a pipeline run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithDataset adds the dataset being processed to the context for logging
func WithDataset(ctx context.Context, dataset string) context.Context {
	return context.WithValue(ctx, datasetKey, dataset)
}

// RunIDFromContext returns the run ID carried by ctx, or ""
func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)
	return runID
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if dataset, ok := ctx.Value(datasetKey).(string); ok && dataset != "" {
		fields = append(fields, FieldDataset, dataset)
	}

	return fields
}

// LoggerFromContext returns base extended with the fields carried by ctx.
// A nil base falls back to the global Logger.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	acq := acquire.NewManager(client, resolvers, logger.ComponentLogger("acquire"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
