// Copyright 2025 Risktor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package output decouples pipeline code from rendering. Stages emit
// events through the Output interface; subscribers decide how each event
// reaches the terminal (styled text, JSON lines, diagnostics on stderr).
package output

import (
	"context"
	"time"
)

// OutputEventType defines the type of output event.
type OutputEventType string

const (
	// EventInfo represents a general information message (always visible)
	EventInfo OutputEventType = "info"

	// EventError represents an error message
	EventError OutputEventType = "error"

	// EventWarning represents a warning message
	EventWarning OutputEventType = "warning"

	// EventTable represents tabular data output
	EventTable OutputEventType = "table"

	// EventProgress represents a progress update
	EventProgress OutputEventType = "progress"

	// EventDiag represents diagnostic information (only visible with -v/-vv/-vvv)
	EventDiag OutputEventType = "diag"
)

// OutputLevel defines the verbosity level for diagnostic messages.
type OutputLevel int

const (
	// LevelNormal is the default level (always shown)
	LevelNormal OutputLevel = 0

	// LevelVerbose is shown with -v flag
	LevelVerbose OutputLevel = 1

	// LevelDebug is shown with -vv flag
	LevelDebug OutputLevel = 2

	// LevelTrace is shown with -vvv flag
	LevelTrace OutputLevel = 3
)

// TableData is the payload of an EventTable event.
type TableData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ProgressData is the payload of an EventProgress event.
type ProgressData struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// OutputEvent is a single output event emitted by pipeline code. Exactly
// one payload field is set, matching Type; the rest stay nil.
type OutputEvent struct {
	Type OutputEventType

	// Level specifies verbosity (only meaningful for EventDiag).
	Level OutputLevel

	// Message is the primary text content.
	Message string

	// Table is set for EventTable events.
	Table *TableData

	// Progress is set for EventProgress events.
	Progress *ProgressData

	// Metadata holds additional key-value pairs for diagnostic events.
	Metadata map[string]any

	// Timestamp records when the event was created.
	Timestamp time.Time
}

// Output is the interface pipeline code emits through. Callers never know
// the rendering format (human-friendly, JSON lines, diagnostics).
type Output interface {
	// Info emits a general information message (always visible).
	// Example: out.Info("Starting scan of example.com...")
	Info(message string)

	// Error emits an error message.
	// Example: out.Error(fmt.Errorf("discovery failed"))
	Error(err error)

	// Warning emits a warning message.
	// Example: out.Warning("model artifacts missing, using fallback scoring")
	Warning(message string)

	// Table emits tabular data with headers and rows.
	// Example: out.Table([]string{"Asset", "Risk"}, [][]string{{"example.com", "low"}})
	Table(headers []string, rows [][]string)

	// Progress emits a progress update.
	// Example: out.Progress(3, 12, "Enriching api.example.com")
	Progress(current, total int, message string)

	// Diag emits diagnostic information (only visible with -v/-vv/-vvv).
	// Example: out.Diag(LevelVerbose, "crt.sh hit", map[string]any{"names": 14})
	Diag(level OutputLevel, message string, metadata map[string]any)
}

type outputKey struct{}

// WithOutput returns a context carrying the output sink. Probes running
// deep inside the pipeline use it to surface live diagnostics without
// threading an Output parameter through every call.
func WithOutput(ctx context.Context, out Output) context.Context {
	return context.WithValue(ctx, outputKey{}, out)
}

// FromContext returns the context's output sink, if one is attached.
func FromContext(ctx context.Context) (Output, bool) {
	out, ok := ctx.Value(outputKey{}).(Output)
	return out, ok
}
