// Copyright 2025 Risktor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package subscribers

import (
	"encoding/json"
	"io"
	"time"

	"github.com/risktor/risktor/pkg/output"
)

// jsonEvent is the wire shape of one rendered event: one JSON object per
// line, payload fields omitted when absent.
type jsonEvent struct {
	Type      output.OutputEventType `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Message   string                 `json:"message,omitempty"`
	Table     *output.TableData      `json:"table,omitempty"`
	Progress  *output.ProgressData   `json:"progress,omitempty"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
}

// JSONFormatter renders events as JSON Lines for machine consumption.
type JSONFormatter struct {
	encoder *json.Encoder
}

// NewJSONFormatter creates a new JSONFormatter subscriber.
func NewJSONFormatter(writer io.Writer) *JSONFormatter {
	// No indentation: compact JSON Lines, one object per line
	return &JSONFormatter{encoder: json.NewEncoder(writer)}
}

// Name returns the subscriber identifier.
func (s *JSONFormatter) Name() string {
	return "json-formatter"
}

// ShouldHandle accepts everything except diagnostics, which belong to the
// DiagnosticSubscriber.
func (s *JSONFormatter) ShouldHandle(event output.OutputEvent) bool {
	return event.Type != output.EventDiag
}

// Handle renders one event as a JSON line. Encoding failures (e.g. a
// broken pipe) drop the event; output must never break the pipeline.
func (s *JSONFormatter) Handle(event output.OutputEvent) {
	_ = s.encoder.Encode(jsonEvent{
		Type:      event.Type,
		Timestamp: event.Timestamp.Format(time.RFC3339),
		Message:   event.Message,
		Table:     event.Table,
		Progress:  event.Progress,
		Metadata:  event.Metadata,
	})
}
