// Copyright 2025 Risktor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package output

import "time"

// DefaultOutput implements Output by stamping each call into an
// OutputEvent and emitting it on the stream. It holds no rendering state,
// so one instance can serve the whole run.
type DefaultOutput struct {
	stream *OutputEventStream
}

// NewDefaultOutput creates a DefaultOutput emitting to the given stream.
func NewDefaultOutput(stream *OutputEventStream) *DefaultOutput {
	return &DefaultOutput{stream: stream}
}

func (o *DefaultOutput) emit(ev OutputEvent) {
	ev.Timestamp = time.Now()
	o.stream.Emit(ev)
}

// Info implements Output.
func (o *DefaultOutput) Info(message string) {
	o.emit(OutputEvent{Type: EventInfo, Message: message})
}

// Error implements Output.
func (o *DefaultOutput) Error(err error) {
	o.emit(OutputEvent{Type: EventError, Message: err.Error()})
}

// Warning implements Output.
func (o *DefaultOutput) Warning(message string) {
	o.emit(OutputEvent{Type: EventWarning, Message: message})
}

// Table implements Output.
func (o *DefaultOutput) Table(headers []string, rows [][]string) {
	o.emit(OutputEvent{
		Type:  EventTable,
		Table: &TableData{Headers: headers, Rows: rows},
	})
}

// Progress implements Output.
func (o *DefaultOutput) Progress(current, total int, message string) {
	o.emit(OutputEvent{
		Type:     EventProgress,
		Message:  message,
		Progress: &ProgressData{Current: current, Total: total},
	})
}

// Diag implements Output.
func (o *DefaultOutput) Diag(level OutputLevel, message string, metadata map[string]any) {
	o.emit(OutputEvent{
		Type:     EventDiag,
		Level:    level,
		Message:  message,
		Metadata: metadata,
	})
}
