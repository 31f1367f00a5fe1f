// Copyright 2025 Risktor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package subscribers

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/risktor/risktor/pkg/output"
)

// DiagnosticSubscriber renders diagnostic events to a writer (stderr in
// practice). It only handles EventDiag events at or below its configured
// verbosity level; everything else belongs to the formatters.
type DiagnosticSubscriber struct {
	maxLevel output.OutputLevel
	writer   io.Writer
}

// NewDiagnosticSubscriber creates a subscriber that shows diagnostics up to
// and including the given level.
func NewDiagnosticSubscriber(maxLevel output.OutputLevel, writer io.Writer) *DiagnosticSubscriber {
	return &DiagnosticSubscriber{
		maxLevel: maxLevel,
		writer:   writer,
	}
}

// Name returns the subscriber identifier.
func (s *DiagnosticSubscriber) Name() string {
	return "diagnostic-subscriber"
}

// ShouldHandle accepts diagnostic events within the verbosity budget.
func (s *DiagnosticSubscriber) ShouldHandle(event output.OutputEvent) bool {
	return event.Type == output.EventDiag && event.Level <= s.maxLevel
}

// Handle renders one diagnostic line:
//
//	[VERBOSE] 12:30:45 crt.sh hit names:14
func (s *DiagnosticSubscriber) Handle(event output.OutputEvent) {
	parts := []string{
		levelTag(event.Level),
		event.Timestamp.Format("15:04:05"),
		event.Message,
	}

	if len(event.Metadata) > 0 {
		keys := make([]string, 0, len(event.Metadata))
		for k := range event.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		kvs := make([]string, 0, len(keys))
		for _, k := range keys {
			kvs = append(kvs, fmt.Sprintf("%s:%v", k, event.Metadata[k]))
		}
		parts = append(parts, strings.Join(kvs, " "))
	}

	_, _ = fmt.Fprintln(s.writer, strings.Join(parts, " "))
}

func levelTag(level output.OutputLevel) string {
	switch level {
	case output.LevelVerbose:
		return "[VERBOSE]"
	case output.LevelDebug:
		return "[DEBUG]"
	case output.LevelTrace:
		return "[TRACE]"
	default:
		return "[INFO]"
	}
}
