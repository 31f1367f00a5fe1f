// pkg/probe/probe.go
// Package probe implements the per-asset enrichment probes: TCP connect
// port scanning, HTTP surface inspection, TLS handshake inspection, DNS
// record lookups, certificate-transparency enumeration, breach-history
// lookup and optional ICMP liveness.
//
// Every probe carries its own timeout and reports failure through its error
// return; callers record absence instead of propagating. A probe observing
// nothing is not the same as a probe confirming a clean surface.
package probe

import (
	"context"

	"github.com/risktor/risktor/pkg/output"
)

// defaultUserAgent identifies the scanner to probed services when no
// user agent is configured.
const defaultUserAgent = "risktor-scanner/1.0"

// diag emits a diagnostic event when the context carries an output sink.
func diag(ctx context.Context, level output.OutputLevel, message string, metadata map[string]any) {
	if out, ok := output.FromContext(ctx); ok {
		out.Diag(level, message, metadata)
	}
}
