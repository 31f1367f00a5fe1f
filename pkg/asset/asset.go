// Package asset defines the shared vocabulary of the risktor pipeline:
// discovered assets, enrichment results, detector findings and risk
// assessments. Every pipeline stage consumes and produces these types.
package asset

import (
	"fmt"
	"time"
)

// Type classifies how an asset relates to the scanned domain.
type Type string

const (
	TypeDomain    Type = "domain"
	TypeSubdomain Type = "subdomain"
	TypeIPAddress Type = "ip_address"
)

// IsValid reports whether the asset type is one of the known values.
func (t Type) IsValid() bool {
	switch t {
	case TypeDomain, TypeSubdomain, TypeIPAddress:
		return true
	default:
		return false
	}
}

// Severity defines the severity of a finding or risk level of an asset.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns a comparable weight for the severity (higher is worse).
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Asset is a single discovered surface: the root domain itself, a
// subdomain of it, or an IP address one of them resolves to.
// Identity fields are immutable once discovery has produced the asset.
type Asset struct {
	Value         string `json:"asset_value" yaml:"asset_value"`
	Type          Type   `json:"asset_type" yaml:"asset_type"`
	ParentDomain  string `json:"parent_domain,omitempty" yaml:"parent_domain,omitempty"`
	DiscoveredVia string `json:"discovered_via,omitempty" yaml:"discovered_via,omitempty"`
}

// Key returns the dedupe identity of the asset. Two assets with the same
// key are the same asset regardless of which source discovered them.
func (a Asset) Key() string {
	return fmt.Sprintf("%s|%s", a.Value, a.Type)
}

// Discovery source labels.
const (
	SourceUserInput     = "user_input"
	SourceCertLog       = "certificate_transparency"
	SourceWordlist      = "wordlist_bruteforce"
	SourceDNSResolution = "dns_resolution"
)

// TLSInfo captures TLS handshake metadata including certificate validity.
type TLSInfo struct {
	Issuer          string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Subject         string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	NotBefore       time.Time `json:"not_before,omitzero" yaml:"not_before,omitempty"`
	NotAfter        time.Time `json:"not_after,omitzero" yaml:"not_after,omitempty"`
	DaysUntilExpiry int       `json:"days_until_expiry" yaml:"days_until_expiry"`
	IsExpired       bool      `json:"is_expired" yaml:"is_expired"`
	IsSelfSigned    bool      `json:"is_self_signed" yaml:"is_self_signed"` // Subject == Issuer
	Version         string    `json:"version,omitempty" yaml:"version,omitempty"`
	CipherSuite     string    `json:"cipher_suite,omitempty" yaml:"cipher_suite,omitempty"`
}

// SecurityHeaderChecklist is the fixed set of HTTP response headers the
// pipeline checks for. Order is stable so derived output is deterministic.
var SecurityHeaderChecklist = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
}

// HTTPInfo captures the result of the HTTP surface probe.
type HTTPInfo struct {
	StatusCode int `json:"status_code" yaml:"status_code"`
	// Scheme is the scheme that answered: "https", or "http" after fallback.
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Server string `json:"server_header,omitempty" yaml:"server_header,omitempty"`
	// SecurityHeaders holds the checklist headers that were present,
	// keyed by canonical name.
	SecurityHeaders map[string]string `json:"security_headers,omitempty" yaml:"security_headers,omitempty"`
}

// MissingSecurityHeaders returns the checklist headers absent from the
// response, in checklist order.
func (h *HTTPInfo) MissingSecurityHeaders() []string {
	if h == nil {
		return nil
	}
	var missing []string
	for _, name := range SecurityHeaderChecklist {
		if _, ok := h.SecurityHeaders[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// HeaderScore returns the percentage (0-100) of checklist headers present.
func (h *HTTPInfo) HeaderScore() int {
	if h == nil {
		return 0
	}
	present := 0
	for _, name := range SecurityHeaderChecklist {
		if _, ok := h.SecurityHeaders[name]; ok {
			present++
		}
	}
	return present * 100 / len(SecurityHeaderChecklist)
}

// EnrichedAsset is an Asset plus everything the probes observed about it.
// Every enrichment field is optional: absence means the corresponding probe
// failed or does not apply to this surface, never "checked and clean".
type EnrichedAsset struct {
	Asset `yaml:",inline"`

	IPAddresses []string            `json:"ip_addresses,omitempty" yaml:"ip_addresses,omitempty"`
	OpenPorts   []int               `json:"open_ports,omitempty" yaml:"open_ports,omitempty"` // sorted ascending
	DNSRecords  map[string][]string `json:"dns_records,omitempty" yaml:"dns_records,omitempty"`
	TLS         *TLSInfo            `json:"tls_info,omitempty" yaml:"tls_info,omitempty"`
	HTTP        *HTTPInfo           `json:"http_info,omitempty" yaml:"http_info,omitempty"`
	// BreachCount is nil when the breach source was unreachable or not
	// queried, which is distinct from a confirmed zero.
	BreachCount  *int     `json:"breach_count,omitempty" yaml:"breach_count,omitempty"`
	Technologies []string `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	// Reachable is ICMP liveness for ip_address assets when the ping probe
	// is enabled. Informational only.
	Reachable *bool `json:"reachable,omitempty" yaml:"reachable,omitempty"`
}

// HasOpenPort reports whether the given port was observed open.
func (e *EnrichedAsset) HasOpenPort(port int) bool {
	for _, p := range e.OpenPorts {
		if p == port {
			return true
		}
	}
	return false
}

// Finding is a single misconfiguration observation from one detector.
type Finding struct {
	Detector    string   `json:"detector" yaml:"detector"`
	Category    string   `json:"category" yaml:"category"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
	Remediation string   `json:"remediation,omitempty" yaml:"remediation,omitempty"`
}

// Finding categories. The feature extractor counts findings per category,
// so these values are part of the scoring contract, not just labels.
const (
	CategoryDNS            = "dns"
	CategoryTLS            = "tls"
	CategoryHTTPHeaders    = "http_headers"
	CategoryExposure       = "exposure"
	CategoryCloudStorage   = "cloud_storage"
	CategorySensitiveFiles = "sensitive_files"
)

// Scoring method labels for RiskAssessment.Method.
const (
	MethodModel    = "model"
	MethodFallback = "fallback"
)

// RiskAssessment is the scored outcome for one asset in one scan run.
type RiskAssessment struct {
	Score      int      `json:"score" yaml:"score"` // 0-100
	Level      Severity `json:"level" yaml:"level"`
	Confidence float64  `json:"confidence" yaml:"confidence"` // 0-1
	Factors    []string `json:"factors,omitempty" yaml:"factors,omitempty"`
	Method     string   `json:"method" yaml:"method"`
}

// Record is the fully formed per-asset result handed to persistence:
// identity, enrichment, findings and assessment together. Risk is nil only
// when the asset pipeline failed and the asset was recorded minimally.
type Record struct {
	EnrichedAsset `yaml:",inline"`

	Findings []Finding       `json:"findings,omitempty" yaml:"findings,omitempty"`
	Risk     *RiskAssessment `json:"risk,omitempty" yaml:"risk,omitempty"`
	ScanID   string          `json:"scan_id,omitempty" yaml:"scan_id,omitempty"`
	// PipelineError is set when enrichment or analysis failed and the
	// record carries identity only.
	PipelineError string `json:"pipeline_error,omitempty" yaml:"pipeline_error,omitempty"`
}

// CountBySeverity tallies findings per severity level.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
