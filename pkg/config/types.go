package config

import (
	"fmt"
	"time"
)

// Config is the merged application configuration. Field tags use the koanf
// key names; every path segment is a single word so the RISKTOR_* env
// mapping (underscore to dot) can reach any key.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Server  ServerConfig  `koanf:"server"`
	Scan    ScanConfig    `koanf:"scan"`
	Probes  ProbesConfig  `koanf:"probes"`
	Model   ModelConfig   `koanf:"model"`
	Notify  NotifyConfig  `koanf:"notify"`
	Storage StorageConfig `koanf:"storage"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
	File   string `koanf:"file"`   // empty = stderr
}

// ServerConfig configures the HTTP API and the in-process job runner.
type ServerConfig struct {
	Addr    string           `koanf:"addr"`
	Port    int              `koanf:"port"`
	Jobs    JobsConfig       `koanf:"jobs"`
	Timeout ServerTimeoutCfg `koanf:"timeout"`
}

// ListenAddr joins addr and port into a net/http listen address.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Addr, s.Port)
}

// JobsConfig controls the scan job runner embedded in serve mode.
type JobsConfig struct {
	Enabled bool `koanf:"enabled"`
	Workers int  `koanf:"workers"`
	Queue   int  `koanf:"queue"` // accepted-but-not-started buffer
}

// ServerTimeoutCfg holds HTTP server timeouts.
type ServerTimeoutCfg struct {
	Read  time.Duration `koanf:"read"`
	Write time.Duration `koanf:"write"`
}

// ScanConfig controls discovery scope and pipeline parallelism.
type ScanConfig struct {
	// Concurrency bounds how many asset pipelines run at once per scan.
	Concurrency int             `koanf:"concurrency"`
	Subdomains  SubdomainConfig `koanf:"subdomains"`
}

// SubdomainConfig controls subdomain enumeration during discovery.
type SubdomainConfig struct {
	// Enabled is the default when a request does not say either way.
	Enabled bool `koanf:"enabled"`
	// Max caps how many enumerated subdomains are carried into the scan.
	Max int `koanf:"max"`
	// Wordlist is an optional file of candidate labels; empty uses the
	// built-in list.
	Wordlist   string `koanf:"wordlist"`
	CTLog      bool   `koanf:"ctlog"`      // query certificate transparency
	Bruteforce bool   `koanf:"bruteforce"` // DNS wordlist brute-force
}

// ProbesConfig holds per-probe budgets. Every probe has its own timeout;
// one slow surface must not starve the others.
type ProbesConfig struct {
	Ports  PortProbeConfig   `koanf:"ports"`
	HTTP   HTTPProbeConfig   `koanf:"http"`
	TLS    TLSProbeConfig    `koanf:"tls"`
	DNS    DNSProbeConfig    `koanf:"dns"`
	Breach BreachProbeConfig `koanf:"breach"`
	Ping   PingProbeConfig   `koanf:"ping"`
}

// PortProbeConfig configures the TCP connect scan.
type PortProbeConfig struct {
	// List is a ParsePortString expression of candidate ports.
	List        string        `koanf:"list"`
	Timeout     time.Duration `koanf:"timeout"` // per-connection
	Concurrency int           `koanf:"concurrency"`
	// Nmap switches to the nmap library strategy when an nmap binary is
	// available. The connect scan remains the fallback.
	Nmap bool `koanf:"nmap"`
}

// HTTPProbeConfig configures the HTTP surface probe and the detectors that
// fetch well-known paths.
type HTTPProbeConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"useragent"`
	MaxBody   int64         `koanf:"maxbody"` // response body read cap, bytes
}

// TLSProbeConfig configures the TLS handshake probe.
type TLSProbeConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// DNSProbeConfig configures record lookups.
type DNSProbeConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	// Server is "host:port" of the resolver; empty uses the system
	// resolver configuration.
	Server string `koanf:"server"`
}

// BreachProbeConfig configures the breach-history lookup.
type BreachProbeConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"` // API base URL
	Timeout time.Duration `koanf:"timeout"`
}

// PingProbeConfig configures optional ICMP liveness for ip_address assets.
type PingProbeConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Count      int           `koanf:"count"`
	Timeout    time.Duration `koanf:"timeout"`
	Privileged bool          `koanf:"privileged"`
}

// ModelConfig points at the scoring artifact manifest. An empty path means
// no artifacts are configured and the scorer runs in rule-based fallback.
type ModelConfig struct {
	Path string `koanf:"path"`
}

// NotifyConfig configures the post-scan high-risk notification hook.
type NotifyConfig struct {
	Webhook string        `koanf:"webhook"` // empty = log-only notifier
	Timeout time.Duration `koanf:"timeout"`
	Level   string        `koanf:"level"` // minimum level that triggers notification
}

// StorageConfig overrides where the scan workspace lives.
type StorageConfig struct {
	Root string `koanf:"root"` // empty = platform default
}
