// pkg/config/config.go
package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Global Koanf instance, initialized once at startup.
var (
	k    *koanf.Koanf
	once sync.Once
)

// InitGlobalConfig initializes the global Koanf instance.
// This should be called early in the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = koanf.New(".")
	})
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex // To protect currentConfig during runtime updates
}

// NewManager creates a new Manager.
// It initializes the global Koanf instance if not already done.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{
		koanfInstance: k,
	}
}

// DefaultPortList is the fixed candidate port set for the port probe:
// the common remote-access, mail, web, file and database service ports.
const DefaultPortList = "21,22,23,25,80,110,143,443,445,993,995,1433,3306,3389,5432,6379,8080,8443"

// DefaultConfig returns a new Config struct populated with hardcoded default
// values. These serve as the baseline if no other source overrides them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1",
			Port: 8080,
			Jobs: JobsConfig{
				Enabled: true,
				Workers: 2,
				Queue:   64,
			},
			Timeout: ServerTimeoutCfg{
				Read:  15 * time.Second,
				Write: 60 * time.Second,
			},
		},
		Scan: ScanConfig{
			Concurrency: 8,
			Subdomains: SubdomainConfig{
				Enabled:    false,
				Max:        20,
				Wordlist:   "",
				CTLog:      true,
				Bruteforce: true,
			},
		},
		Probes: ProbesConfig{
			Ports: PortProbeConfig{
				List:        DefaultPortList,
				Timeout:     2 * time.Second,
				Concurrency: 50,
				Nmap:        false,
			},
			HTTP: HTTPProbeConfig{
				Timeout:   10 * time.Second,
				UserAgent: "risktor-scanner/1.0",
				MaxBody:   1 << 20, // 1 MiB
			},
			TLS: TLSProbeConfig{
				Timeout: 10 * time.Second,
			},
			DNS: DNSProbeConfig{
				Timeout: 5 * time.Second,
				Server:  "",
			},
			Breach: BreachProbeConfig{
				Enabled: true,
				URL:     "https://haveibeenpwned.com/api/v3",
				Timeout: 10 * time.Second,
			},
			Ping: PingProbeConfig{
				Enabled:    false,
				Count:      3,
				Timeout:    3 * time.Second,
				Privileged: false,
			},
		},
		Model: ModelConfig{
			Path: "",
		},
		Notify: NotifyConfig{
			Webhook: "",
			Timeout: 5 * time.Second,
			Level:   "critical",
		},
		Storage: StorageConfig{
			Root: "",
		},
	}
}

// Load loads configuration from the standard sources based on precedence.
// It populates the manager's currentConfig.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (--log.level=debug)
//  2. Environment variables (RISKTOR_LOG_LEVEL=debug)
//  3. Config file (YAML)
//  4. Default values
//
// Environment variables use the RISKTOR_ prefix and underscore-to-dot
// mapping:
//
//	RISKTOR_LOG_LEVEL          -> log.level
//	RISKTOR_PROBES_DNS_TIMEOUT -> probes.dns.timeout
//
// For custom source ordering, use LoadWithSources() instead.
func (m *Manager) Load(flags *pflag.FlagSet, customConfigFilePath string) error {
	// Check debug flag before creating sources
	debug := false
	if flags != nil {
		debugFlag := flags.Lookup("debug")
		if debugFlag != nil && debugFlag.Value.String() == "true" {
			debug = true
		}
	}

	sources := DefaultSources(customConfigFilePath, flags, debug)
	return m.LoadWithSources(sources)
}

// LoadWithSources loads configuration from the provided sources in priority
// order. Sources with lower priority values are loaded first, higher
// priority sources override lower priority values.
//
// This method allows custom source ordering and additional sources (e.g.
// secrets manager) to be inserted into the loading chain.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Sort sources by priority (lowest first)
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, src := range sources {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("error loading config from %s: %w", src.Name(), err)
		}
	}

	// Unmarshal the final merged configuration into m.currentConfig
	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	m.currentConfig = newCfg

	m.postProcessConfig()

	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfgCopy := m.currentConfig
	return cfgCopy
}

// GetValue retrieves a configuration value by key path.
// Example: GetValue("probes.ports.timeout")
// Returns nil if key doesn't exist.
func (m *Manager) GetValue(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Get(key)
}

// postProcessConfig normalizes values that arrive in inconvenient shapes:
// mixed-case level names from env vars, non-positive worker counts.
func (m *Manager) postProcessConfig() {
	m.currentConfig.Log.Level = strings.ToLower(strings.TrimSpace(m.currentConfig.Log.Level))
	m.currentConfig.Log.Format = strings.ToLower(strings.TrimSpace(m.currentConfig.Log.Format))

	if m.currentConfig.Scan.Concurrency < 1 {
		m.currentConfig.Scan.Concurrency = 1
	}
	if m.currentConfig.Server.Jobs.Workers < 1 {
		m.currentConfig.Server.Jobs.Workers = 1
	}
	if m.currentConfig.Probes.Ports.Concurrency < 1 {
		m.currentConfig.Probes.Ports.Concurrency = 1
	}
	if m.currentConfig.Scan.Subdomains.Max < 0 {
		m.currentConfig.Scan.Subdomains.Max = 0
	}
}

// DefaultConfigAsMap converts the DefaultConfig struct to a
// map[string]interface{} for Koanf's confmap.Provider. This is a bit manual
// but ensures Koanf knows all keys.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		// Log configuration
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		// Server configuration
		"server.addr":          def.Server.Addr,
		"server.port":          def.Server.Port,
		"server.jobs.enabled":  def.Server.Jobs.Enabled,
		"server.jobs.workers":  def.Server.Jobs.Workers,
		"server.jobs.queue":    def.Server.Jobs.Queue,
		"server.timeout.read":  def.Server.Timeout.Read,
		"server.timeout.write": def.Server.Timeout.Write,

		// Scan configuration
		"scan.concurrency":           def.Scan.Concurrency,
		"scan.subdomains.enabled":    def.Scan.Subdomains.Enabled,
		"scan.subdomains.max":        def.Scan.Subdomains.Max,
		"scan.subdomains.wordlist":   def.Scan.Subdomains.Wordlist,
		"scan.subdomains.ctlog":      def.Scan.Subdomains.CTLog,
		"scan.subdomains.bruteforce": def.Scan.Subdomains.Bruteforce,

		// Probe configuration
		"probes.ports.list":        def.Probes.Ports.List,
		"probes.ports.timeout":     def.Probes.Ports.Timeout,
		"probes.ports.concurrency": def.Probes.Ports.Concurrency,
		"probes.ports.nmap":        def.Probes.Ports.Nmap,
		"probes.http.timeout":      def.Probes.HTTP.Timeout,
		"probes.http.useragent":    def.Probes.HTTP.UserAgent,
		"probes.http.maxbody":      def.Probes.HTTP.MaxBody,
		"probes.tls.timeout":       def.Probes.TLS.Timeout,
		"probes.dns.timeout":       def.Probes.DNS.Timeout,
		"probes.dns.server":        def.Probes.DNS.Server,
		"probes.breach.enabled":    def.Probes.Breach.Enabled,
		"probes.breach.url":        def.Probes.Breach.URL,
		"probes.breach.timeout":    def.Probes.Breach.Timeout,
		"probes.ping.enabled":      def.Probes.Ping.Enabled,
		"probes.ping.count":        def.Probes.Ping.Count,
		"probes.ping.timeout":      def.Probes.Ping.Timeout,
		"probes.ping.privileged":   def.Probes.Ping.Privileged,

		// Model configuration
		"model.path": def.Model.Path,

		// Notify configuration
		"notify.webhook": def.Notify.Webhook,
		"notify.timeout": def.Notify.Timeout,
		"notify.level":   def.Notify.Level,

		// Storage configuration
		"storage.root": def.Storage.Root,
	}
}

// BindFlags defines command-line flags corresponding to configuration
// settings. These flags allow overriding config file / environment variable
// settings. This function should be called when setting up Cobra commands.
func BindFlags(flags *pflag.FlagSet) {
	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")

	// Note: The main --config / -c flag for specifying the config file path
	// is defined directly on the root Cobra command's PersistentFlags.
}
