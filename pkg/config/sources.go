package config

import (
	"fmt"
	"os"
	"strings"

	yamlparser "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix for configuration environment variables.
// RISKTOR_LOG_LEVEL maps to log.level, RISKTOR_PROBES_DNS_TIMEOUT to
// probes.dns.timeout, and so on.
const EnvPrefix = "RISKTOR_"

// DefaultConfigFileName is probed in the working directory when no explicit
// config file path is given.
const DefaultConfigFileName = "risktor.yaml"

// ConfigSource is one layer in the configuration loading chain. Sources are
// applied in ascending Priority order; later loads override earlier keys.
type ConfigSource interface {
	// Name identifies the source in error messages.
	Name() string
	// Priority orders the source in the chain (lower loads first).
	Priority() int
	// Load merges the source's keys into the koanf instance.
	Load(k *koanf.Koanf) error
}

// Source priorities. Gaps leave room for callers inserting custom sources
// via LoadWithSources.
const (
	PriorityDefaults = 0
	PriorityFile     = 10
	PriorityEnv      = 20
	PriorityFlags    = 30
	PriorityOverride = 40
)

type defaultsSource struct{}

func (defaultsSource) Name() string  { return "defaults" }
func (defaultsSource) Priority() int { return PriorityDefaults }

func (defaultsSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil)
}

type fileSource struct {
	path string
	// optional suppresses the error when the file does not exist, used for
	// the implicit ./risktor.yaml probe.
	optional bool
}

func (s fileSource) Name() string  { return "file:" + s.path }
func (s fileSource) Priority() int { return PriorityFile }

func (s fileSource) Load(k *koanf.Koanf) error {
	if s.path == "" {
		return nil
	}
	if _, err := os.Stat(s.path); err != nil {
		if s.optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config file %s: %w", s.path, err)
	}
	return k.Load(file.Provider(s.path), yamlparser.Parser())
}

type envSource struct {
	prefix string
}

func (s envSource) Name() string  { return "env:" + s.prefix + "*" }
func (s envSource) Priority() int { return PriorityEnv }

func (s envSource) Load(k *koanf.Koanf) error {
	return k.Load(env.Provider(s.prefix, ".", func(key string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, s.prefix)), "_", ".")
	}), nil)
}

type flagSource struct {
	flags *pflag.FlagSet
}

func (s flagSource) Name() string  { return "flags" }
func (s flagSource) Priority() int { return PriorityFlags }

func (s flagSource) Load(k *koanf.Koanf) error {
	if s.flags == nil {
		return nil
	}
	// Passing k makes posflag skip unchanged flags whose keys are already
	// set, so flag defaults do not stomp file or env values.
	return k.Load(posflag.Provider(s.flags, ".", k), nil)
}

// overrideSource force-sets individual keys at the top of the chain.
type overrideSource struct {
	name string
	keys map[string]any
}

func (s overrideSource) Name() string  { return s.name }
func (s overrideSource) Priority() int { return PriorityOverride }

func (s overrideSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(s.keys, "."), nil)
}

// DefaultSources builds the standard loading chain:
//
//	defaults < config file < RISKTOR_* env < flags [< debug override]
//
// An explicit configFile must exist; when it is empty the default file name
// is probed in the working directory and silently skipped if absent.
func DefaultSources(configFile string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	fs := fileSource{path: configFile}
	if configFile == "" {
		fs = fileSource{path: DefaultConfigFileName, optional: true}
	}

	sources := []ConfigSource{
		defaultsSource{},
		fs,
		envSource{prefix: EnvPrefix},
		flagSource{flags: flags},
	}
	if debug {
		sources = append(sources, overrideSource{
			name: "debug-override",
			keys: map[string]any{"log.level": "debug"},
		})
	}
	return sources
}
