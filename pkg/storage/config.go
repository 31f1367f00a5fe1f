package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultWorkspaceDirName is the directory created under the user's home
// when no workspace root is configured.
const DefaultWorkspaceDirName = ".risktor"

// DefaultFactory creates the Backend used by this build.
//
// The file-based backend registers itself here in an init function, so
// callers only need NewBackend. An alternative backend can override the
// factory before the first NewBackend call.
var DefaultFactory func(ctx context.Context, cfg *Config) (Backend, error)

// Config holds storage backend configuration.
type Config struct {
	// WorkspaceRoot is the directory holding all persisted scan data.
	WorkspaceRoot string

	// Retention controls automatic deletion of old scans.
	// Zero value disables retention (keep everything).
	Retention RetentionConfig
}

// RetentionConfig defines how long scan data is kept.
type RetentionConfig struct {
	// MaxAgeDays deletes scans older than this many days (0 = no age limit).
	MaxAgeDays int

	// MaxScans keeps at most this many scans per organization,
	// deleting the oldest first (0 = no count limit).
	MaxScans int
}

// IsEnabled reports whether any retention policy is active.
func (r RetentionConfig) IsEnabled() bool {
	return r.MaxAgeDays > 0 || r.MaxScans > 0
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if c == nil {
		return NewInvalidInputError("storage config is required", "Config")
	}
	if c.WorkspaceRoot == "" {
		return NewInvalidInputError("workspace root is required", "WorkspaceRoot")
	}
	if c.Retention.MaxAgeDays < 0 {
		return NewInvalidInputError("retention max age must not be negative", "Retention.MaxAgeDays")
	}
	if c.Retention.MaxScans < 0 {
		return NewInvalidInputError("retention max scans must not be negative", "Retention.MaxScans")
	}
	return nil
}

// DefaultConfig returns a configuration rooted at ~/.risktor.
func DefaultConfig() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return &Config{
		WorkspaceRoot: filepath.Join(home, DefaultWorkspaceDirName),
	}, nil
}

// NewBackend creates a storage backend from the given configuration.
// A nil cfg uses DefaultConfig.
func NewBackend(ctx context.Context, cfg *Config) (Backend, error) {
	if cfg == nil {
		var err error
		cfg, err = DefaultConfig()
		if err != nil {
			return nil, err
		}
	}
	if DefaultFactory == nil {
		return nil, errors.New("no storage backend registered")
	}
	return DefaultFactory(ctx, cfg)
}

type configContextKey struct{}

// WithConfig attaches a storage configuration to the context so commands
// resolve the same workspace without re-deriving it.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey{}, cfg)
}

// ConfigFromContext retrieves a storage configuration attached by WithConfig.
func ConfigFromContext(ctx context.Context) (*Config, bool) {
	cfg, ok := ctx.Value(configContextKey{}).(*Config)
	return cfg, ok
}
