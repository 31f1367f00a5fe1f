package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/risktor/risktor/pkg/feature"
)

// Manifest is the on-disk model artifact: a fitted standard scaler and a
// linear classifier, both ordered exactly as feature.Names. Training
// happens offline; the scanner only ever reads this file.
type Manifest struct {
	Version    string     `yaml:"version"`
	Features   []string   `yaml:"features"`
	Scaler     Scaler     `yaml:"scaler"`
	Classifier Classifier `yaml:"classifier"`
}

// Scaler holds per-feature standardization parameters.
type Scaler struct {
	Mean  []float64 `yaml:"mean"`
	Scale []float64 `yaml:"scale"`
}

// Classifier holds the linear model.
type Classifier struct {
	Weights []float64 `yaml:"weights"`
	Bias    float64   `yaml:"bias"`
}

// Validate checks the artifact against the feature contract. A manifest
// whose feature list disagrees with feature.Names would produce plausible
// but wrong scores, so any mismatch is an error, never a warning.
func (m *Manifest) Validate() error {
	if len(m.Features) != feature.Count {
		return fmt.Errorf("model manifest: %d features, want %d", len(m.Features), feature.Count)
	}
	for i, name := range m.Features {
		if name != feature.Names[i] {
			return fmt.Errorf("model manifest: feature %d is %q, want %q", i, name, feature.Names[i])
		}
	}
	if len(m.Scaler.Mean) != feature.Count {
		return fmt.Errorf("model manifest: scaler mean has %d values, want %d", len(m.Scaler.Mean), feature.Count)
	}
	if len(m.Scaler.Scale) != feature.Count {
		return fmt.Errorf("model manifest: scaler scale has %d values, want %d", len(m.Scaler.Scale), feature.Count)
	}
	for i, scale := range m.Scaler.Scale {
		if scale == 0 {
			return fmt.Errorf("model manifest: scale[%d] is zero", i)
		}
	}
	if len(m.Classifier.Weights) != feature.Count {
		return fmt.Errorf("model manifest: classifier has %d weights, want %d", len(m.Classifier.Weights), feature.Count)
	}
	return nil
}

// LoadManifest reads and validates a model manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse model manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ScoringContext is the immutable, loaded form of a manifest. It is
// read-only after construction and safe for concurrent use across scans.
type ScoringContext struct {
	version string
	mean    []float64
	scale   []float64
	weights []float64
	bias    float64
}

// NewScoringContext validates the manifest and copies its parameters so
// later mutation of the manifest cannot reach a live scorer.
func NewScoringContext(m *Manifest) (*ScoringContext, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &ScoringContext{
		version: m.Version,
		mean:    append([]float64(nil), m.Scaler.Mean...),
		scale:   append([]float64(nil), m.Scaler.Scale...),
		weights: append([]float64(nil), m.Classifier.Weights...),
		bias:    m.Classifier.Bias,
	}, nil
}

// Version returns the artifact version string.
func (c *ScoringContext) Version() string { return c.version }
