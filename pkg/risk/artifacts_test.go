// pkg/risk/artifacts_test.go
package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/feature"
)

const validManifestYAML = `version: "2025.08.1"
features:
  - open_ports_count
  - has_ssh_open
  - has_rdp_open
  - has_database_ports_open
  - ssl_days_until_expiry
  - ssl_cert_is_self_signed
  - outdated_software_count
  - breach_history_count
  - http_security_headers_score
  - exposure_type_score
  - dns_misconfig_count
scaler:
  mean:  [2.1, 0.2, 0.05, 0.12, 4100.0, 0.08, 0.3, 0.4, 35.0, 1.9, 0.6]
  scale: [2.8, 0.4, 0.21, 0.32, 4480.0, 0.27, 0.8, 1.1, 30.0, 0.9, 1.0]
classifier:
  weights: [0.42, 0.31, 0.55, 0.83, -0.38, 0.29, 0.44, 0.2, -0.52, 0.35, 0.3]
  bias: -0.25
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "risk_model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, validManifestYAML))
	require.NoError(t, err)
	require.Equal(t, "2025.08.1", m.Version)
	require.Len(t, m.Features, feature.Count)
	require.Equal(t, -0.25, m.Classifier.Bias)

	ctx, err := NewScoringContext(m)
	require.NoError(t, err)
	require.Equal(t, "2025.08.1", ctx.Version())
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadManifestMalformedYAML(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "version: [unclosed"))
	require.Error(t, err)
}

func TestManifestValidate(t *testing.T) {
	base := func() *Manifest {
		m, err := LoadManifest(writeManifest(t, validManifestYAML))
		require.NoError(t, err)
		return m
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("feature count", func(t *testing.T) {
		m := base()
		m.Features = m.Features[:feature.Count-1]
		require.ErrorContains(t, m.Validate(), "features")
	})

	t.Run("feature order", func(t *testing.T) {
		m := base()
		m.Features[0], m.Features[1] = m.Features[1], m.Features[0]
		require.ErrorContains(t, m.Validate(), "feature 0")
	})

	t.Run("mean length", func(t *testing.T) {
		m := base()
		m.Scaler.Mean = m.Scaler.Mean[:3]
		require.ErrorContains(t, m.Validate(), "mean")
	})

	t.Run("zero scale", func(t *testing.T) {
		m := base()
		m.Scaler.Scale[4] = 0
		require.ErrorContains(t, m.Validate(), "scale[4]")
	})

	t.Run("weights length", func(t *testing.T) {
		m := base()
		m.Classifier.Weights = append(m.Classifier.Weights, 0.1)
		require.ErrorContains(t, m.Validate(), "weights")
	})
}

func TestScoringContextCopiesParameters(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, validManifestYAML))
	require.NoError(t, err)

	ctx, err := NewScoringContext(m)
	require.NoError(t, err)

	scorer := NewScorer(ctx)
	var v feature.Vector
	before := scorer.Score(v)

	// Mutating the manifest after construction must not change scores.
	m.Classifier.Weights[0] = 99
	m.Scaler.Mean[0] = -99
	require.Equal(t, before, scorer.Score(v))
}
