// pkg/risk/scorer.go
// Package risk scores feature vectors into 0-100 risk assessments. Two
// paths share the same vector, bucket thresholds and factor extraction:
// the model path standardizes and applies a linear classifier, and the
// rule-based fallback keeps scans flowing when artifacts are absent or
// broken.
package risk

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/feature"
)

// Scorer maps feature vectors to assessments. Safe for concurrent use.
type Scorer struct {
	model  *ScoringContext
	logger zerolog.Logger
}

// NewScorer returns a scorer backed by the given context, or the rule-based
// fallback when model is nil.
func NewScorer(model *ScoringContext) *Scorer {
	return &Scorer{
		model:  model,
		logger: log.With().Str("component", "risk").Logger(),
	}
}

// New loads the manifest at path and returns a model-backed scorer. Any
// artifact problem, a missing path included, degrades to the rule-based
// fallback with a warning; scoring never blocks a scan.
func New(path string) *Scorer {
	if path == "" {
		log.Debug().Msg("no model path configured, using rule-based scoring")
		return NewScorer(nil)
	}
	m, err := LoadManifest(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("model artifacts unavailable, using rule-based scoring")
		return NewScorer(nil)
	}
	ctx, err := NewScoringContext(m)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("model artifacts invalid, using rule-based scoring")
		return NewScorer(nil)
	}
	log.Info().Str("model_version", m.Version).Str("path", path).Msg("risk model loaded")
	return NewScorer(ctx)
}

// Method reports which scoring path this scorer uses.
func (s *Scorer) Method() string {
	if s.model != nil {
		return asset.MethodModel
	}
	return asset.MethodFallback
}

// Score turns one feature vector into an assessment. Identical input and
// artifacts produce bit-identical output.
func (s *Scorer) Score(v feature.Vector) asset.RiskAssessment {
	if s.model != nil {
		if ra, ok := s.scoreModel(v); ok {
			return ra
		}
	}
	return s.scoreFallback(v)
}

func (s *Scorer) scoreModel(v feature.Vector) (asset.RiskAssessment, bool) {
	c := s.model
	if len(c.mean) != feature.Count || len(c.scale) != feature.Count || len(c.weights) != feature.Count {
		s.logger.Error().Msg("model artifact length does not match the feature contract, falling back")
		return asset.RiskAssessment{}, false
	}

	z := c.bias
	for i, x := range v {
		z += c.weights[i] * ((x - c.mean[i]) / c.scale[i])
	}
	p := sigmoid(z)
	score := clampScore(int(math.Round(p * 100)))

	return asset.RiskAssessment{
		Score:      score,
		Level:      LevelForScore(score),
		Confidence: p,
		Factors:    factors(v),
		Method:     asset.MethodModel,
	}, true
}

func (s *Scorer) scoreFallback(v feature.Vector) asset.RiskAssessment {
	score := fallbackScore(v)
	return asset.RiskAssessment{
		Score:      score,
		Level:      LevelForScore(score),
		Confidence: float64(score) / 100,
		Factors:    factors(v),
		Method:     asset.MethodFallback,
	}
}

// LevelForScore maps a 0-100 score to its severity bucket.
func LevelForScore(score int) asset.Severity {
	switch {
	case score >= 86:
		return asset.SeverityCritical
	case score >= 61:
		return asset.SeverityHigh
	case score >= 31:
		return asset.SeverityMedium
	default:
		return asset.SeverityLow
	}
}

// fallbackScore is the hand-set rule weighting over the feature vector.
// The weights are fixed; tuning happens in the model, not here.
func fallbackScore(v feature.Vector) int {
	total := math.Min(v[0]*3, 30) // open ports

	if v[1] == 1 { // ssh
		total += 15
	}
	if v[2] == 1 { // rdp
		total += 25
	}
	if v[3] == 1 { // database port
		total += 30
	}
	switch {
	case v[4] < 0: // expired certificate
		total += 35
	case v[4] < 30: // expiring soon (9999 sentinel never lands here)
		total += 20
	}
	if v[5] == 1 { // self-signed
		total += 10
	}
	total += v[6] * 8           // outdated technologies
	total += v[7] * 5           // breaches
	total += 0.2 * (100 - v[8]) // header hygiene
	total += v[10] * 4          // dns misconfigurations

	return clampScore(int(math.Round(total)))
}

// factors lists the human-readable reasons behind a score, in fixed order.
func factors(v feature.Vector) []string {
	var out []string
	if v[1] == 1 {
		out = append(out, "open_port_22")
	}
	if v[2] == 1 {
		out = append(out, "open_port_3389_rdp")
	}
	if v[3] == 1 {
		out = append(out, "exposed_database")
	}
	if v[4] < 0 {
		out = append(out, "expired_ssl_certificate")
	}
	if v[5] == 1 {
		out = append(out, "self_signed_certificate")
	}
	if v[6] > 0 {
		out = append(out, "outdated_software")
	}
	if v[7] > 0 {
		out = append(out, "breach_history")
	}
	if v[8] < 60 {
		out = append(out, "missing_security_headers")
	}
	if v[10] > 0 {
		out = append(out, "dns_misconfiguration")
	}
	return out
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
