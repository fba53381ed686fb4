// Package predict applies the frozen outcome model to a feature vector.
// Scoring is a single deterministic linear pass: identical vectors always
// yield identical scores.
package predict

import (
	"fmt"
	"math"

	"github.com/claimlens/claimlens/constants"
	"github.com/claimlens/claimlens/internal/artifact"
	"github.com/claimlens/claimlens/internal/features"
)

// NeutralScore is the midpoint fallback used when scoring cannot run.
const NeutralScore = 0.5

// Weights is the frozen logistic model, fit offline over historical claim
// outcomes and loaded once at process start.
type Weights struct {
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

func weightsSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"intercept": map[string]any{"type": "number"},
			"coefficients": map[string]any{
				"type":                 "object",
				"minProperties":        1,
				"additionalProperties": map[string]any{"type": "number"},
			},
		},
		"required": []string{"intercept", "coefficients"},
	}
}

// LoadWeights reads and schema-validates the predictor artifact.
func LoadWeights(path string) (*Weights, error) {
	var w Weights
	if err := artifact.LoadJSON(path, weightsSchema(), &w); err != nil {
		return nil, err
	}
	if len(w.Coefficients) == 0 {
		return nil, fmt.Errorf("predictor artifact: no coefficients")
	}
	return &w, nil
}

// Model is safe for concurrent use: inference reads the weights and
// mutates nothing.
type Model struct {
	w *Weights
}

func NewModel(w *Weights) *Model { return &Model{w: w} }

// Available reports whether weights are loaded. Consumed by the health endpoint.
func (m *Model) Available() bool { return m != nil && m.w != nil }

// Score returns the success likelihood in [0,1] for an encoded vector.
// Unknown coefficient names in the artifact contribute nothing; the
// builder guarantees the vector side is always fully populated.
func (m *Model) Score(v features.Vector) float64 {
	if m == nil || m.w == nil {
		return NeutralScore
	}
	enc := v.Encode()
	z := m.w.Intercept
	for name, coef := range m.w.Coefficients {
		z += coef * enc[name]
	}
	return 1 / (1 + math.Exp(-z))
}

// Confidence is a documentation-completeness heuristic on a 0-100 scale.
// It is deliberately not the model's own calibration: the underlying model
// is not probabilistic, so confidence tracks how well-evidenced the claim
// is, not how certain the model feels.
func Confidence(v features.Vector, policyMeaningful bool) float64 {
	score := 35.0
	if v.PoliceReport {
		score += 15
	}
	if v.FiledWithin24h {
		score += 10
	}
	if v.Witnesses {
		score += 10
	}
	if v.EvidenceCount > 0 {
		score += 10
	}
	if v.VisualDamage {
		score += 5
	}
	if v.HasDescription {
		score += 5
	}
	if v.DriverAge > 0 {
		score += 5
	}
	if policyMeaningful {
		score += 5
	}
	// anomaly indicators pull confidence down
	if v.UnknownLabelCount > 0 {
		score -= 10
	}
	// Other is the builder's bucket for incident labels it could not
	// canonicalize, which makes the claim harder to assess.
	if v.IncidentType == constants.Other {
		score -= 5
	}
	return math.Min(95, math.Max(5, score))
}

// KeyFactors renders the short human-readable drivers of the estimate.
func KeyFactors(v features.Vector) []string {
	var out []string
	if v.PoliceReport && v.FiledWithin24h {
		out = append(out, "Police report filed within 24 hours")
	} else if v.PoliceReport {
		out = append(out, "Police report filed")
	} else {
		out = append(out, "No police report on file")
	}
	if v.Witnesses {
		out = append(out, "Witnesses available")
	}
	if v.VisualDamage {
		out = append(out, "Visible damage confirmed in uploaded photos")
	} else if v.EvidenceCount > 0 {
		out = append(out, "Uploaded photos show no clear damage")
	}
	if v.Injuries {
		out = append(out, "Injuries reported")
	}
	if v.TrafficViolation {
		out = append(out, "Traffic violation cited against the driver")
	}
	if v.PreviousClaims >= 3 {
		out = append(out, fmt.Sprintf("%d previous claims on record", v.PreviousClaims))
	}
	if v.ThirdPartyVehicle {
		out = append(out, "Third-party vehicle involved")
	}
	if len(out) > 6 {
		out = out[:6]
	}
	return out
}
