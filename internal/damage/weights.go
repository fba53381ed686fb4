package damage

import (
	"fmt"

	"github.com/claimlens/claimlens/internal/artifact"
)

// featureCount is fixed by extractFeatures in classifier.go; the artifact
// must match it exactly.
const featureCount = 16

// Weights is the frozen two-class linear head. Fit offline; loaded once at
// process start and shared read-only across concurrent runs.
type Weights struct {
	InputSize   int         `json:"input_size"`
	Classes     []string    `json:"classes"`
	FeatureMean []float64   `json:"feature_mean"`
	FeatureStd  []float64   `json:"feature_std"`
	Coef        [][]float64 `json:"coef"`
	Bias        []float64   `json:"bias"`
}

func weightsSchema() map[string]any {
	vec := func(n int) map[string]any {
		return map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "number"},
			"minItems": n,
			"maxItems": n,
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"input_size": map[string]any{"type": "integer", "minimum": 8},
			"classes": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 2,
				"maxItems": 2,
			},
			"feature_mean": vec(featureCount),
			"feature_std":  vec(featureCount),
			"coef": map[string]any{
				"type":     "array",
				"items":    vec(featureCount),
				"minItems": 2,
				"maxItems": 2,
			},
			"bias": vec(2),
		},
		"required": []string{"input_size", "classes", "feature_mean", "feature_std", "coef", "bias"},
	}
}

// LoadWeights reads and schema-validates the classifier artifact.
func LoadWeights(path string) (*Weights, error) {
	var w Weights
	if err := artifact.LoadJSON(path, weightsSchema(), &w); err != nil {
		return nil, err
	}
	for i, s := range w.FeatureStd {
		if s == 0 {
			return nil, fmt.Errorf("classifier artifact: feature_std[%d] is zero", i)
		}
	}
	return &w, nil
}
