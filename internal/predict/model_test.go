package predict

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/claimlens/claimlens/internal/features"
)

func testModel() *Model {
	return NewModel(&Weights{
		Intercept: -0.4,
		Coefficients: map[string]float64{
			"police_report":     0.9,
			"filed_within_24h":  0.5,
			"witnesses":         0.6,
			"visual_damage":     0.7,
			"damage_confidence": 0.3,
			"traffic_violation": -0.8,
			"previous_claims":   -0.9,
			"injuries":          0.2,
			"has_description":   0.2,
		},
	})
}

func wellDocumentedClaim() features.Vector {
	return features.Build(map[string]any{
		"incidentType":               "Collision",
		"driver_age":                 float64(28),
		"vehicle_age":                float64(3),
		"policeReport":               "yes",
		"policeReportFiledWithin24h": float64(1),
		"witnesses":                  "yes",
	}, "rear-ended at a junction", nil)
}

func TestScoreDeterminism(t *testing.T) {
	m := testModel()
	v := wellDocumentedClaim()

	first := m.Score(v)
	for i := 0; i < 10; i++ {
		if got := m.Score(v); got != first {
			t.Fatalf("run %d: score %v != %v", i, got, first)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	m := testModel()
	for _, v := range []features.Vector{
		{},
		wellDocumentedClaim(),
		features.Build(map[string]any{"trafficViolation": true, "previousClaims": float64(10)}, "", nil),
	} {
		s := m.Score(v)
		if s < 0 || s > 1 {
			t.Errorf("score %v out of [0,1] for %+v", s, v)
		}
	}
}

func TestScoreOrdering(t *testing.T) {
	m := testModel()

	strong := m.Score(wellDocumentedClaim())
	weak := m.Score(features.Build(map[string]any{
		"incidentType":     "Collision",
		"trafficViolation": "yes",
		"previousClaims":   float64(8),
	}, "", nil))

	if strong <= weak {
		t.Errorf("well-documented claim (%v) should outscore violation-laden claim (%v)", strong, weak)
	}
}

func TestNilModelReturnsNeutral(t *testing.T) {
	var m *Model
	if got := m.Score(wellDocumentedClaim()); got != NeutralScore {
		t.Errorf("score = %v, want neutral %v", got, NeutralScore)
	}
}

func TestConfidenceHeuristic(t *testing.T) {
	full := Confidence(wellDocumentedClaim(), true)
	if full <= 70 {
		t.Errorf("well-documented claim confidence = %v, want > 70", full)
	}

	bare := Confidence(features.Vector{}, false)
	if bare >= full {
		t.Errorf("bare claim confidence %v should be below %v", bare, full)
	}
	if bare < 5 || bare > 95 {
		t.Errorf("confidence %v out of clamp range", bare)
	}
}

func TestConfidencePenalizesUnrecognizedIncident(t *testing.T) {
	known := Confidence(features.Build(map[string]any{"incidentType": "Collision"}, "", nil), false)
	// canonicalizes to Other
	unknown := Confidence(features.Build(map[string]any{"incidentType": "meteor strike"}, "", nil), false)

	if unknown >= known {
		t.Errorf("unrecognized incident confidence %v should be below recognized %v", unknown, known)
	}
}

func TestKeyFactors(t *testing.T) {
	v := wellDocumentedClaim()
	factors := KeyFactors(v)

	want := map[string]bool{
		"Police report filed within 24 hours": false,
		"Witnesses available":                 false,
	}
	for _, f := range factors {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, seen := range want {
		if !seen {
			t.Errorf("missing key factor %q in %v", f, factors)
		}
	}
}

func TestLoadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictor.json")
	blob := `{"intercept": -0.2, "coefficients": {"police_report": 0.8}}`
	if err := os.WriteFile(path, []byte(blob), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if w.Coefficients["police_report"] != 0.8 {
		t.Errorf("unexpected weights: %+v", w)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"intercept": "oops"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWeights(bad); err == nil {
		t.Fatal("expected schema error for malformed artifact")
	}
}
