package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/claimlens/claimlens/constants"
	"github.com/claimlens/claimlens/internal/damage"
	"github.com/claimlens/claimlens/internal/insight"
	"github.com/claimlens/claimlens/internal/predict"
)

type stubProvider struct {
	text string
	err  error
	reqs []insight.Request
}

func (s *stubProvider) Name() string                        { return "stub" }
func (s *stubProvider) IsAvailable(_ context.Context) bool  { return s.err == nil }
func (s *stubProvider) Synthesize(_ context.Context, req insight.Request) (*insight.Response, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &insight.Response{Text: s.text, Model: "stub"}, nil
}

type captureRecorder struct {
	recs []RunRecord
}

func (c *captureRecorder) Record(rec RunRecord) { c.recs = append(c.recs, rec) }

func testModel() *predict.Model {
	return predict.NewModel(&predict.Weights{
		Intercept: -0.5,
		Coefficients: map[string]float64{
			"police_report":     1.2,
			"filed_within_24h":  0.8,
			"witnesses":         0.5,
			"visual_damage":     0.6,
			"traffic_violation": -1.5,
			"previous_claims":   -2.0,
		},
	})
}

func testClassifier() *damage.Classifier {
	w := &damage.Weights{
		InputSize:   64,
		Classes:     []string{string(constants.DamageDetected), string(constants.NoDamage)},
		FeatureMean: make([]float64, 16),
		FeatureStd:  make([]float64, 16),
		Coef:        [][]float64{make([]float64, 16), make([]float64, 16)},
		Bias:        []float64{0, 1.0},
	}
	for i := range w.FeatureStd {
		w.FeatureStd[i] = 1
	}
	for i := 6; i < 15; i++ {
		w.Coef[0][i] = 8
	}
	return damage.NewClassifier(w, nil)
}

func pngBytes(t *testing.T, textured bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 128; x++ {
			c := color.RGBA{R: 130, G: 130, B: 130, A: 255}
			if textured && (x/2+y/2)%2 == 0 {
				c = color.RGBA{R: 5, G: 5, B: 5, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func wellFormedSubmission(t *testing.T) Submission {
	t.Helper()
	return Submission{
		Form: map[string]any{
			"incidentType":                "Collision",
			"policeReport":                true,
			"policeReportFiledWithin24h":  "yes",
			"witnesses":                   true,
			"driverAge":                   34,
			"vehicleAge":                  3,
			"timeOfDay":                   "day",
		},
		Description:    "Rear bumper hit at a junction, other driver admitted fault.",
		EvidenceImages: [][]byte{pngBytes(t, true)},
	}
}

func TestRunWellFormed(t *testing.T) {
	prov := &stubProvider{text: "Coverage is likely; submit the police report copy promptly."}
	rec := &captureRecorder{}
	p := New(nil, testClassifier(), testModel(), prov, nil, WithRecorder(rec))

	res := p.Run(context.Background(), wellFormedSubmission(t))

	if res.RunID == "" {
		t.Error("empty run id")
	}
	if res.Prediction < 0 || res.Prediction > 100 {
		t.Errorf("prediction = %v, want in [0,100]", res.Prediction)
	}
	if res.Confidence < 5 || res.Confidence > 95 {
		t.Errorf("confidence = %v, want in [5,95]", res.Confidence)
	}
	if len(res.KeyFactors) == 0 {
		t.Error("expected key factors for a documented claim")
	}
	if res.InsightFallback || res.Insights != prov.text {
		t.Errorf("insights = %q (fallback=%v)", res.Insights, res.InsightFallback)
	}
	if len(res.Labels) != 1 || res.Labels[0].Class != constants.DamageDetected {
		t.Errorf("labels = %+v, want one damage label", res.Labels)
	}

	if len(rec.recs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(rec.recs))
	}
	got := rec.recs[0]
	if got.RunID != res.RunID || got.DamageImages != 1 || got.IncidentType != string(constants.Collision) {
		t.Errorf("record = %+v", got)
	}
}

func TestRunFullyDegraded(t *testing.T) {
	// Nothing works: unreadable form, no models, no provider, a document
	// with no configured extractor, and garbage image bytes. The run must
	// still complete with the documented fallbacks.
	p := New(nil, nil, nil, nil, nil)

	res := p.Run(context.Background(), Submission{
		FormDegraded:   true,
		PolicyDocument: []byte("%PDF-1.4 pretend"),
		EvidenceImages: [][]byte{[]byte("not an image")},
	})

	if res.Prediction != 50 {
		t.Errorf("prediction = %v, want neutral 50", res.Prediction)
	}
	if res.Confidence > 25 {
		t.Errorf("confidence = %v, want capped at 25 for unreadable form", res.Confidence)
	}
	if res.KeyFactors != nil {
		t.Errorf("key factors = %v, want none when the form is unreadable", res.KeyFactors)
	}
	if res.Insights != insight.FallbackMessage || !res.InsightFallback {
		t.Errorf("insights = %q, want fallback message", res.Insights)
	}
	if res.ExtractionMethod != constants.MethodNone {
		t.Errorf("extraction method = %s, want %s", res.ExtractionMethod, constants.MethodNone)
	}
	if len(res.Diagnostics) == 0 {
		t.Error("expected diagnostics for degraded stages")
	}
}

func TestRunDeterministicNumbers(t *testing.T) {
	prov := &stubProvider{text: "steady"}
	p := New(nil, testClassifier(), testModel(), prov, nil)
	sub := wellFormedSubmission(t)

	first := p.Run(context.Background(), sub)
	for i := 0; i < 3; i++ {
		got := p.Run(context.Background(), sub)
		if got.Prediction != first.Prediction || got.Confidence != first.Confidence {
			t.Fatalf("run %d: prediction/confidence %v/%v, want %v/%v",
				i, got.Prediction, got.Confidence, first.Prediction, first.Confidence)
		}
		if diff := cmp.Diff(first.KeyFactors, got.KeyFactors); diff != "" {
			t.Fatalf("key factors changed between runs (-first +got):\n%s", diff)
		}
	}
}

func TestRunInsightFailureKeepsNumbers(t *testing.T) {
	okProv := &stubProvider{text: "fine"}
	badProv := &stubProvider{err: errors.New("rate limited")}
	sub := wellFormedSubmission(t)

	okRes := New(nil, testClassifier(), testModel(), okProv, nil).Run(context.Background(), sub)
	badRes := New(nil, testClassifier(), testModel(), badProv, nil).Run(context.Background(), sub)

	if badRes.Insights != insight.FallbackMessage || !badRes.InsightFallback {
		t.Errorf("insights = %q, want fallback after provider error", badRes.Insights)
	}
	if badRes.Prediction != okRes.Prediction || badRes.Confidence != okRes.Confidence {
		t.Errorf("numbers changed with insight failure: %v/%v vs %v/%v",
			badRes.Prediction, badRes.Confidence, okRes.Prediction, okRes.Confidence)
	}
}

func TestRunClassifiesInSubmissionOrder(t *testing.T) {
	p := New(nil, testClassifier(), testModel(), nil, nil, WithMaxParallelClassify(2))

	sub := wellFormedSubmission(t)
	sub.EvidenceImages = [][]byte{
		pngBytes(t, true),        // damage
		pngBytes(t, false),       // no_damage
		[]byte("corrupt upload"), // unknown
		pngBytes(t, true),        // damage
	}

	res := p.Run(context.Background(), sub)

	want := []constants.DamageClass{
		constants.DamageDetected,
		constants.NoDamage,
		constants.DamageUnknown,
		constants.DamageDetected,
	}
	if len(res.Labels) != len(want) {
		t.Fatalf("got %d labels, want %d", len(res.Labels), len(want))
	}
	for i, w := range want {
		if res.Labels[i].Class != w {
			t.Errorf("label[%d] = %s, want %s", i, res.Labels[i].Class, w)
		}
	}
}

func TestRunPromptCarriesClaimContext(t *testing.T) {
	prov := &stubProvider{text: "ok"}
	p := New(nil, testClassifier(), testModel(), prov, nil)

	p.Run(context.Background(), wellFormedSubmission(t))

	if len(prov.reqs) != 1 {
		t.Fatalf("provider called %d times, want 1", len(prov.reqs))
	}
	req := prov.reqs[0]
	if !strings.Contains(req.ClaimSummary, "Incident type: Collision") {
		t.Errorf("claim summary missing incident type:\n%s", req.ClaimSummary)
	}
	if req.Score == nil {
		t.Error("expected the score to reach the provider")
	}
}
