// Package pipeline sequences the prediction stages: document text
// extraction, image classification, feature building, outcome scoring, and
// insight synthesis. Every stage failure is down-converted into that
// stage's documented fallback; a run always ends Complete with a usable
// Result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/claimlens/claimlens/constants"
	"github.com/claimlens/claimlens/internal/common"
	"github.com/claimlens/claimlens/internal/damage"
	"github.com/claimlens/claimlens/internal/docextract"
	"github.com/claimlens/claimlens/internal/features"
	"github.com/claimlens/claimlens/internal/insight"
	"github.com/claimlens/claimlens/internal/predict"
)

// confidence ceilings applied when a run is degraded enough that the
// documentation heuristic would overstate how much we know.
const (
	formDegradedConfidenceCap = 25.0
	noModelConfidenceCap      = 30.0
)

type Pipeline struct {
	extractor  *docextract.Extractor
	classifier *damage.Classifier
	model      *predict.Model
	provider   insight.Provider // may be nil: insights always fall back
	recorder   Recorder         // may be nil: auditing disabled
	logger     *slog.Logger

	maxParallelClassify int
}

type Option func(*Pipeline)

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func WithMaxParallelClassify(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxParallelClassify = n
		}
	}
}

// New wires the stage dependencies. Models are injected, not global: the
// pipeline holds read-only handles loaded once at process start.
func New(
	extractor *docextract.Extractor,
	classifier *damage.Classifier,
	model *predict.Model,
	provider insight.Provider,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		extractor:           extractor,
		classifier:          classifier,
		model:               model,
		provider:            provider,
		logger:              logger,
		maxParallelClassify: 4,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes the full pipeline for one submission. It never returns an
// error: the worst case is a fully degraded Result with a neutral score,
// low confidence, and the fallback narrative.
func (p *Pipeline) Run(ctx context.Context, sub Submission) Result {
	start := time.Now()
	runID := uuid.New().String()
	ctx = common.WithRunID(ctx, runID)

	var diags []string
	var degradedStages []string
	note := func(stage constants.RunState, reason string) {
		diags = append(diags, fmt.Sprintf("%s: %s", stage, reason))
		degradedStages = append(degradedStages, string(stage))
	}

	p.logger.Info("pipeline.run.start",
		"run_id", runID,
		"state", constants.RunReceived,
		"has_document", len(sub.PolicyDocument) > 0,
		"evidence_images", len(sub.EvidenceImages),
		"form_degraded", sub.FormDegraded,
	)
	if sub.FormDegraded {
		note(constants.RunReceived, "form data unreadable; defaults applied")
	}

	// Extracting
	policyOut := p.extract(ctx, sub.PolicyDocument)
	if policyOut.Degraded {
		note(constants.RunExtracting, policyOut.Reason)
	}
	policy := policyOut.Value

	// Classifying
	labelsOut := p.classify(ctx, sub.EvidenceImages)
	if labelsOut.Degraded {
		note(constants.RunClassifying, labelsOut.Reason)
	}
	labels := labelsOut.Value

	// FeatureBuilding: total over any form shape, no fallback branch needed.
	p.logger.Debug("pipeline.state", "run_id", runID, "state", constants.RunFeatureBuilding)
	vec := features.Build(sub.Form, sub.Description, labels)

	// Predicting
	scoreOut := p.score(vec)
	if scoreOut.Degraded {
		note(constants.RunPredicting, scoreOut.Reason)
	}
	prediction := math.Round(scoreOut.Value*1000) / 10 // 0-100, one decimal

	confidence := predict.Confidence(vec, policy.Meaningful)
	if scoreOut.Degraded {
		confidence = math.Min(confidence, noModelConfidenceCap)
	}
	if sub.FormDegraded {
		confidence = math.Min(confidence, formDegradedConfidenceCap)
	}

	var factors []string
	if !sub.FormDegraded {
		factors = predict.KeyFactors(vec)
	}

	// Synthesizing
	insightOut := p.synthesize(ctx, vec, sub.Description, policy, prediction)
	if insightOut.Degraded {
		note(constants.RunSynthesizing, insightOut.Reason)
	}

	res := Result{
		RunID:            runID,
		Prediction:       prediction,
		Confidence:       confidence,
		KeyFactors:       factors,
		Insights:         insightOut.Value,
		Diagnostics:      diags,
		ExtractionMethod: policy.Method,
		Labels:           labels,
		InsightFallback:  insightOut.Degraded,
		Elapsed:          time.Since(start),
	}

	p.logger.Info("pipeline.run.complete",
		"run_id", runID,
		"state", constants.RunComplete,
		"prediction", res.Prediction,
		"confidence", res.Confidence,
		"extraction_method", res.ExtractionMethod,
		"degraded_stages", len(degradedStages),
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)

	if p.recorder != nil {
		p.recorder.Record(p.record(res, vec, degradedStages))
	}
	return res
}

func (p *Pipeline) extract(ctx context.Context, doc []byte) Outcome[docextract.PolicyText] {
	p.logger.Debug("pipeline.state", "run_id", common.RunIDFromContext(ctx), "state", constants.RunExtracting)
	if len(doc) == 0 {
		return ok(docextract.PolicyText{Method: constants.MethodNone})
	}
	if p.extractor == nil {
		return degraded(docextract.PolicyText{Method: constants.MethodNone}, "extractor not configured")
	}
	res, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		// the PolicyText is still usable (empty, method none)
		return degraded(res, err.Error())
	}
	return ok(res)
}

// classify labels the evidence images, independently and in parallel.
// Per-image failures surface as unknown labels from the classifier itself;
// the stage only degrades when no classifier is loaded at all.
func (p *Pipeline) classify(ctx context.Context, imgs [][]byte) Outcome[[]damage.Label] {
	p.logger.Debug("pipeline.state", "run_id", common.RunIDFromContext(ctx), "state", constants.RunClassifying)
	if len(imgs) == 0 {
		return ok[[]damage.Label](nil)
	}
	if !p.classifier.Available() {
		labels := make([]damage.Label, len(imgs))
		for i := range labels {
			labels[i] = damage.Label{Class: constants.DamageUnknown}
		}
		return degraded(labels, "classifier unavailable; all images labeled unknown")
	}

	labels := make([]damage.Label, len(imgs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.maxParallelClassify)
	for i, img := range imgs {
		g.Go(func() error {
			labels[i] = p.classifier.Classify(img)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; unknown is the failure value

	return ok(labels)
}

func (p *Pipeline) score(vec features.Vector) Outcome[float64] {
	if !p.model.Available() {
		return degraded(predict.NeutralScore, "predictor unavailable; neutral score substituted")
	}
	return ok(p.model.Score(vec))
}

func (p *Pipeline) synthesize(ctx context.Context, vec features.Vector, description string, policy docextract.PolicyText, prediction float64) Outcome[string] {
	p.logger.Debug("pipeline.state", "run_id", common.RunIDFromContext(ctx), "state", constants.RunSynthesizing)
	if p.provider == nil {
		return degraded(insight.FallbackMessage, "no insight provider configured")
	}

	req := insight.Request{
		ClaimSummary:  insight.RenderClaimSummary(vec, description),
		PolicyExcerpt: policy.Text,
		Score:         &prediction,
	}
	resp, err := p.provider.Synthesize(ctx, req)
	if err != nil {
		return degraded(insight.FallbackMessage, err.Error())
	}
	return ok(resp.Text)
}

func (p *Pipeline) record(res Result, vec features.Vector, degradedStages []string) RunRecord {
	rec := RunRecord{
		RunID:            res.RunID,
		CreatedAt:        time.Now().UTC(),
		IncidentType:     string(vec.IncidentType),
		Prediction:       res.Prediction,
		Confidence:       res.Confidence,
		ExtractionMethod: string(res.ExtractionMethod),
		DegradedStages:   degradedStages,
		InsightFallback:  res.InsightFallback,
		ElapsedMS:        res.Elapsed.Milliseconds(),
	}
	for _, l := range res.Labels {
		switch l.Class {
		case constants.DamageDetected:
			rec.DamageImages++
		case constants.NoDamage:
			rec.NoDamageImages++
		default:
			rec.UnknownImages++
		}
	}
	return rec
}
