package pipeline

import (
	"time"

	"github.com/claimlens/claimlens/constants"
	"github.com/claimlens/claimlens/internal/damage"
)

// Submission is the unit of work: one prediction request. Immutable after
// creation and owned exclusively by a single pipeline run.
type Submission struct {
	Form           map[string]any
	Description    string
	PolicyDocument []byte   // optional
	EvidenceImages [][]byte // optional

	// FormDegraded marks that the boundary could not parse form_data_json.
	// The run still completes, with defaults everywhere and no key factors.
	FormDegraded bool
}

// Outcome is the tagged per-stage result: either the primary value or a
// documented fallback with the reason it was substituted. Stage failures
// travel through here instead of error returns, which keeps the
// graceful-degradation contract explicit.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

func ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

func degraded[T any](fallback T, reason string) Outcome[T] {
	return Outcome[T]{Value: fallback, Degraded: true, Reason: reason}
}

// Result is the final pipeline output. Every run produces one; there is no
// failure terminal state visible to the caller.
type Result struct {
	RunID      string
	Prediction float64 // 0-100
	Confidence float64 // 0-100
	KeyFactors []string
	Insights   string

	// Diagnostics carries the reasons for any degraded sub-fields.
	Diagnostics []string

	ExtractionMethod constants.ExtractionMethod
	Labels           []damage.Label
	InsightFallback  bool
	Elapsed          time.Duration
}

// RunRecord is the audit-trail row for one completed run. It carries
// aggregates only; claim contents are not persisted.
type RunRecord struct {
	RunID            string
	CreatedAt        time.Time
	IncidentType     string
	Prediction       float64
	Confidence       float64
	ExtractionMethod string
	DamageImages     int
	NoDamageImages   int
	UnknownImages    int
	DegradedStages   []string
	InsightFallback  bool
	ElapsedMS        int64
}

// Recorder receives completed run records. Implementations must not block
// the request path.
type Recorder interface {
	Record(rec RunRecord)
}
