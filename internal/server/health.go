package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/claimlens/claimlens/internal/damage"
	"github.com/claimlens/claimlens/internal/docextract"
	"github.com/claimlens/claimlens/internal/insight"
	"github.com/claimlens/claimlens/internal/predict"
)

// HealthCheckers carries the per-stage availability probes. Any member may
// be nil; a nil stage reports false without failing the endpoint.
type HealthCheckers struct {
	Extractor   *docextract.Extractor
	Classifier  *damage.Classifier
	Model       *predict.Model
	Synthesizer insight.Provider
}

// handleHealth reports independent per-stage booleans for external
// monitoring. The pipeline itself never consults this; it degrades per
// stage at run time.
// GET /api/v1/health
func (s *Server) handleHealth(c *gin.Context) {
	h := s.health

	synthesizer := false
	if h.Synthesizer != nil {
		synthesizer = h.Synthesizer.IsAvailable(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"extractor":   h.Extractor != nil && h.Extractor.Available(),
		"classifier":  h.Classifier.Available(),
		"predictor":   h.Model.Available(),
		"synthesizer": synthesizer,
	})
}
