package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/claimlens/claimlens/constants"
	"github.com/claimlens/claimlens/internal/features"
	"github.com/claimlens/claimlens/internal/pipeline"
)

// predictResponse is the fixed outbound contract.
type predictResponse struct {
	Prediction float64  `json:"prediction"`
	Confidence float64  `json:"confidence"`
	KeyFactors []string `json:"key_factors"`
	AIInsights string   `json:"ai_insights"`
}

// handlePredict runs the pipeline for one multipart submission.
// POST /api/v1/predict
//
// Only a non-multipart request is rejected; every parse problem inside a
// well-formed multipart body degrades the result instead of failing it.
func (s *Server) handlePredict(c *gin.Context) {
	if ct := c.ContentType(); !strings.HasPrefix(ct, "multipart/form-data") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart/form-data"})
		return
	}
	if s.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		s.logger.Warn("multipart parse failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed multipart body"})
		return
	}

	sub := s.buildSubmission(c, form)
	res := s.pipe.Run(c.Request.Context(), sub)

	factors := res.KeyFactors
	if factors == nil {
		factors = []string{}
	}
	c.JSON(http.StatusOK, predictResponse{
		Prediction: res.Prediction,
		Confidence: res.Confidence,
		KeyFactors: factors,
		AIInsights: res.Insights,
	})
}

// buildSubmission translates the multipart form into a pipeline Submission.
// Unreadable pieces are logged and skipped or flagged; nothing here errors.
func (s *Server) buildSubmission(c *gin.Context, form *multipart.Form) pipeline.Submission {
	var sub pipeline.Submission

	raw := c.PostForm("form_data_json")
	if raw == "" {
		sub.FormDegraded = true
		s.logger.Warn("form_data_json missing")
	} else if err := json.Unmarshal([]byte(raw), &sub.Form); err != nil {
		sub.FormDegraded = true
		s.logger.Warn("form_data_json unreadable", zap.Error(err))
	}
	sub.Description = features.CoerceString(sub.Form["description"])

	if docs := form.File["policy_document"]; len(docs) > 0 {
		if blob, err := readPart(docs[0]); err != nil {
			s.logger.Warn("policy document unreadable", zap.Error(err))
		} else {
			sub.PolicyDocument = blob
		}
	}

	for _, fh := range form.File["evidence_files"] {
		ext := constants.NormalizeExt(filepath.Ext(fh.Filename))
		if _, allowed := constants.AllowedEvidenceExtensions[ext]; !allowed {
			s.logger.Warn("evidence file has unsupported extension",
				zap.String("filename", fh.Filename), zap.String("ext", ext))
		}
		blob, err := readPart(fh)
		if err != nil {
			s.logger.Warn("evidence file unreadable", zap.String("filename", fh.Filename), zap.Error(err))
			// keep a placeholder so the image count and unknown labels line up
			blob = nil
		}
		sub.EvidenceImages = append(sub.EvidenceImages, blob)
	}

	return sub
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
