package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/claimlens/claimlens/internal/common"
	"github.com/claimlens/claimlens/internal/damage"
	"github.com/claimlens/claimlens/internal/docextract"
	"github.com/claimlens/claimlens/internal/features"
	"github.com/claimlens/claimlens/internal/insight"
	"github.com/claimlens/claimlens/internal/pipeline"
	"github.com/claimlens/claimlens/internal/predict"
)

// runpredict runs one claim through the pipeline from local files, without
// the HTTP boundary. Useful for smoke-testing artifacts and OCR tooling.
//
//	runpredict <form.json> [policy.pdf] [evidence.png ...]
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage", "cmd", "runpredict <form.json> [policy.pdf] [evidence.png ...]")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	var sub pipeline.Submission
	formBlob, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Error("read form file", "path", os.Args[1], "error", err)
		os.Exit(2)
	}
	if err := json.Unmarshal(formBlob, &sub.Form); err != nil {
		logger.Warn("form file is not valid JSON, continuing degraded", "error", err)
		sub.FormDegraded = true
	}
	sub.Description = features.CoerceString(sub.Form["description"])

	if len(os.Args) > 2 {
		doc, err := os.ReadFile(os.Args[2])
		if err != nil {
			logger.Error("read policy document", "path", os.Args[2], "error", err)
			os.Exit(2)
		}
		sub.PolicyDocument = doc
	}
	for _, path := range os.Args[3:] {
		img, err := os.ReadFile(path)
		if err != nil {
			logger.Error("read evidence image", "path", path, "error", err)
			os.Exit(2)
		}
		sub.EvidenceImages = append(sub.EvidenceImages, img)
	}

	predictorWeights, err := predict.LoadWeights(cfg.Models.PredictorPath)
	if err != nil {
		logger.Error("load predictor artifact", "error", err)
		os.Exit(1)
	}
	classifierWeights, err := damage.LoadWeights(cfg.Models.ClassifierPath)
	if err != nil {
		logger.Error("load classifier artifact", "error", err)
		os.Exit(1)
	}

	extractor := docextract.NewExtractor(docextract.Config{
		Pdftotext:     cfg.OCR.Pdftotext,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
	}, logger)

	var provider insight.Provider
	if cfg.Insight.APIKey != "" {
		p, err := insight.NewOpenAIProvider(insight.Config{
			APIKey:      cfg.Insight.APIKey,
			BaseURL:     cfg.Insight.BaseURL,
			Model:       cfg.Insight.Model,
			Temperature: cfg.Insight.Temperature,
			Timeout:     cfg.Insight.Timeout,
		}, logger)
		if err != nil {
			logger.Error("insight provider", "error", err)
			os.Exit(1)
		}
		provider = p
	}

	pipe := pipeline.New(
		extractor,
		damage.NewClassifier(classifierWeights, logger),
		predict.NewModel(predictorWeights),
		provider,
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res := pipe.Run(ctx, sub)

	out := map[string]any{
		"run_id":            res.RunID,
		"prediction":        res.Prediction,
		"confidence":        res.Confidence,
		"key_factors":       res.KeyFactors,
		"ai_insights":       res.Insights,
		"extraction_method": res.ExtractionMethod,
		"diagnostics":       res.Diagnostics,
		"elapsed_ms":        res.Elapsed.Milliseconds(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
