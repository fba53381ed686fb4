package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/audit"
	"github.com/claimlens/claimlens/internal/common"
	"github.com/claimlens/claimlens/internal/damage"
	"github.com/claimlens/claimlens/internal/docextract"
	"github.com/claimlens/claimlens/internal/insight"
	"github.com/claimlens/claimlens/internal/pipeline"
	"github.com/claimlens/claimlens/internal/predict"
	"github.com/claimlens/claimlens/internal/server"
)

func main() {
	// Loggers: zap for the HTTP boundary, slog (JSON) for the pipeline internals.
	zl, _ := zap.NewProduction()
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(slogger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Model artifacts are load-or-die: a missing or invalid artifact is an
	// operator problem, not something a request can degrade around.
	predictorWeights, err := predict.LoadWeights(cfg.Models.PredictorPath)
	if err != nil {
		log.Fatalf("load predictor artifact: %v", err)
	}
	classifierWeights, err := damage.LoadWeights(cfg.Models.ClassifierPath)
	if err != nil {
		log.Fatalf("load classifier artifact: %v", err)
	}
	model := predict.NewModel(predictorWeights)
	classifier := damage.NewClassifier(classifierWeights, slogger)

	extractor := docextract.NewExtractor(docextract.Config{
		Pdftotext:     cfg.OCR.Pdftotext,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
	}, slogger)
	if !extractor.Available() {
		log.Warnw("pdf tooling not found on PATH, document extraction will degrade",
			"pdftotext", cfg.OCR.Pdftotext, "tesseract", cfg.OCR.Tesseract)
	}

	var provider insight.Provider
	if cfg.Insight.APIKey != "" {
		p, err := insight.NewOpenAIProvider(insight.Config{
			APIKey:      cfg.Insight.APIKey,
			BaseURL:     cfg.Insight.BaseURL,
			Model:       cfg.Insight.Model,
			Temperature: cfg.Insight.Temperature,
			Timeout:     cfg.Insight.Timeout,
		}, slogger)
		if err != nil {
			log.Fatalf("insight provider: %v", err)
		}
		provider = p
	} else {
		log.Warn("OPENAI_API_KEY not set, insights will use the fallback message")
	}

	var pipeOpts []pipeline.Option
	var store *audit.Store
	var recorder *audit.Recorder
	if cfg.Audit.DSN != "" {
		store, err = audit.Open(ctx, cfg.Audit.DSN, slogger)
		if err != nil {
			log.Fatalf("open audit store: %v", err)
		}
		defer func() { _ = store.Close() }()

		recorder = audit.NewRecorder(store, slogger,
			audit.WithWorkers(cfg.Audit.Workers),
			audit.WithQueueSize(cfg.Audit.QueueSize),
		)
		pipeOpts = append(pipeOpts, pipeline.WithRecorder(recorder))
	}

	pipe := pipeline.New(extractor, classifier, model, provider, slogger, pipeOpts...)

	srv := server.NewServer(pipe, server.HealthCheckers{
		Extractor:   extractor,
		Classifier:  classifier,
		Model:       model,
		Synthesizer: provider,
	}, store, cfg.Server.MaxUploadBytes, zl)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Infof("HTTP serving on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	if recorder != nil {
		recorder.Shutdown(shutdownCtx)
	}
	log.Info("stopped.")
}
