package docextract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/claimlens/claimlens/constants"
)

var pdfHeader = []byte("%PDF-")

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned pages, default 300
	MaxPages      int    // OCR fallback page cap, default 5

	// MinMeaningfulChars is the alphanumeric-rune threshold below which the
	// direct text layer is considered insufficient and OCR runs. Default 50.
	MinMeaningfulChars int
}

// PolicyText is the extraction outcome. Text may be empty; Method records
// how it was produced.
type PolicyText struct {
	Text       string
	Method     constants.ExtractionMethod
	Meaningful bool
	Pages      int
	Duration   time.Duration
	Warnings   []string
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.MinMeaningfulChars <= 0 {
		cfg.MinMeaningfulChars = 50
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Available reports whether the external extraction binaries resolve on PATH.
// Consumed by the health endpoint, not by the pipeline.
func (e *Extractor) Available() bool {
	if _, err := exec.LookPath(e.cfg.Pdftotext); err != nil {
		return false
	}
	_, err := exec.LookPath(e.cfg.Tesseract)
	return err == nil
}

// Extract converts an uploaded policy document into plain text. It is a
// total function: an absent, corrupt, or image-only document yields an
// empty-text result with Method none, never an error the caller must handle.
// The returned error exists only so the orchestrator can log the cause of a
// degraded result; the PolicyText is always usable.
func (e *Extractor) Extract(ctx context.Context, doc []byte) (PolicyText, error) {
	start := time.Now()

	if len(doc) == 0 {
		return PolicyText{Method: constants.MethodNone, Duration: time.Since(start)}, nil
	}
	if !bytes.HasPrefix(doc, pdfHeader) {
		res := PolicyText{
			Method:   constants.MethodNone,
			Duration: time.Since(start),
			Warnings: []string{"document lacks a PDF header"},
		}
		return res, fmt.Errorf("not a PDF document")
	}

	path, cleanup, err := e.spool(doc)
	if err != nil {
		return PolicyText{Method: constants.MethodNone, Duration: time.Since(start)}, err
	}
	defer cleanup()

	// Pass 1: structured text layer.
	text, pages, warns, directErr := e.pdfToText(ctx, path)
	text = Normalize(text)
	if directErr == nil && countMeaningful(text) >= e.cfg.MinMeaningfulChars {
		return PolicyText{
			Text:       text,
			Method:     constants.MethodDirect,
			Meaningful: true,
			Pages:      pages,
			Duration:   time.Since(start),
			Warnings:   warns,
		}, nil
	}
	if directErr != nil {
		warns = append(warns, fmt.Sprintf("direct extraction failed: %v", directErr))
	} else {
		e.logger.Debug("direct text insufficient, falling back to ocr",
			"meaningful_chars", countMeaningful(text), "threshold", e.cfg.MinMeaningfulChars)
	}

	// Pass 2: rasterize and OCR.
	ocrText, ocrPages, ocrWarns, ocrErr := e.pdfToOCR(ctx, path)
	warns = append(warns, ocrWarns...)
	ocrText = Normalize(ocrText)
	if ocrErr == nil && ocrText != "" {
		return PolicyText{
			Text:       ocrText,
			Method:     constants.MethodOCR,
			Meaningful: countMeaningful(ocrText) >= e.cfg.MinMeaningfulChars,
			Pages:      ocrPages,
			Duration:   time.Since(start),
			Warnings:   warns,
		}, nil
	}
	if ocrErr != nil {
		warns = append(warns, fmt.Sprintf("ocr fallback failed: %v", ocrErr))
	}

	res := PolicyText{Method: constants.MethodNone, Duration: time.Since(start), Warnings: warns}
	return res, fmt.Errorf("no text recovered from document")
}

// spool writes the upload to a temp file so the poppler tools can read it.
func (e *Extractor) spool(doc []byte) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "cl-doc-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}
	path := filepath.Join(tmpDir, "policy.pdf")
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}
	text = string(out)
	// A form-feed \f is used as page separator by default
	pages = 1 + strings.Count(text, "\f")
	return text, pages, nil, nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	tmpDir, err := os.MkdirTemp("", "cl-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f 1 -l <MaxPages> -r 300 -png <in.pdf> <tmp/page>
	// The page bound goes to pdftoppm itself: a long scanned document must
	// not be rasterized past the cap just to be thrown away afterwards.
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-f", "1", "-l", strconv.Itoa(e.cfg.MaxPages),
		"-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	var warns []string
	ok := 0
	for _, img := range matches {
		txt, w, err := e.tesseractOCR(ctx, img)
		if err != nil {
			// a single unreadable page is not fatal; skip and continue
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
		warns = append(warns, w...)
		ok++
	}
	if ok == 0 {
		return "", len(matches), warns, fmt.Errorf("ocr failed on all %d pages", len(matches))
	}
	return b.String(), len(matches), warns, nil
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.TesseractLang)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}

	// minor cleanup of obvious line noise
	txt := reBoxNoise.ReplaceAllString(string(out), "")
	return txt, nil, nil
}
