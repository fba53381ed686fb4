package docextract

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/claimlens/claimlens/constants"
)

// stubRunner fakes the poppler/tesseract binaries. pdftoppm materializes
// page PNGs on disk because the extractor globs for them afterwards.
type stubRunner struct {
	mu        sync.Mutex
	direct    string
	directErr error

	rasterPages int
	rasterErr   error
	rasterArgs  []string

	ocrText  func(page int) (string, error)
	ocrCalls int
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(name, "pdftotext"):
		if s.directErr != nil {
			return nil, []byte("pdftotext: broken"), s.directErr
		}
		return []byte(s.direct), nil, nil
	case strings.Contains(name, "pdftoppm"):
		s.rasterArgs = args
		if s.rasterErr != nil {
			return nil, []byte("pdftoppm: broken"), s.rasterErr
		}
		// honor the -l page bound the way the real tool does
		last := s.rasterPages
		for i, a := range args {
			if a == "-l" && i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil && n < last {
					last = n
				}
			}
		}
		prefix := args[len(args)-1]
		for i := 1; i <= last; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case strings.Contains(name, "tesseract"):
		s.ocrCalls++
		txt, err := s.ocrText(s.ocrCalls)
		if err != nil {
			return nil, []byte("tesseract: broken"), err
		}
		return []byte(txt), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func newTestExtractor(t *testing.T, stub *stubRunner) *Extractor {
	t.Helper()
	e := NewExtractor(Config{MaxPages: 5}, nil)
	e.runner = stub
	return e
}

func pdfBlob(t *testing.T) []byte {
	t.Helper()
	return []byte("%PDF-1.4\n1 0 obj\nendobj\ntrailer\n%%EOF\n")
}

const richText = "This policy covers collision damage, third party liability and " +
	"windscreen replacement for the insured vehicle registration ABC123."

func TestExtractDirect(t *testing.T) {
	stub := &stubRunner{direct: richText}
	e := newTestExtractor(t, stub)

	res, err := e.Extract(context.Background(), pdfBlob(t))
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if res.Method != constants.MethodDirect {
		t.Errorf("method = %s, want %s", res.Method, constants.MethodDirect)
	}
	if !res.Meaningful {
		t.Error("expected meaningful = true")
	}
	if !strings.Contains(res.Text, "collision damage") {
		t.Errorf("unexpected text: %q", res.Text)
	}
}

func TestExtractOCRFallbackWhenDirectTextTooThin(t *testing.T) {
	stub := &stubRunner{
		direct:      "p. 1\n---\n", // under the 50 alphanumeric-rune threshold
		rasterPages: 2,
		ocrText:     func(int) (string, error) { return richText, nil },
	}
	e := newTestExtractor(t, stub)

	res, err := e.Extract(context.Background(), pdfBlob(t))
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if res.Method != constants.MethodOCR {
		t.Errorf("method = %s, want %s", res.Method, constants.MethodOCR)
	}
	if res.Pages != 2 {
		t.Errorf("pages = %d, want 2", res.Pages)
	}
	if !res.Meaningful {
		t.Error("expected meaningful = true after ocr")
	}
}

func TestExtractSkipsUnreadablePages(t *testing.T) {
	stub := &stubRunner{
		direct:      "",
		rasterPages: 3,
		ocrText: func(page int) (string, error) {
			if page == 2 {
				return "", fmt.Errorf("page 2 unreadable")
			}
			return fmt.Sprintf("page %d of the policy schedule", page), nil
		},
	}
	e := newTestExtractor(t, stub)

	res, err := e.Extract(context.Background(), pdfBlob(t))
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if res.Method != constants.MethodOCR {
		t.Errorf("method = %s, want %s", res.Method, constants.MethodOCR)
	}
	if !strings.Contains(res.Text, "page 1") || !strings.Contains(res.Text, "page 3") {
		t.Errorf("expected surviving pages in text, got %q", res.Text)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for the skipped page")
	}
}

func TestExtractAllPagesFailDegradesToNone(t *testing.T) {
	stub := &stubRunner{
		direct:      "",
		rasterPages: 2,
		ocrText:     func(int) (string, error) { return "", fmt.Errorf("unreadable") },
	}
	e := newTestExtractor(t, stub)

	res, err := e.Extract(context.Background(), pdfBlob(t))
	if err == nil {
		t.Fatal("expected a loggable error for a fully failed extraction")
	}
	if res.Method != constants.MethodNone {
		t.Errorf("method = %s, want %s", res.Method, constants.MethodNone)
	}
	if res.Text != "" {
		t.Errorf("text = %q, want empty", res.Text)
	}
}

func TestExtractAbsentDocument(t *testing.T) {
	e := newTestExtractor(t, &stubRunner{})

	res, err := e.Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("absent document must not error: %v", err)
	}
	if res.Method != constants.MethodNone {
		t.Errorf("method = %s, want %s", res.Method, constants.MethodNone)
	}
}

func TestExtractRejectsNonPDF(t *testing.T) {
	e := newTestExtractor(t, &stubRunner{})

	res, err := e.Extract(context.Background(), []byte("GIF89a not a pdf"))
	if err == nil {
		t.Fatal("expected a loggable error for a non-PDF blob")
	}
	if res.Method != constants.MethodNone {
		t.Errorf("method = %s, want %s", res.Method, constants.MethodNone)
	}
}

func TestExtractCapsOCRPages(t *testing.T) {
	stub := &stubRunner{
		direct:      "",
		rasterPages: 8,
		ocrText:     func(int) (string, error) { return "some scanned words here", nil },
	}
	e := newTestExtractor(t, stub)

	res, err := e.Extract(context.Background(), pdfBlob(t))
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if res.Pages != 5 {
		t.Errorf("pages = %d, want cap of 5", res.Pages)
	}
	if stub.ocrCalls != 5 {
		t.Errorf("tesseract invoked %d times, want 5", stub.ocrCalls)
	}

	// the cap must reach pdftoppm itself, not just trim its output
	bounded := false
	for i, a := range stub.rasterArgs {
		if a == "-l" && i+1 < len(stub.rasterArgs) && stub.rasterArgs[i+1] == "5" {
			bounded = true
		}
	}
	if !bounded {
		t.Errorf("pdftoppm args missing page bound: %v", stub.rasterArgs)
	}
}

func TestNormalizeCollapsesNoise(t *testing.T) {
	in := "line one  \r\n\r\n\r\n\r\nline\ttwo   spaced"
	got := Normalize(in)
	want := "line one\n\nline two spaced"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}
