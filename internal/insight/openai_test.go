package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/claimlens/claimlens/internal/features"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}},
			},
			Usage: openai.Usage{TotalTokens: 120},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestProvider(t *testing.T, baseURL string) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	return p
}

func TestSynthesizeSuccess(t *testing.T) {
	server := completionServer(t, "Coverage is likely. File the police report copy. Watch the prior claims.")
	defer server.Close()

	p := newTestProvider(t, server.URL)
	score := 68.0
	resp, err := p.Synthesize(context.Background(), Request{
		ClaimSummary: "Incident type: Collision\n",
		Score:        &score,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.Contains(resp.Text, "Coverage is likely") {
		t.Errorf("unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed != 120 {
		t.Errorf("tokens = %d, want 120", resp.TokensUsed)
	}
}

func TestSynthesizeQuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	if _, err := p.Synthesize(context.Background(), Request{ClaimSummary: "x"}); err == nil {
		t.Fatal("expected error on quota exhaustion")
	}
}

func TestSynthesizeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := p.Synthesize(ctx, Request{ClaimSummary: "x"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSynthesizeEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	if _, err := p.Synthesize(context.Background(), Request{ClaimSummary: "x"}); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestNewProviderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}, nil); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestBuildPromptIncludesExcerptAndScore(t *testing.T) {
	v := features.Build(map[string]any{"incidentType": "Theft", "policeReport": "yes"}, "car stolen overnight", nil)
	score := 55.0
	prompt := BuildPrompt(Request{
		ClaimSummary:  RenderClaimSummary(v, "car stolen overnight"),
		PolicyExcerpt: strings.Repeat("coverage terms ", 300), // > 3k chars
		Score:         &score,
	})

	if !strings.Contains(prompt, "Incident type: Theft") {
		t.Error("prompt missing claim summary")
	}
	if !strings.Contains(prompt, "55/100") {
		t.Error("prompt missing score line")
	}
	if len(prompt) > 5000 {
		t.Errorf("prompt length %d suggests the policy excerpt was not capped", len(prompt))
	}
}
