package insight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// Config for the OpenAI-backed provider.
type Config struct {
	APIKey      string
	BaseURL     string        // default api.openai.com
	Model       string        // e.g. "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // per-call cap; default 6s
}

// OpenAIProvider implements Provider on the Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

func NewOpenAIProvider(cfg Config, logger *slog.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string { return "openai" }

// IsAvailable checks if the provider is properly configured. Consumed by the
// health endpoint; a lightweight models call, never invoked on the request path.
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	if err != nil {
		p.logger.Warn("insight provider unavailable", "provider", p.Name(), "error", err)
		return false
	}
	return true
}

// Synthesize generates the narrative under a bounded timeout. Any failure is
// returned to the orchestrator, which substitutes FallbackMessage; a slow or
// broken LLM call never blocks the numeric result beyond the timeout.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req Request) (*Response, error) {
	rid := uuid.New().String()
	start := time.Now()

	prompt := BuildPrompt(req)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.logger.Info("insight.synthesize.start",
		"req_id", rid,
		"model", p.cfg.Model,
		"prompt_len", len(prompt),
		"has_policy_excerpt", strings.TrimSpace(req.PolicyExcerpt) != "",
		"has_score", req.Score != nil,
	)

	chatReq := openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a concise motor-insurance claims analyst. Never promise an outcome.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   400,
		Temperature: p.cfg.Temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		p.logger.Error("insight.synthesize.error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("empty completion from OpenAI")
	}

	p.logger.Info("insight.synthesize.ok",
		"req_id", rid,
		"tokens", resp.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return &Response{
		Text:       text,
		Model:      p.cfg.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
