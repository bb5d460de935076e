package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/retry"
)

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxAttempts int
}

// Generator produces post copy through an OpenAI-compatible chat
// completion API. Transient provider errors are retried by the
// runner; auth and request errors are permanent.
type Generator struct {
	opts   Options
	client *http.Client
	runner *retry.Runner
	logger *zap.Logger
}

func NewGenerator(opts Options, runner *retry.Runner, logger *zap.Logger) *Generator {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 400
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}

	return &Generator{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		runner: runner,
		logger: logger,
	}
}

// GenerateRequest describes the post copy to produce.
type GenerateRequest struct {
	Topic    string `json:"topic" binding:"required"`
	Tone     string `json:"tone,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type GenerateResult struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate produces one piece of post copy for the request.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if g.opts.APIKey == "" {
		return nil, fmt.Errorf("AI API key not configured")
	}
	if req.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	g.logger.Debug("Generating post copy",
		zap.String("topic", req.Topic),
		zap.String("tone", req.Tone),
		zap.String("model", g.opts.Model),
	)

	return retry.DoValue(ctx, g.runner, "ai generate", g.opts.MaxAttempts, func(ctx context.Context) (*GenerateResult, error) {
		return g.generateOnce(ctx, req)
	})
}

func (g *Generator) generateOnce(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	platform := req.Platform
	if platform == "" {
		platform = "facebook"
	}

	system := fmt.Sprintf("You write short, engaging %s posts. Reply with the post text only.", platform)
	user := fmt.Sprintf("Write a post about: %s", req.Topic)
	if req.Tone != "" {
		user += fmt.Sprintf("\nTone: %s", req.Tone)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: g.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to marshal completion request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build completion request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.opts.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := fmt.Errorf("AI provider error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(apiErr)
		}
		return nil, apiErr
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	return &GenerateResult{
		Content:    strings.TrimSpace(completion.Choices[0].Message.Content),
		TokensUsed: completion.Usage.TotalTokens,
	}, nil
}
