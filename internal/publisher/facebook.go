package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/limiter"
	"github.com/postpilot-io/postpilot/internal/retry"
	"github.com/postpilot-io/postpilot/pkg/types"
)

const PlatformFacebook = "facebook"

// GraphError is the decoded Facebook Graph API error envelope.
type GraphError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	HTTPStatus int    `json:"-"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph API error %d (%s, code %d): %s", e.HTTPStatus, e.Type, e.Code, e.Message)
}

type FacebookOptions struct {
	BaseURL     string
	APIVersion  string
	AccessToken string
	Timeout     time.Duration
	MaxAttempts int
}

// FacebookPublisher posts page feed entries through the Graph API.
// Transport-level failures are retried by the runner; 4xx responses
// are tagged permanent since repeating them cannot succeed.
type FacebookPublisher struct {
	opts    FacebookOptions
	client  *http.Client
	runner  *retry.Runner
	limiter limiter.RateLimiter
	logger  *zap.Logger
}

func NewFacebookPublisher(opts FacebookOptions, runner *retry.Runner, lim limiter.RateLimiter, logger *zap.Logger) *FacebookPublisher {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://graph.facebook.com"
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "v19.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}

	return &FacebookPublisher{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		runner:  runner,
		limiter: lim,
		logger:  logger,
	}
}

func (p *FacebookPublisher) Platform() string {
	return PlatformFacebook
}

func (p *FacebookPublisher) Description() string {
	return "Publishes posts to Facebook page feeds via the Graph API"
}

func (p *FacebookPublisher) Publish(ctx context.Context, post *types.ScheduledPost) (*Result, error) {
	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, post.PageID)
		if err != nil {
			p.logger.Warn("Rate limiter check failed, proceeding",
				zap.String("page_id", post.PageID),
				zap.Error(err),
			)
		} else if !allowed {
			return nil, fmt.Errorf("publish rate limit exceeded for page %s", post.PageID)
		}
	}

	label := fmt.Sprintf("facebook publish %s", post.ID)
	return retry.DoValue(ctx, p.runner, label, p.opts.MaxAttempts, func(ctx context.Context) (*Result, error) {
		return p.publishOnce(ctx, post)
	})
}

func (p *FacebookPublisher) publishOnce(ctx context.Context, post *types.ScheduledPost) (*Result, error) {
	form := url.Values{}
	form.Set("message", post.Message)
	if post.LinkURL != "" {
		form.Set("link", post.LinkURL)
	}
	form.Set("access_token", p.opts.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/%s/feed", p.opts.BaseURL, p.opts.APIVersion, post.PageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build graph request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph response: %w", err)
	}

	if resp.StatusCode >= 400 {
		graphErr := decodeGraphError(resp.StatusCode, body)

		// Client errors other than throttling cannot be fixed by
		// repeating the same request.
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(graphErr)
		}
		return nil, graphErr
	}

	var success struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &success); err != nil {
		return nil, fmt.Errorf("failed to decode graph response: %w", err)
	}
	if success.ID == "" {
		return nil, fmt.Errorf("graph response missing post id")
	}

	p.logger.Info("Published post to Facebook",
		zap.String("post_id", post.ID),
		zap.String("page_id", post.PageID),
		zap.String("platform_post_id", success.ID),
	)

	return &Result{PlatformPostID: success.ID}, nil
}

func decodeGraphError(status int, body []byte) *GraphError {
	var envelope struct {
		Error GraphError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		return &GraphError{
			Message:    strings.TrimSpace(string(body)),
			Type:       "UnknownError",
			HTTPStatus: status,
		}
	}

	graphErr := envelope.Error
	graphErr.HTTPStatus = status
	return &graphErr
}
