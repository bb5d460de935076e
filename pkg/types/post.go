package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enum to represent the lifecycle stage of a scheduled post
type PostStatus string

const (
	StatusPending    PostStatus = "pending"
	StatusProcessing PostStatus = "processing"
	StatusPublished  PostStatus = "published"
	StatusFailed     PostStatus = "failed"
)

// RetryMetadata accumulates retry bookkeeping across publish attempts
type RetryMetadata struct {
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`
	FinalError  string     `json:"final_error,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}

// ScheduledPost is the unit of schedulable work: one social-media post
// due for publication at ScheduledFor.
type ScheduledPost struct {
	ID           string        `json:"id"`
	Platform     string        `json:"platform"`
	PageID       string        `json:"page_id"`
	Message      string        `json:"message"`
	LinkURL      string        `json:"link_url,omitempty"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	Status       PostStatus    `json:"status"`
	Retry        RetryMetadata `json:"retry_metadata"`

	// Set only in terminal failure
	ErrorMessage string `json:"error_message,omitempty"`

	// Set only on success
	PublishedPostID string     `json:"published_post_id,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewScheduledPost(platform, pageID, message string, scheduledFor time.Time) *ScheduledPost {
	now := time.Now().UTC()
	return &ScheduledPost{
		ID:           generatePostID(),
		Platform:     platform,
		PageID:       pageID,
		Message:      message,
		ScheduledFor: scheduledFor,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MarkProcessing transitions the post into a single publish attempt.
func (p *ScheduledPost) MarkProcessing(now time.Time) {
	p.Status = StatusProcessing
	p.UpdatedAt = now
}

// MarkPublished records a successful publish and clears error fields.
func (p *ScheduledPost) MarkPublished(publishedPostID string, now time.Time) {
	p.Status = StatusPublished
	p.PublishedPostID = publishedPostID
	p.PublishedAt = &now
	p.ErrorMessage = ""
	p.Retry.LastError = ""
	p.UpdatedAt = now
}

// MarkRetry records a failed attempt and resurfaces the post for the
// next poll cycle.
func (p *ScheduledPost) MarkRetry(err error, now time.Time) {
	p.Status = StatusPending
	p.Retry.RetryCount++
	p.Retry.LastError = err.Error()
	p.Retry.LastRetryAt = &now
	p.UpdatedAt = now
}

// MarkFailed records a terminally failed attempt. The post is never
// selected again after this transition.
func (p *ScheduledPost) MarkFailed(err error, now time.Time) {
	p.Status = StatusFailed
	p.Retry.RetryCount++
	p.Retry.FinalError = err.Error()
	p.Retry.FailedAt = &now
	p.ErrorMessage = err.Error()
	p.UpdatedAt = now
}

// Due reports whether the post is eligible for publication at the given time.
func (p *ScheduledPost) Due(now time.Time) bool {
	return !p.ScheduledFor.After(now)
}

func (p *ScheduledPost) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("post ID cannot be empty")
	}
	if p.Platform == "" {
		return fmt.Errorf("post platform cannot be empty")
	}
	if p.PageID == "" {
		return fmt.Errorf("post page ID cannot be empty")
	}
	if p.Message == "" {
		return fmt.Errorf("post message cannot be empty")
	}
	if p.ScheduledFor.IsZero() {
		return fmt.Errorf("post schedule time cannot be empty")
	}
	return nil
}

func generatePostID() string {
	id := uuid.NewString()
	return "post_" + id
}
