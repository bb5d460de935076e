package api

import (
	"time"

	"github.com/postpilot-io/postpilot/pkg/types"
)

// API Request/Response Types

// SchedulePostRequest represents a request to schedule a post
type SchedulePostRequest struct {
	Platform     string    `json:"platform,omitempty"` // defaults to facebook
	PageID       string    `json:"page_id" binding:"required"`
	Message      string    `json:"message" binding:"required"`
	LinkURL      string    `json:"link_url,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}

// SchedulePostResponse represents the response after scheduling a post
type SchedulePostResponse struct {
	PostID       string           `json:"post_id"`
	Status       types.PostStatus `json:"status"`
	ScheduledFor time.Time        `json:"scheduled_for"`
	CreatedAt    time.Time        `json:"created_at"`
}

// PostStatusResponse represents the response with post status information
type PostStatusResponse struct {
	PostID          string              `json:"post_id"`
	Platform        string              `json:"platform"`
	PageID          string              `json:"page_id"`
	Message         string              `json:"message"`
	Status          types.PostStatus    `json:"status"`
	ScheduledFor    time.Time           `json:"scheduled_for"`
	Retry           types.RetryMetadata `json:"retry_metadata"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	PublishedPostID string              `json:"published_post_id,omitempty"`
	PublishedAt     *time.Time          `json:"published_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ListPostsResponse represents the response with recent posts
type ListPostsResponse struct {
	Posts []PostStatusResponse `json:"posts"`
	Count int                  `json:"count"`
}

// RequeuePostResponse represents the response after requeuing a failed post
type RequeuePostResponse struct {
	PostID string           `json:"post_id"`
	Status types.PostStatus `json:"status"`
}

// GenerateContentResponse represents the response with AI-generated copy
type GenerateContentResponse struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// StatsResponse represents the response with pipeline statistics
type StatsResponse struct {
	DueBacklog     int `json:"due_backlog"`
	TotalScheduled int `json:"total_scheduled"`
	TotalPublished int `json:"total_published"`
	TotalFailed    int `json:"total_failed"`
	TotalRequeued  int `json:"total_requeued"`
}

// HealthResponse represents the response for health check
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Redis     string `json:"redis"`
}

// PostView converts a post into its API representation
func PostView(post *types.ScheduledPost) PostStatusResponse {
	return PostStatusResponse{
		PostID:          post.ID,
		Platform:        post.Platform,
		PageID:          post.PageID,
		Message:         post.Message,
		Status:          post.Status,
		ScheduledFor:    post.ScheduledFor,
		Retry:           post.Retry,
		ErrorMessage:    post.ErrorMessage,
		PublishedPostID: post.PublishedPostID,
		PublishedAt:     post.PublishedAt,
		CreatedAt:       post.CreatedAt,
		UpdatedAt:       post.UpdatedAt,
	}
}
