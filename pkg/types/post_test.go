package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduledPost(t *testing.T) {
	when := time.Now().Add(time.Hour)
	post := NewScheduledPost("facebook", "page-1", "hello world", when)

	require.NoError(t, post.Validate())
	assert.Equal(t, StatusPending, post.Status)
	assert.Contains(t, post.ID, "post_")
	assert.Equal(t, 0, post.Retry.RetryCount)
	assert.False(t, post.Due(time.Now()))
	assert.True(t, post.Due(when.Add(time.Second)))
}

func TestMarkPublishedClearsErrors(t *testing.T) {
	post := NewScheduledPost("facebook", "page-1", "hello", time.Now())
	now := time.Now().UTC()

	post.MarkRetry(errors.New("graph timeout"), now)
	require.Equal(t, StatusPending, post.Status)
	require.Equal(t, 1, post.Retry.RetryCount)
	require.Equal(t, "graph timeout", post.Retry.LastError)

	post.MarkPublished("page-1_123", now)
	assert.Equal(t, StatusPublished, post.Status)
	assert.Equal(t, "page-1_123", post.PublishedPostID)
	assert.Empty(t, post.ErrorMessage)
	assert.Empty(t, post.Retry.LastError)
	require.NotNil(t, post.PublishedAt)
}

func TestMarkFailedIsTerminal(t *testing.T) {
	post := NewScheduledPost("facebook", "page-1", "hello", time.Now())
	now := time.Now().UTC()

	post.Retry.RetryCount = 2
	post.MarkFailed(errors.New("page unpublished"), now)

	assert.Equal(t, StatusFailed, post.Status)
	assert.Equal(t, 3, post.Retry.RetryCount)
	assert.Equal(t, "page unpublished", post.ErrorMessage)
	assert.Equal(t, "page unpublished", post.Retry.FinalError)
	require.NotNil(t, post.Retry.FailedAt)
}

func TestValidate(t *testing.T) {
	post := NewScheduledPost("facebook", "page-1", "hello", time.Now())
	require.NoError(t, post.Validate())

	post.Message = ""
	assert.Error(t, post.Validate())

	post = NewScheduledPost("", "page-1", "hello", time.Now())
	assert.Error(t, post.Validate())
}
