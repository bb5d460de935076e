package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/postpilot-io/postpilot/pkg/types"
)

func testPost(status types.PostStatus, scheduledFor time.Time, retryCount int) *types.ScheduledPost {
	post := types.NewScheduledPost("facebook", "page-1", "hello", scheduledFor)
	post.Status = status
	post.Retry.RetryCount = retryCount
	return post
}

func TestEligible(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	maxRetries := 3

	tests := []struct {
		name string
		post *types.ScheduledPost
		want bool
	}{
		{"pending and due", testPost(types.StatusPending, past, 0), true},
		{"pending but future", testPost(types.StatusPending, future, 0), false},
		{"pending exactly due", testPost(types.StatusPending, now, 0), true},
		{"processing never selected", testPost(types.StatusProcessing, past, 0), false},
		{"published never selected", testPost(types.StatusPublished, past, 0), false},
		{"failed with retries left", testPost(types.StatusFailed, past, 2), true},
		{"failed exhausted", testPost(types.StatusFailed, past, 3), false},
		{"failed beyond max", testPost(types.StatusFailed, past, 5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eligible(tt.post, now, maxRetries))
		})
	}
}

func TestRequeueable(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		post *types.ScheduledPost
		want bool
	}{
		{"failed exhausted", testPost(types.StatusFailed, now, 3), true},
		{"failed with retries left", testPost(types.StatusFailed, now, 1), true},
		{"parked processing", testPost(types.StatusProcessing, now, 0), true},
		{"parked processing mid-retry", testPost(types.StatusProcessing, now, 2), true},
		{"pending", testPost(types.StatusPending, now, 0), false},
		{"published", testPost(types.StatusPublished, now, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, requeueable(tt.post))
		})
	}
}

// A scheduler crash between the processing claim and the outcome write
// leaves a due post that selection skips while it still holds a slot in
// the due index. Requeue must cover that state or the slot is lost for
// good.
func TestParkedProcessingPostCanBeRequeued(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	parked := testPost(types.StatusProcessing, now.Add(-time.Hour), 1)

	assert.False(t, eligible(parked, now, 3), "parked posts are never selected")
	assert.False(t, terminal(parked, 3), "parked posts stay in the due index")
	assert.True(t, requeueable(parked), "requeue is the operator's way out")
}

func TestTerminal(t *testing.T) {
	now := time.Now()
	maxRetries := 3

	assert.True(t, terminal(testPost(types.StatusPublished, now, 0), maxRetries))
	assert.True(t, terminal(testPost(types.StatusFailed, now, 3), maxRetries))
	assert.False(t, terminal(testPost(types.StatusFailed, now, 2), maxRetries))
	assert.False(t, terminal(testPost(types.StatusPending, now, 0), maxRetries))
	assert.False(t, terminal(testPost(types.StatusProcessing, now, 0), maxRetries))
}
