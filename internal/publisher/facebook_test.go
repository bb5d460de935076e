package publisher

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/backoff"
	"github.com/postpilot-io/postpilot/internal/clock"
	"github.com/postpilot-io/postpilot/internal/retry"
	"github.com/postpilot-io/postpilot/pkg/types"
)

func fastRunner() *retry.Runner {
	policy := backoff.NewPolicyWithRand(time.Millisecond, 5*time.Millisecond, rand.New(rand.NewSource(1)))
	return retry.NewRunner(policy, clock.System(), zap.NewNop())
}

func newTestPublisher(serverURL string) *FacebookPublisher {
	return NewFacebookPublisher(FacebookOptions{
		BaseURL:     serverURL,
		APIVersion:  "v19.0",
		AccessToken: "token",
		MaxAttempts: 3,
	}, fastRunner(), nil, zap.NewNop())
}

func TestFacebookPublishSuccess(t *testing.T) {
	var gotPath, gotMessage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotMessage = r.FormValue("message")
		w.Write([]byte(`{"id":"page-1_456"}`))
	}))
	defer server.Close()

	pub := newTestPublisher(server.URL)
	post := types.NewScheduledPost(PlatformFacebook, "page-1", "launch day!", time.Now())

	result, err := pub.Publish(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, "page-1_456", result.PlatformPostID)
	assert.Equal(t, "/v19.0/page-1/feed", gotPath)
	assert.Equal(t, "launch day!", gotMessage)
}

func TestFacebookPublishRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"temporarily unavailable","type":"OAuthException","code":2}}`))
			return
		}
		w.Write([]byte(`{"id":"page-1_789"}`))
	}))
	defer server.Close()

	pub := newTestPublisher(server.URL)
	post := types.NewScheduledPost(PlatformFacebook, "page-1", "hello", time.Now())

	result, err := pub.Publish(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, "page-1_789", result.PlatformPostID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFacebookPublishClientErrorIsPermanent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"GraphMethodException","code":100}}`))
	}))
	defer server.Close()

	pub := newTestPublisher(server.URL)
	post := types.NewScheduledPost(PlatformFacebook, "page-1", "hello", time.Now())

	_, err := pub.Publish(context.Background(), post)
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors must not be retried")

	var graphErr *GraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, 100, graphErr.Code)
	assert.Equal(t, http.StatusBadRequest, graphErr.HTTPStatus)
}

func TestFacebookPublishThrottlingIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Application request limit reached","type":"OAuthException","code":4}}`))
	}))
	defer server.Close()

	pub := newTestPublisher(server.URL)
	post := types.NewScheduledPost(PlatformFacebook, "page-1", "hello", time.Now())

	_, err := pub.Publish(context.Background(), post)
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRegistryDispatch(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry(logger)

	dryRun := NewDryRunPublisher(PlatformFacebook, logger)
	require.NoError(t, registry.Register(dryRun))
	require.Error(t, registry.Register(dryRun), "duplicate platform registration")

	post := types.NewScheduledPost(PlatformFacebook, "page-1", "hello", time.Now())
	result, err := registry.Publish(context.Background(), post)
	require.NoError(t, err)
	assert.Contains(t, result.PlatformPostID, "page-1_dryrun_")

	post.Platform = "bluesky"
	_, err = registry.Publish(context.Background(), post)
	require.Error(t, err)
}
