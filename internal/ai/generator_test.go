package ai

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
)

func newTestGenerator(serverURL string) *Generator {
	policy := backoff.NewPolicyWithRand(time.Millisecond, 5*time.Millisecond, rand.New(rand.NewSource(1)))
	runner := retry.NewRunner(policy, clock.System(), zap.NewNop())
	return NewGenerator(Options{
		BaseURL:     serverURL,
		APIKey:      "test-key",
		Model:       "test-model",
		MaxAttempts: 3,
	}, runner, zap.NewNop())
}

func TestGenerateSuccess(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Big news today!  "}}],"usage":{"total_tokens":42}}`))
	}))
	defer server.Close()

	gen := newTestGenerator(server.URL)
	result, err := gen.Generate(context.Background(), GenerateRequest{Topic: "product launch"})

	require.NoError(t, err)
	assert.Equal(t, "Big news today!", result.Content)
	assert.Equal(t, 42, result.TokensUsed)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestGenerateRetriesProviderErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"done"}}],"usage":{"total_tokens":5}}`))
	}))
	defer server.Close()

	gen := newTestGenerator(server.URL)
	result, err := gen.Generate(context.Background(), GenerateRequest{Topic: "anything"})

	require.NoError(t, err)
	assert.Equal(t, "done", result.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateAuthErrorIsPermanent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	gen := newTestGenerator(server.URL)
	_, err := gen.Generate(context.Background(), GenerateRequest{Topic: "anything"})

	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateValidation(t *testing.T) {
	gen := newTestGenerator("http://unused")

	_, err := gen.Generate(context.Background(), GenerateRequest{})
	assert.Error(t, err, "empty topic")

	gen.opts.APIKey = ""
	_, err = gen.Generate(context.Background(), GenerateRequest{Topic: "x"})
	assert.Error(t, err, "missing api key")
}
