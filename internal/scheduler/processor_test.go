package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/backoff"
	"github.com/postpilot-io/postpilot/internal/publisher"
	"github.com/postpilot-io/postpilot/internal/store"
	"github.com/postpilot-io/postpilot/pkg/types"
)

// fakeClock records sleeps and advances virtual time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// savedState is one observed write-back: status plus retry count.
type savedState struct {
	id         string
	status     types.PostStatus
	retryCount int
}

// fakeStore is an in-memory store that records every Save in order.
type fakeStore struct {
	mu       sync.Mutex
	posts    map[string]*types.ScheduledPost
	saves    []savedState
	saveErr  error
	findErr  error
	backlog  int
	statsNow []time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: make(map[string]*types.ScheduledPost)}
}

func (s *fakeStore) Create(ctx context.Context, post *types.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *fakeStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*types.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}

	due := make([]*types.ScheduledPost, 0)
	for _, post := range s.posts {
		if post.Status == types.StatusPending && post.Due(now) {
			cp := *post
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *fakeStore) Save(ctx context.Context, post *types.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *post
	s.posts[post.ID] = &cp
	s.saves = append(s.saves, savedState{
		id:         post.ID,
		status:     post.Status,
		retryCount: post.Retry.RetryCount,
	})
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*types.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s not found", id)
	}
	cp := *post
	return &cp, nil
}

func (s *fakeStore) List(ctx context.Context, status types.PostStatus, limit int) ([]*types.ScheduledPost, error) {
	return nil, nil
}

func (s *fakeStore) Requeue(ctx context.Context, id string) error {
	return nil
}

func (s *fakeStore) Health(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                     { return nil }

func (s *fakeStore) GetStats(ctx context.Context, now time.Time) (*store.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsNow = append(s.statsNow, now)
	return &store.StoreStats{DueBacklog: s.backlog}, nil
}

func (s *fakeStore) savesFor(id string) []savedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]savedState, 0)
	for _, sv := range s.saves {
		if sv.id == id {
			out = append(out, sv)
		}
	}
	return out
}

// fakeExecutor returns scripted results per call.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	errs  map[string][]error // per post id, consumed in order
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{errs: make(map[string][]error)}
}

func (e *fakeExecutor) failWith(id string, errs ...error) {
	e.errs[id] = append(e.errs[id], errs...)
}

func (e *fakeExecutor) Publish(ctx context.Context, post *types.ScheduledPost) (*publisher.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, post.ID)

	if queue := e.errs[post.ID]; len(queue) > 0 {
		err := queue[0]
		e.errs[post.ID] = queue[1:]
		if err != nil {
			return nil, err
		}
	}
	return &publisher.Result{PlatformPostID: post.PageID + "_ok"}, nil
}

func (e *fakeExecutor) Platform() string    { return "facebook" }
func (e *fakeExecutor) Description() string { return "scripted test executor" }

func (e *fakeExecutor) callCount(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == id {
			n++
		}
	}
	return n
}

func newTestProcessor(st *fakeStore, exec *fakeExecutor, clk *fakeClock) *Processor {
	policy := backoff.NewPolicyWithRand(time.Second, 30*time.Second, rand.New(rand.NewSource(7)))
	return NewProcessor(st, exec, policy, clk, 3, zap.NewNop())
}

func duePost(clk *fakeClock) *types.ScheduledPost {
	return types.NewScheduledPost("facebook", "page-1", "hello", clk.Now().Add(-time.Minute))
}

func TestProcessSuccess(t *testing.T) {
	st := newFakeStore()
	exec := newFakeExecutor()
	clk := newFakeClock()
	proc := newTestProcessor(st, exec, clk)

	post := duePost(clk)
	require.NoError(t, st.Create(context.Background(), post))

	err := proc.Process(context.Background(), post)
	require.NoError(t, err)

	saves := st.savesFor(post.ID)
	require.Len(t, saves, 2)
	assert.Equal(t, types.StatusProcessing, saves[0].status)
	assert.Equal(t, types.StatusPublished, saves[1].status)

	stored, err := st.Get(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "page-1_ok", stored.PublishedPostID)
	require.NotNil(t, stored.PublishedAt)
	assert.Empty(t, clk.sleeps, "fresh posts publish without backoff")
}

func TestProcessRetryThenTerminalSequence(t *testing.T) {
	st := newFakeStore()
	exec := newFakeExecutor()
	clk := newFakeClock()
	proc := newTestProcessor(st, exec, clk)

	post := duePost(clk)
	require.NoError(t, st.Create(context.Background(), post))
	exec.failWith(post.ID, errors.New("graph down"), errors.New("graph down"), errors.New("graph down"))

	// Drive the post the way successive poll cycles would.
	for attempt := 1; attempt <= 3; attempt++ {
		err := proc.Process(context.Background(), post)
		require.Error(t, err)

		var pubErr *PublishError
		require.ErrorAs(t, err, &pubErr)
		assert.Equal(t, attempt, pubErr.RetryCount)
		assert.Equal(t, attempt == 3, pubErr.Terminal)
	}

	saves := st.savesFor(post.ID)
	require.Len(t, saves, 6)
	expected := []savedState{
		{post.ID, types.StatusProcessing, 0},
		{post.ID, types.StatusPending, 1},
		{post.ID, types.StatusProcessing, 1},
		{post.ID, types.StatusPending, 2},
		{post.ID, types.StatusProcessing, 2},
		{post.ID, types.StatusFailed, 3},
	}
	assert.Equal(t, expected, saves)

	// No processing write without an intervening retry/terminal write.
	for i, sv := range saves {
		if sv.status == types.StatusProcessing && i > 0 {
			assert.NotEqual(t, types.StatusProcessing, saves[i-1].status)
		}
	}

	stored, err := st.Get(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.Retry.RetryCount)
	assert.Equal(t, "graph down", stored.ErrorMessage)
	assert.Equal(t, 3, exec.callCount(post.ID))
}

func TestProcessLazyBackoffBeforeRetriedAttempt(t *testing.T) {
	st := newFakeStore()
	exec := newFakeExecutor()
	clk := newFakeClock()
	proc := newTestProcessor(st, exec, clk)

	post := duePost(clk)
	post.Retry.RetryCount = 2
	require.NoError(t, st.Create(context.Background(), post))

	require.NoError(t, proc.Process(context.Background(), post))

	require.Len(t, clk.sleeps, 1)
	// Delay(retryCount-1) = Delay(1): 2s floor plus jitter.
	assert.GreaterOrEqual(t, clk.sleeps[0], 2*time.Second)
	assert.LessOrEqual(t, clk.sleeps[0], 2200*time.Millisecond)
}

func TestProcessClaimFailureSkipsExecutor(t *testing.T) {
	st := newFakeStore()
	exec := newFakeExecutor()
	clk := newFakeClock()
	proc := newTestProcessor(st, exec, clk)

	post := duePost(clk)
	st.saveErr = errors.New("redis down")

	err := proc.Process(context.Background(), post)
	require.Error(t, err)

	var pubErr *PublishError
	assert.False(t, errors.As(err, &pubErr), "store failures are not publish failures")
	assert.Equal(t, 0, exec.callCount(post.ID), "executor must not run without a persisted claim")
}

func TestProcessRespectsContextDuringBackoff(t *testing.T) {
	st := newFakeStore()
	exec := newFakeExecutor()
	clk := newFakeClock()
	proc := newTestProcessor(st, exec, clk)

	post := duePost(clk)
	post.Retry.RetryCount = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := proc.Process(ctx, post)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, exec.callCount(post.ID))
	assert.Empty(t, st.savesFor(post.ID))
}
