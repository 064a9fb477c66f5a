package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/quizchess/internal/protocol"
	"github.com/park285/quizchess/pkg/chessdto"
)

type stubCreator struct {
	mu    sync.Mutex
	pairs [][2]string
	err   error
}

func (c *stubCreator) CreateMatched(_ context.Context, whiteID, blackID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.pairs = append(c.pairs, [2]string{whiteID, blackID})
	return "GAME" + whiteID + blackID, nil
}

type inbox struct {
	mu     sync.Mutex
	frames map[string][]protocol.Envelope
}

func (n *inbox) SendUser(userID string, frame []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		panic(err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frames == nil {
		n.frames = make(map[string][]protocol.Envelope)
	}
	n.frames[userID] = append(n.frames[userID], env)
}

func (n *inbox) types(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, env := range n.frames[userID] {
		out = append(out, env.Type)
	}
	return out
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue() (*Queue, *stubCreator, *inbox, *testClock) {
	creator := &stubCreator{}
	notify := &inbox{}
	clock := &testClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	q := New(Config{}, creator, notify)
	q.SetClock(clock.now)
	return q, creator, notify, clock
}

func TestCloseEntriesMatchImmediately(t *testing.T) {
	q, creator, notify, _ := newTestQueue()
	ctx := context.Background()

	first, m, err := q.AddEntry(ctx, "u1", 1200, 0.5)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, fmt.Sprintf("u1_%d", first.EnqueuedAt.UnixMilli()), first.SearchID)

	_, m, err = q.AddEntry(ctx, "u2", 1210, 0.5)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "u1", m.White.UserID)
	assert.Equal(t, "u2", m.Black.UserID)
	assert.Equal(t, [][2]string{{"u1", "u2"}}, creator.pairs)
	assert.Equal(t, chessdto.QueueStatus{}, q.Status())

	assert.Equal(t, []string{protocol.TypeSearchStarted, protocol.TypeGameFound}, notify.types("u1"))
	assert.Equal(t, []string{protocol.TypeSearchStarted, protocol.TypeGameFound}, notify.types("u2"))
	var found chessdto.GameFound
	require.NoError(t, json.Unmarshal(notify.frames["u2"][1].Payload, &found))
	assert.Equal(t, "black", found.Game.Color)
	assert.Equal(t, m.Code, found.GameCode)
}

func TestEloWindowWidensWithWait(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a := Entry{SearchID: "a", UserID: "a", Elo: 1000, WinRatio: 0.5, EnqueuedAt: t0}
	b := Entry{SearchID: "b", UserID: "b", Elo: 1500, WinRatio: 0.5, EnqueuedAt: t0}

	assert.False(t, cfg.Acceptable(a, b, t0))
	assert.False(t, cfg.Acceptable(a, b, t0.Add(59*time.Second)))
	assert.True(t, cfg.Acceptable(a, b, t0.Add(60*time.Second)))

	// 대기 시간은 더 짧은 쪽 기준
	late := b
	late.EnqueuedAt = t0.Add(30 * time.Second)
	assert.False(t, cfg.Acceptable(a, late, t0.Add(60*time.Second)))

	c := Entry{SearchID: "c", UserID: "c", Elo: 1000, WinRatio: 0.9, EnqueuedAt: t0}
	assert.False(t, cfg.Acceptable(a, c, t0.Add(10*time.Minute)), "win ratio gap over 0.3 never matches")
}

func TestScorePrefersCloserAndLongerWaiting(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a := Entry{Elo: 1200, WinRatio: 0.5, EnqueuedAt: t0}
	near := Entry{Elo: 1220, WinRatio: 0.5, EnqueuedAt: t0}
	far := Entry{Elo: 1380, WinRatio: 0.6, EnqueuedAt: t0}
	assert.Less(t, cfg.Score(a, near, t0), cfg.Score(a, far, t0))
	assert.InDelta(t, 0.01, cfg.Score(a, near, t0), 1e-9)
	assert.InDelta(t, 0.01-2, cfg.Score(a, near, t0.Add(20*time.Second)), 1e-9)
}

func TestBestCandidateWins(t *testing.T) {
	q, creator, _, clock := newTestQueue()
	ctx := context.Background()

	_, _, err := q.AddEntry(ctx, "far", 1390, 0.5)
	require.NoError(t, err)
	clock.advance(time.Second)
	_, _, err = q.AddEntry(ctx, "near", 1050, 0.5)
	require.NoError(t, err)
	require.Empty(t, creator.pairs)

	clock.advance(time.Second)
	_, m, err := q.AddEntry(ctx, "me", 1200, 0.5)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "near", m.White.UserID)
	assert.Equal(t, "me", m.Black.UserID)
	assert.Equal(t, 1, q.Status().QueueLength)
}

func TestEqualScoresGoToEarliestEntry(t *testing.T) {
	q, _, _, clock := newTestQueue()
	ctx := context.Background()

	_, _, err := q.AddEntry(ctx, "low", 1000, 0.2)
	require.NoError(t, err)
	clock.advance(time.Second)
	_, _, err = q.AddEntry(ctx, "high", 1400, 0.2)
	require.NoError(t, err)

	clock.advance(time.Second)
	_, m, err := q.AddEntry(ctx, "mid", 1200, 0.2)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "low", m.White.UserID)
}

func TestRetryMatchesOnceWindowOpens(t *testing.T) {
	q, creator, _, clock := newTestQueue()
	ctx := context.Background()

	_, m, err := q.AddEntry(ctx, "a", 1000, 0.5)
	require.NoError(t, err)
	require.Nil(t, m)
	_, m, err = q.AddEntry(ctx, "b", 1500, 0.5)
	require.NoError(t, err)
	require.Nil(t, m)

	clock.advance(59 * time.Second)
	assert.Zero(t, q.RetryAll(ctx))
	clock.advance(time.Second)
	assert.Equal(t, 1, q.RetryAll(ctx))
	assert.Equal(t, [][2]string{{"a", "b"}}, creator.pairs)
	assert.Empty(t, q.ExpireStale())
}

func TestExpireStaleOnlyOldEntries(t *testing.T) {
	q, _, notify, clock := newTestQueue()
	ctx := context.Background()

	_, _, err := q.AddEntry(ctx, "old", 800, 0.1)
	require.NoError(t, err)
	clock.advance(30 * time.Second)
	_, _, err = q.AddEntry(ctx, "young", 2000, 0.9)
	require.NoError(t, err)

	clock.advance(29 * time.Second)
	assert.Empty(t, q.ExpireStale())
	assert.Equal(t, chessdto.QueueStatus{QueueLength: 2, ActiveSearches: 2}, q.Status())

	clock.advance(time.Second)
	expired := q.ExpireStale()
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].UserID)
	assert.Equal(t, chessdto.QueueStatus{QueueLength: 1, ActiveSearches: 1}, q.Status())
	assert.Equal(t, []string{protocol.TypeSearchStarted, protocol.TypeSearchCancelled}, notify.types("old"))
	assert.Equal(t, []string{protocol.TypeSearchStarted}, notify.types("young"))
}

func TestCancelIsIdempotent(t *testing.T) {
	q, _, _, _ := newTestQueue()
	ctx := context.Background()

	e, _, err := q.AddEntry(ctx, "u1", 1200, 0.5)
	require.NoError(t, err)
	assert.True(t, q.Cancel(e.SearchID))
	assert.False(t, q.Cancel(e.SearchID))
	assert.False(t, q.Cancel("nobody_0"))
	assert.Equal(t, chessdto.QueueStatus{}, q.Status())

	_, _, err = q.AddEntry(ctx, "u2", 1200, 0.5)
	require.NoError(t, err)
	assert.True(t, q.CancelUser("u2"))
	assert.False(t, q.CancelUser("u2"))
}

func TestNewSearchReplacesOld(t *testing.T) {
	q, _, _, clock := newTestQueue()
	ctx := context.Background()

	first, _, err := q.AddEntry(ctx, "u1", 1200, 0.5)
	require.NoError(t, err)
	clock.advance(time.Second)
	second, _, err := q.AddEntry(ctx, "u1", 1250, 0.5)
	require.NoError(t, err)
	assert.NotEqual(t, first.SearchID, second.SearchID)
	assert.Equal(t, 1, q.Status().QueueLength)
	assert.False(t, q.Cancel(first.SearchID))
	assert.True(t, q.Cancel(second.SearchID))
}

func TestAddEntryRequiresIdentity(t *testing.T) {
	q, _, _, _ := newTestQueue()
	_, _, err := q.AddEntry(context.Background(), "  ", 1200, 0.5)
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, q.Status().QueueLength)
}

func TestCreateFailureRequeuesBoth(t *testing.T) {
	q, creator, notify, _ := newTestQueue()
	ctx := context.Background()
	creator.err = errors.New("db down")

	_, _, err := q.AddEntry(ctx, "u1", 1200, 0.5)
	require.NoError(t, err)
	_, m, err := q.AddEntry(ctx, "u2", 1200, 0.5)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 2, q.Status().QueueLength)
	assert.NotContains(t, notify.types("u1"), protocol.TypeGameFound)

	creator.err = nil
	assert.Equal(t, 1, q.RetryAll(ctx))
	assert.Zero(t, q.Status().QueueLength)
}

func TestRunStopsWithContext(t *testing.T) {
	q := New(Config{RetryInterval: 5 * time.Millisecond}, &stubCreator{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
