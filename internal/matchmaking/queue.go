// Package matchmaking pairs waiting players by Elo and win ratio, relaxing the
// Elo window the longer both sides have waited.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/obslog"
	"github.com/park285/quizchess/internal/protocol"
	"github.com/park285/quizchess/pkg/chessdto"
)

var (
	ErrUnauthenticated  = errors.New("matchmaking: authenticated user required")
	ErrQueueUnavailable = errors.New("matchmaking: queue unavailable")
)

type Config struct {
	BaseEloTolerance  float64
	EloStep           float64       // tolerance gained per WaitStep
	WaitStep          time.Duration // also the divisor of the wait bonus
	WinRatioTolerance float64
	RetryInterval     time.Duration
	Expiry            time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseEloTolerance:  200,
		EloStep:           50,
		WaitStep:          10 * time.Second,
		WinRatioTolerance: 0.3,
		RetryInterval:     5 * time.Second,
		Expiry:            60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseEloTolerance <= 0 {
		c.BaseEloTolerance = d.BaseEloTolerance
	}
	if c.EloStep <= 0 {
		c.EloStep = d.EloStep
	}
	if c.WaitStep <= 0 {
		c.WaitStep = d.WaitStep
	}
	if c.WinRatioTolerance <= 0 {
		c.WinRatioTolerance = d.WinRatioTolerance
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.Expiry <= 0 {
		c.Expiry = d.Expiry
	}
	return c
}

// Entry is immutable once queued; a new search makes a new entry.
type Entry struct {
	SearchID   string
	UserID     string
	Elo        int
	WinRatio   float64
	EnqueuedAt time.Time
}

func (e Entry) waited(now time.Time) time.Duration {
	if d := now.Sub(e.EnqueuedAt); d > 0 {
		return d
	}
	return 0
}

// Creator starts a game for a matched pair and returns its code.
type Creator interface {
	CreateMatched(ctx context.Context, whiteID, blackID string) (string, error)
}

// Notifier reaches a user's matchmaking connections.
type Notifier interface {
	SendUser(userID string, frame []byte)
}

type Match struct {
	Code  string
	White Entry
	Black Entry
}

// Queue owns the waiting entries. Every mutation holds mu, so an entry is matched at most once.
type Queue struct {
	cfg     Config
	creator Creator
	notify  Notifier
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
	byUser  map[string]string
}

func New(cfg Config, creator Creator, notify Notifier) *Queue {
	return &Queue{
		cfg:     cfg.withDefaults(),
		creator: creator,
		notify:  notify,
		now:     time.Now,
		entries: make(map[string]Entry),
		byUser:  make(map[string]string),
	}
}

// SetClock replaces the time source.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// Acceptable reports whether a and b may be paired at now.
func (c Config) Acceptable(a, b Entry, now time.Time) bool {
	minWait := math.Min(a.waited(now).Seconds(), b.waited(now).Seconds())
	tolerance := c.BaseEloTolerance + (minWait/c.WaitStep.Seconds())*c.EloStep
	if math.Abs(float64(a.Elo-b.Elo)) > tolerance {
		return false
	}
	return math.Abs(a.WinRatio-b.WinRatio) <= c.WinRatioTolerance
}

// Score ranks a pair; lower is better.
func (c Config) Score(a, b Entry, now time.Time) float64 {
	elo := math.Abs(float64(a.Elo-b.Elo)) / c.BaseEloTolerance
	ratio := math.Abs(a.WinRatio-b.WinRatio) / c.WinRatioTolerance
	minWait := math.Min(a.waited(now).Seconds(), b.waited(now).Seconds())
	return elo*elo + ratio*ratio - minWait/c.WaitStep.Seconds()
}

// AddEntry queues a search and attempts a match at once. A user's previous
// search is replaced.
func (q *Queue) AddEntry(ctx context.Context, userID string, elo int, winRatio float64) (Entry, *Match, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Entry{}, nil, ErrUnauthenticated
	}
	now := q.now()
	e := Entry{
		SearchID:   fmt.Sprintf("%s_%d", userID, now.UnixMilli()),
		UserID:     userID,
		Elo:        elo,
		WinRatio:   winRatio,
		EnqueuedAt: now,
	}
	q.mu.Lock()
	if old, ok := q.byUser[userID]; ok {
		delete(q.entries, old)
	}
	q.entries[e.SearchID] = e
	q.byUser[userID] = e.SearchID
	size := len(q.entries)
	q.mu.Unlock()

	obslog.L().Info("match_enqueue",
		zap.String("user_id", userID),
		zap.String("search_id", e.SearchID),
		zap.Int("elo", elo),
		zap.Float64("win_ratio", winRatio),
		zap.Int("queue_length", size),
	)
	q.send(userID, protocol.TypeSearchStarted, chessdto.SearchStarted{Message: "Searching for opponent...", SearchID: e.SearchID})

	m, err := q.TryMatch(ctx, e.SearchID)
	return e, m, err
}

// TryMatch pairs the entry with its best acceptable candidate. It returns nil
// when the entry is gone or nothing fits yet.
func (q *Queue) TryMatch(ctx context.Context, searchID string) (*Match, error) {
	now := q.now()
	q.mu.Lock()
	e, ok := q.entries[searchID]
	if !ok {
		q.mu.Unlock()
		return nil, nil
	}
	partner, found := q.bestLocked(e, now)
	if !found {
		q.mu.Unlock()
		return nil, nil
	}
	q.removeLocked(e)
	q.removeLocked(partner)
	q.mu.Unlock()

	white, black := e, partner
	if black.EnqueuedAt.Before(white.EnqueuedAt) || (black.EnqueuedAt.Equal(white.EnqueuedAt) && black.SearchID < white.SearchID) {
		white, black = black, white
	}
	code, err := q.creator.CreateMatched(ctx, white.UserID, black.UserID)
	if err != nil {
		obslog.L().Error("match_create_failed", zap.String("white", white.UserID), zap.String("black", black.UserID), zap.Error(err))
		q.restore(white, black)
		return nil, err
	}

	m := &Match{Code: code, White: white, Black: black}
	obslog.L().Info("match_found",
		zap.String("code", code),
		zap.String("white", white.UserID),
		zap.String("black", black.UserID),
		zap.Int("elo_diff", white.Elo-black.Elo),
	)
	for _, side := range []struct {
		entry Entry
		color string
	}{{white, "white"}, {black, "black"}} {
		q.send(side.entry.UserID, protocol.TypeGameFound, chessdto.GameFound{
			Game:     chessdto.FoundGame{Code: code, Color: side.color, White: white.UserID, Black: black.UserID},
			Message:  "Opponent found! Game starting...",
			GameCode: code,
		})
	}
	return m, nil
}

// bestLocked scans candidates oldest first so equal scores go to the earliest entry.
func (q *Queue) bestLocked(e Entry, now time.Time) (Entry, bool) {
	var (
		best      Entry
		bestScore = math.Inf(1)
		found     bool
	)
	for _, other := range q.sortedLocked() {
		if other.SearchID == e.SearchID || other.UserID == e.UserID {
			continue
		}
		if !q.cfg.Acceptable(e, other, now) {
			continue
		}
		if s := q.cfg.Score(e, other, now); s < bestScore {
			best, bestScore, found = other, s, true
		}
	}
	return best, found
}

func (q *Queue) sortedLocked() []Entry {
	list := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].EnqueuedAt.Equal(list[j].EnqueuedAt) {
			return list[i].SearchID < list[j].SearchID
		}
		return list[i].EnqueuedAt.Before(list[j].EnqueuedAt)
	})
	return list
}

func (q *Queue) removeLocked(e Entry) {
	delete(q.entries, e.SearchID)
	if q.byUser[e.UserID] == e.SearchID {
		delete(q.byUser, e.UserID)
	}
}

// restore puts entries back after a failed game creation unless the user searched again meanwhile.
func (q *Queue) restore(entries ...Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range entries {
		if _, busy := q.byUser[e.UserID]; busy {
			continue
		}
		q.entries[e.SearchID] = e
		q.byUser[e.UserID] = e.SearchID
	}
}

// Cancel removes a search. Unknown ids are a no-op.
func (q *Queue) Cancel(searchID string) bool {
	q.mu.Lock()
	e, ok := q.entries[searchID]
	if ok {
		q.removeLocked(e)
	}
	q.mu.Unlock()
	if ok {
		obslog.L().Info("match_cancel", zap.String("user_id", e.UserID), zap.String("search_id", searchID))
	}
	return ok
}

// CancelUser removes the user's current search, if any.
func (q *Queue) CancelUser(userID string) bool {
	q.mu.Lock()
	id, ok := q.byUser[userID]
	q.mu.Unlock()
	if !ok {
		return false
	}
	return q.Cancel(id)
}

// ExpireStale drops entries that waited Expiry or longer and tells their owners
// the search ended.
func (q *Queue) ExpireStale() []Entry {
	now := q.now()
	q.mu.Lock()
	var expired []Entry
	for _, e := range q.entries {
		if e.waited(now) >= q.cfg.Expiry {
			expired = append(expired, e)
			q.removeLocked(e)
		}
	}
	q.mu.Unlock()
	for _, e := range expired {
		obslog.L().Info("match_expired", zap.String("user_id", e.UserID), zap.String("search_id", e.SearchID))
		q.send(e.UserID, protocol.TypeSearchCancelled, chessdto.SearchCancelled{Message: "No opponent found, search again"})
	}
	return expired
}

// RetryAll re-runs TryMatch for every waiting entry, oldest first.
func (q *Queue) RetryAll(ctx context.Context) int {
	q.mu.Lock()
	list := q.sortedLocked()
	q.mu.Unlock()
	matched := 0
	for _, e := range list {
		m, err := q.TryMatch(ctx, e.SearchID)
		if err == nil && m != nil {
			matched++
		}
	}
	return matched
}

// Status is a read-only snapshot.
func (q *Queue) Status() chessdto.QueueStatus {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	active := 0
	for _, e := range q.entries {
		if e.waited(now) < q.cfg.Expiry {
			active++
		}
	}
	return chessdto.QueueStatus{QueueLength: len(q.entries), ActiveSearches: active}
}

// Run retries matches every RetryInterval and expires stale entries until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	t := time.NewTicker(q.cfg.RetryInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			q.RetryAll(ctx)
			q.ExpireStale()
		}
	}
}

func (q *Queue) send(userID, typ string, payload any) {
	if q.notify == nil {
		return
	}
	q.notify.SendUser(userID, protocol.MustEncode(typ, payload))
}
