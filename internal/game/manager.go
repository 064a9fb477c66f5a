package game

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/ai"
	"github.com/park285/quizchess/internal/domain"
	"github.com/park285/quizchess/internal/obslog"
	"github.com/park285/quizchess/pkg/chessdto"
)

const (
	codeLength      = 12
	codeAttempts    = 5
	maxSubjects     = 3
	defaultSubject  = "math"
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	aiUserIDPrefix  = "ai:"
	defaultPrefetch = 5
)

// SubjectChecker reports whether the quiz bank knows a subject.
type SubjectChecker interface {
	Has(subject string) bool
}

// QuizWarmer prefetches questions for a new game.
type QuizWarmer interface {
	Warm(ctx context.Context, code string, subjects []string, n int) error
	Drop(ctx context.Context, code string, subjects []string) error
}

// SweepPolicy controls stale game cleanup. Zero durations disable a rule.
type SweepPolicy struct {
	WaitingAfter  time.Duration
	ActiveAfter   time.Duration
	FinishedAfter time.Duration
}

// DefaultSweepPolicy: WAITING 30분, 무응답 ACTIVE 2시간, 종료 후 24시간 보관.
var DefaultSweepPolicy = SweepPolicy{
	WaitingAfter:  30 * time.Minute,
	ActiveAfter:   2 * time.Hour,
	FinishedAfter: 24 * time.Hour,
}

type ManagerConfig struct {
	Subjects     SubjectChecker
	Warmer       QuizWarmer
	QuizPrefetch int
	Sweep        SweepPolicy
}

// Manager owns the live sessions of this process.
type Manager struct {
	deps Deps
	cfg  ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps, cfg ManagerConfig) *Manager {
	deps.withDefaults()
	if cfg.QuizPrefetch <= 0 {
		cfg.QuizPrefetch = defaultPrefetch
	}
	if cfg.Sweep == (SweepPolicy{}) {
		cfg.Sweep = DefaultSweepPolicy
	}
	return &Manager{deps: deps, cfg: cfg, sessions: make(map[string]*Session)}
}

// CreateRequest describes a new game. Creator becomes white.
type CreateRequest struct {
	Creator      string
	Subjects     []string
	VsAI         bool
	AIDifficulty string
}

func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	creator := strings.TrimSpace(req.Creator)
	if creator == "" {
		return nil, ErrNoCreator
	}
	subjects, err := m.normalizeSubjects(req.Subjects)
	if err != nil {
		return nil, err
	}
	p := sessionParams{subjects: subjects}
	if req.VsAI {
		d, err := ai.ParseDifficulty(req.AIDifficulty)
		if err != nil {
			return nil, err
		}
		p.vsAI = true
		p.difficulty = d
		p.black = &domain.Player{UserID: aiUserIDPrefix + string(d), Elo: d.Elo(), AI: true}
	}
	return m.start(ctx, creator, p)
}

// CreateMatched starts an ACTIVE game for a matchmaking pair.
func (m *Manager) CreateMatched(ctx context.Context, whiteID, blackID string) (string, error) {
	whiteID = strings.TrimSpace(whiteID)
	blackID = strings.TrimSpace(blackID)
	if whiteID == "" || blackID == "" {
		return "", ErrNoCreator
	}
	p := sessionParams{subjects: []string{defaultSubject}}
	s, err := m.start(ctx, whiteID, p, blackID)
	if err != nil {
		return "", err
	}
	return s.code, nil
}

func (m *Manager) start(ctx context.Context, whiteID string, p sessionParams, blackID ...string) (*Session, error) {
	code, err := m.allocateCode(ctx)
	if err != nil {
		return nil, err
	}
	p.code = code
	s := newSession(&m.deps, p)
	s.mu.Lock()
	s.white = s.playerLocked(ctx, whiteID)
	if len(blackID) > 0 {
		s.black = s.playerLocked(ctx, blackID[0])
	}
	if s.black != nil {
		s.status = domain.StatusActive
		s.startedAt = s.createdAt
	}
	s.persistRecordLocked(ctx)
	s.saveLiveLocked(ctx)
	s.mu.Unlock()

	m.mu.Lock()
	m.sessions[code] = s
	m.mu.Unlock()

	if m.cfg.Warmer != nil {
		if err := m.cfg.Warmer.Warm(ctx, code, p.subjects, m.cfg.QuizPrefetch); err != nil {
			obslog.L().Warn("quiz_prefetch_failed", zap.String("code", code), zap.Error(err))
		}
	}
	obslog.L().Info("game_created",
		zap.String("code", code),
		zap.String("white", whiteID),
		zap.Strings("subjects", p.subjects),
		zap.Bool("vs_ai", p.vsAI),
		zap.String("status", string(s.Status())),
	)
	return s, nil
}

func (m *Manager) normalizeSubjects(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		s := strings.ToLower(strings.TrimSpace(raw))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		if m.cfg.Subjects != nil && !m.cfg.Subjects.Has(s) {
			return nil, ErrUnknownSubject
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) > maxSubjects {
		return nil, ErrTooManySubject
	}
	if len(out) == 0 {
		out = []string{defaultSubject}
	}
	return out, nil
}

func (m *Manager) allocateCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := newCode()
		if err != nil {
			return "", err
		}
		m.mu.RLock()
		_, taken := m.sessions[code]
		m.mu.RUnlock()
		if taken {
			continue
		}
		if m.deps.Live == nil {
			return code, nil
		}
		ok, err := m.deps.Live.ReserveCode(ctx, code)
		if err != nil {
			obslog.L().Warn("code_reserve_failed", zap.String("code", code), zap.Error(err))
			return code, nil
		}
		if ok {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

func newCode() (string, error) {
	b := make([]byte, codeLength)
	n := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// Get returns the live session, or nil.
func (m *Manager) Get(code string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[strings.TrimSpace(code)]
}

// Snapshot reads a live session, falling back to the shared live store.
func (m *Manager) Snapshot(ctx context.Context, code string) (*chessdto.GameSnapshot, error) {
	if s := m.Get(code); s != nil {
		snap := s.Snapshot()
		return &snap, nil
	}
	if m.deps.Live == nil {
		return nil, nil
	}
	var snap chessdto.GameSnapshot
	ok, err := m.deps.Live.LoadSnapshot(ctx, code, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// Sweep applies the stale policy once and returns the number of evicted sessions.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	evicted := 0
	for _, s := range list {
		if !s.sweep(ctx, now, m.cfg.Sweep) {
			continue
		}
		m.mu.Lock()
		delete(m.sessions, s.code)
		m.mu.Unlock()
		evicted++
		if m.deps.Live != nil {
			if err := m.deps.Live.Forget(ctx, s.code); err != nil {
				obslog.L().Warn("live_forget_failed", zap.String("code", s.code), zap.Error(err))
			}
		}
		if m.cfg.Warmer != nil {
			_ = m.cfg.Warmer.Drop(ctx, s.code, s.subjects)
		}
	}
	if evicted > 0 {
		obslog.L().Info("game_sweep", zap.Int("evicted", evicted))
	}
	return evicted
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Sweep(ctx, m.deps.Clock.Now())
		}
	}
}
