package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/quizchess/internal/domain"
)

// memrepo is the in-memory Repository used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	profiles map[string]*domain.PlayerProfile
	games    map[string]*domain.GameRecord
	moves    map[string][]domain.MoveRecord // game code -> moves by number
}

func NewMemoryRepository() Repository {
	return &memrepo{
		profiles: make(map[string]*domain.PlayerProfile),
		games:    make(map[string]*domain.GameRecord),
		moves:    make(map[string][]domain.MoveRecord),
	}
}

func (m *memrepo) GetProfile(ctx context.Context, userID string) (*domain.PlayerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[strings.TrimSpace(userID)]; ok && p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memrepo) UpsertProfile(ctx context.Context, profile *domain.PlayerProfile) error {
	if profile == nil {
		return nil
	}
	m.mu.Lock()
	m.putProfileLocked(profile)
	m.mu.Unlock()
	return nil
}

func (m *memrepo) putProfileLocked(profile *domain.PlayerProfile) {
	cp := *profile
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	m.profiles[strings.TrimSpace(cp.UserID)] = &cp
}

func (m *memrepo) RecordQuiz(ctx context.Context, userID string, correct bool, defaultRating int) error {
	key := strings.TrimSpace(userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[key]
	if !ok || p == nil {
		now := time.Now()
		p = &domain.PlayerProfile{UserID: key, Rating: defaultRating, CreatedAt: now}
		m.profiles[key] = p
	}
	p.QuizAttempted++
	if correct {
		p.QuizCorrect++
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (m *memrepo) TopProfiles(ctx context.Context, n int) ([]domain.PlayerProfile, error) {
	m.mu.RLock()
	out := make([]domain.PlayerProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].UserID < out[j].UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *memrepo) SaveGame(ctx context.Context, game *domain.GameRecord) error {
	if game == nil {
		return nil
	}
	m.mu.Lock()
	m.putGameLocked(game)
	m.mu.Unlock()
	return nil
}

func (m *memrepo) putGameLocked(game *domain.GameRecord) {
	cp := *game
	cp.Subjects = append([]string(nil), game.Subjects...)
	cp.MovesSAN = append([]string(nil), game.MovesSAN...)
	m.games[strings.TrimSpace(game.Code)] = &cp
}

func (m *memrepo) GetGame(ctx context.Context, code string) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[strings.TrimSpace(code)]
	if !ok || g == nil {
		return nil, nil
	}
	cp := *g
	cp.Subjects = append([]string(nil), g.Subjects...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp, nil
}

func (m *memrepo) FinishGame(ctx context.Context, game *domain.GameRecord, profiles ...*domain.PlayerProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if game != nil {
		m.putGameLocked(game)
	}
	for _, p := range profiles {
		if p != nil {
			m.putProfileLocked(p)
		}
	}
	return nil
}

func (m *memrepo) ListGamesByPlayer(ctx context.Context, userID string, n int) ([]domain.GameRecord, error) {
	key := strings.TrimSpace(userID)
	m.mu.RLock()
	var out []domain.GameRecord
	for _, g := range m.games {
		if key == "" || (g.WhiteID != key && g.BlackID != key) {
			continue
		}
		cp := *g
		cp.Subjects = append([]string(nil), g.Subjects...)
		cp.MovesSAN = append([]string(nil), g.MovesSAN...)
		out = append(out, cp)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].Code < out[j].Code
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *memrepo) AppendMove(ctx context.Context, code string, move domain.MoveRecord) error {
	key := strings.TrimSpace(code)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.moves[key] {
		if existing.UUID == move.UUID {
			return nil
		}
	}
	m.moves[key] = append(m.moves[key], move)
	sort.SliceStable(m.moves[key], func(i, j int) bool { return m.moves[key][i].Number < m.moves[key][j].Number })
	return nil
}

func (m *memrepo) ListMoves(ctx context.Context, code string) ([]domain.MoveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.MoveRecord{}, m.moves[strings.TrimSpace(code)]...), nil
}

func (m *memrepo) Close() error { return nil }
