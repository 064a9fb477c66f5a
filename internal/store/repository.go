// Package store persists profiles, game records and move logs, and keeps live
// game snapshots in redis.
package store

import (
	"context"

	"github.com/park285/quizchess/internal/domain"
)

// Repository is the durable store. Lookups return nil, nil when absent.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*domain.PlayerProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.PlayerProfile) error
	// RecordQuiz bumps the quiz counters of a user, creating the profile with defaultRating if needed.
	RecordQuiz(ctx context.Context, userID string, correct bool, defaultRating int) error
	// TopProfiles ranks profiles by rating, highest first.
	TopProfiles(ctx context.Context, n int) ([]domain.PlayerProfile, error)

	SaveGame(ctx context.Context, game *domain.GameRecord) error
	GetGame(ctx context.Context, code string) (*domain.GameRecord, error)
	// FinishGame stores the final record and the settled profiles together.
	FinishGame(ctx context.Context, game *domain.GameRecord, profiles ...*domain.PlayerProfile) error
	// ListGamesByPlayer returns the games userID sat in, newest first.
	ListGamesByPlayer(ctx context.Context, userID string, n int) ([]domain.GameRecord, error)

	AppendMove(ctx context.Context, code string, move domain.MoveRecord) error
	ListMoves(ctx context.Context, code string) ([]domain.MoveRecord, error)

	Close() error
}
