package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/quizchess/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects, pings and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := newPostgres(db)
	if err := p.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func newPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const profileColumns = `
			user_id,
			rating,
			games_played,
			wins,
			losses,
			draws,
			quiz_attempted,
			quiz_correct,
			created_at,
			updated_at`

func scanProfile(row rowScanner) (*domain.PlayerProfile, error) {
	var profile domain.PlayerProfile
	err := row.Scan(
		&profile.UserID,
		&profile.Rating,
		&profile.GamesPlayed,
		&profile.Wins,
		&profile.Losses,
		&profile.Draws,
		&profile.QuizAttempted,
		&profile.QuizCorrect,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *Postgres) GetProfile(ctx context.Context, userID string) (*domain.PlayerProfile, error) {
	query := `SELECT` + profileColumns + `
		FROM player_profiles
		WHERE user_id = $1`

	profile, err := scanProfile(p.db.QueryRowContext(ctx, query, strings.TrimSpace(userID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return profile, nil
}

func (p *Postgres) TopProfiles(ctx context.Context, n int) ([]domain.PlayerProfile, error) {
	query := `SELECT` + profileColumns + `
		FROM player_profiles
		ORDER BY rating DESC, user_id ASC
		LIMIT $1`

	rows, err := p.db.QueryContext(ctx, query, limitOrAll(n))
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.PlayerProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return out, nil
}

func (p *Postgres) UpsertProfile(ctx context.Context, profile *domain.PlayerProfile) error {
	return upsertProfile(ctx, p.db, profile)
}

func upsertProfile(ctx context.Context, db execer, profile *domain.PlayerProfile) error {
	if profile == nil {
		return fmt.Errorf("nil profile payload")
	}
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = now
	}
	const query = `
		INSERT INTO player_profiles (
			user_id,
			rating,
			games_played,
			wins,
			losses,
			draws,
			quiz_attempted,
			quiz_correct,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			quiz_attempted = EXCLUDED.quiz_attempted,
			quiz_correct = EXCLUDED.quiz_correct,
			updated_at = EXCLUDED.updated_at`

	_, err := db.ExecContext(ctx, query,
		profile.UserID,
		profile.Rating,
		profile.GamesPlayed,
		profile.Wins,
		profile.Losses,
		profile.Draws,
		profile.QuizAttempted,
		profile.QuizCorrect,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (p *Postgres) RecordQuiz(ctx context.Context, userID string, correct bool, defaultRating int) error {
	inc := 0
	if correct {
		inc = 1
	}
	const query = `
		INSERT INTO player_profiles (user_id, rating, quiz_attempted, quiz_correct)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			quiz_attempted = player_profiles.quiz_attempted + 1,
			quiz_correct = player_profiles.quiz_correct + EXCLUDED.quiz_correct,
			updated_at = now()`

	if _, err := p.db.ExecContext(ctx, query, strings.TrimSpace(userID), defaultRating, inc); err != nil {
		return fmt.Errorf("record quiz: %w", err)
	}
	return nil
}

func (p *Postgres) SaveGame(ctx context.Context, game *domain.GameRecord) error {
	return saveGame(ctx, p.db, game)
}

func saveGame(ctx context.Context, db execer, game *domain.GameRecord) error {
	if game == nil {
		return fmt.Errorf("nil game payload")
	}
	subjects, err := json.Marshal(nonNil(game.Subjects))
	if err != nil {
		return fmt.Errorf("marshal subjects: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(game.MovesSAN))
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}
	var endedAt sql.NullTime
	if !game.EndedAt.IsZero() {
		endedAt = sql.NullTime{Time: game.EndedAt, Valid: true}
	}

	const query = `
		INSERT INTO quiz_games (
			code,
			white_id,
			black_id,
			subjects,
			vs_ai,
			ai_difficulty,
			status,
			result,
			reason,
			final_fen,
			moves_san,
			pgn,
			started_at,
			ended_at
		)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14)
		ON CONFLICT (code) DO UPDATE SET
			white_id = EXCLUDED.white_id,
			black_id = EXCLUDED.black_id,
			subjects = EXCLUDED.subjects,
			vs_ai = EXCLUDED.vs_ai,
			ai_difficulty = EXCLUDED.ai_difficulty,
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			reason = EXCLUDED.reason,
			final_fen = EXCLUDED.final_fen,
			moves_san = EXCLUDED.moves_san,
			pgn = EXCLUDED.pgn,
			ended_at = EXCLUDED.ended_at`

	_, err = db.ExecContext(ctx, query,
		game.Code,
		game.WhiteID,
		game.BlackID,
		subjects,
		game.VsAI,
		game.AIDifficulty,
		string(game.Status),
		string(game.Result),
		game.Reason,
		game.FinalFEN,
		movesSAN,
		game.PGN,
		game.StartedAt,
		endedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}
	return nil
}

const gameColumns = `
			code,
			white_id,
			black_id,
			subjects,
			vs_ai,
			ai_difficulty,
			status,
			result,
			reason,
			final_fen,
			moves_san,
			pgn,
			started_at,
			ended_at`

func scanGame(row rowScanner) (*domain.GameRecord, error) {
	var (
		game         domain.GameRecord
		status       string
		result       string
		subjectsJSON []byte
		movesSANJSON []byte
		endedAt      sql.NullTime
	)
	err := row.Scan(
		&game.Code,
		&game.WhiteID,
		&game.BlackID,
		&subjectsJSON,
		&game.VsAI,
		&game.AIDifficulty,
		&status,
		&result,
		&game.Reason,
		&game.FinalFEN,
		&movesSANJSON,
		&game.PGN,
		&game.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}
	game.Status = domain.GameStatus(status)
	game.Result = domain.Result(result)
	if endedAt.Valid {
		game.EndedAt = endedAt.Time
	}
	if err := json.Unmarshal(subjectsJSON, &game.Subjects); err != nil {
		return nil, fmt.Errorf("unmarshal subjects: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}

func (p *Postgres) GetGame(ctx context.Context, code string) (*domain.GameRecord, error) {
	query := `SELECT` + gameColumns + `
		FROM quiz_games
		WHERE code = $1`

	game, err := scanGame(p.db.QueryRowContext(ctx, query, strings.TrimSpace(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	return game, nil
}

func (p *Postgres) ListGamesByPlayer(ctx context.Context, userID string, n int) ([]domain.GameRecord, error) {
	query := `SELECT` + gameColumns + `
		FROM quiz_games
		WHERE white_id = $1 OR black_id = $1
		ORDER BY started_at DESC, code ASC
		LIMIT $2`

	key := strings.TrimSpace(userID)
	if key == "" {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, query, key, limitOrAll(n))
	if err != nil {
		return nil, fmt.Errorf("select player games: %w", err)
	}
	defer rows.Close()

	var out []domain.GameRecord
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, *game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player games: %w", err)
	}
	return out, nil
}

func (p *Postgres) FinishGame(ctx context.Context, game *domain.GameRecord, profiles ...*domain.PlayerProfile) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := saveGame(ctx, tx, game); err != nil {
		return err
	}
	for _, prof := range profiles {
		if prof == nil {
			continue
		}
		if err := upsertProfile(ctx, tx, prof); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) AppendMove(ctx context.Context, code string, m domain.MoveRecord) error {
	var quizCorrect sql.NullBool
	if m.QuizCorrect != nil {
		quizCorrect = sql.NullBool{Bool: *m.QuizCorrect, Valid: true}
	}
	const query = `
		INSERT INTO quiz_game_moves (
			uuid,
			game_code,
			move_number,
			player_id,
			side,
			from_square,
			to_square,
			piece,
			captured_piece,
			promotion,
			uci,
			san,
			fen_before,
			fen_after,
			quiz_required,
			quiz_correct,
			played_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (uuid) DO NOTHING`

	_, err := p.db.ExecContext(ctx, query,
		m.UUID,
		strings.TrimSpace(code),
		m.Number,
		m.PlayerID,
		string(m.Side),
		m.From,
		m.To,
		m.Piece,
		m.Captured,
		m.Promotion,
		m.UCI,
		m.SAN,
		m.FENBefore,
		m.FENAfter,
		m.QuizRequired,
		quizCorrect,
		m.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	return nil
}

func (p *Postgres) ListMoves(ctx context.Context, code string) ([]domain.MoveRecord, error) {
	const query = `
		SELECT
			uuid,
			move_number,
			player_id,
			side,
			from_square,
			to_square,
			piece,
			captured_piece,
			promotion,
			uci,
			san,
			fen_before,
			fen_after,
			quiz_required,
			quiz_correct,
			played_at
		FROM quiz_game_moves
		WHERE game_code = $1
		ORDER BY move_number ASC`

	rows, err := p.db.QueryContext(ctx, query, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()

	moves := make([]domain.MoveRecord, 0, 64)
	for rows.Next() {
		var (
			m           domain.MoveRecord
			side        string
			quizCorrect sql.NullBool
		)
		if err := rows.Scan(
			&m.UUID,
			&m.Number,
			&m.PlayerID,
			&side,
			&m.From,
			&m.To,
			&m.Piece,
			&m.Captured,
			&m.Promotion,
			&m.UCI,
			&m.SAN,
			&m.FENBefore,
			&m.FENAfter,
			&m.QuizRequired,
			&quizCorrect,
			&m.PlayedAt,
		); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		m.Side = domain.Side(side)
		if quizCorrect.Valid {
			v := quizCorrect.Bool
			m.QuizCorrect = &v
		}
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moves: %w", err)
	}
	return moves, nil
}

// limitOrAll maps n <= 0 to a NULL limit, which postgres reads as no limit.
func limitOrAll(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n > 0}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
