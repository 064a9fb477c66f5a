package chessdto

import "time"

type PlayerInfo struct {
	UserID string `json:"user_id"`
	Elo    int    `json:"elo"`
	AI     bool   `json:"ai,omitempty"`
}

type PendingQuizInfo struct {
	MoveNumber int    `json:"move_number"`
	Subject    string `json:"subject"`
	Player     string `json:"player"`
	Deadline   int64  `json:"deadline"`
}

type MoveInfo struct {
	MoveNumber    int    `json:"move_number"`
	Side          string `json:"side"`
	FromSquare    string `json:"from_square"`
	ToSquare      string `json:"to_square"`
	Piece         string `json:"piece"`
	CapturedPiece string `json:"captured_piece,omitempty"`
	Promotion     string `json:"promotion,omitempty"`
	SAN           string `json:"san"`
	FENAfter      string `json:"fen_after"`
	UUID          string `json:"uuid"`
}

// GameSnapshot is the full game_update payload.
type GameSnapshot struct {
	Code         string           `json:"code"`
	Status       string           `json:"status"`
	FEN          string           `json:"fen"`
	Turn         string           `json:"turn"`
	White        *PlayerInfo      `json:"white,omitempty"`
	Black        *PlayerInfo      `json:"black,omitempty"`
	Moves        []MoveInfo       `json:"moves"`
	Subjects     []string         `json:"subjects"`
	VsAI         bool             `json:"is_vs_ai"`
	AIDifficulty string           `json:"ai_difficulty,omitempty"`
	OpeningCode  string           `json:"opening_code,omitempty"`
	OpeningName  string           `json:"opening_name,omitempty"`
	PendingQuiz  *PendingQuizInfo `json:"pending_quiz,omitempty"`
	BlockedMoves []BlockedMove    `json:"blocked_moves,omitempty"`
	DrawOfferBy  string           `json:"draw_offer_by,omitempty"`
	Result       string           `json:"result,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// SeatEvent covers player_joined, spectator_joined, spectator_left,
// black_player_joined and joined_as_black.
type SeatEvent struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role"`
	Code   string `json:"code,omitempty"`
}
