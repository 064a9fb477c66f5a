package domain

import "time"

// Side is a board color.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

// Role is a connection's permission within a game.
type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

// IsPlayer reports whether the role holds a seat.
func (r Role) IsPlayer() bool { return r == RoleWhite || r == RoleBlack }

// Side maps a player role to its color. Spectators map to "".
func (r Role) Side() Side {
	switch r {
	case RoleWhite:
		return White
	case RoleBlack:
		return Black
	}
	return ""
}

// RoleOf maps a color to its player role.
func RoleOf(s Side) Role {
	if s == White {
		return RoleWhite
	}
	return RoleBlack
}

type GameStatus string

const (
	StatusWaiting      GameStatus = "WAITING"
	StatusActive       GameStatus = "ACTIVE"
	StatusAwaitingQuiz GameStatus = "AWAITING_QUIZ"
	StatusFinished     GameStatus = "FINISHED"
)

// Result is the final outcome token: "white", "black" or "draw".
type Result string

const (
	ResultNone  Result = ""
	ResultWhite Result = "white"
	ResultBlack Result = "black"
	ResultDraw  Result = "draw"
)

// Player identifies a seat holder.
type Player struct {
	UserID string `json:"user_id"`
	Elo    int    `json:"elo"`
	AI     bool   `json:"ai,omitempty"`
}

// MoveRecord is one applied move.
type MoveRecord struct {
	UUID         string    `json:"uuid"`
	Number       int       `json:"move_number"`
	PlayerID     string    `json:"player_id,omitempty"`
	Side         Side      `json:"side"`
	From         string    `json:"from_square"`
	To           string    `json:"to_square"`
	Piece        string    `json:"piece"`
	Captured     string    `json:"captured_piece,omitempty"`
	Promotion    string    `json:"promotion,omitempty"`
	UCI          string    `json:"uci"`
	SAN          string    `json:"san"`
	FENBefore    string    `json:"fen_before"`
	FENAfter     string    `json:"fen_after"`
	QuizRequired bool      `json:"quiz_required"`
	QuizCorrect  *bool     `json:"quiz_correct,omitempty"`
	PlayedAt     time.Time `json:"played_at"`
}

// GameRecord is the persisted summary of a game.
type GameRecord struct {
	Code         string
	WhiteID      string
	BlackID      string
	Subjects     []string
	VsAI         bool
	AIDifficulty string
	Status       GameStatus
	Result       Result
	Reason       string
	FinalFEN     string
	MovesSAN     []string
	PGN          string
	StartedAt    time.Time
	EndedAt      time.Time
}

// PlayerProfile carries rating and lifetime stats.
type PlayerProfile struct {
	UserID        string    `json:"user_id"`
	Rating        int       `json:"rating"`
	GamesPlayed   int       `json:"games_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	QuizAttempted int       `json:"quiz_attempted"`
	QuizCorrect   int       `json:"quiz_correct"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WinRatio is wins/(wins+losses), 0 without decisive games.
func (p *PlayerProfile) WinRatio() float64 {
	if p == nil || p.Wins+p.Losses == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.Wins+p.Losses)
}
