package chessdto

import "time"

// Profile is the GET /api/players/{id} body.
type Profile struct {
	UserID        string    `json:"user_id"`
	Rating        int       `json:"rating"`
	GamesPlayed   int       `json:"games_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	WinRatio      float64   `json:"win_ratio"`
	QuizAttempted int       `json:"quiz_attempted"`
	QuizCorrect   int       `json:"quiz_correct"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LeaderboardEntry is one row of GET /api/leaderboard. Rank starts at 1.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	Profile
}

// GameSummary is one row of GET /api/players/{id}/games.
// Outcome is win, loss or draw from the player's side, empty while unfinished.
type GameSummary struct {
	Code         string     `json:"code"`
	Status       string     `json:"status"`
	Color        string     `json:"color"`
	Opponent     string     `json:"opponent,omitempty"`
	Result       string     `json:"result,omitempty"`
	Outcome      string     `json:"outcome,omitempty"`
	Winner       string     `json:"winner,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Subjects     []string   `json:"subjects"`
	VsAI         bool       `json:"is_vs_ai"`
	AIDifficulty string     `json:"ai_difficulty,omitempty"`
	FEN          string     `json:"fen,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}
