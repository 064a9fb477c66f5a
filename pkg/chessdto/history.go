package chessdto

type RatingChange struct {
	Old int `json:"old"`
	New int `json:"new"`
}

type EloChange struct {
	White RatingChange `json:"white"`
	Black RatingChange `json:"black"`
}

// GameOver is broadcast once when a game finishes. Winner is white, black or draw.
type GameOver struct {
	Reason    string     `json:"reason"`
	Winner    string     `json:"winner"`
	EloChange *EloChange `json:"elo_change,omitempty"`
	FEN       string     `json:"fen,omitempty"`
	PGN       string     `json:"pgn,omitempty"`
}

type DrawOffer struct {
	From string `json:"from"`
}
