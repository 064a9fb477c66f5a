package chessdto

// ReasonPayload is carried by permission_denied, move_invalid and error.
type ReasonPayload struct {
	Reason string `json:"reason"`
}

// QuizFailed reports a discarded capture. FEN is the unchanged position.
type QuizFailed struct {
	Reason      string       `json:"reason"`
	MoveNumber  int          `json:"move_number,omitempty"`
	FEN         string       `json:"fen,omitempty"`
	BlockedMove *BlockedMove `json:"blocked_move,omitempty"`
}

type BlockedMove struct {
	From string `json:"from_square"`
	To   string `json:"to_square"`
}
