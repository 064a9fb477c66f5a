package chessdto

// MoveRequest is the client move payload.
type MoveRequest struct {
	FromSquare    string `json:"from_square"`
	ToSquare      string `json:"to_square"`
	Piece         string `json:"piece,omitempty"`
	CapturedPiece string `json:"captured_piece,omitempty"`
	MoveNumber    int    `json:"move_number,omitempty"`
	Promotion     string `json:"promotion,omitempty"`
}

// MoveEvent is broadcast for every applied move.
type MoveEvent struct {
	FromSquare    string `json:"from_square"`
	ToSquare      string `json:"to_square"`
	Piece         string `json:"piece"`
	MoveNumber    int    `json:"move_number"`
	FENAfter      string `json:"fen_after"`
	CapturedPiece string `json:"captured_piece,omitempty"`
	Promotion     string `json:"promotion,omitempty"`
	SAN           string `json:"san,omitempty"`
	UUID          string `json:"uuid"`
	Player        string `json:"player,omitempty"`
}

type QuizAnswerRequest struct {
	Answer     string `json:"answer"`
	MoveNumber int    `json:"move_number"`
}

// QuizRequired goes to the capturing player only; it never carries the answer.
type QuizRequired struct {
	Question   string   `json:"question"`
	Choices    []string `json:"choices"`
	MoveNumber int      `json:"move_number"`
	Subject    string   `json:"subject"`
	Deadline   int64    `json:"deadline"`
}

// QuizPending tells everyone else that a capture waits on a quiz.
type QuizPending struct {
	MoveNumber int    `json:"move_number"`
	Subject    string `json:"subject"`
	Deadline   int64  `json:"deadline"`
	Player     string `json:"player,omitempty"`
}
