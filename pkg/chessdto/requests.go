package chessdto

// CreateGameRequest is the POST /api/games body.
type CreateGameRequest struct {
	Subjects     []string `json:"subjects,omitempty"`
	VsAI         bool     `json:"vs_ai,omitempty"`
	AIDifficulty string   `json:"ai_difficulty,omitempty"`
}

type CreateGameResponse struct {
	Code string `json:"code"`
}

type SearchStarted struct {
	Message  string `json:"message"`
	SearchID string `json:"search_id"`
}

type SearchCancelled struct {
	Message string `json:"message"`
}

type GameFound struct {
	Game     FoundGame `json:"game"`
	Message  string    `json:"message"`
	GameCode string    `json:"game_code"`
}

type FoundGame struct {
	Code  string `json:"code"`
	Color string `json:"color"`
	White string `json:"white"`
	Black string `json:"black"`
}

type QueueStatus struct {
	QueueLength    int `json:"queue_length"`
	ActiveSearches int `json:"active_searches"`
}
