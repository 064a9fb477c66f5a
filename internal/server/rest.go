package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/domain"
	"github.com/park285/quizchess/internal/game"
	"github.com/park285/quizchess/internal/obslog"
	"github.com/park285/quizchess/pkg/chessdto"
)

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	user := identity(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req chessdto.CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	sess, err := s.games.Create(r.Context(), game.CreateRequest{
		Creator:      user,
		Subjects:     req.Subjects,
		VsAI:         req.VsAI,
		AIDifficulty: req.AIDifficulty,
	})
	if err != nil {
		obslog.L().Info("game_create_rejected",
			zap.String("user_id", user),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, chessdto.CreateGameResponse{Code: sess.Code()})
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	snap, err := s.games.Snapshot(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		obslog.L().Error("game_snapshot_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, game.ErrGameNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listMoves(w http.ResponseWriter, r *http.Request) {
	moves, err := s.repo.ListMoves(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		obslog.L().Error("move_list_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "moves unavailable")
		return
	}
	if moves == nil {
		moves = []domain.MoveRecord{}
	}
	writeJSON(w, http.StatusOK, moves)
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		obslog.L().Error("profile_load_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "profile unavailable")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	writeJSON(w, http.StatusOK, profileDTO(p))
}

func profileDTO(p *domain.PlayerProfile) chessdto.Profile {
	return chessdto.Profile{
		UserID:        p.UserID,
		Rating:        p.Rating,
		GamesPlayed:   p.GamesPlayed,
		Wins:          p.Wins,
		Losses:        p.Losses,
		Draws:         p.Draws,
		WinRatio:      p.WinRatio(),
		QuizAttempted: p.QuizAttempted,
		QuizCorrect:   p.QuizCorrect,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := listLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	top, err := s.repo.TopProfiles(r.Context(), limit)
	if err != nil {
		obslog.L().Error("leaderboard_load_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "leaderboard unavailable")
		return
	}
	out := make([]chessdto.LeaderboardEntry, 0, len(top))
	for i := range top {
		out = append(out, chessdto.LeaderboardEntry{Rank: i + 1, Profile: profileDTO(&top[i])})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listPlayerGames(w http.ResponseWriter, r *http.Request) {
	limit, ok := listLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	user := strings.TrimSpace(chi.URLParam(r, "id"))
	games, err := s.repo.ListGamesByPlayer(r.Context(), user, limit)
	if err != nil {
		obslog.L().Error("player_games_load_failed", zap.String("user_id", user), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "games unavailable")
		return
	}
	out := make([]chessdto.GameSummary, 0, len(games))
	for i := range games {
		out = append(out, gameSummary(user, &games[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func gameSummary(user string, g *domain.GameRecord) chessdto.GameSummary {
	sum := chessdto.GameSummary{
		Code:         g.Code,
		Status:       string(g.Status),
		Result:       string(g.Result),
		Reason:       g.Reason,
		Subjects:     append([]string{}, g.Subjects...),
		VsAI:         g.VsAI,
		AIDifficulty: g.AIDifficulty,
		FEN:          g.FinalFEN,
		StartedAt:    g.StartedAt,
	}
	mine, theirs := domain.White, domain.Black
	sum.Opponent = g.BlackID
	if g.WhiteID != user {
		mine, theirs = domain.Black, domain.White
		sum.Opponent = g.WhiteID
	}
	sum.Color = string(mine)
	if !g.EndedAt.IsZero() {
		ended := g.EndedAt
		sum.EndedAt = &ended
	}
	switch g.Result {
	case domain.ResultDraw:
		sum.Outcome = "draw"
	case domain.Result(mine):
		sum.Outcome, sum.Winner = "win", user
	case domain.Result(theirs):
		sum.Outcome, sum.Winner = "loss", sum.Opponent
	}
	return sum
}

// listLimit reads ?limit=, defaulting to defaultListLimit and capped at maxListLimit.
func listLimit(r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "matchmaking unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.queue.Status())
}
