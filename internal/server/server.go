// Package server exposes the REST API and the game and matchmaking websocket channels.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/game"
	"github.com/park285/quizchess/internal/hub"
	"github.com/park285/quizchess/internal/matchmaking"
	"github.com/park285/quizchess/internal/obslog"
	"github.com/park285/quizchess/internal/store"
)

const (
	userHeader   = "X-User-Id"
	userQuery    = "user_id"
	writeTimeout = 5 * time.Second
	readTimeout  = 2 * time.Minute

	defaultListLimit = 20
	maxListLimit     = 100

	// StatusUnauthenticated closes matchmaking sockets without an identity.
	StatusUnauthenticated = 4001
)

type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	DefaultElo     int
}

type Server struct {
	games *game.Manager
	hub   *hub.Hub
	queue *matchmaking.Queue
	repo  store.Repository
	opts  Options
}

func New(games *game.Manager, h *hub.Hub, queue *matchmaking.Queue, repo store.Repository, opts Options) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = hub.DefaultSendBuffer
	}
	if opts.DefaultElo <= 0 {
		opts.DefaultElo = 1200
	}
	return &Server{games: games, hub: h, queue: queue, repo: repo, opts: opts}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/games", s.createGame)
		r.Get("/games/{code}", s.getGame)
		r.Get("/games/{code}/moves", s.listMoves)
		r.Get("/players/{id}", s.getPlayer)
		r.Get("/players/{id}/games", s.listPlayerGames)
		r.Get("/leaderboard", s.leaderboard)
		r.Get("/matchmaking/status", s.queueStatus)
	})
	r.Get("/ws/game/{code}", s.gameSocket)
	r.Get("/ws/matchmaking", s.matchSocket)
	return r
}

// identity reads the caller's user id. Browsers cannot set headers on a
// websocket handshake, so the query parameter is accepted as well.
func identity(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(userHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(userQuery))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Warn("http_write_failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
