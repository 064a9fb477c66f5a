package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/quizchess/internal/ai"
	appcfg "github.com/park285/quizchess/internal/config"
	"github.com/park285/quizchess/internal/game"
	"github.com/park285/quizchess/internal/hub"
	"github.com/park285/quizchess/internal/matchmaking"
	"github.com/park285/quizchess/internal/obslog"
	"github.com/park285/quizchess/internal/quiz"
	"github.com/park285/quizchess/internal/rating"
	"github.com/park285/quizchess/internal/rules"
	"github.com/park285/quizchess/internal/server"
	"github.com/park285/quizchess/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using environment")
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bank, err := quiz.LoadBank(cfg.QuizBankDir)
	if err != nil {
		logger.Fatal("quiz_bank_load_failed", zap.Error(err))
	}
	logger.Info("quiz_bank_loaded", zap.Strings("subjects", bank.Subjects()))

	repo := openRepository(ctx, cfg.DatabaseURL)
	defer func() { _ = repo.Close() }()

	chessRules := rules.New()
	deps := game.Deps{
		Rules:       chessRules,
		Openings:    chessRules,
		Quiz:        bank,
		Rating:      rating.NewUpdater(cfg.EloKFactor),
		Repo:        repo,
		QuizTimeout: cfg.QuizTimeout,
		DefaultElo:  cfg.DefaultElo,
	}
	mcfg := game.ManagerConfig{
		Subjects:     bank,
		QuizPrefetch: cfg.QuizPrefetch,
		Sweep: game.SweepPolicy{
			WaitingAfter:  cfg.StaleWaitingAfter,
			ActiveAfter:   cfg.StaleActiveAfter,
			FinishedAfter: cfg.GameTTL,
		},
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = store.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis_unavailable", zap.Error(err))
		}
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		cache := quiz.NewCache(rdb, bank, cfg.GameTTL)
		deps.Live = store.NewLiveState(rdb, cfg.GameTTL)
		deps.QuizFor = cache.ForGame
		mcfg.Warmer = cache
	}

	movers := ai.Chain{}
	book, err := ai.OpenBook(cfg.PolyglotBookPath)
	if err != nil {
		logger.Warn("polyglot_book_unavailable", zap.Error(err))
	}
	if book != nil {
		movers = append(movers, book)
	}
	if cfg.StockfishPath != "" {
		sf, err := ai.NewStockfish(cfg.StockfishPath)
		if err != nil {
			logger.Warn("stockfish_unavailable", zap.String("path", cfg.StockfishPath), zap.Error(err))
		} else {
			defer func() { _ = sf.Close() }()
			movers = append(movers, sf)
		}
	}
	deps.AI = append(movers, ai.NewRandom(chessRules, time.Now().UnixNano()))

	h := hub.New()
	deps.Notify = h
	games := game.NewManager(deps, mcfg)
	queue := matchmaking.New(matchmaking.Config{
		RetryInterval: cfg.MatchRetryInterval,
		Expiry:        cfg.MatchExpiry,
	}, games, h)

	api := server.New(games, h, queue, repo, server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.HubSendBuffer,
		DefaultElo:     cfg.DefaultElo,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return games.Run(gctx, cfg.CleanupInterval) })

	if err := g.Wait(); err != nil {
		logger.Error("server_exit", zap.Error(err))
		return
	}
	logger.Info("server_stopped")
}

// openRepository prefers postgres and falls back to memory when it is not configured or unreachable.
func openRepository(ctx context.Context, databaseURL string) store.Repository {
	if databaseURL == "" {
		obslog.L().Warn("database_not_configured", zap.String("fallback", "memory"))
		return store.NewMemoryRepository()
	}
	pg, err := store.OpenPostgres(ctx, databaseURL)
	if err != nil {
		obslog.L().Error("postgres_unavailable", zap.String("fallback", "memory"), zap.Error(err))
		return store.NewMemoryRepository()
	}
	return pg
}
