package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/dirty-laundry/internal/auth"
	"github.com/freeeve/dirty-laundry/internal/config"
	"github.com/freeeve/dirty-laundry/internal/handler"
	"github.com/freeeve/dirty-laundry/internal/logger"
	"github.com/freeeve/dirty-laundry/internal/middleware"
	"github.com/freeeve/dirty-laundry/internal/repository"
	"github.com/freeeve/dirty-laundry/internal/repository/memory"
	"github.com/freeeve/dirty-laundry/internal/repository/postgres"
	redisrepo "github.com/freeeve/dirty-laundry/internal/repository/redis"
	"github.com/freeeve/dirty-laundry/internal/service"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Game server for Murder at the Cabin",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel, cfg.DevMode, cfg.LogFile)
			return run(cmd.Context(), cfg)
		},
	}
	config.BindFlags(cmd.Flags(), v)
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

// backends bundles the storage the services run on.
type backends struct {
	store    repository.DocumentStore
	clock    repository.PhaseClock
	users    repository.UserRepository
	messages repository.MessageRepository
	results  repository.ResultRepository
	redis    *redisrepo.Client // nil with the memory store
	db       *sql.DB           // nil without a database url
}

func (b *backends) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.db != nil {
		b.db.Close()
	}
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory session store; sessions are lost on restart")
		b.store = memory.NewStore()
		b.clock = memory.NewClock()
	default:
		client, err := redisrepo.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		// Expiry events speed up timers; the poller still covers for them.
		if err := client.EnableExpiryEvents(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (timers fall back to polling)")
		}
		b.redis = client
		b.store = client
		b.clock = client
	}

	if cfg.DatabaseURL == "" {
		log.Info().Msg("No database configured; users and archives kept in memory")
		b.users = memory.NewUserRepo()
		b.messages = memory.NewMessageRepo()
		b.results = memory.NewResultRepo()
		return b, nil
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	b.db = db
	b.users = postgres.NewUserRepo(db)
	b.messages = postgres.NewMessageRepo(db)
	b.results = postgres.NewResultRepo(db)
	return b, nil
}

func loadDeck(cfg *config.Config) ([]cabin.Scenario, error) {
	deck := append([]cabin.Scenario(nil), cabin.DefaultScenarios...)
	if cfg.ScenarioFile == "" {
		return deck, nil
	}
	extra, err := cabin.LoadScenarios(cfg.ScenarioFile)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", cfg.ScenarioFile).Int("count", len(extra)).Msg("Loaded extra scenarios")
	return append(deck, extra...), nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Info().
		Str("store", cfg.Store).
		Bool("database", cfg.DatabaseURL != "").
		Bool("devMode", cfg.DevMode).
		Msg("Config loaded")

	deck, err := loadDeck(cfg)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	var google *auth.OAuthProvider
	if cfg.GoogleEnabled() {
		google = auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	rounds := service.NewRoundController(b.store, b.clock, wsHub, nil, deck)
	rounds.SetResultRepo(b.results)
	sessionSvc := service.NewSessionService(b.store, rounds, wsHub)
	sessionSvc.SetMessageRepo(b.messages)
	sessionSvc.SetResultRepo(b.results)

	var rdb *goredis.Client
	if b.redis != nil {
		rdb = b.redis.Underlying()
	}
	timerListener := service.NewTimerListener(rdb, b.clock, rounds, cfg.PollInterval)

	router := handler.Router{
		JWT:      jwtMgr,
		Auth:     handler.NewAuthHandler(google, jwtMgr, b.users, cfg.DevMode),
		Users:    handler.NewUserHandler(b.users),
		Sessions: handler.NewSessionHandler(sessionSvc),
		QR:       handler.NewQRHandler(sessionSvc, cfg.PublicURL),
		WS:       handler.NewWSHandler(wsHub, jwtMgr, sessionSvc),
	}

	// Apply global middleware
	root := middleware.Chain(router.Handler(), middleware.Recover, middleware.Logger, middleware.CORS(cfg.CORSOrigins))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Re-arm timers for sessions that were mid-game when the server stopped.
	if err := rounds.RecoverActiveSessions(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover active sessions (non-fatal)")
	}

	// Start the scheduler
	schedCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go timerListener.Start(schedCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
