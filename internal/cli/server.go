package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/config"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	pginfra "livequiz-service/internal/infra/postgres"
	redisinfra "livequiz-service/internal/infra/redis"
	transport "livequiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live-quiz engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("config %s not loaded (%v), using defaults", configPath, err)
		cfg = config.Default()
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizContentStore
	if redisClient != nil {
		quizzes = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	var results app.ResultStore = memory.NewResultStore()
	if pool != nil {
		results = pginfra.NewResultStore(pool)
	}

	var codes app.CodeReservations = memory.NewCodeReservations()
	if redisClient != nil {
		codes = redisinfra.NewCodeReservations(redisClient)
	}

	tokens := cfg.Auth.Tokens
	if len(tokens) == 0 {
		log.Printf("no auth tokens configured, enabling dev token")
		tokens = map[string]string{"dev-token": "host-dev"}
	}
	auth := memory.NewStaticAuthVerifier(tokens)

	ratePerSec := cfg.Limits.RatePerSec
	if ratePerSec == 0 {
		ratePerSec = 0.5 // 30 admissions per minute
	}
	rateBurst := cfg.Limits.RateBurst
	if rateBurst == 0 {
		rateBurst = 30
	}
	maxConns := cfg.Limits.MaxConnsPerAddress
	if maxConns == 0 {
		maxConns = 100
	}
	limiter := app.NewRateLimiter(ratePerSec, rateBurst, maxConns)

	metrics := &app.Metrics{}
	registry := app.NewRegistry(app.RegistryConfig{
		MaxRooms:    cfg.Limits.MaxRooms,
		MaxPlayers:  cfg.Limits.MaxPlayersPerRoom,
		GraceTTL:    config.TTLDuration(cfg.Timers.GraceTTL, time.Minute),
		BonusFactor: cfg.Scoring.BonusFactor,
	}, quizzes, results, auth, codes, limiter, metrics)

	supervisor := app.NewSupervisor(registry, app.SupervisorConfig{
		Interval:          config.TTLDuration(cfg.Timers.SweepInterval, 30*time.Second),
		HeartbeatInterval: config.TTLDuration(cfg.Timers.HeartbeatInterval, 30*time.Second),
		IdleTTL:           config.TTLDuration(cfg.Timers.IdleTTL, 5*time.Minute),
		MaxRoomAge:        config.TTLDuration(cfg.Timers.MaxRoomAge, 2*time.Hour),
	})
	supervisor.Start()

	mux := http.NewServeMux()
	wsHandler := transport.NewWSHandler(registry)
	restHandler := transport.NewRESTHandler(registry, supervisor)
	restHandler.Register(mux, wsHandler)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 0, // websocket connections are long-lived
	}

	go func() {
		log.Printf("starting livequiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	supervisor.Stop()
	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the static loader for demo runs without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
					PositiveMark: 10,
					NegativeMark: 5,
					TimeLimitSec: 30,
				},
				{
					ID:     "q2",
					Prompt: "Which planet is closest to the sun?",
					Options: []domain.Option{
						{ID: "o1", Text: "Mercury", Correct: true},
						{ID: "o2", Text: "Venus"},
						{ID: "o3", Text: "Mars"},
					},
					PositiveMark: 10,
					NegativeMark: 5,
					TimeLimitSec: 30,
				},
			},
		},
	}
}
