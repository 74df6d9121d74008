package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patashala-backend/internal/access"
	"patashala-backend/internal/config"
	"patashala-backend/internal/database"
	"patashala-backend/internal/evaluator"
	"patashala-backend/internal/feedback"
	"patashala-backend/internal/generator"
	"patashala-backend/internal/handlers"
	"patashala-backend/internal/middleware"
	"patashala-backend/internal/repository"
	"patashala-backend/internal/repository/sqlstore"
	"patashala-backend/internal/router"
	"patashala-backend/internal/services"
	"patashala-backend/internal/session"
	"patashala-backend/internal/websocket"
	"patashala-backend/internal/worker"
	"patashala-backend/migrations"
)

type stores struct {
	quizzes  services.QuizStore
	attempts services.AttemptStore
	jobs     services.JobStore
	content  services.ContentSource
	ping     func(ctx context.Context) error
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &stores{
			quizzes:  sqlstore.NewQuizRepo(db),
			attempts: sqlstore.NewAttemptRepo(db),
			jobs:     sqlstore.NewJobRepo(db),
			content:  sqlstore.NewContentRepo(db),
			ping:     db.PingContext,
			close:    func() { db.Close() },
		}, nil
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, pool, migrations.FS); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return &stores{
			quizzes:  repository.NewQuizRepo(pool),
			attempts: repository.NewAttemptRepo(pool),
			jobs:     repository.NewJobRepo(pool),
			content:  repository.NewContentRepo(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func main() {
	log.Println("🚀 Starting Patashala assessment engine...")
	ctx := context.Background()

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Open Database ────
	db, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("✗ Database initialization failed: %v", err)
	}
	defer db.close()
	log.Printf("✓ Database ready (%s, schema applied)", cfg.DBDriver)

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL, cfg.WorkerCount)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Initialize Gemini Client (optional) ────
	var (
		source  generator.Source
		writer  feedback.Writer
		evalOpt []evaluator.Option
	)
	if cfg.GeminiAPIKey != "" {
		gemini, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiRequestsPerMin, cfg.GeminiConcurrentReqs)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer gemini.Close()
		source = gemini
		writer = gemini
		if cfg.UseGeminiScorer() {
			evalOpt = append(evalOpt, evaluator.WithScorer(gemini))
		}
		log.Printf("✓ Gemini client initialized (%s)", cfg.GeminiModel)
	} else {
		log.Println("✓ Gemini disabled, questions and scoring are local")
	}

	// ──── Step 5: Attempt Session Store ────
	var sessions session.Store
	switch cfg.SessionStore {
	case "memory":
		mem := session.NewMemoryStore(cfg.SessionTTL)
		defer mem.Close()
		sessions = mem
	default:
		sessions = session.NewRedisStore(redisClients.Queue, cfg.SessionTTL)
	}
	log.Printf("✓ Session store: %s (ttl %s)", cfg.SessionStore, cfg.SessionTTL)

	// ──── Initialize Services ────
	mix := generator.Mix{
		MultipleChoice: cfg.MixMultipleChoice,
		TrueFalse:      cfg.MixTrueFalse,
		ShortAnswer:    cfg.MixShortAnswer,
	}
	checker := access.NewChecker(db.attempts, nil)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	publisher := services.NewPublisher(redisClients.PubSub)

	quizService := services.NewQuizService(
		db.quizzes,
		db.attempts,
		db.jobs,
		services.NewContentText(db.content, cfg.StoragePath),
		generator.New(mix, source),
		checker,
		services.NewRedisQueue(redisClients.Queue),
		cfg.AdaptiveByDefault,
	)
	attemptService := services.NewAttemptService(
		db.quizzes,
		db.attempts,
		sessions,
		evaluator.New(evalOpt...),
		feedback.NewSynthesizer(writer),
		checker,
		services.NewRedisTagger(redisClients.PubSub),
		cfg.QuestionsPerAttempt,
	)

	// ──── Initialize Handlers ────
	quizHandler := handlers.NewQuizHandler(quizService)
	attemptHandler := handlers.NewAttemptHandler(attemptService)
	jobHandler := handlers.NewJobHandler(quizService)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, db.jobs, quizService, publisher, cfg.WorkerCount)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	defer wsHub.Close()
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRateLimit, time.Minute)
	defer submitLimiter.Close()

	health := func(ctx context.Context) error {
		if err := db.ping(ctx); err != nil {
			return err
		}
		return redisClients.Ping(ctx)
	}

	r := router.New(
		jwtAuth,
		quizHandler,
		attemptHandler,
		jobHandler,
		wsHub,
		submitLimiter,
		cfg.FrontendURL,
		health,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
		workerPool.Stop()
	}()

	log.Printf("✓ Assessment engine ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-done
}
