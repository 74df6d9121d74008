package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"patashala-backend/internal/handlers"
	"patashala-backend/internal/middleware"
	"patashala-backend/internal/websocket"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

func New(
	jwtAuth *middleware.JWTAuth,
	quizHandler *handlers.QuizHandler,
	attemptHandler *handlers.AttemptHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	submitLimiter *middleware.RateLimiter,
	frontendURL string,
	health HealthCheck,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Quiz Routes ────
		r.Route("/quizzes", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/generate", quizHandler.Generate)
			r.Get("/", quizHandler.List)
			r.Get("/{id}", quizHandler.Get)
			r.Put("/{id}/publish", quizHandler.Publish)
			r.Put("/{id}/enabled", quizHandler.SetEnabled)
			r.Post("/{id}/attempts", attemptHandler.Start)
			r.Get("/{id}/attempts", quizHandler.Records)
			r.Get("/{id}/attempts/me", attemptHandler.MyRecord)
		})

		// ──── Attempt Session Routes ────
		r.Route("/attempt-sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", attemptHandler.Current)
			r.Delete("/{id}", attemptHandler.Abandon)
			r.Post("/{id}/finalize", attemptHandler.Finalize)
			r.Group(func(r chi.Router) {
				if submitLimiter != nil {
					r.Use(submitLimiter.Middleware)
				}
				r.Post("/{id}/answers", attemptHandler.Submit)
			})
		})

		// ──── Content Routes ────
		r.Route("/content", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}/quiz-status", quizHandler.Status)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
