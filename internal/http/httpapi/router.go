package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"deckpilot/internal/http/handlers"
	"deckpilot/internal/infra"
	"deckpilot/internal/middleware"
)

// NewRouter wires the boundary routes around the orchestrator.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger, lookup middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(cfg.AllowedOrigins),
		middleware.Logger(logger, lookup),
		middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
	)

	r.Get("/health", app.Health)
	r.Post("/make-deck", app.MakeDeck)
	r.Post("/v1/chat/completions", app.ChatCompletions)

	return r
}
