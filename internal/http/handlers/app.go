package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"deckpilot/internal/domain"
	"deckpilot/internal/infra"
)

// Generator is the sole contract the boundary consumes from the core.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

type App struct {
	Generator Generator
	Logger    infra.Logger
}

func NewApp(gen Generator, logger infra.Logger) *App {
	return &App{Generator: gen, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, kind domain.ErrorKind, msg string) {
	a.json(w, code, map[string]errorBody{"error": {Kind: kind, Message: msg}})
}

// statusFor maps classified error kinds onto HTTP status codes. Ticket
// consistency faults surface like invalid requests, since the remedy is a
// fresh request.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidRequest, domain.KindTicketExpired, domain.KindTicketNotFound:
		return http.StatusBadRequest
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindTimeoutExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
