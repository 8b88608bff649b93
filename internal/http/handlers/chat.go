package handlers

import (
	"net/http"
	"time"
)

// ChatCompletions is a static compatibility shim so chat UIs that probe an
// OpenAI-style endpoint see the backend as online. Generation itself goes
// through /make-deck.
func (a *App) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"id":      "deckpilot-probe",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "deckpilot",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": "DeckPilot backend online. POST /make-deck to generate a document.",
			},
		}},
	})
}
