package handlers

import (
	"encoding/json"
	"net/http"

	"deckpilot/internal/domain"
	"deckpilot/internal/middleware"
)

type makeDeckRequest struct {
	Topic        string `json:"topic"`
	TemplateHint string `json:"template_hint"`
	UseNetwork   *bool  `json:"use_network"`
	Mode         string `json:"mode"`
	OutlineMD    string `json:"outline_md"`
}

type makeDeckResponse struct {
	DownloadURL string `json:"download_url"`
}

// MakeDeck runs one generation job and responds with exactly one non-empty
// download URL or exactly one classified error.
func (a *App) MakeDeck(w http.ResponseWriter, r *http.Request) {
	var req makeDeckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, domain.KindInvalidRequest, "invalid payload")
		return
	}

	useNetwork := true
	if req.UseNetwork != nil {
		useNetwork = *req.UseNetwork
	}
	mode := req.Mode
	if mode == "" {
		mode = string(domain.ModePPTFast)
	}
	genReq := domain.GenerationRequest{
		Topic:        req.Topic,
		TemplateHint: req.TemplateHint,
		UseNetwork:   useNetwork,
		Mode:         domain.Mode(mode),
		OutlineMD:    req.OutlineMD,
	}

	a.Logger.Info().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("topic", genReq.Topic).
		Str("mode", string(genReq.Mode)).
		Bool("use_network", genReq.UseNetwork).
		Msg("make-deck request")

	link, err := a.Generator.Generate(r.Context(), genReq)
	if err != nil {
		classified := domain.Classify(err, domain.KindGeneratorError)
		a.error(w, statusFor(classified.Kind), classified.Kind, classified.Message)
		return
	}
	a.json(w, http.StatusOK, makeDeckResponse{DownloadURL: link})
}
