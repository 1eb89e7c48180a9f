package token

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cardledger/internal/transport/http/shared"
	dErrors "cardledger/pkg/domain-errors"
)

// Handler issues wallet session tokens. Signature-based wallet verification
// is the connection UI's job; this endpoint only binds an address to a
// session the API can authenticate.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
}

type sessionRequest struct {
	Address string `json:"address"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	tok, err := h.service.GenerateSessionToken(req.Address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{"token": tok})
}
