// Package handler exposes the recommendation/reward protocol over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"cardledger/internal/platform/middleware"
	"cardledger/internal/recommend"
	"cardledger/internal/transport/http/shared"
	dErrors "cardledger/pkg/domain-errors"
	"cardledger/pkg/requestcontext"
)

// Service defines the protocol operations this handler exposes.
type Service interface {
	RecommendCard(ctx context.Context, recommendee string, cardID uint64) error
	AcceptRecommendation(ctx context.Context, recommender string) error
	BalanceOf(ctx context.Context, address string) (*uint256.Int, error)
	PendingRecommendation(ctx context.Context, recommendee, recommender string) (uint64, error)
	PendingForRecommendee(ctx context.Context, address string) ([]recommend.Recommendation, error)
}

type Handler struct {
	logger    *slog.Logger
	protocol  Service
	validator middleware.SessionValidator
}

func New(protocol Service, validator middleware.SessionValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		protocol:  protocol,
		validator: validator,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/balances/{address}", h.handleBalance)
	r.Get("/recommendations/pending", h.handlePendingLookup)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireWallet(h.validator, h.logger))
		r.Post("/recommendations", h.handleRecommend)
		r.Post("/recommendations/{recommender}/accept", h.handleAccept)
		r.Get("/me/recommendations/pending", h.handleMyPending)
	})
}

type recommendRequest struct {
	Recommendee string `json:"recommendee"`
	CardID      uint64 `json:"card_id"`
}

func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.protocol.RecommendCard(r.Context(), req.Recommendee, req.CardID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	recommender := chi.URLParam(r, "recommender")
	if err := h.protocol.AcceptRecommendation(r.Context(), recommender); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	balance, err := h.protocol.BalanceOf(r.Context(), address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"balance": balance.Dec()})
}

func (h *Handler) handlePendingLookup(w http.ResponseWriter, r *http.Request) {
	recommendee := r.URL.Query().Get("recommendee")
	recommender := r.URL.Query().Get("recommender")
	if recommendee == "" || recommender == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "recommendee and recommender are required"))
		return
	}
	cardID, err := h.protocol.PendingRecommendation(r.Context(), recommendee, recommender)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]uint64{"card_id": cardID})
}

func (h *Handler) handleMyPending(w http.ResponseWriter, r *http.Request) {
	address := requestcontext.Caller(r.Context())
	pending, err := h.protocol.PendingForRecommendee(r.Context(), address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"pending": pending})
}
