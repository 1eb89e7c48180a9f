// Package handler is the thin HTTP layer over the card registry. It decodes
// requests and delegates to the service; custody rules live there, not here.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cardledger/internal/card"
	"cardledger/internal/platform/middleware"
	"cardledger/internal/transport/http/shared"
	dErrors "cardledger/pkg/domain-errors"
	"cardledger/pkg/requestcontext"
)

// Service defines the registry operations this handler exposes.
type Service interface {
	Mint(ctx context.Context, name, title, company, contactInfo, metadataURI string) (uint64, error)
	Update(ctx context.Context, id uint64, title, company, contactInfo, metadataURI string) error
	Send(ctx context.Context, to string, id uint64) error
	RentOut(ctx context.Context, id uint64, renter string, durationSeconds int64) error
	EndRental(ctx context.Context, id uint64) error
	GetCard(ctx context.Context, id uint64) (card.Card, error)
	GetRentalStatus(ctx context.Context, id uint64) (card.RentalStatus, error)
	GetRentedCards(ctx context.Context) ([]card.RentedCard, error)
	GetReceivedCards(ctx context.Context, address string) ([]uint64, error)
	UserCard(ctx context.Context, address string) (uint64, error)
	OwnerOf(ctx context.Context, id uint64) (string, error)
	SetCardSender(ctx context.Context, contract string, allowed bool) error
	ApprovedCardSender(ctx context.Context, contract string) (bool, error)
}

type Handler struct {
	logger    *slog.Logger
	registry  Service
	validator middleware.SessionValidator
}

func New(registry Service, validator middleware.SessionValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		registry:  registry,
		validator: validator,
	}
}

// Register mounts the card routes. Reads are public; state changes require a
// wallet session.
func (h *Handler) Register(r chi.Router) {
	r.Get("/cards/{cardID}", h.handleGetCard)
	r.Get("/cards/{cardID}/owner", h.handleOwnerOf)
	r.Get("/cards/{cardID}/rental", h.handleRentalStatus)
	r.Get("/addresses/{address}/card", h.handleUserCard)
	r.Get("/addresses/{address}/received", h.handleReceivedCards)
	r.Get("/admin/movers/{address}", h.handleGetMover)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireWallet(h.validator, h.logger))
		r.Post("/cards", h.handleMint)
		r.Patch("/cards/{cardID}", h.handleUpdate)
		r.Post("/cards/{cardID}/send", h.handleSend)
		r.Post("/cards/{cardID}/rent", h.handleRentOut)
		r.Delete("/cards/{cardID}/rental", h.handleEndRental)
		r.Get("/me/card", h.handleMyCard)
		r.Get("/me/rented", h.handleRentedCards)
		r.Put("/admin/movers/{address}", h.handleSetMover)
	})
}

type mintRequest struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	ContactInfo string `json:"contact_info"`
	MetadataURI string `json:"metadata_uri"`
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	id, err := h.registry.Mint(r.Context(), req.Name, req.Title, req.Company, req.ContactInfo, req.MetadataURI)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]uint64{"card_id": id})
}

type updateRequest struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	ContactInfo string `json:"contact_info"`
	MetadataURI string `json:"metadata_uri"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.registry.Update(r.Context(), id, req.Title, req.Company, req.ContactInfo, req.MetadataURI); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendRequest struct {
	To string `json:"to"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.registry.Send(r.Context(), req.To, id); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rentRequest struct {
	Renter          string `json:"renter"`
	DurationSeconds int64  `json:"duration_seconds"`
}

func (h *Handler) handleRentOut(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	var req rentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.registry.RentOut(r.Context(), id, req.Renter, req.DurationSeconds); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEndRental(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	if err := h.registry.EndRental(r.Context(), id); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	c, err := h.registry.GetCard(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleOwnerOf(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	owner, err := h.registry.OwnerOf(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"owner": owner})
}

func (h *Handler) handleRentalStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	status, err := h.registry.GetRentalStatus(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleRentedCards(w http.ResponseWriter, r *http.Request) {
	rented, err := h.registry.GetRentedCards(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Parallel-array form mirrors the registry's read interface.
	ids := make([]uint64, len(rented))
	cards := make([]card.Card, len(rented))
	remaining := make([]int64, len(rented))
	for i, rc := range rented {
		ids[i] = rc.CardID
		cards[i] = rc.Card
		remaining[i] = rc.RemainingSeconds
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"card_ids":          ids,
		"cards":             cards,
		"remaining_seconds": remaining,
	})
}

func (h *Handler) handleReceivedCards(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	ids, err := h.registry.GetReceivedCards(r.Context(), address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string][]uint64{"card_ids": ids})
}

func (h *Handler) handleUserCard(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	id, err := h.registry.UserCard(r.Context(), address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]uint64{"card_id": id})
}

func (h *Handler) handleMyCard(w http.ResponseWriter, r *http.Request) {
	address := requestcontext.Caller(r.Context())
	id, err := h.registry.UserCard(r.Context(), address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]uint64{"card_id": id})
}

type setMoverRequest struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) handleSetMover(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	var req setMoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.registry.SetCardSender(r.Context(), address, req.Allowed); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetMover(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	allowed, err := h.registry.ApprovedCardSender(r.Context(), address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func cardID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "cardID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid card id"))
		return 0, false
	}
	return id, true
}
