package ledgerfeed

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cardledger/internal/transport/http/shared"
)

const defaultFeedLimit = 50

// Handler exposes the read-only event feed.
type Handler struct {
	publisher *Publisher
}

func NewHandler(publisher *Publisher) *Handler {
	return &Handler{publisher: publisher}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/events", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var (
		events []Event
		err    error
	)
	if address := r.URL.Query().Get("address"); address != "" {
		events, err = h.publisher.ListByAddress(r.Context(), address, limit)
	} else {
		events, err = h.publisher.List(r.Context(), limit)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
