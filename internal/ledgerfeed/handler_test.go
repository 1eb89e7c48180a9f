package ledgerfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestEventsEndpoint(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store)
	router := chi.NewRouter()
	NewHandler(publisher).Register(router)

	ctx := context.Background()
	require.NoError(t, publisher.Emit(ctx, Event{Type: TypeCardMinted, CardID: 1, To: "0xa"}))
	require.NoError(t, publisher.Emit(ctx, Event{Type: TypeCardSent, CardID: 1, From: "0xa", To: "0xb"}))
	require.NoError(t, publisher.Emit(ctx, Event{Type: TypeCardRented, CardID: 1, From: "0xb", To: "0xc"}))

	get := func(path string) []Event {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Events []Event `json:"events"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp.Events
	}

	t.Run("lists newest first", func(t *testing.T) {
		events := get("/events")
		require.Len(t, events, 3)
		require.Equal(t, TypeCardRented, events[0].Type)
		require.Equal(t, TypeCardMinted, events[2].Type)
	})

	t.Run("honors the limit", func(t *testing.T) {
		require.Len(t, get("/events?limit=1"), 1)
	})

	t.Run("falls back to the default on a bad limit", func(t *testing.T) {
		require.Len(t, get("/events?limit=zero"), 3)
		require.Len(t, get("/events?limit=100000"), 3)
	})

	t.Run("filters by address", func(t *testing.T) {
		events := get("/events?address=0xc")
		require.Len(t, events, 1)
		require.Equal(t, TypeCardRented, events[0].Type)
	})
}
