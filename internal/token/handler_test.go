package token

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestSessionEndpoint(t *testing.T) {
	service := NewService("test-signing-key", "cardledger", time.Hour)
	router := chi.NewRouter()
	NewHandler(service).Register(router)

	t.Run("issues a parseable token for the address", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{"address":"0xalice"}`))
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

		claims, err := NewMiddlewareAdapter(service).ValidateToken(resp.Token)
		require.NoError(t, err)
		require.Equal(t, "0xalice", claims.Address)
	})

	t.Run("rejects an empty address", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{}`))
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader("{"))
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
