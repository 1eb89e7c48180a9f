// Package shared centralizes JSON envelopes for the HTTP layer so every
// handler translates domain errors the same way.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "cardledger/pkg/domain-errors"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the standard error envelope. The
// message is surfaced verbatim; callers must not assume a failed call had
// any side effect.
func WriteError(w http.ResponseWriter, err error) {
	message := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	code := dErrors.CodeOf(err)
	WriteJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": message,
	})
}
