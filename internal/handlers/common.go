package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lovetrack-backend/internal/common"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondServiceError maps a service error to a status code. Storage failures
// and unexpected errors are logged and hidden behind a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		respondError(w, clientMessage(err), http.StatusBadRequest)
	case errors.Is(err, common.ErrUnauthorized):
		respondError(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, common.ErrForbidden):
		respondError(w, clientMessage(err), http.StatusForbidden)
	case errors.Is(err, common.ErrNotFound):
		respondError(w, clientMessage(err), http.StatusNotFound)
	case errors.Is(err, common.ErrConflict):
		respondError(w, clientMessage(err), http.StatusConflict)
	case errors.Is(err, common.ErrTransport):
		log.Error().Err(err).Str("method", r.Method).Msg("Storage unavailable")
		respondError(w, "Service temporarily unavailable, please try again", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Str("method", r.Method).Msg("Request failed")
		respondError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// clientMessage capitalizes the wrapped message for display
func clientMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// decodeJSON decodes a bounded request body into v
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", common.ErrValidation)
	}
	return nil
}
