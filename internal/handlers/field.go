package handlers

import (
	"encoding/json"
	"net/http"

	"lovetrack-backend/internal/middleware"
	"lovetrack-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// FieldHandler handles encrypted couple fields
type FieldHandler struct {
	coupleService *services.CoupleService
	fieldService  *services.FieldService
}

// NewFieldHandler creates a new field handler
func NewFieldHandler(coupleService *services.CoupleService, fieldService *services.FieldService) *FieldHandler {
	return &FieldHandler{
		coupleService: coupleService,
		fieldService:  fieldService,
	}
}

// FieldResponse represents one field; Value is null when absent or unreadable
type FieldResponse struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// member resolves the couple in the URL and checks the caller belongs to it
func (h *FieldHandler) member(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	couple, err := h.coupleService.RequireMember(r.Context(), chi.URLParam(r, "couple_id"), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return "", false
	}
	return couple.ID, true
}

// PutField handles PUT /api/v1/couples/{couple_id}/fields/{name}
func (h *FieldHandler) PutField(w http.ResponseWriter, r *http.Request) {
	coupleID, ok := h.member(w, r)
	if !ok {
		return
	}

	var value json.RawMessage
	if err := decodeJSON(r, &value); err != nil {
		respondServiceError(w, r, err)
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.fieldService.PutField(r.Context(), coupleID, name, value); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, FieldResponse{Name: name, Value: value})
}

// GetField handles GET /api/v1/couples/{couple_id}/fields/{name}
func (h *FieldHandler) GetField(w http.ResponseWriter, r *http.Request) {
	coupleID, ok := h.member(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	value, err := h.fieldService.GetField(r.Context(), coupleID, name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if value == nil {
		value = json.RawMessage("null")
	}

	respondJSON(w, http.StatusOK, FieldResponse{Name: name, Value: value})
}

// DeleteField handles DELETE /api/v1/couples/{couple_id}/fields/{name}
func (h *FieldHandler) DeleteField(w http.ResponseWriter, r *http.Request) {
	coupleID, ok := h.member(w, r)
	if !ok {
		return
	}

	if err := h.fieldService.DeleteField(r.Context(), coupleID, chi.URLParam(r, "name")); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
