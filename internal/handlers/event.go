package handlers

import (
	"net/http"

	"lovetrack-backend/internal/middleware"
	"lovetrack-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// EventHandler handles the couple calendar
type EventHandler struct {
	coupleService *services.CoupleService
	eventService  *services.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(coupleService *services.CoupleService, eventService *services.EventService) *EventHandler {
	return &EventHandler{
		coupleService: coupleService,
		eventService:  eventService,
	}
}

// scope returns the couple the request acts on: the couple_id query value if
// the caller is a member of it, otherwise the caller's own couple
func (h *EventHandler) scope(w http.ResponseWriter, r *http.Request, coupleID string) (string, bool) {
	userID := middleware.GetUserID(r.Context())

	if coupleID != "" {
		couple, err := h.coupleService.RequireMember(r.Context(), coupleID, userID)
		if err != nil {
			respondServiceError(w, r, err)
			return "", false
		}
		return couple.ID, true
	}

	couple, err := h.coupleService.CoupleOfUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return "", false
	}
	return couple.ID, true
}

// ListEvents handles GET /api/v1/events?couple_id=
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	coupleID, ok := h.scope(w, r, r.URL.Query().Get("couple_id"))
	if !ok {
		return
	}

	events, err := h.eventService.ListByCouple(r.Context(), coupleID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// CreateEvent handles POST /api/v1/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req services.EventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	coupleID, ok := h.scope(w, r, req.CoupleID)
	if !ok {
		return
	}
	req.CoupleID = coupleID

	event, err := h.eventService.CreateEvent(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, event)
}

// GetEvent handles GET /api/v1/events/{event_id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	coupleID, ok := h.scope(w, r, r.URL.Query().Get("couple_id"))
	if !ok {
		return
	}

	event, err := h.eventService.GetEvent(r.Context(), coupleID, chi.URLParam(r, "event_id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PUT /api/v1/events/{event_id}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req services.EventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	coupleID, ok := h.scope(w, r, req.CoupleID)
	if !ok {
		return
	}

	event, err := h.eventService.UpdateEvent(r.Context(), coupleID, chi.URLParam(r, "event_id"), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /api/v1/events/{event_id}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	coupleID, ok := h.scope(w, r, r.URL.Query().Get("couple_id"))
	if !ok {
		return
	}

	if err := h.eventService.DeleteEvent(r.Context(), coupleID, chi.URLParam(r, "event_id")); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
