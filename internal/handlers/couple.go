package handlers

import (
	"net/http"
	"time"

	"lovetrack-backend/internal/middleware"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// CoupleHandler handles couple-related HTTP requests
type CoupleHandler struct {
	coupleService *services.CoupleService
	exportService *services.ExportService
	now           func() time.Time
}

// NewCoupleHandler creates a new couple handler
func NewCoupleHandler(coupleService *services.CoupleService, exportService *services.ExportService) *CoupleHandler {
	return &CoupleHandler{
		coupleService: coupleService,
		exportService: exportService,
		now:           time.Now,
	}
}

// CoupleResponse is a couple with its relationship duration
type CoupleResponse struct {
	*models.Couple
	DaysTogether int               `json:"daysTogether"`
	Duration     services.Duration `json:"duration"`
}

// JoinCoupleResponse represents the result of a join
type JoinCoupleResponse struct {
	Success  bool           `json:"success"`
	CoupleID string         `json:"coupleId"`
	Couple   *models.Couple `json:"couple"`
}

// CreateCouple handles POST /api/v1/couples
func (h *CoupleHandler) CreateCouple(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.CreateCoupleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.CreatedBy != "" && req.CreatedBy != userID {
		respondError(w, "createdBy must be the authenticated user", http.StatusForbidden)
		return
	}

	couple, err := h.coupleService.CreateCouple(r.Context(), userID, req.StartDate)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.withDuration(couple))
}

// JoinCouple handles POST /api/v1/couples/join
func (h *CoupleHandler) JoinCouple(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.JoinCoupleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.AuthID != "" && req.AuthID != userID {
		respondError(w, "authId must be the authenticated user", http.StatusForbidden)
		return
	}

	couple, err := h.coupleService.JoinCouple(r.Context(), req.Code, userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, JoinCoupleResponse{
		Success:  true,
		CoupleID: couple.ID,
		Couple:   couple,
	})
}

// GetCouple handles GET /api/v1/couples/{couple_id}
func (h *CoupleHandler) GetCouple(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	couple, err := h.coupleService.RequireMember(r.Context(), chi.URLParam(r, "couple_id"), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, h.withDuration(couple))
}

// RegeneratePairingCode handles POST /api/v1/couples/{couple_id}/pairing-code
func (h *CoupleHandler) RegeneratePairingCode(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	couple, err := h.coupleService.RegeneratePairingCode(r.Context(), chi.URLParam(r, "couple_id"), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, h.withDuration(couple))
}

// ExportCouple handles POST /api/v1/couples/{couple_id}/export
func (h *CoupleHandler) ExportCouple(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	couple, err := h.coupleService.RequireMember(r.Context(), chi.URLParam(r, "couple_id"), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	res, err := h.exportService.Export(r.Context(), couple.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (h *CoupleHandler) withDuration(couple *models.Couple) CoupleResponse {
	days, duration := services.RelationshipDuration(couple.StartDate, h.now())
	return CoupleResponse{Couple: couple, DaysTogether: days, Duration: duration}
}
