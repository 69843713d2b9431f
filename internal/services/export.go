package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultExportURLTTL = 15 * time.Minute

// ObjectStorage is where export archives are written
type ObjectStorage interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ExportArchive is the document written for an export. Fields and event text
// stay encrypted exactly as stored.
type ExportArchive struct {
	ExportID   string                `json:"exportId"`
	ExportedAt time.Time             `json:"exportedAt"`
	Couple     *models.Couple        `json:"couple"`
	Events     []*models.EventRecord `json:"events"`
}

// ExportResponse represents the result of an export
type ExportResponse struct {
	ExportID    string    `json:"exportId"`
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ExportService writes couple archives to object storage
type ExportService struct {
	couples *CoupleService
	events  *EventService
	storage ObjectStorage
	urlTTL  time.Duration
	now     func() time.Time
}

// NewExportService creates a new export service. A nil storage disables exports.
func NewExportService(couples *CoupleService, events *EventService, storage ObjectStorage, urlTTL time.Duration) *ExportService {
	if urlTTL <= 0 {
		urlTTL = defaultExportURLTTL
	}
	return &ExportService{
		couples: couples,
		events:  events,
		storage: storage,
		urlTTL:  urlTTL,
		now:     time.Now,
	}
}

// Enabled reports whether an object store is configured
func (s *ExportService) Enabled() bool {
	return s.storage != nil
}

// Export archives the couple and its events and returns a download link
func (s *ExportService) Export(ctx context.Context, coupleID string) (*ExportResponse, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("%w: export is not configured", common.ErrTransport)
	}

	couple, err := s.couples.GetCouple(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.RawEvents(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.EventRecord{}
	}

	now := s.now().UTC()
	archive := ExportArchive{
		ExportID:   uuid.New().String(),
		ExportedAt: now,
		Couple:     couple,
		Events:     events,
	}
	body, err := json.Marshal(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}

	key := ExportKey(coupleID, archive.ExportID)
	if err := s.storage.Put(ctx, key, body, "application/json"); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	url, err := s.storage.PresignGet(ctx, key, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}

	log.Info().
		Str("couple_ref", common.Ref(coupleID)).
		Str("export_id", archive.ExportID).
		Int("events", len(events)).
		Msg("Couple exported")

	return &ExportResponse{
		ExportID:    archive.ExportID,
		DownloadURL: url,
		ExpiresAt:   now.Add(s.urlTTL),
	}, nil
}

// ExportKey is the object key of an export; the couple is identified by its
// fingerprint so the id does not leak through bucket listings
func ExportKey(coupleID, exportID string) string {
	return fmt.Sprintf("exports/%s/%s.json", common.Ref(coupleID), exportID)
}
