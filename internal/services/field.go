package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/cryptox"
	"lovetrack-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidateFieldName checks a field name against the allowed shape
func ValidateFieldName(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("%w: field name must be 1-64 characters of letters, digits, '_', '.' or '-'", common.ErrValidation)
	}
	return nil
}

// FieldService stores named values on a couple, encrypted under the couple key
type FieldService struct {
	couples  repository.CoupleRepository
	deriver  cryptox.KeyDeriver
	notifier Notifier
}

// NewFieldService creates a new field service
func NewFieldService(couples repository.CoupleRepository, deriver cryptox.KeyDeriver) *FieldService {
	return &FieldService{
		couples:  couples,
		deriver:  deriver,
		notifier: nopNotifier{},
	}
}

// SetNotifier wires realtime notifications in after construction
func (s *FieldService) SetNotifier(n Notifier) {
	s.notifier = n
}

// PutField serializes value to JSON, encrypts it and merges it into the
// couple under name without touching other fields
func (s *FieldService) PutField(ctx context.Context, coupleID, name string, value any) error {
	if err := ValidateFieldName(name); err != nil {
		return err
	}
	plaintext, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: value is not serializable: %v", common.ErrValidation, err)
	}

	key, err := s.deriver.DeriveKey(coupleID)
	if err != nil {
		return fmt.Errorf("%w: couple id is required", common.ErrValidation)
	}
	blob, err := cryptox.Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt field: %w", err)
	}

	if err := s.couples.SetField(ctx, coupleID, name, blob); err != nil {
		return err
	}

	log.Debug().Str("couple_ref", common.Ref(coupleID)).Str("field", name).Msg("Field stored")
	s.notifier.NotifyCouple(ctx, coupleID, WSMessage{Type: MsgFieldChanged, Field: name})
	return nil
}

// GetField returns the decrypted JSON value of name, or nil when the field
// is absent or cannot be decrypted
func (s *FieldService) GetField(ctx context.Context, coupleID, name string) (json.RawMessage, error) {
	if err := ValidateFieldName(name); err != nil {
		return nil, err
	}
	couple, err := s.couples.GetByID(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	blob, ok := couple.Fields[name]
	if !ok {
		return nil, nil
	}

	value, err := s.open(coupleID, blob)
	if err != nil {
		log.Warn().
			Err(err).
			Str("couple_ref", common.Ref(coupleID)).
			Str("field", name).
			Msg("Field unreadable")
		return nil, nil
	}
	return value, nil
}

// DeleteField removes name from the couple. Removing an absent field is not an error.
func (s *FieldService) DeleteField(ctx context.Context, coupleID, name string) error {
	if err := ValidateFieldName(name); err != nil {
		return err
	}
	if err := s.couples.DeleteField(ctx, coupleID, name); err != nil {
		return err
	}
	s.notifier.NotifyCouple(ctx, coupleID, WSMessage{Type: MsgFieldChanged, Field: name})
	return nil
}

func (s *FieldService) open(coupleID, blob string) (json.RawMessage, error) {
	key, err := s.deriver.DeriveKey(coupleID)
	if err != nil {
		return nil, err
	}
	plaintext, err := cryptox.Decrypt(blob, key)
	if err != nil {
		return nil, err
	}
	if !json.Valid(plaintext) {
		return nil, fmt.Errorf("%w: plaintext is not JSON", common.ErrDecryption)
	}
	return json.RawMessage(plaintext), nil
}
