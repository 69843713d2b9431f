package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/pairing"
	"lovetrack-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultCodeTTL     = 24 * time.Hour
	defaultMaxAttempts = 10
)

// CoupleService creates couples and runs the pairing handshake
type CoupleService struct {
	couples     repository.CoupleRepository
	users       repository.UserRepository
	codes       pairing.Generator
	notifier    Notifier
	codeTTL     time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewCoupleService creates a new couple service. Zero codeTTL or maxAttempts
// fall back to 24h and 10.
func NewCoupleService(couples repository.CoupleRepository, users repository.UserRepository, codes pairing.Generator, codeTTL time.Duration, maxAttempts int) *CoupleService {
	if codeTTL <= 0 {
		codeTTL = defaultCodeTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &CoupleService{
		couples:     couples,
		users:       users,
		codes:       codes,
		notifier:    nopNotifier{},
		codeTTL:     codeTTL,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// SetNotifier wires realtime notifications in after construction
func (s *CoupleService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateCoupleRequest represents a request to create a couple
type CreateCoupleRequest struct {
	StartDate string `json:"startDate"`
	CreatedBy string `json:"createdBy,omitempty"`
}

// JoinCoupleRequest represents a request to join a couple by code
type JoinCoupleRequest struct {
	Code   string `json:"code"`
	AuthID string `json:"authId,omitempty"`
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", common.ErrValidation)
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a date", common.ErrValidation, s)
}

// CreateCouple creates a couple with creatorID as its only member and an
// outstanding pairing code. A creator whose earlier couple was never joined
// and whose code expired moves on to the new couple.
func (s *CoupleService) CreateCouple(ctx context.Context, creatorID, startDate string) (*models.Couple, error) {
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator is required", common.ErrValidation)
	}
	start, err := ParseDate(startDate)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expires := now.Add(s.codeTTL)
	couple := &models.Couple{
		ID:               uuid.New().String(),
		CreatedAt:        now,
		CreatedBy:        creatorID,
		Members:          []string{creatorID},
		StartDate:        start,
		PairingExpiresAt: &expires,
	}

	claim, err := s.claimUser(ctx, creatorID, couple.ID)
	if err != nil {
		return nil, err
	}
	if err := s.insertWithFreeCode(ctx, couple); err != nil {
		s.releaseUser(ctx, claim)
		return nil, err
	}
	if !s.stillClaimed(ctx, claim) {
		// a concurrent claim took the user before the couple existed
		s.withdrawCode(ctx, couple.ID, *couple.PairingCode)
		return nil, fmt.Errorf("%w: user already belongs to a couple", common.ErrConflict)
	}
	s.leaveAbandoned(ctx, claim)

	log.Info().
		Str("couple_ref", common.Ref(couple.ID)).
		Time("code_expires_at", expires).
		Msg("Couple created")

	return couple, nil
}

// insertWithFreeCode draws codes until one is free and the couple is stored
func (s *CoupleService) insertWithFreeCode(ctx context.Context, couple *models.Couple) error {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code, err := s.freeCode(ctx)
		if err != nil {
			return err
		}
		if code == "" {
			continue
		}

		couple.PairingCode = &code
		err = s.couples.Create(ctx, couple)
		if errors.Is(err, common.ErrConflict) {
			// lost a race for the same code
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create couple: %w", err)
		}
		return nil
	}
	couple.PairingCode = nil
	return fmt.Errorf("%w: no free pairing code after %d attempts", common.ErrConflict, s.maxAttempts)
}

// freeCode draws one code and returns it if no live couple holds it, "" if
// it is taken. Expired codes are reclaimed from the couple holding them.
func (s *CoupleService) freeCode(ctx context.Context) (string, error) {
	code, err := s.codes.Generate()
	if err != nil {
		return "", err
	}
	exists, err := s.couples.PairingCodeExists(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to check pairing code: %w", err)
	}
	if exists && !s.reclaimExpired(ctx, code) {
		return "", nil
	}
	return code, nil
}

// reclaimExpired withdraws code from its holder if it has expired. It reports
// whether the code is free afterwards.
func (s *CoupleService) reclaimExpired(ctx context.Context, code string) bool {
	holder, err := s.couples.GetByPairingCode(ctx, code)
	if errors.Is(err, common.ErrNotFound) {
		return true
	}
	if err != nil || !s.expired(holder) {
		return false
	}
	return s.withdrawCode(ctx, holder.ID, code)
}

func (s *CoupleService) withdrawCode(ctx context.Context, coupleID, code string) bool {
	ok, err := s.couples.ReplacePairingCode(ctx, coupleID, &code, nil, nil)
	if err != nil {
		log.Warn().Err(err).Str("couple_ref", common.Ref(coupleID)).Msg("Failed to withdraw pairing code")
		return false
	}
	if ok {
		log.Debug().Str("couple_ref", common.Ref(coupleID)).Msg("Pairing code withdrawn")
	}
	return ok
}

// JoinCouple adds joinerID as the second member of the couple holding code.
// Wrong, expired and consumed codes all fail with common.ErrNotFound.
func (s *CoupleService) JoinCouple(ctx context.Context, code, joinerID string) (*models.Couple, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", common.ErrValidation)
	}
	if joinerID == "" {
		return nil, fmt.Errorf("%w: joiner is required", common.ErrValidation)
	}
	if !pairing.Valid(code) {
		return nil, fmt.Errorf("pairing code %w", common.ErrNotFound)
	}

	couple, err := s.couples.GetByPairingCode(ctx, code)
	if errors.Is(err, common.ErrNotFound) {
		if joined := s.joinedWith(ctx, code, joinerID); joined != nil {
			return joined, nil
		}
	}
	if err != nil {
		return nil, err
	}
	if couple.HasMember(joinerID) {
		return couple, nil
	}
	if s.expired(couple) {
		s.withdrawCode(ctx, couple.ID, code)
		return nil, fmt.Errorf("pairing code %w", common.ErrNotFound)
	}
	if couple.Full() {
		return nil, fmt.Errorf("%w: couple already has %d members", common.ErrConflict, models.MaxMembers)
	}

	claim, err := s.claimUser(ctx, joinerID, couple.ID)
	if err != nil {
		return nil, err
	}

	swapped, err := s.couples.ConsumePairingCode(ctx, couple.ID, code, joinerID)
	if err != nil {
		s.releaseUser(ctx, claim)
		return nil, fmt.Errorf("failed to join couple: %w", err)
	}
	if !swapped {
		// someone else changed the couple between our read and the swap
		current, err := s.couples.GetByID(ctx, couple.ID)
		if err != nil {
			s.releaseUser(ctx, claim)
			return nil, err
		}
		if current.HasMember(joinerID) {
			return current, nil
		}
		s.releaseUser(ctx, claim)
		if current.Full() {
			return nil, fmt.Errorf("%w: couple already has %d members", common.ErrConflict, models.MaxMembers)
		}
		return nil, fmt.Errorf("pairing code %w", common.ErrNotFound)
	}
	s.leaveAbandoned(ctx, claim)

	joined := couple.Clone()
	joined.Members = append(joined.Members, joinerID)
	joined.PairingCode = nil
	joined.PairingExpiresAt = nil
	joined.ConsumedCode = &code

	log.Info().Str("couple_ref", common.Ref(couple.ID)).Msg("Couple joined")
	s.notifier.NotifyCouple(ctx, joined.ID, WSMessage{Type: MsgCoupleJoined})

	return joined, nil
}

// RegeneratePairingCode gives a couple that is still waiting for its second
// member a fresh code, replacing the current one whether or not it expired.
func (s *CoupleService) RegeneratePairingCode(ctx context.Context, coupleID, userID string) (*models.Couple, error) {
	couple, err := s.RequireMember(ctx, coupleID, userID)
	if err != nil {
		return nil, err
	}
	if couple.Full() {
		return nil, fmt.Errorf("%w: couple is already paired", common.ErrConflict)
	}
	user, err := s.users.GetByID(ctx, userID)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to get user: %w", err)
	case !repository.EqualRef(user.CoupleID, &couple.ID):
		return nil, fmt.Errorf("%w: user has moved to another couple", common.ErrConflict)
	}

	expires := s.now().UTC().Add(s.codeTTL)
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code, err := s.freeCode(ctx)
		if err != nil {
			return nil, err
		}
		if code == "" {
			continue
		}

		ok, err := s.couples.ReplacePairingCode(ctx, couple.ID, couple.PairingCode, &code, &expires)
		if errors.Is(err, common.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to replace pairing code: %w", err)
		}
		if !ok {
			// the stored code moved under us; start from the current record
			couple, err = s.couples.GetByID(ctx, couple.ID)
			if err != nil {
				return nil, err
			}
			if couple.Full() {
				return nil, fmt.Errorf("%w: couple is already paired", common.ErrConflict)
			}
			continue
		}

		if user != nil && !s.stillClaimed(ctx, &userClaim{userID: userID, coupleID: couple.ID, linked: true}) {
			// the user moved on while the code was being replaced
			s.withdrawCode(ctx, couple.ID, code)
			return nil, fmt.Errorf("%w: user has moved to another couple", common.ErrConflict)
		}

		couple.PairingCode = &code
		couple.PairingExpiresAt = &expires
		log.Info().
			Str("couple_ref", common.Ref(couple.ID)).
			Time("code_expires_at", expires).
			Msg("Pairing code regenerated")
		return couple, nil
	}
	return nil, fmt.Errorf("%w: no free pairing code after %d attempts", common.ErrConflict, s.maxAttempts)
}

// joinedWith returns the joiner's couple when code is the one they already
// consumed, nil otherwise
func (s *CoupleService) joinedWith(ctx context.Context, code, joinerID string) *models.Couple {
	user, err := s.users.GetByID(ctx, joinerID)
	if err != nil || user.CoupleID == nil {
		return nil
	}
	couple, err := s.couples.GetByID(ctx, *user.CoupleID)
	if err != nil {
		return nil
	}
	if couple.ConsumedCode == nil || *couple.ConsumedCode != code || !couple.HasMember(joinerID) {
		return nil
	}
	return couple
}

// GetCouple retrieves a couple by ID
func (s *CoupleService) GetCouple(ctx context.Context, coupleID string) (*models.Couple, error) {
	if coupleID == "" {
		return nil, fmt.Errorf("%w: couple id is required", common.ErrValidation)
	}
	return s.couples.GetByID(ctx, coupleID)
}

// RequireMember returns the couple if userID belongs to it
func (s *CoupleService) RequireMember(ctx context.Context, coupleID, userID string) (*models.Couple, error) {
	couple, err := s.GetCouple(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if !couple.HasMember(userID) {
		return nil, fmt.Errorf("%w: not a member of this couple", common.ErrForbidden)
	}
	return couple, nil
}

// CoupleOfUser returns the couple the user is linked to and belongs to. A
// link claimed by a join still in flight does not count.
func (s *CoupleService) CoupleOfUser(ctx context.Context, userID string) (*models.Couple, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CoupleID == nil {
		return nil, fmt.Errorf("couple %w", common.ErrNotFound)
	}
	couple, err := s.couples.GetByID(ctx, *user.CoupleID)
	if err != nil {
		return nil, err
	}
	if !couple.HasMember(userID) {
		return nil, fmt.Errorf("couple %w", common.ErrNotFound)
	}
	return couple, nil
}

func (s *CoupleService) expired(c *models.Couple) bool {
	return c.PairingExpiresAt != nil && s.now().After(*c.PairingExpiresAt)
}

// abandoned reports whether userID is alone in c and nobody can join it any
// more without a new code.
func (s *CoupleService) abandoned(c *models.Couple, userID string) bool {
	if len(c.Members) != 1 || !c.HasMember(userID) {
		return false
	}
	return c.PairingCode == nil || s.expired(c)
}

// userClaim is a user's link to a couple, taken before the couple write that
// needs it.
type userClaim struct {
	userID   string
	coupleID string
	prev     *string
	// linked is false when there was nothing to change
	linked bool
	// left is the abandoned couple the user moved away from
	left *models.Couple
}

func (s *CoupleService) stillClaimed(ctx context.Context, claim *userClaim) bool {
	if !claim.linked {
		return true
	}
	user, err := s.users.GetByID(ctx, claim.userID)
	return err == nil && repository.EqualRef(user.CoupleID, &claim.coupleID)
}

// claimUser links userID to coupleID with a compare-and-swap, so two
// concurrent claims for the same user cannot both succeed. A user still in a
// live couple is refused. Unknown users are not linked.
func (s *CoupleService) claimUser(ctx context.Context, userID, coupleID string) (*userClaim, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return &userClaim{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	claim := &userClaim{userID: userID, coupleID: coupleID, prev: user.CoupleID}
	if user.CoupleID != nil && *user.CoupleID == coupleID {
		return claim, nil
	}
	dangling := false
	if user.CoupleID != nil {
		current, err := s.couples.GetByID(ctx, *user.CoupleID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			// an interrupted create, or one still inserting its couple
			dangling = true
		case err != nil:
			return nil, fmt.Errorf("failed to get couple: %w", err)
		case !s.abandoned(current, userID):
			return nil, fmt.Errorf("%w: user already belongs to a couple", common.ErrConflict)
		default:
			claim.left = current
		}
	}

	ok, err := s.users.CompareAndSetCoupleID(ctx, userID, user.CoupleID, &coupleID)
	if err != nil {
		return nil, fmt.Errorf("failed to link user to couple: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: user already belongs to a couple", common.ErrConflict)
	}
	claim.linked = true

	if dangling {
		// the create behind the link may have finished in the meantime
		if _, err := s.couples.GetByID(ctx, *user.CoupleID); !errors.Is(err, common.ErrNotFound) {
			s.releaseUser(ctx, claim)
			return nil, fmt.Errorf("%w: user already belongs to a couple", common.ErrConflict)
		}
	}
	return claim, nil
}

// releaseUser undoes a claim whose couple write did not happen
func (s *CoupleService) releaseUser(ctx context.Context, claim *userClaim) {
	if !claim.linked {
		return
	}
	if _, err := s.users.CompareAndSetCoupleID(ctx, claim.userID, &claim.coupleID, claim.prev); err != nil {
		log.Error().Err(err).Str("couple_ref", common.Ref(claim.coupleID)).Msg("Failed to roll back user link")
	}
}

// leaveAbandoned frees the expired code of the couple a claim moved away from
func (s *CoupleService) leaveAbandoned(ctx context.Context, claim *userClaim) {
	if claim.left == nil || claim.left.PairingCode == nil {
		return
	}
	s.withdrawCode(ctx, claim.left.ID, *claim.left.PairingCode)
}
