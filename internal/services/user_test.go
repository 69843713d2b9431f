package services

import (
	"context"
	"testing"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository/memory"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (*UserService, *memory.PushTokenRepository) {
	t.Helper()
	tokens := memory.NewPushTokenRepository()
	s := NewUserService(memory.NewUserRepository(), tokens, "test-secret", time.Hour)
	s.now = func() time.Time { return testNow }
	return s, tokens
}

func TestCreateUserIssuesValidToken(t *testing.T) {
	s, _ := newUserService(t)
	ctx := context.Background()

	user, token, err := s.CreateUser(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Nil(t, user.CoupleID)

	userID, err := s.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestValidateJWT(t *testing.T) {
	s, _ := newUserService(t)

	token, err := s.GenerateJWT("alice")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := *s
		later.now = func() time.Time { return testNow.Add(2 * time.Hour) }
		_, err := later.ValidateJWT(token)
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewUserService(nil, nil, "other-secret", time.Hour)
		other.now = s.now
		_, err := other.ValidateJWT(token)
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.ValidateJWT("not.a.jwt")
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("missing user id", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": testNow.Add(time.Hour).Unix()})
		signed, err := raw.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = s.ValidateJWT(signed)
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})

	t.Run("none algorithm", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "alice"})
		signed, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.ValidateJWT(signed)
		assert.ErrorIs(t, err, common.ErrUnauthorized)
	})
}

func TestRegisterPushToken(t *testing.T) {
	s, tokens := newUserService(t)
	ctx := context.Background()

	ios, err := s.RegisterPushToken(ctx, "alice", RegisterPushTokenRequest{Token: " abc123 ", Platform: models.PlatformIOS})
	require.NoError(t, err)
	assert.Equal(t, "abc123", ios.Token)

	sub := `{"endpoint":"https://push.example.com/x","keys":{"p256dh":"k","auth":"a"}}`
	_, err = s.RegisterPushToken(ctx, "alice", RegisterPushTokenRequest{Token: sub, Platform: models.PlatformWeb})
	require.NoError(t, err)

	// re-registering a device moves it to the new user
	_, err = s.RegisterPushToken(ctx, "bob", RegisterPushTokenRequest{Token: "abc123", Platform: models.PlatformIOS})
	require.NoError(t, err)

	alice, err := tokens.ListByUsers(ctx, []string{"alice"})
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, models.PlatformWeb, alice[0].Platform)

	bad := []RegisterPushTokenRequest{
		{Token: "", Platform: models.PlatformIOS},
		{Token: "abc", Platform: "android"},
		{Token: "abc", Platform: models.PlatformWeb},
		{Token: `{"keys":{}}`, Platform: models.PlatformWeb},
	}
	for _, req := range bad {
		_, err := s.RegisterPushToken(ctx, "alice", req)
		assert.ErrorIs(t, err, common.ErrValidation, "%+v", req)
	}
}
