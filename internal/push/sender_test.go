package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lovetrack-backend/internal/models"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	res  *apns2.Response
	got  *apns2.Notification
	fail error
}

func (f *fakePusher) PushWithContext(_ apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	f.got = n
	return f.res, f.fail
}

func TestAPNsSender(t *testing.T) {
	token := &models.PushToken{Token: "device-token", Platform: models.PlatformIOS}

	t.Run("sent", func(t *testing.T) {
		p := &fakePusher{res: &apns2.Response{StatusCode: http.StatusOK}}
		s := &APNsSender{client: p, topic: "app.lovetrack"}

		require.NoError(t, s.Send(context.Background(), token, Payload{Title: "Dinner", Body: "tonight", EventID: "e1"}))
		assert.Equal(t, "device-token", p.got.DeviceToken)
		assert.Equal(t, "app.lovetrack", p.got.Topic)

		raw, err := json.Marshal(p.got.Payload)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"title":"Dinner"`)
		assert.Contains(t, string(raw), `"eventId":"e1"`)
	})

	t.Run("unregistered", func(t *testing.T) {
		p := &fakePusher{res: &apns2.Response{StatusCode: http.StatusGone, Reason: apns2.ReasonUnregistered}}
		s := &APNsSender{client: p}
		assert.ErrorIs(t, s.Send(context.Background(), token, Payload{}), ErrTokenExpired)
	})

	t.Run("bad token", func(t *testing.T) {
		p := &fakePusher{res: &apns2.Response{StatusCode: http.StatusBadRequest, Reason: apns2.ReasonBadDeviceToken}}
		s := &APNsSender{client: p}
		assert.ErrorIs(t, s.Send(context.Background(), token, Payload{}), ErrTokenExpired)
	})

	t.Run("server error", func(t *testing.T) {
		p := &fakePusher{res: &apns2.Response{StatusCode: http.StatusInternalServerError, Reason: apns2.ReasonInternalServerError}}
		s := &APNsSender{client: p}
		err := s.Send(context.Background(), token, Payload{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrTokenExpired)
	})
}

// subscription builds a browser-like subscription pointing at endpoint.
func subscription(t *testing.T, endpoint string) string {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	sub := map[string]any{
		"endpoint": endpoint,
		"keys": map[string]string{
			"p256dh": base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			"auth":   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
	raw, err := json.Marshal(sub)
	require.NoError(t, err)
	return string(raw)
}

func TestWebPushSender(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	status := http.StatusCreated
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.Contains(t, r.Header.Get("Authorization"), "vapid")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewWebPushSender(WebPushConfig{VAPIDPublicKey: pub, VAPIDPrivateKey: priv})
	assert.Equal(t, pub, s.VAPIDPublicKey())
	token := &models.PushToken{Token: subscription(t, srv.URL+"/push/abc"), Platform: models.PlatformWeb}

	require.NoError(t, s.Send(context.Background(), token, Payload{Title: "Dinner"}))
	assert.Equal(t, 1, hits)

	status = http.StatusGone
	assert.ErrorIs(t, s.Send(context.Background(), token, Payload{Title: "Dinner"}), ErrTokenExpired)

	status = http.StatusTooManyRequests
	err = s.Send(context.Background(), token, Payload{Title: "Dinner"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestWebPushSenderRejectsMalformedSubscription(t *testing.T) {
	s := NewWebPushSender(WebPushConfig{})
	err := s.Send(context.Background(), &models.PushToken{Token: "not json"}, Payload{})
	assert.Error(t, err)
}

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	require.NoError(t, err)
	assert.Len(t, pubBytes, 65)

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	require.NoError(t, err)
	assert.Len(t, privBytes, 32)

	pub2, _, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	assert.NotEqual(t, pub, pub2)
}
