package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3StorageRequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestPresignGetUsesEndpointAndPathStyle(t *testing.T) {
	s, err := NewS3Storage(context.Background(), S3Config{
		Region:    "us-east-1",
		Bucket:    "lovetrack-exports",
		AccessKey: "test-access",
		SecretKey: "test-secret",
		Endpoint:  "http://localhost:9000",
	})
	require.NoError(t, err)

	raw, err := s.PresignGet(context.Background(), "exports/abc/123.json", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/lovetrack-exports/exports/abc/123.json", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-Credential"), "test-access")
}
