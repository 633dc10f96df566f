package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieRoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-key"), time.Hour)

	cookie, err := s.CreateCookie(42, "jwt-token")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", cookie.Name)
	assert.True(t, cookie.HttpOnly)

	userID, err := s.VerifyToken(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestVerifyTokenRejects(t *testing.T) {
	s := NewSigner([]byte("test-key"), time.Hour)
	cookie, err := s.CreateCookie(42, "jwt-token")
	require.NoError(t, err)

	expired := NewSigner([]byte("test-key"), time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.CreateCookie(42, "jwt-token")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		s     *Signer
	}{
		{"garbage", "not-a-token", s},
		{"other key", cookie.Value, NewSigner([]byte("other-key"), time.Hour)},
		{"expired", old.Value, s},
		{"empty", "", s},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.s.VerifyToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestDefaultTTL(t *testing.T) {
	s := NewSigner([]byte("k"), 0)
	assert.Equal(t, DefaultTTL, s.ttl)
}
