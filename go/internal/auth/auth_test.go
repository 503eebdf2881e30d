package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "s3cret"})
	require.NoError(t, err)

	token, err := v.Issue(Identity{TeamID: 4, TeamName: "Rovers", IsAdmin: true})
	require.NoError(t, err)

	id, err := v.Parse(FromAuthorization("Bearer " + token))
	require.NoError(t, err)
	assert.Equal(t, Identity{TeamID: 4, TeamName: "Rovers", IsAdmin: true}, id)
}

func TestVerifier_Rejects(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "s3cret", TTL: time.Minute})
	require.NoError(t, err)
	other, err := NewVerifier(Config{Secret: "different"})
	require.NoError(t, err)

	forged, err := other.Issue(Identity{TeamID: 1})
	require.NoError(t, err)

	expiredIssuer, err := NewVerifier(Config{Secret: "s3cret", TTL: time.Minute})
	require.NoError(t, err)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredIssuer.Issue(Identity{TeamID: 1})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrMissingToken},
		{"wrong secret", forged, ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"garbage", "abc.def.ghi", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Parse(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFromAuthorization(t *testing.T) {
	assert.Equal(t, "tok", FromAuthorization("Bearer tok"))
	assert.Equal(t, "tok", FromAuthorization("bearer tok"))
	assert.Empty(t, FromAuthorization("tok"))
	assert.Empty(t, FromAuthorization(""))
}
