package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer(accessTTL time.Duration) *TokenIssuer {
	return NewTokenIssuer("access-secret", "refresh-secret", accessTTL, 7*24*time.Hour)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti := testIssuer(time.Hour)
	id := Identity{UserID: 7, Email: "worker@site.test", Role: "employee"}

	pair, err := ti.Issue(id)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	got, err := ti.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	got, err = ti.ValidateRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, id, *got)
}

func TestTokenIssuer_KindConfusionRejected(t *testing.T) {
	ti := testIssuer(time.Hour)
	pair, err := ti.Issue(Identity{UserID: 7, Email: "worker@site.test", Role: "employee"})
	require.NoError(t, err)

	// A refresh token must not pass access validation, and vice versa.
	_, err = ti.ValidateAccess(pair.RefreshToken)
	assert.Error(t, err)
	_, err = ti.ValidateRefresh(pair.AccessToken)
	assert.Error(t, err)
}

func TestTokenIssuer_ExpiredRejected(t *testing.T) {
	ti := testIssuer(-time.Minute)
	pair, err := ti.Issue(Identity{UserID: 7, Email: "worker@site.test", Role: "employee"})
	require.NoError(t, err)

	_, err = ti.ValidateAccess(pair.AccessToken)
	assert.Error(t, err)
}

func TestTokenIssuer_WrongSecretRejected(t *testing.T) {
	pair, err := testIssuer(time.Hour).Issue(Identity{UserID: 7, Role: "employee"})
	require.NoError(t, err)

	other := NewTokenIssuer("different", "different", time.Hour, time.Hour)
	_, err = other.ValidateAccess(pair.AccessToken)
	assert.Error(t, err)
}

func TestTokenIssuer_GarbageRejected(t *testing.T) {
	_, err := testIssuer(time.Hour).ValidateAccess("not.a.token")
	assert.Error(t, err)
}
