// Package auth implements identity: credential verification, bearer token
// issuance and validation, and the single authorisation predicate consumed
// by both the HTTP and socket facades.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sitewatch/backend/internal/errs"
)

// Identity is the verified principal attached to a request or socket.
type Identity struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IsSupervisor reports whether the identity carries the supervisor role.
func (id Identity) IsSupervisor() bool { return id.Role == "supervisor" }

// Claims is the JWT payload for both access and refresh tokens.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Kind   string `json:"kind"` // "access" or "refresh"
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 token pairs.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenIssuer builds an issuer from the configured secrets and lifetimes.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// TokenPair is the login/refresh response body.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime, seconds
}

// Issue mints an access + refresh pair for the identity.
func (ti *TokenIssuer) Issue(id Identity) (*TokenPair, error) {
	access, err := ti.sign(id, "access", ti.accessSecret, ti.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := ti.sign(id, "refresh", ti.refreshSecret, ti.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ti.accessTTL.Seconds()),
	}, nil
}

func (ti *TokenIssuer) sign(id Identity, kind string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// ValidateAccess checks an access token. Bad signature, wrong kind or
// expiry all surface as ErrUnauthenticated without detail.
func (ti *TokenIssuer) ValidateAccess(raw string) (*Identity, error) {
	return ti.validate(raw, "access", ti.accessSecret)
}

// ValidateRefresh checks a refresh token for the rotation endpoint.
func (ti *TokenIssuer) ValidateRefresh(raw string) (*Identity, error) {
	return ti.validate(raw, "refresh", ti.refreshSecret)
}

func (ti *TokenIssuer) validate(raw, kind string, secret []byte) (*Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid || claims.Kind != kind {
		return nil, errs.ErrUnauthenticated
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}
