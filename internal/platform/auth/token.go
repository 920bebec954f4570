package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/clock"
)

type Claims struct {
	jwt.RegisteredClaims
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	UserType  string `json:"user_type"`
	RoleLevel string `json:"role_level"`
	Superuser bool   `json:"is_superuser,omitempty"`
	Staff     bool   `json:"is_staff,omitempty"`
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenIssuer(signingKey []byte, issuer string, ttl time.Duration, c clock.Clock) *TokenIssuer {
	if c == nil {
		c = clock.New()
	}
	return &TokenIssuer{key: signingKey, issuer: issuer, ttl: ttl, clock: c}
}

// Issue returns a signed token for a and its expiry.
func (t *TokenIssuer) Issue(a *Actor) (string, time.Time, error) {
	now := t.clock.Now()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   a.ID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username:  a.Username,
		Name:      a.Name,
		UserType:  a.UserType.String(),
		RoleLevel: a.RoleLevel.String(),
		Superuser: a.IsSuperuser,
		Staff:     a.IsStaff,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a token and rebuilds the Actor it was issued for.
func (t *TokenIssuer) Parse(tokenStr string) (*Actor, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	ut, err := ParseUserType(claims.UserType)
	if err != nil {
		return nil, err
	}
	rl, err := ParseRoleLevel(claims.RoleLevel)
	if err != nil {
		return nil, err
	}
	return &Actor{
		ID:             id,
		Username:       claims.Username,
		Name:           claims.Name,
		UserType:       ut,
		RoleLevel:      rl,
		IsSuperuser:    claims.Superuser,
		IsStaff:        claims.Staff,
		TokenID:        claims.ID,
		TokenExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
