package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload for an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewTokenIssuer(secret []byte, ttl time.Duration, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, issuer: issuer}
}

// Issue creates a signed token for the principal.
func (t *TokenIssuer) Issue(p Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		UserID:         p.UserID.String(),
		OrganizationID: p.OrganizationID.String(),
		Role:           p.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a token, returning the embedded principal.
func (t *TokenIssuer) Verify(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return Principal{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token claims")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid userId claim: %w", err)
	}
	orgID, err := uuid.Parse(claims.OrganizationID)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid organizationId claim: %w", err)
	}
	if !ValidRoles[claims.Role] {
		return Principal{}, fmt.Errorf("invalid role claim: %q", claims.Role)
	}

	return Principal{UserID: userID, OrganizationID: orgID, Role: claims.Role}, nil
}
