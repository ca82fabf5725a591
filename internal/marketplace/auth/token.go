package auth

import (
	"fmt"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the token payload: the identity ID as subject plus its role.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into the acting identity.
func (c *Claims) Actor() (models.Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid subject: %w", err)
	}
	if !c.Role.Valid() {
		return models.Actor{}, fmt.Errorf("invalid role %q", c.Role)
	}
	return models.Actor{ID: id, Role: c.Role}, nil
}

type TokenIssuer struct {
	secret string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Generate signs an HS256 token for actor.
func (t *TokenIssuer) Generate(actor models.Actor) (string, error) {
	now := t.now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(t.secret))
}

// Validate checks signature, expiry and issuer.
func (t *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	return validateToken(tokenString, t.secret, t.issuer)
}

// validateToken checks the token signature and returns parsed claims if valid.
func validateToken(tokenString, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}
