package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdentityLookup resolves the token subject to a stored identity.
type IdentityLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

type principal struct {
	identity *models.Identity
	err      error
}

// Authenticator resolves the bearer token of each HTTP request. The outcome
// is stored in the request context; routes decide whether it is required.
type Authenticator struct {
	tokens *TokenIssuer
	users  IdentityLookup
	logger *zap.Logger
}

func NewAuthenticator(tokens *TokenIssuer, users IdentityLookup, logger *zap.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, logger: logger.Named("authenticator")}
}

func (a *Authenticator) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := a.resolve(r)
		if p.err != nil && !errors.Is(p.err, e.ErrUnauthorized) && !errors.Is(p.err, e.ErrForbidden) {
			a.logger.Error("Auth middleware error", zap.Error(p.err))
			writeError(w, http.StatusInternalServerError, "Server error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, p)))
	})
}

func (a *Authenticator) resolve(r *http.Request) principal {
	tokenString, err := extractTokenFromHeader(r)
	if err != nil {
		return principal{err: err}
	}

	claims, err := a.tokens.Validate(tokenString)
	if err != nil {
		return principal{err: fmt.Errorf("%w: Token is not valid", e.ErrUnauthorized)}
	}
	actor, err := claims.Actor()
	if err != nil {
		return principal{err: fmt.Errorf("%w: Token is not valid", e.ErrUnauthorized)}
	}

	user, err := a.users.GetUser(r.Context(), actor.ID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return principal{err: fmt.Errorf("%w: User not found", e.ErrUnauthorized)}
		}
		return principal{err: err}
	}
	if !user.Active {
		return principal{err: fmt.Errorf("%w: Account is deactivated", e.ErrForbidden)}
	}
	return principal{identity: user}
}

func extractTokenFromHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("%w: No token, authorization denied", e.ErrUnauthorized)
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenString == "" || tokenString == authHeader {
		return "", fmt.Errorf("%w: invalid authorization format", e.ErrUnauthorized)
	}
	return tokenString, nil
}

// WithIdentity stores an authenticated identity in ctx.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, userContextKey, principal{identity: identity})
}

// Authenticated returns the request identity or the reason there is none.
func Authenticated(ctx context.Context) (*models.Identity, error) {
	p, ok := ctx.Value(userContextKey).(principal)
	if !ok {
		return nil, fmt.Errorf("%w: No token, authorization denied", e.ErrUnauthorized)
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.identity, nil
}

// Optional returns the request identity, or nil for anonymous requests.
func Optional(ctx context.Context) *models.Identity {
	identity, err := Authenticated(ctx)
	if err != nil {
		return nil
	}
	return identity
}

// RequireRole authenticates the request and checks its role.
func RequireRole(ctx context.Context, role models.Role) (*models.Identity, error) {
	identity, err := Authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if err := CheckRole(identity.Actor(), role); err != nil {
		return nil, err
	}
	return identity, nil
}

// CheckRole returns ErrForbidden unless actor has role.
func CheckRole(actor models.Actor, role models.Role) error {
	if actor.Role == role {
		return nil
	}

	switch role {
	case models.RoleApplicant:
		return fmt.Errorf("%w: Access denied. Students only.", e.ErrForbidden)
	case models.RoleOrganization:
		return fmt.Errorf("%w: Access denied. Companies only.", e.ErrForbidden)
	case models.RoleAdministrator:
		return fmt.Errorf("%w: Access denied. Admins only.", e.ErrForbidden)
	default:
		return fmt.Errorf("%w: Access denied.", e.ErrForbidden)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": message})
}
