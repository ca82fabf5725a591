// Package auth issues and validates JWT bearer tokens and resolves the
// calling identity for HTTP routes and gRPC methods.
package auth

import (
	"context"
	"strings"

	"github.com/gartstein/internhub/internal/marketplace/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const (
	userContextKey  contextKey = "user"
	actorContextKey contextKey = "actor"
)

// Interceptor authenticates every gRPC method except the public ones.
type Interceptor struct {
	tokens        *TokenIssuer
	publicMethods map[string]bool
}

// NewAuthInterceptor creates an Interceptor. Health checks are always public.
func NewAuthInterceptor(tokens *TokenIssuer, public ...string) *Interceptor {
	publicMethods := map[string]bool{
		"/grpc.health.v1.Health/Check": true,
		"/grpc.health.v1.Health/Watch": true,
	}
	for _, m := range public {
		publicMethods[m] = true
	}
	return &Interceptor{tokens: tokens, publicMethods: publicMethods}
}

// Unary returns a gRPC unary interceptor for token validation.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if i.publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata missing")
		}

		tokenString, err := extractTokenFromMetadata(md)
		if err != nil {
			return nil, err
		}

		claims, err := i.tokens.Validate(tokenString)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}
		actor, err := claims.Actor()
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}

		return handler(context.WithValue(ctx, actorContextKey, actor), req)
	}
}

// extractTokenFromMetadata retrieves a Bearer token from gRPC metadata.
func extractTokenFromMetadata(md metadata.MD) (string, error) {
	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization header missing")
	}

	headerValue := authHeaders[0]
	if !strings.HasPrefix(headerValue, "Bearer ") {
		return "", status.Error(codes.Unauthenticated, "invalid authorization format: missing Bearer prefix")
	}

	tokenString := strings.TrimPrefix(headerValue, "Bearer ")
	if tokenString == "" {
		return "", status.Error(codes.Unauthenticated, "invalid authorization format: empty token")
	}

	return tokenString, nil
}

// ActorFromContext returns the actor stored by the gRPC interceptor.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(models.Actor)
	return actor, ok
}
