// Command authentication provisions the administrator account, which cannot
// be created through registration, and prints a bearer token for it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	"github.com/gartstein/internhub/internal/marketplace/config"
	"github.com/gartstein/internhub/internal/marketplace/db"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultAdminName = "Administrator"

// TokenResponse is printed to stdout on success.
type TokenResponse struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

// AdminStore is the part of the repository the command needs.
type AdminStore interface {
	CreateUser(ctx context.Context, user *models.Identity) error
	GetUserByEmail(ctx context.Context, email string) (*models.Identity, error)
}

func main() {
	logger, _ := zap.NewProduction()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = filepath.Join("internal", "marketplace", "config", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	repo, err := db.NewRepository(&db.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		Path:     cfg.Database.Path,
	})
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer func() { _ = repo.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	resp, err := provision(ctx, repo, tokens, os.Getenv("ADMIN_NAME"), os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD"))
	if err != nil {
		logger.Fatal("failed to provision administrator", zap.Error(err))
	}

	if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
		logger.Fatal("failed to encode token", zap.Error(err))
	}
}

// provision creates the administrator unless the e-mail is already one, and
// issues a token. An existing non-administrator account is left untouched.
func provision(ctx context.Context, store AdminStore, tokens *auth.TokenIssuer, name, email, password string) (*TokenResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("ADMIN_EMAIL is required")
	}

	user, err := store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role != models.RoleAdministrator {
			return nil, fmt.Errorf("%s is registered as %s", email, user.Role)
		}
		if password != "" && !auth.CheckPassword(user.PasswordHash, password) {
			return nil, errors.New("password does not match the existing administrator")
		}
	case errors.Is(err, e.ErrNotFound):
		if len(password) < 6 {
			return nil, errors.New("ADMIN_PASSWORD must be at least 6 characters")
		}
		if name == "" {
			name = defaultAdminName
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		now := time.Now()
		user = &models.Identity{
			ID:           uuid.New(),
			Name:         name,
			Email:        email,
			PasswordHash: hash,
			Role:         models.RoleAdministrator,
			Active:       true,
			Verified:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create administrator: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to look up %s: %w", email, err)
	}

	token, err := tokens.Generate(user.Actor())
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &TokenResponse{Token: token, User: *user}, nil
}
