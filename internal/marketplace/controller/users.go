package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/marketplace/notify"
	"github.com/gartstein/internhub/internal/marketplace/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.Identity) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetUserByEmail(ctx context.Context, email string) (*models.Identity, error)
	UpdateProfile(ctx context.Context, update *models.ProfileUpdate) error
	SetPassword(ctx context.Context, id uuid.UUID, hash string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// FileStore persists an upload and returns its public reference.
type FileStore interface {
	Save(field storage.Field, filename string, r io.Reader) (string, error)
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Student  *models.StudentProfile
	Company  *models.CompanyProfile
}

// Session is the result of a successful sign-in.
type Session struct {
	Token string           `json:"token"`
	User  *models.Identity `json:"user"`
}

// UserService handles registration, sign-in and self-service profile
// management.
type UserService struct {
	repo     UserRepository
	tokens   *auth.TokenIssuer
	files    FileStore
	notifier *Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewUserService(repo UserRepository, tokens *auth.TokenIssuer, files FileStore, notifier *Notifier, logger *zap.Logger) *UserService {
	return &UserService{
		repo:     repo,
		tokens:   tokens,
		files:    files,
		notifier: notifier,
		logger:   logger.Named("user_service"),
		now:      time.Now,
	}
}

// Register creates an applicant or organization account and signs it in.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: Name is required", e.ErrInvalidInput)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: Password must be at least %d characters", e.ErrInvalidInput, MinPasswordLength)
	}

	now := s.now()
	user := &models.Identity{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Role:      req.Role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch req.Role {
	case models.RoleApplicant:
		user.Student = req.Student
		if user.Student == nil {
			user.Student = &models.StudentProfile{}
		}
	case models.RoleOrganization:
		user.Company = req.Company
		if user.Company == nil {
			user.Company = &models.CompanyProfile{}
		}
		if user.Company.CompanyName == "" {
			user.Company.CompanyName = name
		}
		user.Company.Verified = false
	case models.RoleAdministrator:
		return nil, fmt.Errorf("%w: Administrators cannot self-register", e.ErrForbidden)
	default:
		return nil, fmt.Errorf("%w: Invalid role", e.ErrInvalidInput)
	}

	user.PasswordHash, err = auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, e.ErrConflict) {
			return nil, fmt.Errorf("%w: User already exists", e.ErrConflict)
		}
		return nil, passThrough(err, "create user")
	}

	s.notifier.Notify(ctx, notify.KindWelcome, user.Email, notify.WelcomeData{Name: user.Name})
	s.logger.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)
	return s.session(user)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: Please provide a valid email", e.ErrInvalidInput)
	}
	return email, nil
}

// Login verifies the credentials of an active account.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, fmt.Errorf("%w: Invalid credentials", e.ErrInvalidInput)
		}
		return nil, passThrough(err, "get user")
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, fmt.Errorf("%w: Invalid credentials", e.ErrInvalidInput)
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: Account is deactivated", e.ErrForbidden)
	}

	now := s.now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to record last login", zap.Error(err), zap.String("user_id", user.ID.String()))
	} else {
		user.LastLogin = &now
	}
	return s.session(user)
}

func (s *UserService) session(user *models.Identity) (*Session, error) {
	token, err := s.tokens.Generate(user.Actor())
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}

// Me returns the acting identity.
func (s *UserService) Me(ctx context.Context, actor models.Actor) (*models.Identity, error) {
	return s.PublicProfile(ctx, actor.ID)
}

// PublicProfile returns any identity by ID.
func (s *UserService) PublicProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "User not found", "get user")
	}
	return user, nil
}

// UpdateProfile changes the actor's own profile. Role payloads that do not
// match the actor's role are ignored, and company verification is kept.
func (s *UserService) UpdateProfile(ctx context.Context, actor models.Actor, update models.ProfileUpdate) (*models.Identity, error) {
	current, err := s.PublicProfile(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	update.ID = actor.ID
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, fmt.Errorf("%w: Name is required", e.ErrInvalidInput)
	}
	if current.Role != models.RoleApplicant {
		update.Student = nil
	}
	if current.Role != models.RoleOrganization {
		update.Company = nil
	}
	if update.Company != nil && current.Company != nil {
		update.Company.Verified = current.Company.Verified
	}

	if err := s.repo.UpdateProfile(ctx, &update); err != nil {
		return nil, notFoundAs(err, "User not found", "update profile")
	}
	return s.PublicProfile(ctx, actor.ID)
}

// ChangePassword replaces the actor's password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, actor models.Actor, currentPassword, newPassword string) error {
	user, err := s.PublicProfile(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, currentPassword) {
		return fmt.Errorf("%w: Current password is incorrect", e.ErrInvalidInput)
	}
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: Password must be at least %d characters", e.ErrInvalidInput, MinPasswordLength)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, actor.ID, hash); err != nil {
		return notFoundAs(err, "User not found", "change password")
	}
	return nil
}

// SetAvatar stores an uploaded image as the actor's avatar.
func (s *UserService) SetAvatar(ctx context.Context, actor models.Actor, filename string, r io.Reader) (string, *models.Identity, error) {
	user, err := s.PublicProfile(ctx, actor.ID)
	if err != nil {
		return "", nil, err
	}
	ref, err := s.files.Save(storage.FieldAvatar, filename, r)
	if err != nil {
		return "", nil, passThrough(err, "store avatar")
	}

	profile := user.Profile
	profile.Avatar = ref
	updated, err := s.UpdateProfile(ctx, actor, models.ProfileUpdate{Profile: &profile})
	return ref, updated, err
}

// SetResume stores an applicant's resume.
func (s *UserService) SetResume(ctx context.Context, actor models.Actor, filename string, r io.Reader) (string, *models.Identity, error) {
	if actor.Role != models.RoleApplicant {
		return "", nil, fmt.Errorf("%w: Only students can upload resumes", e.ErrForbidden)
	}
	user, err := s.PublicProfile(ctx, actor.ID)
	if err != nil {
		return "", nil, err
	}
	ref, err := s.files.Save(storage.FieldResume, filename, r)
	if err != nil {
		return "", nil, passThrough(err, "store resume")
	}

	student := models.StudentProfile{}
	if user.Student != nil {
		student = *user.Student
	}
	student.Resume = ref
	updated, err := s.UpdateProfile(ctx, actor, models.ProfileUpdate{Student: &student})
	return ref, updated, err
}

// SetLogo stores an organization's logo.
func (s *UserService) SetLogo(ctx context.Context, actor models.Actor, filename string, r io.Reader) (string, *models.Identity, error) {
	if actor.Role != models.RoleOrganization {
		return "", nil, fmt.Errorf("%w: Only companies can upload logos", e.ErrForbidden)
	}
	user, err := s.PublicProfile(ctx, actor.ID)
	if err != nil {
		return "", nil, err
	}
	ref, err := s.files.Save(storage.FieldLogo, filename, r)
	if err != nil {
		return "", nil, passThrough(err, "store logo")
	}

	company := models.CompanyProfile{}
	if user.Company != nil {
		company = *user.Company
	}
	company.Logo = ref
	updated, err := s.UpdateProfile(ctx, actor, models.ProfileUpdate{Company: &company})
	return ref, updated, err
}

// Deactivate soft-deletes the actor's account.
func (s *UserService) Deactivate(ctx context.Context, actor models.Actor) error {
	if err := s.repo.SetActive(ctx, actor.ID, false); err != nil {
		return notFoundAs(err, "User not found", "deactivate account")
	}
	s.logger.Info("Account deactivated", zap.String("user_id", actor.ID.String()))
	return nil
}
