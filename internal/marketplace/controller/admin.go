package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecentUsersLimit is the number of newest accounts on the dashboard.
const RecentUsersLimit = 5

type AdminRepository interface {
	CountUsers(ctx context.Context, role *models.Role) (int64, error)
	CountPostings(ctx context.Context, status *models.PostingStatus) (int64, error)
	CountApplications(ctx context.Context, status *models.Status) (int64, error)
	CountByStatus(ctx context.Context, scope models.Scope) ([]models.StatusCount, error)
	CategoryCounts(ctx context.Context, filter models.PostingFilter) ([]models.CategoryCount, error)
	ListUsers(ctx context.Context, filter models.UserFilter, page models.Page) ([]models.Identity, int64, error)
	VerifyUser(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	ToggleActive(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	ToggleFeatured(ctx context.Context, id uuid.UUID) (*models.Posting, error)
	DeletePosting(ctx context.Context, id uuid.UUID) error
}

// AdminService moderates identities and postings. Every method requires an
// administrator actor.
type AdminService struct {
	repo     AdminRepository
	postings *PostingService
	apps     *ApplicationService
	logger   *zap.Logger
}

func NewAdminService(repo AdminRepository, postings *PostingService, apps *ApplicationService, logger *zap.Logger) *AdminService {
	return &AdminService{
		repo:     repo,
		postings: postings,
		apps:     apps,
		logger:   logger.Named("admin_service"),
	}
}

// Dashboard gathers the overview counters. The reads are independent and
// run concurrently.
func (s *AdminService) Dashboard(ctx context.Context, actor models.Actor) (*models.DashboardStats, error) {
	if err := auth.CheckRole(actor, models.RoleAdministrator); err != nil {
		return nil, err
	}

	var stats models.DashboardStats
	o := &stats.Overview
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, fn func(context.Context) (int64, error)) {
		g.Go(func() error {
			n, err := fn(gctx)
			*dst = n
			return err
		})
	}

	count(&o.TotalUsers, func(ctx context.Context) (int64, error) { return s.repo.CountUsers(ctx, nil) })
	count(&o.TotalStudents, func(ctx context.Context) (int64, error) {
		return s.repo.CountUsers(ctx, utils.Ptr(models.RoleApplicant))
	})
	count(&o.TotalCompanies, func(ctx context.Context) (int64, error) {
		return s.repo.CountUsers(ctx, utils.Ptr(models.RoleOrganization))
	})
	count(&o.TotalInternships, func(ctx context.Context) (int64, error) { return s.repo.CountPostings(ctx, nil) })
	count(&o.ActiveInternships, func(ctx context.Context) (int64, error) {
		return s.repo.CountPostings(ctx, utils.Ptr(models.PostingActive))
	})
	count(&o.TotalApplications, func(ctx context.Context) (int64, error) { return s.repo.CountApplications(ctx, nil) })
	count(&o.PendingApplications, func(ctx context.Context) (int64, error) {
		return s.repo.CountApplications(ctx, utils.Ptr(models.StatusPending))
	})

	g.Go(func() error {
		users, _, err := s.repo.ListUsers(gctx, models.UserFilter{}, models.NewPage(1, RecentUsersLimit, RecentUsersLimit))
		stats.RecentUsers = users
		return err
	})
	g.Go(func() error {
		counts, err := s.repo.CountByStatus(gctx, models.AdminScope())
		stats.ApplicationStats = counts
		return err
	})
	g.Go(func() error {
		counts, err := s.repo.CategoryCounts(gctx, models.PostingFilter{})
		stats.PostingStats = counts
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, passThrough(err, "load dashboard")
	}
	return &stats, nil
}

func (s *AdminService) ListUsers(ctx context.Context, actor models.Actor, filter models.UserFilter, page models.Page) ([]models.Identity, models.Pagination, error) {
	if err := auth.CheckRole(actor, models.RoleAdministrator); err != nil {
		return nil, models.Pagination{}, err
	}
	users, total, err := s.repo.ListUsers(ctx, filter, page)
	if err != nil {
		return nil, models.Pagination{}, passThrough(err, "list users")
	}
	return users, models.Paginate(total, page), nil
}

func (s *AdminService) VerifyUser(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Identity, error) {
	if err := auth.CheckRole(actor, models.RoleAdministrator); err != nil {
		return nil, err
	}
	user, err := s.repo.VerifyUser(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "User not found", "verify user")
	}
	s.logger.Info("User verified", zap.String("user_id", id.String()))
	return user, nil
}

// ToggleActive flips an account between active and deactivated.
func (s *AdminService) ToggleActive(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Identity, error) {
	if err := s.otherUser(actor, id); err != nil {
		return nil, err
	}
	user, err := s.repo.ToggleActive(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "User not found", "toggle user")
	}
	s.logger.Info("User active flag toggled",
		zap.String("user_id", id.String()),
		zap.Bool("active", user.Active),
	)
	return user, nil
}

// DeleteUser removes an account together with its postings and applications.
func (s *AdminService) DeleteUser(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if err := s.otherUser(actor, id); err != nil {
		return err
	}
	user, err := s.repo.DeleteUser(ctx, id)
	if err != nil {
		return notFoundAs(err, "User not found", "delete user")
	}
	s.logger.Info("User deleted",
		zap.String("user_id", id.String()),
		zap.String("role", string(user.Role)),
	)
	return nil
}

func (s *AdminService) otherUser(actor models.Actor, id uuid.UUID) error {
	if err := auth.CheckRole(actor, models.RoleAdministrator); err != nil {
		return err
	}
	if actor.ID == id {
		return fmt.Errorf("%w: You cannot change your own account", e.ErrInvalidInput)
	}
	return nil
}

func (s *AdminService) ListPostings(ctx context.Context, actor models.Actor, filter models.PostingFilter, page models.Page) ([]models.Posting, models.Pagination, error) {
	return s.postings.ListAll(ctx, actor, filter, page)
}

func (s *AdminService) ToggleFeatured(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Posting, error) {
	if err := auth.CheckRole(actor, models.RoleAdministrator); err != nil {
		return nil, err
	}
	posting, err := s.repo.ToggleFeatured(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Internship not found", "feature internship")
	}
	return posting, nil
}

// DeletePosting removes any posting together with its applications.
func (s *AdminService) DeletePosting(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if err := auth.CheckRole(actor, models.RoleAdministrator); err != nil {
		return err
	}
	if err := s.repo.DeletePosting(ctx, id); err != nil {
		return notFoundAs(err, "Internship not found", "delete internship")
	}
	s.postings.categories.Flush()
	return nil
}

func (s *AdminService) ListApplications(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) ([]models.Application, models.Pagination, error) {
	return s.apps.ListAll(ctx, actor, filter, page)
}
