package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// FeaturedLimit caps the featured listings.
	FeaturedLimit = 10
	// CategoryCacheTTL is how long category counts are served from memory.
	CategoryCacheTTL = 5 * time.Minute

	internshipCategoriesKey = "categories:all"
	freelanceCategoriesKey  = "categories:freelance"
)

type PostingRepository interface {
	CreatePosting(ctx context.Context, posting *models.Posting) error
	GetPosting(ctx context.Context, id uuid.UUID) (*models.Posting, error)
	UpdatePosting(ctx context.Context, update *models.PostingUpdate) error
	DeletePosting(ctx context.Context, id uuid.UUID) error
	ListPostings(ctx context.Context, filter models.PostingFilter, page models.Page) ([]models.Posting, int64, error)
	IncrementViews(ctx context.Context, id uuid.UUID) error
	CategoryCounts(ctx context.Context, filter models.PostingFilter) ([]models.CategoryCount, error)
}

// PostingService manages internship and freelance postings.
type PostingService struct {
	repo       PostingRepository
	categories *cache.Cache
	logger     *zap.Logger
	now        func() time.Time
}

func NewPostingService(repo PostingRepository, logger *zap.Logger) *PostingService {
	return &PostingService{
		repo:       repo,
		categories: cache.New(CategoryCacheTTL, 2*CategoryCacheTTL),
		logger:     logger.Named("posting_service"),
		now:        time.Now,
	}
}

// Create publishes a posting owned by the acting organization.
func (s *PostingService) Create(ctx context.Context, actor models.Actor, posting *models.Posting) (*models.Posting, error) {
	if err := auth.CheckRole(actor, models.RoleOrganization); err != nil {
		return nil, err
	}
	if posting.Status == "" {
		posting.Status = models.PostingActive
	}
	if posting.Type == "" {
		posting.Type = models.TypeInternship
	}
	if posting.WorkMode == "" {
		posting.WorkMode = models.WorkRemote
	}
	if err := validatePosting(posting); err != nil {
		return nil, err
	}

	now := s.now()
	posting.ID = uuid.New()
	posting.CompanyID = actor.ID
	posting.Views = 0
	posting.ApplicationsCount = 0
	posting.Featured = false
	posting.CreatedAt = now
	posting.UpdatedAt = now

	if err := s.repo.CreatePosting(ctx, posting); err != nil {
		return nil, passThrough(err, "create internship")
	}
	s.categories.Flush()

	created, err := s.repo.GetPosting(ctx, posting.ID)
	if err != nil {
		s.logger.Error("Failed to reload created internship",
			zap.Error(err),
			zap.String("internship_id", posting.ID.String()),
		)
		return posting, nil
	}
	return created, nil
}

func validatePosting(p *models.Posting) error {
	if err := validateTitle(p.Title); err != nil {
		return err
	}
	if !lo.Contains(models.Categories, p.Category) {
		return fmt.Errorf("%w: Invalid category %q", e.ErrInvalidInput, p.Category)
	}
	if err := validateEnums(&p.Type, &p.WorkMode, &p.Status, &p.Duration); err != nil {
		return err
	}
	if p.Openings < 0 {
		return fmt.Errorf("%w: Openings must not be negative", e.ErrInvalidInput)
	}
	if p.Stipend.Max > 0 && p.Stipend.Min > p.Stipend.Max {
		return fmt.Errorf("%w: Stipend minimum exceeds maximum", e.ErrInvalidInput)
	}
	if p.ApplicationDeadline.IsZero() {
		return fmt.Errorf("%w: Application deadline is required", e.ErrInvalidInput)
	}
	return nil
}

// validateTitle rejects blank titles and control characters, which would
// otherwise reach mail subjects.
func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: Title is required", e.ErrInvalidInput)
	}
	if strings.IndexFunc(title, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: Title must not contain control characters", e.ErrInvalidInput)
	}
	return nil
}

// validateEnums checks the closed enumerations of a posting. Nil pointers
// are skipped.
func validateEnums(typ *models.PostingType, mode *models.WorkMode, status *models.PostingStatus, duration *models.Duration) error {
	switch {
	case typ != nil && !typ.Valid():
		return fmt.Errorf("%w: Invalid type %q", e.ErrInvalidInput, *typ)
	case mode != nil && !mode.Valid():
		return fmt.Errorf("%w: Invalid work mode %q", e.ErrInvalidInput, *mode)
	case status != nil && !status.Valid():
		return fmt.Errorf("%w: Invalid status %q", e.ErrInvalidInput, *status)
	case duration != nil && !duration.Valid():
		return fmt.Errorf("%w: Invalid duration", e.ErrInvalidInput)
	}
	return nil
}

// owned loads a posting and checks that actor owns it.
func (s *PostingService) owned(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Posting, error) {
	if err := auth.CheckRole(actor, models.RoleOrganization); err != nil {
		return nil, err
	}
	posting, err := s.repo.GetPosting(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Internship not found", "get internship")
	}
	if posting.CompanyID != actor.ID {
		return nil, fmt.Errorf("%w: Not authorized", e.ErrForbidden)
	}
	return posting, nil
}

// Update changes the owner's posting. Counters and ownership are not
// updatable.
func (s *PostingService) Update(ctx context.Context, actor models.Actor, update *models.PostingUpdate) (*models.Posting, error) {
	if _, err := s.owned(ctx, actor, update.ID); err != nil {
		return nil, err
	}
	if update.Category != nil && !lo.Contains(models.Categories, *update.Category) {
		return nil, fmt.Errorf("%w: Invalid category %q", e.ErrInvalidInput, *update.Category)
	}
	if update.Title != nil {
		if err := validateTitle(*update.Title); err != nil {
			return nil, err
		}
	}
	if err := validateEnums(update.Type, update.WorkMode, update.Status, update.Duration); err != nil {
		return nil, err
	}
	if update.Openings != nil && *update.Openings < 0 {
		return nil, fmt.Errorf("%w: Openings must not be negative", e.ErrInvalidInput)
	}

	if err := s.repo.UpdatePosting(ctx, update); err != nil {
		return nil, notFoundAs(err, "Internship not found", "update internship")
	}
	s.categories.Flush()

	updated, err := s.repo.GetPosting(ctx, update.ID)
	if err != nil {
		return nil, notFoundAs(err, "Internship not found", "get internship")
	}
	return updated, nil
}

// Delete removes the owner's posting together with its applications.
func (s *PostingService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeletePosting(ctx, id); err != nil {
		return notFoundAs(err, "Internship not found", "delete internship")
	}
	s.categories.Flush()
	s.logger.Info("Internship deleted", zap.String("internship_id", id.String()))
	return nil
}

// Get returns one posting and counts the view.
func (s *PostingService) Get(ctx context.Context, id uuid.UUID) (*models.Posting, error) {
	return s.view(ctx, id, nil, "Internship not found")
}

// GetFreelance returns one freelance project and counts the view.
func (s *PostingService) GetFreelance(ctx context.Context, id uuid.UUID) (*models.Posting, error) {
	return s.view(ctx, id, utils.Ptr(models.TypeFreelance), "Project not found")
}

func (s *PostingService) view(ctx context.Context, id uuid.UUID, kind *models.PostingType, notFound string) (*models.Posting, error) {
	posting, err := s.repo.GetPosting(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, notFound, "get internship")
	}
	if kind != nil && posting.Type != *kind {
		return nil, fmt.Errorf("%w: %s", e.ErrNotFound, notFound)
	}

	if err := s.repo.IncrementViews(ctx, id); err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", e.ErrNotFound, notFound)
		}
		s.logger.Warn("Failed to count view", zap.Error(err), zap.String("internship_id", id.String()))
		return posting, nil
	}
	posting.Views++
	return posting, nil
}

// List is the public catalogue: only active postings are visible.
func (s *PostingService) List(ctx context.Context, filter models.PostingFilter, page models.Page) ([]models.Posting, models.Pagination, error) {
	filter.Status = utils.Ptr(models.PostingActive)
	return s.list(ctx, filter, page)
}

// ListFreelance lists active freelance projects.
func (s *PostingService) ListFreelance(ctx context.Context, filter models.PostingFilter, page models.Page) ([]models.Posting, models.Pagination, error) {
	filter.Type = utils.Ptr(models.TypeFreelance)
	return s.List(ctx, filter, page)
}

// ListAll lists postings in any status; administrators only.
func (s *PostingService) ListAll(ctx context.Context, actor models.Actor, filter models.PostingFilter, page models.Page) ([]models.Posting, models.Pagination, error) {
	if err := auth.CheckRole(actor, models.RoleAdministrator); err != nil {
		return nil, models.Pagination{}, err
	}
	return s.list(ctx, filter, page)
}

// ListByCompany lists one organization's postings in status.
func (s *PostingService) ListByCompany(ctx context.Context, companyID uuid.UUID, status models.PostingStatus, page models.Page) ([]models.Posting, models.Pagination, error) {
	return s.list(ctx, models.PostingFilter{CompanyID: &companyID, Status: &status}, page)
}

func (s *PostingService) list(ctx context.Context, filter models.PostingFilter, page models.Page) ([]models.Posting, models.Pagination, error) {
	postings, total, err := s.repo.ListPostings(ctx, filter, page)
	if err != nil {
		return nil, models.Pagination{}, passThrough(err, "list internships")
	}
	return postings, models.Paginate(total, page), nil
}

// Featured returns the newest featured active postings.
func (s *PostingService) Featured(ctx context.Context) ([]models.Posting, error) {
	postings, _, err := s.List(ctx, models.PostingFilter{Featured: utils.Ptr(true)}, models.NewPage(1, FeaturedLimit, FeaturedLimit))
	return postings, err
}

// ListMine returns every posting of the acting organization, newest first.
func (s *PostingService) ListMine(ctx context.Context, actor models.Actor) ([]models.Posting, error) {
	if err := auth.CheckRole(actor, models.RoleOrganization); err != nil {
		return nil, err
	}

	var all []models.Posting
	filter := models.PostingFilter{CompanyID: &actor.ID}
	for page := models.NewPage(1, models.MaxPageLimit, models.MaxPageLimit); ; page.Page++ {
		postings, total, err := s.repo.ListPostings(ctx, filter, page)
		if err != nil {
			return nil, passThrough(err, "list internships")
		}
		all = append(all, postings...)
		if len(postings) == 0 || int64(len(all)) >= total {
			return all, nil
		}
	}
}

// Categories counts active postings per category.
func (s *PostingService) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	return s.cachedCategories(ctx, internshipCategoriesKey, models.PostingFilter{})
}

// FreelanceCategories counts active freelance projects per category.
func (s *PostingService) FreelanceCategories(ctx context.Context) ([]models.CategoryCount, error) {
	return s.cachedCategories(ctx, freelanceCategoriesKey, models.PostingFilter{Type: utils.Ptr(models.TypeFreelance)})
}

func (s *PostingService) cachedCategories(ctx context.Context, key string, filter models.PostingFilter) ([]models.CategoryCount, error) {
	if cached, ok := s.categories.Get(key); ok {
		return cached.([]models.CategoryCount), nil
	}

	filter.Status = utils.Ptr(models.PostingActive)
	counts, err := s.repo.CategoryCounts(ctx, filter)
	if err != nil {
		return nil, passThrough(err, "count categories")
	}
	s.categories.SetDefault(key, counts)
	return counts, nil
}
