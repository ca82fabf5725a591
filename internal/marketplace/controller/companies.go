package controller

import (
	"context"
	"fmt"

	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FeaturedCompaniesLimit caps the featured company list.
const FeaturedCompaniesLimit = 12

type CompanyRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	ListCompanies(ctx context.Context, filter models.CompanyFilter, page models.Page) ([]models.Identity, int64, error)
	ListPostings(ctx context.Context, filter models.PostingFilter, page models.Page) ([]models.Posting, int64, error)
}

// CompanyDetails is a public company profile with its open postings.
type CompanyDetails struct {
	Company     *models.Identity `json:"company"`
	Internships []models.Posting `json:"internships"`
}

// CompanyService serves the public company directory.
type CompanyService struct {
	repo   CompanyRepository
	logger *zap.Logger
}

func NewCompanyService(repo CompanyRepository, logger *zap.Logger) *CompanyService {
	return &CompanyService{
		repo:   repo,
		logger: logger.Named("company_service"),
	}
}

func (s *CompanyService) List(ctx context.Context, filter models.CompanyFilter, page models.Page) ([]models.Identity, models.Pagination, error) {
	companies, total, err := s.repo.ListCompanies(ctx, filter, page)
	if err != nil {
		return nil, models.Pagination{}, passThrough(err, "list companies")
	}
	return companies, models.Paginate(total, page), nil
}

// Get returns an organization's profile and its active postings.
func (s *CompanyService) Get(ctx context.Context, id uuid.UUID) (*CompanyDetails, error) {
	company, err := s.company(ctx, id)
	if err != nil {
		return nil, err
	}

	filter := models.PostingFilter{CompanyID: &id, Status: utils.Ptr(models.PostingActive)}
	postings, _, err := s.repo.ListPostings(ctx, filter, models.NewPage(1, models.MaxPageLimit, models.MaxPageLimit))
	if err != nil {
		return nil, passThrough(err, "list company internships")
	}
	return &CompanyDetails{Company: company, Internships: postings}, nil
}

// Postings pages through an organization's postings in status.
func (s *CompanyService) Postings(ctx context.Context, id uuid.UUID, status models.PostingStatus, page models.Page) ([]models.Posting, models.Pagination, error) {
	if _, err := s.company(ctx, id); err != nil {
		return nil, models.Pagination{}, err
	}
	postings, total, err := s.repo.ListPostings(ctx, models.PostingFilter{CompanyID: &id, Status: &status}, page)
	if err != nil {
		return nil, models.Pagination{}, passThrough(err, "list company internships")
	}
	return postings, models.Paginate(total, page), nil
}

// Featured lists the newest verified organizations.
func (s *CompanyService) Featured(ctx context.Context) ([]models.Identity, error) {
	companies, _, err := s.List(ctx, models.CompanyFilter{Verified: utils.Ptr(true)},
		models.NewPage(1, FeaturedCompaniesLimit, FeaturedCompaniesLimit))
	return companies, err
}

func (s *CompanyService) company(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	company, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Company not found", "get company")
	}
	if company.Role != models.RoleOrganization {
		return nil, fmt.Errorf("%w: Company not found", e.ErrNotFound)
	}
	return company, nil
}
