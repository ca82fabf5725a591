package db

import (
	"context"
	"errors"
	"fmt"

	dbmodels "github.com/gartstein/internhub/internal/marketplace/db/models"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateApplication stores app with its timeline and bumps the posting's
// application counter in the same transaction.
func (r *Repository) CreateApplication(ctx context.Context, app *models.Application) error {
	return r.WithTransaction(ctx, func(repo *Repository) error {
		if err := repo.IncrementApplications(ctx, app.PostingID); err != nil {
			return err
		}

		if err := repo.db.WithContext(ctx).Create(applicationToRow(app)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: You have already applied to this internship", e.ErrConflict)
			}
			return err
		}
		return nil
	})
}

func (r *Repository) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var row dbmodels.Application
	result := r.withApplicationDetails(r.db.WithContext(ctx)).First(&row, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: application", e.ErrNotFound)
		}
		return nil, result.Error
	}
	return applicationFromRow(&row), nil
}

func (r *Repository) withApplicationDetails(query *gorm.DB) *gorm.DB {
	return query.
		Preload("Timeline", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Posting").
		Preload("Posting.Company").
		Preload("Applicant")
}

// SaveTransition persists one review action. The row is only updated while
// it still holds change.From, and a status change is written together with
// its timeline entry or not at all.
func (r *Repository) SaveTransition(ctx context.Context, change *models.ApplicationChange) error {
	moved := change.From != change.To
	if moved != (change.Entry != nil) {
		return fmt.Errorf("%w: status change without matching timeline entry", e.ErrInvalidInput)
	}

	columns := map[string]interface{}{
		"status":     string(change.To),
		"updated_at": change.UpdatedAt,
	}
	if change.Feedback != nil {
		columns["feedback"] = datatypes.NewJSONType(change.Feedback)
	}
	if change.Interview != nil {
		columns["interview"] = datatypes.NewJSONType(change.Interview)
	}

	return r.WithTransaction(ctx, func(repo *Repository) error {
		result := repo.db.WithContext(ctx).Model(&dbmodels.Application{}).
			Where("id = ? AND status = ?", change.ID, string(change.From)).
			Updates(columns)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := repo.db.WithContext(ctx).Model(&dbmodels.Application{}).Where("id = ?", change.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: application", e.ErrNotFound)
			}
			return fmt.Errorf("%w: application is no longer %s", e.ErrInvalidState, change.From)
		}

		if !moved {
			return nil
		}
		entry := timelineToRow(&models.Application{ID: change.ID}, *change.Entry)
		return repo.db.WithContext(ctx).Create(&entry).Error
	})
}

// ListApplications returns the applications visible under scope, newest
// first.
func (r *Repository) ListApplications(ctx context.Context, scope models.Scope, filter models.ApplicationFilter, page models.Page) ([]models.Application, int64, error) {
	query, err := scoped(r.db.WithContext(ctx).Model(&dbmodels.Application{}), scope)
	if err != nil {
		return nil, 0, err
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.PostingID != nil {
		query = query.Where("posting_id = ?", *filter.PostingID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []dbmodels.Application
	err = r.withApplicationDetails(query).
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return applicationsFromRows(rows), total, nil
}

// CountByStatus groups the applications visible under scope by status.
func (r *Repository) CountByStatus(ctx context.Context, scope models.Scope) ([]models.StatusCount, error) {
	query, err := scoped(r.db.WithContext(ctx).Model(&dbmodels.Application{}), scope)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status string
		Count  int64
	}
	err = query.Select("status, COUNT(*) AS count").
		Group("status").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make([]models.StatusCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, models.StatusCount{Status: models.Status(row.Status), Count: row.Count})
	}
	return counts, nil
}

// CountApplications counts applications, optionally in one status.
func (r *Repository) CountApplications(ctx context.Context, status *models.Status) (int64, error) {
	query := r.db.WithContext(ctx).Model(&dbmodels.Application{})
	if status != nil {
		query = query.Where("status = ?", string(*status))
	}
	var count int64
	return count, query.Count(&count).Error
}

func scoped(query *gorm.DB, scope models.Scope) (*gorm.DB, error) {
	switch {
	case scope.All:
		return query, nil
	case scope.ApplicantID != nil:
		return query.Where("applicant_id = ?", *scope.ApplicantID), nil
	case scope.CompanyID != nil:
		return query.Where("company_id = ?", *scope.CompanyID), nil
	default:
		return nil, fmt.Errorf("%w: application reads require a scope", e.ErrForbidden)
	}
}

func (r *Repository) deleteApplicationsWhere(ctx context.Context, condition string, args ...interface{}) error {
	ids := r.db.WithContext(ctx).Model(&dbmodels.Application{}).Select("id").Where(condition, args...)
	if err := r.db.WithContext(ctx).Where("application_id IN (?)", ids).Delete(&dbmodels.TimelineEntry{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where(condition, args...).Delete(&dbmodels.Application{}).Error
}
