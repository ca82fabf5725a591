package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbmodels "github.com/gartstein/internhub/internal/marketplace/db/models"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var postingOrder = map[models.PostingSort]string{
	models.SortNewest:      "created_at DESC",
	models.SortOldest:      "created_at ASC",
	models.SortDeadline:    "application_deadline ASC",
	models.SortStipendDesc: "stipend_max DESC",
	models.SortMostViewed:  "views DESC",
	models.SortMostApplied: "applications_count DESC",
}

func (r *Repository) CreatePosting(ctx context.Context, posting *models.Posting) error {
	return r.db.WithContext(ctx).Create(postingToRow(posting)).Error
}

func (r *Repository) GetPosting(ctx context.Context, id uuid.UUID) (*models.Posting, error) {
	var row dbmodels.Posting
	result := r.db.WithContext(ctx).Preload("Company").First(&row, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: internship", e.ErrNotFound)
		}
		return nil, result.Error
	}
	return postingFromRow(&row), nil
}

func (r *Repository) UpdatePosting(ctx context.Context, update *models.PostingUpdate) error {
	columns := postingUpdateColumns(update)
	if len(columns) == 0 {
		_, err := r.GetPosting(ctx, update.ID)
		return err
	}
	result := r.db.WithContext(ctx).Model(&dbmodels.Posting{}).
		Where("id = ?", update.ID).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: internship", e.ErrNotFound)
	}
	return nil
}

func postingUpdateColumns(u *models.PostingUpdate) map[string]interface{} {
	columns := map[string]interface{}{}
	if u.Title != nil {
		columns["title"] = *u.Title
	}
	if u.Description != nil {
		columns["description"] = *u.Description
	}
	if u.Type != nil {
		columns["type"] = string(*u.Type)
	}
	if u.Category != nil {
		columns["category"] = string(*u.Category)
	}
	if u.Location != nil {
		columns["location"] = *u.Location
	}
	if u.WorkMode != nil {
		columns["work_mode"] = string(*u.WorkMode)
	}
	if u.Duration != nil {
		columns["duration_value"] = u.Duration.Value
		columns["duration_unit"] = u.Duration.Unit
	}
	if u.Stipend != nil {
		columns["stipend_min"] = u.Stipend.Min
		columns["stipend_max"] = u.Stipend.Max
		columns["stipend_currency"] = u.Stipend.Currency
		columns["stipend_negotiable"] = u.Stipend.Negotiable
		columns["stipend_paid"] = u.Stipend.Paid
	}
	if u.Requirements != nil {
		columns["requirements"] = datatypes.NewJSONType(*u.Requirements)
		columns["skills_index"] = skillsIndex(u.Requirements.Skills)
	}
	if u.Responsibilities != nil {
		columns["responsibilities"] = datatypes.JSONSlice[string](*u.Responsibilities)
	}
	if u.Perks != nil {
		columns["perks"] = datatypes.JSONSlice[string](*u.Perks)
	}
	if u.Openings != nil {
		columns["openings"] = *u.Openings
	}
	if u.ApplicationDeadline != nil {
		columns["application_deadline"] = *u.ApplicationDeadline
	}
	if u.StartDate != nil {
		columns["start_date"] = *u.StartDate
	}
	if u.Status != nil {
		columns["status"] = string(*u.Status)
	}
	if u.Urgent != nil {
		columns["urgent"] = *u.Urgent
	}
	if u.Questionnaire != nil {
		columns["questionnaire"] = datatypes.JSONSlice[models.Question](*u.Questionnaire)
	}
	return columns
}

// DeletePosting removes the posting together with its applications.
func (r *Repository) DeletePosting(ctx context.Context, id uuid.UUID) error {
	return r.WithTransaction(ctx, func(repo *Repository) error {
		if err := repo.deleteApplicationsWhere(ctx, "posting_id = ?", id); err != nil {
			return err
		}
		result := repo.db.WithContext(ctx).Delete(&dbmodels.Posting{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: internship", e.ErrNotFound)
		}
		return nil
	})
}

func (r *Repository) ListPostings(ctx context.Context, filter models.PostingFilter, page models.Page) ([]models.Posting, int64, error) {
	query := r.postingQuery(ctx, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order, ok := postingOrder[filter.Sort]
	if !ok {
		order = postingOrder[models.SortNewest]
	}
	var rows []dbmodels.Posting
	err := query.Preload("Company").
		Order(order).
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return postingsFromRows(rows), total, nil
}

func (r *Repository) postingQuery(ctx context.Context, filter models.PostingFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&dbmodels.Posting{})
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Type != nil {
		query = query.Where("type = ?", string(*filter.Type))
	}
	if filter.Category != nil {
		query = query.Where("category = ?", string(*filter.Category))
	}
	if filter.WorkMode != nil {
		query = query.Where("work_mode = ?", string(*filter.WorkMode))
	}
	if filter.Featured != nil {
		query = query.Where("featured = ?", *filter.Featured)
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", likePattern(s), likePattern(s))
	}
	if l := strings.ToLower(strings.TrimSpace(filter.Location)); l != "" {
		query = query.Where("LOWER(location) LIKE ?", likePattern(l))
	}
	if filter.MinStipend != nil {
		query = query.Where("stipend_min >= ?", *filter.MinStipend)
	}
	if filter.MaxStipend != nil {
		query = query.Where("stipend_max <= ?", *filter.MaxStipend)
	}
	if len(filter.Skills) > 0 {
		conditions := r.db.Where("1 = 0")
		for _, skill := range filter.Skills {
			skill = strings.ToLower(strings.TrimSpace(skill))
			if skill == "" {
				continue
			}
			conditions = conditions.Or("skills_index LIKE ?", likePattern(","+skill+","))
		}
		query = query.Where(conditions)
	}
	return query
}

// IncrementViews bumps the view counter with a single atomic update.
func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&dbmodels.Posting{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: internship", e.ErrNotFound)
	}
	return nil
}

// IncrementApplications bumps the application counter atomically.
func (r *Repository) IncrementApplications(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&dbmodels.Posting{}).
		Where("id = ?", id).
		UpdateColumn("applications_count", gorm.Expr("applications_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: internship", e.ErrNotFound)
	}
	return nil
}

// ToggleFeatured flips the featured flag in place.
func (r *Repository) ToggleFeatured(ctx context.Context, id uuid.UUID) (*models.Posting, error) {
	result := r.db.WithContext(ctx).Model(&dbmodels.Posting{}).
		Where("id = ?", id).
		UpdateColumn("featured", gorm.Expr("NOT featured"))
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: internship", e.ErrNotFound)
	}
	return r.GetPosting(ctx, id)
}

// CountPostings counts postings, optionally in one status.
func (r *Repository) CountPostings(ctx context.Context, status *models.PostingStatus) (int64, error) {
	query := r.db.WithContext(ctx).Model(&dbmodels.Posting{})
	if status != nil {
		query = query.Where("status = ?", string(*status))
	}
	var count int64
	return count, query.Count(&count).Error
}

// CategoryCounts groups the postings matching filter by category, largest
// first.
func (r *Repository) CategoryCounts(ctx context.Context, filter models.PostingFilter) ([]models.CategoryCount, error) {
	var rows []struct {
		Category string
		Count    int64
	}
	err := r.postingQuery(ctx, filter).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make([]models.CategoryCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, models.CategoryCount{Category: models.Category(row.Category), Count: row.Count})
	}
	return counts, nil
}

// CloseExpired closes active postings whose application deadline is before
// now and returns how many were closed.
func (r *Repository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&dbmodels.Posting{}).
		Where("status = ? AND application_deadline < ?", string(models.PostingActive), now).
		Updates(map[string]interface{}{"status": string(models.PostingClosed), "updated_at": now})
	return result.RowsAffected, result.Error
}
