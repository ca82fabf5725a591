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

func (r *Repository) CreateUser(ctx context.Context, user *models.Identity) error {
	result := r.db.WithContext(ctx).Create(userToRow(user))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: email already registered", e.ErrConflict)
		}
		return result.Error
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var row dbmodels.User
	result := r.db.WithContext(ctx).First(&row, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", e.ErrNotFound)
		}
		return nil, result.Error
	}
	return userFromRow(&row), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var row dbmodels.User
	result := r.db.WithContext(ctx).First(&row, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", e.ErrNotFound)
		}
		return nil, result.Error
	}
	return userFromRow(&row), nil
}

func (r *Repository) UpdateProfile(ctx context.Context, update *models.ProfileUpdate) error {
	columns := map[string]interface{}{}
	if update.Name != nil {
		columns["name"] = *update.Name
	}
	if update.Profile != nil {
		columns["profile"] = datatypes.NewJSONType(*update.Profile)
	}
	if update.Student != nil {
		columns["student"] = datatypes.NewJSONType(update.Student)
	}
	if update.Company != nil {
		columns["company"] = datatypes.NewJSONType(update.Company)
		columns["company_name"] = update.Company.CompanyName
		columns["industry"] = update.Company.Industry
	}
	if len(columns) == 0 {
		return nil
	}
	return r.updateUserColumns(ctx, update.ID, columns)
}

func (r *Repository) SetPassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateUserColumns(ctx, id, map[string]interface{}{"password_hash": hash})
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.updateUserColumns(ctx, id, map[string]interface{}{"active": active})
}

func (r *Repository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateUserColumns(ctx, id, map[string]interface{}{"last_login": at})
}

// ToggleActive flips the active flag in place and returns the new state.
func (r *Repository) ToggleActive(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	if err := r.updateUserColumns(ctx, id, map[string]interface{}{"active": gorm.Expr("NOT active")}); err != nil {
		return nil, err
	}
	return r.GetUser(ctx, id)
}

// VerifyUser marks the identity verified, including its company payload.
func (r *Repository) VerifyUser(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var verified *models.Identity
	err := r.WithTransaction(ctx, func(repo *Repository) error {
		user, err := repo.GetUser(ctx, id)
		if err != nil {
			return err
		}
		columns := map[string]interface{}{"verified": true}
		if user.Company != nil {
			user.Company.Verified = true
			columns["company"] = datatypes.NewJSONType(user.Company)
		}
		if err := repo.updateUserColumns(ctx, id, columns); err != nil {
			return err
		}
		user.Verified = true
		verified = user
		return nil
	})
	return verified, err
}

func (r *Repository) updateUserColumns(ctx context.Context, id uuid.UUID, columns map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&dbmodels.User{}).
		Where("id = ?", id).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user", e.ErrNotFound)
	}
	return nil
}

func (r *Repository) ListUsers(ctx context.Context, filter models.UserFilter, page models.Page) ([]models.Identity, int64, error) {
	query := r.db.WithContext(ctx).Model(&dbmodels.User{})
	if filter.Role != nil {
		query = query.Where("role = ?", string(*filter.Role))
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}
	if filter.Verified != nil {
		query = query.Where("verified = ?", *filter.Verified)
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		query = query.Where("LOWER(name) LIKE ? OR email LIKE ?", likePattern(s), likePattern(s))
	}
	return r.pageUsers(query, page)
}

// ListCompanies returns active organization identities.
func (r *Repository) ListCompanies(ctx context.Context, filter models.CompanyFilter, page models.Page) ([]models.Identity, int64, error) {
	query := r.db.WithContext(ctx).Model(&dbmodels.User{}).
		Where("role = ? AND active = ?", string(models.RoleOrganization), true)
	if filter.Industry != "" {
		query = query.Where("industry = ?", filter.Industry)
	}
	if filter.Verified != nil {
		query = query.Where("verified = ?", *filter.Verified)
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		query = query.Where("LOWER(company_name) LIKE ? OR LOWER(name) LIKE ?", likePattern(s), likePattern(s))
	}
	return r.pageUsers(query, page)
}

func (r *Repository) pageUsers(query *gorm.DB, page models.Page) ([]models.Identity, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []dbmodels.User
	err := query.Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return usersFromRows(rows), total, nil
}

// CountUsers counts identities, optionally of one role.
func (r *Repository) CountUsers(ctx context.Context, role *models.Role) (int64, error) {
	query := r.db.WithContext(ctx).Model(&dbmodels.User{})
	if role != nil {
		query = query.Where("role = ?", string(*role))
	}
	var count int64
	return count, query.Count(&count).Error
}

// DeleteUser removes the identity and everything it owns: an organization's
// postings and the applications on them, or an applicant's applications.
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var deleted *models.Identity
	err := r.WithTransaction(ctx, func(repo *Repository) error {
		user, err := repo.GetUser(ctx, id)
		if err != nil {
			return err
		}

		switch user.Role {
		case models.RoleOrganization:
			if err := repo.deleteApplicationsWhere(ctx, "company_id = ?", id); err != nil {
				return err
			}
			if err := repo.db.WithContext(ctx).Where("company_id = ?", id).Delete(&dbmodels.Posting{}).Error; err != nil {
				return err
			}
		case models.RoleApplicant:
			if err := repo.deleteApplicationsWhere(ctx, "applicant_id = ?", id); err != nil {
				return err
			}
		case models.RoleAdministrator:
		}

		if err := repo.db.WithContext(ctx).Delete(&dbmodels.User{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = user
		return nil
	})
	return deleted, err
}
