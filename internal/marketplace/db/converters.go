package db

import (
	"strings"

	dbmodels "github.com/gartstein/internhub/internal/marketplace/db/models"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/samber/lo"
	"gorm.io/datatypes"
)

func userToRow(u *models.Identity) *dbmodels.User {
	row := &dbmodels.User{
		ID:           u.ID,
		Name:         u.Name,
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Active:       u.Active,
		Verified:     u.Verified,
		Profile:      datatypes.NewJSONType(u.Profile),
		Student:      datatypes.NewJSONType(u.Student),
		Company:      datatypes.NewJSONType(u.Company),
		LastLogin:    u.LastLogin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Company != nil {
		row.CompanyName = u.Company.CompanyName
		row.Industry = u.Company.Industry
	}
	return row
}

func userFromRow(row *dbmodels.User) *models.Identity {
	if row == nil {
		return nil
	}
	return &models.Identity{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         models.Role(row.Role),
		Active:       row.Active,
		Verified:     row.Verified,
		Profile:      row.Profile.Data(),
		Student:      row.Student.Data(),
		Company:      row.Company.Data(),
		LastLogin:    row.LastLogin,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func usersFromRows(rows []dbmodels.User) []models.Identity {
	return lo.Map(rows, func(row dbmodels.User, _ int) models.Identity {
		return *userFromRow(&row)
	})
}

func postingToRow(p *models.Posting) *dbmodels.Posting {
	return &dbmodels.Posting{
		ID:                  p.ID,
		CompanyID:           p.CompanyID,
		Title:               p.Title,
		Description:         p.Description,
		Type:                string(p.Type),
		Category:            string(p.Category),
		Status:              string(p.Status),
		Location:            p.Location,
		WorkMode:            string(p.WorkMode),
		DurationValue:       p.Duration.Value,
		DurationUnit:        p.Duration.Unit,
		StipendMin:          p.Stipend.Min,
		StipendMax:          p.Stipend.Max,
		StipendCurrency:     p.Stipend.Currency,
		StipendNegotiable:   p.Stipend.Negotiable,
		StipendPaid:         p.Stipend.Paid,
		Requirements:        datatypes.NewJSONType(p.Requirements),
		SkillsIndex:         skillsIndex(p.Requirements.Skills),
		Responsibilities:    datatypes.JSONSlice[string](p.Responsibilities),
		Perks:               datatypes.JSONSlice[string](p.Perks),
		Questionnaire:       datatypes.JSONSlice[models.Question](p.Questionnaire),
		Openings:            p.Openings,
		ApplicationDeadline: p.ApplicationDeadline,
		StartDate:           p.StartDate,
		Views:               p.Views,
		ApplicationsCount:   p.ApplicationsCount,
		Featured:            p.Featured,
		Urgent:              p.Urgent,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func postingFromRow(row *dbmodels.Posting) *models.Posting {
	if row == nil {
		return nil
	}
	p := &models.Posting{
		ID:          row.ID,
		CompanyID:   row.CompanyID,
		Title:       row.Title,
		Description: row.Description,
		Type:        models.PostingType(row.Type),
		Category:    models.Category(row.Category),
		Status:      models.PostingStatus(row.Status),
		Location:    row.Location,
		WorkMode:    models.WorkMode(row.WorkMode),
		Duration:    models.Duration{Value: row.DurationValue, Unit: row.DurationUnit},
		Stipend: models.Stipend{
			Min:        row.StipendMin,
			Max:        row.StipendMax,
			Currency:   row.StipendCurrency,
			Negotiable: row.StipendNegotiable,
			Paid:       row.StipendPaid,
		},
		Requirements:        row.Requirements.Data(),
		Responsibilities:    []string(row.Responsibilities),
		Perks:               []string(row.Perks),
		Questionnaire:       []models.Question(row.Questionnaire),
		Openings:            row.Openings,
		ApplicationDeadline: row.ApplicationDeadline,
		StartDate:           row.StartDate,
		Views:               row.Views,
		ApplicationsCount:   row.ApplicationsCount,
		Featured:            row.Featured,
		Urgent:              row.Urgent,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
	if row.Company != nil {
		p.Company = userFromRow(row.Company)
	}
	return p
}

func postingsFromRows(rows []dbmodels.Posting) []models.Posting {
	return lo.Map(rows, func(row dbmodels.Posting, _ int) models.Posting {
		return *postingFromRow(&row)
	})
}

func applicationToRow(a *models.Application) *dbmodels.Application {
	return &dbmodels.Application{
		ID:          a.ID,
		PostingID:   a.PostingID,
		ApplicantID: a.ApplicantID,
		CompanyID:   a.CompanyID,
		Status:      string(a.Status),
		CoverLetter: a.CoverLetter,
		Resume:      a.Resume,
		Answers:     datatypes.JSONSlice[models.Answer](a.Answers),
		Interview:   datatypes.NewJSONType(a.Interview),
		Feedback:    datatypes.NewJSONType(a.Feedback),
		Priority:    string(a.Priority),
		Score:       a.Score,
		Timeline: lo.Map(a.Timeline, func(entry models.TimelineEntry, _ int) dbmodels.TimelineEntry {
			return timelineToRow(a, entry)
		}),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func timelineToRow(a *models.Application, entry models.TimelineEntry) dbmodels.TimelineEntry {
	return dbmodels.TimelineEntry{
		ApplicationID: a.ID,
		Status:        string(entry.Status),
		Note:          entry.Note,
		Timestamp:     entry.Timestamp,
	}
}

func applicationFromRow(row *dbmodels.Application) *models.Application {
	a := &models.Application{
		ID:          row.ID,
		PostingID:   row.PostingID,
		ApplicantID: row.ApplicantID,
		CompanyID:   row.CompanyID,
		Status:      models.Status(row.Status),
		CoverLetter: row.CoverLetter,
		Resume:      row.Resume,
		Answers:     []models.Answer(row.Answers),
		Interview:   row.Interview.Data(),
		Feedback:    row.Feedback.Data(),
		Priority:    models.Priority(row.Priority),
		Score:       row.Score,
		Timeline: lo.Map(row.Timeline, func(entry dbmodels.TimelineEntry, _ int) models.TimelineEntry {
			return models.TimelineEntry{
				Status:    models.Status(entry.Status),
				Timestamp: entry.Timestamp,
				Note:      entry.Note,
			}
		}),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.Posting != nil {
		a.Posting = postingFromRow(row.Posting)
	}
	if row.Applicant != nil {
		a.Applicant = userFromRow(row.Applicant)
	}
	return a
}

func applicationsFromRows(rows []dbmodels.Application) []models.Application {
	return lo.Map(rows, func(row dbmodels.Application, _ int) models.Application {
		return *applicationFromRow(&row)
	})
}

func skillsIndex(skills []string) string {
	normalized := lo.FilterMap(skills, func(s string, _ int) (string, bool) {
		s = strings.ToLower(strings.TrimSpace(s))
		return s, s != ""
	})
	if len(normalized) == 0 {
		return ""
	}
	return "," + strings.Join(lo.Uniq(normalized), ",") + ","
}
