package db

import (
	"context"
	"testing"
	"time"

	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/lifecycle"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupTestDB initializes an in-memory SQLite database for testing. A single
// connection keeps every statement on the same in-memory database.
func SetupTestDB(t *testing.T) *Repository {
	db, err := gorm.Open(sqlite.Open(":memory:"), gormConfig())
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo, err := migrate(db)
	require.NoError(t, err, "failed to migrate test database")
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newUser(t *testing.T, repo *Repository, role models.Role, email string) *models.Identity {
	user := &models.Identity{
		ID:     uuid.New(),
		Name:   "User " + email,
		Email:  email,
		Role:   role,
		Active: true,
	}
	if role == models.RoleOrganization {
		user.Company = &models.CompanyProfile{CompanyName: "Acme " + email, Industry: "Software"}
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func newPosting(t *testing.T, repo *Repository, company uuid.UUID, title string, skills ...string) *models.Posting {
	now := time.Now().UTC()
	posting := &models.Posting{
		ID:                  uuid.New(),
		CompanyID:           company,
		Title:               title,
		Description:         "Work on " + title,
		Type:                models.TypeInternship,
		Category:            models.CategorySoftwareDevelopment,
		Location:            "Berlin",
		WorkMode:            models.WorkRemote,
		Stipend:             models.Stipend{Min: 500, Max: 1000, Currency: "EUR", Paid: true},
		Requirements:        models.Requirements{Skills: skills},
		Openings:            1,
		ApplicationDeadline: now.Add(7 * 24 * time.Hour),
		StartDate:           now.Add(14 * 24 * time.Hour),
		Status:              models.PostingActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, repo.CreatePosting(context.Background(), posting))
	return posting
}

func newApplication(t *testing.T, repo *Repository, posting *models.Posting, applicant uuid.UUID) *models.Application {
	app := &models.Application{
		ID:          uuid.New(),
		PostingID:   posting.ID,
		ApplicantID: applicant,
		CompanyID:   posting.CompanyID,
		Resume:      "resume.pdf",
	}
	lifecycle.Submit(app, time.Now().UTC())
	require.NoError(t, repo.CreateApplication(context.Background(), app))
	return app
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()

	newUser(t, repo, models.RoleApplicant, "ada@example.com")

	dup := &models.Identity{ID: uuid.New(), Name: "Ada", Email: "ADA@example.com", Role: models.RoleApplicant}
	err := repo.CreateUser(ctx, dup)
	assert.ErrorIs(t, err, e.ErrConflict, "emails are unique regardless of case")

	found, err := repo.GetUserByEmail(ctx, " Ada@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", found.Email)
}

func TestGetUserNotFound(t *testing.T) {
	repo := SetupTestDB(t)

	_, err := repo.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")

	err := repo.UpdateProfile(ctx, &models.ProfileUpdate{
		ID:      org.ID,
		Name:    utils.Ptr("Renamed"),
		Profile: &models.Profile{Location: "Paris"},
		Company: &models.CompanyProfile{CompanyName: "Globex", Industry: "Energy"},
	})
	require.NoError(t, err)

	updated, err := repo.GetUser(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "Paris", updated.Profile.Location)
	require.NotNil(t, updated.Company)
	assert.Equal(t, "Globex", updated.Company.CompanyName)

	companies, total, err := repo.ListCompanies(ctx, models.CompanyFilter{Industry: "Energy"}, models.NewPage(1, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, org.ID, companies[0].ID)

	err = repo.UpdateProfile(ctx, &models.ProfileUpdate{ID: uuid.New(), Name: utils.Ptr("x")})
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestToggleActiveAndVerify(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")

	toggled, err := repo.ToggleActive(ctx, org.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	toggled, err = repo.ToggleActive(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Active)

	verified, err := repo.VerifyUser(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, verified.Verified)

	stored, err := repo.GetUser(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	require.NotNil(t, stored.Company)
	assert.True(t, stored.Company.Verified)
}

func TestListUsersFilters(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	newUser(t, repo, models.RoleApplicant, "a1@example.com")
	newUser(t, repo, models.RoleApplicant, "a2@example.com")
	newUser(t, repo, models.RoleOrganization, "o1@example.com")

	tests := []struct {
		name   string
		filter models.UserFilter
		want   int64
	}{
		{name: "all", filter: models.UserFilter{}, want: 3},
		{name: "applicants", filter: models.UserFilter{Role: utils.Ptr(models.RoleApplicant)}, want: 2},
		{name: "search", filter: models.UserFilter{Search: "O1@"}, want: 1},
		{name: "unverified", filter: models.UserFilter{Verified: utils.Ptr(false)}, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, total, err := repo.ListUsers(ctx, tt.filter, models.NewPage(1, 10, 10))
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
			assert.Len(t, users, int(tt.want))
		})
	}
}

func TestPostingCRUD(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")
	posting := newPosting(t, repo, org.ID, "Backend Intern", "Go", "SQL")

	got, err := repo.GetPosting(ctx, posting.ID)
	require.NoError(t, err)
	assert.Equal(t, "Backend Intern", got.Title)
	assert.Equal(t, []string{"Go", "SQL"}, got.Requirements.Skills)
	require.NotNil(t, got.Company)
	assert.Equal(t, org.ID, got.Company.ID)

	err = repo.UpdatePosting(ctx, &models.PostingUpdate{
		ID:     posting.ID,
		Title:  utils.Ptr("Platform Intern"),
		Status: utils.Ptr(models.PostingClosed),
	})
	require.NoError(t, err)

	got, err = repo.GetPosting(ctx, posting.ID)
	require.NoError(t, err)
	assert.Equal(t, "Platform Intern", got.Title)
	assert.Equal(t, models.PostingClosed, got.Status)

	err = repo.UpdatePosting(ctx, &models.PostingUpdate{ID: uuid.New(), Title: utils.Ptr("x")})
	assert.ErrorIs(t, err, e.ErrNotFound)

	require.NoError(t, repo.DeletePosting(ctx, posting.ID))
	_, err = repo.GetPosting(ctx, posting.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
	assert.ErrorIs(t, repo.DeletePosting(ctx, posting.ID), e.ErrNotFound)
}

func TestListPostingsFilters(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")
	newPosting(t, repo, org.ID, "Go Developer", "Go", "Docker")
	newPosting(t, repo, org.ID, "React Developer", "React")
	draft := newPosting(t, repo, org.ID, "Data Analyst", "SQL")
	require.NoError(t, repo.UpdatePosting(ctx, &models.PostingUpdate{ID: draft.ID, Status: utils.Ptr(models.PostingDraft)}))

	tests := []struct {
		name   string
		filter models.PostingFilter
		want   int64
	}{
		{name: "active", filter: models.PostingFilter{Status: utils.Ptr(models.PostingActive)}, want: 2},
		{name: "search is case-insensitive", filter: models.PostingFilter{Search: "developer"}, want: 2},
		{name: "skill match", filter: models.PostingFilter{Skills: []string{"go"}}, want: 1},
		{name: "any skill", filter: models.PostingFilter{Skills: []string{"react", "sql"}}, want: 2},
		{name: "skill is not a substring match", filter: models.PostingFilter{Skills: []string{"o"}}, want: 0},
		{name: "stipend", filter: models.PostingFilter{MinStipend: utils.Ptr(600)}, want: 0},
		{name: "company", filter: models.PostingFilter{CompanyID: &org.ID}, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := repo.ListPostings(ctx, tt.filter, models.NewPage(1, 10, 10))
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
		})
	}

	postings, total, err := repo.ListPostings(ctx, models.PostingFilter{}, models.NewPage(2, 2, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, postings, 1, "second page holds the remainder")
}

func TestIncrementViewsAndFeatured(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")
	posting := newPosting(t, repo, org.ID, "Intern")

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.IncrementViews(ctx, posting.ID))
	}
	assert.ErrorIs(t, repo.IncrementViews(ctx, uuid.New()), e.ErrNotFound)

	featured, err := repo.ToggleFeatured(ctx, posting.ID)
	require.NoError(t, err)
	assert.True(t, featured.Featured)
	assert.Equal(t, int64(3), featured.Views)
}

func TestCategoryCountsAndCloseExpired(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")
	newPosting(t, repo, org.ID, "One")
	expired := newPosting(t, repo, org.ID, "Two")
	design := newPosting(t, repo, org.ID, "Three")
	require.NoError(t, repo.UpdatePosting(ctx, &models.PostingUpdate{ID: design.ID, Category: utils.Ptr(models.CategoryDesign)}))
	require.NoError(t, repo.UpdatePosting(ctx, &models.PostingUpdate{
		ID:                  expired.ID,
		ApplicationDeadline: utils.Ptr(time.Now().UTC().Add(-time.Hour)),
	}))

	counts, err := repo.CategoryCounts(ctx, models.PostingFilter{})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.CategorySoftwareDevelopment, counts[0].Category)
	assert.Equal(t, int64(2), counts[0].Count)

	closed, err := repo.CloseExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	got, err := repo.GetPosting(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostingClosed, got.Status)

	active, err := repo.CountPostings(ctx, utils.Ptr(models.PostingActive))
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)
}

func TestCreateApplication(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")
	student := newUser(t, repo, models.RoleApplicant, "student@example.com")
	posting := newPosting(t, repo, org.ID, "Intern")

	app := newApplication(t, repo, posting, student.ID)

	got, err := repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	require.Len(t, got.Timeline, 1)
	assert.Equal(t, lifecycle.SubmittedNote, got.Timeline[0].Note)
	require.NotNil(t, got.Posting)
	assert.Equal(t, posting.ID, got.Posting.ID)
	require.NotNil(t, got.Applicant)
	assert.Equal(t, student.ID, got.Applicant.ID)

	stored, err := repo.GetPosting(ctx, posting.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ApplicationsCount)

	dup := &models.Application{ID: uuid.New(), PostingID: posting.ID, ApplicantID: student.ID, CompanyID: org.ID, Resume: "r.pdf"}
	lifecycle.Submit(dup, time.Now().UTC())
	err = repo.CreateApplication(ctx, dup)
	assert.ErrorIs(t, err, e.ErrConflict)

	stored, err = repo.GetPosting(ctx, posting.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ApplicationsCount, "a rejected duplicate leaves the counter alone")

	orphan := &models.Application{ID: uuid.New(), PostingID: uuid.New(), ApplicantID: student.ID, Resume: "r.pdf"}
	lifecycle.Submit(orphan, time.Now().UTC())
	assert.ErrorIs(t, repo.CreateApplication(ctx, orphan), e.ErrNotFound)
}

func TestSaveTransition(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")
	student := newUser(t, repo, models.RoleApplicant, "student@example.com")
	app := newApplication(t, repo, newPosting(t, repo, org.ID, "Intern"), student.ID)

	now := time.Now().UTC()
	changed, err := lifecycle.Transition(app, models.StatusShortlisted, models.RoleOrganization, "", now)
	require.NoError(t, err)
	require.True(t, changed)

	entry := app.Timeline[len(app.Timeline)-1]
	err = repo.SaveTransition(ctx, &models.ApplicationChange{
		ID:        app.ID,
		From:      models.StatusPending,
		To:        models.StatusShortlisted,
		Entry:     &entry,
		Feedback:  &models.Feedback{Rating: 4},
		UpdatedAt: now,
	})
	require.NoError(t, err)

	got, err := repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShortlisted, got.Status)
	require.Len(t, got.Timeline, 2)
	assert.Equal(t, models.StatusShortlisted, got.Timeline[1].Status)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, 4, got.Feedback.Rating)

	t.Run("stale from status", func(t *testing.T) {
		err := repo.SaveTransition(ctx, &models.ApplicationChange{
			ID: app.ID, From: models.StatusPending, To: models.StatusRejected,
			Entry: &models.TimelineEntry{Status: models.StatusRejected, Timestamp: now}, UpdatedAt: now,
		})
		assert.ErrorIs(t, err, e.ErrInvalidState)
	})

	t.Run("status change without entry", func(t *testing.T) {
		err := repo.SaveTransition(ctx, &models.ApplicationChange{
			ID: app.ID, From: models.StatusShortlisted, To: models.StatusRejected, UpdatedAt: now,
		})
		assert.ErrorIs(t, err, e.ErrInvalidInput)
	})

	t.Run("missing application", func(t *testing.T) {
		err := repo.SaveTransition(ctx, &models.ApplicationChange{
			ID: uuid.New(), From: models.StatusPending, To: models.StatusPending, UpdatedAt: now,
		})
		assert.ErrorIs(t, err, e.ErrNotFound)
	})

	got, err = repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, got.Timeline, 2, "failed saves leave the timeline untouched")
}

func TestListApplicationsScope(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	acme := newUser(t, repo, models.RoleOrganization, "acme@example.com")
	globex := newUser(t, repo, models.RoleOrganization, "globex@example.com")
	alice := newUser(t, repo, models.RoleApplicant, "alice@example.com")
	bob := newUser(t, repo, models.RoleApplicant, "bob@example.com")
	acmePosting := newPosting(t, repo, acme.ID, "Acme Intern")
	globexPosting := newPosting(t, repo, globex.ID, "Globex Intern")

	newApplication(t, repo, acmePosting, alice.ID)
	newApplication(t, repo, acmePosting, bob.ID)
	newApplication(t, repo, globexPosting, alice.ID)

	tests := []struct {
		name  string
		scope models.Scope
		want  int64
	}{
		{name: "applicant", scope: models.ApplicantScope(alice.ID), want: 2},
		{name: "company", scope: models.CompanyScope(acme.ID), want: 2},
		{name: "other company", scope: models.CompanyScope(globex.ID), want: 1},
		{name: "admin", scope: models.AdminScope(), want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apps, total, err := repo.ListApplications(ctx, tt.scope, models.ApplicationFilter{}, models.NewPage(1, 10, 10))
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
			for _, app := range apps {
				if tt.scope.ApplicantID != nil {
					assert.Equal(t, *tt.scope.ApplicantID, app.ApplicantID)
				}
				if tt.scope.CompanyID != nil {
					assert.Equal(t, *tt.scope.CompanyID, app.CompanyID)
				}
			}
		})
	}

	_, _, err := repo.ListApplications(ctx, models.Scope{}, models.ApplicationFilter{}, models.NewPage(1, 10, 10))
	assert.ErrorIs(t, err, e.ErrForbidden, "unscoped reads are refused")

	counts, err := repo.CountByStatus(ctx, models.CompanyScope(acme.ID))
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, models.StatusCount{Status: models.StatusPending, Count: 2}, counts[0])
}

func TestDeleteUserCascades(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	org := newUser(t, repo, models.RoleOrganization, "org@example.com")
	student := newUser(t, repo, models.RoleApplicant, "student@example.com")
	posting := newPosting(t, repo, org.ID, "Intern")
	app := newApplication(t, repo, posting, student.ID)

	deleted, err := repo.DeleteUser(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrganization, deleted.Role)

	_, err = repo.GetPosting(ctx, posting.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
	_, err = repo.GetApplication(ctx, app.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)

	total, err := repo.CountApplications(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = repo.DeleteUser(ctx, org.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
}

// TestWithTransaction ensures a failing transaction is rolled back.
func TestWithTransaction(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	id := uuid.New()

	err := repo.WithTransaction(ctx, func(txRepo *Repository) error {
		user := &models.Identity{ID: id, Name: "Tx", Email: "tx@example.com", Role: models.RoleApplicant}
		if err := txRepo.CreateUser(ctx, user); err != nil {
			return err
		}
		return e.ErrInvalidInput
	})
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	_, err = repo.GetUser(ctx, id)
	assert.ErrorIs(t, err, e.ErrNotFound, "user should not exist after rollback")
}
