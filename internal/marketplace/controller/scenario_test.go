package controller

import (
	"context"
	"testing"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/db"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/marketplace/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRepo(t *testing.T) *db.Repository {
	t.Helper()
	repo, err := db.NewRepository(&db.Config{Driver: db.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *db.Repository, role models.Role, email string) *models.Identity {
	t.Helper()
	user := &models.Identity{
		ID:     uuid.New(),
		Name:   "User " + email,
		Email:  email,
		Role:   role,
		Active: true,
	}
	switch role {
	case models.RoleOrganization:
		user.Company = &models.CompanyProfile{CompanyName: "Acme " + email, Industry: "Software"}
	case models.RoleApplicant:
		user.Student = &models.StudentProfile{Resume: "/uploads/resume-" + email + ".pdf"}
	case models.RoleAdministrator:
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func seedPosting(t *testing.T, svc *PostingService, org *models.Identity, title string, deadline time.Time) *models.Posting {
	t.Helper()
	posting, err := svc.Create(context.Background(), org.Actor(), &models.Posting{
		Title:               title,
		Description:         "Work on " + title,
		Category:            models.CategorySoftwareDevelopment,
		Location:            "Berlin",
		WorkMode:            models.WorkRemote,
		Stipend:             models.Stipend{Min: 500, Max: 900, Currency: "EUR", Paid: true},
		Requirements:        models.Requirements{Skills: []string{"Go"}},
		Openings:            1,
		ApplicationDeadline: deadline,
		StartDate:           deadline.Add(14 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return posting
}

func TestApplicationLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	logger := zaptest.NewLogger(t)
	templates, err := notify.DefaultTemplates()
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	recorder := &MockRecorder{}
	producer := &MockProducer{}
	notifier := NewNotifier(templates, dispatcher, recorder, logger)
	postings := NewPostingService(repo, logger)
	apps := NewApplicationService(repo, producer, notifier, recorder, logger)

	org := seedUser(t, repo, models.RoleOrganization, "hr@acme.test")
	rival := seedUser(t, repo, models.RoleOrganization, "hr@rival.test")
	ada := seedUser(t, repo, models.RoleApplicant, "ada@example.test")
	bob := seedUser(t, repo, models.RoleApplicant, "bob@example.test")

	posting := seedPosting(t, postings, org, "Go Intern", time.Now().Add(24*time.Hour))
	counter := func() int64 {
		p, err := repo.GetPosting(ctx, posting.ID)
		require.NoError(t, err)
		return p.ApplicationsCount
	}

	// Submit creates a pending application with one timeline entry.
	app, err := apps.Submit(ctx, ada.Actor(), SubmitRequest{PostingID: posting.ID, CoverLetter: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, app.Status)
	assert.Len(t, app.Timeline, 1)
	assert.Equal(t, int64(1), counter())
	require.Len(t, dispatcher.messages, 1)
	assert.Equal(t, "hr@acme.test", dispatcher.messages[0].To)

	// A second submission for the same pair conflicts and changes nothing.
	_, err = apps.Submit(ctx, ada.Actor(), SubmitRequest{PostingID: posting.ID})
	assert.ErrorIs(t, err, e.ErrConflict)
	assert.ErrorContains(t, err, "You have already applied to this internship")
	assert.Equal(t, int64(1), counter())

	// The owning organization shortlists; the applicant is notified.
	_, err = apps.UpdateStatus(ctx, org.Actor(), StatusUpdate{ID: app.ID, Status: models.StatusShortlisted})
	require.NoError(t, err)
	stored, err := apps.Get(ctx, ada.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShortlisted, stored.Status)
	require.Len(t, stored.Timeline, 2)
	assert.Equal(t, models.StatusShortlisted, stored.Timeline[1].Status)
	assert.False(t, stored.Timeline[1].Timestamp.Before(stored.Timeline[0].Timestamp))
	require.Len(t, dispatcher.messages, 2)
	assert.Equal(t, "ada@example.test", dispatcher.messages[1].To)
	assert.Equal(t, "Application Update: Go Intern", dispatcher.messages[1].Subject)

	// Another organization is refused and the status stays put.
	_, err = apps.UpdateStatus(ctx, rival.Actor(), StatusUpdate{ID: app.ID, Status: models.StatusRejected})
	assert.ErrorIs(t, err, e.ErrForbidden)
	stored, err = apps.Get(ctx, org.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShortlisted, stored.Status)
	_, err = apps.Get(ctx, rival.Actor(), app.ID)
	assert.ErrorIs(t, err, e.ErrForbidden)

	// Accepted is terminal: withdrawing fails and leaves it accepted.
	_, err = apps.UpdateStatus(ctx, org.Actor(), StatusUpdate{
		ID:       app.ID,
		Status:   models.StatusAccepted,
		Feedback: &models.Feedback{Rating: 5, Comments: "Great fit"},
	})
	require.NoError(t, err)
	_, err = apps.Withdraw(ctx, ada.Actor(), app.ID)
	assert.ErrorIs(t, err, e.ErrInvalidState)
	assert.ErrorContains(t, err, "Cannot withdraw application at this stage")
	stored, err = apps.Get(ctx, ada.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	assert.Len(t, stored.Timeline, 3)
	require.NotNil(t, stored.Feedback)
	assert.Equal(t, "Great fit", stored.Feedback.Comments)

	// Withdrawals never decrement the counter.
	second, err := apps.Submit(ctx, bob.Actor(), SubmitRequest{PostingID: posting.ID, Resume: "/uploads/bob.pdf"})
	require.NoError(t, err)
	_, err = apps.Withdraw(ctx, bob.Actor(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counter())

	// Visibility is scoped by role.
	mine, pagination, err := apps.ListForApplicant(ctx, bob.Actor(), models.ApplicationFilter{}, models.NewPage(1, 0, ApplicantPageLimit))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, int64(1), pagination.Total)

	theirs, _, err := apps.ListForCompany(ctx, rival.Actor(), models.ApplicationFilter{}, models.NewPage(1, 0, CompanyPageLimit))
	require.NoError(t, err)
	assert.Empty(t, theirs)

	stats, err := apps.Stats(ctx, org.Actor())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)

	assert.Equal(t, 2, recorder.submitted)
	assert.Equal(t, []models.Status{models.StatusShortlisted, models.StatusAccepted, models.StatusWithdrawn}, recorder.changed)
}

func TestSubmitAfterDeadline(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	logger := zaptest.NewLogger(t)
	postings := NewPostingService(repo, logger)
	apps := NewApplicationService(repo, nil, nil, nil, logger)

	org := seedUser(t, repo, models.RoleOrganization, "hr@late.test")
	ada := seedUser(t, repo, models.RoleApplicant, "ada@late.test")
	deadline := time.Now().Add(time.Hour)
	posting := seedPosting(t, postings, org, "Late Intern", deadline)

	apps.now = func() time.Time { return deadline.Add(time.Second) }
	_, err := apps.Submit(ctx, ada.Actor(), SubmitRequest{PostingID: posting.ID})
	assert.ErrorIs(t, err, e.ErrInvalidState)
	assert.ErrorContains(t, err, "Application deadline has passed")

	mine, _, err := apps.ListForApplicant(ctx, ada.Actor(), models.ApplicationFilter{}, models.NewPage(1, 0, ApplicantPageLimit))
	require.NoError(t, err)
	assert.Empty(t, mine)

	stored, err := repo.GetPosting(ctx, posting.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ApplicationsCount)
}
