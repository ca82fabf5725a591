package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/events"
	"github.com/gartstein/internhub/internal/marketplace/lifecycle"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/marketplace/notify"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// ApplicantPageLimit is the default page size of an applicant's listing.
	ApplicantPageLimit = 10
	// CompanyPageLimit is the default page size of an organization's listing.
	CompanyPageLimit = 20
)

// ApplicationRepository is the storage surface the application service needs.
type ApplicationRepository interface {
	GetPosting(ctx context.Context, id uuid.UUID) (*models.Posting, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	SaveTransition(ctx context.Context, change *models.ApplicationChange) error
	ListApplications(ctx context.Context, scope models.Scope, filter models.ApplicationFilter, page models.Page) ([]models.Application, int64, error)
	CountByStatus(ctx context.Context, scope models.Scope) ([]models.StatusCount, error)
}

// SubmitRequest is an applicant's application to one posting.
type SubmitRequest struct {
	PostingID   uuid.UUID
	CoverLetter string
	Resume      string
	Answers     []models.Answer
}

// StatusUpdate is an organization's review action on one application.
type StatusUpdate struct {
	ID        uuid.UUID
	Status    models.Status
	Note      string
	Feedback  *models.Feedback
	Interview *models.Interview
}

// ApplicationService runs the application lifecycle. Every status change
// goes through lifecycle.Transition and is persisted before any metric,
// event or notification is emitted.
type ApplicationService struct {
	repo     ApplicationRepository
	producer EventProducer
	notifier *Notifier
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewApplicationService(repo ApplicationRepository, producer EventProducer, notifier *Notifier, recorder Recorder, logger *zap.Logger) *ApplicationService {
	if producer == nil {
		producer = nopProducer{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ApplicationService{
		repo:     repo,
		producer: producer,
		notifier: notifier,
		recorder: recorder,
		logger:   logger.Named("application_service"),
		now:      time.Now,
	}
}

// Submit creates a pending application and bumps the posting's counter.
func (s *ApplicationService) Submit(ctx context.Context, actor models.Actor, req SubmitRequest) (*models.Application, error) {
	if err := auth.CheckRole(actor, models.RoleApplicant); err != nil {
		return nil, err
	}

	posting, err := s.repo.GetPosting(ctx, req.PostingID)
	if err != nil {
		return nil, notFoundAs(err, "Internship not found", "get internship")
	}

	now := s.now()
	if posting.Status != models.PostingActive {
		return nil, fmt.Errorf("%w: This internship is no longer accepting applications", e.ErrInvalidState)
	}
	if now.After(posting.ApplicationDeadline) {
		return nil, fmt.Errorf("%w: Application deadline has passed", e.ErrInvalidState)
	}

	applicant, err := s.repo.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, notFoundAs(err, "User not found", "get applicant")
	}

	resume := strings.TrimSpace(req.Resume)
	if resume == "" && applicant.Student != nil {
		resume = applicant.Student.Resume
	}
	if resume == "" {
		return nil, fmt.Errorf("%w: Resume is required", e.ErrInvalidInput)
	}
	if err := checkAnswers(posting.Questionnaire, req.Answers); err != nil {
		return nil, err
	}

	app := &models.Application{
		ID:          uuid.New(),
		PostingID:   posting.ID,
		ApplicantID: applicant.ID,
		CompanyID:   posting.CompanyID,
		CoverLetter: req.CoverLetter,
		Resume:      resume,
		Answers:     req.Answers,
	}
	lifecycle.Submit(app, now)

	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, passThrough(err, "create application")
	}

	s.recorder.ApplicationSubmitted()
	s.producer.Produce(events.ApplicationSubmitted, app)
	if posting.Company != nil {
		s.notifier.Notify(ctx, notify.KindApplicationReceived, posting.Company.Email, notify.ApplicationReceivedData{
			CompanyName:    posting.Company.DisplayName(),
			PostingTitle:   posting.Title,
			ApplicantName:  applicant.Name,
			ApplicantEmail: applicant.Email,
		})
	}

	s.logger.Info("Application submitted",
		zap.String("application_id", app.ID.String()),
		zap.String("internship_id", posting.ID.String()),
	)
	return app, nil
}

// checkAnswers requires a non-empty answer for every required question.
func checkAnswers(questions []models.Question, answers []models.Answer) error {
	answered := lo.SliceToMap(lo.Filter(answers, func(a models.Answer, _ int) bool {
		return a.Answer != nil && fmt.Sprint(a.Answer) != ""
	}), func(a models.Answer) (string, bool) {
		return a.Question, true
	})

	for _, q := range questions {
		if q.Required && !answered[q.Question] {
			return fmt.Errorf("%w: Answer required: %s", e.ErrInvalidInput, q.Question)
		}
	}
	return nil
}

// UpdateStatus applies an organization's review action. Setting the current
// status again only stores the feedback and interview details.
func (s *ApplicationService) UpdateStatus(ctx context.Context, actor models.Actor, update StatusUpdate) (*models.Application, error) {
	if err := auth.CheckRole(actor, models.RoleOrganization); err != nil {
		return nil, err
	}
	if err := validateReview(update); err != nil {
		return nil, err
	}

	app, err := s.repo.GetApplication(ctx, update.ID)
	if err != nil {
		return nil, notFoundAs(err, "Application not found", "get application")
	}
	if app.CompanyID != actor.ID {
		return nil, fmt.Errorf("%w: Not authorized", e.ErrForbidden)
	}

	from := app.Status
	moved, err := lifecycle.Transition(app, update.Status, actor.Role, update.Note, s.now())
	if err != nil {
		return nil, err
	}
	if !moved && update.Feedback == nil && update.Interview == nil {
		return app, nil
	}

	change := &models.ApplicationChange{
		ID:        app.ID,
		From:      from,
		To:        app.Status,
		Feedback:  update.Feedback,
		Interview: update.Interview,
		UpdatedAt: s.now(),
	}
	if moved {
		entry, _ := app.LastEntry()
		change.Entry = &entry
		change.UpdatedAt = entry.Timestamp
	}
	if err := s.repo.SaveTransition(ctx, change); err != nil {
		return nil, passThrough(err, "update application status")
	}

	if update.Feedback != nil {
		app.Feedback = update.Feedback
	}
	if update.Interview != nil {
		app.Interview = update.Interview
	}
	app.UpdatedAt = change.UpdatedAt
	if !moved {
		return app, nil
	}

	s.recorder.StatusChanged(app.Status)
	s.producer.Produce(events.ApplicationStatusChanged, app)
	s.notifyStatus(ctx, app)
	return app, nil
}

func validateReview(update StatusUpdate) error {
	if update.Feedback != nil && !update.Feedback.Valid() {
		return fmt.Errorf("%w: Rating must be between %d and %d", e.ErrInvalidInput, models.MinRating, models.MaxRating)
	}
	if update.Interview != nil && update.Interview.Mode != "" && !update.Interview.Mode.Valid() {
		return fmt.Errorf("%w: Invalid interview mode %q", e.ErrInvalidInput, update.Interview.Mode)
	}
	return nil
}

func (s *ApplicationService) notifyStatus(ctx context.Context, app *models.Application) {
	if app.Applicant == nil {
		s.logger.Warn("Status notification skipped, applicant not loaded",
			zap.String("application_id", app.ID.String()))
		return
	}

	data := notify.StatusUpdateData{
		ApplicantName: app.Applicant.Name,
		Status:        app.Status,
		Message:       lifecycle.StatusMessage(app.Status),
	}
	if app.Posting != nil {
		data.PostingTitle = app.Posting.Title
	}
	if app.Interview != nil {
		data.InterviewAt = app.Interview.ScheduledAt
		data.InterviewLink = app.Interview.Link
	}
	s.notifier.Notify(ctx, notify.KindStatusUpdate, app.Applicant.Email, data)
}

// Withdraw lets an applicant retract a non-terminal application.
func (s *ApplicationService) Withdraw(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Application, error) {
	if err := auth.CheckRole(actor, models.RoleApplicant); err != nil {
		return nil, err
	}

	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Application not found", "get application")
	}
	if app.ApplicantID != actor.ID {
		return nil, fmt.Errorf("%w: Not authorized", e.ErrForbidden)
	}
	if app.Status.Terminal() {
		return nil, fmt.Errorf("%w: Cannot withdraw application at this stage", e.ErrInvalidState)
	}

	from := app.Status
	if _, err := lifecycle.Transition(app, models.StatusWithdrawn, actor.Role, "", s.now()); err != nil {
		return nil, err
	}
	entry, _ := app.LastEntry()
	err = s.repo.SaveTransition(ctx, &models.ApplicationChange{
		ID:        app.ID,
		From:      from,
		To:        app.Status,
		Entry:     &entry,
		UpdatedAt: entry.Timestamp,
	})
	if err != nil {
		return nil, passThrough(err, "withdraw application")
	}

	s.recorder.StatusChanged(app.Status)
	s.producer.Produce(events.ApplicationWithdrawn, app)
	return app, nil
}

// Get returns one application to its applicant, the owning organization or
// an administrator.
func (s *ApplicationService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Application not found", "get application")
	}

	switch actor.Role {
	case models.RoleAdministrator:
		return app, nil
	case models.RoleApplicant:
		if app.ApplicantID == actor.ID {
			return app, nil
		}
	case models.RoleOrganization:
		if app.CompanyID == actor.ID {
			return app, nil
		}
	}
	return nil, fmt.Errorf("%w: Not authorized", e.ErrForbidden)
}

// ListForApplicant lists the actor's own applications.
func (s *ApplicationService) ListForApplicant(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) ([]models.Application, models.Pagination, error) {
	if err := auth.CheckRole(actor, models.RoleApplicant); err != nil {
		return nil, models.Pagination{}, err
	}
	return s.list(ctx, models.ApplicantScope(actor.ID), filter, page)
}

// ListForCompany lists the applications on the actor's postings.
func (s *ApplicationService) ListForCompany(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) ([]models.Application, models.Pagination, error) {
	if err := auth.CheckRole(actor, models.RoleOrganization); err != nil {
		return nil, models.Pagination{}, err
	}
	return s.list(ctx, models.CompanyScope(actor.ID), filter, page)
}

// ListAll lists every application; administrators only.
func (s *ApplicationService) ListAll(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) ([]models.Application, models.Pagination, error) {
	if err := auth.CheckRole(actor, models.RoleAdministrator); err != nil {
		return nil, models.Pagination{}, err
	}
	return s.list(ctx, models.AdminScope(), filter, page)
}

func (s *ApplicationService) list(ctx context.Context, scope models.Scope, filter models.ApplicationFilter, page models.Page) ([]models.Application, models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, models.Pagination{}, fmt.Errorf("%w: unknown status %q", e.ErrInvalidInput, *filter.Status)
	}
	apps, total, err := s.repo.ListApplications(ctx, scope, filter, page)
	if err != nil {
		return nil, models.Pagination{}, passThrough(err, "list applications")
	}
	return apps, models.Paginate(total, page), nil
}

// Stats counts the organization's applications by status.
func (s *ApplicationService) Stats(ctx context.Context, actor models.Actor) (*models.ApplicationStats, error) {
	if err := auth.CheckRole(actor, models.RoleOrganization); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, models.CompanyScope(actor.ID))
	if err != nil {
		return nil, passThrough(err, "count applications")
	}
	total := lo.SumBy(counts, func(c models.StatusCount) int64 { return c.Count })
	return &models.ApplicationStats{Total: total, ByStatus: counts}, nil
}
