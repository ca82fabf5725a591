// Package lifecycle owns every status change of an application. Callers never
// assign Application.Status directly: Submit initialises a new application
// and Transition moves an existing one, appending exactly one timeline entry
// per change.
package lifecycle

import (
	"fmt"
	"time"

	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
)

// SubmittedNote is the note of the first timeline entry.
const SubmittedNote = "Application submitted"

var statusMessages = map[models.Status]string{
	models.StatusPending:            "Your application has been received",
	models.StatusReviewing:          "Your application is now under review",
	models.StatusShortlisted:        "Congratulations! You have been shortlisted",
	models.StatusInterviewScheduled: "An interview has been scheduled",
	models.StatusAccepted:           "Congratulations! Your application has been accepted",
	models.StatusRejected:           "Unfortunately, your application was not selected this time",
	models.StatusWithdrawn:          "Your application has been withdrawn",
}

// Submit prepares a freshly created application: pending status and a
// single "submitted" timeline entry.
func Submit(app *models.Application, at time.Time) {
	app.Status = models.StatusPending
	app.Timeline = []models.TimelineEntry{{
		Status:    models.StatusPending,
		Timestamp: at,
		Note:      SubmittedNote,
	}}
	if app.Priority == "" {
		app.Priority = models.PriorityMedium
	}
	app.CreatedAt = at
	app.UpdatedAt = at
}

// Transition moves app to next on behalf of actor. It returns false without
// touching app when next equals the current status. An empty note is
// replaced by "Status changed to <next>".
func Transition(app *models.Application, next models.Status, actor models.Role, note string, at time.Time) (bool, error) {
	if !next.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", e.ErrInvalidInput, next)
	}
	if err := Allowed(app.Status, next, actor); err != nil {
		return false, err
	}
	if next == app.Status {
		return false, nil
	}

	if last, ok := app.LastEntry(); ok && at.Before(last.Timestamp) {
		at = last.Timestamp
	}
	if note == "" {
		note = DefaultNote(next)
	}

	app.Status = next
	app.Timeline = append(app.Timeline, models.TimelineEntry{
		Status:    next,
		Timestamp: at,
		Note:      note,
	})
	app.UpdatedAt = at
	return true, nil
}

// Allowed reports whether actor may move an application from current to
// next. Intermediate statuses may be set in any order; terminal statuses
// are final.
func Allowed(current, next models.Status, actor models.Role) error {
	switch actor {
	case models.RoleApplicant:
		if next != models.StatusWithdrawn {
			return fmt.Errorf("%w: applicants may only withdraw", e.ErrForbidden)
		}
	case models.RoleOrganization:
		if !next.OrganizationSettable() {
			return fmt.Errorf("%w: status %q cannot be set by an organization", e.ErrInvalidInput, next)
		}
	case models.RoleAdministrator:
		if next == models.StatusPending {
			return fmt.Errorf("%w: status %q cannot be set", e.ErrInvalidInput, next)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", e.ErrForbidden, actor)
	}

	if current.Terminal() {
		return fmt.Errorf("%w: application is already %s", e.ErrInvalidState, current)
	}
	return nil
}

// DefaultNote is the timeline note used when the caller supplies none.
func DefaultNote(s models.Status) string {
	return fmt.Sprintf("Status changed to %s", s)
}

// StatusMessage is the applicant-facing sentence for s.
func StatusMessage(s models.Status) string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return DefaultNote(s)
}
