package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of an application.
type Status string

const (
	StatusPending            Status = "pending"
	StatusReviewing          Status = "reviewing"
	StatusShortlisted        Status = "shortlisted"
	StatusInterviewScheduled Status = "interview-scheduled"
	StatusAccepted           Status = "accepted"
	StatusRejected           Status = "rejected"
	StatusWithdrawn          Status = "withdrawn"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusReviewing,
	StatusShortlisted,
	StatusInterviewScheduled,
	StatusAccepted,
	StatusRejected,
	StatusWithdrawn,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewing, StatusShortlisted, StatusInterviewScheduled,
		StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	default:
		return false
	}
}

// OrganizationSettable reports whether an organization may move an
// application into s.
func (s Status) OrganizationSettable() bool {
	switch s {
	case StatusReviewing, StatusShortlisted, StatusInterviewScheduled, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// Priority is the reviewer's triage tag.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

const (
	MinScore = 0
	MaxScore = 100

	MinRating = 1
	MaxRating = 5
)

// ValidScore reports whether score is unset or within MinScore..MaxScore.
func ValidScore(score *int) bool {
	return score == nil || (*score >= MinScore && *score <= MaxScore)
}

// InterviewMode is how an interview is held.
type InterviewMode string

const (
	InterviewVideo    InterviewMode = "video"
	InterviewPhone    InterviewMode = "phone"
	InterviewInPerson InterviewMode = "in-person"
)

// Valid reports whether m is a known interview mode.
func (m InterviewMode) Valid() bool {
	switch m {
	case InterviewVideo, InterviewPhone, InterviewInPerson:
		return true
	default:
		return false
	}
}

// Application links one applicant to one posting.
type Application struct {
	ID          uuid.UUID       `json:"id"`
	PostingID   uuid.UUID       `json:"internship"`
	ApplicantID uuid.UUID       `json:"applicant"`
	CompanyID   uuid.UUID       `json:"company"`
	Status      Status          `json:"status"`
	CoverLetter string          `json:"coverLetter,omitempty"`
	Resume      string          `json:"resume"`
	Answers     []Answer        `json:"answers,omitempty"`
	Interview   *Interview      `json:"interview,omitempty"`
	Feedback    *Feedback       `json:"feedback,omitempty"`
	Timeline    []TimelineEntry `json:"timeline"`
	Priority    Priority        `json:"priority"`
	Score       *int            `json:"score,omitempty"`
	Posting     *Posting        `json:"internshipDetails,omitempty"`
	Applicant   *Identity       `json:"applicantDetails,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// LastEntry returns the most recent timeline entry, if any.
func (a *Application) LastEntry() (TimelineEntry, bool) {
	if len(a.Timeline) == 0 {
		return TimelineEntry{}, false
	}
	return a.Timeline[len(a.Timeline)-1], true
}

// Answer is the applicant's reply to one questionnaire item.
type Answer struct {
	Question string `json:"question"`
	Answer   any    `json:"answer"`
}

type Interview struct {
	ScheduledAt *time.Time    `json:"scheduledDate,omitempty"`
	Mode        InterviewMode `json:"mode,omitempty"`
	Link        string        `json:"link,omitempty"`
	Notes       string        `json:"notes,omitempty"`
}

type Feedback struct {
	Rating       int      `json:"rating,omitempty"`
	Comments     string   `json:"comments,omitempty"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
}

// Valid reports whether the rating, when given, is within MinRating..MaxRating.
func (f *Feedback) Valid() bool {
	return f.Rating == 0 || (f.Rating >= MinRating && f.Rating <= MaxRating)
}

// TimelineEntry records one status change.
type TimelineEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// ApplicationChange is the persisted delta of one review action. Entry is
// set exactly when the status moves from From to To.
type ApplicationChange struct {
	ID        uuid.UUID
	From      Status
	To        Status
	Entry     *TimelineEntry
	Feedback  *Feedback
	Interview *Interview
	UpdatedAt time.Time
}

// Scope is the mandatory visibility predicate of an application read.
// Exactly one of ApplicantID and CompanyID is set unless All is true.
type Scope struct {
	ApplicantID *uuid.UUID
	CompanyID   *uuid.UUID
	All         bool
}

// ApplicantScope restricts reads to one applicant's applications.
func ApplicantScope(id uuid.UUID) Scope { return Scope{ApplicantID: &id} }

// CompanyScope restricts reads to applications on one organization's postings.
func CompanyScope(id uuid.UUID) Scope { return Scope{CompanyID: &id} }

// AdminScope lifts the restriction.
func AdminScope() Scope { return Scope{All: true} }

// ApplicationFilter narrows application listings within a Scope.
type ApplicationFilter struct {
	Status    *Status
	PostingID *uuid.UUID
}

// StatusCount is the number of applications in one status.
type StatusCount struct {
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}

// ApplicationStats aggregates an organization's applications.
type ApplicationStats struct {
	Total    int64         `json:"total"`
	ByStatus []StatusCount `json:"byStatus"`
}

// DashboardStats is the administrator overview.
type DashboardStats struct {
	Overview         Overview        `json:"overview"`
	RecentUsers      []Identity      `json:"recentUsers"`
	ApplicationStats []StatusCount   `json:"applicationStats"`
	PostingStats     []CategoryCount `json:"internshipStats"`
}

type Overview struct {
	TotalUsers          int64 `json:"totalUsers"`
	TotalStudents       int64 `json:"totalStudents"`
	TotalCompanies      int64 `json:"totalCompanies"`
	TotalInternships    int64 `json:"totalInternships"`
	ActiveInternships   int64 `json:"activeInternships"`
	TotalApplications   int64 `json:"totalApplications"`
	PendingApplications int64 `json:"pendingApplications"`
}
