package models

import (
	"time"

	"github.com/google/uuid"
)

// PostingType distinguishes internships from freelance and job listings.
type PostingType string

const (
	TypeInternship PostingType = "internship"
	TypeFreelance  PostingType = "freelance"
	TypeFullTime   PostingType = "full-time"
	TypePartTime   PostingType = "part-time"
)

// Valid reports whether t is a known posting type.
func (t PostingType) Valid() bool {
	switch t {
	case TypeInternship, TypeFreelance, TypeFullTime, TypePartTime:
		return true
	default:
		return false
	}
}

// Category is the closed enumeration of posting categories.
type Category string

const (
	CategorySoftwareDevelopment Category = "software-development"
	CategoryDataScience         Category = "data-science"
	CategoryDesign              Category = "design"
	CategoryMarketing           Category = "marketing"
	CategoryBusiness            Category = "business"
	CategoryContentWriting      Category = "content-writing"
	CategoryFinance             Category = "finance"
	CategoryHR                  Category = "hr"
	CategoryOther               Category = "other"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategorySoftwareDevelopment,
	CategoryDataScience,
	CategoryDesign,
	CategoryMarketing,
	CategoryBusiness,
	CategoryContentWriting,
	CategoryFinance,
	CategoryHR,
	CategoryOther,
}

// WorkMode is where the work happens.
type WorkMode string

const (
	WorkRemote WorkMode = "remote"
	WorkOnSite WorkMode = "on-site"
	WorkHybrid WorkMode = "hybrid"
)

func (m WorkMode) Valid() bool {
	switch m {
	case WorkRemote, WorkOnSite, WorkHybrid:
		return true
	default:
		return false
	}
}

// PostingStatus is the lifecycle status of a posting.
type PostingStatus string

const (
	PostingDraft     PostingStatus = "draft"
	PostingActive    PostingStatus = "active"
	PostingClosed    PostingStatus = "closed"
	PostingCancelled PostingStatus = "cancelled"
)

// Valid reports whether s is a known posting status.
func (s PostingStatus) Valid() bool {
	switch s {
	case PostingDraft, PostingActive, PostingClosed, PostingCancelled:
		return true
	default:
		return false
	}
}

// Posting is an internship, freelance or job listing owned by an
// organization identity.
type Posting struct {
	ID                  uuid.UUID     `json:"id"`
	CompanyID           uuid.UUID     `json:"company"`
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	Type                PostingType   `json:"type"`
	Category            Category      `json:"category"`
	Location            string        `json:"location"`
	WorkMode            WorkMode      `json:"workMode"`
	Duration            Duration      `json:"duration"`
	Stipend             Stipend       `json:"stipend"`
	Requirements        Requirements  `json:"requirements"`
	Responsibilities    []string      `json:"responsibilities,omitempty"`
	Perks               []string      `json:"perks,omitempty"`
	Openings            int           `json:"openings"`
	ApplicationDeadline time.Time     `json:"applicationDeadline"`
	StartDate           time.Time     `json:"startDate"`
	Status              PostingStatus `json:"status"`
	Views               int64         `json:"views"`
	ApplicationsCount   int64         `json:"applicationsCount"`
	Featured            bool          `json:"isFeatured"`
	Urgent              bool          `json:"isUrgent"`
	Questionnaire       []Question    `json:"questionnaire,omitempty"`
	Company             *Identity     `json:"companyProfile,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// AcceptsApplications reports whether a submission at now is allowed.
func (p *Posting) AcceptsApplications(now time.Time) bool {
	return p.Status == PostingActive && !now.After(p.ApplicationDeadline)
}

const (
	DurationWeeks  = "weeks"
	DurationMonths = "months"
)

type Duration struct {
	Value int    `json:"value,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// Valid reports whether the unit, when set, is weeks or months and the value
// is not negative.
func (d Duration) Valid() bool {
	if d.Value < 0 {
		return false
	}
	return d.Unit == "" || d.Unit == DurationWeeks || d.Unit == DurationMonths
}

// Stipend is the compensation range of a posting.
type Stipend struct {
	Min        int    `json:"min"`
	Max        int    `json:"max"`
	Currency   string `json:"currency"`
	Negotiable bool   `json:"isNegotiable"`
	Paid       bool   `json:"isPaid"`
}

type Requirements struct {
	Skills     []string `json:"skills,omitempty"`
	Education  string   `json:"education,omitempty"`
	Experience string   `json:"experience,omitempty"`
	MinGPA     float64  `json:"minGPA,omitempty"`
}

// Question is one entry of a posting's application questionnaire.
type Question struct {
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// PostingUpdate represents the fields an owner can change on a posting.
// Pointer types are used to allow partial updates; counters are never
// part of an update.
type PostingUpdate struct {
	ID                  uuid.UUID
	Title               *string
	Description         *string
	Type                *PostingType
	Category            *Category
	Location            *string
	WorkMode            *WorkMode
	Duration            *Duration
	Stipend             *Stipend
	Requirements        *Requirements
	Responsibilities    *[]string
	Perks               *[]string
	Openings            *int
	ApplicationDeadline *time.Time
	StartDate           *time.Time
	Status              *PostingStatus
	Urgent              *bool
	Questionnaire       *[]Question
}

// PostingSort is the ordering of a posting listing.
type PostingSort string

const (
	SortNewest      PostingSort = "-createdAt"
	SortOldest      PostingSort = "createdAt"
	SortDeadline    PostingSort = "applicationDeadline"
	SortStipendDesc PostingSort = "-stipend"
	SortMostViewed  PostingSort = "-views"
	SortMostApplied PostingSort = "-applicationsCount"
)

// PostingFilter narrows posting listings. Zero values mean "any".
type PostingFilter struct {
	CompanyID  *uuid.UUID
	Status     *PostingStatus
	Type       *PostingType
	Category   *Category
	WorkMode   *WorkMode
	Featured   *bool
	Search     string
	Location   string
	MinStipend *int
	MaxStipend *int
	Skills     []string
	Sort       PostingSort
}

// CategoryCount is the number of postings in one category.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int64    `json:"count"`
}
