// Package models contains the persistence models of the marketplace,
// configured to work using GORM as the ORM. Nested payloads that are only
// ever read and written whole are stored as JSON columns.
package models

import (
	"time"

	domain "github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// User is an identity row. Email is stored lower-cased so the unique index
// is case-insensitive. CompanyName and Industry mirror the company payload
// for directory filtering.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"size:120;not null"`
	Email        string    `gorm:"size:254;not null;uniqueIndex"`
	PasswordHash string    `gorm:"size:100;not null"`
	Role         string    `gorm:"size:20;not null;index"`
	Active       bool      `gorm:"not null;index"`
	Verified     bool      `gorm:"not null"`
	CompanyName  string    `gorm:"size:200;index"`
	Industry     string    `gorm:"size:100;index"`
	Profile      datatypes.JSONType[domain.Profile]
	Student      datatypes.JSONType[*domain.StudentProfile]
	Company      datatypes.JSONType[*domain.CompanyProfile]
	LastLogin    *time.Time
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
}

// Posting is a listing row. SkillsIndex holds the lower-cased required
// skills as ",a,b," for portable membership filtering.
type Posting struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID           uuid.UUID `gorm:"type:uuid;not null;index"`
	Company             *User     `gorm:"foreignKey:CompanyID"`
	Title               string    `gorm:"size:200;not null"`
	Description         string    `gorm:"type:text"`
	Type                string    `gorm:"size:20;not null;index"`
	Category            string    `gorm:"size:40;not null;index:idx_postings_category_status"`
	Status              string    `gorm:"size:20;not null;index:idx_postings_category_status"`
	Location            string    `gorm:"size:200;index:idx_postings_location_mode"`
	WorkMode            string    `gorm:"size:20;index:idx_postings_location_mode"`
	DurationValue       int
	DurationUnit        string `gorm:"size:10"`
	StipendMin          int    `gorm:"index"`
	StipendMax          int
	StipendCurrency     string `gorm:"size:8"`
	StipendNegotiable   bool
	StipendPaid         bool
	Requirements        datatypes.JSONType[domain.Requirements]
	SkillsIndex         string `gorm:"size:1000"`
	Responsibilities    datatypes.JSONSlice[string]
	Perks               datatypes.JSONSlice[string]
	Questionnaire       datatypes.JSONSlice[domain.Question]
	Openings            int
	ApplicationDeadline time.Time `gorm:"index"`
	StartDate           time.Time
	Views               int64 `gorm:"not null"`
	ApplicationsCount   int64 `gorm:"not null"`
	Featured            bool  `gorm:"index"`
	Urgent              bool
	CreatedAt           time.Time `gorm:"index"`
	UpdatedAt           time.Time
}

// Application links an applicant to a posting. The composite unique index
// over (posting_id, applicant_id) allows one application per pair.
type Application struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PostingID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_applications_posting_applicant"`
	ApplicantID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_applications_posting_applicant;index:idx_applications_applicant_status"`
	CompanyID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_applications_company_status"`
	Status      string          `gorm:"size:32;not null;index:idx_applications_company_status;index:idx_applications_applicant_status"`
	Posting     *Posting        `gorm:"foreignKey:PostingID"`
	Applicant   *User           `gorm:"foreignKey:ApplicantID"`
	Timeline    []TimelineEntry `gorm:"foreignKey:ApplicationID"`
	CoverLetter string          `gorm:"size:2000"`
	Resume      string          `gorm:"size:500;not null"`
	Answers     datatypes.JSONSlice[domain.Answer]
	Interview   datatypes.JSONType[*domain.Interview]
	Feedback    datatypes.JSONType[*domain.Feedback]
	Priority    string `gorm:"size:10"`
	Score       *int
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

// TimelineEntry is one append-only status change row. ID increases with
// append order.
type TimelineEntry struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	ApplicationID uuid.UUID `gorm:"type:uuid;not null;index"`
	Status        string    `gorm:"size:32;not null"`
	Note          string    `gorm:"size:500"`
	Timestamp     time.Time `gorm:"not null"`
}

// TableName keeps the timeline table name explicit.
func (TimelineEntry) TableName() string {
	return "application_timeline_entries"
}

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{&User{}, &Posting{}, &Application{}, &TimelineEntry{}}
}
