// Package models defines the core domain models of the marketplace:
// identities, postings and applications, together with the enumerations,
// filters and pagination types the services exchange.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account kinds.
type Role string

const (
	// RoleApplicant is a student or freelancer applying to postings.
	RoleApplicant Role = "applicant"
	// RoleOrganization is a company publishing postings.
	RoleOrganization Role = "organization"
	// RoleAdministrator moderates the whole marketplace.
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleApplicant, RoleOrganization, RoleAdministrator:
		return true
	default:
		return false
	}
}

// ParseRole normalises s and returns the matching Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Identity is a person or organization account.
type Identity struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Role         Role            `json:"role"`
	Active       bool            `json:"isActive"`
	Verified     bool            `json:"isVerified"`
	Profile      Profile         `json:"profile"`
	Student      *StudentProfile `json:"student,omitempty"`
	Company      *CompanyProfile `json:"company,omitempty"`
	LastLogin    *time.Time      `json:"lastLogin,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Profile holds the contact details common to every role.
type Profile struct {
	Phone    string `json:"phone,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Location string `json:"location,omitempty"`
	Website  string `json:"website,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	GitHub   string `json:"github,omitempty"`
}

// StudentProfile is the applicant-specific payload.
type StudentProfile struct {
	Education   []Education  `json:"education,omitempty"`
	Skills      []string     `json:"skills,omitempty"`
	Resume      string       `json:"resume,omitempty"`
	Portfolio   string       `json:"portfolio,omitempty"`
	Experience  []Experience `json:"experience,omitempty"`
	Projects    []Project    `json:"projects,omitempty"`
	Preferences Preferences  `json:"preferences"`
}

type Education struct {
	Institution string     `json:"institution"`
	Degree      string     `json:"degree,omitempty"`
	Field       string     `json:"field,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	GPA         float64    `json:"gpa,omitempty"`
}

type Experience struct {
	Title       string     `json:"title"`
	Company     string     `json:"company,omitempty"`
	Location    string     `json:"location,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Current     bool       `json:"current,omitempty"`
	Description string     `json:"description,omitempty"`
}

type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Link         string   `json:"link,omitempty"`
	GitHub       string   `json:"github,omitempty"`
}

type Preferences struct {
	JobTypes  []string `json:"jobTypes,omitempty"`
	Locations []string `json:"locations,omitempty"`
	Domains   []string `json:"domains,omitempty"`
}

// CompanyProfile is the organization-specific payload.
type CompanyProfile struct {
	CompanyName string `json:"companyName,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Size        string `json:"size,omitempty"`
	Founded     int    `json:"founded,omitempty"`
	Description string `json:"description,omitempty"`
	Logo        string `json:"logo,omitempty"`
	Verified    bool   `json:"verified"`
}

// ProfileUpdate carries the fields an identity may change on itself.
// Nil fields are left untouched.
type ProfileUpdate struct {
	ID      uuid.UUID
	Name    *string
	Profile *Profile
	Student *StudentProfile
	Company *CompanyProfile
}

// UserFilter narrows administrative user listings.
type UserFilter struct {
	Role     *Role
	Active   *bool
	Verified *bool
	Search   string
}

// CompanyFilter narrows the public company directory.
type CompanyFilter struct {
	Industry string
	Verified *bool
	Search   string
}

// Actor is the authenticated identity on whose behalf an operation runs.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// Actor returns the acting view of i.
func (i *Identity) Actor() Actor {
	return Actor{ID: i.ID, Role: i.Role}
}

// DisplayName is the company name of an organization, else the account name.
func (i *Identity) DisplayName() string {
	if i.Company != nil && i.Company.CompanyName != "" {
		return i.Company.CompanyName
	}
	return i.Name
}
