package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/samber/lo"
)

// postingPatch is the body of a posting update. Absent fields are kept.
type postingPatch struct {
	Title               *string               `json:"title"`
	Description         *string               `json:"description"`
	Type                *models.PostingType   `json:"type"`
	Category            *models.Category      `json:"category"`
	Location            *string               `json:"location"`
	WorkMode            *models.WorkMode      `json:"workMode"`
	Duration            *models.Duration      `json:"duration"`
	Stipend             *models.Stipend       `json:"stipend"`
	Requirements        *models.Requirements  `json:"requirements"`
	Responsibilities    *[]string             `json:"responsibilities"`
	Perks               *[]string             `json:"perks"`
	Openings            *int                  `json:"openings" validate:"omitempty,min=1"`
	ApplicationDeadline *time.Time            `json:"applicationDeadline"`
	StartDate           *time.Time            `json:"startDate"`
	Status              *models.PostingStatus `json:"status"`
	Urgent              *bool                 `json:"isUrgent"`
	Questionnaire       *[]models.Question    `json:"questionnaire"`
}

func (p postingPatch) update() *models.PostingUpdate {
	return &models.PostingUpdate{
		Title:               p.Title,
		Description:         p.Description,
		Type:                p.Type,
		Category:            p.Category,
		Location:            p.Location,
		WorkMode:            p.WorkMode,
		Duration:            p.Duration,
		Stipend:             p.Stipend,
		Requirements:        p.Requirements,
		Responsibilities:    p.Responsibilities,
		Perks:               p.Perks,
		Openings:            p.Openings,
		ApplicationDeadline: p.ApplicationDeadline,
		StartDate:           p.StartDate,
		Status:              p.Status,
		Urgent:              p.Urgent,
		Questionnaire:       p.Questionnaire,
	}
}

func (h *Handler) createPosting(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleOrganization)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	var posting models.Posting
	if err := h.decode(r, &posting); err != nil {
		h.serviceError(w, err)
		return
	}
	saved, err := h.postings.Create(r.Context(), identity.Actor(), &posting)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	created(w, "Internship created successfully", saved)
}

func (h *Handler) updatePosting(w http.ResponseWriter, r *http.Request, params map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleOrganization)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	var patch postingPatch
	if err := h.decode(r, &patch); err != nil {
		h.serviceError(w, err)
		return
	}
	update := patch.update()
	update.ID = id

	saved, err := h.postings.Update(r.Context(), identity.Actor(), update)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Internship updated successfully", saved)
}

func (h *Handler) deletePosting(w http.ResponseWriter, r *http.Request, params map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleOrganization)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if err := h.postings.Delete(r.Context(), identity.Actor(), id); err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Internship deleted successfully", nil)
}

func (h *Handler) getPosting(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	posting, err := h.postings.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", posting)
}

func (h *Handler) getFreelance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	posting, err := h.postings.GetFreelance(r.Context(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", posting)
}

func (h *Handler) listPostings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	filter, err := postingFilter(r)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if t := r.URL.Query().Get("type"); t != "" {
		filter.Type = lo.ToPtr(models.PostingType(t))
	}
	if s := r.URL.Query().Get("sort"); s != "" {
		filter.Sort = models.PostingSort(s)
	}

	postings, pagination, err := h.postings.List(r.Context(), filter, pageFrom(r, models.DefaultPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, postings, pagination)
}

func (h *Handler) listFreelance(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	filter, err := postingFilter(r)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if filter.MinStipend, err = queryInt(r, "minBudget"); err != nil {
		h.serviceError(w, err)
		return
	}
	if filter.MaxStipend, err = queryInt(r, "maxBudget"); err != nil {
		h.serviceError(w, err)
		return
	}
	if skills := r.URL.Query().Get("skills"); skills != "" {
		filter.Skills = lo.Compact(lo.Map(strings.Split(skills, ","), func(s string, _ int) string {
			return strings.TrimSpace(s)
		}))
	}

	postings, pagination, err := h.postings.ListFreelance(r.Context(), filter, pageFrom(r, models.DefaultPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, postings, pagination)
}

// postingFilter reads the query parameters shared by the public listings.
func postingFilter(r *http.Request) (models.PostingFilter, error) {
	q := r.URL.Query()
	filter := models.PostingFilter{
		Search:   q.Get("search"),
		Location: q.Get("location"),
	}
	if c := q.Get("category"); c != "" {
		filter.Category = lo.ToPtr(models.Category(c))
	}
	if m := q.Get("workMode"); m != "" {
		filter.WorkMode = lo.ToPtr(models.WorkMode(m))
	}
	minStipend, err := queryInt(r, "minStipend")
	if err != nil {
		return filter, err
	}
	filter.MinStipend = minStipend
	return filter, nil
}

func (h *Handler) myPostings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleOrganization)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	postings, err := h.postings.ListMine(r.Context(), identity.Actor())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", postings)
}

func (h *Handler) featuredPostings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	postings, err := h.postings.Featured(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", postings)
}

func (h *Handler) postingCategories(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	counts, err := h.postings.Categories(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", counts)
}

func (h *Handler) freelanceCategories(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	counts, err := h.postings.FreelanceCategories(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", counts)
}
