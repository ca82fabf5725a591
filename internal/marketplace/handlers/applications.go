package handlers

import (
	"fmt"
	"net/http"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	"github.com/gartstein/internhub/internal/marketplace/controller"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/google/uuid"
)

type submitRequest struct {
	Internship  string          `json:"internship" validate:"required"`
	CoverLetter string          `json:"coverLetter"`
	Resume      string          `json:"resume"`
	Answers     []models.Answer `json:"answers"`
}

type statusRequest struct {
	Status    string            `json:"status" validate:"required"`
	Note      string            `json:"note"`
	Feedback  *models.Feedback  `json:"feedback"`
	Interview *models.Interview `json:"interview"`
}

func (h *Handler) submitApplication(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleApplicant)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	var req submitRequest
	if err := h.decode(r, &req); err != nil {
		h.serviceError(w, err)
		return
	}

	postingID, err := uuid.Parse(req.Internship)
	if err != nil {
		h.serviceError(w, fmt.Errorf("%w: Invalid internship ID", e.ErrInvalidInput))
		return
	}

	app, err := h.apps.Submit(r.Context(), identity.Actor(), controller.SubmitRequest{
		PostingID:   postingID,
		CoverLetter: req.CoverLetter,
		Resume:      req.Resume,
		Answers:     req.Answers,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}
	created(w, "Application submitted successfully", app)
}

func (h *Handler) updateApplicationStatus(w http.ResponseWriter, r *http.Request, params map[string]string) {
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
	var req statusRequest
	if err := h.decode(r, &req); err != nil {
		h.serviceError(w, err)
		return
	}

	app, err := h.apps.UpdateStatus(r.Context(), identity.Actor(), controller.StatusUpdate{
		ID:        id,
		Status:    models.Status(req.Status),
		Note:      req.Note,
		Feedback:  req.Feedback,
		Interview: req.Interview,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Application status updated", app)
}

func (h *Handler) withdrawApplication(w http.ResponseWriter, r *http.Request, params map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleApplicant)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if _, err := h.apps.Withdraw(r.Context(), identity.Actor(), id); err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Application withdrawn successfully", nil)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request, params map[string]string) {
	identity, err := auth.Authenticated(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	app, err := h.apps.Get(r.Context(), identity.Actor(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", app)
}

func (h *Handler) myApplications(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleApplicant)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	filter := applicationFilter(r)
	apps, pagination, err := h.apps.ListForApplicant(r.Context(), identity.Actor(), filter, pageFrom(r, controller.ApplicantPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, apps, pagination)
}

func (h *Handler) companyApplications(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleOrganization)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	filter := applicationFilter(r)
	postingID, err := queryUUID(r, "internship")
	if err != nil {
		h.serviceError(w, err)
		return
	}
	filter.PostingID = postingID

	apps, pagination, err := h.apps.ListForCompany(r.Context(), identity.Actor(), filter, pageFrom(r, controller.CompanyPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, apps, pagination)
}

func (h *Handler) applicationStats(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.RequireRole(r.Context(), models.RoleOrganization)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	stats, err := h.apps.Stats(r.Context(), identity.Actor())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", stats)
}

// applicationFilter reads the status query parameter. Unknown statuses are
// rejected by the service.
func applicationFilter(r *http.Request) models.ApplicationFilter {
	var filter models.ApplicationFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status := models.Status(s)
		filter.Status = &status
	}
	return filter
}
