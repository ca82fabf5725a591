package handlers

import (
	"net/http"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// adminPageLimit is the default page size of the moderation listings.
const adminPageLimit = 20

// adminActor authenticates an administrator request.
func (h *Handler) adminActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	identity, err := auth.RequireRole(r.Context(), models.RoleAdministrator)
	if err != nil {
		h.serviceError(w, err)
		return models.Actor{}, false
	}
	return identity.Actor(), true
}

// adminTarget authenticates an administrator request and parses the {id}
// path parameter.
func (h *Handler) adminTarget(w http.ResponseWriter, r *http.Request, params map[string]string) (models.Actor, uuid.UUID, bool) {
	actor, valid := h.adminActor(w, r)
	if !valid {
		return actor, uuid.Nil, false
	}
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return actor, uuid.Nil, false
	}
	return actor, id, true
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	actor, valid := h.adminActor(w, r)
	if !valid {
		return
	}
	stats, err := h.admin.Dashboard(r.Context(), actor)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", stats)
}

func (h *Handler) adminUsers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	actor, valid := h.adminActor(w, r)
	if !valid {
		return
	}
	q := r.URL.Query()
	filter := models.UserFilter{Search: q.Get("search")}
	if role := q.Get("role"); role != "" {
		parsed, known := models.ParseRole(role)
		if !known {
			fail(w, http.StatusBadRequest, "Invalid role")
			return
		}
		filter.Role = &parsed
	}
	var err error
	if filter.Active, err = queryBool(r, "isActive"); err != nil {
		h.serviceError(w, err)
		return
	}
	if filter.Verified, err = queryBool(r, "isVerified"); err != nil {
		h.serviceError(w, err)
		return
	}

	users, pagination, err := h.admin.ListUsers(r.Context(), actor, filter, pageFrom(r, adminPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, users, pagination)
}

func (h *Handler) verifyUser(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, id, valid := h.adminTarget(w, r, params)
	if !valid {
		return
	}
	user, err := h.admin.VerifyUser(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "User verified successfully", user)
}

func (h *Handler) toggleActive(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, id, valid := h.adminTarget(w, r, params)
	if !valid {
		return
	}
	user, err := h.admin.ToggleActive(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "User "+lo.Ternary(user.Active, "activated", "deactivated")+" successfully", user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, id, valid := h.adminTarget(w, r, params)
	if !valid {
		return
	}
	if err := h.admin.DeleteUser(r.Context(), actor, id); err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "User deleted successfully", nil)
}

func (h *Handler) adminPostings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	actor, valid := h.adminActor(w, r)
	if !valid {
		return
	}
	q := r.URL.Query()
	var filter models.PostingFilter
	if s := q.Get("status"); s != "" {
		filter.Status = lo.ToPtr(models.PostingStatus(s))
	}
	if c := q.Get("category"); c != "" {
		filter.Category = lo.ToPtr(models.Category(c))
	}
	postings, pagination, err := h.admin.ListPostings(r.Context(), actor, filter, pageFrom(r, adminPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, postings, pagination)
}

func (h *Handler) toggleFeatured(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, id, valid := h.adminTarget(w, r, params)
	if !valid {
		return
	}
	posting, err := h.admin.ToggleFeatured(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Internship "+lo.Ternary(posting.Featured, "featured", "unfeatured")+" successfully", posting)
}

func (h *Handler) adminDeletePosting(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, id, valid := h.adminTarget(w, r, params)
	if !valid {
		return
	}
	if err := h.admin.DeletePosting(r.Context(), actor, id); err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Internship deleted successfully", nil)
}

func (h *Handler) adminApplications(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	actor, valid := h.adminActor(w, r)
	if !valid {
		return
	}
	apps, pagination, err := h.admin.ListApplications(r.Context(), actor, applicationFilter(r), pageFrom(r, adminPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, apps, pagination)
}
