package handlers

import (
	"net/http"

	"github.com/gartstein/internhub/internal/marketplace/models"
)

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	verified, err := queryBool(r, "verified")
	if err != nil {
		h.serviceError(w, err)
		return
	}
	q := r.URL.Query()
	filter := models.CompanyFilter{
		Industry: q.Get("industry"),
		Verified: verified,
		Search:   q.Get("search"),
	}
	companies, pagination, err := h.companies.List(r.Context(), filter, pageFrom(r, models.DefaultPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, companies, pagination)
}

func (h *Handler) getCompany(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	details, err := h.companies.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", details)
}

// companyPostings lists one company's postings; status defaults to active.
func (h *Handler) companyPostings(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	status := models.PostingActive
	if s := r.URL.Query().Get("status"); s != "" {
		status = models.PostingStatus(s)
	}
	postings, pagination, err := h.companies.Postings(r.Context(), id, status, pageFrom(r, models.DefaultPageLimit))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	paged(w, postings, pagination)
}

func (h *Handler) featuredCompanies(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	companies, err := h.companies.Featured(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", companies)
}
