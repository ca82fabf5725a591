package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"go.uber.org/zap"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Data       any                `json:"data,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func created(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

func paged(w http.ResponseWriter, data any, pagination models.Pagination) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &pagination})
}

func fail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Success: false, Message: message})
}

// sentinels in the order they are checked; the first match decides the
// status code.
var sentinels = []struct {
	err  error
	code int
}{
	{e.ErrUnauthorized, http.StatusUnauthorized},
	{e.ErrForbidden, http.StatusForbidden},
	{e.ErrNotFound, http.StatusNotFound},
	{e.ErrConflict, http.StatusBadRequest},
	{e.ErrInvalidState, http.StatusBadRequest},
	{e.ErrInvalidInput, http.StatusBadRequest},
}

// mapServiceError maps domain or repository errors to an HTTP status and the
// message shown to the client. Unclassified errors are logged and reported
// as a generic server error.
func (h *Handler) mapServiceError(err error) (int, string) {
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.code, clientMessage(err, s.err)
		}
	}
	h.logger.Error("Internal server error", zap.Error(err))
	return http.StatusInternalServerError, "Server error"
}

// clientMessage strips the "<sentinel>: " prefix added by fmt.Errorf("%w: ...").
func clientMessage(err, sentinel error) string {
	msg := err.Error()
	if rest, found := strings.CutPrefix(msg, sentinel.Error()+": "); found && rest != "" {
		return rest
	}
	return msg
}

func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	code, message := h.mapServiceError(err)
	fail(w, code, message)
}
