package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	"github.com/gartstein/internhub/internal/marketplace/controller"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/marketplace/storage"
	"go.uber.org/zap"
)

type registerRequest struct {
	Name     string                 `json:"name" validate:"required"`
	Email    string                 `json:"email" validate:"required,email"`
	Password string                 `json:"password" validate:"required,min=6"`
	Role     string                 `json:"role" validate:"required"`
	Student  *models.StudentProfile `json:"student"`
	Company  *models.CompanyProfile `json:"company"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	Name    *string                `json:"name"`
	Profile *models.Profile        `json:"profile"`
	Student *models.StudentProfile `json:"student"`
	Company *models.CompanyProfile `json:"company"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if h.throttled(w, r) {
		return
	}
	var req registerRequest
	if err := h.decode(r, &req); err != nil {
		h.serviceError(w, err)
		return
	}
	role, valid := models.ParseRole(req.Role)
	if !valid {
		fail(w, http.StatusBadRequest, "Invalid role")
		return
	}

	session, err := h.users.Register(r.Context(), controller.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
		Student:  req.Student,
		Company:  req.Company,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}
	created(w, "User registered successfully", session)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if h.throttled(w, r) {
		return
	}
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		h.serviceError(w, err)
		return
	}
	session, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Login successful", session)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.Authenticated(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	user, err := h.users.Me(r.Context(), identity.Actor())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", user)
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.Authenticated(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	var req profileRequest
	if err := h.decode(r, &req); err != nil {
		h.serviceError(w, err)
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), identity.Actor(), models.ProfileUpdate{
		Name:    req.Name,
		Profile: req.Profile,
		Student: req.Student,
		Company: req.Company,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Profile updated successfully", user)
}

func (h *Handler) deactivateMe(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.Authenticated(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if err := h.users.Deactivate(r.Context(), identity.Actor()); err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Account deactivated successfully", nil)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.Authenticated(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	var req passwordRequest
	if err := h.decode(r, &req); err != nil {
		h.serviceError(w, err)
		return
	}
	if err := h.users.ChangePassword(r.Context(), identity.Actor(), req.CurrentPassword, req.NewPassword); err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "Password changed successfully", nil)
}

func (h *Handler) publicProfile(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	user, err := h.users.PublicProfile(r.Context(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	ok(w, "", user)
}

type uploadFunc func(ctx context.Context, actor models.Actor, filename string, r io.Reader) (string, *models.Identity, error)

func (h *Handler) uploadAvatar(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	h.upload(w, r, storage.FieldAvatar, "Avatar uploaded successfully", h.users.SetAvatar)
}

func (h *Handler) uploadResume(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	identity, err := auth.Authenticated(r.Context())
	if err == nil && identity.Role != models.RoleApplicant {
		err = fmt.Errorf("%w: Only students can upload resumes", e.ErrForbidden)
	}
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.upload(w, r, storage.FieldResume, "Resume uploaded successfully", h.users.SetResume)
}

func (h *Handler) uploadLogo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	h.upload(w, r, storage.FieldLogo, "Logo uploaded successfully", h.users.SetLogo)
}

// upload reads the multipart file named after field and hands it to store.
// The response carries the stored reference under the field name.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request, field storage.Field, message string, store uploadFunc) {
	identity, err := auth.Authenticated(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadSize+maxBodySize)
	file, header, err := r.FormFile(string(field))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, http.StatusBadRequest, "File too large. Maximum size is 5MB")
			return
		}
		fail(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() { _ = file.Close() }()

	ref, user, err := store(r.Context(), identity.Actor(), header.Filename, file)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.logger.Info("File uploaded",
		zap.String("user_id", identity.ID.String()),
		zap.String("field", string(field)),
	)
	ok(w, message, map[string]any{string(field): ref, "user": user})
}
