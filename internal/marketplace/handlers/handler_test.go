package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	"github.com/gartstein/internhub/internal/marketplace/controller"
	"github.com/gartstein/internhub/internal/marketplace/db"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/metrics"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/marketplace/notify"
	"github.com/gartstein/internhub/internal/marketplace/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type denyLimiter struct{ keys []string }

func (d *denyLimiter) Allow(_ context.Context, key string) bool {
	d.keys = append(d.keys, key)
	return false
}

type testAPI struct {
	server *httptest.Server
	repo   *db.Repository
	store  *storage.LocalStore
}

func newTestAPI(t *testing.T, limiter Limiter) *testAPI {
	t.Helper()
	logger := zaptest.NewLogger(t)

	repo, err := db.NewRepository(&db.Config{Driver: db.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	templates, err := notify.DefaultTemplates()
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	tokens := auth.NewTokenIssuer("test-secret", "internhub", time.Hour)
	notifier := controller.NewNotifier(templates, notify.NewLogMailer(logger), m, logger)
	postings := controller.NewPostingService(repo, logger)
	apps := controller.NewApplicationService(repo, nil, notifier, m, logger)

	h := NewHandler(Services{
		Applications: apps,
		Postings:     postings,
		Users:        controller.NewUserService(repo, tokens, store, notifier, logger),
		Companies:    controller.NewCompanyService(repo, logger),
		Admin:        controller.NewAdminService(repo, postings, apps, logger),
	}, limiter, m, logger)

	routes, err := h.Routes(auth.NewAuthenticator(tokens, repo, logger), m.Handler(), store.Dir())
	require.NoError(t, err)

	server := httptest.NewServer(routes)
	t.Cleanup(server.Close)
	return &testAPI{server: server, repo: repo, store: store}
}

type response struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Data       json.RawMessage    `json:"data"`
	Pagination *models.Pagination `json:"pagination"`
}

func (a *testAPI) send(t *testing.T, req *http.Request, token string) (int, response) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (a *testAPI) do(t *testing.T, method, path, token string, payload any) (int, response) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return a.send(t, req, token)
}

func decodeData[T any](t *testing.T, body response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body.Data, &v))
	return v
}

func (a *testAPI) register(t *testing.T, name, email, role string) controller.Session {
	t.Helper()
	code, body := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": name, "email": email, "password": "secret1", "role": role,
	})
	require.Equal(t, http.StatusCreated, code, body.Message)
	return decodeData[controller.Session](t, body)
}

func TestAuthRoutes(t *testing.T) {
	api := newTestAPI(t, nil)
	session := api.register(t, "Ada", "ada@example.com", "applicant")
	require.NotEmpty(t, session.Token)

	tests := []struct {
		name        string
		method      string
		path        string
		token       string
		payload     any
		wantCode    int
		wantMessage string
	}{
		{
			name: "me", method: http.MethodGet, path: "/api/users/me", token: session.Token,
			wantCode: http.StatusOK,
		},
		{
			name: "me without token", method: http.MethodGet, path: "/api/users/me",
			wantCode: http.StatusUnauthorized, wantMessage: "No token, authorization denied",
		},
		{
			name: "me with bad token", method: http.MethodGet, path: "/api/users/me", token: "garbage",
			wantCode: http.StatusUnauthorized, wantMessage: "Token is not valid",
		},
		{
			name: "login", method: http.MethodPost, path: "/api/auth/login",
			payload:  map[string]string{"email": "ada@example.com", "password": "secret1"},
			wantCode: http.StatusOK, wantMessage: "Login successful",
		},
		{
			name: "login wrong password", method: http.MethodPost, path: "/api/auth/login",
			payload:  map[string]string{"email": "ada@example.com", "password": "nope"},
			wantCode: http.StatusBadRequest, wantMessage: "Invalid credentials",
		},
		{
			name: "duplicate registration", method: http.MethodPost, path: "/api/auth/register",
			payload:  map[string]string{"name": "Ada", "email": "ada@example.com", "password": "secret1", "role": "applicant"},
			wantCode: http.StatusBadRequest, wantMessage: "User already exists",
		},
		{
			name: "administrator registration", method: http.MethodPost, path: "/api/auth/register",
			payload:  map[string]string{"name": "Root", "email": "root@example.com", "password": "secret1", "role": "administrator"},
			wantCode: http.StatusForbidden, wantMessage: "Administrators cannot self-register",
		},
		{
			name: "short password", method: http.MethodPost, path: "/api/auth/register",
			payload:  map[string]string{"name": "Bo", "email": "bo@example.com", "password": "123", "role": "applicant"},
			wantCode: http.StatusBadRequest, wantMessage: "password must be at least 6 characters",
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/api/auth/login",
			payload:  "not an object",
			wantCode: http.StatusBadRequest, wantMessage: "Invalid request body",
		},
		{
			name: "unknown route", method: http.MethodGet, path: "/api/nowhere",
			wantCode: http.StatusNotFound, wantMessage: "Route not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := api.do(t, tt.method, tt.path, tt.token, tt.payload)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantCode < 300, body.Success)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body.Message)
			}
		})
	}
}

func TestApplicationRoutes(t *testing.T) {
	api := newTestAPI(t, nil)
	org := api.register(t, "Acme", "hr@acme.test", "organization")
	ada := api.register(t, "Ada", "ada@example.com", "applicant")

	code, body := api.do(t, http.MethodPost, "/api/internships", org.Token, map[string]any{
		"title":               "Go Intern",
		"category":            "software-development",
		"applicationDeadline": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, code, body.Message)
	posting := decodeData[models.Posting](t, body)

	code, body = api.do(t, http.MethodPost, "/api/internships", ada.Token, map[string]any{"title": "Nope"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Access denied. Companies only.", body.Message)

	code, body = api.do(t, http.MethodPost, "/api/internships", org.Token, map[string]any{
		"title":               "Moon Intern",
		"category":            "software-development",
		"workMode":            "moon",
		"applicationDeadline": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, `Invalid work mode "moon"`, body.Message)

	code, body = api.do(t, http.MethodPut, "/api/internships/"+posting.ID.String(), org.Token, map[string]any{"status": "banana"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, `Invalid status "banana"`, body.Message)

	for _, malformed := range []string{"not-a-uuid", "1234"} {
		code, body = api.do(t, http.MethodPost, "/api/applications", ada.Token, map[string]any{"internship": malformed, "resume": "/uploads/ada.pdf"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Invalid internship ID", body.Message)
	}

	submit := map[string]any{"internship": posting.ID.String(), "resume": "/uploads/ada.pdf"}
	code, body = api.do(t, http.MethodPost, "/api/applications", ada.Token, submit)
	require.Equal(t, http.StatusCreated, code, body.Message)
	app := decodeData[models.Application](t, body)

	code, body = api.do(t, http.MethodPut, "/api/applications/"+app.ID.String()+"/status", org.Token, map[string]any{
		"status":    "interview-scheduled",
		"interview": map[string]any{"mode": "telepathy"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, `Invalid interview mode "telepathy"`, body.Message)

	code, body = api.do(t, http.MethodPut, "/api/applications/"+app.ID.String()+"/status", org.Token, map[string]any{
		"status":   "reviewing",
		"feedback": map[string]any{"rating": 42},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Rating must be between 1 and 5", body.Message)
	assert.Equal(t, models.StatusPending, app.Status)

	code, body = api.do(t, http.MethodPost, "/api/applications", ada.Token, submit)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "You have already applied to this internship", body.Message)

	code, body = api.do(t, http.MethodPut, "/api/applications/"+app.ID.String()+"/status", ada.Token, map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Access denied. Companies only.", body.Message)

	code, body = api.do(t, http.MethodPut, "/api/applications/"+app.ID.String()+"/status", org.Token, map[string]any{
		"status":   "accepted",
		"feedback": map[string]any{"rating": 5},
	})
	require.Equal(t, http.StatusOK, code, body.Message)
	assert.Equal(t, models.StatusAccepted, decodeData[models.Application](t, body).Status)

	code, body = api.do(t, http.MethodPut, "/api/applications/"+app.ID.String()+"/withdraw", ada.Token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Cannot withdraw application at this stage", body.Message)

	code, body = api.do(t, http.MethodGet, "/api/applications/my-applications?page=1&limit=5", ada.Token, nil)
	require.Equal(t, http.StatusOK, code, body.Message)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, models.Pagination{Total: 1, Page: 1, Pages: 1}, *body.Pagination)

	code, body = api.do(t, http.MethodGet, "/api/applications/my-applications?status=bogus", ada.Token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = api.do(t, http.MethodGet, "/api/applications/analytics/stats", org.Token, nil)
	require.Equal(t, http.StatusOK, code, body.Message)
	assert.Equal(t, int64(1), decodeData[models.ApplicationStats](t, body).Total)

	code, body = api.do(t, http.MethodGet, "/api/applications/not-a-uuid", ada.Token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid ID", body.Message)

	code, body = api.do(t, http.MethodGet, "/api/internships/"+posting.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), decodeData[models.Posting](t, body).Views)
	assert.Equal(t, int64(1), decodeData[models.Posting](t, body).ApplicationsCount)

	code, body = api.do(t, http.MethodGet, "/api/freelance/"+posting.ID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Project not found", body.Message)

	code, body = api.do(t, http.MethodGet, "/api/internships?search=go", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), body.Pagination.Total)
}

func TestAdminRoutes(t *testing.T) {
	api := newTestAPI(t, nil)
	ada := api.register(t, "Ada", "ada@example.com", "applicant")

	admin := &models.Identity{
		ID:        uuid.New(),
		Name:      "Root",
		Email:     "root@example.com",
		Role:      models.RoleAdministrator,
		Active:    true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, api.repo.CreateUser(context.Background(), admin))
	tokens := auth.NewTokenIssuer("test-secret", "internhub", time.Hour)
	adminToken, err := tokens.Generate(admin.Actor())
	require.NoError(t, err)

	code, body := api.do(t, http.MethodGet, "/api/admin/dashboard", ada.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Access denied. Admins only.", body.Message)

	code, body = api.do(t, http.MethodGet, "/api/admin/dashboard", adminToken, nil)
	require.Equal(t, http.StatusOK, code, body.Message)
	assert.Equal(t, int64(2), decodeData[models.DashboardStats](t, body).Overview.TotalUsers)

	code, body = api.do(t, http.MethodPut, "/api/admin/users/"+ada.User.ID.String()+"/toggle-active", adminToken, nil)
	require.Equal(t, http.StatusOK, code, body.Message)
	assert.Equal(t, "User deactivated successfully", body.Message)

	code, body = api.do(t, http.MethodGet, "/api/users/me", ada.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Account is deactivated", body.Message)

	code, body = api.do(t, http.MethodDelete, "/api/admin/users/"+admin.ID.String(), adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "You cannot change your own account", body.Message)

	code, body = api.do(t, http.MethodGet, "/api/admin/users?role=applicant&isActive=false", adminToken, nil)
	require.Equal(t, http.StatusOK, code, body.Message)
	assert.Equal(t, int64(1), body.Pagination.Total)
}

func TestUploadAvatar(t *testing.T) {
	api := newTestAPI(t, nil)
	ada := api.register(t, "Ada", "ada@example.com", "applicant")

	upload := func(field, filename string, content []byte) (int, response) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/users/upload-avatar", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return api.send(t, req, ada.Token)
	}

	code, body := upload("avatar", "me.png", []byte("png-bytes"))
	require.Equal(t, http.StatusOK, code, body.Message)
	assert.Equal(t, "Avatar uploaded successfully", body.Message)
	data := decodeData[struct {
		Avatar string          `json:"avatar"`
		User   models.Identity `json:"user"`
	}](t, body)
	assert.True(t, strings.HasPrefix(data.Avatar, storage.PublicPrefix+"avatar-"))
	assert.Equal(t, data.Avatar, data.User.Profile.Avatar)

	resp, err := api.server.Client().Get(api.server.URL + data.Avatar)
	require.NoError(t, err)
	served, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(served))

	code, body = upload("other", "me.png", []byte("png"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file uploaded", body.Message)

	code, body = upload("avatar", "me.exe", []byte("MZ"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Only image files are allowed for avatars and logos", body.Message)
}

func TestCredentialRateLimit(t *testing.T) {
	limiter := &denyLimiter{}
	api := newTestAPI(t, limiter)

	code, body := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "Too many requests, please try again later", body.Message)
	require.Len(t, limiter.keys, 1)
	assert.Equal(t, "auth:127.0.0.1", limiter.keys[0])

	for _, spoofed := range []string{"203.0.113.1", "203.0.113.2"} {
		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/auth/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", spoofed)
		resp, err := api.server.Client().Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	}
	assert.Equal(t, []string{"auth:127.0.0.1", "auth:127.0.0.1", "auth:127.0.0.1"}, limiter.keys, "rotating X-Forwarded-For must not change the key")

	code, _ = api.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	code, _ := api.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, code)

	resp, err := api.server.Client().Get(api.server.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `marketplace_http_requests_total{code="200",method="GET",route="/api/health"} 1`)
}

func TestMapServiceError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := &Handler{logger: zap.New(core)}

	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
	}{
		{"not found", fmt.Errorf("%w: Application not found", e.ErrNotFound), http.StatusNotFound, "Application not found"},
		{"forbidden", fmt.Errorf("%w: Not authorized", e.ErrForbidden), http.StatusForbidden, "Not authorized"},
		{"unauthorized", fmt.Errorf("%w: Token is not valid", e.ErrUnauthorized), http.StatusUnauthorized, "Token is not valid"},
		{"conflict", fmt.Errorf("%w: You have already applied to this internship", e.ErrConflict), http.StatusBadRequest, "You have already applied to this internship"},
		{"invalid state", fmt.Errorf("%w: Application deadline has passed", e.ErrInvalidState), http.StatusBadRequest, "Application deadline has passed"},
		{"bare sentinel", e.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "Server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := h.mapServiceError(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMessage, message)
		})
	}

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Internal server error", logs.All()[0].Message)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		remote  string
		xff     string
		want    string
	}{
		{name: "direct", remote: "10.0.0.7:5123", want: "10.0.0.7"},
		{name: "forwarded header ignored without trusted proxy", remote: "198.51.100.4:443", xff: "203.0.113.9", want: "198.51.100.4"},
		{name: "untrusted peer cannot spoof", proxies: []string{"10.0.0.0/8"}, remote: "198.51.100.4:443", xff: "203.0.113.9", want: "198.51.100.4"},
		{name: "trusted proxy", proxies: []string{"10.0.0.0/8"}, remote: "10.0.0.1:443", xff: "203.0.113.9", want: "203.0.113.9"},
		{name: "rightmost untrusted hop", proxies: []string{"10.0.0.0/8"}, remote: "10.0.0.1:443", xff: "1.2.3.4, 203.0.113.9, 10.0.0.2", want: "203.0.113.9"},
		{name: "single proxy address", proxies: []string{"10.0.0.1"}, remote: "10.0.0.1:443", xff: "203.0.113.9", want: "203.0.113.9"},
		{name: "garbage hop", proxies: []string{"10.0.0.0/8"}, remote: "10.0.0.1:443", xff: "not-an-ip", want: "10.0.0.1"},
		{name: "trusted proxy without header", proxies: []string{"10.0.0.0/8"}, remote: "10.0.0.1:443", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Services{}, nil, nil, zaptest.NewLogger(t))
			require.NoError(t, h.TrustProxies(tt.proxies...))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, h.clientIP(req))
		})
	}

	h := NewHandler(Services{}, nil, nil, zaptest.NewLogger(t))
	assert.Error(t, h.TrustProxies("proxy.internal"))
}
