package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"

	"github.com/gartstein/internhub/internal/marketplace/auth"
	"github.com/gartstein/internhub/internal/marketplace/controller"
	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/marketplace/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// ApplicationController is the application lifecycle surface used by the
// HTTP routes.
type ApplicationController interface {
	Submit(ctx context.Context, actor models.Actor, req controller.SubmitRequest) (*models.Application, error)
	UpdateStatus(ctx context.Context, actor models.Actor, update controller.StatusUpdate) (*models.Application, error)
	Withdraw(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Application, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Application, error)
	ListForApplicant(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) ([]models.Application, models.Pagination, error)
	ListForCompany(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) ([]models.Application, models.Pagination, error)
	Stats(ctx context.Context, actor models.Actor) (*models.ApplicationStats, error)
}

type PostingController interface {
	Create(ctx context.Context, actor models.Actor, posting *models.Posting) (*models.Posting, error)
	Update(ctx context.Context, actor models.Actor, update *models.PostingUpdate) (*models.Posting, error)
	Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Posting, error)
	GetFreelance(ctx context.Context, id uuid.UUID) (*models.Posting, error)
	List(ctx context.Context, filter models.PostingFilter, page models.Page) ([]models.Posting, models.Pagination, error)
	ListFreelance(ctx context.Context, filter models.PostingFilter, page models.Page) ([]models.Posting, models.Pagination, error)
	Featured(ctx context.Context) ([]models.Posting, error)
	ListMine(ctx context.Context, actor models.Actor) ([]models.Posting, error)
	Categories(ctx context.Context) ([]models.CategoryCount, error)
	FreelanceCategories(ctx context.Context) ([]models.CategoryCount, error)
}

type UserController interface {
	Register(ctx context.Context, req controller.RegisterRequest) (*controller.Session, error)
	Login(ctx context.Context, email, password string) (*controller.Session, error)
	Me(ctx context.Context, actor models.Actor) (*models.Identity, error)
	PublicProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	UpdateProfile(ctx context.Context, actor models.Actor, update models.ProfileUpdate) (*models.Identity, error)
	ChangePassword(ctx context.Context, actor models.Actor, currentPassword, newPassword string) error
	SetAvatar(ctx context.Context, actor models.Actor, filename string, r io.Reader) (string, *models.Identity, error)
	SetResume(ctx context.Context, actor models.Actor, filename string, r io.Reader) (string, *models.Identity, error)
	SetLogo(ctx context.Context, actor models.Actor, filename string, r io.Reader) (string, *models.Identity, error)
	Deactivate(ctx context.Context, actor models.Actor) error
}

type CompanyController interface {
	List(ctx context.Context, filter models.CompanyFilter, page models.Page) ([]models.Identity, models.Pagination, error)
	Get(ctx context.Context, id uuid.UUID) (*controller.CompanyDetails, error)
	Postings(ctx context.Context, id uuid.UUID, status models.PostingStatus, page models.Page) ([]models.Posting, models.Pagination, error)
	Featured(ctx context.Context) ([]models.Identity, error)
}

type AdminController interface {
	Dashboard(ctx context.Context, actor models.Actor) (*models.DashboardStats, error)
	ListUsers(ctx context.Context, actor models.Actor, filter models.UserFilter, page models.Page) ([]models.Identity, models.Pagination, error)
	VerifyUser(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Identity, error)
	ToggleActive(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Identity, error)
	DeleteUser(ctx context.Context, actor models.Actor, id uuid.UUID) error
	ListPostings(ctx context.Context, actor models.Actor, filter models.PostingFilter, page models.Page) ([]models.Posting, models.Pagination, error)
	ToggleFeatured(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Posting, error)
	DeletePosting(ctx context.Context, actor models.Actor, id uuid.UUID) error
	ListApplications(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) ([]models.Application, models.Pagination, error)
}

// Limiter throttles the credential endpoints per client.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RequestRecorder counts served requests.
type RequestRecorder interface {
	Request(method, route string, code int)
}

type nopRecorder struct{}

func (nopRecorder) Request(string, string, int) {}

// Services bundles the controllers behind the HTTP routes.
type Services struct {
	Applications ApplicationController
	Postings     PostingController
	Users        UserController
	Companies    CompanyController
	Admin        AdminController
}

// Handler serves the REST API.
type Handler struct {
	apps      ApplicationController
	postings  PostingController
	users     UserController
	companies CompanyController
	admin     AdminController
	validate  *validator.Validate
	limiter   Limiter
	proxies   []netip.Prefix
	recorder  RequestRecorder
	logger    *zap.Logger
}

// NewHandler constructs a Handler. limiter and recorder may be nil.
func NewHandler(svc Services, limiter Limiter, recorder RequestRecorder, logger *zap.Logger) *Handler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Handler{
		apps:      svc.Applications,
		postings:  svc.Postings,
		users:     svc.Users,
		companies: svc.Companies,
		admin:     svc.Admin,
		validate:  newValidator(),
		limiter:   limiter,
		recorder:  recorder,
		logger:    logger.Named("http_handler"),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type route struct {
	method  string
	pattern string
	handle  runtime.HandlerFunc
}

// Routes builds the HTTP handler: the API under /api behind the
// authenticator, plus /metrics and the uploaded files.
func (h *Handler) Routes(authn *auth.Authenticator, metrics http.Handler, uploadDir string) (http.Handler, error) {
	api := runtime.NewServeMux(runtime.WithRoutingErrorHandler(h.routingError))
	// The mux tries the most recently registered pattern first, so literal
	// paths are listed after the {id} patterns they overlap with.
	for _, rt := range h.routes() {
		if err := api.HandlePath(rt.method, rt.pattern, h.instrument(rt)); err != nil {
			return nil, fmt.Errorf("failed to register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	root := http.NewServeMux()
	root.Handle("/api/", authn.HTTPMiddleware(api))
	if metrics != nil {
		root.Handle("/metrics", metrics)
	}
	if uploadDir != "" {
		root.Handle(storage.PublicPrefix, http.StripPrefix(storage.PublicPrefix, http.FileServer(http.Dir(uploadDir))))
	}
	return root, nil
}

func (h *Handler) routes() []route {
	return []route{
		{http.MethodGet, "/api/health", h.health},

		{http.MethodPost, "/api/auth/register", h.register},
		{http.MethodPost, "/api/auth/login", h.login},

		{http.MethodGet, "/api/applications/{id}", h.getApplication},
		{http.MethodPut, "/api/applications/{id}/status", h.updateApplicationStatus},
		{http.MethodPut, "/api/applications/{id}/withdraw", h.withdrawApplication},
		{http.MethodPost, "/api/applications", h.submitApplication},
		{http.MethodGet, "/api/applications/my-applications", h.myApplications},
		{http.MethodGet, "/api/applications/company-applications", h.companyApplications},
		{http.MethodGet, "/api/applications/analytics/stats", h.applicationStats},

		{http.MethodGet, "/api/internships/{id}", h.getPosting},
		{http.MethodPut, "/api/internships/{id}", h.updatePosting},
		{http.MethodDelete, "/api/internships/{id}", h.deletePosting},
		{http.MethodGet, "/api/internships", h.listPostings},
		{http.MethodPost, "/api/internships", h.createPosting},
		{http.MethodGet, "/api/internships/company/my-posts", h.myPostings},
		{http.MethodGet, "/api/internships/featured/list", h.featuredPostings},
		{http.MethodGet, "/api/internships/categories/list", h.postingCategories},

		{http.MethodGet, "/api/freelance/{id}", h.getFreelance},
		{http.MethodGet, "/api/freelance", h.listFreelance},
		{http.MethodGet, "/api/freelance/categories/list", h.freelanceCategories},

		{http.MethodGet, "/api/companies/{id}", h.getCompany},
		{http.MethodGet, "/api/companies/{id}/internships", h.companyPostings},
		{http.MethodGet, "/api/companies", h.listCompanies},
		{http.MethodGet, "/api/companies/featured/list", h.featuredCompanies},

		{http.MethodGet, "/api/users/{id}", h.publicProfile},
		{http.MethodGet, "/api/users/me", h.me},
		{http.MethodPut, "/api/users/me", h.updateMe},
		{http.MethodDelete, "/api/users/me", h.deactivateMe},
		{http.MethodPut, "/api/users/change-password", h.changePassword},
		{http.MethodPost, "/api/users/upload-avatar", h.uploadAvatar},
		{http.MethodPost, "/api/users/upload-resume", h.uploadResume},
		{http.MethodPost, "/api/users/upload-logo", h.uploadLogo},

		{http.MethodGet, "/api/admin/dashboard", h.dashboard},
		{http.MethodGet, "/api/admin/users", h.adminUsers},
		{http.MethodPut, "/api/admin/users/{id}/verify", h.verifyUser},
		{http.MethodPut, "/api/admin/users/{id}/toggle-active", h.toggleActive},
		{http.MethodDelete, "/api/admin/users/{id}", h.deleteUser},
		{http.MethodGet, "/api/admin/internships", h.adminPostings},
		{http.MethodPut, "/api/admin/internships/{id}/feature", h.toggleFeatured},
		{http.MethodDelete, "/api/admin/internships/{id}", h.adminDeletePosting},
		{http.MethodGet, "/api/admin/applications", h.adminApplications},
	}
}

// statusWriter remembers the status code written through it.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(rt route) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		rt.handle(sw, r, params)
		h.recorder.Request(rt.method, rt.pattern, sw.code)
	}
}

func (h *Handler) routingError(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, r *http.Request, code int) {
	switch code {
	case http.StatusNotFound:
		fail(w, code, "Route not found")
	case http.StatusMethodNotAllowed:
		fail(w, code, "Method not allowed")
	default:
		fail(w, code, http.StatusText(code))
	}
	h.recorder.Request(r.Method, "unmatched", code)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	ok(w, "Server is running", nil)
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: Invalid request body", e.ErrInvalidInput)
	}
	return h.check(dst)
}

func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: Invalid request", e.ErrInvalidInput)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", e.ErrInvalidInput, fe.Field())
	case "email":
		return fmt.Errorf("%w: Please provide a valid email", e.ErrInvalidInput)
	case "min":
		return fmt.Errorf("%w: %s must be at least %s characters", e.ErrInvalidInput, fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%w: Invalid value for %s", e.ErrInvalidInput, fe.Field())
	}
}

func pathID(params map[string]string) (uuid.UUID, error) {
	id, err := uuid.Parse(params["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: Invalid ID", e.ErrInvalidInput)
	}
	return id, nil
}

// pageFrom reads the page/limit query parameters.
func pageFrom(r *http.Request, defaultLimit int) models.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return models.NewPage(page, limit, defaultLimit)
}

func queryInt(r *http.Request, key string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: Invalid value for %s", e.ErrInvalidInput, key)
	}
	return &n, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: Invalid value for %s", e.ErrInvalidInput, key)
	}
	return &b, nil
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: Invalid value for %s", e.ErrInvalidInput, key)
	}
	return &id, nil
}

// TrustProxies lists the addresses or CIDR ranges of reverse proxies whose
// X-Forwarded-For header is believed.
func (h *Handler) TrustProxies(proxies ...string) error {
	prefixes := make([]netip.Prefix, 0, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(p); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	h.proxies = prefixes
	return nil
}

func (h *Handler) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range h.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP is the connection address. Behind a trusted proxy it is the
// rightmost X-Forwarded-For hop that is not itself a trusted proxy.
func (h *Handler) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !h.trusted(peer) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return host
		}
		if !h.trusted(hop) {
			return hop.Unmap().String()
		}
	}
	return host
}

func (h *Handler) throttled(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil || h.limiter.Allow(r.Context(), "auth:"+h.clientIP(r)) {
		return false
	}
	fail(w, http.StatusTooManyRequests, "Too many requests, please try again later")
	return true
}
