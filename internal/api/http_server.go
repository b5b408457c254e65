package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"physioheal/internal/config"
	"physioheal/internal/domain"
	"physioheal/internal/metrics"
	"physioheal/internal/models"
	"physioheal/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// SheetsResyncer rewrites the bookings spreadsheet from the store.
type SheetsResyncer interface {
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

// FailedTaskLister reports sync tasks that ran out of retries.
type FailedTaskLister interface {
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
}

// Services are the collaborators behind the HTTP routes.
// Resync and FailedTasks may be nil.
type Services struct {
	Booking     *service.BookingService
	Contact     *service.ContactService
	Catalog     *service.CatalogService
	State       *service.StateService
	Admin       *service.AdminService
	Reader      domain.SubmissionReader
	Resync      SheetsResyncer
	FailedTasks FailedTaskLister
}

// HTTPServer exposes the site API and the admin endpoints.
type HTTPServer struct {
	cfg     *config.APIConfig
	svc     Services
	server  *http.Server
	auth    *HTTPAuth
	limiter *rateLimiter
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	limiter := newRateLimiter(cfg.RateLimit)
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		auth:    NewHTTPAuth(cfg, limiter),
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if s.cfg.HTTP.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(CORS(s.cfg.CORSOrigins))
	}
	r.Use(s.rateLimit)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/services", s.handleServices)
		r.Get("/clinic", s.handleClinic)
		r.Get("/booking/options", s.handleBookingOptions)

		r.Route("/booking/sessions", func(r chi.Router) {
			r.Post("/", s.handleOpenSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Patch("/", s.handleSetFields)
				r.Delete("/", s.handleCloseSession)
				r.Post("/next", s.handleNext)
				r.Post("/back", s.handleBack)
				r.With(s.formLimit("booking")).Post("/confirm", s.handleConfirm)
			})
		})

		r.With(s.formLimit("contact")).Post("/contact", s.handleContact)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Wrap)
			r.Get("/bookings", s.handleAdminBookings)
			r.Get("/bookings/export", s.handleAdminExport)
			r.Get("/bookings/{id}", s.handleAdminBooking)
			r.Patch("/bookings/{id}", s.handleAdminBookingStatus)
			r.Get("/contacts", s.handleAdminContacts)
			r.Get("/contacts/{id}", s.handleAdminContact)
			r.Post("/sheets/resync", s.handleAdminResync)
			r.Get("/sheets/failed", s.handleAdminFailedTasks)
		})
	})

	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// rateLimit applies the per-address token bucket to every route.
// Request headers never pick the bucket.
func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// formLimit caps form submissions per client address with the shared
// session store, so the window holds across instances.
func (s *HTTPServer) formLimit(form string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.svc.State != nil {
				key := form + ":" + clientIP(r)
				ok, err := s.svc.State.CheckRateLimit(r.Context(), key, models.RateLimitRequests, models.RateLimitWindow)
				if err != nil {
					s.logger.Warn().Err(err).Str("key", key).Msg("Rate limit check failed")
				} else if !ok {
					writeError(w, http.StatusTooManyRequests, "too many submissions, please try again later")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.IncHTTP(route, strconv.Itoa(recorder.status))

		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// HTTPAuth provides API-key auth for the admin endpoints.
type HTTPAuth struct {
	cfg     *config.APIConfig
	keys    apiKeys
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig, limiter *rateLimiter) *HTTPAuth {
	if limiter == nil {
		limiter = newRateLimiter(cfg.RateLimit)
	}
	return &HTTPAuth{cfg: cfg, keys: newAPIKeys(cfg.Auth), limiter: limiter}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if a.cfg.Auth.Enabled {
			client, statusCode, err := a.checkAuth(r)
			if err != nil {
				writeError(w, statusCode, err.Error())
				return
			}
			// Свой бакет у каждого проверенного ключа
			if !a.limiter.Allow(verifiedKey(client)) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = errors.New("permission denied")

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, int, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.keys.headerKey))
	extra := strings.TrimSpace(r.Header.Get(a.keys.headerExtra))

	client, reason := a.keys.lookup(apiKey, extra)
	if reason != "" {
		return config.APIClientKey{}, http.StatusUnauthorized, errors.New(reason)
	}
	if !hasPermission(client, requiredPermissionHTTP(r)) {
		return config.APIClientKey{}, http.StatusForbidden, errPermissionDenied
	}
	return client, http.StatusOK, nil
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/admin/bookings") && r.Method == http.MethodPatch:
		return permWriteBookings
	case strings.HasPrefix(path, "/api/v1/admin/bookings"):
		return permReadBookings
	case strings.HasPrefix(path, "/api/v1/admin/contacts"):
		return permReadContacts
	case strings.HasPrefix(path, "/api/v1/admin/sheets"):
		return permSyncSheets
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return clientKeyUnknown
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
