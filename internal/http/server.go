// Package http exposes the budget service as a JSON API.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	"budget/internal/services"
)

// SettingsService is the part of the settings service the API exposes.
type SettingsService interface {
	All(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, key, value string) (core.Setting, error)
}

// ReadinessCheck is a named dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *log.Logger
	Checks             []ReadinessCheck
	Metrics            *metrics.Metrics
}

// Server wraps a configured http.Server with its dependencies.
type Server struct {
	http.Server
	budget   *services.BudgetService
	settings SettingsService
	checks   []ReadinessCheck
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	metrics  *metrics.Metrics
	logger   *log.Logger
	events   *log.StructuredLogger
	started  time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(budget *services.BudgetService, st SettingsService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		budget:   budget,
		settings: st,
		checks:   opts.Checks,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		tracer:  trace.NewMiddleware(logger, extractClientIP),
		metrics: m,
		logger:  logger,
		events:  log.NewStructuredLogger(logger),
		started: time.Now(),
	}

	s.registerMetrics()

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = m.Middleware(handler)
	handler = log.ComponentMiddleware(log.ComponentHTTP)(handler)
	handler = s.limiter.Middleware(extractClientIP, ratelimit.WritesOnly, s.handleRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/period", s.handlePeriod)
	mux.HandleFunc("GET /api/period/preview", s.handlePeriodPreview)

	mux.HandleFunc("GET /api/settings", s.handleListSettings)
	mux.HandleFunc("PUT /api/settings/{key}", s.handleUpdateSetting)

	mux.HandleFunc("GET /api/spendings", s.handleListSpendings)
	mux.HandleFunc("POST /api/spendings", s.handleCreateSpending)
	mux.HandleFunc("DELETE /api/spendings/{id}", s.handleDeleteSpending)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("GET /api/categories/{id}/subcategories", s.handleListSubcategories)
	mux.HandleFunc("POST /api/categories/{id}/subcategories", s.handleCreateSubcategory)
	mux.HandleFunc("DELETE /api/subcategories/{id}", s.handleDeleteSubcategory)

	mux.HandleFunc("GET /api/payment-methods", s.handleListPaymentMethods)
	mux.HandleFunc("POST /api/payment-methods", s.handleCreatePaymentMethod)
	mux.HandleFunc("GET /api/payment-methods/default", s.handleDefaultPaymentMethod)
	mux.HandleFunc("PUT /api/payment-methods/default", s.handleSetDefaultPaymentMethod)
	mux.HandleFunc("PUT /api/payment-methods/{id}", s.handleUpdatePaymentMethod)
	mux.HandleFunc("DELETE /api/payment-methods/{id}", s.handleDeletePaymentMethod)

	mux.HandleFunc("GET /api/members", s.handleListMembers)
	mux.HandleFunc("POST /api/members", s.handleCreateMember)
	mux.HandleFunc("PUT /api/members/{id}", s.handleUpdateMember)
	mux.HandleFunc("DELETE /api/members/{id}", s.handleDeleteMember)
}

func (s *Server) registerMetrics() {
	s.metrics.CounterFunc("rate_limit", "rejected_total", "Write requests rejected by the rate limiter.", func() float64 {
		return float64(s.limiter.GetMetrics().Rejected)
	})
	s.metrics.GaugeFunc("rate_limit", "active_clients", "Clients tracked by the rate limiter.", func() float64 {
		return float64(s.limiter.GetMetrics().ClientCount)
	})
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	if err := s.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
		log.FieldClientIP, extractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError("rate limit exceeded, try again later").Write(w)
}

// trustedProxies are the networks allowed to set forwarding headers.
var trustedProxies = []*net.IPNet{
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("::1/128"),
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

func isTrustedProxy(ip net.IP) bool {
	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP returns the peer address, or the forwarded client address
// when the peer is a trusted proxy.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}
