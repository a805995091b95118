// Package httpapi is the HTTP surface of the service. Handlers decode
// and route; authorization and business rules live in the services.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"grcore.org/internal/access"
	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/obs"
	"grcore.org/internal/report"
	"grcore.org/internal/risk"
)

// ReadyProbe reports readiness, pinging the database when one is wired.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services bundles the domain services the API fronts.
type Services struct {
	Auth       *auth.Service
	Access     *access.Service
	Risks      *risk.Service
	Compliance *compliance.Service
	Reports    *report.Service
	Audit      *audit.Recorder
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        Services
	readyProbe ReadyProbe
	version    string
	rateBurst  int
	ratePerSec int
}

// Option configures the API.
type Option func(*API)

// WithRateLimit sets the per-client token bucket. Zero disables it.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

func New(svc Services, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		readyProbe: rp,
		version:    version,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/me", a.handleMe)

	a.mux.HandleFunc("/users", a.handleUsers)
	a.mux.HandleFunc("/users/", a.handleUserScoped)

	a.mux.HandleFunc("/access-requests", a.handleAccessRequests)
	a.mux.HandleFunc("/access-requests/", a.handleAccessRequestScoped)

	a.mux.HandleFunc("/risks", a.handleRisks)
	a.mux.HandleFunc("/risks/", a.handleRiskScoped)

	a.mux.HandleFunc("/compliance/frameworks", a.handleFrameworks)
	a.mux.HandleFunc("/compliance/controls", a.handleControls)
	a.mux.HandleFunc("/compliance/mappings", a.handleMappings)

	a.mux.HandleFunc("/reports/access-reviews", a.handleAccessReviewsReport)
	a.mux.HandleFunc("/reports/risk-summary", a.handleRiskSummaryReport)
	a.mux.HandleFunc("/reports/compliance-gap", a.handleComplianceGapReport)

	a.mux.HandleFunc("/audit", a.handleAuditLog)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler composes the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	if a.rateBurst > 0 && a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "grcore-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
