// Package httpapi exposes the authentication service over REST.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gymgate.io/internal/auth"
	"gymgate.io/internal/obs"
)

const maxBodySize = 1 << 20 // 1 MiB

// Pinger reports backing-store health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API carries every dependency the handlers need. Constructed once in main;
// nothing here is a package-level singleton.
type API struct {
	service  *auth.Service
	rotation *auth.RotationService
	issuer   *auth.TokenIssuer
	store    auth.Store
	health   Pinger
	log      *zap.SugaredLogger

	corsOrigins   []string
	authPerMinute int
	authBurst     int
}

// Option tweaks router construction.
type Option func(*API)

// WithCORSOrigins restricts cross-origin access to the given origins. The
// default reflects any origin, which suits development only.
func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

// WithAuthRateLimit overrides the per-IP budget on credential endpoints.
func WithAuthRateLimit(perMinute, burst int) Option {
	return func(a *API) {
		if perMinute > 0 {
			a.authPerMinute = perMinute
		}
		if burst > 0 {
			a.authBurst = burst
		}
	}
}

func New(service *auth.Service, rotation *auth.RotationService, issuer *auth.TokenIssuer, store auth.Store, health Pinger, log *zap.SugaredLogger, opts ...Option) *API {
	a := &API{
		service:       service,
		rotation:      rotation,
		issuer:        issuer,
		store:         store,
		health:        health,
		log:           log,
		authPerMinute: 30,
		authBurst:     10,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router builds the full route tree. Credential endpoints sit behind a
// per-IP rate limit; everything under the protected group requires a valid
// access token before role checks apply.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(a.log))
	r.Use(SecurityHeaders)
	r.Use(CORS(a.corsOrigins))
	r.Use(MaxBodyBytes(maxBodySize))

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(RateLimit(a.authPerMinute, a.authBurst))
				r.Post("/register", a.handleRegister)
				r.Post("/login", a.handleLogin)
				r.Post("/refresh", a.handleRefresh)
				r.Post("/verify-email", a.handleVerifyEmail)
				r.Post("/request-password-reset", a.handleRequestPasswordReset)
				r.Post("/reset-password", a.handleResetPassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(a.withAuth)
				r.Post("/logout", a.handleLogout)
				r.Post("/change-password", a.handleChangePassword)
				r.Get("/me", a.handleMe)
				r.Get("/sessions", a.handleListSessions)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.With(RequireRole(auth.RoleManager, auth.RoleAdmin, auth.RoleSuperAdmin)).
				Post("/admin/accounts", a.handleAdminCreateAccount)

			r.With(RequireOwnershipOrAdmin("accountID")).
				Get("/accounts/{accountID}", a.handleGetAccount)

			r.With(RequireBranchAccess("branchID")).
				Get("/branches/{branchID}/members", a.handleBranchMembers)
		})
	})

	return obs.Instrument(r)
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
