package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/guard"
	"github.com/dropDatabas3/portal/internal/http/middlewares"
	"github.com/dropDatabas3/portal/internal/notify"
	"github.com/dropDatabas3/portal/internal/rate"
	"github.com/dropDatabas3/portal/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SessionStore es lo que el dashboard usa del store de sesión.
type SessionStore interface {
	Snapshot() session.State
	Login(ctx context.Context, cr api.Credentials) (session.LoginResult, error)
	Logout(ctx context.Context) error
}

// PlanService es el CRUD de planes con cache.
type PlanService interface {
	List(ctx context.Context) ([]types.Plan, error)
	Create(ctx context.Context, in types.PlanInput) (types.Plan, error)
	Update(ctx context.Context, id int64, in types.PlanInput) (types.Plan, error)
	Delete(ctx context.Context, id int64) error
}

// NoticeSource lista los avisos recientes.
type NoticeSource interface {
	All() []notify.Notification
}

// Config agrupa las dependencias del dashboard.
type Config struct {
	Addr    string
	Session SessionStore
	Plans   PlanService  // opcional: sin él no hay /admin/plans
	Notices NoticeSource // opcional
	Guard   guard.Options
	CSRF    middlewares.CSRFConfig
	// LoginLimiter frena intentos de POST /login por IP; nil no limita.
	LoginLimiter rate.Limiter
	// Metrics sirve /metrics; nil lo omite.
	Metrics         http.Handler
	Logger          *zap.Logger
	ShutdownTimeout time.Duration
}

var errNoSession = errors.New("http: session store is required")

// NewRouter arma el router chi del dashboard.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Session == nil {
		return nil, errNoSession
	}
	h := &handlers{cfg: cfg}
	src := cfg.Session

	r := chi.NewRouter()
	r.Use(
		middlewares.WithRequestID(),
		middlewares.WithLogging(cfg.Logger),
		middlewares.WithRecover(),
		WithMetrics,
	)

	r.Get("/healthz", h.health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middlewares.WithCSRF(cfg.CSRF))

		r.Get("/login", h.loginPage)
		r.With(middlewares.WithRateLimit(cfg.LoginLimiter, "login")).Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.Get("/api/session", h.session)

		r.With(middlewares.RequireUser(src, cfg.Guard)).Get("/dashboard", h.dashboard)
		r.With(middlewares.RequireCapability(src, types.CapViewDonations, http.HandlerFunc(h.donationsLocked))).
			Get("/widgets/donations", h.donations)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewares.RequireAdmin(src, cfg.Guard))
			r.Get("/", h.admin)
			if cfg.Plans == nil {
				return
			}
			r.Route("/plans", func(r chi.Router) {
				// sin la capability responde 403
				r.Use(middlewares.RequireCapability(src, types.CapManagePlans, http.HandlerFunc(h.plansForbidden)))
				r.Get("/", h.listPlans)
				r.Post("/", h.createPlan)
				r.Put("/{id}", h.updatePlan)
				r.Delete("/{id}", h.deletePlan)
			})
		})
	})

	return r, nil
}
