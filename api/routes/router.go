package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/smartaccess-backend/api/controllers"
	"github.com/angelmondragon/smartaccess-backend/api/middleware"
	"github.com/angelmondragon/smartaccess-backend/internal/audit"
	"github.com/angelmondragon/smartaccess-backend/internal/auth"
	"github.com/angelmondragon/smartaccess-backend/internal/doors"
	"github.com/angelmondragon/smartaccess-backend/internal/identities"
	"github.com/angelmondragon/smartaccess-backend/internal/locks"
	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/internal/reports"
	"github.com/angelmondragon/smartaccess-backend/pkg/auth/session"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/angelmondragon/smartaccess-backend/pkg/redis"
)

// Dependencies carries everything the router mounts. Nil services make
// their endpoints answer with an internal error.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	RateLimiter redis.RateLimiter
	Sessions    session.AccessSessionChecker
	Metrics     prometheus.Gatherer

	Auth       auth.Service
	Identities identities.Service
	Profiles   profiles.Service
	Doors      doors.Service
	Locks      locks.Service
	Reports    reports.Service
	Audit      audit.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginUsernameLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	authenticated := middleware.Auth(cfg.JWT, deps.Sessions, deps.Identities, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, deps.RateLimiter, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.With(authenticated).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/me", controllers.Me(deps.Identities, logg))
			r.Patch("/me", controllers.UpdateMe(deps.Identities, logg))

			r.Route("/identities", func(r chi.Router) {
				r.Get("/", controllers.ListIdentities(deps.Identities, logg))
				r.Post("/", controllers.CreateIdentity(deps.Identities, logg))
				r.Get("/{id}", controllers.GetIdentity(deps.Identities, logg))
				r.Patch("/{id}", controllers.UpdateIdentity(deps.Identities, logg))
				r.Delete("/{id}", controllers.DeleteIdentity(deps.Identities, logg))
			})

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", controllers.ListProfiles(deps.Profiles, logg))
				r.Post("/", controllers.CreateProfile(deps.Profiles, logg))
				r.Get("/lookup", controllers.LookupProfile(deps.Profiles, logg))
				r.Get("/{id}", controllers.GetProfile(deps.Profiles, logg))
				r.Patch("/{id}", controllers.UpdateProfile(deps.Profiles, logg))
				r.Put("/{id}/access-code", controllers.UpdateAccessCode(deps.Profiles, logg))
				r.Get("/{id}/capabilities", controllers.ProfileCapabilities(deps.Profiles, logg))
			})

			r.Route("/doors", func(r chi.Router) {
				r.Get("/", controllers.ListDoors(deps.Doors, logg))
				r.Post("/", controllers.CreateDoor(deps.Doors, logg))
				r.Post("/bulk/state", controllers.BulkDoorState(deps.Doors, logg))
				r.Post("/bulk/active", controllers.BulkDoorActive(deps.Doors, logg))
				r.Get("/{id}", controllers.GetDoor(deps.Doors, logg))
				r.Patch("/{id}", controllers.UpdateDoor(deps.Doors, logg))
				r.Delete("/{id}", controllers.DeleteDoor(deps.Doors, logg))
				r.Post("/{id}/open", controllers.SetDoorState(deps.Doors, enums.DoorStateOpen, logg))
				r.Post("/{id}/close", controllers.SetDoorState(deps.Doors, enums.DoorStateClosed, logg))
			})

			r.Route("/locks", func(r chi.Router) {
				r.Get("/", controllers.ListLocks(deps.Locks, logg))
				r.Post("/bulk/engage", controllers.BulkSetLock(deps.Locks, true, logg))
				r.Post("/bulk/disengage", controllers.BulkSetLock(deps.Locks, false, logg))
				r.Get("/{doorId}", controllers.GetLock(deps.Locks, logg))
				r.Post("/{doorId}/engage", controllers.SetLock(deps.Locks, true, logg))
				r.Post("/{doorId}/disengage", controllers.SetLock(deps.Locks, false, logg))
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/summary", controllers.ReportSummary(deps.Reports, logg))
				r.Get("/export", controllers.ReportExport(deps.Reports, logg))
			})

			r.Get("/audit", controllers.ListAuditEvents(deps.Audit, logg))
		})
	})

	return r
}
