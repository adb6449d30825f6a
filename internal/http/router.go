package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/authserve/internal/rate"
)

// Scopes por grupo de rutas. "all" NO cubre read/write/delete implícito:
// cada ruta lo lista explícito.
const (
	scopeUserRead   = "auth.user.read"
	scopeUserWrite  = "auth.user.write"
	scopeUserAll    = "auth.user.all"
	scopeRoleRead   = "auth.role.read"
	scopeRoleWrite  = "auth.role.write"
	scopeRoleDelete = "auth.role.delete"
	scopeRoleAll    = "auth.role.all"
	scopePermRead   = "auth.permission.read"
	scopePermWrite  = "auth.permission.write"
	scopePermDelete = "auth.permission.delete"
	scopePermAll    = "auth.permission.all"
)

// NewRouter arma el router chi con las rutas públicas, las protegidas por
// scopes y los endpoints operacionales. Los endpoints de credenciales van
// detrás del rate limiter.
func NewRouter(h *Handlers, auth *Authenticator, limiter rate.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// públicas
	r.Get("/.well-known/jwks.json", h.JWKS)
	r.With(RateLimit(limiter)).Post("/signup", h.Signup)
	r.With(RateLimit(limiter)).Post("/user/login", h.Login)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// protegidas
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.With(RequireScopes(scopeUserRead, scopeUserAll)).Get("/v1/me", h.Me)
		r.With(RequireScopes(scopeUserWrite, scopeUserAll)).Post("/v1/users/{userID}/active", h.SetUserActive)

		r.Route("/v1/roles", func(r chi.Router) {
			r.With(RequireScopes(scopeRoleRead, scopeRoleAll)).Get("/", h.ListRoles)
			r.With(RequireScopes(scopeRoleWrite, scopeRoleAll)).Post("/", h.CreateRole)
			r.With(RequireScopes(scopeRoleDelete, scopeRoleAll)).Delete("/{roleID}", h.DeleteRole)
			r.With(RequireScopes(scopeRoleWrite, scopeRoleAll)).Post("/assign", h.AssignRole)
			r.With(RequireScopes(scopeRoleWrite, scopeRoleAll)).Post("/remove", h.RemoveRole)
			r.With(RequireScopes(scopeRoleWrite, scopeRoleAll)).Post("/permissions/attach", h.AttachPermission)
			r.With(RequireScopes(scopeRoleWrite, scopeRoleAll)).Post("/permissions/detach", h.DetachPermission)
		})

		r.Route("/v1/permissions", func(r chi.Router) {
			r.With(RequireScopes(scopePermRead, scopePermAll)).Get("/", h.ListPermissions)
			r.With(RequireScopes(scopePermWrite, scopePermAll)).Post("/", h.CreatePermission)
			r.With(RequireScopes(scopePermDelete, scopePermAll)).Delete("/{permissionID}", h.DeletePermission)
		})

		// rotación: operación administrativa, gateada por el scope más alto
		r.With(RequireScopes(scopePermAll)).Post("/admin/keys/rotate", h.RotateKeys)
	})

	return r
}
