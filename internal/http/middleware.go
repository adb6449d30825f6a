package http

import (
	"errors"
	"net/http"
	"strings"

	jwtx "github.com/dropDatabas3/authserve/internal/jwt"
	"github.com/dropDatabas3/authserve/internal/observability/logger"
	"github.com/dropDatabas3/authserve/internal/rbac"
	"github.com/dropDatabas3/authserve/internal/store/core"
)

// Authenticator extrae y valida el bearer token, carga el principal
// (cache-first) y deja en el contexto los scopes efectivos: la intersección
// entre los scopes del token y el grant set ACTUAL del principal. Un rol
// revocado deja de valer en cuanto la cache expira, aunque el token siga
// vigente.
type Authenticator struct {
	Tokens   *jwtx.TokenService
	Users    core.UserRepository
	Cache    *rbac.Cache
	Resolver *rbac.Resolver
}

func bearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah == "" {
		return ""
	}
	if i := strings.IndexByte(ah, ' '); i > 0 && strings.EqualFold(ah[:i], "Bearer") {
		return strings.TrimSpace(ah[i+1:])
	}
	return ""
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := bearerToken(r)
		if raw == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		payload, err := a.Tokens.Verify(raw)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			// expirado se reporta aparte para que el cliente re-autentique
			if errors.Is(err, jwtx.ErrExpiredToken) {
				WriteError(w, http.StatusUnauthorized, "expired_token", "token expired")
				return
			}
			// no filtrar detalle: un token inválido no revela si el sub existe
			WriteError(w, http.StatusUnauthorized, "invalid_token", "could not validate credentials")
			return
		}

		// Principal: cache primero, fallback al store.
		user, ok := a.Cache.GetUser(ctx, payload.Subject)
		if !ok {
			user, err = a.Users.GetUserByID(ctx, payload.Subject)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "invalid_token", "could not validate credentials")
				return
			}
		}

		// Inactivo deniega siempre, antes de mirar scopes. Se chequea contra
		// el estado actual, no contra nada embebido en el token.
		if !user.Active {
			WriteError(w, http.StatusForbidden, "inactive_principal", "inactive user")
			return
		}

		granted, err := a.Resolver.ResolveScopes(ctx, user.TenantID, user.ID)
		if err != nil {
			logger.Named("http.auth").Error("scope resolution failed",
				logger.UserID(user.ID), logger.Err(err))
			WriteError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}
		effective := make(map[string]struct{})
		for _, s := range payload.Scopes {
			if _, ok := granted[s]; ok {
				effective[s] = struct{}{}
			}
		}

		// Población explícita post-autorización (no implícita por lectura).
		if !ok {
			a.Cache.SetUser(ctx, user)
		}

		next.ServeHTTP(w, r.WithContext(withAuth(ctx, user, effective)))
	})
}

// RequireScopes gatea un endpoint: alcanza con que UN scope requerido esté
// presente (OR). "all" matchea solo si la ruta lo lista explícito.
func RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted := GrantedScopes(r.Context())
			for _, s := range scopes {
				if _, ok := granted[s]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, http.StatusForbidden, "insufficient_scope", "not enough permissions")
		})
	}
}
