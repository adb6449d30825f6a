package rbac

import (
	"context"
	"encoding/json"

	"github.com/dropDatabas3/authserve/internal/cache"
	"github.com/dropDatabas3/authserve/internal/metrics"
	"github.com/dropDatabas3/authserve/internal/observability/logger"
	"github.com/dropDatabas3/authserve/internal/store/core"
)

// Esquema de keys, espejo de las queries del system of record:
//
//	user:{id}                    principal serializado (JSON)
//	user_roles:{tenant}:{user}   set de nombres de rol
//	role_perm:{tenant}:{role}    set de slugs de permiso
func keyUser(userID string) string { return "user:" + userID }

func keyUserRoles(tenantID, userID string) string { return "user_roles:" + tenantID + ":" + userID }

func keyRolePerm(tenantID, roleName string) string { return "role_perm:" + tenantID + ":" + roleName }

// Cache es la capa cache-aside del core de autorización. Toda falla de
// lectura degrada a "miss" (se resuelve del system of record) y toda falla
// de escritura se loggea y se traga: poblar es solo una optimización.
type Cache struct {
	c cache.Client
}

func NewCache(c cache.Client) *Cache { return &Cache{c: c} }

// GetUser devuelve el principal cacheado, o false si no está.
func (rc *Cache) GetUser(ctx context.Context, userID string) (*core.User, bool) {
	raw, err := rc.c.Get(ctx, keyUser(userID))
	if err != nil {
		if !cache.IsNotFound(err) {
			metrics.CacheLookups.WithLabelValues("user", "error").Inc()
			logger.Named("rbac.cache").Warn("user read failed", logger.UserID(userID), logger.Err(err))
		} else {
			metrics.CacheLookups.WithLabelValues("user", "miss").Inc()
		}
		return nil, false
	}
	var u core.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		metrics.CacheLookups.WithLabelValues("user", "error").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("user", "hit").Inc()
	return &u, true
}

// SetUser puebla el principal. Escritura explícita post-autorización, no
// implícita en cada lectura.
func (rc *Cache) SetUser(ctx context.Context, u *core.User) {
	b, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := rc.c.Set(ctx, keyUser(u.ID), string(b), 0); err != nil {
		logger.Named("rbac.cache").Warn("user write failed", logger.UserID(u.ID), logger.Err(err))
	}
}

// InvalidateUser borra el principal cacheado (lo usa el toggle de activo).
func (rc *Cache) InvalidateUser(ctx context.Context, userID string) {
	_ = rc.c.Delete(ctx, keyUser(userID))
}

// GetRoleNames devuelve el set de roles cacheado para (tenant, user).
func (rc *Cache) GetRoleNames(ctx context.Context, tenantID, userID string) ([]string, bool) {
	names, err := rc.c.SMembers(ctx, keyUserRoles(tenantID, userID))
	if err != nil {
		if !cache.IsNotFound(err) {
			metrics.CacheLookups.WithLabelValues("user_roles", "error").Inc()
			logger.Named("rbac.cache").Warn("role names read failed",
				logger.TenantID(tenantID), logger.UserID(userID), logger.Err(err))
		} else {
			metrics.CacheLookups.WithLabelValues("user_roles", "miss").Inc()
		}
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("user_roles", "hit").Inc()
	return names, true
}

// GetRolePermissions devuelve el set de slugs cacheado para (tenant, rol).
func (rc *Cache) GetRolePermissions(ctx context.Context, tenantID, roleName string) ([]string, bool) {
	perms, err := rc.c.SMembers(ctx, keyRolePerm(tenantID, roleName))
	if err != nil {
		if !cache.IsNotFound(err) {
			metrics.CacheLookups.WithLabelValues("role_perm", "error").Inc()
		} else {
			metrics.CacheLookups.WithLabelValues("role_perm", "miss").Inc()
		}
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("role_perm", "hit").Inc()
	return perms, true
}

// GetScopes compone role-names + role-perms. El segundo retorno distingue
// el null-sentinel: false significa "roles ausentes de la cache, resolver
// del system of record"; (set vacío, true) significa "resuelto a cero
// scopes", que es un resultado válido.
func (rc *Cache) GetScopes(ctx context.Context, tenantID, userID string) (map[string]struct{}, bool) {
	roles, ok := rc.GetRoleNames(ctx, tenantID, userID)
	if !ok {
		return nil, false
	}
	scopes := make(map[string]struct{})
	for _, role := range roles {
		perms, ok := rc.GetRolePermissions(ctx, tenantID, role)
		if !ok {
			continue
		}
		for _, p := range perms {
			scopes[p] = struct{}{}
		}
	}
	return scopes, true
}

// Populate escribe los sets derivados de una resolución en un solo batch.
// Best-effort: el error se loggea, nunca se propaga.
func (rc *Cache) Populate(ctx context.Context, tenantID, userID string, roleNames []string, permsByRole map[string][]string) {
	if len(roleNames) == 0 {
		return
	}
	pipe := rc.c.Pipeline()
	pipe.SAdd(keyUserRoles(tenantID, userID), roleNames...)
	for role, perms := range permsByRole {
		pipe.SAdd(keyRolePerm(tenantID, role), perms...)
	}
	if err := pipe.Exec(ctx); err != nil {
		logger.Named("rbac.cache").Warn("populate failed",
			logger.TenantID(tenantID), logger.UserID(userID), logger.Err(err))
	}
}
