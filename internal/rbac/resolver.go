// Package rbac computa el grant set de un principal caminando el grafo
// rol→permiso del system of record, con una capa cache-aside adelante.
package rbac

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/authserve/internal/metrics"
	"github.com/dropDatabas3/authserve/internal/observability/logger"
	"github.com/dropDatabas3/authserve/internal/store/core"
)

// Resolver resuelve scopes cache-first. Un miss cae al system of record y
// puebla la cache al salir; misses concurrentes para el mismo (tenant,user)
// se colapsan con singleflight (el valor es derivado e idempotente, así que
// last-write-wins entre réplicas igual es inofensivo).
type Resolver struct {
	store core.RBACRepository
	cache *Cache
	sf    singleflight.Group
}

func NewResolver(store core.RBACRepository, cache *Cache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// ResolveScopes devuelve el set completo de scopes otorgados a (tenant,
// user). Set vacío NO es error: el caller (TokenService) lo trata como
// "nada otorgado". El resultado es idéntico venga de cache caliente o de
// recomputar contra el store.
func (r *Resolver) ResolveScopes(ctx context.Context, tenantID, userID string) (map[string]struct{}, error) {
	if scopes, ok := r.cache.GetScopes(ctx, tenantID, userID); ok {
		return scopes, nil
	}

	v, err, _ := r.sf.Do(tenantID+"\x00"+userID, func() (any, error) {
		return r.resolveFromStore(ctx, tenantID, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]struct{}), nil
}

func (r *Resolver) resolveFromStore(ctx context.Context, tenantID, userID string) (map[string]struct{}, error) {
	start := time.Now()
	defer func() { metrics.ScopeResolutions.Observe(time.Since(start).Seconds()) }()

	roles, err := r.store.GetUserRoles(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	scopes := make(map[string]struct{})
	roleNames := make([]string, 0, len(roles))
	permsByRole := make(map[string][]string, len(roles))

	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
		perms, err := r.store.GetRolePermissions(ctx, tenantID, role.ID)
		if err != nil {
			return nil, err
		}
		for _, slug := range perms {
			scopes[slug] = struct{}{}
		}
		permsByRole[role.Name] = perms
	}

	// Cache warming best-effort: si falla no afecta la resolución.
	r.cache.Populate(ctx, tenantID, userID, roleNames, permsByRole)

	logger.Named("rbac").Debug("scopes resolved from store",
		logger.TenantID(tenantID), logger.UserID(userID))
	return scopes, nil
}
