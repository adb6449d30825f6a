package rbac

import (
	"context"
	"reflect"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/authserve/internal/cache"
	"github.com/dropDatabas3/authserve/internal/jwt"
	"github.com/dropDatabas3/authserve/internal/store/core"
)

// fakeRBACStore implementa las dos queries de resolución y cuenta las
// llamadas para poder afirmar que un hit caliente no toca el store.
type fakeRBACStore struct {
	core.RBACRepository

	roles map[string][]core.Role // key tenant:user
	perms map[int64][]string

	roleCalls atomic.Int64
	permCalls atomic.Int64
}

func (f *fakeRBACStore) GetUserRoles(ctx context.Context, tenantID, userID string) ([]core.Role, error) {
	f.roleCalls.Add(1)
	return f.roles[tenantID+":"+userID], nil
}

func (f *fakeRBACStore) GetRolePermissions(ctx context.Context, tenantID string, roleID int64) ([]string, error) {
	f.permCalls.Add(1)
	return f.perms[roleID], nil
}

func sortedScopes(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func TestResolver_ColdAndWarmAgree(t *testing.T) {
	ctx := context.Background()
	store := &fakeRBACStore{
		roles: map[string][]core.Role{
			"t1:u1": {{ID: 1, TenantID: "t1", Name: "owner", Type: core.RoleSystem}},
		},
		perms: map[int64][]string{
			1: {"auth.user.read", "auth.user.write"},
		},
	}
	r := NewResolver(store, NewCache(cache.NewMemory("test", 0)))

	cold, err := r.ResolveScopes(ctx, "t1", "u1")
	if err != nil {
		t.Fatalf("cold resolve: %v", err)
	}
	warm, err := r.ResolveScopes(ctx, "t1", "u1")
	if err != nil {
		t.Fatalf("warm resolve: %v", err)
	}
	if !reflect.DeepEqual(sortedScopes(cold), sortedScopes(warm)) {
		t.Fatalf("cold %v != warm %v", sortedScopes(cold), sortedScopes(warm))
	}
	if got := store.roleCalls.Load(); got != 1 {
		t.Fatalf("store hit %d times, warm path must not touch it", got)
	}
}

func TestResolver_EmptyGrantSetIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := &fakeRBACStore{roles: map[string][]core.Role{}, perms: map[int64][]string{}}
	r := NewResolver(store, NewCache(cache.NewMemory("test", 0)))

	scopes, err := r.ResolveScopes(ctx, "t1", "nobody")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(scopes) != 0 {
		t.Fatalf("expected empty set, got %v", scopes)
	}
	// Sin roles no hay nada que poblar: la segunda resolución vuelve al store.
	if _, err := r.ResolveScopes(ctx, "t1", "nobody"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if got := store.roleCalls.Load(); got != 2 {
		t.Fatalf("expected 2 store calls, got %d", got)
	}
}

func TestResolver_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	store := &fakeRBACStore{
		roles: map[string][]core.Role{
			"t1:u1": {{ID: 1, TenantID: "t1", Name: "owner", Type: core.RoleSystem}},
		},
		perms: map[int64][]string{1: {"auth.user.all"}},
	}
	r := NewResolver(store, NewCache(cache.NewMemory("test", 0)))

	if _, err := r.ResolveScopes(ctx, "t1", "u1"); err != nil {
		t.Fatalf("resolve t1: %v", err)
	}
	other, err := r.ResolveScopes(ctx, "t2", "u1")
	if err != nil {
		t.Fatalf("resolve t2: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("scopes leaked across tenants: %v", other)
	}
}

// failingCache siempre falla: la resolución debe degradar al store.
type failingCache struct{ cache.Client }

func (failingCache) Get(ctx context.Context, key string) (string, error) {
	return "", context.DeadlineExceeded
}

func (failingCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return nil, context.DeadlineExceeded
}

func (failingCache) Pipeline() cache.Pipeline { return failingPipe{} }

type failingPipe struct{}

func (failingPipe) Set(key, value string, ttl time.Duration) {}
func (failingPipe) SAdd(key string, members ...string)       {}
func (failingPipe) Exec(ctx context.Context) error           { return context.DeadlineExceeded }

func TestResolver_DegradesWhenCacheIsDown(t *testing.T) {
	ctx := context.Background()
	store := &fakeRBACStore{
		roles: map[string][]core.Role{
			"t1:u1": {{ID: 1, TenantID: "t1", Name: "owner", Type: core.RoleSystem}},
		},
		perms: map[int64][]string{1: {"auth.user.read"}},
	}
	r := NewResolver(store, NewCache(failingCache{}))

	scopes, err := r.ResolveScopes(ctx, "t1", "u1")
	if err != nil {
		t.Fatalf("resolve with broken cache: %v", err)
	}
	if _, ok := scopes["auth.user.read"]; !ok {
		t.Fatalf("expected auth.user.read, got %v", scopes)
	}
}

// Escenario de punta a punta: resolver real + cache en memoria detrás del
// TokenService, con el catálogo mínimo de un owner.
func TestResolver_TokenIssuanceScenario(t *testing.T) {
	ctx := context.Background()
	store := &fakeRBACStore{
		roles: map[string][]core.Role{
			"org-1:user-1": {{ID: 7, TenantID: "org-1", Name: "owner", Type: core.RoleSystem}},
		},
		perms: map[int64][]string{
			7: {"auth.user.read", "auth.user.write"},
		},
	}
	resolver := NewResolver(store, NewCache(cache.NewMemory("test", 0)))

	ksDir := t.TempDir()
	ks, err := jwt.NewKeyStore(ksDir)
	if err != nil {
		t.Fatalf("keystore: %v", err)
	}
	if _, err := ks.CreateKeypair(); err != nil {
		t.Fatalf("keypair: %v", err)
	}
	svc := jwt.NewTokenService(ks, resolver, time.Minute)

	// Request vacío: full grant.
	token, err := svc.Issue(ctx, "user-1", "org-1", nil)
	if err != nil {
		t.Fatalf("issue full grant: %v", err)
	}
	p, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !reflect.DeepEqual(p.Scopes, []string{"auth.user.read", "auth.user.write"}) {
		t.Fatalf("scopes = %v", p.Scopes)
	}

	// Request achicado.
	token, err = svc.Issue(ctx, "user-1", "org-1", []string{"auth.user.read"})
	if err != nil {
		t.Fatalf("issue narrowed: %v", err)
	}
	p, _ = svc.Verify(token)
	if !reflect.DeepEqual(p.Scopes, []string{"auth.user.read"}) {
		t.Fatalf("scopes = %v", p.Scopes)
	}

	// Scope nunca otorgado: negado, sin token.
	if _, err := svc.Issue(ctx, "user-1", "org-1", []string{"auth.project.read"}); err == nil {
		t.Fatalf("expected denial for ungranted scope")
	}
}
