package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/authserve/internal/cache"
	jwtx "github.com/dropDatabas3/authserve/internal/jwt"
	"github.com/dropDatabas3/authserve/internal/rbac"
	"github.com/dropDatabas3/authserve/internal/store/core"
)

type fakeUsers struct {
	byID map[string]*core.User
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	for _, u := range f.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeUsers) SetUserActive(ctx context.Context, id string, active bool) error {
	u, ok := f.byID[id]
	if !ok {
		return core.ErrNotFound
	}
	u.Active = active
	return nil
}

type fakeRBAC struct {
	core.RBACRepository
	roles map[string][]core.Role
	perms map[int64][]string
}

func (f *fakeRBAC) GetUserRoles(ctx context.Context, tenantID, userID string) ([]core.Role, error) {
	return f.roles[tenantID+":"+userID], nil
}

func (f *fakeRBAC) GetRolePermissions(ctx context.Context, tenantID string, roleID int64) ([]string, error) {
	return f.perms[roleID], nil
}

type authFixture struct {
	auth  *Authenticator
	users *fakeUsers
	svc   *jwtx.TokenService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	ks, err := jwtx.NewKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("keystore: %v", err)
	}
	if _, err := ks.CreateKeypair(); err != nil {
		t.Fatalf("keypair: %v", err)
	}

	users := &fakeUsers{byID: map[string]*core.User{
		"u1": {ID: "u1", TenantID: "t1", Username: "ana", Active: true},
	}}
	store := &fakeRBAC{
		roles: map[string][]core.Role{
			"t1:u1": {{ID: 1, TenantID: "t1", Name: "owner", Type: core.RoleSystem}},
		},
		perms: map[int64][]string{1: {"auth.user.read", "auth.user.write"}},
	}
	rc := rbac.NewCache(cache.NewMemory("test", 0))
	resolver := rbac.NewResolver(store, rc)
	svc := jwtx.NewTokenService(ks, resolver, time.Minute)

	return &authFixture{
		auth:  &Authenticator{Tokens: svc, Users: users, Cache: rc, Resolver: resolver},
		users: users,
		svc:   svc,
	}
}

func protectedEcho(fx *authFixture, scopes ...string) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := CurrentUser(r.Context())
		WriteJSON(w, http.StatusOK, map[string]string{"user": u.ID})
	})
	var h http.Handler = inner
	if len(scopes) > 0 {
		h = RequireScopes(scopes...)(h)
	}
	return fx.auth.Middleware(h)
}

func doRequest(t *testing.T, h http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return body.Error
}

func TestMiddleware_MissingToken(t *testing.T) {
	fx := newAuthFixture(t)
	rr := doRequest(t, protectedEcho(fx), "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("WWW-Authenticate = %q", got)
	}
	if errorCode(t, rr) != "unauthorized" {
		t.Fatalf("error = %q", errorCode(t, rr))
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	fx := newAuthFixture(t)
	token, err := fx.svc.Issue(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rr := doRequest(t, protectedEcho(fx), token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestMiddleware_GarbageToken(t *testing.T) {
	fx := newAuthFixture(t)
	rr := doRequest(t, protectedEcho(fx), "definitely.not.ajwt")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if errorCode(t, rr) != "invalid_token" {
		t.Fatalf("error = %q, want invalid_token", errorCode(t, rr))
	}
}

func TestMiddleware_ExpiredTokenIsDistinct(t *testing.T) {
	fx := newAuthFixture(t)

	kid, priv, err := fx.svc.Keys.CurrentSigningKey()
	if err != nil {
		t.Fatalf("current key: %v", err)
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, jwtv5.MapClaims{
		"sub":    "u1",
		"iat":    time.Now().Add(-2 * time.Hour).Unix(),
		"exp":    time.Now().Add(-time.Hour).Unix(),
		"scopes": []string{"auth.user.read"},
	})
	tk.Header["kid"] = kid
	token, err := tk.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rr := doRequest(t, protectedEcho(fx), token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if errorCode(t, rr) != "expired_token" {
		t.Fatalf("error = %q, want expired_token", errorCode(t, rr))
	}
}

func TestMiddleware_InactivePrincipal(t *testing.T) {
	fx := newAuthFixture(t)
	token, err := fx.svc.Issue(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	fx.users.byID["u1"].Active = false

	rr := doRequest(t, protectedEcho(fx), token)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	if errorCode(t, rr) != "inactive_principal" {
		t.Fatalf("error = %q, want inactive_principal", errorCode(t, rr))
	}
}

func TestMiddleware_InsufficientScope(t *testing.T) {
	fx := newAuthFixture(t)
	token, err := fx.svc.Issue(context.Background(), "u1", "t1", []string{"auth.user.read"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// El gate pide write: el token achicado a read no alcanza.
	rr := doRequest(t, protectedEcho(fx, "auth.user.write", "auth.user.all"), token)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	if errorCode(t, rr) != "insufficient_scope" {
		t.Fatalf("error = %q, want insufficient_scope", errorCode(t, rr))
	}

	// Con el scope correcto pasa.
	rr = doRequest(t, protectedEcho(fx, "auth.user.read", "auth.user.all"), token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestMiddleware_UnknownSubjectDoesNotLeak(t *testing.T) {
	fx := newAuthFixture(t)
	// Token válido para un sub inexistente: mismo 401 genérico que un token
	// inválido, sin revelar existencia.
	fx.users.byID["ghost"] = &core.User{ID: "ghost", TenantID: "t1", Username: "ghost", Active: true}
	token, err := fx.svc.Issue(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	delete(fx.users.byID, "u1")

	rr := doRequest(t, protectedEcho(fx), token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if errorCode(t, rr) != "invalid_token" {
		t.Fatalf("error = %q, want invalid_token", errorCode(t, rr))
	}
}
