package jwt

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sort"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// staticScopes es un ScopeSource fijo por (tenant, user) para los tests.
type staticScopes map[string][]string

func (s staticScopes) ResolveScopes(ctx context.Context, tenantID, userID string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, sc := range s[tenantID+"/"+userID] {
		out[sc] = struct{}{}
	}
	return out, nil
}

func newTestService(t *testing.T, grants staticScopes) *TokenService {
	t.Helper()
	ks := newTestKeyStore(t)
	if _, err := ks.CreateKeypair(); err != nil {
		t.Fatalf("bootstrap key: %v", err)
	}
	return NewTokenService(ks, grants, 15*time.Minute)
}

func TestIssue_DefaultsToFullGrant(t *testing.T) {
	svc := newTestService(t, staticScopes{
		"t1/u1": {"auth.user.read", "auth.user.write"},
	})

	token, err := svc.Issue(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	want := []string{"auth.user.read", "auth.user.write"}
	if !reflect.DeepEqual(p.Scopes, want) {
		t.Fatalf("scopes = %v, want %v", p.Scopes, want)
	}
	if p.Subject != "u1" {
		t.Fatalf("sub = %q, want u1", p.Subject)
	}
}

func TestIssue_NegotiationIntersects(t *testing.T) {
	svc := newTestService(t, staticScopes{
		"t1/u1": {"auth.user.read", "auth.user.write"},
	})

	// achicar: ok
	token, err := svc.Issue(context.Background(), "u1", "t1", []string{"auth.user.read"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, _ := svc.Verify(token)
	if !reflect.DeepEqual(p.Scopes, []string{"auth.user.read"}) {
		t.Fatalf("scopes = %v, want [auth.user.read]", p.Scopes)
	}

	// pedir de más: lo no otorgado se cae, no se amplía
	token, err = svc.Issue(context.Background(), "u1", "t1",
		[]string{"auth.user.read", "auth.project.write"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, _ = svc.Verify(token)
	if !reflect.DeepEqual(p.Scopes, []string{"auth.user.read"}) {
		t.Fatalf("scopes = %v, want [auth.user.read]", p.Scopes)
	}
}

func TestIssue_EmptyIntersectionFailsClosed(t *testing.T) {
	svc := newTestService(t, staticScopes{
		"t1/u1": {"auth.user.read"},
		// t1/u2 sin grants
	})

	if _, err := svc.Issue(context.Background(), "u1", "t1", []string{"auth.project.read"}); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	// G vacío y R vacío también deniega: nunca se emite token sin scopes.
	if _, err := svc.Issue(context.Background(), "u2", "t1", nil); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for empty grant set, got %v", err)
	}
}

func TestIssue_KeystoreUninitialized(t *testing.T) {
	ks := newTestKeyStore(t) // sin bootstrap
	svc := NewTokenService(ks, staticScopes{"t1/u1": {"auth.user.read"}}, time.Minute)
	if _, err := svc.Issue(context.Background(), "u1", "t1", nil); !errors.Is(err, ErrKeystoreUninitialized) {
		t.Fatalf("expected ErrKeystoreUninitialized, got %v", err)
	}
}

func TestVerify_SurvivesRotation(t *testing.T) {
	svc := newTestService(t, staticScopes{"t1/u1": {"auth.user.read"}})

	token, err := svc.Issue(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Keys.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	// La pública vieja sigue publicada: el token firmado con K1 verifica.
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("token signed before rotation must still verify: %v", err)
	}
}

func TestVerify_UnknownKIDRejected(t *testing.T) {
	svc := newTestService(t, staticScopes{"t1/u1": {"auth.user.read"}})

	token, err := svc.Issue(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// retiro operacional: borrar la pública del set publicado
	kid, _, err := svc.Keys.CurrentSigningKey()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if _, err := svc.Keys.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := os.Remove(svc.Keys.publicPath(kid)); err != nil {
		t.Fatalf("retire public: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for retired kid, got %v", err)
	}
}

func TestVerify_MissingKIDRejected(t *testing.T) {
	svc := newTestService(t, staticScopes{"t1/u1": {"auth.user.read"}})
	_, priv, err := svc.Keys.CurrentSigningKey()
	if err != nil {
		t.Fatalf("current: %v", err)
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, jwtv5.MapClaims{
		"sub":    "u1",
		"exp":    time.Now().Add(time.Minute).Unix(),
		"scopes": []string{"auth.user.read"},
	})
	// sin header kid a propósito
	signed, err := tk.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for missing kid, got %v", err)
	}
}

func TestVerify_MissingRequiredClaims(t *testing.T) {
	svc := newTestService(t, staticScopes{"t1/u1": {"auth.user.read"}})
	kid, priv, err := svc.Keys.CurrentSigningKey()
	if err != nil {
		t.Fatalf("current: %v", err)
	}

	cases := map[string]jwtv5.MapClaims{
		"no sub": {
			"exp":    time.Now().Add(time.Minute).Unix(),
			"scopes": []string{"auth.user.read"},
		},
		"no scopes": {
			"sub": "u1",
			"exp": time.Now().Add(time.Minute).Unix(),
		},
		"no exp": {
			"sub":    "u1",
			"scopes": []string{"auth.user.read"},
		},
	}
	for name, claims := range cases {
		tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
		tk.Header["kid"] = kid
		signed, err := tk.SignedString(priv)
		if err != nil {
			t.Fatalf("%s: sign: %v", name, err)
		}
		if _, err := svc.Verify(signed); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestVerify_ExpiredIsDistinct(t *testing.T) {
	svc := newTestService(t, staticScopes{"t1/u1": {"auth.user.read"}})
	svc.now = func() time.Time { return time.Now().UTC().Add(-time.Hour) }

	token, err := svc.Issue(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = svc.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired must not collapse into invalid")
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	svc := newTestService(t, staticScopes{"t1/u1": {"auth.user.read"}})
	token, err := svc.Issue(context.Background(), "u1", "t1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := token[:len(token)-4] + "AAAA"
	if _, err := svc.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestAuthorize_AnyRequiredScopeSuffices(t *testing.T) {
	p := &Payload{Scopes: []string{"auth.user.read", "auth.role.write"}}

	if !Authorize(p, []string{"auth.user.read", "auth.user.all"}) {
		t.Fatalf("expected authorized: one required scope matches")
	}
	if Authorize(p, []string{"auth.project.read"}) {
		t.Fatalf("expected denied: no intersection")
	}
	if Authorize(p, nil) {
		t.Fatalf("expected denied: empty required set")
	}
	if Authorize(nil, []string{"auth.user.read"}) {
		t.Fatalf("expected denied: nil payload")
	}

	// "all" es match exacto, no comodín.
	all := &Payload{Scopes: []string{"auth.user.all"}}
	if Authorize(all, []string{"auth.user.read"}) {
		t.Fatalf(`"all" must not implicitly cover read`)
	}
	if !Authorize(all, []string{"auth.user.read", "auth.user.all"}) {
		t.Fatalf(`"all" must match when listed explicitly`)
	}
}

func TestIssue_ScopesAreSortedAndDeduped(t *testing.T) {
	svc := newTestService(t, staticScopes{
		"t1/u1": {"auth.user.read", "auth.user.write"},
	})
	token, err := svc.Issue(context.Background(), "u1", "t1",
		[]string{"auth.user.write", "auth.user.read", "auth.user.read"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !sort.StringsAreSorted(p.Scopes) {
		t.Fatalf("scopes not sorted: %v", p.Scopes)
	}
	if len(p.Scopes) != 2 {
		t.Fatalf("scopes not deduped: %v", p.Scopes)
	}
}
