package jwt

import (
	"context"
	"errors"
	"sort"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/authserve/internal/metrics"
	"github.com/dropDatabas3/authserve/internal/observability/logger"
)

// ScopeSource resuelve el grant set de un principal dentro de un tenant.
// La implementación real (rbac.Resolver) es cache-first.
type ScopeSource interface {
	ResolveScopes(ctx context.Context, tenantID, userID string) (map[string]struct{}, error)
}

// Payload son los claims verificados de un token de acceso.
type Payload struct {
	Subject   string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasScope reporta si el payload contiene el scope exacto.
func (p *Payload) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenService es la superficie de autorización principal-facing:
// emisión con negociación de scopes y verificación contra el JWKS.
type TokenService struct {
	Keys      *KeyStore
	Scopes    ScopeSource
	AccessTTL time.Duration

	now func() time.Time // inyectable en tests
}

func NewTokenService(ks *KeyStore, scopes ScopeSource, accessTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &TokenService{
		Keys:      ks,
		Scopes:    scopes,
		AccessTTL: accessTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Issue emite un token de acceso para (userID, tenantID).
//
// Regla de negociación: requested vacío pide "todo lo otorgado"; si no,
// el resultado es requested ∩ granted. Un cliente puede achicar su acceso
// pero nunca agrandarlo. Intersección vacía => ErrAccessDenied, sin token.
func (s *TokenService) Issue(ctx context.Context, userID, tenantID string, requestedScopes []string) (string, error) {
	granted, err := s.Scopes.ResolveScopes(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}

	var final []string
	if len(requestedScopes) == 0 {
		final = make([]string, 0, len(granted))
		for sc := range granted {
			final = append(final, sc)
		}
	} else {
		seen := map[string]struct{}{}
		for _, sc := range requestedScopes {
			if _, dup := seen[sc]; dup {
				continue
			}
			seen[sc] = struct{}{}
			if _, ok := granted[sc]; ok {
				final = append(final, sc)
			}
		}
	}
	if len(final) == 0 {
		return "", ErrAccessDenied
	}
	sort.Strings(final)

	kid, priv, err := s.Keys.CurrentSigningKey()
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := jwtv5.MapClaims{
		"sub":    userID,
		"iat":    now.Unix(),
		"exp":    now.Add(s.AccessTTL).Unix(),
		"scopes": final,
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(priv)
	if err != nil {
		return "", err
	}
	metrics.TokensIssued.Inc()
	logger.Named("jwt").Debug("token issued",
		logger.UserID(userID), logger.TenantID(tenantID), logger.KID(kid), logger.Scopes(final))
	return signed, nil
}

// Verify valida firma y claims de un token contra el JWKS publicado.
// La clave se selecciona por el kid del header: kid ausente o desconocido
// (cubre claves retiradas) => ErrInvalidToken. Un token vencido se reporta
// como ErrExpiredToken, separado de uno estructuralmente inválido.
func (s *TokenService) Verify(tokenString string) (*Payload, error) {
	set, err := s.Keys.JWKS()
	if err != nil {
		return nil, err
	}

	keyfunc := func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("kid_missing")
		}
		k, ok := set.Find(kid)
		if !ok {
			return nil, errors.New("kid_not_found")
		}
		return k.PublicKey()
	}

	tok, err := jwtv5.Parse(tokenString, keyfunc,
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		if err != nil && errors.Is(err, jwtv5.ErrTokenExpired) {
			metrics.TokenVerifications.WithLabelValues("expired").Inc()
			return nil, ErrExpiredToken
		}
		metrics.TokenVerifications.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		metrics.TokenVerifications.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	// Claims requeridos: exp (ya forzado por el parser), sub, scopes.
	sub, _ := claims["sub"].(string)
	rawScopes, hasScopes := claims["scopes"]
	if sub == "" || !hasScopes {
		metrics.TokenVerifications.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}
	scopes, ok := toStringSlice(rawScopes)
	if !ok {
		metrics.TokenVerifications.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	p := &Payload{Subject: sub, Scopes: scopes}
	if expf, ok := claims["exp"].(float64); ok {
		p.ExpiresAt = time.Unix(int64(expf), 0).UTC()
	}
	if iatf, ok := claims["iat"].(float64); ok {
		p.IssuedAt = time.Unix(int64(iatf), 0).UTC()
	}
	metrics.TokenVerifications.WithLabelValues("ok").Inc()
	return p, nil
}

// Authorize es el check a nivel endpoint: true sii la intersección entre
// requiredScopes y los scopes del token es no vacía (OR lógico: con un
// scope que matchee alcanza). "all" se compara como string literal.
func Authorize(p *Payload, requiredScopes []string) bool {
	if p == nil {
		return false
	}
	for _, req := range requiredScopes {
		if p.HasScope(req) {
			return true
		}
	}
	return false
}

func toStringSlice(v any) ([]string, bool) {
	switch vs := v.(type) {
	case []string:
		return vs, true
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
