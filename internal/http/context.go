package http

import (
	"context"

	"github.com/dropDatabas3/authserve/internal/store/core"
)

type ctxKey int

const (
	ctxKeyUser ctxKey = iota
	ctxKeyScopes
)

// CurrentUser devuelve el principal autenticado del contexto, si hay.
func CurrentUser(ctx context.Context) (*core.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(*core.User)
	return u, ok
}

// GrantedScopes devuelve los scopes efectivos del request (token ∩ grant
// set actual del principal).
func GrantedScopes(ctx context.Context) map[string]struct{} {
	s, _ := ctx.Value(ctxKeyScopes).(map[string]struct{})
	return s
}

func withAuth(ctx context.Context, u *core.User, scopes map[string]struct{}) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUser, u)
	return context.WithValue(ctx, ctxKeyScopes, scopes)
}
