package pg

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/authserve/internal/bootstrap"
	"github.com/dropDatabas3/authserve/internal/store/core"
)

// Signup crea tenant + owner y siembra el catálogo system completo (roles,
// permisos, links rol-permiso) más la asignación owner, todo en una sola
// transacción: o queda el tenant entero provisionado o no queda nada.
func (s *Store) Signup(ctx context.Context, tenant *core.Tenant, owner *core.User) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO tenant (id, name) VALUES ($1, $2)`,
		tenant.ID, tenant.Name); err != nil {
		return mapPgErr(err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO app_user (id, tenant_id, username, primary_email, password_hash, active)
VALUES ($1,$2,$3,$4,$5,true)`,
		owner.ID, tenant.ID, owner.Username, owner.PrimaryEmail, owner.PasswordHash); err != nil {
		return mapPgErr(err)
	}
	owner.TenantID = tenant.ID
	owner.Active = true

	// Clonar templates system dentro del tenant.
	roleIDByName := make(map[string]int64)
	for _, name := range bootstrap.SystemRoles() {
		var id int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO role (tenant_id, name, type) VALUES ($1,$2,'system') RETURNING id`,
			tenant.ID, name).Scan(&id); err != nil {
			return mapPgErr(err)
		}
		roleIDByName[name] = id
	}

	permIDBySlug := make(map[string]int64)
	for _, p := range bootstrap.SystemPermissions() {
		var id int64
		if err := tx.QueryRow(ctx, `
INSERT INTO permission (tenant_id, service, resource, action, slug, description)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			tenant.ID, p.Service, p.Resource, p.Action, p.Slug, p.Description).Scan(&id); err != nil {
			return mapPgErr(err)
		}
		permIDBySlug[p.Slug] = id
	}

	for roleName, slugs := range bootstrap.RolePermissionMap() {
		roleID, ok := roleIDByName[roleName]
		if !ok {
			return fmt.Errorf("seed: unknown system role %q", roleName)
		}
		for _, slug := range slugs {
			permID, ok := permIDBySlug[slug]
			if !ok {
				return fmt.Errorf("seed: unknown permission %q", slug)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permission (role_id, permission_id) VALUES ($1,$2)`,
				roleID, permID); err != nil {
				return mapPgErr(err)
			}
		}
	}

	// Asignación owner para el principal fundador.
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_role (user_id, role_id) VALUES ($1,$2)`,
		owner.ID, roleIDByName[bootstrap.RoleOwner]); err != nil {
		return mapPgErr(err)
	}

	return tx.Commit(ctx)
}
