package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dropDatabas3/authserve/internal/store/core"
)

// ---------- LECTURAS ----------

// GetUserRoles: roles asignados al usuario dentro del tenant. El filtro por
// tenant va en el JOIN; un rol de otro tenant jamás aparece acá aunque el
// user_id colisione.
func (s *Store) GetUserRoles(ctx context.Context, tenantID, userID string) ([]core.Role, error) {
	const q = `
SELECT r.id, r.tenant_id, r.name, r.type
FROM user_role ur
JOIN role r ON r.id = ur.role_id
WHERE ur.user_id = $1 AND r.tenant_id = $2
ORDER BY r.name;`
	rows, err := s.pool.Query(ctx, q, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Role
	for rows.Next() {
		var r core.Role
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.Type); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRolePermissions: slugs de permisos vigentes para un rol del tenant.
func (s *Store) GetRolePermissions(ctx context.Context, tenantID string, roleID int64) ([]string, error) {
	const q = `
SELECT p.slug
FROM role_permission rp
JOIN permission p ON p.id = rp.permission_id
WHERE rp.role_id = $1 AND p.tenant_id = $2
ORDER BY p.slug;`
	return s.queryStrings(ctx, q, roleID, tenantID)
}

// GetRolePermissionsByName: igual que GetRolePermissions pero por nombre.
func (s *Store) GetRolePermissionsByName(ctx context.Context, tenantID, roleName string) ([]string, error) {
	const q = `
SELECT p.slug
FROM role r
JOIN role_permission rp ON rp.role_id = r.id
JOIN permission p ON p.id = rp.permission_id AND p.tenant_id = r.tenant_id
WHERE r.tenant_id = $1 AND r.name = $2
ORDER BY p.slug;`
	return s.queryStrings(ctx, q, tenantID, roleName)
}

func (s *Store) ListRoles(ctx context.Context, tenantID string) ([]core.Role, error) {
	const q = `SELECT id, tenant_id, name, type FROM role WHERE tenant_id = $1 ORDER BY name;`
	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Role
	for rows.Next() {
		var r core.Role
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.Type); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListPermissions(ctx context.Context, tenantID string) ([]core.Permission, error) {
	const q = `
SELECT id, tenant_id, service, resource, action, slug, description
FROM permission WHERE tenant_id = $1 ORDER BY slug;`
	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Permission
	for rows.Next() {
		var p core.Permission
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Service, &p.Resource, &p.Action, &p.Slug, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---------- ESCRITURAS ----------

func (s *Store) CreateRole(ctx context.Context, r *core.Role) error {
	// Los roles system solo se crean vía provisioning del tenant.
	if r.Type == core.RoleSystem {
		return core.ErrInvalid
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO role (tenant_id, name, type) VALUES ($1,$2,$3) RETURNING id`,
		r.TenantID, strings.TrimSpace(r.Name), r.Type,
	).Scan(&r.ID)
	return mapPgErr(err)
}

func (s *Store) DeleteRole(ctx context.Context, tenantID string, roleID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM role WHERE id = $1 AND tenant_id = $2 AND type <> 'system'`,
		roleID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePermission(ctx context.Context, p *core.Permission) error {
	if !core.ValidAction(p.Action) {
		return core.ErrInvalid
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO permission (tenant_id, service, resource, action, slug, description)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		p.TenantID, p.Service, p.Resource, p.Action, p.Slug, p.Description,
	).Scan(&p.ID)
	return mapPgErr(err)
}

func (s *Store) DeletePermission(ctx context.Context, tenantID string, permissionID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM permission WHERE id = $1 AND tenant_id = $2`,
		permissionID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) AssignRole(ctx context.Context, tenantID, userID string, roleID int64) error {
	// El subselect verifica que el rol pertenezca al tenant; asignar un rol
	// ajeno es violación de aislamiento, no un no-op.
	tag, err := s.pool.Exec(ctx, `
INSERT INTO user_role (user_id, role_id)
SELECT $1, id FROM role WHERE id = $2 AND tenant_id = $3
ON CONFLICT DO NOTHING`, userID, roleID, tenantID)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		// rol inexistente en este tenant o link ya presente; distinguir
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM role WHERE id = $1 AND tenant_id = $2)`,
			roleID, tenantID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return core.ErrNotFound
		}
	}
	return nil
}

func (s *Store) RemoveRole(ctx context.Context, tenantID, userID string, roleID int64) error {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM user_role ur
USING role r
WHERE ur.user_id = $1 AND ur.role_id = $2 AND r.id = ur.role_id AND r.tenant_id = $3`,
		userID, roleID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) AttachPermission(ctx context.Context, tenantID string, roleID, permissionID int64) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO role_permission (role_id, permission_id)
SELECT r.id, p.id
FROM role r, permission p
WHERE r.id = $1 AND r.tenant_id = $3 AND p.id = $2 AND p.tenant_id = $3
ON CONFLICT DO NOTHING`, roleID, permissionID, tenantID)
	return mapPgErr(err)
}

func (s *Store) DetachPermission(ctx context.Context, tenantID string, roleID, permissionID int64) error {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM role_permission rp
USING role r
WHERE rp.role_id = $1 AND rp.permission_id = $2 AND r.id = rp.role_id AND r.tenant_id = $3`,
		roleID, permissionID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ---------- helpers ----------

func (s *Store) queryStrings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return core.ErrConflict
	}
	return err
}
