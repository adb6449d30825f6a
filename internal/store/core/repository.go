package core

import "context"

// UserRepository: lecturas de principal. Las escrituras de perfil viven en
// el servicio HTTP y no le interesan al core de autorización.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
}

// RBACRepository: queries set-oriented sobre el grafo rol/permiso,
// siempre filtradas por tenant.
type RBACRepository interface {
	// GetUserRoles devuelve los roles asignados al usuario dentro del tenant.
	GetUserRoles(ctx context.Context, tenantID, userID string) ([]Role, error)

	// GetRolePermissions devuelve los slugs de permisos vigentes para un rol.
	GetRolePermissions(ctx context.Context, tenantID string, roleID int64) ([]string, error)

	// GetRolePermissionsByName: igual que GetRolePermissions pero por nombre
	// de rol (lo usa la verificación cache/resolver).
	GetRolePermissionsByName(ctx context.Context, tenantID, roleName string) ([]string, error)

	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	ListPermissions(ctx context.Context, tenantID string) ([]Permission, error)

	CreateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, tenantID string, roleID int64) error
	CreatePermission(ctx context.Context, p *Permission) error
	DeletePermission(ctx context.Context, tenantID string, permissionID int64) error

	AssignRole(ctx context.Context, tenantID, userID string, roleID int64) error
	RemoveRole(ctx context.Context, tenantID, userID string, roleID int64) error
	AttachPermission(ctx context.Context, tenantID string, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, tenantID string, roleID, permissionID int64) error
}

// TenantRepository: provisioning. Signup crea tenant + owner + catálogo
// system completo en una sola transacción.
type TenantRepository interface {
	Signup(ctx context.Context, tenant *Tenant, owner *User) error
}

// Repository agrupa todo lo que el servicio necesita del system of record.
type Repository interface {
	UserRepository
	RBACRepository
	TenantRepository
}
