package core

import "time"

// RoleType distingue roles sembrados del sistema de roles creados por el tenant.
type RoleType string

const (
	RoleSystem RoleType = "system"
	RoleCustom RoleType = "custom"
)

// PermissionAction es el verbo de un permiso. "all" se compara como string
// literal: el resolver NO lo expande a read/write/delete.
type PermissionAction string

const (
	ActionRead   PermissionAction = "read"
	ActionWrite  PermissionAction = "write"
	ActionDelete PermissionAction = "delete"
	ActionAll    PermissionAction = "all"
)

// ValidAction reporta si a pertenece al set cerrado de acciones.
func ValidAction(a PermissionAction) bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete, ActionAll:
		return true
	}
	return false
}

// Tenant es el boundary de aislamiento. Todo rol/permiso/asignación
// pertenece a exactamente un tenant.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// User pertenece a exactamente un tenant. Active gatea toda autorización:
// inactivo => denegado siempre, independiente de scopes.
type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Username     string    `json:"username"`
	PrimaryEmail string    `json:"primary_email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Role: (name, type, tenant) es único. Los roles system son inmutables vía
// API de mutación (se siembran en el provisioning del tenant).
type Role struct {
	ID       int64
	TenantID string
	Name     string
	Type     RoleType
}

// Permission: slug con forma service.resource.action, único por tenant.
type Permission struct {
	ID          int64
	TenantID    string
	Service     string
	Resource    string
	Action      PermissionAction
	Slug        string
	Description string
}

// UserRole asigna un rol a un usuario dentro de su tenant (N:M).
type UserRole struct {
	UserID string
	RoleID int64
}

// RolePermission vincula rol y permiso (N:M).
type RolePermission struct {
	RoleID       int64
	PermissionID int64
}
