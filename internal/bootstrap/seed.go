// Package bootstrap define el catálogo system de roles y permisos que se
// clona dentro de cada tenant durante el provisioning (signup). Los
// templates son tenant-independientes; nunca se referencian directo, se
// copian como filas propias del tenant.
package bootstrap

import (
	"fmt"

	"github.com/dropDatabas3/authserve/internal/store/core"
)

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// SystemRoles en orden de privilegio.
func SystemRoles() []string {
	return []string{RoleOwner, RoleAdmin, RoleUser}
}

const serviceAuth = "auth"

var resources = []string{"user", "role", "permission", "project"}

var actions = []struct {
	action core.PermissionAction
	desc   string
}{
	{core.ActionRead, "Read %s details"},
	{core.ActionWrite, "Create or update %s"},
	{core.ActionDelete, "Delete %s"},
	{core.ActionAll, "All %s actions"},
}

// Slug arma el identificador service.resource.action.
func Slug(service, resource string, action core.PermissionAction) string {
	return fmt.Sprintf("%s.%s.%s", service, resource, action)
}

// SystemPermissions devuelve el catálogo completo, sin tenant asignado:
// el provisioning setea TenantID al clonar.
func SystemPermissions() []core.Permission {
	out := make([]core.Permission, 0, len(resources)*len(actions))
	for _, res := range resources {
		for _, a := range actions {
			out = append(out, core.Permission{
				Service:     serviceAuth,
				Resource:    res,
				Action:      a.action,
				Slug:        Slug(serviceAuth, res, a.action),
				Description: fmt.Sprintf(a.desc, res),
			})
		}
	}
	return out
}

// RolePermissionMap: qué slugs recibe cada rol system al sembrar.
//   - owner: todo el catálogo
//   - admin: todo menos auth.project.delete
//   - user:  solo *.read
func RolePermissionMap() map[string][]string {
	perms := SystemPermissions()
	m := map[string][]string{}
	for _, p := range perms {
		m[RoleOwner] = append(m[RoleOwner], p.Slug)
		if p.Slug != Slug(serviceAuth, "project", core.ActionDelete) {
			m[RoleAdmin] = append(m[RoleAdmin], p.Slug)
		}
		if p.Action == core.ActionRead {
			m[RoleUser] = append(m[RoleUser], p.Slug)
		}
	}
	return m
}
