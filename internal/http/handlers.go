package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/authserve/internal/audit"
	jwtx "github.com/dropDatabas3/authserve/internal/jwt"
	"github.com/dropDatabas3/authserve/internal/observability/logger"
	"github.com/dropDatabas3/authserve/internal/rbac"
	"github.com/dropDatabas3/authserve/internal/security/password"
	"github.com/dropDatabas3/authserve/internal/store/core"
	"github.com/dropDatabas3/authserve/internal/validation"
)

// Handlers agrupa las dependencias de la capa HTTP. La lógica interesante
// vive en jwt/rbac; esto es plumbing alrededor del core.
type Handlers struct {
	Store  core.Repository
	Tokens *jwtx.TokenService
	Keys   *jwtx.KeyStore
	Cache  *rbac.Cache
}

// ---------- auth ----------

type signupRequest struct {
	Org struct {
		Name string `json:"name"`
	} `json:"org"`
	User struct {
		Username     string `json:"username"`
		PrimaryEmail string `json:"primary_email"`
		Password     string `json:"password"`
	} `json:"user"`
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Org.Name == "" || req.User.Username == "" || req.User.Password == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "org.name, user.username y user.password son requeridos")
		return
	}

	hash, err := password.Hash(password.Default, req.User.Password)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid password")
		return
	}

	tenant := &core.Tenant{ID: uuid.NewString(), Name: req.Org.Name}
	owner := &core.User{
		ID:           uuid.NewString(),
		Username:     req.User.Username,
		PrimaryEmail: req.User.PrimaryEmail,
		PasswordHash: hash,
	}
	if err := h.Store.Signup(r.Context(), tenant, owner); err != nil {
		if errors.Is(err, core.ErrConflict) {
			WriteError(w, http.StatusConflict, "conflict", "username already taken")
			return
		}
		logger.Named("http").Error("signup failed", logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	audit.Record("tenant.signed_up", logger.TenantID(tenant.ID), logger.UserID(owner.ID))
	WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id": owner.ID,
		"org_id":  tenant.ID,
	})
}

type loginRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Scopes   []string `json:"scopes"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login: password grant + negociación de scopes. Un scopes vacío pide todo
// el grant set. Credenciales malas y usuario inexistente responden igual
// (no revelar existencia del principal).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	user, err := h.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !password.Verify(req.Password, user.PasswordHash) {
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "incorrect username or password")
		return
	}
	if !user.Active {
		WriteError(w, http.StatusForbidden, "inactive_principal", "inactive user")
		return
	}

	token, err := h.Tokens.Issue(r.Context(), user.ID, user.TenantID, req.Scopes)
	if err != nil {
		switch {
		case errors.Is(err, jwtx.ErrAccessDenied):
			WriteError(w, http.StatusForbidden, "access_denied", "no grantable scopes")
		case errors.Is(err, jwtx.ErrKeystoreUninitialized), errors.Is(err, jwtx.ErrNoKeys):
			logger.Named("http").Error("login: keystore not ready", logger.Err(err))
			WriteError(w, http.StatusServiceUnavailable, "unavailable", "signing keys not configured")
		default:
			logger.Named("http").Error("login failed", logger.Err(err))
			WriteError(w, http.StatusInternalServerError, "internal_error", "")
		}
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// JWKS publica el key set en el discovery path. Único artefacto del
// keystore expuesto por el wire.
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	set, err := h.Keys.JWKS()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(set.JSON())
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// RotateKeys genera una clave nueva y la marca activa; las públicas viejas
// quedan publicadas, así que tokens vigentes siguen verificando.
func (h *Handlers) RotateKeys(w http.ResponseWriter, r *http.Request) {
	kid, err := h.Keys.Rotate()
	if err != nil {
		logger.Named("http").Error("rotate failed", logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	u, _ := CurrentUser(r.Context())
	audit.Record("keys.rotated", logger.UserID(u.ID), logger.KID(kid))
	WriteJSON(w, http.StatusOK, map[string]string{"kid": kid})
}

// ---------- roles ----------

type roleResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())
	roles, err := h.Store.ListRoles(r.Context(), u.TenantID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{ID: role.ID, Name: role.Name, Type: string(role.Type)})
	}
	WriteJSON(w, http.StatusOK, out)
}

type createRoleRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Type == string(core.RoleSystem) {
		WriteError(w, http.StatusBadRequest, "invalid_request", "cannot create system role")
		return
	}
	u, _ := CurrentUser(r.Context())
	role := &core.Role{TenantID: u.TenantID, Name: req.Name, Type: core.RoleCustom}
	if err := h.Store.CreateRole(r.Context(), role); err != nil {
		switch {
		case errors.Is(err, core.ErrConflict):
			WriteError(w, http.StatusConflict, "conflict", "role already exists")
		case errors.Is(err, core.ErrInvalid):
			WriteError(w, http.StatusBadRequest, "invalid_request", "")
		default:
			WriteError(w, http.StatusInternalServerError, "internal_error", "")
		}
		return
	}
	audit.Record("role.created", logger.TenantID(u.TenantID), logger.UserID(u.ID), logger.Role(role.Name))
	WriteJSON(w, http.StatusCreated, roleResponse{ID: role.ID, Name: role.Name, Type: string(role.Type)})
}

func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	u, _ := CurrentUser(r.Context())
	if err := h.Store.DeleteRole(r.Context(), u.TenantID, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "role not found or is a system role")
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	audit.Record("role.deleted", logger.TenantID(u.TenantID), logger.UserID(u.ID), zap.Int64("role_id", id))
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	UserID string `json:"user_id"`
	RoleID int64  `json:"role_id"`
}

func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	u, _ := CurrentUser(r.Context())
	if err := h.Store.AssignRole(r.Context(), u.TenantID, req.UserID, req.RoleID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "role not found in tenant")
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	audit.Record("role.assigned", logger.TenantID(u.TenantID), logger.UserID(u.ID),
		zap.String("target_user", req.UserID), zap.Int64("role_id", req.RoleID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RemoveRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	u, _ := CurrentUser(r.Context())
	if err := h.Store.RemoveRole(r.Context(), u.TenantID, req.UserID, req.RoleID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "assignment not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	audit.Record("role.removed", logger.TenantID(u.TenantID), logger.UserID(u.ID),
		zap.String("target_user", req.UserID), zap.Int64("role_id", req.RoleID))
	w.WriteHeader(http.StatusNoContent)
}

type rolePermRequest struct {
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
}

func (h *Handlers) AttachPermission(w http.ResponseWriter, r *http.Request) {
	var req rolePermRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	u, _ := CurrentUser(r.Context())
	if err := h.Store.AttachPermission(r.Context(), u.TenantID, req.RoleID, req.PermissionID); err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	audit.Record("permission.attached", logger.TenantID(u.TenantID), logger.UserID(u.ID),
		zap.Int64("role_id", req.RoleID), zap.Int64("permission_id", req.PermissionID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DetachPermission(w http.ResponseWriter, r *http.Request) {
	var req rolePermRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	u, _ := CurrentUser(r.Context())
	if err := h.Store.DetachPermission(r.Context(), u.TenantID, req.RoleID, req.PermissionID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "link not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	audit.Record("permission.detached", logger.TenantID(u.TenantID), logger.UserID(u.ID),
		zap.Int64("role_id", req.RoleID), zap.Int64("permission_id", req.PermissionID))
	w.WriteHeader(http.StatusNoContent)
}

// ---------- permissions ----------

func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())
	perms, err := h.Store.ListPermissions(r.Context(), u.TenantID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	type permResponse struct {
		ID          int64  `json:"id"`
		Slug        string `json:"slug"`
		Description string `json:"description"`
	}
	out := make([]permResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permResponse{ID: p.ID, Slug: p.Slug, Description: p.Description})
	}
	WriteJSON(w, http.StatusOK, out)
}

type createPermissionRequest struct {
	Service     string `json:"service"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	action := core.PermissionAction(req.Action)
	slug := req.Service + "." + req.Resource + "." + req.Action
	if !core.ValidAction(action) || !validation.ValidScope(slug) {
		WriteError(w, http.StatusBadRequest, "invalid_request", "slug must be service.resource.action")
		return
	}
	u, _ := CurrentUser(r.Context())
	p := &core.Permission{
		TenantID:    u.TenantID,
		Service:     req.Service,
		Resource:    req.Resource,
		Action:      action,
		Slug:        slug,
		Description: req.Description,
	}
	if err := h.Store.CreatePermission(r.Context(), p); err != nil {
		if errors.Is(err, core.ErrConflict) {
			WriteError(w, http.StatusConflict, "conflict", "permission already exists")
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	audit.Record("permission.created", logger.TenantID(u.TenantID), logger.UserID(u.ID),
		zap.String("slug", p.Slug))
	WriteJSON(w, http.StatusCreated, map[string]any{"id": p.ID, "slug": p.Slug})
}

func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	u, _ := CurrentUser(r.Context())
	if err := h.Store.DeletePermission(r.Context(), u.TenantID, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "permission not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	audit.Record("permission.deleted", logger.TenantID(u.TenantID), logger.UserID(u.ID),
		zap.Int64("permission_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// ---------- users ----------

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handlers) SetUserActive(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req setActiveRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	u, _ := CurrentUser(r.Context())
	target, err := h.Store.GetUserByID(r.Context(), userID)
	if err != nil || target.TenantID != u.TenantID {
		WriteError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err := h.Store.SetUserActive(r.Context(), userID, req.Active); err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	// que el flag nuevo se vea en el próximo request, no cuando expire
	h.Cache.InvalidateUser(r.Context(), userID)
	audit.Record("user.active_toggled", logger.TenantID(u.TenantID), logger.UserID(u.ID),
		zap.String("target_user", userID), zap.Bool("active", req.Active))
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid id")
		return 0, false
	}
	return id, true
}
