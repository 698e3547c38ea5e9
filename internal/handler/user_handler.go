package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/hitoshi/negotiator/internal/middleware"
	"github.com/hitoshi/negotiator/internal/model"
	"github.com/hitoshi/negotiator/internal/user"
)

// UserServiceInterface はユーザー・ロール管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	ToggleStatus(ctx context.Context, id string) (*model.User, error)
	Dashboard(ctx context.Context) (*user.Dashboard, error)
	ListRoles(ctx context.Context) ([]*model.Role, error)
	GetRole(ctx context.Context, id int) (*model.Role, error)
	CreateRole(ctx context.Context, name string) (*model.Role, error)
	AssignRole(ctx context.Context, userID, roleName string) error
	RemoveRole(ctx context.Context, userID, roleName string) error
	UsersInRole(ctx context.Context, roleName string) ([]*model.User, error)
}

// UserHandler はユーザー管理・ロール管理・管理者ダッシュボードのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// createRoleRequest はロール作成リクエストのボディ。
type createRoleRequest struct {
	Name string `json:"name" validate:"required,max=50"`
}

// userRoleRequest はロールの割り当て・解除リクエストのボディ。
type userRoleRequest struct {
	UserID   string `json:"userId" validate:"required"`
	RoleName string `json:"roleName" validate:"required"`
}

// adminUserResponse は管理者向けのユーザー情報レスポンス。
type adminUserResponse struct {
	userResponse
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type roleResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type roleStatResponse struct {
	RoleName  string `json:"roleName"`
	UserCount int    `json:"userCount"`
}

type dashboardResponse struct {
	SystemStats struct {
		TotalUsers    int                `json:"totalUsers"`
		ActiveUsers   int                `json:"activeUsers"`
		InactiveUsers int                `json:"inactiveUsers"`
		Roles         []roleStatResponse `json:"roles"`
	} `json:"systemStats"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Profile はログイン中のユーザー自身の情報を返す。
// GET /api/users/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	u, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// List は全ユーザーを返す。
// GET /api/users, GET /api/admin/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAdminUserResponses(users))
}

// Get はユーザーを1件返す。
// GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAdminUserResponse(u))
}

// ToggleStatus はユーザーの有効・無効を切り替える。
// PUT /api/admin/users/{id}/toggle-status
func (h *UserHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.ToggleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	status := lo.Ternary(u.IsActive, "active", "inactive")
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("User %s is now %s", u.Username, status),
	})
}

// Dashboard はユーザー数とロール別の割り当て数を返す。
// GET /api/admin/dashboard
func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var resp dashboardResponse
	resp.SystemStats.TotalUsers = d.TotalUsers
	resp.SystemStats.ActiveUsers = d.ActiveUsers
	resp.SystemStats.InactiveUsers = d.InactiveUsers
	resp.SystemStats.Roles = lo.Map(d.Roles, func(role *model.Role, _ int) roleStatResponse {
		return roleStatResponse{RoleName: role.Name, UserCount: role.UserCount}
	})
	writeJSON(w, http.StatusOK, resp)
}

// ListRoles は全ロールを返す。
// GET /api/roles
func (h *UserHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(roles, func(role *model.Role, _ int) roleResponse {
		return toRoleResponse(role)
	}))
}

// GetRole はロールを1件返す。数値でないIDは存在しないロールとして扱う。
// GET /api/roles/{role}, GET /api/admin/roles/{role}
func (h *UserHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "role")
	id, err := strconv.Atoi(param)
	if err != nil {
		handleServiceError(w, r, model.NewRoleNotFoundError(param))
		return
	}

	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoleResponse(role))
}

// CreateRole はロールを作成する。
// POST /api/admin/roles
func (h *UserHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	role, err := h.service.CreateRole(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/admin/roles/%d", role.ID))
	writeJSON(w, http.StatusCreated, toRoleResponse(role))
}

// AssignRole はユーザーにロールを割り当てる。
// POST /api/roles/assign
func (h *UserHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.AssignRole(r.Context(), req.UserID, req.RoleName); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Role %s assigned to user %s", req.RoleName, req.UserID),
	})
}

// RemoveRole はユーザーからロールを外す。
// POST /api/roles/remove
func (h *UserHandler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.RemoveRole(r.Context(), req.UserID, req.RoleName); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Role %s removed from user %s", req.RoleName, req.UserID),
	})
}

// UsersInRole は指定ロールを持つユーザーを返す。
// GET /api/roles/{role}/users
func (h *UserHandler) UsersInRole(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.UsersInRole(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAdminUserResponses(users))
}

func toAdminUserResponse(u *model.User) adminUserResponse {
	return adminUserResponse{
		userResponse: toUserResponse(u),
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
	}
}

func toAdminUserResponses(users []*model.User) []adminUserResponse {
	return lo.Map(users, func(u *model.User, _ int) adminUserResponse {
		return toAdminUserResponse(u)
	})
}

func toRoleResponse(role *model.Role) roleResponse {
	return roleResponse{ID: role.ID, Name: role.Name}
}
