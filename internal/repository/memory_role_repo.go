package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/hitoshi/negotiator/internal/model"
)

// MemoryRoleRepo はプロセス内メモリのロールリポジトリ。
// ロールの割り当てはMemoryUserRepoが保持するユーザーのロール名一覧に反映する。
type MemoryRoleRepo struct {
	mu    sync.Mutex
	roles []model.Role
	users *MemoryUserRepo
}

// NewMemoryRoleRepo は初期ロール（admin, seller）を登録したMemoryRoleRepoを生成する。
func NewMemoryRoleRepo(users *MemoryUserRepo) *MemoryRoleRepo {
	return &MemoryRoleRepo{
		roles: []model.Role{
			{ID: 1, Name: model.RoleAdmin},
			{ID: 2, Name: model.RoleSeller},
		},
		users: users,
	}
}

// List は全ロールを割り当てユーザー数付きでID順に返す。
func (r *MemoryRoleRepo) List(ctx context.Context) ([]*model.Role, error) {
	r.mu.Lock()
	roles := slices.Clone(r.roles)
	r.mu.Unlock()

	result := make([]*model.Role, 0, len(roles))
	for _, role := range roles {
		users, err := r.users.ListByRole(ctx, role.Name)
		if err != nil {
			return nil, err
		}
		role.UserCount = len(users)
		result = append(result, &role)
	}
	return result, nil
}

// FindByID は指定IDのロールを取得する。
func (r *MemoryRoleRepo) FindByID(_ context.Context, id int) (*model.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := lo.Find(r.roles, func(role model.Role) bool { return role.ID == id })
	if !ok {
		return nil, nil
	}
	return &role, nil
}

// FindByName は大文字小文字を区別せずにロールを取得する。
func (r *MemoryRoleRepo) FindByName(_ context.Context, name string) (*model.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.findByNameLocked(name)
	if !ok {
		return nil, nil
	}
	return &role, nil
}

func (r *MemoryRoleRepo) findByNameLocked(name string) (model.Role, bool) {
	return lo.Find(r.roles, func(role model.Role) bool { return strings.EqualFold(role.Name, name) })
}

// Create はロールを作成する。
func (r *MemoryRoleRepo) Create(_ context.Context, name string) (*model.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.findByNameLocked(name); exists {
		return nil, ErrRoleExists
	}
	role := model.Role{ID: len(r.roles) + 1, Name: name}
	r.roles = append(r.roles, role)
	return &role, nil
}

// AssignToUser はユーザーにロールを割り当てる。
func (r *MemoryRoleRepo) AssignToUser(ctx context.Context, userID string, roleID int) (bool, error) {
	role, err := r.FindByID(ctx, roleID)
	if err != nil {
		return false, err
	}
	if role == nil {
		return false, fmt.Errorf("unknown role id: %d", roleID)
	}

	found, changed := r.users.updateRoles(userID, func(roles []string) ([]string, bool) {
		if lo.Contains(roles, role.Name) {
			return roles, false
		}
		return append(roles, role.Name), true
	})
	if !found {
		return false, fmt.Errorf("unknown user id: %s", userID)
	}
	return changed, nil
}

// RemoveFromUser はユーザーからロールを外す。
func (r *MemoryRoleRepo) RemoveFromUser(ctx context.Context, userID string, roleID int) (bool, error) {
	role, err := r.FindByID(ctx, roleID)
	if err != nil {
		return false, err
	}
	if role == nil {
		return false, nil
	}

	_, changed := r.users.updateRoles(userID, func(roles []string) ([]string, bool) {
		if !lo.Contains(roles, role.Name) {
			return roles, false
		}
		return lo.Without(roles, role.Name), true
	})
	return changed, nil
}

// compile-time interface check
var _ RoleRepository = (*MemoryRoleRepo)(nil)
