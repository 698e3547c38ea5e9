// Package user はユーザー管理とロール管理のビジネスロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/hitoshi/negotiator/internal/model"
	"github.com/hitoshi/negotiator/internal/repository"
)

// Dashboard は管理者ダッシュボードの集計値。
type Dashboard struct {
	TotalUsers    int
	ActiveUsers   int
	InactiveUsers int
	Roles         []*model.Role
}

// Service はユーザー・ロール管理のビジネスロジックを提供する。
type Service struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	sessions repository.SessionRepository
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	sessions repository.SessionRepository,
) *Service {
	return &Service{users: users, roles: roles, sessions: sessions}
}

// List は全ユーザーをロール付きで返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get は指定IDのユーザーを返す。存在しない場合は USER_NOT_FOUND を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return u, nil
}

// ToggleStatus はユーザーの有効・無効を切り替え、更新後のユーザーを返す。
// 無効化したユーザーのセッションはすべて破棄する。
func (s *Service) ToggleStatus(ctx context.Context, id string) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	u.IsActive = !u.IsActive
	found, err := s.users.SetActive(ctx, id, u.IsActive)
	if err != nil {
		return nil, fmt.Errorf("ユーザー状態の更新に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewUserNotFoundError(id)
	}

	if !u.IsActive {
		if err := s.sessions.DeleteByUserID(ctx, id); err != nil {
			return nil, fmt.Errorf("セッションの破棄に失敗しました: %w", err)
		}
	}

	slog.Info("user status changed",
		slog.String("user_id", id),
		slog.Bool("active", u.IsActive),
	)
	return u, nil
}

// Dashboard はユーザー数とロール別の割り当て数を集計する。
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	active := lo.CountBy(users, func(u *model.User) bool { return u.IsActive })
	return &Dashboard{
		TotalUsers:    len(users),
		ActiveUsers:   active,
		InactiveUsers: len(users) - active,
		Roles:         roles,
	}, nil
}

// ListRoles は全ロールを割り当てユーザー数付きで返す。
func (s *Service) ListRoles(ctx context.Context) ([]*model.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ロール一覧の取得に失敗しました: %w", err)
	}
	return roles, nil
}

// GetRole は指定IDのロールを返す。
func (s *Service) GetRole(ctx context.Context, id int) (*model.Role, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ロールの取得に失敗しました: %w", err)
	}
	if role == nil {
		return nil, model.NewRoleNotFoundError(fmt.Sprint(id))
	}
	return role, nil
}

// CreateRole はロールを作成する。ロール名は大文字小文字を区別せず一意。
func (s *Service) CreateRole(ctx context.Context, name string) (*model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("Role name is required")
	}

	role, err := s.roles.Create(ctx, name)
	if errors.Is(err, repository.ErrRoleExists) {
		return nil, model.NewRoleExistsError(name)
	}
	if err != nil {
		return nil, fmt.Errorf("ロールの作成に失敗しました: %w", err)
	}

	slog.Info("role created", slog.Int("role_id", role.ID), slog.String("role", role.Name))
	return role, nil
}

// AssignRole はユーザーにロールを割り当てる。
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) error {
	role, err := s.userAndRole(ctx, userID, roleName)
	if err != nil {
		return err
	}

	assigned, err := s.roles.AssignToUser(ctx, userID, role.ID)
	if err != nil {
		return fmt.Errorf("ロールの割り当てに失敗しました: %w", err)
	}
	if !assigned {
		return model.NewRoleAlreadyAssignedError(roleName)
	}

	slog.Info("role assigned", slog.String("user_id", userID), slog.String("role", role.Name))
	return nil
}

// RemoveRole はユーザーからロールを外す。
func (s *Service) RemoveRole(ctx context.Context, userID, roleName string) error {
	role, err := s.userAndRole(ctx, userID, roleName)
	if err != nil {
		return err
	}

	removed, err := s.roles.RemoveFromUser(ctx, userID, role.ID)
	if err != nil {
		return fmt.Errorf("ロールの解除に失敗しました: %w", err)
	}
	if !removed {
		return model.NewRoleNotAssignedError(roleName)
	}

	slog.Info("role removed", slog.String("user_id", userID), slog.String("role", role.Name))
	return nil
}

// UsersInRole は指定ロールを持つユーザーを返す。ロール名は大文字小文字を区別しない。
func (s *Service) UsersInRole(ctx context.Context, roleName string) ([]*model.User, error) {
	role, err := s.findRole(ctx, roleName)
	if err != nil {
		return nil, err
	}

	users, err := s.users.ListByRole(ctx, role.Name)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// userAndRole はユーザーの存在を確認し、ロールを名前で解決する。
func (s *Service) userAndRole(ctx context.Context, userID, roleName string) (*model.Role, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.findRole(ctx, roleName)
}

func (s *Service) findRole(ctx context.Context, name string) (*model.Role, error) {
	role, err := s.roles.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("ロールの取得に失敗しました: %w", err)
	}
	if role == nil {
		return nil, model.NewRoleNotFoundError(name)
	}
	return role, nil
}
