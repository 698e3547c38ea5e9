package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/hitoshi/negotiator/internal/model"
)

// MemoryProductRepo はプロセス内メモリの商品リポジトリ。
type MemoryProductRepo struct {
	mu    sync.RWMutex
	items map[string]model.Product
}

// NewMemoryProductRepo はMemoryProductRepoを生成する。
func NewMemoryProductRepo() *MemoryProductRepo {
	return &MemoryProductRepo{items: make(map[string]model.Product)}
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *MemoryProductRepo) FindByID(_ context.Context, id string) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// List は全商品を作成日時の降順で返す。
func (r *MemoryProductRepo) List(_ context.Context) ([]*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	products := lo.MapToSlice(r.items, func(_ string, p model.Product) *model.Product {
		return &p
	})
	slices.SortFunc(products, func(a, b *model.Product) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return products, nil
}

// Create は商品を作成する。
func (r *MemoryProductRepo) Create(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; ok {
		return fmt.Errorf("product already exists: %s", p.ID)
	}
	r.items[p.ID] = *p
	return nil
}

// Update は商品を更新する。対象が存在しない場合はfalseを返す。
func (r *MemoryProductRepo) Update(_ context.Context, p *model.Product) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[p.ID]
	if !ok {
		return false, nil
	}
	current.Name = p.Name
	current.Description = p.Description
	current.Price = p.Price
	r.items[p.ID] = current
	return true, nil
}

// Delete は商品を削除する。対象が存在しない場合はfalseを返す。
func (r *MemoryProductRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return false, nil
	}
	delete(r.items, id)
	return true, nil
}

// MemoryUserRepo はプロセス内メモリのユーザーリポジトリ。
type MemoryUserRepo struct {
	mu    sync.RWMutex
	items map[string]model.User
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{items: make(map[string]model.User)}
}

func copyUser(u model.User) *model.User {
	u.Roles = append([]string(nil), u.Roles...)
	return &u
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.items {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

// ExistsByUsername はユーザー名が使用済みかどうかを返す。
func (r *MemoryUserRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.SomeBy(lo.Values(r.items), func(u model.User) bool { return u.Username == username }), nil
}

// ExistsByEmail はメールアドレスが使用済みかどうかを返す。
func (r *MemoryUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.SomeBy(lo.Values(r.items), func(u model.User) bool { return u.Email == email }), nil
}

// CreateWithRoles はユーザーを作成する。
func (r *MemoryUserRepo) CreateWithRoles(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.items {
		if u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("user already exists: %s", user.Username)
		}
	}
	r.items[user.ID] = *copyUser(*user)
	return nil
}

// List は全ユーザーを作成日時の昇順で返す。
func (r *MemoryUserRepo) List(_ context.Context) ([]*model.User, error) {
	return r.filter(func(model.User) bool { return true }), nil
}

// ListByRole は指定ロールを持つユーザーを作成日時の昇順で返す。
func (r *MemoryUserRepo) ListByRole(_ context.Context, roleName string) ([]*model.User, error) {
	return r.filter(func(u model.User) bool { return lo.Contains(u.Roles, roleName) }), nil
}

func (r *MemoryUserRepo) filter(pred func(model.User) bool) []*model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := lo.FilterMap(lo.Values(r.items), func(u model.User, _ int) (*model.User, bool) {
		return copyUser(u), pred(u)
	})
	slices.SortFunc(users, func(a, b *model.User) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return users
}

// SetActive はユーザーの有効状態を更新する。
func (r *MemoryUserRepo) SetActive(_ context.Context, id string, active bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.items[id]
	if !ok {
		return false, nil
	}
	u.IsActive = active
	r.items[id] = u
	return true, nil
}

// updateRoles はユーザーのロール名一覧を fn で書き換える。
// ユーザーが存在しない場合、または fn が changed=false を返した場合は何もしない。
func (r *MemoryUserRepo) updateRoles(id string, fn func(roles []string) ([]string, bool)) (found, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.items[id]
	if !ok {
		return false, false
	}
	roles, changed := fn(append([]string(nil), u.Roles...))
	if changed {
		u.Roles = roles
		r.items[id] = u
	}
	return true, changed
}

// MemorySessionRepo はプロセス内メモリのセッションリポジトリ。
type MemorySessionRepo struct {
	mu    sync.Mutex
	items map[string]model.Session
	now   func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{items: make(map[string]model.Session), now: time.Now}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[session.ID] = *session
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok || !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return &s, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *MemorySessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.items {
		if s.UserID == userID {
			delete(r.items, id)
		}
	}
	return nil
}

// DeleteExpired は now 時点で期限切れのセッションを削除し、削除件数を返す。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, s := range r.items {
		if !s.ExpiresAt.After(now) {
			delete(r.items, id)
			deleted++
		}
	}
	return deleted, nil
}

// compile-time interface check
var (
	_ ProductRepository = (*MemoryProductRepo)(nil)
	_ UserRepository    = (*MemoryUserRepo)(nil)
	_ SessionRepository = (*MemorySessionRepo)(nil)
)
