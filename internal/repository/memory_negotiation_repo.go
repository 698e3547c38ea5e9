package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/model"
)

// MemoryNegotiationRepo はプロセス内メモリに交渉を保持するリポジトリ。
// STORAGE_DRIVER=memory でのローカル実行とテストで使用する。
// ストア全体を1つのミューテックスで直列化し、判定と書き込みを不可分にする。
// 保持する値は常に複製し、呼び出し元と状態を共有しない。
type MemoryNegotiationRepo struct {
	mu    sync.Mutex
	items map[string]*model.Negotiation
}

// NewMemoryNegotiationRepo はMemoryNegotiationRepoを生成する。
func NewMemoryNegotiationRepo() *MemoryNegotiationRepo {
	return &MemoryNegotiationRepo{items: make(map[string]*model.Negotiation)}
}

// Create は交渉を作成する。
func (r *MemoryNegotiationRepo) Create(_ context.Context, n *model.Negotiation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(n)
	return nil
}

// CreateExclusive は Pending 交渉の重複確認と作成を同一ロック内で行う。
func (r *MemoryNegotiationRepo) CreateExclusive(_ context.Context, n *model.Negotiation, client identity.ClientIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.existsPendingLocked(n.ProductID, client) {
		return ErrDuplicatePending
	}
	r.insertLocked(n)
	return nil
}

func (r *MemoryNegotiationRepo) insertLocked(n *model.Negotiation) {
	if n.Version == 0 {
		n.Version = 1
	}
	r.items[n.ID] = n.Clone()
}

// FindByID は指定IDの交渉を取得する。見つからない場合はnilを返す。
func (r *MemoryNegotiationRepo) FindByID(_ context.Context, id string) (*model.Negotiation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id].Clone(), nil
}

// List は条件に一致する交渉を作成日時の降順で返す。
func (r *MemoryNegotiationRepo) List(_ context.Context, filter NegotiationFilter) ([]*model.Negotiation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := lo.Filter(lo.Values(r.items), func(n *model.Negotiation, _ int) bool {
		if filter.ProductID != "" && n.ProductID != filter.ProductID {
			return false
		}
		if !filter.Client.IsEmpty() && !filter.Client.Matches(n.ClientToken, n.ClientEmail) {
			return false
		}
		return true
	})
	slices.SortFunc(matched, func(a, b *model.Negotiation) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return lo.Map(matched, func(n *model.Negotiation, _ int) *model.Negotiation {
		return n.Clone()
	}), nil
}

// ExistsPendingFor は商品とクライアントに対する Pending 交渉が存在するかを返す。
func (r *MemoryNegotiationRepo) ExistsPendingFor(_ context.Context, productID string, client identity.ClientIdentity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.existsPendingLocked(productID, client), nil
}

func (r *MemoryNegotiationRepo) existsPendingLocked(productID string, client identity.ClientIdentity) bool {
	if client.IsEmpty() {
		return false
	}
	return lo.SomeBy(lo.Values(r.items), func(n *model.Negotiation) bool {
		return n.ProductID == productID && n.IsPending() && client.Matches(n.ClientToken, n.ClientEmail)
	})
}

// ExistsActiveForProduct は商品に Pending または Accepted の交渉が存在するかを返す。
func (r *MemoryNegotiationRepo) ExistsActiveForProduct(_ context.Context, productID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.SomeBy(lo.Values(r.items), func(n *model.Negotiation) bool {
		return n.ProductID == productID &&
			(n.Status == model.NegotiationStatusPending || n.Status == model.NegotiationStatusAccepted)
	}), nil
}

// Update は交渉を更新する。バージョンが一致しない場合は ErrConcurrentUpdate を返す。
func (r *MemoryNegotiationRepo) Update(_ context.Context, n *model.Negotiation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(n)
}

func (r *MemoryNegotiationRepo) updateLocked(n *model.Negotiation) error {
	current, ok := r.items[n.ID]
	if !ok {
		return ErrNegotiationNotFound
	}
	if current.Version != n.Version {
		return ErrConcurrentUpdate
	}
	n.Version++
	r.items[n.ID] = n.Clone()
	return nil
}

// Mutate は交渉をロック内で読み込み、fn を適用し、必要なら書き込む。
func (r *MemoryNegotiationRepo) Mutate(_ context.Context, id string, fn MutateFunc) (*model.Negotiation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return nil, ErrNegotiationNotFound
	}

	n := current.Clone()
	write, fnErr := fn(n)
	if write {
		if reopens(current, n) && r.existsPendingLocked(n.ProductID, ownerOf(n)) {
			return nil, ErrDuplicatePending
		}
		if err := r.updateLocked(n); err != nil {
			return nil, err
		}
	}
	return n, fnErr
}

// compile-time interface check
var _ NegotiationRepository = (*MemoryNegotiationRepo)(nil)
