// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/model"
)

// ErrNegotiationNotFound は Mutate の対象交渉が存在しない場合に返される。
var ErrNegotiationNotFound = errors.New("negotiation not found")

// ErrDuplicatePending は同一商品・同一クライアントの Pending 交渉が既に存在する場合に返される。
var ErrDuplicatePending = errors.New("pending negotiation already exists")

// ErrRoleExists は同名（大文字小文字を区別しない）のロールが既に存在する場合に返される。
var ErrRoleExists = errors.New("role already exists")

// ErrConcurrentUpdate はバージョン不一致により更新できなかった場合に返される。
var ErrConcurrentUpdate = errors.New("negotiation was modified concurrently")

// reopens は更新によって交渉が Pending に戻るかどうかを返す。
// Pending に戻る更新は作成と同じく重複確認の対象になる。
func reopens(before, after *model.Negotiation) bool {
	return !before.IsPending() && after.IsPending()
}

// ownerOf は交渉に記録されたクライアントの識別情報を返す。
func ownerOf(n *model.Negotiation) identity.ClientIdentity {
	return identity.New(n.ClientToken, n.ClientEmail)
}

// MutateFunc は排他単位内で読み込んだ交渉を書き換える関数。
// write=true の場合、err の有無にかかわらず変更を永続化する。
type MutateFunc func(n *model.Negotiation) (write bool, err error)

// NegotiationFilter は交渉一覧の検索条件。
// ゼロ値は全件を表す。
type NegotiationFilter struct {
	ProductID string
	// Client が空でない場合、トークンまたはメールのいずれかが一致する交渉に絞り込む（OR条件）。
	Client identity.ClientIdentity
}

// NegotiationRepository は価格交渉の永続化インターフェース。
// 判定と書き込みを伴う操作は、同一交渉（または同一商品）に対して直列化される。
type NegotiationRepository interface {
	// Create は交渉を作成する。
	Create(ctx context.Context, n *model.Negotiation) error

	// CreateExclusive は Pending 交渉の重複確認と作成を1つの排他単位で行う。
	// 重複がある場合は ErrDuplicatePending を返す。
	CreateExclusive(ctx context.Context, n *model.Negotiation, client identity.ClientIdentity) error

	// FindByID は指定IDの交渉を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Negotiation, error)

	// List は条件に一致する交渉を作成日時の降順で返す。
	List(ctx context.Context, filter NegotiationFilter) ([]*model.Negotiation, error)

	// ExistsPendingFor は商品とクライアントに対する Pending 交渉が存在するかを返す。
	ExistsPendingFor(ctx context.Context, productID string, client identity.ClientIdentity) (bool, error)

	// ExistsActiveForProduct は商品に Pending または Accepted の交渉が存在するかを返す。
	ExistsActiveForProduct(ctx context.Context, productID string) (bool, error)

	// Update は交渉を更新する。バージョンが一致しない場合は ErrConcurrentUpdate を返す。
	Update(ctx context.Context, n *model.Negotiation) error

	// Mutate は交渉をロックして読み込み、fn を適用し、必要なら書き込む。
	// 更新で Pending に戻る場合、同一商品・同一クライアントの Pending 交渉があれば
	// 書き込まずに ErrDuplicatePending を返す。
	// 交渉が存在しない場合は ErrNegotiationNotFound を返し、fn は呼ばれない。
	// 戻り値は fn 適用後の交渉と fn が返したエラー。
	Mutate(ctx context.Context, id string, fn MutateFunc) (*model.Negotiation, error)
}

// ProductRepository は商品データの永続化インターフェース。
type ProductRepository interface {
	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Product, error)
	// List は全商品を作成日時の降順で返す。
	List(ctx context.Context) ([]*model.Product, error)
	// Create は商品を作成する。
	Create(ctx context.Context, p *model.Product) error
	// Update は商品を更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, p *model.Product) (bool, error)
	// Delete は商品を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーをロール付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByUsername はユーザー名でユーザーをロール付きで取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	// ExistsByUsername はユーザー名が使用済みかどうかを返す。
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// ExistsByEmail はメールアドレスが使用済みかどうかを返す。
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// CreateWithRoles はユーザーとロール割り当てを同一トランザクションで作成する。
	CreateWithRoles(ctx context.Context, user *model.User) error
	// List は全ユーザーをロール付きで作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.User, error)
	// ListByRole は指定ロールを持つユーザーを作成日時の昇順で返す。
	ListByRole(ctx context.Context, roleName string) ([]*model.User, error)
	// SetActive はユーザーの有効状態を更新する。対象が存在しない場合はfalseを返す。
	SetActive(ctx context.Context, id string, active bool) (bool, error)
}

// RoleRepository はロールとユーザーへの割り当ての永続化インターフェース。
type RoleRepository interface {
	// List は全ロールを割り当てユーザー数付きでID順に返す。
	List(ctx context.Context) ([]*model.Role, error)
	// FindByID は指定IDのロールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int) (*model.Role, error)
	// FindByName は大文字小文字を区別せずにロールを取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Role, error)
	// Create はロールを作成する。同名のロールがある場合は ErrRoleExists を返す。
	Create(ctx context.Context, name string) (*model.Role, error)
	// AssignToUser はユーザーにロールを割り当てる。既に割り当て済みの場合はfalseを返す。
	AssignToUser(ctx context.Context, userID string, roleID int) (bool, error)
	// RemoveFromUser はユーザーからロールを外す。割り当てがない場合はfalseを返す。
	RemoveFromUser(ctx context.Context, userID string, roleID int) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は now 時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
