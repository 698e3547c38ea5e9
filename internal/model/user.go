// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/samber/lo"
)

// ロール名
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// User は管理者・販売者のアカウントを表す。
// 価格交渉の購入者側はアカウントを持たない。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	Roles        []string
	CreatedAt    time.Time
}

// Role はユーザーに割り当てるロールを表す。
// UserCount は一覧取得時に集計した割り当てユーザー数。
type Role struct {
	ID        int
	Name      string
	UserCount int
}

// Session はユーザーのログインセッションを表す。
// IDはBearerトークンとしてクライアントに渡される。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Principal はリクエストを送信した認証済みユーザーを表す。
type Principal struct {
	UserID   string
	Username string
	Roles    []string
}

// HasRole は指定ロールのいずれかを持つかどうかを返す。
func (p *Principal) HasRole(roles ...string) bool {
	if p == nil {
		return false
	}
	return lo.Some(p.Roles, roles)
}

// IsAdminOrSeller は交渉の管理権限（admin または seller）を持つかどうかを返す。
func (p *Principal) IsAdminOrSeller() bool {
	return p.HasRole(RoleAdmin, RoleSeller)
}
