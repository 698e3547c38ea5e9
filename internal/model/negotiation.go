// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// NegotiationStatus は価格交渉のライフサイクル状態を表す。
type NegotiationStatus string

const (
	// NegotiationStatusPending は販売者の回答待ち状態（初期状態）。
	NegotiationStatusPending NegotiationStatus = "pending"
	// NegotiationStatusAccepted は提示価格が承認された終端状態。
	NegotiationStatusAccepted NegotiationStatus = "accepted"
	// NegotiationStatusRejected は提示価格が却下され、再提示を待つ状態。
	NegotiationStatusRejected NegotiationStatus = "rejected"
	// NegotiationStatusCancelled は期限切れまたは試行回数超過で打ち切られた終端状態。
	NegotiationStatusCancelled NegotiationStatus = "cancelled"
)

// Label はAPIレスポンスで使用する表示名（Pending, Accepted 等）を返す。
func (s NegotiationStatus) Label() string {
	switch s {
	case NegotiationStatusPending:
		return "Pending"
	case NegotiationStatusAccepted:
		return "Accepted"
	case NegotiationStatusRejected:
		return "Rejected"
	case NegotiationStatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Negotiation は商品に対する価格交渉を表す集約ルート。
//
// ClientToken と ClientEmail は作成時にリクエストから取り込まれ、以降変更されない。
// RespondedByUserID / ResponseComment / ResponseDate は回答時にまとめて設定され、
// 再提示時にまとめてクリアされる。
type Negotiation struct {
	ID                  string
	ProductID           string
	ProposedPrice       decimal.Decimal
	ClientToken         string // 任意。空文字列は未設定を表す
	ClientEmail         string
	ClientName          string
	Status              NegotiationStatus
	AttemptCount        int
	RespondedByUserID   *string
	ResponseComment     *string
	ResponseDate        *time.Time
	NextAttemptDeadline *time.Time
	CreatedAt           time.Time
	Version             int
}

// IsPending は回答待ち状態かどうかを返す。
func (n *Negotiation) IsPending() bool {
	return n.Status == NegotiationStatusPending
}

// Clone はポインタフィールドを含めたディープコピーを返す。
// インメモリストアが呼び出し元と状態を共有しないために使用する。
func (n *Negotiation) Clone() *Negotiation {
	if n == nil {
		return nil
	}
	c := *n
	if n.RespondedByUserID != nil {
		v := *n.RespondedByUserID
		c.RespondedByUserID = &v
	}
	if n.ResponseComment != nil {
		v := *n.ResponseComment
		c.ResponseComment = &v
	}
	if n.ResponseDate != nil {
		v := *n.ResponseDate
		c.ResponseDate = &v
	}
	if n.NextAttemptDeadline != nil {
		v := *n.NextAttemptDeadline
		c.NextAttemptDeadline = &v
	}
	return &c
}
