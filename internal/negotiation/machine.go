// Package negotiation は価格交渉のライフサイクル（状態遷移・認可・サービス層）を提供する。
package negotiation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/model"
)

const (
	// MaxAttempts は1件の交渉で許可される価格提示の最大回数（初回提示を含む）。
	MaxAttempts = 3
	// RetryWindow は却下後に再提示できる期間。
	RetryWindow = 7 * 24 * time.Hour
)

// 状態遷移エラーのメッセージ
const (
	msgPriceNotPositive = "Proposed price must be greater than 0"
	msgNotPending       = "This negotiation is no longer pending"
	msgNotRejected      = "Can only propose a new price for rejected negotiations"
)

// Machine は交渉の状態遷移を担う。
// 永続化は行わず、渡された交渉を書き換えるだけの純粋なロジックである。
type Machine struct {
	now         func() time.Time
	maxAttempts int
	retryWindow time.Duration
}

// NewMachine は新しいMachineを生成する。nowがnilの場合はtime.Nowを使用する。
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		now:         now,
		maxAttempts: MaxAttempts,
		retryWindow: RetryWindow,
	}
}

// CreateCommand は新規交渉の作成コマンド。
type CreateCommand struct {
	ID            string
	ProductID     string
	ProposedPrice decimal.Decimal
	Identity      identity.ClientIdentity // トークンはリクエストヘッダーから取り込む
	ClientEmail   string
	ClientName    string
}

// NewNegotiation は Pending 状態の新しい交渉を生成する。
// 商品の存在確認と重複チェックは呼び出し側（リポジトリの排他単位内）で行う。
func (m *Machine) NewNegotiation(cmd CreateCommand) (*model.Negotiation, error) {
	if !model.IsValidPrice(cmd.ProposedPrice) {
		return nil, model.NewValidationError(msgPriceNotPositive)
	}

	return &model.Negotiation{
		ID:            cmd.ID,
		ProductID:     cmd.ProductID,
		ProposedPrice: cmd.ProposedPrice,
		ClientToken:   cmd.Identity.Token(),
		ClientEmail:   cmd.ClientEmail,
		ClientName:    cmd.ClientName,
		Status:        model.NegotiationStatusPending,
		AttemptCount:  1,
		CreatedAt:     m.now().UTC(),
	}, nil
}

// Respond は販売者の回答（承認または却下）を適用する。
// Pending 以外の交渉に対しては InvalidTransition を返し、交渉を変更しない。
func (m *Machine) Respond(n *model.Negotiation, responderID string, accept bool, comment *string) error {
	if n.Status != model.NegotiationStatusPending {
		return model.NewInvalidTransitionError(msgNotPending)
	}

	now := m.now().UTC()
	n.RespondedByUserID = &responderID
	n.ResponseComment = comment
	n.ResponseDate = &now

	if accept {
		n.Status = model.NegotiationStatusAccepted
		n.NextAttemptDeadline = nil
		return nil
	}

	deadline := now.Add(m.retryWindow)
	n.Status = model.NegotiationStatusRejected
	n.NextAttemptDeadline = &deadline
	return nil
}

// ProposeNewPrice は却下された交渉に新しい価格を提示する。
//
// 戻り値 write は交渉を永続化すべきかどうかを表す。期限切れと試行回数超過の場合は
// 交渉を Cancelled にしたうえで write=true とエラーを同時に返す。
// 判定順: 状態 → 期限 → 試行回数 → 価格。期限ちょうどの提示は有効。
func (m *Machine) ProposeNewPrice(n *model.Negotiation, price decimal.Decimal) (write bool, err error) {
	if n.Status != model.NegotiationStatusRejected {
		return false, model.NewInvalidTransitionError(msgNotRejected)
	}

	if n.NextAttemptDeadline != nil && m.now().After(*n.NextAttemptDeadline) {
		m.cancel(n)
		return true, model.NewDeadlinePassedError()
	}

	if n.AttemptCount >= m.maxAttempts {
		m.cancel(n)
		return true, model.NewAttemptsExhaustedError(m.maxAttempts)
	}

	if !model.IsValidPrice(price) {
		return false, model.NewValidationError(msgPriceNotPositive)
	}

	n.ProposedPrice = price
	n.AttemptCount++
	n.Status = model.NegotiationStatusPending
	n.RespondedByUserID = nil
	n.ResponseComment = nil
	n.ResponseDate = nil
	n.NextAttemptDeadline = nil
	return true, nil
}

// cancel は交渉を終端状態 Cancelled にする。回答情報は記録として残す。
func (m *Machine) cancel(n *model.Negotiation) {
	n.Status = model.NegotiationStatusCancelled
	n.NextAttemptDeadline = nil
}
