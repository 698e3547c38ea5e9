package negotiation

import (
	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/model"
)

// Decision は認可ゲートの判定結果。
type Decision int

const (
	// Allow は操作を許可する。
	Allow Decision = iota
	// Forbid は識別情報またはロールの不一致で拒否する。
	Forbid
	// NotFound は対象の交渉が存在しない。
	NotFound
	// Unauthenticated は認証が必要な操作に未認証で要求された。
	Unauthenticated
)

// String はログ出力用の名前を返す。
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Forbid:
		return "forbid"
	case NotFound:
		return "not_found"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Action はゲートに問い合わせる操作の種類。
type Action int

const (
	// ActionRead は交渉1件の参照。
	ActionRead Action = iota
	// ActionPropose は再提示。
	ActionPropose
	// ActionManage は回答・全件一覧・商品別一覧（admin / seller 専用）。
	ActionManage
)

// Authorize は呼び出し元が交渉 n に対して action を実行できるかを判定する。
//
// principal は未認証の場合 nil。client はリクエストのヘッダーとクエリから明示的に渡す。
// ActionManage はロール判定を存在確認より先に行う。
func Authorize(action Action, principal *model.Principal, client identity.ClientIdentity, n *model.Negotiation) Decision {
	if action == ActionManage {
		if d := AuthorizeManage(principal); d != Allow {
			return d
		}
	}

	if n == nil {
		return NotFound
	}

	switch action {
	case ActionRead:
		if principal != nil || client.Matches(n.ClientToken, n.ClientEmail) {
			return Allow
		}
		return Forbid
	case ActionPropose:
		// 認証済みの販売者であっても識別情報の一致が必要
		if client.Matches(n.ClientToken, n.ClientEmail) {
			return Allow
		}
		return Forbid
	case ActionManage:
		return Allow
	default:
		return Forbid
	}
}

// AuthorizeManage は admin または seller ロールを要求する操作の判定を行う。
func AuthorizeManage(principal *model.Principal) Decision {
	if principal == nil {
		return Unauthenticated
	}
	if !principal.IsAdminOrSeller() {
		return Forbid
	}
	return Allow
}

// decisionError は拒否判定をAPIErrorに変換する。Allowの場合はnil。
func decisionError(d Decision, negotiationID string) error {
	switch d {
	case Allow:
		return nil
	case NotFound:
		return model.NewNegotiationNotFoundError(negotiationID)
	case Unauthenticated:
		return model.NewUnauthorizedError()
	default:
		return model.NewForbiddenError("You do not have access to this negotiation.")
	}
}
