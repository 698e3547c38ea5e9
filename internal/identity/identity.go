// Package identity はアカウントを持たない購入者の二重識別（クライアントトークンとメールアドレス）を扱う。
//
// リクエストから取り出したトークンとメールは呼び出し元が明示的に渡す。
// このパッケージはリクエストやコンテキストを参照しない。
package identity

import "strings"

// Kind はどの識別子が指定されたかを表す。
type Kind int

const (
	// KindNone はトークンもメールも指定されていない状態。
	KindNone Kind = iota
	// KindToken はクライアントトークンのみ指定された状態。
	KindToken
	// KindEmail はメールアドレスのみ指定された状態。
	KindEmail
	// KindBoth は両方指定された状態。
	KindBoth
)

// String はログ出力用の名前を返す。
func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindEmail:
		return "email"
	case KindBoth:
		return "both"
	default:
		return "none"
	}
}

// ClientIdentity はリクエストが主張するクライアントの識別情報。
// ゼロ値は KindNone を表す。
type ClientIdentity struct {
	kind  Kind
	token string
	email string
}

// New はリクエストのトークンとメールから ClientIdentity を生成する。
// 前後の空白は除去し、空文字列は未指定として扱う。
func New(token, email string) ClientIdentity {
	token = strings.TrimSpace(token)
	email = strings.TrimSpace(email)

	switch {
	case token != "" && email != "":
		return ClientIdentity{kind: KindBoth, token: token, email: email}
	case token != "":
		return ClientIdentity{kind: KindToken, token: token}
	case email != "":
		return ClientIdentity{kind: KindEmail, email: email}
	default:
		return ClientIdentity{}
	}
}

// Kind は識別子の種類を返す。
func (c ClientIdentity) Kind() Kind { return c.kind }

// IsEmpty はどちらの識別子も指定されていないかどうかを返す。
func (c ClientIdentity) IsEmpty() bool { return c.kind == KindNone }

// Token はクライアントトークンを返す。指定がない場合は空文字列。
func (c ClientIdentity) Token() string { return c.token }

// Email はメールアドレスを返す。指定がない場合は空文字列。
func (c ClientIdentity) Email() string { return c.email }

// HasToken はトークンが指定されているかどうかを返す。
func (c ClientIdentity) HasToken() bool {
	return c.kind == KindToken || c.kind == KindBoth
}

// HasEmail はメールアドレスが指定されているかどうかを返す。
func (c ClientIdentity) HasEmail() bool {
	return c.kind == KindEmail || c.kind == KindBoth
}

// Matches は保存済み交渉の識別情報と一致するかどうかを判定する。
//
// トークン一致: 双方のトークンが空でなく等しい。
// メール一致: 指定メールが空でなく保存済みメールと等しい。
// いずれか一方が一致すれば true。
func (c ClientIdentity) Matches(storedToken, storedEmail string) bool {
	if c.HasToken() && storedToken != "" && c.token == storedToken {
		return true
	}
	if c.HasEmail() && c.email == storedEmail {
		return true
	}
	return false
}
