// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, negotiation, product, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNegotiationNotFound          = "NEGOTIATION_NOT_FOUND"
	ErrCodeProductNotFound              = "PRODUCT_NOT_FOUND"
	ErrCodeForbidden                    = "FORBIDDEN"
	ErrCodeUnauthorized                 = "UNAUTHORIZED"
	ErrCodeInvalidTransition            = "INVALID_TRANSITION"
	ErrCodeValidationFailed             = "VALIDATION_FAILED"
	ErrCodeInvalidRequest               = "INVALID_REQUEST"
	ErrCodeDuplicateNegotiation         = "DUPLICATE_NEGOTIATION"
	ErrCodeDeadlinePassed               = "DEADLINE_PASSED"
	ErrCodeAttemptsExhausted            = "ATTEMPTS_EXHAUSTED"
	ErrCodeMissingIdentity              = "MISSING_IDENTITY"
	ErrCodeProductHasActiveNegotiations = "PRODUCT_HAS_ACTIVE_NEGOTIATIONS"
	ErrCodeUsernameTaken                = "USERNAME_TAKEN"
	ErrCodeEmailTaken                   = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials           = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound                 = "USER_NOT_FOUND"
	ErrCodeRoleNotFound                 = "ROLE_NOT_FOUND"
	ErrCodeRoleExists                   = "ROLE_EXISTS"
	ErrCodeRoleAlreadyAssigned          = "ROLE_ALREADY_ASSIGNED"
	ErrCodeRoleNotAssigned              = "ROLE_NOT_ASSIGNED"
	ErrCodeInternal                     = "INTERNAL_ERROR"
)

// NewNegotiationNotFoundError は交渉未検出エラーを生成する。
func NewNegotiationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeNegotiationNotFound,
		Message:  fmt.Sprintf("Negotiation not found: %s", id),
		Category: "negotiation",
		Action:   "Check the negotiation ID.",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
// 交渉作成時は400、商品APIでは404として扱われる（ハンドラー側で判断）。
func NewProductNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  "Product not found",
		Category: "product",
		Action:   "Check the product ID.",
	}
}

// NewForbiddenError はアクセス権限エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  reason,
		Category: "auth",
		Action:   "Provide the client identifier or email used when the negotiation was created.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Log in and send the token in the Authorization header.",
	}
}

// NewInvalidTransitionError は現在の状態で許可されない操作のエラーを生成する。
func NewInvalidTransitionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  reason,
		Category: "negotiation",
		Action:   "Reload the negotiation to see its current status.",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  reason,
		Category: "validation",
		Action:   "Fix the request and try again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Failed to parse the request body.",
		Category: "validation",
		Action:   "Send a valid JSON body.",
	}
}

// NewDuplicateNegotiationError は同一商品への進行中の交渉が既に存在する場合のエラーを生成する。
func NewDuplicateNegotiationError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateNegotiation,
		Message:  "You already have an active negotiation for this product",
		Category: "negotiation",
		Action:   "Wait for the seller to respond to your current proposal.",
	}
}

// NewDeadlinePassedError は再提示期限切れエラーを生成する。
func NewDeadlinePassedError() *APIError {
	return &APIError{
		Code:     ErrCodeDeadlinePassed,
		Message:  "The deadline for this negotiation has passed",
		Category: "negotiation",
		Action:   "Start a new negotiation for the product.",
	}
}

// NewAttemptsExhaustedError は提示回数の上限到達エラーを生成する。
func NewAttemptsExhaustedError(max int) *APIError {
	return &APIError{
		Code:     ErrCodeAttemptsExhausted,
		Message:  fmt.Sprintf("Maximum number of negotiation attempts (%d) has been reached", max),
		Category: "negotiation",
		Action:   "Start a new negotiation for the product.",
	}
}

// NewMissingIdentityError はクライアント識別子もメールも指定されていない場合のエラーを生成する。
func NewMissingIdentityError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingIdentity,
		Message:  "Either client identifier or email is required",
		Category: "validation",
		Action:   "Send the Client-Identifier header or the email query parameter.",
	}
}

// NewProductHasActiveNegotiationsError は進行中の交渉がある商品を削除しようとした場合のエラーを生成する。
func NewProductHasActiveNegotiationsError() *APIError {
	return &APIError{
		Code:     ErrCodeProductHasActiveNegotiations,
		Message:  "Cannot delete product with active negotiations.",
		Category: "product",
		Action:   "Resolve pending and accepted negotiations first.",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  "Username is already taken",
		Category: "auth",
		Action:   "Choose another username.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Email is already registered",
		Category: "auth",
		Action:   "Log in with the existing account.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid username or password",
		Category: "auth",
		Action:   "Check your username and password.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("User with ID %s not found", id),
		Category: "user",
		Action:   "Check the user ID.",
	}
}

// NewRoleNotFoundError はロールが見つからない場合のエラーを生成する。
func NewRoleNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeRoleNotFound,
		Message:  fmt.Sprintf("Role %s not found", name),
		Category: "user",
		Action:   "Check the role name.",
	}
}

// NewRoleExistsError は同名（大文字小文字を区別しない）のロールが既に存在する場合のエラーを生成する。
func NewRoleExistsError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeRoleExists,
		Message:  fmt.Sprintf("Role with name '%s' already exists", name),
		Category: "user",
		Action:   "Choose another role name.",
	}
}

// NewRoleAlreadyAssignedError はユーザーが既にロールを持っている場合のエラーを生成する。
func NewRoleAlreadyAssignedError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeRoleAlreadyAssigned,
		Message:  fmt.Sprintf("User already has role %s", name),
		Category: "user",
	}
}

// NewRoleNotAssignedError はユーザーがロールを持っていない場合のエラーを生成する。
func NewRoleNotAssignedError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeRoleNotAssigned,
		Message:  fmt.Sprintf("User does not have role %s", name),
		Category: "user",
	}
}

// ErrorCode はエラーチェーンにAPIErrorが含まれていればそのコードを返す。
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
