package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/negotiator/internal/middleware"
	"github.com/hitoshi/negotiator/internal/model"
)

// validate はリクエストボディの検証器。
// decimal.Decimal は float64 として扱い、gt=0 などの数値ルールを適用できるようにする。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validationMessages はフィールドごとの検証エラーメッセージ。
var validationMessages = map[string]string{
	"ProductID":     "Product ID is required",
	"ProposedPrice": "Proposed price must be greater than 0",
	"ClientEmail":   "A valid client email is required",
	"ClientName":    "Client name must be at most 200 characters",
	"Comment":       "Comment must be at most 1000 characters",
	"Name":          "Name is required",
	"Description":   "Description is required",
	"Price":         "Price must be greater than 0",
	"Username":      "Username must be 3 to 50 characters",
	"Email":         "A valid email is required",
	"Password":      "Password must be at least 6 characters",
	"UserID":        "User ID is required",
	"RoleName":      "Role name is required",
}

// decodeAndValidate はJSONボディを読み込み、validateタグで検証する。
// 失敗時はクライアントに返すAPIErrorを返す。
func decodeAndValidate(r *http.Request, dst any) *model.APIError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewInvalidRequestError()
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if msg, ok := validationMessages[verrs[0].StructField()]; ok {
				return model.NewValidationError(msg)
			}
			return model.NewValidationError(verrs[0].Error())
		}
		return model.NewInvalidRequestError()
	}
	return nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeNegotiationNotFound, model.ErrCodeProductNotFound,
		model.ErrCodeUserNotFound, model.ErrCodeRoleNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidTransition,
		model.ErrCodeValidationFailed,
		model.ErrCodeInvalidRequest,
		model.ErrCodeDuplicateNegotiation,
		model.ErrCodeDeadlinePassed,
		model.ErrCodeAttemptsExhausted,
		model.ErrCodeMissingIdentity,
		model.ErrCodeProductHasActiveNegotiations,
		model.ErrCodeUsernameTaken,
		model.ErrCodeEmailTaken,
		model.ErrCodeRoleExists,
		model.ErrCodeRoleAlreadyAssigned,
		model.ErrCodeRoleNotAssigned:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// priceJSON は金額を小数点以下2桁の数値としてJSONに出力する。
func priceJSON(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
