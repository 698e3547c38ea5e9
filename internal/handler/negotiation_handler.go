package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/middleware"
	"github.com/hitoshi/negotiator/internal/model"
	"github.com/hitoshi/negotiator/internal/negotiation"
)

// NegotiationServiceInterface は交渉ハンドラーが必要とするサービスインターフェース。
type NegotiationServiceInterface interface {
	// Create は新しい交渉を作成する。
	Create(ctx context.Context, in negotiation.CreateInput, client identity.ClientIdentity) (*model.Negotiation, error)
	// Get は交渉を1件取得する。
	Get(ctx context.Context, id string, principal *model.Principal, client identity.ClientIdentity) (*model.Negotiation, error)
	// ListForClient はクライアント自身の交渉一覧を返す。
	ListForClient(ctx context.Context, client identity.ClientIdentity) ([]*model.Negotiation, error)
	// ListAll は全交渉を返す。
	ListAll(ctx context.Context, principal *model.Principal) ([]*model.Negotiation, error)
	// ListByProduct は商品ごとの交渉一覧を返す。
	ListByProduct(ctx context.Context, principal *model.Principal, productID string) ([]*model.Negotiation, error)
	// Respond は交渉を承認または却下する。
	Respond(ctx context.Context, id string, principal *model.Principal, accept bool, comment *string) (*model.Negotiation, error)
	// ProposeNewPrice は却下された交渉に新しい価格を再提示する。
	ProposeNewPrice(ctx context.Context, id string, client identity.ClientIdentity, price decimal.Decimal) (*model.Negotiation, error)
}

// NegotiationHandler は価格交渉のHTTPハンドラー。
type NegotiationHandler struct {
	service NegotiationServiceInterface
}

// NewNegotiationHandler はNegotiationHandlerを生成する。
func NewNegotiationHandler(service NegotiationServiceInterface) *NegotiationHandler {
	return &NegotiationHandler{service: service}
}

// createNegotiationRequest は交渉作成リクエストのボディ。
// 価格の検証は商品の存在確認の後にサービス層で行う。
type createNegotiationRequest struct {
	ProductID     string          `json:"productId" validate:"required"`
	ProposedPrice decimal.Decimal `json:"proposedPrice"`
	ClientEmail   string          `json:"clientEmail" validate:"required,email,max=254"`
	ClientName    string          `json:"clientName" validate:"max=200"`
}

// respondRequest は販売者の回答リクエストのボディ。
type respondRequest struct {
	IsAccepted bool    `json:"isAccepted"`
	Comment    *string `json:"comment" validate:"omitempty,max=1000"`
}

// proposeNewPriceRequest は再提示リクエストのボディ。
type proposeNewPriceRequest struct {
	ProposedPrice decimal.Decimal `json:"proposedPrice"`
}

// negotiationResponse は交渉のAPIレスポンス。
type negotiationResponse struct {
	ID                  string      `json:"id"`
	ProductID           string      `json:"productId"`
	ProposedPrice       json.Number `json:"proposedPrice"`
	ClientEmail         string      `json:"clientEmail"`
	ClientName          string      `json:"clientName,omitempty"`
	Status              string      `json:"status"`
	AttemptCount        int         `json:"attemptCount"`
	ResponseComment     *string     `json:"responseComment,omitempty"`
	ResponseDate        *time.Time  `json:"responseDate,omitempty"`
	NextAttemptDeadline *time.Time  `json:"nextAttemptDeadline,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
}

// respondResponse は回答結果のレスポンス。
type respondResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// proposeNewPriceResponse は再提示結果のレスポンス。
type proposeNewPriceResponse struct {
	Message      string `json:"message"`
	AttemptCount int    `json:"attemptCount"`
}

// clientIdentityFromRequest はヘッダーのクライアント識別子とクエリのメールから識別情報を組み立てる。
func clientIdentityFromRequest(r *http.Request) identity.ClientIdentity {
	return identity.New(
		r.Header.Get(middleware.ClientIdentifierHeader),
		r.URL.Query().Get("email"),
	)
}

// Create は交渉の作成を処理する。
// POST /api/negotiations
func (h *NegotiationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNegotiationRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	client := identity.New(r.Header.Get(middleware.ClientIdentifierHeader), "")
	n, err := h.service.Create(r.Context(), negotiation.CreateInput{
		ProductID:     req.ProductID,
		ProposedPrice: req.ProposedPrice,
		ClientEmail:   req.ClientEmail,
		ClientName:    req.ClientName,
	}, client)
	if err != nil {
		// 作成時の商品未検出はリクエスト不備として扱う
		if model.ErrorCode(err) == model.ErrCodeProductNotFound {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewProductNotFoundError())
			return
		}
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toNegotiationResponse(n))
}

// Get は交渉を1件返す。
// GET /api/negotiations/{id}
func (h *NegotiationHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Get(r.Context(),
		chi.URLParam(r, "id"),
		middleware.PrincipalFromContext(r.Context()),
		clientIdentityFromRequest(r),
	)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toNegotiationResponse(n))
}

// ListForClient はクライアント自身の交渉一覧を返す。
// GET /api/negotiations/client
func (h *NegotiationHandler) ListForClient(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListForClient(r.Context(), clientIdentityFromRequest(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toNegotiationResponses(list))
}

// ListAll は全交渉を返す。
// GET /api/negotiations
func (h *NegotiationHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAll(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toNegotiationResponses(list))
}

// ListByProduct は商品ごとの交渉一覧を返す。
// GET /api/negotiations/product/{productId}
func (h *NegotiationHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListByProduct(r.Context(),
		middleware.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "productId"),
	)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toNegotiationResponses(list))
}

// Respond は販売者による承認・却下を処理する。
// POST /api/negotiations/{id}/respond
func (h *NegotiationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	n, err := h.service.Respond(r.Context(),
		chi.URLParam(r, "id"),
		middleware.PrincipalFromContext(r.Context()),
		req.IsAccepted,
		req.Comment,
	)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	msg := "Negotiation accepted"
	if !req.IsAccepted {
		msg = "Negotiation rejected. Client has 7 days to propose a new price."
	}
	writeJSON(w, http.StatusOK, respondResponse{
		Status:  n.Status.Label(),
		Message: msg,
	})
}

// ProposeNewPrice はクライアントによる価格の再提示を処理する。
// POST /api/negotiations/{id}/propose-new-price
func (h *NegotiationHandler) ProposeNewPrice(w http.ResponseWriter, r *http.Request) {
	var req proposeNewPriceRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	n, err := h.service.ProposeNewPrice(r.Context(),
		chi.URLParam(r, "id"),
		clientIdentityFromRequest(r),
		req.ProposedPrice,
	)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, proposeNewPriceResponse{
		Message:      "New price proposed successfully",
		AttemptCount: n.AttemptCount,
	})
}

func toNegotiationResponse(n *model.Negotiation) negotiationResponse {
	return negotiationResponse{
		ID:                  n.ID,
		ProductID:           n.ProductID,
		ProposedPrice:       priceJSON(n.ProposedPrice),
		ClientEmail:         n.ClientEmail,
		ClientName:          n.ClientName,
		Status:              n.Status.Label(),
		AttemptCount:        n.AttemptCount,
		ResponseComment:     n.ResponseComment,
		ResponseDate:        n.ResponseDate,
		NextAttemptDeadline: n.NextAttemptDeadline,
		CreatedAt:           n.CreatedAt,
	}
}

func toNegotiationResponses(list []*model.Negotiation) []negotiationResponse {
	return lo.Map(list, func(n *model.Negotiation, _ int) negotiationResponse {
		return toNegotiationResponse(n)
	})
}
