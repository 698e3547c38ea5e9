package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/middleware"
	"github.com/hitoshi/negotiator/internal/model"
	"github.com/hitoshi/negotiator/internal/negotiation"
)

// --- モック定義 ---

// mockNegotiationService はNegotiationServiceInterfaceのモック実装。
type mockNegotiationService struct {
	createFn          func(ctx context.Context, in negotiation.CreateInput, client identity.ClientIdentity) (*model.Negotiation, error)
	getFn             func(ctx context.Context, id string, principal *model.Principal, client identity.ClientIdentity) (*model.Negotiation, error)
	listForClientFn   func(ctx context.Context, client identity.ClientIdentity) ([]*model.Negotiation, error)
	listAllFn         func(ctx context.Context, principal *model.Principal) ([]*model.Negotiation, error)
	listByProductFn   func(ctx context.Context, principal *model.Principal, productID string) ([]*model.Negotiation, error)
	respondFn         func(ctx context.Context, id string, principal *model.Principal, accept bool, comment *string) (*model.Negotiation, error)
	proposeNewPriceFn func(ctx context.Context, id string, client identity.ClientIdentity, price decimal.Decimal) (*model.Negotiation, error)
}

var _ NegotiationServiceInterface = (*mockNegotiationService)(nil)

func (m *mockNegotiationService) Create(ctx context.Context, in negotiation.CreateInput, client identity.ClientIdentity) (*model.Negotiation, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in, client)
	}
	return nil, nil
}

func (m *mockNegotiationService) Get(ctx context.Context, id string, principal *model.Principal, client identity.ClientIdentity) (*model.Negotiation, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id, principal, client)
	}
	return nil, nil
}

func (m *mockNegotiationService) ListForClient(ctx context.Context, client identity.ClientIdentity) ([]*model.Negotiation, error) {
	if m.listForClientFn != nil {
		return m.listForClientFn(ctx, client)
	}
	return nil, nil
}

func (m *mockNegotiationService) ListAll(ctx context.Context, principal *model.Principal) ([]*model.Negotiation, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx, principal)
	}
	return nil, nil
}

func (m *mockNegotiationService) ListByProduct(ctx context.Context, principal *model.Principal, productID string) ([]*model.Negotiation, error) {
	if m.listByProductFn != nil {
		return m.listByProductFn(ctx, principal, productID)
	}
	return nil, nil
}

func (m *mockNegotiationService) Respond(ctx context.Context, id string, principal *model.Principal, accept bool, comment *string) (*model.Negotiation, error) {
	if m.respondFn != nil {
		return m.respondFn(ctx, id, principal, accept, comment)
	}
	return nil, nil
}

func (m *mockNegotiationService) ProposeNewPrice(ctx context.Context, id string, client identity.ClientIdentity, price decimal.Decimal) (*model.Negotiation, error) {
	if m.proposeNewPriceFn != nil {
		return m.proposeNewPriceFn(ctx, id, client, price)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withPrincipal はテスト用にリクエストコンテキストに認証済みユーザーを注入するヘルパー。
func withPrincipal(r *http.Request, userID string, roles ...string) *http.Request {
	ctx := middleware.ContextWithPrincipal(r.Context(), &model.Principal{
		UserID:   userID,
		Username: userID,
		Roles:    roles,
	})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func sampleNegotiation() *model.Negotiation {
	return &model.Negotiation{
		ID:            "neg-1",
		ProductID:     "prod-1",
		ProposedPrice: decimal.RequireFromString("150"),
		ClientToken:   "tok-1",
		ClientEmail:   "buyer@example.com",
		ClientName:    "Buyer",
		Status:        model.NegotiationStatusPending,
		AttemptCount:  1,
		CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

// --- POST /api/negotiations テスト ---

func TestNegotiationHandler_Create_Success(t *testing.T) {
	svc := &mockNegotiationService{
		createFn: func(ctx context.Context, in negotiation.CreateInput, client identity.ClientIdentity) (*model.Negotiation, error) {
			if in.ProductID != "prod-1" {
				t.Errorf("ProductID = %q, want %q", in.ProductID, "prod-1")
			}
			if !in.ProposedPrice.Equal(decimal.RequireFromString("150")) {
				t.Errorf("ProposedPrice = %s, want 150", in.ProposedPrice)
			}
			if in.ClientEmail != "buyer@example.com" {
				t.Errorf("ClientEmail = %q, want %q", in.ClientEmail, "buyer@example.com")
			}
			if client.Token() != "tok-1" {
				t.Errorf("client token = %q, want %q", client.Token(), "tok-1")
			}
			return sampleNegotiation(), nil
		},
	}
	h := NewNegotiationHandler(svc)

	body := `{"productId":"prod-1","proposedPrice":150,"clientEmail":"buyer@example.com","clientName":"Buyer"}`
	req := httptest.NewRequest(http.MethodPost, "/api/negotiations", bytes.NewBufferString(body))
	req.Header.Set(middleware.ClientIdentifierHeader, "tok-1")
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if string(resp["proposedPrice"]) != "150.00" {
		t.Errorf("proposedPrice = %s, want 150.00", resp["proposedPrice"])
	}
	if string(resp["status"]) != `"Pending"` {
		t.Errorf("status = %s, want \"Pending\"", resp["status"])
	}
	if string(resp["attemptCount"]) != "1" {
		t.Errorf("attemptCount = %s, want 1", resp["attemptCount"])
	}
	if _, ok := resp["clientToken"]; ok {
		t.Error("client token must not be exposed in the response")
	}
}

func TestNegotiationHandler_Create_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "invalid json",
			body:     `{"productId":`,
			wantCode: model.ErrCodeInvalidRequest,
		},
		{
			name:     "missing product id",
			body:     `{"proposedPrice":10,"clientEmail":"buyer@example.com"}`,
			wantCode: model.ErrCodeValidationFailed,
			wantMsg:  "Product ID is required",
		},
		{
			name:     "missing email",
			body:     `{"productId":"prod-1","proposedPrice":10}`,
			wantCode: model.ErrCodeValidationFailed,
			wantMsg:  "A valid client email is required",
		},
		{
			name:     "malformed email",
			body:     `{"productId":"prod-1","proposedPrice":10,"clientEmail":"not-an-email"}`,
			wantCode: model.ErrCodeValidationFailed,
			wantMsg:  "A valid client email is required",
		},
		{
			name:     "client name too long",
			body:     `{"productId":"prod-1","proposedPrice":10,"clientEmail":"buyer@example.com","clientName":"` + strings.Repeat("a", 201) + `"}`,
			wantCode: model.ErrCodeValidationFailed,
			wantMsg:  "Client name must be at most 200 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockNegotiationService{
				createFn: func(context.Context, negotiation.CreateInput, identity.ClientIdentity) (*model.Negotiation, error) {
					called = true
					return nil, nil
				},
			}
			h := NewNegotiationHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/negotiations", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			h.Create(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if called {
				t.Error("service must not be called for an invalid request")
			}
			errResp := parseAPIErrorResponse(t, w)
			if errResp["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", errResp["code"], tt.wantCode)
			}
			if tt.wantMsg != "" && errResp["message"] != tt.wantMsg {
				t.Errorf("message = %q, want %q", errResp["message"], tt.wantMsg)
			}
		})
	}
}

func TestNegotiationHandler_Create_ProductNotFound_ReturnsBadRequest(t *testing.T) {
	svc := &mockNegotiationService{
		createFn: func(context.Context, negotiation.CreateInput, identity.ClientIdentity) (*model.Negotiation, error) {
			return nil, model.NewProductNotFoundError()
		},
	}
	h := NewNegotiationHandler(svc)

	body := `{"productId":"missing","proposedPrice":10,"clientEmail":"buyer@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/negotiations", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	errResp := parseAPIErrorResponse(t, w)
	if errResp["message"] != "Product not found" {
		t.Errorf("message = %q, want %q", errResp["message"], "Product not found")
	}
}

func TestNegotiationHandler_Create_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"duplicate", model.NewDuplicateNegotiationError(), http.StatusBadRequest, model.ErrCodeDuplicateNegotiation},
		{"non-positive price", model.NewValidationError("Proposed price must be greater than 0"), http.StatusBadRequest, model.ErrCodeValidationFailed},
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockNegotiationService{
				createFn: func(context.Context, negotiation.CreateInput, identity.ClientIdentity) (*model.Negotiation, error) {
					return nil, tt.err
				},
			}
			h := NewNegotiationHandler(svc)

			body := `{"productId":"prod-1","proposedPrice":0,"clientEmail":"buyer@example.com"}`
			req := httptest.NewRequest(http.MethodPost, "/api/negotiations", bytes.NewBufferString(body))
			w := httptest.NewRecorder()
			h.Create(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			errResp := parseAPIErrorResponse(t, w)
			if errResp["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", errResp["code"], tt.wantCode)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(errResp["message"], "connection refused") {
				t.Error("internal error details must not leak to the client")
			}
		})
	}
}

// --- GET /api/negotiations/{id} テスト ---

func TestNegotiationHandler_Get_PassesIdentityAndPrincipal(t *testing.T) {
	svc := &mockNegotiationService{
		getFn: func(ctx context.Context, id string, principal *model.Principal, client identity.ClientIdentity) (*model.Negotiation, error) {
			if id != "neg-1" {
				t.Errorf("id = %q, want %q", id, "neg-1")
			}
			if principal != nil {
				t.Errorf("principal = %+v, want nil", principal)
			}
			if client.Email() != "buyer@example.com" || client.Token() != "tok-1" {
				t.Errorf("client = (%q, %q), want (tok-1, buyer@example.com)", client.Token(), client.Email())
			}
			return sampleNegotiation(), nil
		},
	}
	h := NewNegotiationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/negotiations/neg-1?email=buyer@example.com", nil)
	req.Header.Set(middleware.ClientIdentifierHeader, "tok-1")
	req = withChiURLParam(req, "id", "neg-1")
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNegotiationHandler_Get_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", model.NewNegotiationNotFoundError("neg-x"), http.StatusNotFound},
		{"forbidden", model.NewForbiddenError("You do not have access to this negotiation"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockNegotiationService{
				getFn: func(context.Context, string, *model.Principal, identity.ClientIdentity) (*model.Negotiation, error) {
					return nil, tt.err
				},
			}
			h := NewNegotiationHandler(svc)

			req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/negotiations/neg-x", nil), "id", "neg-x")
			w := httptest.NewRecorder()
			h.Get(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// --- GET /api/negotiations/client テスト ---

func TestNegotiationHandler_ListForClient_MissingIdentity(t *testing.T) {
	svc := &mockNegotiationService{
		listForClientFn: func(ctx context.Context, client identity.ClientIdentity) ([]*model.Negotiation, error) {
			if !client.IsEmpty() {
				t.Errorf("client should be empty, got kind %v", client.Kind())
			}
			return nil, model.NewMissingIdentityError()
		},
	}
	h := NewNegotiationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/negotiations/client", nil)
	w := httptest.NewRecorder()
	h.ListForClient(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != model.ErrCodeMissingIdentity {
		t.Errorf("code = %q, want %q", errResp["code"], model.ErrCodeMissingIdentity)
	}
}

func TestNegotiationHandler_ListForClient_EmptyListIsArray(t *testing.T) {
	svc := &mockNegotiationService{
		listForClientFn: func(context.Context, identity.ClientIdentity) ([]*model.Negotiation, error) {
			return nil, nil
		},
	}
	h := NewNegotiationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/negotiations/client?email=buyer@example.com", nil)
	w := httptest.NewRecorder()
	h.ListForClient(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestNegotiationHandler_ListByProduct(t *testing.T) {
	svc := &mockNegotiationService{
		listByProductFn: func(ctx context.Context, principal *model.Principal, productID string) ([]*model.Negotiation, error) {
			if productID != "prod-1" {
				t.Errorf("productID = %q, want %q", productID, "prod-1")
			}
			if principal == nil || principal.UserID != "seller-1" {
				t.Errorf("principal = %+v, want seller-1", principal)
			}
			return []*model.Negotiation{sampleNegotiation()}, nil
		},
	}
	h := NewNegotiationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/negotiations/product/prod-1", nil)
	req = withChiURLParam(withPrincipal(req, "seller-1", model.RoleSeller), "productId", "prod-1")
	w := httptest.NewRecorder()
	h.ListByProduct(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var list []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len = %d, want 1", len(list))
	}
}

// --- POST /api/negotiations/{id}/respond テスト ---

func TestNegotiationHandler_Respond_Messages(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus string
		wantMsg    string
	}{
		{"accept", `{"isAccepted":true}`, "Accepted", "Negotiation accepted"},
		{"reject", `{"isAccepted":false,"comment":"too low"}`, "Rejected", "Negotiation rejected. Client has 7 days to propose a new price."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockNegotiationService{
				respondFn: func(ctx context.Context, id string, principal *model.Principal, accept bool, comment *string) (*model.Negotiation, error) {
					n := sampleNegotiation()
					if accept {
						n.Status = model.NegotiationStatusAccepted
					} else {
						n.Status = model.NegotiationStatusRejected
						if comment == nil || *comment != "too low" {
							t.Errorf("comment = %v, want \"too low\"", comment)
						}
					}
					return n, nil
				},
			}
			h := NewNegotiationHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/negotiations/neg-1/respond", bytes.NewBufferString(tt.body))
			req = withChiURLParam(withPrincipal(req, "seller-1", model.RoleSeller), "id", "neg-1")
			w := httptest.NewRecorder()
			h.Respond(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var resp respondResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", resp.Message, tt.wantMsg)
			}
		})
	}
}

func TestNegotiationHandler_Respond_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unauthenticated", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"wrong role", model.NewForbiddenError("Only admins and sellers can respond to negotiations"), http.StatusForbidden},
		{"not pending", model.NewInvalidTransitionError("This negotiation is no longer pending"), http.StatusBadRequest},
		{"not found", model.NewNegotiationNotFoundError("neg-1"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockNegotiationService{
				respondFn: func(context.Context, string, *model.Principal, bool, *string) (*model.Negotiation, error) {
					return nil, tt.err
				},
			}
			h := NewNegotiationHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/negotiations/neg-1/respond", bytes.NewBufferString(`{"isAccepted":true}`))
			req = withChiURLParam(req, "id", "neg-1")
			w := httptest.NewRecorder()
			h.Respond(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNegotiationHandler_Respond_CommentTooLong(t *testing.T) {
	h := NewNegotiationHandler(&mockNegotiationService{})

	body := `{"isAccepted":false,"comment":"` + strings.Repeat("x", 1001) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/negotiations/neg-1/respond", bytes.NewBufferString(body))
	req = withChiURLParam(req, "id", "neg-1")
	w := httptest.NewRecorder()
	h.Respond(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	errResp := parseAPIErrorResponse(t, w)
	if errResp["message"] != "Comment must be at most 1000 characters" {
		t.Errorf("message = %q", errResp["message"])
	}
}

// --- POST /api/negotiations/{id}/propose-new-price テスト ---

func TestNegotiationHandler_ProposeNewPrice_Success(t *testing.T) {
	svc := &mockNegotiationService{
		proposeNewPriceFn: func(ctx context.Context, id string, client identity.ClientIdentity, price decimal.Decimal) (*model.Negotiation, error) {
			if client.Email() != "buyer@example.com" {
				t.Errorf("email = %q, want %q", client.Email(), "buyer@example.com")
			}
			if !price.Equal(decimal.RequireFromString("175.50")) {
				t.Errorf("price = %s, want 175.50", price)
			}
			n := sampleNegotiation()
			n.ProposedPrice = price
			n.AttemptCount = 2
			return n, nil
		},
	}
	h := NewNegotiationHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/negotiations/neg-1/propose-new-price?email=buyer@example.com",
		bytes.NewBufferString(`{"proposedPrice":"175.50"}`))
	req = withChiURLParam(req, "id", "neg-1")
	w := httptest.NewRecorder()
	h.ProposeNewPrice(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp proposeNewPriceResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Message != "New price proposed successfully" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.AttemptCount != 2 {
		t.Errorf("attemptCount = %d, want 2", resp.AttemptCount)
	}
}

func TestNegotiationHandler_ProposeNewPrice_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"deadline passed", model.NewDeadlinePassedError(), http.StatusBadRequest, model.ErrCodeDeadlinePassed},
		{"attempts exhausted", model.NewAttemptsExhaustedError(3), http.StatusBadRequest, model.ErrCodeAttemptsExhausted},
		{"not rejected", model.NewInvalidTransitionError("Can only propose a new price for rejected negotiations"), http.StatusBadRequest, model.ErrCodeInvalidTransition},
		{"identity mismatch", model.NewForbiddenError("You do not have access to this negotiation"), http.StatusForbidden, model.ErrCodeForbidden},
		{"not found", model.NewNegotiationNotFoundError("neg-1"), http.StatusNotFound, model.ErrCodeNegotiationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockNegotiationService{
				proposeNewPriceFn: func(context.Context, string, identity.ClientIdentity, decimal.Decimal) (*model.Negotiation, error) {
					return nil, tt.err
				},
			}
			h := NewNegotiationHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/negotiations/neg-1/propose-new-price?email=buyer@example.com",
				bytes.NewBufferString(`{"proposedPrice":120}`))
			req = withChiURLParam(req, "id", "neg-1")
			w := httptest.NewRecorder()
			h.ProposeNewPrice(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			errResp := parseAPIErrorResponse(t, w)
			if errResp["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", errResp["code"], tt.wantCode)
			}
		})
	}
}

// --- エラーマッピング ---

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := map[string]int{
		model.ErrCodeNegotiationNotFound:          http.StatusNotFound,
		model.ErrCodeProductNotFound:              http.StatusNotFound,
		model.ErrCodeForbidden:                    http.StatusForbidden,
		model.ErrCodeUnauthorized:                 http.StatusUnauthorized,
		model.ErrCodeInvalidCredentials:           http.StatusUnauthorized,
		model.ErrCodeInvalidTransition:            http.StatusBadRequest,
		model.ErrCodeValidationFailed:             http.StatusBadRequest,
		model.ErrCodeInvalidRequest:               http.StatusBadRequest,
		model.ErrCodeDuplicateNegotiation:         http.StatusBadRequest,
		model.ErrCodeDeadlinePassed:               http.StatusBadRequest,
		model.ErrCodeAttemptsExhausted:            http.StatusBadRequest,
		model.ErrCodeMissingIdentity:              http.StatusBadRequest,
		model.ErrCodeProductHasActiveNegotiations: http.StatusBadRequest,
		model.ErrCodeUsernameTaken:                http.StatusBadRequest,
		model.ErrCodeEmailTaken:                   http.StatusBadRequest,
		model.ErrCodeUserNotFound:                 http.StatusNotFound,
		model.ErrCodeRoleNotFound:                 http.StatusNotFound,
		model.ErrCodeRoleExists:                   http.StatusBadRequest,
		model.ErrCodeRoleAlreadyAssigned:          http.StatusBadRequest,
		model.ErrCodeRoleNotAssigned:              http.StatusBadRequest,
		model.ErrCodeInternal:                     http.StatusInternalServerError,
		"SOMETHING_ELSE":                          http.StatusInternalServerError,
	}

	for code, want := range tests {
		if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: code}); got != want {
			t.Errorf("mapAPIErrorToHTTPStatus(%q) = %d, want %d", code, got, want)
		}
	}
}

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handleServiceError(w, req, errors.Join(errors.New("context"), model.NewDeadlinePassedError()))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	errResp := parseAPIErrorResponse(t, w)
	for _, field := range []string{"code", "message", "category", "action"} {
		if errResp[field] == "" {
			t.Errorf("field %q is empty", field)
		}
	}
}
