package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/negotiator/internal/auth"
	"github.com/hitoshi/negotiator/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput, role string) (*model.User, error)
	loginFn          func(ctx context.Context, username, password string) (*auth.LoginResult, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput, role string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in, role)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func sampleUser(role string) *model.User {
	return &model.User{
		ID:        "user-1",
		Username:  "alice",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Smith",
		IsActive:  true,
		Roles:     []string{role},
	}
}

func TestAuthHandler_Register_AssignsSellerRole(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput, role string) (*model.User, error) {
			if role != model.RoleSeller {
				t.Errorf("role = %q, want %q", role, model.RoleSeller)
			}
			if in.Username != "alice" || in.Password != "secret123" {
				t.Errorf("unexpected input: %+v", in)
			}
			return sampleUser(role), nil
		},
	}
	h := NewAuthHandler(svc)

	body := `{"username":"alice","email":"alice@example.com","password":"secret123","firstName":"Alice","lastName":"Smith"}`
	w := httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if _, ok := resp["passwordHash"]; ok {
		t.Error("password hash must not be exposed")
	}
}

func TestAuthHandler_RegisterAdmin_AssignsAdminRole(t *testing.T) {
	var gotRole string
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput, role string) (*model.User, error) {
			gotRole = role
			return sampleUser(role), nil
		},
	}
	h := NewAuthHandler(svc)

	body := `{"username":"root","email":"root@example.com","password":"secret123"}`
	w := httptest.NewRecorder()
	h.RegisterAdmin(w, httptest.NewRequest(http.MethodPost, "/api/auth/register-admin", bytes.NewBufferString(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotRole != model.RoleAdmin {
		t.Errorf("role = %q, want %q", gotRole, model.RoleAdmin)
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode string
	}{
		{"short password", `{"username":"alice","email":"alice@example.com","password":"123"}`, nil, model.ErrCodeValidationFailed},
		{"bad email", `{"username":"alice","email":"nope","password":"secret123"}`, nil, model.ErrCodeValidationFailed},
		{"username taken", `{"username":"alice","email":"alice@example.com","password":"secret123"}`, model.NewUsernameTakenError(), model.ErrCodeUsernameTaken},
		{"email taken", `{"username":"alice","email":"alice@example.com","password":"secret123"}`, model.NewEmailTakenError(), model.ErrCodeEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(context.Context, auth.RegisterInput, string) (*model.User, error) {
					return nil, tt.err
				},
			}
			h := NewAuthHandler(svc)

			w := httptest.NewRecorder()
			h.Register(w, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(tt.body)))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			errResp := parseAPIErrorResponse(t, w)
			if errResp["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", errResp["code"], tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_Login_ReturnsToken(t *testing.T) {
	expires := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*auth.LoginResult, error) {
			return &auth.LoginResult{
				User:    sampleUser(model.RoleSeller),
				Session: &model.Session{ID: "session-token", UserID: "user-1", ExpiresAt: expires},
			}, nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"username":"alice","password":"secret123"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		Token     string    `json:"token"`
		Roles     []string  `json:"roles"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Token != "session-token" {
		t.Errorf("token = %q, want %q", resp.Token, "session-token")
	}
	if resp.Username != "alice" || resp.ID != "user-1" {
		t.Errorf("unexpected user fields: %+v", resp)
	}
	if len(resp.Roles) != 1 || resp.Roles[0] != model.RoleSeller {
		t.Errorf("roles = %v, want [seller]", resp.Roles)
	}
	if !resp.ExpiresAt.Equal(expires) {
		t.Errorf("expiresAt = %v, want %v", resp.ExpiresAt, expires)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(context.Context, string, string) (*auth.LoginResult, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"username":"alice","password":"wrong"}`)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Logout_UsesBearerToken(t *testing.T) {
	var got string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			got = sessionID
			return nil
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got != "abc123" {
		t.Errorf("sessionID = %q, want %q", got, "abc123")
	}
}

func TestAuthHandler_Me_Unauthorized(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(context.Context, string) (*model.User, error) {
			return nil, model.NewUnauthorizedError()
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
