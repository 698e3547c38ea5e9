package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/negotiator/internal/database"
	"github.com/hitoshi/negotiator/internal/metrics"
	"github.com/hitoshi/negotiator/internal/middleware"
	"github.com/hitoshi/negotiator/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	PrincipalResolver middleware.PrincipalResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// ヘルスチェック（インメモリストアの場合はnil）
	HealthChecker database.Pinger

	// サービス
	AuthService        AuthServiceInterface
	ProductService     ProductServiceInterface
	NegotiationService NegotiationServiceInterface
	UserService        UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Metrics → SecurityHeaders → CORS → Principal → Logging → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(metrics.Middleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	authHandler := NewAuthHandler(deps.AuthService)
	productHandler := NewProductHandler(deps.ProductService)
	negotiationHandler := NewNegotiationHandler(deps.NegotiationService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- API ---
	// ミドルウェアスタック: Principal → Logging → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPrincipalMiddleware(deps.PrincipalResolver))
		r.Use(middleware.NewLoggingMiddleware(logger))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// 認証
		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.With(middleware.RequireRole(model.RoleAdmin)).Post("/register-admin", authHandler.RegisterAdmin)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// 商品
		r.Route("/api/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.With(middleware.RequireRole(model.RoleAdmin, model.RoleSeller)).Post("/", productHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", productHandler.Get)
				r.With(middleware.RequireRole(model.RoleAdmin, model.RoleSeller)).Put("/", productHandler.Update)
				r.With(middleware.RequireRole(model.RoleAdmin)).Delete("/", productHandler.Delete)
			})
		})

		// ユーザー
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/profile", userHandler.Profile)
			r.With(middleware.RequireRole(model.RoleAdmin)).Get("/", userHandler.List)
			r.With(middleware.RequireRole(model.RoleAdmin, model.RoleSeller)).Get("/{id}", userHandler.Get)
		})

		// 管理者
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Get("/dashboard", userHandler.Dashboard)
			r.Get("/users", userHandler.List)
			r.Put("/users/{id}/toggle-status", userHandler.ToggleStatus)
			r.Post("/roles", userHandler.CreateRole)
			r.Get("/roles/{role}", userHandler.GetRole)
		})

		// ロール
		r.Route("/api/roles", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Get("/", userHandler.ListRoles)
			r.Post("/assign", userHandler.AssignRole)
			r.Post("/remove", userHandler.RemoveRole)
			r.Get("/{role}", userHandler.GetRole)
			r.Get("/{role}/users", userHandler.UsersInRole)
		})

		// 価格交渉
		// 認可はサービス層の認可ゲートで判定する（クライアントは未認証でアクセスする）
		r.Route("/api/negotiations", func(r chi.Router) {
			create := http.HandlerFunc(negotiationHandler.Create)
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.NegotiationCreateMiddleware()).Post("/", create)
			} else {
				r.Post("/", create)
			}
			r.Get("/", negotiationHandler.ListAll)
			r.Get("/client", negotiationHandler.ListForClient)
			r.Get("/product/{productId}", negotiationHandler.ListByProduct)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", negotiationHandler.Get)
				r.Post("/respond", negotiationHandler.Respond)
				r.Post("/propose-new-price", negotiationHandler.ProposeNewPrice)
			})
		})
	})

	return r
}
