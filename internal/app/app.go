package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/negotiator/internal/auth"
	"github.com/hitoshi/negotiator/internal/config"
	"github.com/hitoshi/negotiator/internal/database"
	"github.com/hitoshi/negotiator/internal/handler"
	"github.com/hitoshi/negotiator/internal/logger"
	"github.com/hitoshi/negotiator/internal/metrics"
	"github.com/hitoshi/negotiator/internal/middleware"
	"github.com/hitoshi/negotiator/internal/negotiation"
	"github.com/hitoshi/negotiator/internal/product"
	"github.com/hitoshi/negotiator/internal/security"
	"github.com/hitoshi/negotiator/internal/user"
	"github.com/hitoshi/negotiator/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、設定に従って構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.Options{Format: logger.FormatJSON})

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってロガーを再構成する
	logger.SetupDefault(w, logger.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck("http://localhost:" + port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(ctx, cfg, isMigrateDown(args))
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// リポジトリを構築して全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
// インメモリストアの場合はセッションのクリーンアップも同じプロセスで実行する。
func runServe(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.UsesMemoryStorage() {
		// インメモリストアはmigrateを経由しないため、起動時に初期管理者を作成する
		if err := seedAdmin(ctx, cfg, st); err != nil {
			return err
		}
	}

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitNegotiationCreate),
	)
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, st, rateLimiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if cfg.UsesMemoryStorage() {
		job := cleanup.NewCleanupJob(st.sessions, slog.Default())
		g.Go(func() error {
			return job.Loop(gctx, cfg.SessionCleanupInterval)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newRouter はリポジトリからサービスを組み立て、ルーターを構築する。
func newRouter(cfg *config.Config, st *stores, rateLimiter *middleware.RateLimiter) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	sanitizer := security.NewTextSanitizer()

	authService := auth.NewService(st.users, st.sessions, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	productService := product.NewService(st.products, st.negotiations, sanitizer)
	negotiationService := negotiation.NewService(
		st.negotiations, st.products, sanitizer, collector,
		negotiation.WithLogger(slog.Default()),
	)
	userService := user.NewService(st.users, st.roles, st.sessions)

	deps := &handler.RouterDeps{
		PrincipalResolver: authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		Metrics:  collector,
		Gatherer: reg,

		AuthService:        authService,
		ProductService:     productService,
		NegotiationService: negotiationService,
		UserService:        userService,
	}
	// インメモリストアではDBチェックを省略する
	if st.db != nil {
		deps.HealthChecker = st.db
	}

	return handler.NewRouter(deps)
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除をSESSION_CLEANUP_INTERVALごとに実行する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.UsesMemoryStorage() {
		return errors.New("worker requires STORAGE_DRIVER=postgres; the in-memory store is cleaned by serve")
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	job := cleanup.NewCleanupJob(st.sessions, slog.Default())
	if err := job.Loop(ctx, cfg.SessionCleanupInterval); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// downがfalseの場合は未適用のマイグレーションをすべて適用し、初期管理者を作成する。
// downがtrueの場合は直近のマイグレーションを1つ取り消す。
func runMigrate(ctx context.Context, cfg *config.Config, down bool) error {
	if cfg.UsesMemoryStorage() {
		return errors.New("migrate requires STORAGE_DRIVER=postgres")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("down", down),
	)

	if down {
		if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("database migrations completed successfully")

	if cfg.SeedAdminUsername == "" {
		return nil
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return seedAdmin(ctx, cfg, st)
}

// seedAdmin は設定された初期管理者が存在しなければ作成する。
func seedAdmin(ctx context.Context, cfg *config.Config, st *stores) error {
	if cfg.SeedAdminUsername == "" {
		return nil
	}

	authService := auth.NewService(st.users, st.sessions, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	created, err := authService.EnsureAdmin(ctx, auth.RegisterInput{
		Username: cfg.SeedAdminUsername,
		Email:    cfg.SeedAdminEmail,
		Password: cfg.SeedAdminPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	slog.Info("admin user seeded",
		slog.String("username", cfg.SeedAdminUsername),
		slog.Bool("created", created),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
