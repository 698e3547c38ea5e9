package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/negotiator/internal/config"
	"github.com/hitoshi/negotiator/internal/database"
	"github.com/hitoshi/negotiator/internal/repository"
)

const dbPingTimeout = 5 * time.Second

// stores はストレージドライバーに応じて構築したリポジトリ一式。
// dbはインメモリストアの場合nil。
type stores struct {
	db           *sqlx.DB
	negotiations repository.NegotiationRepository
	products     repository.ProductRepository
	users        repository.UserRepository
	roles        repository.RoleRepository
	sessions     repository.SessionRepository
}

// Close はDB接続を閉じる。インメモリストアでは何もしない。
func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openStores は設定に従ってリポジトリを構築する。
// PostgreSQLの場合は接続確認まで行う。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.UsesMemoryStorage() {
		slog.Warn("using in-memory storage; data is lost on restart")
		users := repository.NewMemoryUserRepo()
		return &stores{
			negotiations: repository.NewMemoryNegotiationRepo(),
			products:     repository.NewMemoryProductRepo(),
			users:        users,
			roles:        repository.NewMemoryRoleRepo(users),
			sessions:     repository.NewMemorySessionRepo(),
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	return &stores{
		db:           db,
		negotiations: repository.NewPostgresNegotiationRepo(db),
		products:     repository.NewPostgresProductRepo(db),
		users:        repository.NewPostgresUserRepo(db.DB),
		roles:        repository.NewPostgresRoleRepo(db),
		sessions:     repository.NewPostgresSessionRepo(db.DB),
	}, nil
}
