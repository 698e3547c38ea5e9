package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/negotiator/internal/model"
)

// roleRow は roles テーブルの1行と割り当てユーザー数を表す。
type roleRow struct {
	ID        int    `db:"id"`
	Name      string `db:"name"`
	UserCount int    `db:"user_count"`
}

func (r roleRow) toModel() *model.Role {
	return &model.Role{ID: r.ID, Name: r.Name, UserCount: r.UserCount}
}

// PostgresRoleRepo はPostgreSQLを使用したロールリポジトリ。
type PostgresRoleRepo struct {
	db *sqlx.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sqlx.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// List は全ロールを割り当てユーザー数付きでID順に返す。
func (r *PostgresRoleRepo) List(ctx context.Context) ([]*model.Role, error) {
	var rows []roleRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT r.id, r.name, COUNT(ur.user_id) AS user_count
		 FROM roles r
		 LEFT JOIN user_roles ur ON ur.role_id = r.id
		 GROUP BY r.id
		 ORDER BY r.id`,
	); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	roles := make([]*model.Role, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, row.toModel())
	}
	return roles, nil
}

// FindByID は指定IDのロールを取得する。見つからない場合はnilを返す。
func (r *PostgresRoleRepo) FindByID(ctx context.Context, id int) (*model.Role, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByName は大文字小文字を区別せずにロールを取得する。見つからない場合はnilを返す。
func (r *PostgresRoleRepo) FindByName(ctx context.Context, name string) (*model.Role, error) {
	return r.findOne(ctx, `LOWER(name) = LOWER($1)`, name)
}

func (r *PostgresRoleRepo) findOne(ctx context.Context, where string, arg any) (*model.Role, error) {
	var row roleRow
	err := r.db.GetContext(ctx, &row, `SELECT id, name FROM roles WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	return row.toModel(), nil
}

// Create はロールを作成する。同名のロールがある場合は ErrRoleExists を返す。
func (r *PostgresRoleRepo) Create(ctx context.Context, name string) (*model.Role, error) {
	var row roleRow
	err := r.db.GetContext(ctx, &row,
		`INSERT INTO roles (name) VALUES ($1) RETURNING id, name`, name)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("failed to insert role: %w", err)
	}
	return row.toModel(), nil
}

// AssignToUser はユーザーにロールを割り当てる。既に割り当て済みの場合はfalseを返す。
func (r *PostgresRoleRepo) AssignToUser(ctx context.Context, userID string, roleID int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to assign role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// RemoveFromUser はユーザーからロールを外す。割り当てがない場合はfalseを返す。
func (r *PostgresRoleRepo) RemoveFromUser(ctx context.Context, userID string, roleID int) (bool, error) {
	if !isUUID(userID) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to remove role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
