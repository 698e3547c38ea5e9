package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/negotiator/internal/model"
)

type productRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	CreatedAt   time.Time       `db:"created_at"`
}

func (r productRow) toModel() *model.Product {
	return &model.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		CreatedAt:   r.CreatedAt,
	}
}

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sqlx.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sqlx.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	if !isUUID(id) {
		return nil, nil
	}
	var row productRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, name, description, price, created_at FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return row.toModel(), nil
}

// List は全商品を作成日時の降順で返す。
func (r *PostgresProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT id, name, description, price, created_at FROM products ORDER BY created_at DESC`,
	); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	products := make([]*model.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toModel())
	}
	return products, nil
}

// Create は商品を作成する。
func (r *PostgresProductRepo) Create(ctx context.Context, p *model.Product) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO products (id, name, description, price, created_at)
		 VALUES (:id, :name, :description, :price, :created_at)`,
		productRow{ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price, CreatedAt: p.CreatedAt},
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// Update は商品を更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresProductRepo) Update(ctx context.Context, p *model.Product) (bool, error) {
	if !isUUID(p.ID) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET name = $2, description = $3, price = $4 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Price,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update product: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete は商品を削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresProductRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)
