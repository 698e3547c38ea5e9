package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反エラーコード。
const pgUniqueViolation = "23505"

const negotiationColumns = `id, product_id, proposed_price, client_token, client_email, client_name,
	status, attempt_count, responded_by_user_id, response_comment, response_date,
	next_attempt_deadline, created_at, version`

// isUUID はIDがUUID列に渡せる形式かどうかを返す。
// 形式外のIDはPostgreSQLで構文エラーになるため、該当なしとして扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// negotiationRow は negotiations テーブルの1行を表す。
type negotiationRow struct {
	ID                  string          `db:"id"`
	ProductID           string          `db:"product_id"`
	ProposedPrice       decimal.Decimal `db:"proposed_price"`
	ClientToken         sql.NullString  `db:"client_token"`
	ClientEmail         string          `db:"client_email"`
	ClientName          string          `db:"client_name"`
	Status              string          `db:"status"`
	AttemptCount        int             `db:"attempt_count"`
	RespondedByUserID   sql.NullString  `db:"responded_by_user_id"`
	ResponseComment     sql.NullString  `db:"response_comment"`
	ResponseDate        sql.NullTime    `db:"response_date"`
	NextAttemptDeadline sql.NullTime    `db:"next_attempt_deadline"`
	CreatedAt           time.Time       `db:"created_at"`
	Version             int             `db:"version"`
}

func (r negotiationRow) toModel() *model.Negotiation {
	n := &model.Negotiation{
		ID:            r.ID,
		ProductID:     r.ProductID,
		ProposedPrice: r.ProposedPrice,
		ClientToken:   r.ClientToken.String,
		ClientEmail:   r.ClientEmail,
		ClientName:    r.ClientName,
		Status:        model.NegotiationStatus(r.Status),
		AttemptCount:  r.AttemptCount,
		CreatedAt:     r.CreatedAt,
		Version:       r.Version,
	}
	if r.RespondedByUserID.Valid {
		v := r.RespondedByUserID.String
		n.RespondedByUserID = &v
	}
	if r.ResponseComment.Valid {
		v := r.ResponseComment.String
		n.ResponseComment = &v
	}
	if r.ResponseDate.Valid {
		v := r.ResponseDate.Time
		n.ResponseDate = &v
	}
	if r.NextAttemptDeadline.Valid {
		v := r.NextAttemptDeadline.Time
		n.NextAttemptDeadline = &v
	}
	return n
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// clientPredicate は識別情報のOR条件を組み立てる。
// argOffset はプレースホルダー番号の開始位置。識別情報が空の場合は空文字列を返す。
func clientPredicate(client identity.ClientIdentity, argOffset int) (string, []any) {
	var conds []string
	var args []any
	if client.HasToken() {
		args = append(args, client.Token())
		conds = append(conds, fmt.Sprintf("client_token = $%d", argOffset+len(args)))
	}
	if client.HasEmail() {
		args = append(args, client.Email())
		conds = append(conds, fmt.Sprintf("client_email = $%d", argOffset+len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "(" + strings.Join(conds, " OR ") + ")", args
}

// PostgresNegotiationRepo はPostgreSQLを使用した交渉リポジトリ。
//
// Mutate は行ロック（SELECT ... FOR UPDATE）とバージョン比較で、
// CreateExclusive は商品単位のアドバイザリロックと部分一意インデックスで直列化する。
type PostgresNegotiationRepo struct {
	db *sqlx.DB
}

// NewPostgresNegotiationRepo はPostgresNegotiationRepoを生成する。
func NewPostgresNegotiationRepo(db *sqlx.DB) *PostgresNegotiationRepo {
	return &PostgresNegotiationRepo{db: db}
}

// withTx はトランザクション内で fn を実行する。
func (r *PostgresNegotiationRepo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w; rollback: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Create は交渉を作成する。
func (r *PostgresNegotiationRepo) Create(ctx context.Context, n *model.Negotiation) error {
	return r.insert(ctx, r.db, n)
}

// CreateExclusive は Pending 交渉の重複確認と作成を1つのトランザクションで行う。
func (r *PostgresNegotiationRepo) CreateExclusive(ctx context.Context, n *model.Negotiation, client identity.ClientIdentity) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		// 同一商品への作成を直列化する
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, n.ProductID,
		); err != nil {
			return fmt.Errorf("failed to acquire product lock: %w", err)
		}

		exists, err := r.existsPending(ctx, tx, n.ProductID, client)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicatePending
		}

		return r.insert(ctx, tx, n)
	})
}

func (r *PostgresNegotiationRepo) insert(ctx context.Context, exec sqlx.ExecerContext, n *model.Negotiation) error {
	if n.Version == 0 {
		n.Version = 1
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO negotiations (`+negotiationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		n.ID, n.ProductID, n.ProposedPrice, nullString(n.ClientToken), n.ClientEmail, n.ClientName,
		string(n.Status), n.AttemptCount, nullStringPtr(n.RespondedByUserID), nullStringPtr(n.ResponseComment),
		nullTimePtr(n.ResponseDate), nullTimePtr(n.NextAttemptDeadline), n.CreatedAt, n.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrDuplicatePending
		}
		return fmt.Errorf("failed to insert negotiation: %w", err)
	}
	return nil
}

// FindByID は指定IDの交渉を取得する。見つからない場合はnilを返す。
func (r *PostgresNegotiationRepo) FindByID(ctx context.Context, id string) (*model.Negotiation, error) {
	if !isUUID(id) {
		return nil, nil
	}
	var row negotiationRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+negotiationColumns+` FROM negotiations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find negotiation by ID: %w", err)
	}
	return row.toModel(), nil
}

// List は条件に一致する交渉を作成日時の降順で返す。
func (r *PostgresNegotiationRepo) List(ctx context.Context, filter NegotiationFilter) ([]*model.Negotiation, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProductID != "" {
		if !isUUID(filter.ProductID) {
			return []*model.Negotiation{}, nil
		}
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if pred, predArgs := clientPredicate(filter.Client, len(args)); pred != "" {
		conds = append(conds, pred)
		args = append(args, predArgs...)
	}

	query := `SELECT ` + negotiationColumns + ` FROM negotiations`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	var rows []negotiationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list negotiations: %w", err)
	}

	result := make([]*model.Negotiation, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

// ExistsPendingFor は商品とクライアントに対する Pending 交渉が存在するかを返す。
func (r *PostgresNegotiationRepo) ExistsPendingFor(ctx context.Context, productID string, client identity.ClientIdentity) (bool, error) {
	return r.existsPending(ctx, r.db, productID, client)
}

func (r *PostgresNegotiationRepo) existsPending(ctx context.Context, q sqlx.QueryerContext, productID string, client identity.ClientIdentity) (bool, error) {
	pred, args := clientPredicate(client, 1)
	if pred == "" || !isUUID(productID) {
		return false, nil
	}

	var exists bool
	err := sqlx.GetContext(ctx, q, &exists,
		`SELECT EXISTS (
			SELECT 1 FROM negotiations
			WHERE product_id = $1 AND status = 'pending' AND `+pred+`
		)`,
		append([]any{productID}, args...)...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check pending negotiation: %w", err)
	}
	return exists, nil
}

// ExistsActiveForProduct は商品に Pending または Accepted の交渉が存在するかを返す。
func (r *PostgresNegotiationRepo) ExistsActiveForProduct(ctx context.Context, productID string) (bool, error) {
	if !isUUID(productID) {
		return false, nil
	}
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (
			SELECT 1 FROM negotiations
			WHERE product_id = $1 AND status IN ('pending', 'accepted')
		)`, productID)
	if err != nil {
		return false, fmt.Errorf("failed to check active negotiations: %w", err)
	}
	return exists, nil
}

// Update は交渉を更新する。バージョンが一致しない場合は ErrConcurrentUpdate を返す。
func (r *PostgresNegotiationRepo) Update(ctx context.Context, n *model.Negotiation) error {
	return r.update(ctx, r.db, n)
}

func (r *PostgresNegotiationRepo) update(ctx context.Context, exec sqlx.ExecerContext, n *model.Negotiation) error {
	result, err := exec.ExecContext(ctx,
		`UPDATE negotiations SET
			proposed_price = $3, client_name = $4, status = $5, attempt_count = $6,
			responded_by_user_id = $7, response_comment = $8, response_date = $9,
			next_attempt_deadline = $10, version = version + 1
		 WHERE id = $1 AND version = $2`,
		n.ID, n.Version, n.ProposedPrice, n.ClientName, string(n.Status), n.AttemptCount,
		nullStringPtr(n.RespondedByUserID), nullStringPtr(n.ResponseComment),
		nullTimePtr(n.ResponseDate), nullTimePtr(n.NextAttemptDeadline),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrDuplicatePending
		}
		return fmt.Errorf("failed to update negotiation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	n.Version++
	return nil
}

// Mutate は交渉を行ロックして読み込み、fn を適用し、必要なら書き込む。
func (r *PostgresNegotiationRepo) Mutate(ctx context.Context, id string, fn MutateFunc) (*model.Negotiation, error) {
	if !isUUID(id) {
		return nil, ErrNegotiationNotFound
	}

	var (
		result *model.Negotiation
		fnErr  error
	)

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var row negotiationRow
		err := tx.GetContext(ctx, &row,
			`SELECT `+negotiationColumns+` FROM negotiations WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNegotiationNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock negotiation: %w", err)
		}

		before := row.toModel()
		n := before.Clone()
		write, err := fn(n)
		fnErr = err
		result = n
		if !write {
			return nil
		}

		if reopens(before, n) {
			// CreateExclusive と同じ商品ロックで重複確認と更新を直列化する
			if _, err := tx.ExecContext(ctx,
				`SELECT pg_advisory_xact_lock(hashtext($1))`, n.ProductID,
			); err != nil {
				return fmt.Errorf("failed to acquire product lock: %w", err)
			}
			exists, err := r.existsPending(ctx, tx, n.ProductID, ownerOf(n))
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicatePending
			}
		}
		return r.update(ctx, tx, n)
	})
	if err != nil {
		return nil, err
	}

	return result, fnErr
}

// compile-time interface check
var _ NegotiationRepository = (*PostgresNegotiationRepo)(nil)
