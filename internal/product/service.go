// Package product は商品カタログのビジネスロジックを提供する。
package product

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/negotiator/internal/model"
	"github.com/hitoshi/negotiator/internal/repository"
	"github.com/hitoshi/negotiator/internal/security"
)

// ActiveNegotiationChecker は商品に進行中の交渉があるかを確認する。
type ActiveNegotiationChecker interface {
	ExistsActiveForProduct(ctx context.Context, productID string) (bool, error)
}

// Input は商品の作成・更新リクエストの内容。
type Input struct {
	Name        string
	Description string
	Price       decimal.Decimal
}

// Service は商品に関するビジネスロジックを提供する。
type Service struct {
	products     repository.ProductRepository
	negotiations ActiveNegotiationChecker
	sanitizer    security.TextSanitizer
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	products repository.ProductRepository,
	negotiations ActiveNegotiationChecker,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		products:     products,
		negotiations: negotiations,
		sanitizer:    sanitizer,
		now:          time.Now,
	}
}

// List は全商品を返す。
func (s *Service) List(ctx context.Context) ([]*model.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗しました: %w", err)
	}
	return products, nil
}

// Get は指定IDの商品を返す。存在しない場合は PRODUCT_NOT_FOUND を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProductNotFoundError()
	}
	return p, nil
}

// Create は商品を作成する。
func (s *Service) Create(ctx context.Context, in Input) (*model.Product, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	p := &model.Product{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("商品の作成に失敗しました: %w", err)
	}

	slog.Info("product created", slog.String("product_id", p.ID))
	return p, nil
}

// Update は商品の名称・説明・価格を更新する。
func (s *Service) Update(ctx context.Context, id string, in Input) (*model.Product, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = in.Name
	existing.Description = in.Description
	existing.Price = in.Price

	found, err := s.products.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("商品の更新に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewProductNotFoundError()
	}
	return existing, nil
}

// Delete は商品を削除する。
// Pending または Accepted の交渉が残っている商品は削除できない。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	active, err := s.negotiations.ExistsActiveForProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("交渉状況の確認に失敗しました: %w", err)
	}
	if active {
		return model.NewProductHasActiveNegotiationsError()
	}

	found, err := s.products.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("商品の削除に失敗しました: %w", err)
	}
	if !found {
		return model.NewProductNotFoundError()
	}

	slog.Info("product deleted", slog.String("product_id", id))
	return nil
}

// normalize は自由入力テキストをサニタイズし、必須項目と価格を検証する。
func (s *Service) normalize(in Input) (Input, error) {
	in.Name = s.sanitizer.Sanitize(in.Name)
	in.Description = s.sanitizer.Sanitize(in.Description)

	if in.Name == "" {
		return in, model.NewValidationError("Name is required")
	}
	if in.Description == "" {
		return in, model.NewValidationError("Description is required")
	}
	if !model.IsValidPrice(in.Price) {
		return in, model.NewValidationError("Price must be greater than 0")
	}
	return in, nil
}
