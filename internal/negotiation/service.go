package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/negotiator/internal/identity"
	"github.com/hitoshi/negotiator/internal/metrics"
	"github.com/hitoshi/negotiator/internal/model"
	"github.com/hitoshi/negotiator/internal/repository"
	"github.com/hitoshi/negotiator/internal/security"
)

// ProductFinder は交渉作成時の商品存在確認に使う。
type ProductFinder interface {
	FindByID(ctx context.Context, id string) (*model.Product, error)
}

// CreateInput は交渉作成リクエストの内容。
// クライアントトークンは別途 identity.ClientIdentity として渡す。
type CreateInput struct {
	ProductID     string
	ProposedPrice decimal.Decimal
	ClientEmail   string
	ClientName    string
}

// ServiceOption はServiceの任意設定。
type ServiceOption func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.machine = NewMachine(now) }
}

// WithIDGenerator は交渉IDの生成関数を差し替える。
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// WithLogger はロガーを差し替える。
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// Service は価格交渉のコマンド境界。
// 認可ゲートと状態遷移をリポジトリの排他単位の中で実行し、失敗をAPIErrorに変換する。
type Service struct {
	negotiations repository.NegotiationRepository
	products     ProductFinder
	sanitizer    security.TextSanitizer
	metrics      metrics.MetricsCollector
	machine      *Machine
	newID        func() string
	logger       *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	negotiations repository.NegotiationRepository,
	products ProductFinder,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	opts ...ServiceOption,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	s := &Service{
		negotiations: negotiations,
		products:     products,
		sanitizer:    sanitizer,
		metrics:      collector,
		machine:      NewMachine(nil),
		newID:        uuid.NewString,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create は新しい交渉を作成する。
// 判定順: 商品の存在 → 価格 → 同一商品・同一クライアントの Pending 交渉の重複。
func (s *Service) Create(ctx context.Context, in CreateInput, client identity.ClientIdentity) (*model.Negotiation, error) {
	product, err := s.products.FindByID(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError()
	}

	// 重複判定はヘッダーのトークンと本文のメールで行う
	owner := identity.New(client.Token(), in.ClientEmail)

	n, err := s.machine.NewNegotiation(CreateCommand{
		ID:            s.newID(),
		ProductID:     product.ID,
		ProposedPrice: in.ProposedPrice,
		Identity:      owner,
		ClientEmail:   owner.Email(),
		ClientName:    s.sanitizer.Sanitize(in.ClientName),
	})
	if err != nil {
		return nil, err
	}

	if err := s.negotiations.CreateExclusive(ctx, n, owner); err != nil {
		if errors.Is(err, repository.ErrDuplicatePending) {
			s.metrics.RecordDuplicateRejected()
			return nil, model.NewDuplicateNegotiationError()
		}
		return nil, fmt.Errorf("交渉の作成に失敗しました: %w", err)
	}

	s.metrics.RecordNegotiationCreated()
	s.logger.InfoContext(ctx, "negotiation created",
		slog.String("negotiation_id", n.ID),
		slog.String("product_id", n.ProductID),
		slog.String("identity", owner.Kind().String()),
	)
	return n, nil
}

// Get は交渉を1件取得する。認証済みユーザーか識別情報が一致するクライアントのみ参照できる。
func (s *Service) Get(ctx context.Context, id string, principal *model.Principal, client identity.ClientIdentity) (*model.Negotiation, error) {
	n, err := s.negotiations.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("交渉の取得に失敗しました: %w", err)
	}
	if err := decisionError(Authorize(ActionRead, principal, client, n), id); err != nil {
		return nil, err
	}
	return n, nil
}

// ListForClient はクライアント自身の交渉一覧を返す。
// トークンとメールのいずれかが一致する交渉を対象とする。
func (s *Service) ListForClient(ctx context.Context, client identity.ClientIdentity) ([]*model.Negotiation, error) {
	if client.IsEmpty() {
		return nil, model.NewMissingIdentityError()
	}
	list, err := s.negotiations.List(ctx, repository.NegotiationFilter{Client: client})
	if err != nil {
		return nil, fmt.Errorf("交渉一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListAll は全交渉を返す。admin / seller のみ。
func (s *Service) ListAll(ctx context.Context, principal *model.Principal) ([]*model.Negotiation, error) {
	if err := decisionError(AuthorizeManage(principal), ""); err != nil {
		return nil, err
	}
	list, err := s.negotiations.List(ctx, repository.NegotiationFilter{})
	if err != nil {
		return nil, fmt.Errorf("交渉一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListByProduct は商品ごとの交渉一覧を返す。admin / seller のみ。
func (s *Service) ListByProduct(ctx context.Context, principal *model.Principal, productID string) ([]*model.Negotiation, error) {
	if err := decisionError(AuthorizeManage(principal), ""); err != nil {
		return nil, err
	}
	list, err := s.negotiations.List(ctx, repository.NegotiationFilter{ProductID: productID})
	if err != nil {
		return nil, fmt.Errorf("交渉一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// Respond は販売者として交渉を承認または却下する。
func (s *Service) Respond(ctx context.Context, id string, principal *model.Principal, accept bool, comment *string) (*model.Negotiation, error) {
	if err := decisionError(AuthorizeManage(principal), id); err != nil {
		return nil, err
	}

	comment = security.SanitizePtr(s.sanitizer, comment)

	n, err := s.negotiations.Mutate(ctx, id, func(n *model.Negotiation) (bool, error) {
		if err := decisionError(Authorize(ActionManage, principal, identity.ClientIdentity{}, n), id); err != nil {
			return false, err
		}
		if err := s.machine.Respond(n, principal.UserID, accept, comment); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, s.mapMutateError(err, id)
	}

	s.metrics.RecordResponse(accept)
	s.logger.InfoContext(ctx, "negotiation responded",
		slog.String("negotiation_id", n.ID),
		slog.String("status", string(n.Status)),
		slog.String("user_id", principal.UserID),
	)
	return n, nil
}

// ProposeNewPrice は却下された交渉に新しい価格を再提示する。
// 認証状態にかかわらず識別情報の一致が必要。
// 期限切れ・試行回数超過の場合は交渉を Cancelled として保存したうえでエラーを返す。
func (s *Service) ProposeNewPrice(ctx context.Context, id string, client identity.ClientIdentity, price decimal.Decimal) (*model.Negotiation, error) {
	n, err := s.negotiations.Mutate(ctx, id, func(n *model.Negotiation) (bool, error) {
		if err := decisionError(Authorize(ActionPropose, nil, client, n), id); err != nil {
			return false, err
		}
		return s.machine.ProposeNewPrice(n, price)
	})
	if err != nil {
		err = s.mapMutateError(err, id)
		switch model.ErrorCode(err) {
		case "":
		case model.ErrCodeDeadlinePassed:
			s.metrics.RecordProposal(metrics.ProposalDeadlinePassed)
			s.logCancelled(ctx, id, "deadline_passed")
		case model.ErrCodeAttemptsExhausted:
			s.metrics.RecordProposal(metrics.ProposalAttemptsExhausted)
			s.logCancelled(ctx, id, "attempts_exhausted")
		case model.ErrCodeDuplicateNegotiation:
			s.metrics.RecordDuplicateRejected()
			s.metrics.RecordProposal(metrics.ProposalRejected)
		default:
			s.metrics.RecordProposal(metrics.ProposalRejected)
		}
		return nil, err
	}

	s.metrics.RecordProposal(metrics.ProposalAccepted)
	s.logger.InfoContext(ctx, "new price proposed",
		slog.String("negotiation_id", n.ID),
		slog.Int("attempt_count", n.AttemptCount),
	)
	return n, nil
}

func (s *Service) logCancelled(ctx context.Context, id, reason string) {
	s.logger.InfoContext(ctx, "negotiation cancelled",
		slog.String("negotiation_id", id),
		slog.String("reason", reason),
	)
}

// mapMutateError はリポジトリのエラーをAPIErrorに変換する。
// APIErrorはそのまま返す。
func (s *Service) mapMutateError(err error, id string) error {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, repository.ErrNegotiationNotFound):
		return model.NewNegotiationNotFoundError(id)
	case errors.Is(err, repository.ErrDuplicatePending):
		// 却下後に同じ商品で新しい交渉を作成済みの場合、再提示で Pending を2件にしない
		return model.NewDuplicateNegotiationError()
	default:
		return fmt.Errorf("交渉の更新に失敗しました: %w", err)
	}
}
