package service

import (
	"context"
	"fmt"
	"time"

	"earnings-service/internal/commission"
	"earnings-service/internal/models"
	"earnings-service/internal/util"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	promoterCacheSize = 512
	promoterCacheTTL  = 10 * time.Minute
)

type promoterEntry struct {
	promoter *models.Promoter
	storedAt time.Time
}

// ReferralService credits promoters a percentage of a referred order. It is
// best-effort: nothing guards against crediting the same order twice.
type ReferralService struct {
	promoters PromoterRepository
	ledger    *EarningsLedger
	pct       int
	cache     *lru.Cache[string, promoterEntry]
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewReferralService(promoters PromoterRepository, ledger *EarningsLedger, pct int) *ReferralService {
	// New only fails for a non-positive size.
	cache, _ := lru.New[string, promoterEntry](promoterCacheSize)
	return &ReferralService{
		promoters: promoters,
		ledger:    ledger,
		pct:       pct,
		cache:     cache,
		ttl:       promoterCacheTTL,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// CreditForOrder credits the promoter behind the order's referral code. It
// returns the credited amount, zero when there is nothing to credit.
func (r *ReferralService) CreditForOrder(ctx context.Context, order *models.Order) (int64, error) {
	if order.ReferralCode == "" || r.pct <= 0 {
		return 0, nil
	}

	ctx, span := util.StartSpan(ctx, "ReferralService.CreditForOrder")
	defer span.End()

	promoter, err := r.lookup(ctx, order.ReferralCode)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve referral code %q: %w", order.ReferralCode, err)
	}

	amount := commission.Percent(order.TotalAmount, r.pct)
	if amount <= 0 {
		return 0, nil
	}

	orderID := order.ID
	path, err := r.ledger.CreditReferral(ctx, models.WalletCredit{
		UserID:      promoter.UserID,
		Amount:      amount,
		OrderID:     &orderID,
		Description: fmt.Sprintf("Referral commission for order %d (%d%%)", order.ID, r.pct),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to credit promoter %s: %w", promoter.UserID, err)
	}

	r.logger.Info("Referral credited",
		zap.Int64("order_id", order.ID),
		zap.String("promoter_user_id", promoter.UserID),
		zap.Int64("amount", amount),
		zap.String("path", string(path)))
	return amount, nil
}

func (r *ReferralService) lookup(ctx context.Context, code string) (*models.Promoter, error) {
	if entry, ok := r.cache.Get(code); ok {
		if r.now().Sub(entry.storedAt) < r.ttl {
			return entry.promoter, nil
		}
		r.cache.Remove(code)
	}

	promoter, err := r.promoters.GetPromoterByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	r.cache.Add(code, promoterEntry{promoter: promoter, storedAt: r.now()})
	return promoter, nil
}
