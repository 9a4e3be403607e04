package service

import (
	"context"

	"earnings-service/internal/apperr"
	"earnings-service/internal/commission"
	"earnings-service/internal/models"
	"earnings-service/internal/util"
)

// LedgerReader is the read side of the store used by the API.
type LedgerReader interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetSeller(ctx context.Context, id string) (*models.Seller, error)
	GetWalletByUserID(ctx context.Context, userID string) (*models.Wallet, error)
}

// SellerEarnings summarizes a seller's wallet and tier standing.
type SellerEarnings struct {
	SellerID   string          `json:"seller_id"`
	SalesTotal int64           `json:"sales_total"`
	NextTier   commission.Tier `json:"next_sale_tier"`
	Wallet     *models.Wallet  `json:"wallet"`
}

// QueryService serves read-only views of orders and earnings.
type QueryService struct {
	reader LedgerReader
	tiers  *commission.Table
}

func NewQueryService(reader LedgerReader, tiers *commission.Table) *QueryService {
	if tiers == nil {
		tiers = commission.DefaultTable
	}
	return &QueryService{reader: reader, tiers: tiers}
}

// GetOrder retrieves an order and its items
func (s *QueryService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.GetOrder")
	defer span.End()

	order, err := s.reader.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.reader.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// GetSellerEarnings returns the seller's wallet, cumulative sales and the
// tier the next sale would be priced at. A seller without sales yet has an
// empty wallet.
func (s *QueryService) GetSellerEarnings(ctx context.Context, sellerID string) (*SellerEarnings, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.GetSellerEarnings")
	defer span.End()

	seller, err := s.reader.GetSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	wallet, err := s.reader.GetWalletByUserID(ctx, sellerID)
	if apperr.Is(err, apperr.KindNotFound) {
		wallet = &models.Wallet{UserID: sellerID}
	} else if err != nil {
		return nil, err
	}

	return &SellerEarnings{
		SellerID:   seller.ID,
		SalesTotal: seller.SalesTotal,
		NextTier:   s.tiers.Resolve(seller.SalesTotal),
		Wallet:     wallet,
	}, nil
}
