package store

import (
	"context"
	"database/sql"
	"errors"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
)

// GetSeller retrieves a seller by ID
func (s *Store) GetSeller(ctx context.Context, id string) (*models.Seller, error) {
	var seller models.Seller
	err := s.db.GetContext(ctx, &seller, "SELECT id, sales_total, updated_at FROM sellers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "store.GetSeller", "seller not found: %s", id)
	}
	if err != nil {
		return nil, classify("store.GetSeller", err)
	}
	return &seller, nil
}

// IncrementSalesTotal adds amount through the increment_sales_total routine
func (s *Store) IncrementSalesTotal(ctx context.Context, sellerID string, amount int64) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, "SELECT increment_sales_total($1, $2)", sellerID, amount)
	if err != nil {
		return 0, classify("store.IncrementSalesTotal", err)
	}
	return total, nil
}

// SetSalesTotal overwrites the seller's sales total. Only the sales
// accumulator's fallback path calls this.
func (s *Store) SetSalesTotal(ctx context.Context, sellerID string, total int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sellers SET sales_total = $1, updated_at = NOW() WHERE id = $2",
		total, sellerID)
	if err != nil {
		return classify("store.SetSalesTotal", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "store.SetSalesTotal", "seller not found: %s", sellerID)
	}
	return nil
}
