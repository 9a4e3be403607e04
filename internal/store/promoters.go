package store

import (
	"context"
	"database/sql"
	"errors"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
)

// GetPromoterByReferralCode retrieves the promoter owning a referral code
func (s *Store) GetPromoterByReferralCode(ctx context.Context, code string) (*models.Promoter, error) {
	var promoter models.Promoter
	err := s.db.GetContext(ctx, &promoter,
		"SELECT id, user_id, referral_code FROM promoters WHERE referral_code = $1", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "store.GetPromoterByReferralCode", "no promoter for referral code %q", code)
	}
	if err != nil {
		return nil, classify("store.GetPromoterByReferralCode", err)
	}
	return &promoter, nil
}
