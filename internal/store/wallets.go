package store

import (
	"context"
	"database/sql"
	"errors"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
)

// GetWalletByUserID retrieves a wallet by its owner
func (s *Store) GetWalletByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.GetContext(ctx, &wallet, "SELECT * FROM wallets WHERE user_id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "store.GetWalletByUserID", "wallet not found: %s", userID)
	}
	if err != nil {
		return nil, classify("store.GetWalletByUserID", err)
	}
	return &wallet, nil
}

// GetOrCreateWallet returns the user's wallet, creating a zeroed one if needed
func (s *Store) GetOrCreateWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID)
	if err != nil {
		return nil, classify("store.GetOrCreateWallet", err)
	}
	return s.GetWalletByUserID(ctx, userID)
}

// CreditWallet applies a credit through the credit_wallet routine, which
// updates the balance and appends the transaction atomically
func (s *Store) CreditWallet(ctx context.Context, credit models.WalletCredit) (int64, error) {
	var txID int64
	err := s.db.GetContext(ctx, &txID,
		"SELECT credit_wallet($1, $2, $3, $4, $5, $6)",
		credit.UserID, credit.Amount, credit.OrderID, credit.OrderItemID, credit.Type, credit.Description)
	if err != nil {
		return 0, classify("store.CreditWallet", err)
	}
	return txID, nil
}

// UpdateWalletBalances writes balance and total_earnings as given. There is
// no version check; concurrent callers can lose updates.
func (s *Store) UpdateWalletBalances(ctx context.Context, wallet *models.Wallet) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE wallets SET balance = $1, total_earnings = $2, updated_at = NOW() WHERE id = $3",
		wallet.Balance, wallet.TotalEarnings, wallet.ID)
	return classify("store.UpdateWalletBalances", err)
}

// InsertWalletTransaction appends a ledger row
func (s *Store) InsertWalletTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (wallet_id, user_id, type, amount, status, order_id, order_item_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		tx.WalletID, tx.UserID, tx.Type, tx.Amount, tx.Status, tx.OrderID, tx.OrderItemID, tx.Description,
	).Scan(&tx.ID, &tx.CreatedAt)
	return classify("store.InsertWalletTransaction", err)
}

// FindSaleTransaction returns the completed sale row for an order item, or
// nil when none exists
func (s *Store) FindSaleTransaction(ctx context.Context, orderItemID int64) (*models.WalletTransaction, error) {
	var tx models.WalletTransaction
	err := s.db.GetContext(ctx, &tx,
		"SELECT * FROM wallet_transactions WHERE order_item_id = $1 AND type = $2 AND status = $3",
		orderItemID, models.TransactionTypeSale, models.TransactionStatusCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("store.FindSaleTransaction", err)
	}
	return &tx, nil
}
