package store

import (
	"context"

	"earnings-service/internal/models"
)

// RecordDiagnostic appends a record for manual reconciliation
func (s *Store) RecordDiagnostic(ctx context.Context, rec *models.DiagnosticRecord) error {
	metadata := rec.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	query := `
		INSERT INTO ledger_diagnostics (error_type, seller_id, order_id, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		rec.ErrorType, rec.SellerID, rec.OrderID, rec.Message, string(metadata),
	).Scan(&rec.ID, &rec.CreatedAt)
	return classify("store.RecordDiagnostic", err)
}
