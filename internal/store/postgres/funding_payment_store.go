package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// FundingPaymentStore implements domain.FundingPaymentStore using
// PostgreSQL. Payments are inserted by the execution subsystem; this
// module only ever fills in the trade attribution.
type FundingPaymentStore struct {
	pool *pgxpool.Pool
}

// NewFundingPaymentStore creates a new FundingPaymentStore.
func NewFundingPaymentStore(pool *pgxpool.Pool) *FundingPaymentStore {
	return &FundingPaymentStore{pool: pool}
}

// Create inserts a funding payment.
func (s *FundingPaymentStore) Create(ctx context.Context, fp domain.FundingPayment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO funding_payments (id, ts, market, pair, amount, trade_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		fp.ID, fp.Timestamp, fp.Market, fp.Pair, fp.Amount, fp.TradeID,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert funding_payment: %w", err)
	}
	return nil
}

const fundingPaymentColumns = "id, ts, market, pair, amount, trade_id"

func scanFundingPayment(row interface{ Scan(...any) error }) (domain.FundingPayment, error) {
	var fp domain.FundingPayment
	err := row.Scan(&fp.ID, &fp.Timestamp, &fp.Market, &fp.Pair, &fp.Amount, &fp.TradeID)
	return fp, err
}

// ListUnattributed returns every payment without a trade yet, oldest
// first.
func (s *FundingPaymentStore) ListUnattributed(ctx context.Context) ([]domain.FundingPayment, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+fundingPaymentColumns+" FROM funding_payments WHERE trade_id IS NULL ORDER BY ts",
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unattributed funding_payments: %w", err)
	}
	defer rows.Close()

	var list []domain.FundingPayment
	for rows.Next() {
		fp, err := scanFundingPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, fp)
	}
	return list, rows.Err()
}

// Attribute assigns the payment to a funding trade. A payment that is
// already attributed is never reassigned; that case returns
// domain.ErrAlreadyAttributed.
func (s *FundingPaymentStore) Attribute(ctx context.Context, id, tradeID string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE funding_payments SET trade_id = $2 WHERE id = $1 AND trade_id IS NULL",
		id, tradeID,
	)
	if err != nil {
		return fmt.Errorf("postgres: attribute funding_payment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM funding_payments WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check funding_payment %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyAttributed
	}
	return nil
}

// SumForTrade sums the attributed payment amounts of one trade. The sum
// of zero rows is SQL NULL, surfaced as an invalid NullDecimal.
func (s *FundingPaymentStore) SumForTrade(ctx context.Context, tradeID string) (decimal.NullDecimal, error) {
	var sum decimal.NullDecimal
	err := s.pool.QueryRow(ctx,
		"SELECT SUM(amount) FROM funding_payments WHERE trade_id = $1", tradeID,
	).Scan(&sum)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("postgres: sum funding_payments for trade %s: %w", tradeID, err)
	}
	return sum, nil
}

// Compile-time interface check.
var _ domain.FundingPaymentStore = (*FundingPaymentStore)(nil)
