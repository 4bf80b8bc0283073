package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// FundingTradeStore implements domain.FundingTradeStore using PostgreSQL.
type FundingTradeStore struct {
	pool *pgxpool.Pool
}

// NewFundingTradeStore creates a new FundingTradeStore.
func NewFundingTradeStore(pool *pgxpool.Pool) *FundingTradeStore {
	return &FundingTradeStore{pool: pool}
}

// Create inserts a funding trade.
func (s *FundingTradeStore) Create(ctx context.Context, ft domain.FundingTrade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO funding_trades (id, controller_id, start_time, end_time, long_market, long_pair, short_market, short_pair)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ft.ID, ft.ControllerID, ft.StartTime, ft.EndTime,
		ft.LongMarket, ft.LongPair, ft.ShortMarket, ft.ShortPair,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert funding_trade: %w", err)
	}
	return nil
}

// SetEndTime seals the trade's window. A trade whose end time is already
// set is never mutated; that case returns domain.ErrTradeClosed.
func (s *FundingTradeStore) SetEndTime(ctx context.Context, id string, endTime int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE funding_trades SET end_time = $2 WHERE id = $1 AND end_time IS NULL",
		id, endTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: close funding_trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM funding_trades WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check funding_trade %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrTradeClosed
	}
	return nil
}

const fundingTradeColumns = "id, controller_id, start_time, end_time, long_market, long_pair, short_market, short_pair"

func scanFundingTrade(row interface{ Scan(...any) error }) (domain.FundingTrade, error) {
	var ft domain.FundingTrade
	err := row.Scan(
		&ft.ID, &ft.ControllerID, &ft.StartTime, &ft.EndTime,
		&ft.LongMarket, &ft.LongPair, &ft.ShortMarket, &ft.ShortPair,
	)
	return ft, err
}

// FindInWindow returns every trade where (market, pair) matches either
// leg and ts falls inside [start_time, end_time], with a NULL end_time
// treated as open-ended.
func (s *FundingTradeStore) FindInWindow(ctx context.Context, ts int64, market, pair string) ([]domain.FundingTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fundingTradeColumns+`
		FROM funding_trades
		WHERE ((long_market = $1 AND long_pair = $2) OR (short_market = $1 AND short_pair = $2))
		  AND start_time <= $3
		  AND (end_time IS NULL OR end_time >= $3)
		ORDER BY start_time`,
		market, pair, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: find funding_trades: %w", err)
	}
	defer rows.Close()

	var list []domain.FundingTrade
	for rows.Next() {
		ft, err := scanFundingTrade(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ft)
	}
	return list, rows.Err()
}

// FindActiveFrom returns every trade where (market, pair) matches
// either leg and the trade's window reaches ts or beyond, open-ended
// windows included.
func (s *FundingTradeStore) FindActiveFrom(ctx context.Context, from int64, market, pair string) ([]domain.FundingTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fundingTradeColumns+`
		FROM funding_trades
		WHERE ((long_market = $1 AND long_pair = $2) OR (short_market = $1 AND short_pair = $2))
		  AND (end_time IS NULL OR end_time >= $3)
		ORDER BY start_time`,
		market, pair, from,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: find active funding_trades: %w", err)
	}
	defer rows.Close()

	var list []domain.FundingTrade
	for rows.Next() {
		ft, err := scanFundingTrade(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ft)
	}
	return list, rows.Err()
}

// ListOpen returns every trade with no end time, oldest first.
func (s *FundingTradeStore) ListOpen(ctx context.Context) ([]domain.FundingTrade, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+fundingTradeColumns+" FROM funding_trades WHERE end_time IS NULL ORDER BY start_time",
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open funding_trades: %w", err)
	}
	defer rows.Close()

	var list []domain.FundingTrade
	for rows.Next() {
		ft, err := scanFundingTrade(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ft)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.FundingTradeStore = (*FundingTradeStore)(nil)
