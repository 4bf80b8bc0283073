package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// ExecutorStore implements domain.ExecutorStore using PostgreSQL. The
// executors table is append-only from this module's perspective; rows are
// written by the execution subsystem and read here as aggregates.
type ExecutorStore struct {
	pool *pgxpool.Pool
}

// NewExecutorStore creates a new ExecutorStore.
func NewExecutorStore(pool *pgxpool.Pool) *ExecutorStore {
	return &ExecutorStore{pool: pool}
}

// Create inserts an executor record.
func (s *ExecutorStore) Create(ctx context.Context, rec domain.ExecutorRecord) error {
	var closeType *int
	if rec.CloseType != nil {
		ct := int(*rec.CloseType)
		closeType = &ct
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executors (
			id, ts, type, close_type, close_timestamp, status, controller_id,
			buy_market, buy_pair, sell_market, sell_pair,
			buy_executed_size, buy_avg_price, sell_executed_size, sell_avg_price,
			cum_fees_quote, net_pnl_quote
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID, rec.Timestamp, rec.Type, closeType, rec.CloseTimestamp, int(rec.Status), rec.ControllerID,
		rec.BuyMarket, rec.BuyPair, rec.SellMarket, rec.SellPair,
		rec.BuyExecutedSize, rec.BuyAvgPrice, rec.SellExecutedSize, rec.SellAvgPrice,
		rec.CumFeesQuote, rec.NetPnLQuote,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert executor: %w", err)
	}
	return nil
}

// sideColumns returns the size and price column names for the filtered
// side's leg.
func sideColumns(side domain.PositionSide) (market, pair, size, price string) {
	if side == domain.SideShort {
		return "sell_market", "sell_pair", "sell_executed_size", "sell_avg_price"
	}
	return "buy_market", "buy_pair", "buy_executed_size", "buy_avg_price"
}

// sumQuery accumulates the WHERE conditions and positional parameters of
// one aggregate statement.
type sumQuery struct {
	conds []string
	args  []any
}

// next registers a parameter and returns its placeholder.
func (q *sumQuery) next(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *sumQuery) where() string {
	return strings.Join(q.conds, " AND ")
}

// windowQuery seeds a sumQuery with the conditions every aggregate
// shares: the type, the close-timestamp window, and the close-type set.
func windowQuery(f domain.ExecutorSumFilter) *sumQuery {
	q := &sumQuery{
		conds: []string{"close_timestamp IS NOT NULL"},
	}
	q.conds = append(q.conds, "type = "+q.next(f.Type))
	q.conds = append(q.conds, "close_timestamp >= "+q.next(f.StartTime))
	if f.EndTime != nil {
		q.conds = append(q.conds, "close_timestamp <= "+q.next(*f.EndTime))
	}
	if len(f.CloseTypes) > 0 {
		codes := make([]int, len(f.CloseTypes))
		for i, ct := range f.CloseTypes {
			codes[i] = int(ct)
		}
		q.conds = append(q.conds, "close_type = ANY("+q.next(codes)+")")
	}
	return q
}

// SumExecuted sums the filtered side's executed base size and notional
// in one statement, so both figures come from the same snapshot. The sum
// of zero rows is SQL NULL, surfaced as an invalid NullDecimal.
func (s *ExecutorStore) SumExecuted(ctx context.Context, f domain.ExecutorSumFilter) (domain.ExecutorSums, error) {
	market, pair, size, price := sideColumns(f.Side)
	q := windowQuery(f)

	q.conds = append(q.conds, market+" = "+q.next(f.Market))
	q.conds = append(q.conds, pair+" = "+q.next(f.Pair))
	if f.PositiveSizeOnly {
		q.conds = append(q.conds, size+" > 0")
	}

	var sums domain.ExecutorSums
	err := s.pool.QueryRow(ctx,
		"SELECT SUM("+size+"), SUM("+size+" * "+price+") FROM executors WHERE "+q.where(),
		q.args...,
	).Scan(&sums.Size, &sums.Notional)
	if err != nil {
		return domain.ExecutorSums{}, fmt.Errorf("postgres: sum executed: %w", err)
	}
	return sums, nil
}

// SumNetExecuted sums the buy-leg and the sell-leg executed size for
// (Market, Pair) in one statement, each sum filtered to the rows where
// its own leg matches. A leg with no matching rows sums to SQL NULL.
func (s *ExecutorStore) SumNetExecuted(ctx context.Context, f domain.ExecutorSumFilter) (domain.NetExecutorSums, error) {
	q := windowQuery(f)

	market, pair := q.next(f.Market), q.next(f.Pair)
	buyLeg := "buy_market = " + market + " AND buy_pair = " + pair
	sellLeg := "sell_market = " + market + " AND sell_pair = " + pair
	q.conds = append(q.conds, "(("+buyLeg+") OR ("+sellLeg+"))")

	var sums domain.NetExecutorSums
	err := s.pool.QueryRow(ctx,
		"SELECT SUM(buy_executed_size) FILTER (WHERE "+buyLeg+"), "+
			"SUM(sell_executed_size) FILTER (WHERE "+sellLeg+") "+
			"FROM executors WHERE "+q.where(),
		q.args...,
	).Scan(&sums.Buy, &sums.Sell)
	if err != nil {
		return domain.NetExecutorSums{}, fmt.Errorf("postgres: sum net executed: %w", err)
	}
	return sums, nil
}

const executorColumns = `
	id, ts, type, close_type, close_timestamp, status, controller_id,
	buy_market, buy_pair, sell_market, sell_pair,
	buy_executed_size, buy_avg_price, sell_executed_size, sell_avg_price,
	cum_fees_quote, net_pnl_quote`

func scanExecutor(row interface{ Scan(...any) error }) (domain.ExecutorRecord, error) {
	var rec domain.ExecutorRecord
	var closeType *int
	var status int
	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.Type, &closeType, &rec.CloseTimestamp, &status, &rec.ControllerID,
		&rec.BuyMarket, &rec.BuyPair, &rec.SellMarket, &rec.SellPair,
		&rec.BuyExecutedSize, &rec.BuyAvgPrice, &rec.SellExecutedSize, &rec.SellAvgPrice,
		&rec.CumFeesQuote, &rec.NetPnLQuote,
	)
	if err != nil {
		return domain.ExecutorRecord{}, err
	}
	if closeType != nil {
		ct := domain.CloseType(*closeType)
		rec.CloseType = &ct
	}
	rec.Status = domain.ExecutorStatus(status)
	return rec, nil
}

// ListOpen returns records of the given type with no close timestamp yet.
func (s *ExecutorStore) ListOpen(ctx context.Context, execType string) ([]domain.ExecutorRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+executorColumns+" FROM executors WHERE type = $1 AND close_timestamp IS NULL ORDER BY ts",
		execType,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open executors: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutorRecord
	for rows.Next() {
		rec, err := scanExecutor(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// ListClosedSince returns records of the given type closed at or after
// since, in close-timestamp order.
func (s *ExecutorStore) ListClosedSince(ctx context.Context, execType string, since int64) ([]domain.ExecutorRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+executorColumns+" FROM executors WHERE type = $1 AND close_timestamp >= $2 ORDER BY close_timestamp",
		execType, since,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed executors: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutorRecord
	for rows.Next() {
		rec, err := scanExecutor(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.ExecutorStore = (*ExecutorStore)(nil)
