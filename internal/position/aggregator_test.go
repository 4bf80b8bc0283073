package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// fakeExecutorStore evaluates sum filters in memory with the same
// semantics the SQL implementation has: only closed records are
// considered, Side selects which leg's columns the filter applies to, and
// no matching rows yields an invalid NullDecimal.
type fakeExecutorStore struct {
	records []domain.ExecutorRecord
}

func (s *fakeExecutorStore) Create(ctx context.Context, rec domain.ExecutorRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeExecutorStore) match(f domain.ExecutorSumFilter) []domain.ExecutorRecord {
	var out []domain.ExecutorRecord
	for _, r := range s.records {
		if r.Type != f.Type || r.CloseTimestamp == nil || r.CloseType == nil {
			continue
		}
		market, pair, size := r.BuyMarket, r.BuyPair, r.BuyExecutedSize
		if f.Side == domain.SideShort {
			market, pair, size = r.SellMarket, r.SellPair, r.SellExecutedSize
		}
		if market != f.Market || pair != f.Pair {
			continue
		}
		if *r.CloseTimestamp < f.StartTime {
			continue
		}
		if f.EndTime != nil && *r.CloseTimestamp > *f.EndTime {
			continue
		}
		ok := false
		for _, ct := range f.CloseTypes {
			if *r.CloseType == ct {
				ok = true
				break
			}
		}
		if !ok {
			continue
		}
		if f.PositiveSizeOnly && !size.IsPositive() {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *fakeExecutorStore) SumExecuted(ctx context.Context, f domain.ExecutorSumFilter) (domain.ExecutorSums, error) {
	rows := s.match(f)
	if len(rows) == 0 {
		return domain.ExecutorSums{}, nil
	}
	size, notional := decimal.Zero, decimal.Zero
	for _, r := range rows {
		if f.Side == domain.SideShort {
			size = size.Add(r.SellExecutedSize)
			notional = notional.Add(r.SellExecutedSize.Mul(r.SellAvgPrice))
		} else {
			size = size.Add(r.BuyExecutedSize)
			notional = notional.Add(r.BuyExecutedSize.Mul(r.BuyAvgPrice))
		}
	}
	return domain.ExecutorSums{
		Size:     decimal.NullDecimal{Decimal: size, Valid: true},
		Notional: decimal.NullDecimal{Decimal: notional, Valid: true},
	}, nil
}

func (s *fakeExecutorStore) SumNetExecuted(ctx context.Context, f domain.ExecutorSumFilter) (domain.NetExecutorSums, error) {
	var sums domain.NetExecutorSums
	for _, r := range s.records {
		if r.Type != f.Type || r.CloseTimestamp == nil || r.CloseType == nil {
			continue
		}
		if *r.CloseTimestamp < f.StartTime {
			continue
		}
		if f.EndTime != nil && *r.CloseTimestamp > *f.EndTime {
			continue
		}
		ok := false
		for _, ct := range f.CloseTypes {
			if *r.CloseType == ct {
				ok = true
				break
			}
		}
		if !ok {
			continue
		}
		if r.BuyMarket == f.Market && r.BuyPair == f.Pair {
			sums.Buy = addNull(sums.Buy, r.BuyExecutedSize)
		}
		if r.SellMarket == f.Market && r.SellPair == f.Pair {
			sums.Sell = addNull(sums.Sell, r.SellExecutedSize)
		}
	}
	return sums, nil
}

func addNull(n decimal.NullDecimal, d decimal.Decimal) decimal.NullDecimal {
	if !n.Valid {
		return decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return decimal.NullDecimal{Decimal: n.Decimal.Add(d), Valid: true}
}

func (s *fakeExecutorStore) ListOpen(ctx context.Context, execType string) ([]domain.ExecutorRecord, error) {
	return nil, nil
}

func (s *fakeExecutorStore) ListClosedSince(ctx context.Context, execType string, since int64) ([]domain.ExecutorRecord, error) {
	return nil, nil
}

var _ domain.ExecutorStore = (*fakeExecutorStore)(nil)

// racingStore lands one queued insert after serving each aggregate read,
// imitating the execution subsystem writing while a decision runs.
type racingStore struct {
	*fakeExecutorStore
	queued []domain.ExecutorRecord
}

func (s *racingStore) land() {
	if len(s.queued) > 0 {
		s.records = append(s.records, s.queued[0])
		s.queued = s.queued[1:]
	}
}

func (s *racingStore) SumExecuted(ctx context.Context, f domain.ExecutorSumFilter) (domain.ExecutorSums, error) {
	sums, err := s.fakeExecutorStore.SumExecuted(ctx, f)
	s.land()
	return sums, err
}

func (s *racingStore) SumNetExecuted(ctx context.Context, f domain.ExecutorSumFilter) (domain.NetExecutorSums, error) {
	sums, err := s.fakeExecutorStore.SumNetExecuted(ctx, f)
	s.land()
	return sums, err
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func closed(id string, ts int64, ct domain.CloseType, buyMkt, buyPair, sellMkt, sellPair string, buySize, buyPrice, sellSize, sellPrice string) domain.ExecutorRecord {
	return domain.ExecutorRecord{
		ID:             id,
		Timestamp:      ts - 10,
		Type:           domain.ExecutorTypeArbitrage,
		CloseType:      &ct,
		CloseTimestamp: &ts,
		Status:         domain.ExecutorTerminated,
		BuyMarket:      buyMkt,
		BuyPair:        buyPair,
		SellMarket:     sellMkt,
		SellPair:       sellPair,

		BuyExecutedSize:  dec(buySize),
		BuyAvgPrice:      dec(buyPrice),
		SellExecutedSize: dec(sellSize),
		SellAvgPrice:     dec(sellPrice),
	}
}

func testAggregator(recs ...domain.ExecutorRecord) *Aggregator {
	return New(&fakeExecutorStore{records: recs}, slog.Default())
}

func TestPositionSizeNetsBuysAgainstSells(t *testing.T) {
	// Five scale-in buys on bybit ENA-USDT, then one downscale where the
	// pair flips to the sell leg.
	recs := []domain.ExecutorRecord{
		closed("e1", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "1", "10", "1", "10.1"),
		closed("e2", 1100, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "2", "10", "2", "10.1"),
		closed("e3", 1200, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "3", "10", "3", "10.1"),
		closed("e4", 1300, domain.CloseTypeOneSideFailed, "bybit", "ENA-USDT", "hyper", "ENA-USD", "4", "10", "0", "0"),
		closed("e5", 1400, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "5", "10", "5", "10.1"),
		closed("e6", 1500, domain.CloseTypeCompleted, "hyper", "ENA-USD", "bybit", "ENA-USDT", "4", "10.1", "4", "10"),
	}
	agg := testAggregator(recs...)

	size, err := agg.PositionSize(context.Background(), 0, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("11"); !size.Equal(want) {
		t.Errorf("size = %s, want %s", size, want)
	}
}

func TestPositionSizeAndEntryPriceAcrossIncrements(t *testing.T) {
	// Five increments of 1..5 units all filled at 10.038: 15 units open,
	// 150.57 notional, so the average entry price recovers 10.038 exactly.
	var recs []domain.ExecutorRecord
	for i := 1; i <= 5; i++ {
		recs = append(recs, closed(
			fmt.Sprintf("e%d", i), int64(1000+i*100), domain.CloseTypeCompleted,
			"bybit", "ENA-USDT", "hyper", "ENA-USD",
			strconv.Itoa(i), "10.038", strconv.Itoa(i), "10.05",
		))
	}
	agg := testAggregator(recs...)

	size, err := agg.PositionSize(context.Background(), 0, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("15"); !size.Equal(want) {
		t.Errorf("size = %s, want %s", size, want)
	}

	price, err := agg.AvgEntryPrice(context.Background(), 0, nil, "bybit", "ENA-USDT", domain.SideLong)
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("10.038"); !price.Equal(want) {
		t.Errorf("avg entry = %s, want %s", price, want)
	}
	if want := dec("150.57"); !size.Mul(price).Equal(want) {
		t.Errorf("notional = %s, want %s", size.Mul(price), want)
	}

	// Read-only queries: asking again changes nothing.
	again, err := agg.PositionSize(context.Background(), 0, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(size) {
		t.Errorf("repeated query = %s, first was %s", again, size)
	}
}

func TestPositionSizeGrowsByIncrementMultiples(t *testing.T) {
	// Fills of 10.038, 20.076, 30.114, 40.152, and 50.19 units: the open
	// position is their sum, 150.57 units.
	unit := dec("10.038")
	var recs []domain.ExecutorRecord
	for i := 1; i <= 5; i++ {
		size := unit.Mul(decimal.NewFromInt(int64(i)))
		recs = append(recs, closed(
			fmt.Sprintf("e%d", i), int64(1000+i*100), domain.CloseTypeCompleted,
			"bybit", "ENA-USDT", "hyper", "ENA-USD",
			size.String(), "3.5", size.String(), "3.51",
		))
	}
	agg := testAggregator(recs...)

	size, err := agg.PositionSize(context.Background(), 0, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("150.57"); !size.Equal(want) {
		t.Errorf("size = %s, want %s", size, want)
	}
}

func TestPositionSizeReadsOneSnapshot(t *testing.T) {
	// A downscale lands right after the aggregate query is served. Net
	// size feeds one decision, so both legs must come from the same
	// snapshot: 5 before the write or 0 after it, never buys from one and
	// sells from the other.
	store := &racingStore{
		fakeExecutorStore: &fakeExecutorStore{records: []domain.ExecutorRecord{
			closed("open", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "5", "10", "5", "10.1"),
		}},
		queued: []domain.ExecutorRecord{
			closed("down", 1100, domain.CloseTypeCompleted, "hyper", "ENA-USD", "bybit", "ENA-USDT", "5", "10.1", "5", "10"),
		},
	}
	agg := New(store, slog.Default())

	size, err := agg.PositionSize(context.Background(), 0, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("5"); !size.Equal(want) {
		t.Errorf("size = %s, want %s from the pre-write snapshot", size, want)
	}
}

func TestPositionSizeAbsoluteOnFlip(t *testing.T) {
	// Pair sold more than bought: magnitude only, no sign.
	recs := []domain.ExecutorRecord{
		closed("e1", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "2", "10", "2", "10.1"),
		closed("e2", 1100, domain.CloseTypeCompleted, "hyper", "ENA-USD", "bybit", "ENA-USDT", "7", "10.1", "7", "10"),
	}
	agg := testAggregator(recs...)

	size, err := agg.PositionSize(context.Background(), 0, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("5"); !size.Equal(want) {
		t.Errorf("size = %s, want %s", size, want)
	}
}

func TestPositionSizeWindowBounds(t *testing.T) {
	recs := []domain.ExecutorRecord{
		closed("early", 500, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "1", "10", "1", "10"),
		closed("in", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "2", "10", "2", "10"),
		closed("late", 2000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "4", "10", "4", "10"),
	}
	agg := testAggregator(recs...)

	end := int64(1500)
	size, err := agg.PositionSize(context.Background(), 900, &end, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("2"); !size.Equal(want) {
		t.Errorf("bounded size = %s, want %s", size, want)
	}

	// Open-ended window picks up the later record too.
	size, err = agg.PositionSize(context.Background(), 900, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("6"); !size.Equal(want) {
		t.Errorf("open-ended size = %s, want %s", size, want)
	}
}

func TestPositionSizeIgnoresFailedExecutors(t *testing.T) {
	recs := []domain.ExecutorRecord{
		closed("ok", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "3", "10", "3", "10"),
		closed("failed", 1100, domain.CloseTypeFailed, "bybit", "ENA-USDT", "hyper", "ENA-USD", "9", "10", "9", "10"),
	}
	agg := testAggregator(recs...)

	size, err := agg.PositionSize(context.Background(), 0, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("3"); !size.Equal(want) {
		t.Errorf("size = %s, want %s", size, want)
	}
}

func TestPositionSizeEmptyWindowIsZero(t *testing.T) {
	agg := testAggregator()

	size, err := agg.PositionSize(context.Background(), 0, nil, "bybit", "ENA-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if !size.IsZero() {
		t.Errorf("size = %s, want 0", size)
	}
}

func TestAvgEntryPriceVolumeWeighted(t *testing.T) {
	// 2 @ 10 and 3 @ 12 on the buy side: (20 + 36) / 5 = 11.2.
	recs := []domain.ExecutorRecord{
		closed("e1", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "2", "10", "2", "10.1"),
		closed("e2", 1100, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "3", "12", "3", "12.1"),
	}
	agg := testAggregator(recs...)

	price, err := agg.AvgEntryPrice(context.Background(), 0, nil, "bybit", "ENA-USDT", domain.SideLong)
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("11.2"); !price.Equal(want) {
		t.Errorf("avg entry = %s, want %s", price, want)
	}
}

func TestAvgEntryPriceReadsOneSnapshot(t *testing.T) {
	// A fill lands right after the aggregate query is served. Numerator
	// and denominator feed one ratio, so both must come from the same
	// snapshot: 10 before the write or 15 after it, never a mix like
	// notional 20 over size 4.
	store := &racingStore{
		fakeExecutorStore: &fakeExecutorStore{records: []domain.ExecutorRecord{
			closed("e1", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "2", "10", "2", "10.1"),
		}},
		queued: []domain.ExecutorRecord{
			closed("e2", 1100, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "2", "20", "2", "20.1"),
		},
	}
	agg := New(store, slog.Default())

	price, err := agg.AvgEntryPrice(context.Background(), 0, nil, "bybit", "ENA-USDT", domain.SideLong)
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("10"); !price.Equal(want) {
		t.Errorf("avg entry = %s, want %s from the pre-write snapshot", price, want)
	}
}

func TestAvgEntryPriceExcludesZeroFills(t *testing.T) {
	// A one-side-failed close with zero buy fill must not drag the
	// average toward its recorded price of zero.
	recs := []domain.ExecutorRecord{
		closed("filled", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "4", "10", "4", "10.1"),
		closed("zerofill", 1100, domain.CloseTypeOneSideFailed, "bybit", "ENA-USDT", "hyper", "ENA-USD", "0", "0", "4", "10.1"),
	}
	agg := testAggregator(recs...)

	price, err := agg.AvgEntryPrice(context.Background(), 0, nil, "bybit", "ENA-USDT", domain.SideLong)
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("10"); !price.Equal(want) {
		t.Errorf("avg entry = %s, want %s", price, want)
	}
}

func TestAvgEntryPriceIgnoresDownscales(t *testing.T) {
	// The downscale puts ENA-USDT on the sell leg, so the long-side
	// average only sees the opening buys.
	recs := []domain.ExecutorRecord{
		closed("open", 1000, domain.CloseTypeCompleted, "bybit", "ENA-USDT", "hyper", "ENA-USD", "5", "10", "5", "10.1"),
		closed("down", 1100, domain.CloseTypeCompleted, "hyper", "ENA-USD", "bybit", "ENA-USDT", "2", "10.2", "2", "10.4"),
	}
	agg := testAggregator(recs...)

	price, err := agg.AvgEntryPrice(context.Background(), 0, nil, "bybit", "ENA-USDT", domain.SideLong)
	if err != nil {
		t.Fatal(err)
	}
	if want := dec("10"); !price.Equal(want) {
		t.Errorf("avg entry = %s, want %s", price, want)
	}
}

func TestAvgEntryPriceEmptyWindowIsZero(t *testing.T) {
	agg := testAggregator()

	price, err := agg.AvgEntryPrice(context.Background(), 0, nil, "bybit", "ENA-USDT", domain.SideShort)
	if err != nil {
		t.Fatal(err)
	}
	if !price.IsZero() {
		t.Errorf("avg entry = %s, want 0", price)
	}
}

func TestAvgEntryPriceInvalidSide(t *testing.T) {
	agg := testAggregator()

	_, err := agg.AvgEntryPrice(context.Background(), 0, nil, "bybit", "ENA-USDT", "sideways")
	if !errors.Is(err, domain.ErrInvalidSide) {
		t.Fatalf("err = %v, want ErrInvalidSide", err)
	}
}
