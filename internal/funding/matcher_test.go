package funding

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// fakeTradeStore mirrors the SQL store's window matching in memory.
type fakeTradeStore struct {
	trades []domain.FundingTrade
}

func (s *fakeTradeStore) Create(ctx context.Context, ft domain.FundingTrade) error {
	s.trades = append(s.trades, ft)
	return nil
}

func (s *fakeTradeStore) SetEndTime(ctx context.Context, id string, endTime int64) error {
	for i := range s.trades {
		if s.trades[i].ID != id {
			continue
		}
		if s.trades[i].EndTime != nil {
			return domain.ErrTradeClosed
		}
		s.trades[i].EndTime = &endTime
		return nil
	}
	return domain.ErrNotFound
}

func (s *fakeTradeStore) FindInWindow(ctx context.Context, ts int64, market, pair string) ([]domain.FundingTrade, error) {
	var out []domain.FundingTrade
	for _, ft := range s.trades {
		if ft.HasLeg(market, pair) && ft.ActiveAt(ts) {
			out = append(out, ft)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) FindActiveFrom(ctx context.Context, from int64, market, pair string) ([]domain.FundingTrade, error) {
	var out []domain.FundingTrade
	for _, ft := range s.trades {
		if ft.HasLeg(market, pair) && ft.ActiveFrom(from) {
			out = append(out, ft)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) ListOpen(ctx context.Context) ([]domain.FundingTrade, error) {
	var out []domain.FundingTrade
	for _, ft := range s.trades {
		if ft.EndTime == nil {
			out = append(out, ft)
		}
	}
	return out, nil
}

var _ domain.FundingTradeStore = (*fakeTradeStore)(nil)

func closedTrade(id string, start, end int64, longMkt, longPair, shortMkt, shortPair string) domain.FundingTrade {
	return domain.FundingTrade{
		ID:          id,
		StartTime:   start,
		EndTime:     &end,
		LongMarket:  longMkt,
		LongPair:    longPair,
		ShortMarket: shortMkt,
		ShortPair:   shortPair,
	}
}

func TestFindMatchesEitherLegInWindow(t *testing.T) {
	store := &fakeTradeStore{trades: []domain.FundingTrade{
		closedTrade("t1", 1000, 3000, "binance", "BTC-USDT", "kucoin", "BTC-USDT"),
	}}
	m := NewMatcher(store, slog.Default())

	tests := []struct {
		name   string
		ts     int64
		market string
		pair   string
		wantID string
	}{
		{name: "long leg inside window", ts: 2000, market: "binance", pair: "BTC-USDT", wantID: "t1"},
		{name: "short leg inside window", ts: 2000, market: "kucoin", pair: "BTC-USDT", wantID: "t1"},
		{name: "window start inclusive", ts: 1000, market: "binance", pair: "BTC-USDT", wantID: "t1"},
		{name: "window end inclusive", ts: 3000, market: "binance", pair: "BTC-USDT", wantID: "t1"},
		{name: "after window", ts: 4000, market: "binance", pair: "BTC-USDT"},
		{name: "before window", ts: 500, market: "binance", pair: "BTC-USDT"},
		{name: "unknown pair", ts: 2000, market: "binance", pair: "ETH-USDT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Find(context.Background(), tt.ts, tt.market, tt.pair)
			if err != nil {
				t.Fatal(err)
			}
			if tt.wantID == "" {
				if got != nil {
					t.Fatalf("expected no match, got %+v", got)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Fatalf("got %+v, want trade %s", got, tt.wantID)
			}
		})
	}
}

func TestFindOpenEndedWindow(t *testing.T) {
	store := &fakeTradeStore{trades: []domain.FundingTrade{
		{ID: "open", StartTime: 1000, LongMarket: "binance", LongPair: "BTC-USDT", ShortMarket: "kucoin", ShortPair: "BTC-USDT"},
	}}
	m := NewMatcher(store, slog.Default())

	got, err := m.Find(context.Background(), 1_000_000, "kucoin", "BTC-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "open" {
		t.Fatalf("open trade should match far-future timestamps, got %+v", got)
	}
}

func TestFindOverlapFailsLoudly(t *testing.T) {
	store := &fakeTradeStore{trades: []domain.FundingTrade{
		closedTrade("t1", 1000, 3000, "binance", "BTC-USDT", "kucoin", "BTC-USDT"),
		closedTrade("t2", 2500, 5000, "binance", "BTC-USDT", "okx", "BTC-USDT"),
	}}
	m := NewMatcher(store, slog.Default())

	_, err := m.Find(context.Background(), 2800, "binance", "BTC-USDT")
	if !errors.Is(err, domain.ErrTradeOverlap) {
		t.Fatalf("err = %v, want ErrTradeOverlap", err)
	}
}

func TestOpenRejectsBusyLeg(t *testing.T) {
	store := &fakeTradeStore{trades: []domain.FundingTrade{
		{ID: "existing", StartTime: 1000, LongMarket: "binance", LongPair: "BTC-USDT", ShortMarket: "kucoin", ShortPair: "BTC-USDT"},
	}}
	m := NewMatcher(store, slog.Default())

	long := domain.ConnectorPair{Market: "okx", Pair: "BTC-USDT"}
	short := domain.ConnectorPair{Market: "kucoin", Pair: "BTC-USDT"}
	_, err := m.Open(context.Background(), long, short, "ctrl-1", 2000)
	if !errors.Is(err, domain.ErrTradeOverlap) {
		t.Fatalf("err = %v, want ErrTradeOverlap", err)
	}
	if len(store.trades) != 1 {
		t.Fatalf("rejected open must not write, store has %d trades", len(store.trades))
	}
}

func TestOpenRejectsBackdatedStartBeforeExistingTrade(t *testing.T) {
	// The stored trade runs 2000-3000. A new open-ended trade backdated to
	// 1000 would span that whole window, so the overlap check must look
	// past the start instant.
	store := &fakeTradeStore{trades: []domain.FundingTrade{
		closedTrade("later", 2000, 3000, "binance", "BTC-USDT", "kucoin", "BTC-USDT"),
	}}
	m := NewMatcher(store, slog.Default())

	long := domain.ConnectorPair{Market: "binance", Pair: "BTC-USDT"}
	short := domain.ConnectorPair{Market: "okx", Pair: "BTC-USDT"}
	_, err := m.Open(context.Background(), long, short, "ctrl-1", 1000)
	if !errors.Is(err, domain.ErrTradeOverlap) {
		t.Fatalf("err = %v, want ErrTradeOverlap", err)
	}
	if len(store.trades) != 1 {
		t.Fatalf("rejected open must not write, store has %d trades", len(store.trades))
	}
}

func TestOpenAllowedAfterPreviousTradeCloses(t *testing.T) {
	store := &fakeTradeStore{trades: []domain.FundingTrade{
		closedTrade("done", 1000, 3000, "binance", "BTC-USDT", "kucoin", "BTC-USDT"),
	}}
	m := NewMatcher(store, slog.Default())

	long := domain.ConnectorPair{Market: "binance", Pair: "BTC-USDT"}
	short := domain.ConnectorPair{Market: "kucoin", Pair: "BTC-USDT"}
	ft, err := m.Open(context.Background(), long, short, "ctrl-1", 4000)
	if err != nil {
		t.Fatal(err)
	}
	if ft.ID == "" {
		t.Error("expected a generated trade ID")
	}
	if ft.ControllerID != "ctrl-1" || ft.StartTime != 4000 {
		t.Errorf("trade = %+v", ft)
	}
	if ft.LongMarket != "binance" || ft.ShortMarket != "kucoin" {
		t.Errorf("legs = %s/%s", ft.LongLeg(), ft.ShortLeg())
	}
	if ft.EndTime != nil {
		t.Error("new trade must be open-ended")
	}
}

func TestCloseTradeOnce(t *testing.T) {
	store := &fakeTradeStore{trades: []domain.FundingTrade{
		{ID: "t1", StartTime: 1000, LongMarket: "binance", LongPair: "BTC-USDT", ShortMarket: "kucoin", ShortPair: "BTC-USDT"},
	}}
	m := NewMatcher(store, slog.Default())

	if err := m.CloseTrade(context.Background(), "t1", 5000); err != nil {
		t.Fatal(err)
	}
	if store.trades[0].EndTime == nil || *store.trades[0].EndTime != 5000 {
		t.Fatalf("end time not set: %+v", store.trades[0])
	}

	err := m.CloseTrade(context.Background(), "t1", 6000)
	if !errors.Is(err, domain.ErrTradeClosed) {
		t.Fatalf("second close err = %v, want ErrTradeClosed", err)
	}
	if *store.trades[0].EndTime != 5000 {
		t.Error("second close must not move the end time")
	}

	err = m.CloseTrade(context.Background(), "missing", 6000)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown id err = %v, want ErrNotFound", err)
	}
}
