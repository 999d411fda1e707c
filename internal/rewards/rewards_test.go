package rewards_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/rewards"
)

// fakePages serves txPages[i] for page i of transactions and one timeline page.
type fakePages struct {
	txPages   [][]model.Transaction
	failPage  int
	sizes     []int
	timeline  []model.RewardEntry
	pagesSeen []int
}

func (f *fakePages) FetchTransactionsPage(_ context.Context, _ string, page, pageSize int, _ model.DateWindow) (model.Page[model.Transaction], error) {
	f.pagesSeen = append(f.pagesSeen, page)
	f.sizes = append(f.sizes, pageSize)
	if f.failPage > 0 && page == f.failPage {
		return model.Page[model.Transaction]{}, model.ErrNetworkUnavailable
	}
	return model.Page[model.Transaction]{
		Data:        f.txPages[page],
		HasNextPage: page < len(f.txPages)-1,
	}, nil
}

func (f *fakePages) FetchRewardsPage(_ context.Context, _ string, page, pageSize int, _ model.DateWindow) (model.Page[model.RewardEntry], error) {
	return model.Page[model.RewardEntry]{Data: f.timeline}, nil
}

func tx(day, hour int, reward string, score int64) model.Transaction {
	return model.Transaction{
		Timestamp:    time.Date(2024, 6, day, hour, 0, 0, 0, time.UTC),
		ActualReward: decimal.RequireFromString(reward),
		BaseReward:   decimal.RequireFromString(reward),
		RewardScore:  null.IntFrom(score),
	}
}

func june(from, to int) model.DateWindow {
	return model.NewDateWindow(time.Date(2024, 6, from, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, to, 0, 0, 0, 0, time.UTC))
}

func TestTransactionsDrainsAllPages(t *testing.T) {
	f := &fakePages{txPages: [][]model.Transaction{
		{tx(1, 0, "1", 90), tx(1, 1, "2", 90)},
		{tx(2, 0, "3", 80)},
	}}
	got, err := rewards.NewService(f).Transactions(context.Background(), "dev1", june(1, 30))
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(got))
	}
	for _, size := range f.sizes {
		if size != 50 {
			t.Errorf("expected page size 50, got %d", size)
		}
	}
}

func TestTransactionsFailureReturnsNothing(t *testing.T) {
	f := &fakePages{
		txPages:  [][]model.Transaction{{tx(1, 0, "1", 90)}, {tx(2, 0, "1", 90)}, {tx(3, 0, "1", 90)}},
		failPage: 1,
	}
	got, err := rewards.NewService(f).Transactions(context.Background(), "dev1", june(1, 30))
	if !errors.Is(err, model.ErrNetworkUnavailable) {
		t.Fatalf("expected ErrNetworkUnavailable, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial data, got %d items", len(got))
	}
}

func TestTransactionsRejectsReversedWindow(t *testing.T) {
	f := &fakePages{}
	_, err := rewards.NewService(f).Transactions(context.Background(), "dev1", june(5, 1))
	if !errors.Is(err, model.ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
	if len(f.pagesSeen) != 0 {
		t.Error("no page should be requested")
	}
}

func TestTimeline(t *testing.T) {
	f := &fakePages{timeline: []model.RewardEntry{
		{Date: june(1, 1).From, TotalReward: decimal.RequireFromString("1.5")},
		{Date: june(2, 2).From, TotalReward: decimal.RequireFromString("2.25")},
	}}
	got, err := rewards.NewService(f).Timeline(context.Background(), "dev1", june(1, 2))
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if total := rewards.TimelineTotal(got); !total.Equal(decimal.RequireFromString("3.75")) {
		t.Errorf("timeline total = %s", total)
	}
}

func TestSummarize(t *testing.T) {
	txs := []model.Transaction{tx(2, 0, "0.1", 100), tx(1, 0, "0.2", 80), tx(3, 0, "0.3", 90)}
	txs[1].RewardScore = null.Int{}
	s := rewards.Summarize(txs)

	if s.Count != 3 {
		t.Errorf("count = %d", s.Count)
	}
	if !s.Total.Equal(decimal.RequireFromString("0.6")) {
		t.Errorf("total = %s (decimal sums must be exact)", s.Total)
	}
	if !s.Mean.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("mean = %s", s.Mean)
	}
	if !s.Max.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("max = %s", s.Max)
	}
	if s.AvgScore != 95 || s.ScoredCount != 2 {
		t.Errorf("avg score = %v over %d", s.AvgScore, s.ScoredCount)
	}
	if s.First.Day() != 1 || s.Last.Day() != 3 {
		t.Errorf("first/last = %s/%s", s.First, s.Last)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := rewards.Summarize(nil)
	if s.Count != 0 || !s.Total.IsZero() || !s.Mean.IsZero() {
		t.Errorf("unexpected empty summary %+v", s)
	}
}

func TestDailyTotals(t *testing.T) {
	txs := []model.Transaction{tx(2, 5, "1", 70), tx(1, 3, "0.5", 60), tx(2, 9, "0.25", 75)}
	days := rewards.DailyTotals(txs)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Date.Day() != 1 || days[1].Date.Day() != 2 {
		t.Errorf("days not sorted: %v, %v", days[0].Date, days[1].Date)
	}
	if !days[1].TotalReward.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("day 2 total = %s", days[1].TotalReward)
	}
	if days[1].RewardScore.Int64 != 75 {
		t.Errorf("day 2 score = %d", days[1].RewardScore.Int64)
	}
}
