// Package rewards drains a station's reward endpoints over a date range and
// summarizes them.
package rewards

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/paging"
)

// PageFetcher fetches one page of a paginated reward endpoint.
// *station.Client satisfies it.
type PageFetcher interface {
	FetchTransactionsPage(ctx context.Context, deviceID string, page, pageSize int, window model.DateWindow) (model.Page[model.Transaction], error)
	FetchRewardsPage(ctx context.Context, deviceID string, page, pageSize int, window model.DateWindow) (model.Page[model.RewardEntry], error)
}

// Service fetches complete reward ranges.
type Service struct {
	net      PageFetcher
	PageSize int
	MaxPages int
}

// NewService wires a page fetcher with the default page size and ceiling.
func NewService(net PageFetcher) *Service {
	return &Service{net: net, PageSize: paging.DefaultPageSize, MaxPages: paging.DefaultMaxPages}
}

func (s *Service) options() (int, paging.Options) {
	size := s.PageSize
	if size <= 0 {
		size = paging.DefaultPageSize
	}
	return size, paging.Options{
		MaxPages: s.MaxPages,
	}
}

// Transactions returns every transaction for deviceID within window.
func (s *Service) Transactions(ctx context.Context, deviceID string, window model.DateWindow) ([]model.Transaction, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	size, opts := s.options()
	return paging.FetchAll(ctx, func(ctx context.Context, page int) (model.Page[model.Transaction], error) {
		return s.net.FetchTransactionsPage(ctx, deviceID, page, size, window)
	}, opts)
}

// Timeline returns every reward timeline entry for deviceID within window.
func (s *Service) Timeline(ctx context.Context, deviceID string, window model.DateWindow) ([]model.RewardEntry, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	size, opts := s.options()
	return paging.FetchAll(ctx, func(ctx context.Context, page int) (model.Page[model.RewardEntry], error) {
		return s.net.FetchRewardsPage(ctx, deviceID, page, size, window)
	}, opts)
}

// ─── Summaries ────────────────────────────────────────────────────────────────

// Summary totals a set of transactions.
type Summary struct {
	Count       int             `json:"count"`
	Total       decimal.Decimal `json:"total"`
	Mean        decimal.Decimal `json:"mean"`
	Max         decimal.Decimal `json:"max"`
	Base        decimal.Decimal `json:"base"`
	Boost       decimal.Decimal `json:"boost"`
	Lost        decimal.Decimal `json:"lost"`
	AvgScore    float64         `json:"avg_score"`
	First       time.Time       `json:"first"`
	Last        time.Time       `json:"last"`
	ScoredCount int             `json:"scored_count"`
}

// Summarize computes totals over txs using the actual reward of each.
func Summarize(txs []model.Transaction) Summary {
	var s Summary
	scoreSum := int64(0)
	for i, tx := range txs {
		s.Count++
		s.Total = s.Total.Add(tx.ActualReward)
		s.Base = s.Base.Add(tx.BaseReward)
		s.Boost = s.Boost.Add(tx.BoostReward)
		s.Lost = s.Lost.Add(tx.LostRewards)
		if i == 0 || tx.ActualReward.GreaterThan(s.Max) {
			s.Max = tx.ActualReward
		}
		if s.First.IsZero() || tx.Timestamp.Before(s.First) {
			s.First = tx.Timestamp
		}
		if tx.Timestamp.After(s.Last) {
			s.Last = tx.Timestamp
		}
		if tx.RewardScore.Valid {
			scoreSum += tx.RewardScore.Int64
			s.ScoredCount++
		}
	}
	if s.Count > 0 {
		s.Mean = s.Total.Div(decimal.NewFromInt(int64(s.Count))).Round(6)
	}
	if s.ScoredCount > 0 {
		s.AvgScore = float64(scoreSum) / float64(s.ScoredCount)
	}
	return s
}

// DailyTotals buckets transactions by the calendar date of their timestamp
// and returns one entry per day in ascending order. The reward score of a day
// is the last valid score seen for it.
func DailyTotals(txs []model.Transaction) []model.RewardEntry {
	byDay := make(map[time.Time]*model.RewardEntry)
	for _, tx := range txs {
		d := model.DateOf(tx.Timestamp)
		e, ok := byDay[d]
		if !ok {
			e = &model.RewardEntry{Date: d}
			byDay[d] = e
		}
		e.TotalReward = e.TotalReward.Add(tx.ActualReward)
		if tx.RewardScore.Valid {
			e.RewardScore = tx.RewardScore
		}
	}

	out := make([]model.RewardEntry, 0, len(byDay))
	for _, e := range byDay {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// TimelineTotal sums the total reward across timeline entries.
func TimelineTotal(entries []model.RewardEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.TotalReward)
	}
	return total
}
