package station

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/util"
)

// FetchTransactionsPage returns one page of reward transactions.
func (c *Client) FetchTransactionsPage(ctx context.Context, deviceID string, page, pageSize int, window model.DateWindow) (model.Page[model.Transaction], error) {
	var raw model.Page[model.Transaction]
	endpoint := "devices/" + url.PathEscape(deviceID) + "/tokens/transactions"
	if err := c.get(ctx, endpoint, pageParams(page, pageSize, window), &raw); err != nil {
		return model.Page[model.Transaction]{}, fmt.Errorf("transactions %s page %d: %w", deviceID, page, err)
	}
	c.metrics.Page("transactions")
	if raw.Data == nil {
		raw.Data = []model.Transaction{}
	}
	return raw, nil
}

// FetchRewardsPage returns one page of the reward timeline.
func (c *Client) FetchRewardsPage(ctx context.Context, deviceID string, page, pageSize int, window model.DateWindow) (model.Page[model.RewardEntry], error) {
	var raw struct {
		Data []struct {
			Date        string          `json:"date"`
			RewardScore null.Int        `json:"reward_score"`
			TotalReward decimal.Decimal `json:"total_reward"`
		} `json:"data"`
		HasNextPage bool `json:"hasNextPage"`
	}
	endpoint := "devices/" + url.PathEscape(deviceID) + "/rewards/timeline"
	if err := c.get(ctx, endpoint, pageParams(page, pageSize, window), &raw); err != nil {
		return model.Page[model.RewardEntry]{}, fmt.Errorf("reward timeline %s page %d: %w", deviceID, page, err)
	}
	c.metrics.Page("timeline")

	out := model.Page[model.RewardEntry]{
		Data:        make([]model.RewardEntry, 0, len(raw.Data)),
		HasNextPage: raw.HasNextPage,
	}
	for _, r := range raw.Data {
		date, err := util.ParseDate(r.Date)
		if err != nil {
			return model.Page[model.RewardEntry]{}, fmt.Errorf("reward timeline %s page %d: %w", deviceID, page,
				&model.UpstreamError{Status: http.StatusOK, Message: fmt.Sprintf("malformed date %q", r.Date)})
		}
		out.Data = append(out.Data, model.RewardEntry{
			Date:        date,
			RewardScore: r.RewardScore,
			TotalReward: r.TotalReward,
		})
	}
	return out, nil
}

func pageParams(page, pageSize int, w model.DateWindow) url.Values {
	params := windowParams(w)
	params.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		params.Set("pageSize", strconv.Itoa(pageSize))
	}
	return params
}
