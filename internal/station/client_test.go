package station_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/station"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func mockServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testClient(srv *httptest.Server, tweak ...func(*station.Options)) *station.Client {
	opts := station.Options{
		APIKey:  "secret-key",
		BaseURL: srv.URL,
		Rate:    1000,
		Backoff: time.Millisecond,
		Logger:  zerolog.Nop(),
	}
	for _, f := range tweak {
		f(&opts)
	}
	return station.NewClient(opts)
}

func window(from, to int) model.DateWindow {
	return model.NewDateWindow(
		time.Date(2024, 6, from, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, to, 0, 0, 0, 0, time.UTC),
	)
}

var ctx = context.Background()

// ─── Forecast / History ───────────────────────────────────────────────────────

const forecastBody = `[
  {"date":"2024-06-02","tz":"UTC","hourly":[
    {"timestamp":"2024-06-02T01:00:00Z","temperature":17.5,"humidity":80,"wind_speed":3.2,"wind_direction":270,"icon":"cloudy"},
    {"timestamp":"2024-06-02T00:00:00Z","temperature":null,"humidity":81}
  ]},
  {"date":"2024-06-01","tz":"","hourly":[
    {"timestamp":"2024-06-01T23:00:00Z","temperature":18.1}
  ]}
]`

func TestFetchForecast(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/devices/dev1/forecast" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("fromDate"); got != "2024-06-01" {
			t.Errorf("fromDate = %q", got)
		}
		if got := r.URL.Query().Get("toDate"); got != "2024-06-02" {
			t.Errorf("toDate = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, forecastBody)
	})

	samples, err := testClient(srv).FetchForecast(ctx, "dev1", window(1, 2))
	if err != nil {
		t.Fatalf("FetchForecast: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if !samples[i-1].Timestamp.Before(samples[i].Timestamp) {
			t.Fatalf("samples not sorted at %d", i)
		}
	}
	last := samples[2]
	if !last.Temperature.Valid || last.Temperature.Float64 != 17.5 {
		t.Errorf("temperature: %+v", last.Temperature)
	}
	if !last.WindDirection.Valid || last.WindDirection.Int64 != 270 {
		t.Errorf("wind direction: %+v", last.WindDirection)
	}
	if last.Icon.String != "cloudy" {
		t.Errorf("icon: %+v", last.Icon)
	}
	if samples[1].Temperature.Valid {
		t.Error("null temperature should stay invalid")
	}
	if samples[1].WindSpeed.Valid {
		t.Error("missing wind speed should be invalid")
	}
}

func TestFetchHistorySendsGranularity(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/devices/dev1/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("granularity"); got != "hourly" {
			t.Errorf("granularity = %q", got)
		}
		fmt.Fprint(w, `[]`)
	})
	samples, err := testClient(srv).FetchHistory(ctx, "dev1", window(1, 1), "hourly")
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %d", len(samples))
	}
}

// ─── Errors and retries ───────────────────────────────────────────────────────

func TestRetryOnServerErrorThenSuccess(t *testing.T) {
	var calls int32
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[]`)
	})
	if _, err := testClient(srv).FetchForecast(ctx, "dev1", window(1, 1)); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetriesExhaustedReturnsUpstreamError(t *testing.T) {
	var calls int32
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"slow down"}`)
	})
	_, err := testClient(srv).FetchForecast(ctx, "dev1", window(1, 1))
	var up *model.UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if up.Status != http.StatusTooManyRequests || up.Message != "slow down" {
		t.Errorf("unexpected upstream error %+v", up)
	}
	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"device not found"}`)
	})
	_, err := testClient(srv).FetchHistory(ctx, "nope", window(1, 1), "hourly")
	var up *model.UpstreamError
	if !errors.As(err, &up) || up.Status != http.StatusNotFound {
		t.Fatalf("expected 404 UpstreamError, got %v", err)
	}
	if !strings.Contains(err.Error(), "device not found") {
		t.Errorf("message should be carried: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if model.IsTransient(err) {
		t.Error("a 404 is not transient")
	}
}

func TestTimeoutMapsToNetworkTimeout(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c := testClient(srv, func(o *station.Options) { o.Timeout = 20 * time.Millisecond })
	_, err := c.FetchForecast(ctx, "dev1", window(1, 1))
	if !errors.Is(err, model.ErrNetworkTimeout) {
		t.Errorf("expected ErrNetworkTimeout, got %v", err)
	}
}

func TestConnectionRefusedMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := station.NewClient(station.Options{BaseURL: url, Rate: 1000, Backoff: time.Millisecond, Logger: zerolog.Nop()})
	_, err := c.FetchForecast(ctx, "dev1", window(1, 1))
	if !errors.Is(err, model.ErrNetworkUnavailable) {
		t.Errorf("expected ErrNetworkUnavailable, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := testClient(srv, func(o *station.Options) {
		o.MaxFailures = 2
		o.OpenTimeout = time.Minute
	})
	_, err := c.FetchForecast(ctx, "dev1", window(1, 1))
	if !errors.Is(err, model.ErrNetworkUnavailable) {
		t.Fatalf("expected open breaker to surface ErrNetworkUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected the breaker to stop after 2 calls, got %d", calls)
	}
	if _, err := c.FetchForecast(ctx, "dev1", window(1, 1)); !errors.Is(err, model.ErrNetworkUnavailable) {
		t.Errorf("breaker should still be open, got %v", err)
	}
	if calls != 2 {
		t.Errorf("no request should reach the server while open, got %d", calls)
	}
}

func TestCancelledContext(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `[]`) })
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := testClient(srv).FetchForecast(cctx, "dev1", window(1, 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDebugLogRedactsKey(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `[]`) })
	var buf bytes.Buffer
	c := testClient(srv, func(o *station.Options) {
		o.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
		o.BaseURL = srv.URL + "/secret-key/"
	})
	_, _ = c.FetchForecast(ctx, "dev1", window(1, 1))
	if !strings.Contains(buf.String(), "station request") {
		t.Fatalf("expected a debug line, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "secret-key") {
		t.Errorf("API key leaked into logs: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "REDACTED") {
		t.Errorf("expected redaction marker: %s", buf.String())
	}
}

// ─── Paginated endpoints ──────────────────────────────────────────────────────

func TestFetchTransactionsPage(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices/dev1/tokens/transactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("pageSize") != "50" {
			t.Errorf("unexpected paging params %v", q)
		}
		fmt.Fprint(w, `{"data":[
			{"timestamp":"2024-06-01T00:00:00Z","tx_hash":"0xabc","reward_score":97,"daily_reward":"1.234567","actual_reward":1.2,"base_reward":"1","boost_reward":"0.2","lost_rewards":"0.034567"}
		],"hasNextPage":true}`)
	})
	p, err := testClient(srv).FetchTransactionsPage(ctx, "dev1", 2, 50, window(1, 30))
	if err != nil {
		t.Fatalf("FetchTransactionsPage: %v", err)
	}
	if !p.HasNextPage || len(p.Data) != 1 {
		t.Fatalf("unexpected page %+v", p)
	}
	tx := p.Data[0]
	if !tx.DailyReward.Equal(decimal.RequireFromString("1.234567")) {
		t.Errorf("daily reward = %s", tx.DailyReward)
	}
	if !tx.ActualReward.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("actual reward = %s", tx.ActualReward)
	}
	if tx.RewardScore.Int64 != 97 || tx.TxHash != "0xabc" {
		t.Errorf("unexpected transaction %+v", tx)
	}
}

func TestFetchRewardsPage(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices/dev1/rewards/timeline" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[
			{"date":"2024-06-01","reward_score":90,"total_reward":"2.5"},
			{"date":"2024-06-02","reward_score":null,"total_reward":0}
		],"hasNextPage":false}`)
	})
	p, err := testClient(srv).FetchRewardsPage(ctx, "dev1", 0, 50, window(1, 2))
	if err != nil {
		t.Fatalf("FetchRewardsPage: %v", err)
	}
	if p.HasNextPage {
		t.Error("expected last page")
	}
	if len(p.Data) != 2 {
		t.Fatalf("got %d entries", len(p.Data))
	}
	if p.Data[1].RewardScore.Valid {
		t.Error("null reward score should stay invalid")
	}
	if !p.Data[0].TotalReward.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("total reward = %s", p.Data[0].TotalReward)
	}
}

func TestFetchRewardsPageMalformedDate(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"date":"2024-06-01","reward_score":90,"total_reward":"2.5"},
			{"date":"garbage","reward_score":10,"total_reward":"1"}
		],"hasNextPage":false}`)
	})
	_, err := testClient(srv).FetchRewardsPage(ctx, "dev1", 0, 50, window(1, 2))
	var upErr *model.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected an UpstreamError, got %v", err)
	}
	if !strings.Contains(err.Error(), "garbage") {
		t.Errorf("error should name the bad date: %v", err)
	}
}
