// Package station implements the HTTP client for the weather-station network
// API. All methods are context-aware, share one rate limiter and one circuit
// breaker, and retry on transient errors (transport, 429, 5xx).
package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/derickschaefer/wxstation/internal/metrics"
	"github.com/derickschaefer/wxstation/internal/model"
)

const (
	DefaultBaseURL = "https://api.weatherxm.com/api/v1/"
	maxAttempts    = 4
	userAgent      = "wxstation-cli/1.0"
)

// Options configures a Client. Zero values take sensible defaults.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Rate is the sustained request rate per second.
	Rate float64
	// Backoff is the first retry delay; later retries double it.
	Backoff time.Duration
	// MaxFailures consecutive transient failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	HTTPClient  *http.Client
}

// Client is the station API HTTP client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	backoff    time.Duration
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	ratePerSec := opts.Rate
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	log := opts.Logger.With().Str("component", "station").Logger()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "station-api",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state change")
		},
	})

	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		breaker:    cb,
		backoff:    backoff,
		log:        log,
		metrics:    opts.Metrics,
	}
}

// ─── Forecast / History ───────────────────────────────────────────────────────

// rawDay is one day of hourly samples as the API returns it.
type rawDay struct {
	Date   string         `json:"date"`
	TZ     string         `json:"tz"`
	Hourly []model.Sample `json:"hourly"`
}

// FetchForecast returns hourly forecast samples for window.
func (c *Client) FetchForecast(ctx context.Context, deviceID string, window model.DateWindow) ([]model.Sample, error) {
	params := windowParams(window)
	var days []rawDay
	if err := c.get(ctx, "me/devices/"+url.PathEscape(deviceID)+"/forecast", params, &days); err != nil {
		return nil, fmt.Errorf("forecast %s: %w", deviceID, err)
	}
	return flatten(days), nil
}

// FetchHistory returns observed samples for window at the given granularity.
func (c *Client) FetchHistory(ctx context.Context, deviceID string, window model.DateWindow, granularity string) ([]model.Sample, error) {
	params := windowParams(window)
	if granularity != "" {
		params.Set("granularity", granularity)
	}
	var days []rawDay
	if err := c.get(ctx, "me/devices/"+url.PathEscape(deviceID)+"/history", params, &days); err != nil {
		return nil, fmt.Errorf("history %s: %w", deviceID, err)
	}
	return flatten(days), nil
}

// flatten concatenates days and moves every timestamp into its day's zone.
func flatten(days []rawDay) []model.Sample {
	var out []model.Sample
	for _, d := range days {
		var loc *time.Location
		if d.TZ != "" {
			if l, err := time.LoadLocation(d.TZ); err == nil {
				loc = l
			}
		}
		for _, s := range d.Hourly {
			if s.Timestamp.IsZero() {
				continue
			}
			if loc != nil {
				s.Timestamp = s.Timestamp.In(loc)
			}
			out = append(out, s)
		}
	}
	return model.SortSamples(out)
}

func windowParams(w model.DateWindow) url.Values {
	params := url.Values{}
	params.Set("fromDate", w.From.Format("2006-01-02"))
	params.Set("toDate", w.To.Format("2006-01-02"))
	return params
}

// ─── HTTP ─────────────────────────────────────────────────────────────────────

// get performs a GET against endpoint with retries and decodes JSON into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	name := endpointName(endpoint)
	err := c.doGet(ctx, endpoint, params, out)
	c.metrics.NetworkFetch(name, err)
	return err
}

func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	c.log.Debug().Str("url", c.redact(reqURL)).Msg("station request")

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.backoff
			c.log.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying after backoff")
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		status, body, err := c.attempt(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return fmt.Errorf("%w: %v", model.ErrNetworkUnavailable, err)
			}
			lastErr = err
			continue
		}

		if status != http.StatusOK {
			return upstreamError(status, body)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

// attempt sends one request through the breaker. Transport failures, 429 and
// 5xx are returned as errors and count against the breaker; any other status
// is returned with its body for the caller to interpret.
func (c *Client) attempt(ctx context.Context, reqURL string) (int, []byte, error) {
	type reply struct {
		status int
		body   []byte
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, classify(err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %v", model.ErrNetworkUnavailable, err)
		}

		c.log.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("station response")

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, upstreamError(resp.StatusCode, body)
		}
		return reply{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	r := result.(reply)
	return r.status, r.body, nil
}

// classify maps a transport error onto the network error kinds.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", model.ErrNetworkTimeout, err)
	}
	return fmt.Errorf("%w: %v", model.ErrNetworkUnavailable, err)
}

func upstreamError(status int, body []byte) error {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &model.UpstreamError{Status: status, Message: msg}
}

func (c *Client) redact(s string) string {
	if c.apiKey == "" {
		return s
	}
	return strings.ReplaceAll(s, c.apiKey, "REDACTED")
}

// endpointName reduces a path to its last segment for metric labels.
func endpointName(endpoint string) string {
	if i := strings.LastIndex(endpoint, "/"); i >= 0 {
		return endpoint[i+1:]
	}
	return endpoint
}
