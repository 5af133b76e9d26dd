// Package hyperliquid fetches asset snapshots and candles from the Hyperliquid
// info API.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/spikewatch/internal/logger"
	"github.com/rewired-gh/spikewatch/internal/models"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrNoData is returned when the API answers with an empty or unusable payload.
var ErrNoData = errors.New("no data returned")

// ClientConfig tunes transport behaviour.
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	RateLimitRPS        float64
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Excluded            []string
}

// Client provides access to the Hyperliquid info endpoint.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker
	maxRetries     int
	retryDelayBase time.Duration
	excluded       map[string]bool
	now            func() time.Time
}

// NewClient creates a new Hyperliquid client.
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}

	excluded := make(map[string]bool, len(cfg.Excluded))
	for _, name := range cfg.Excluded {
		excluded[strings.ToUpper(name)] = true
	}

	settings := gobreaker.Settings{
		Name:     "hyperliquid",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// An empty payload for one coin says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.IdleConnTimeout,
			},
		},
		limiter:        rate.NewLimiter(limit, 1),
		breaker:        gobreaker.NewCircuitBreaker(settings),
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		excluded:       excluded,
		now:            time.Now,
	}
}

// assetMeta is one entry of meta.universe.
type assetMeta struct {
	Name          string `json:"name"`
	SzDecimals    int    `json:"szDecimals"`
	MaxLeverage   int    `json:"maxLeverage"`
	OnlyIsolated  bool   `json:"onlyIsolated"`
	IsDelisted    bool   `json:"isDelisted"`
	MarginTableID int    `json:"marginTableId"`
}

type meta struct {
	Universe []assetMeta `json:"universe"`
}

// assetCtx holds the per-asset market context; numbers arrive as strings.
type assetCtx struct {
	DayNtlVlm flexFloat `json:"dayNtlVlm"`
	MarkPx    flexFloat `json:"markPx"`
}

// rawCandle carries both "t" (open time) and "T" (close time). encoding/json
// matches keys case-insensitively, so "T" needs its own field.
type rawCandle struct {
	T         *int64     `json:"t"`
	CloseTime *int64     `json:"T"`
	O         *flexFloat `json:"o"`
	H         *flexFloat `json:"h"`
	L         *flexFloat `json:"l"`
	C         *flexFloat `json:"c"`
	V         *flexFloat `json:"v"`
}

// flexFloat accepts both "1.5" and 1.5.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// AssetInfo describes an asset's listing parameters.
type AssetInfo struct {
	Name          string
	MaxLeverage   int
	OnlyIsolated  bool
	IsDelisted    bool
	MarginTableID int
}

// Snapshot returns every listed asset with its 24h notional volume and mark
// price, in universe order, minus the excluded names. Entries with malformed
// or non-finite numbers are skipped.
func (c *Client) Snapshot(ctx context.Context) ([]models.Asset, error) {
	body, err := c.post(ctx, map[string]any{"type": "metaAndAssetCtxs"})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset contexts: %w", err)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("failed to decode asset contexts: %w", err)
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("unexpected asset contexts shape: %d parts: %w", len(parts), ErrNoData)
	}

	var m meta
	if err := json.Unmarshal(parts[0], &m); err != nil {
		return nil, fmt.Errorf("failed to decode meta: %w", err)
	}
	var ctxs []json.RawMessage
	if err := json.Unmarshal(parts[1], &ctxs); err != nil {
		return nil, fmt.Errorf("failed to decode contexts: %w", err)
	}

	assets := make([]models.Asset, 0, len(m.Universe))
	for i, info := range m.Universe {
		if i >= len(ctxs) {
			break
		}
		if info.Name == "" || c.excluded[strings.ToUpper(info.Name)] {
			continue
		}
		var ac assetCtx
		if err := json.Unmarshal(ctxs[i], &ac); err != nil {
			logger.Debug("Skipping %s: %v", info.Name, err)
			continue
		}
		assets = append(assets, models.Asset{
			Name:      info.Name,
			Volume24h: float64(ac.DayNtlVlm),
			Price:     float64(ac.MarkPx),
		})
	}
	if len(assets) == 0 {
		return nil, ErrNoData
	}
	return assets, nil
}

// Candles returns up to count recent hourly candles for asset, oldest first.
// Malformed entries are skipped.
func (c *Client) Candles(ctx context.Context, asset string, count int) ([]models.Candle, error) {
	end := c.now().UnixMilli()
	start := end - int64(count)*time.Hour.Milliseconds()

	body, err := c.post(ctx, map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      asset,
			"interval":  "1h",
			"startTime": start,
			"endTime":   end,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", asset, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode candles for %s: %w", asset, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, r := range raw {
		var rc rawCandle
		if err := json.Unmarshal(r, &rc); err != nil {
			continue
		}
		if rc.T == nil || rc.O == nil || rc.H == nil || rc.L == nil || rc.C == nil || rc.V == nil {
			continue
		}
		candles = append(candles, models.Candle{
			Timestamp: *rc.T,
			Open:      float64(*rc.O),
			High:      float64(*rc.H),
			Low:       float64(*rc.L),
			Close:     float64(*rc.C),
			Volume:    float64(*rc.V),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("candles for %s: %w", asset, ErrNoData)
	}
	models.SortCandles(candles)
	return candles, nil
}

// Meta returns listing parameters for the whole universe, including excluded
// names.
func (c *Client) Meta(ctx context.Context) ([]AssetInfo, error) {
	body, err := c.post(ctx, map[string]any{"type": "meta"})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meta: %w", err)
	}
	var m meta
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("failed to decode meta: %w", err)
	}
	out := make([]AssetInfo, 0, len(m.Universe))
	for _, u := range m.Universe {
		out = append(out, AssetInfo{
			Name:          u.Name,
			MaxLeverage:   u.MaxLeverage,
			OnlyIsolated:  u.OnlyIsolated,
			IsDelisted:    u.IsDelisted,
			MarginTableID: u.MarginTableID,
		})
	}
	return out, nil
}

// post sends a rate-limited request through the circuit breaker.
func (c *Client) post(ctx context.Context, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, data)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, payload []byte) ([]byte, error) {
	var lastErr error

	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			return nil, ErrNoData
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
