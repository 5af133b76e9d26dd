package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metaAndCtxs = `[
  {"universe": [
    {"name": "BTC", "szDecimals": 5, "maxLeverage": 50},
    {"name": "ETH", "szDecimals": 4, "maxLeverage": 50},
    {"name": "SOL", "szDecimals": 2, "maxLeverage": 20},
    {"name": "ARB", "szDecimals": 1, "maxLeverage": 10}
  ]},
  [
    {"dayNtlVlm": "1000000000.0", "markPx": "60000.0"},
    {"dayNtlVlm": "500000000.0", "markPx": "3000.0"},
    {"dayNtlVlm": "1250000.5", "markPx": "43.2"},
    {"dayNtlVlm": 9000, "markPx": 0.75}
  ]
]`

type capturedRequest struct {
	Type string `json:"type"`
	Req  struct {
		Coin      string `json:"coin"`
		Interval  string `json:"interval"`
		StartTime int64  `json:"startTime"`
		EndTime   int64  `json:"endTime"`
	} `json:"req"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, ClientConfig{
		MaxRetries:     2,
		RetryDelayBase: time.Millisecond,
		Excluded:       []string{"BTC", "eth"},
	})
}

func decodeRequest(t *testing.T, r *http.Request) capturedRequest {
	t.Helper()
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/info", r.URL.Path)
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req capturedRequest
	require.NoError(t, json.Unmarshal(body, &req))
	return req
}

func TestSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "metaAndAssetCtxs", req.Type)
		_, _ = w.Write([]byte(metaAndCtxs))
	})

	assets, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "SOL", assets[0].Name)
	assert.InDelta(t, 1250000.5, assets[0].Volume24h, 1e-9)
	assert.InDelta(t, 43.2, assets[0].Price, 1e-9)
	assert.Equal(t, "ARB", assets[1].Name)
	assert.InDelta(t, 9000.0, assets[1].Volume24h, 1e-9)
}

func TestSnapshot_MalformedShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"universe": []}]`))
	})

	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestSnapshot_ContextsShorterThanUniverse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"universe": [{"name": "SOL"}, {"name": "ARB"}]}, [{"dayNtlVlm": "10", "markPx": "1"}]]`))
	})

	assets, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "SOL", assets[0].Name)
}

func TestCandles(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "candleSnapshot", req.Type)
		assert.Equal(t, "SOL", req.Req.Coin)
		assert.Equal(t, "1h", req.Req.Interval)
		assert.Equal(t, now.UnixMilli(), req.Req.EndTime)
		assert.Equal(t, now.Add(-26*time.Hour).UnixMilli(), req.Req.StartTime)

		_, _ = w.Write([]byte(`[
		  {"t": 7200000, "T": 10799999, "s": "SOL", "i": "1h", "o": "42.0", "h": "43.5", "l": "41.9", "c": "43.2", "v": "1200.5", "n": 88},
		  {"t": 3600000, "T": 7199999, "s": "SOL", "i": "1h", "o": "41.0", "h": "42.1", "l": "40.8", "c": "42.0", "v": "900", "n": 60},
		  {"t": 10800000, "o": "43.2", "h": "43.3", "l": "43.0", "v": "1"},
		  {"t": 14400000, "o": "x", "h": "1", "l": "1", "c": "1", "v": "1"}
		]`))
	})
	c.now = func() time.Time { return now }

	candles, err := c.Candles(context.Background(), "SOL", 26)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(3600000), candles[0].Timestamp)
	assert.Equal(t, 42.0, candles[0].Close)
	assert.Equal(t, int64(7200000), candles[1].Timestamp)
	assert.Equal(t, 43.2, candles[1].Close)
	assert.Equal(t, 43.5, candles[1].High)
	assert.Equal(t, 41.9, candles[1].Low)
	assert.Equal(t, 1200.5, candles[1].Volume)
}

func TestCandles_EmptyIsNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.Candles(context.Background(), "SOL", 26)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestCandles_NullBodyIsNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	_, err := c.Candles(context.Background(), "SOL", 26)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(metaAndCtxs))
	})

	assets, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, assets, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`bad coin`))
	})

	_, err := c.Candles(context.Background(), "NOPE", 26)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, time.Second, ClientConfig{})

	for i := 0; i < 5; i++ {
		_, err := c.Snapshot(context.Background())
		require.Error(t, err)
	}
	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestMeta(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "meta", req.Type)
		_, _ = w.Write([]byte(`{"universe": [
		  {"name": "BTC", "maxLeverage": 50, "marginTableId": 56},
		  {"name": "OLD", "maxLeverage": 10, "isDelisted": true, "marginTableId": 51},
		  {"name": "SOL", "maxLeverage": 20, "onlyIsolated": false, "marginTableId": 54}
		]}`))
	})

	infos, err := c.Meta(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "BTC", infos[0].Name)
	assert.True(t, infos[1].IsDelisted)
	assert.Equal(t, 20, infos[2].MaxLeverage)
	assert.Equal(t, 54, infos[2].MarginTableID)
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(metaAndCtxs))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, time.Second, ClientConfig{RateLimitRPS: 0.001})

	_, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Snapshot(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestBreakerIgnoresEmptyPayloads(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`null`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, time.Second, ClientConfig{})

	for i := 0; i < 7; i++ {
		_, err := c.Candles(context.Background(), "DEAD", 26)
		require.ErrorIs(t, err, ErrNoData)
	}
	assert.Equal(t, int32(7), atomic.LoadInt32(&calls))
}

func TestSnapshot_SkipsNonFiniteNumbers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"universe": [{"name": "SOL"}, {"name": "ARB"}, {"name": "WIF"}]},
		  [{"dayNtlVlm": "NaN", "markPx": "43.2"}, {"dayNtlVlm": "9000", "markPx": "Infinity"}, {"dayNtlVlm": "80000", "markPx": "2.1"}]]`))
	})

	assets, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "WIF", assets[0].Name)
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{`"1.5"`, 1.5, false},
		{`2.25`, 2.25, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"NaN"`, 0, true},
		{`"Inf"`, 0, true},
		{`"-Infinity"`, 0, true},
		{`"abc"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f flexFloat
			err := json.Unmarshal([]byte(tt.in), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, float64(f))
		})
	}
}
