package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarFeed/internal/domain/models"
	domsvc "BarFeed/internal/domain/service"
	"BarFeed/internal/repository"
	"BarFeed/internal/service/ratelimit"
	"BarFeed/internal/usecase"
)

var now = time.Date(2024, 10, 10, 5, 30, 0, 0, time.UTC) // 11:00 IST

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEcho(t *testing.T, bars int, rl *ratelimit.Limiter) *echo.Echo {
	t.Helper()
	store := repository.NewMemoryBarStore()
	runs := repository.NewMemoryRunStore()
	if bars > 0 {
		batch := make([]models.Bar, 0, bars)
		for i := bars; i >= 1; i-- {
			batch = append(batch, models.FlatBar(now.Add(-time.Duration(i)*time.Minute), 100+float64(i)))
		}
		_, err := store.InsertIgnoringConflicts(context.Background(), batch)
		require.NoError(t, err)
	}

	session := domsvc.NewSession(time.FixedZone("IST", 5*3600+30*60))
	status := usecase.NewStatusUseCase("X", store, runs, session,
		usecase.WithStatusClock(func() time.Time { return now }))
	candles := usecase.NewCandlesUseCase("X", store)

	h := NewPipelineHandler(nil, status, candles, Meta{Name: "barfeed", Version: "test", Symbol: "X"}, rl)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthEndpoint(t *testing.T) {
	rec := get(newTestEcho(t, 0, nil), "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetaEndpoint(t *testing.T) {
	env := decode(t, get(newTestEcho(t, 0, nil), "/api/meta"))
	assert.Equal(t, http.StatusOK, env.Status)

	var meta Meta
	require.NoError(t, json.Unmarshal(env.Data, &meta))
	assert.Equal(t, "barfeed", meta.Name)
	assert.Equal(t, "test", meta.Version)
}

func TestStatusEndpoint(t *testing.T) {
	env := decode(t, get(newTestEcho(t, 50, nil), "/api/pipeline/status"))
	require.Equal(t, http.StatusOK, env.Status)

	var st usecase.PipelineStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, models.StatusOK, st.Health.Status)
	assert.Equal(t, 50, st.BarsInLast60m)
	assert.Nil(t, st.LastRun)
	require.NotNil(t, st.LastBarTime)
	assert.Equal(t, now.Add(-time.Minute), *st.LastBarTime)
}

func TestOhlc1mEndpoint(t *testing.T) {
	e := newTestEcho(t, 150, nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCount  int
	}{
		{"default limit", "/api/ohlc1m", http.StatusOK, 100},
		{"explicit limit", "/api/ohlc1m?limit=5", http.StatusOK, 5},
		{"too large", "/api/ohlc1m?limit=1001", http.StatusBadRequest, 0},
		{"negative", "/api/ohlc1m?limit=-1", http.StatusBadRequest, 0},
		{"not a number", "/api/ohlc1m?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := decode(t, get(e, tt.target))
			require.Equal(t, tt.wantStatus, env.Status)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var res usecase.GetCandlesResult
			require.NoError(t, json.Unmarshal(env.Data, &res))
			assert.Equal(t, tt.wantCount, res.Count)
			assert.Equal(t, now.Add(-time.Minute), res.Candles[0].Timestamp)
		})
	}
}

func TestLatestQuoteEndpoint(t *testing.T) {
	env := decode(t, get(newTestEcho(t, 0, nil), "/api/quote/latest"))
	var q usecase.Quote
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, usecase.QuoteNoData, q.Status)

	env = decode(t, get(newTestEcho(t, 3, nil), "/api/quote/latest"))
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, usecase.QuoteOK, q.Status)
	require.NotNil(t, q.LastPrice)
	assert.Equal(t, 101.0, *q.LastPrice)
}

func TestRateLimitedEndpoint(t *testing.T) {
	e := newTestEcho(t, 3, ratelimit.New(0.001, 1))

	assert.Equal(t, http.StatusOK, decode(t, get(e, "/api/quote/latest")).Status)
	assert.Equal(t, http.StatusTooManyRequests, decode(t, get(e, "/api/quote/latest")).Status)
}

type downStore struct{ *repository.MemoryBarStore }

func (downStore) Recent(context.Context, int) ([]models.Bar, error) {
	return nil, errors.New("connection refused")
}

func TestOhlc1mEndpoint_StoreDown(t *testing.T) {
	store := downStore{repository.NewMemoryBarStore()}
	candles := usecase.NewCandlesUseCase("X", store)
	status := usecase.NewStatusUseCase("X", store, repository.NewMemoryRunStore(),
		domsvc.NewSession(time.UTC))
	e := echo.New()
	NewPipelineHandler(nil, status, candles, Meta{}, nil).RegisterRoutes(e)

	rec := get(e, "/api/ohlc1m")
	assert.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
	assert.NotContains(t, string(env.Data), "connection refused")
	assert.Contains(t, string(env.Data), "ERR_UNAVAILABLE")
}
