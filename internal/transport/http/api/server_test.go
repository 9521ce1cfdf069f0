package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"pairlab/internal/alerts"
	"pairlab/internal/backtest"
	"pairlab/internal/history"
	"pairlab/internal/market/markettest"
	"pairlab/internal/pairs"
	"pairlab/internal/positions"
	"pairlab/internal/screener"
	"pairlab/internal/store/gormstore"
	"pairlab/internal/store/sqlite"
	"pairlab/internal/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	results, err := sqlite.Open(filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })
	gs, err := gormstore.NewGormStore(filepath.Join(dir, "positions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })

	mkt := markettest.NewCointegrated(200)
	eng, err := screener.NewEngine(screener.EngineConfig{Universe: mkt, History: mkt, Recorder: results, Workers: 2})
	require.NoError(t, err)
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		Provider: mkt,
		Runs:     results,
		Defaults: types.BacktestConfig{
			InitialCapital:     10000,
			PositionSizePct:    50,
			TransactionCostPct: 0.001,
			EntryThreshold:     2,
			LookbackDays:       200,
		},
	})
	require.NoError(t, err)
	pairSvc, err := pairs.NewService(mkt, results)
	require.NoError(t, err)
	posSvc, err := positions.NewService(gs, mkt)
	require.NoError(t, err)
	alertSvc, err := alerts.NewService(alerts.Config{Store: gs, Candidates: results, Provider: mkt, LookbackDays: 200})
	require.NoError(t, err)
	analyzer, err := history.NewAnalyzer(history.Config{Store: results})
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Screener:  eng,
		Results:   results,
		Simulator: sim,
		Pairs:     pairSvc,
		Positions: posSvc,
		Alerts:    alertSvc,
		History:   analyzer,
		ScreeningDefaults: types.ScreeningParams{
			LookbackDays:   200,
			MinCorrelation: 0.5,
			MaxADFPValue:   0.05,
			IncludeHurst:   true,
			MinVolumeUSD:   1e6,
		},
	})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", types.ErrInvalidConfig), http.StatusBadRequest},
		{types.ErrInvalidCapital, http.StatusBadRequest},
		{fmt.Errorf("run 1: %w", types.ErrNotFound), http.StatusNotFound},
		{types.ErrDataUnavailable, http.StatusNotFound},
		{types.ErrAlreadyRunning, http.StatusConflict},
		{types.ErrInsufficientData, http.StatusUnprocessableEntity},
		{context.Canceled, http.StatusServiceUnavailable},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestScreeningFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/screening/run", map[string]any{"lookback_days": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/screening/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := gjson.ParseBytes(rec.Body.Bytes())
	assert.Equal(t, "completed", body.Get("session.status").String())
	assert.Equal(t, int64(200), body.Get("session.params.lookback_days").Int())
	require.Equal(t, int64(1), body.Get("candidates.#").Int())
	sessionID := body.Get("session.id").String()

	rec = do(t, srv, http.MethodGet, "/api/screening/status", nil)
	assert.False(t, gjson.Get(rec.Body.String(), "running").Bool())
	assert.Equal(t, sessionID, gjson.Get(rec.Body.String(), "latest.id").String())

	rec = do(t, srv, http.MethodGet, "/api/pairs?min_score=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "count").Int())

	rec = do(t, srv, http.MethodGet, "/api/pairs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/pairs/detail?asset_a=BBBUSDT&asset_b=AAAUSDT", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "screening", gjson.Get(rec.Body.String(), "pair.beta_source").String())
	assert.Equal(t, int64(200), gjson.Get(rec.Body.String(), "pair.chart.points.#").Int())

	rec = do(t, srv, http.MethodGet, "/api/pairs/detail?asset_a=AAAUSDT&asset_b=ZZZUSDT", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/pairs/detail?asset_a=AAAUSDT", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/pairs/history?asset_a=AAAUSDT&asset_b=BBBUSDT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "trend.points.#").Int())

	// 只有一次会话，没有可对比的上一次
	rec = do(t, srv, http.MethodGet, "/api/history/compare", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/export/candidates.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), sessionID)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "session_id,asset_a,asset_b"))

	rec = do(t, srv, http.MethodGet, "/api/export/pair/chart.html?asset_a=AAAUSDT&asset_b=BBBUSDT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestBacktestFlow(t *testing.T) {
	srv := newTestServer(t)
	req := map[string]any{"asset_a": "AAAUSDT", "asset_b": "BBBUSDT"}

	rec := do(t, srv, http.MethodPost, "/api/backtest/run", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(200), gjson.Get(rec.Body.String(), "result.bars").Int())

	rec = do(t, srv, http.MethodPost, "/api/backtest/run", map[string]any{"asset_a": "AAAUSDT", "asset_b": "AAAUSDT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/backtest/runs", req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	runID := gjson.Get(rec.Body.String(), "run.id").String()
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		rec := do(t, srv, http.MethodGet, "/api/backtest/runs/"+runID, nil)
		return gjson.Get(rec.Body.String(), "run.status").String() == string(types.RunDone)
	}, 5*time.Second, 20*time.Millisecond)

	rec = do(t, srv, http.MethodGet, "/api/backtest/runs", nil)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "runs.#").Int())

	rec = do(t, srv, http.MethodGet, "/api/export/backtest/"+runID+"/trades.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "side,entry_date,exit_date"))

	rec = do(t, srv, http.MethodGet, "/api/export/backtest/"+runID+"/equity.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, strings.Split(strings.TrimSpace(rec.Body.String()), "\n"), 201)

	rec = do(t, srv, http.MethodGet, "/api/backtest/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/export/backtest/missing/trades.csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/export/backtest/"+runID+"/chart.png", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "png export disabled without export dir")

	rec = do(t, srv, http.MethodGet, "/api/backtest/presets", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSizing(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/sizing", map[string]any{
		"capital": 1000, "beta": 1, "price_a": 10, "price_b": 20, "zscore": 2.5,
		"exit_price_a": 9, "exit_price_b": 21,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := gjson.Parse(rec.Body.String())
	assert.Equal(t, "dollar_neutral", body.Get("sizing.strategy").String())
	assert.True(t, body.Get("pnl.total_pnl").Exists())

	rec = do(t, srv, http.MethodPost, "/api/sizing", map[string]any{"capital": 0, "beta": 1, "price_a": 10, "price_b": 20})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/sizing", map[string]any{"capital": 10, "beta": 1, "price_a": 10, "price_b": 20, "strategy": "martingale"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPositionRoutes(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/positions", map[string]any{
		"asset_a": "AAAUSDT", "asset_b": "BBBUSDT", "side": "short",
		"quantity_a": 1, "quantity_b": 2, "entry_price_a": 200, "entry_price_b": 100, "beta": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := gjson.Get(rec.Body.String(), "position.position_id").Int()
	path := fmt.Sprintf("/api/positions/%d", id)

	rec = do(t, srv, http.MethodPatch, path, `{"notes":"hedge"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "hedge", gjson.Get(rec.Body.String(), "position.notes").String())

	rec = do(t, srv, http.MethodGet, path+"/pnl?price_a=190&price_b=100", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 10, gjson.Get(rec.Body.String(), "pnl.total_pnl").Float(), 1e-9)

	rec = do(t, srv, http.MethodGet, path+"/pnl?price_a=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/positions?status=open", nil)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "positions.#").Int())

	rec = do(t, srv, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/positions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertRoutes(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/alerts", map[string]any{"asset_a": "AAAUSDT", "asset_b": "BBBUSDT"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/alerts", map[string]any{"asset_a": "AAAUSDT", "asset_b": "BBBUSDT", "threshold_high": -1, "threshold_low": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/alerts?pair_id=AAAUSDT/BBBUSDT&enabled=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "alerts.#").Int())

	rec = do(t, srv, http.MethodPost, "/api/alerts/check", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "report.checked").Int())
}
