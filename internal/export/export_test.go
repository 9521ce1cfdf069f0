package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairlab/internal/spread"
	"pairlab/internal/types"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func readCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	rows, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCandidatesCSV(t *testing.T) {
	hurst := 0.31
	var buf bytes.Buffer
	err := WriteCandidatesCSV(&buf, []types.PairCandidate{
		{SessionID: "s1", AssetA: "ETHUSDT", AssetB: "BTCUSDT", Score: 81.5, Correlation: 0.93, ADFPValue: 0.012, ADFLags: 2, Beta: 1.25, Hurst: &hurst, LookbackDays: 180, Observations: 179, ScreeningDate: day0},
		{SessionID: "s1", AssetA: "SOLUSDT", AssetB: "BTCUSDT", Score: 60},
	})
	require.NoError(t, err)
	rows := readCSV(t, &buf)
	require.Len(t, rows, 3)
	assert.Equal(t, candidateHeader, rows[0])
	col := func(name string) int {
		for i, h := range candidateHeader {
			if h == name {
				return i
			}
		}
		t.Fatalf("no column %s", name)
		return -1
	}
	assert.Equal(t, "ETHUSDT", rows[1][col("asset_a")])
	assert.Equal(t, "81.5", rows[1][col("score")])
	assert.Equal(t, "0.31", rows[1][col("hurst")])
	assert.Equal(t, "", rows[1][col("half_life")])
	assert.Equal(t, "2024-03-01T00:00:00Z", rows[1][col("screening_date")])
	assert.Equal(t, "", rows[2][col("screening_date")])
}

func TestWriteTradesCSV(t *testing.T) {
	exit := day0.AddDate(0, 0, 5)
	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, []types.Trade{
		{Side: types.ShortSpread, EntryDate: day0, ExitDate: &exit, ExitReason: types.ExitTakeProfit, PnL: 42.5, HoldingBars: 5},
		{Side: types.LongSpread, EntryDate: exit},
	}))
	rows := readCSV(t, &buf)
	require.Len(t, rows, 3)
	require.Len(t, rows[1], len(tradeHeader))
	assert.Equal(t, "short_spread", rows[1][0])
	assert.Equal(t, "2024-03-06T00:00:00Z", rows[1][2])
	assert.Equal(t, "take_profit", rows[1][13])
	assert.Equal(t, "42.5", rows[1][14])
	assert.Equal(t, "5", rows[1][len(tradeHeader)-1])
	assert.Equal(t, "", rows[2][2], "open trade has no exit date")
}

func TestWriteEquityCSVJoinsZScores(t *testing.T) {
	res := types.BacktestResult{
		EquityCurve: []types.EquityPoint{{Time: day0, Equity: 10000}, {Time: day0.AddDate(0, 0, 1), Equity: 10100}},
		ZScores:     []types.ZScorePoint{{Time: day0.AddDate(0, 0, 1), ZScore: -1.5}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteEquityCSV(&buf, res))
	rows := readCSV(t, &buf)
	assert.Equal(t, [][]string{
		{"time", "equity", "zscore"},
		{"2024-03-01T00:00:00Z", "10000", ""},
		{"2024-03-02T00:00:00Z", "10100", "-1.5"},
	}, rows)
}

func sampleChart() spread.ChartData {
	data := spread.ChartData{SymbolA: "ETHUSDT", SymbolB: "BTCUSDT", Beta: 1.1}
	for i := 0; i < 10; i++ {
		z := math.Sin(float64(i)) * 3
		data.Points = append(data.Points, spread.ChartPoint{Time: day0.AddDate(0, 0, i), Spread: z / 10, Z: z, NormA: 100 + float64(i), NormB: 100 - float64(i)})
	}
	data.Points[4].Z = math.NaN()
	data.Markers = []spread.Marker{{Time: day0.AddDate(0, 0, 1), Kind: spread.MarkerEnterUpper, Z: 2.52}}
	return data
}

func TestWriteSeriesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSeriesCSV(&buf, sampleChart()))
	rows := readCSV(t, &buf)
	require.Len(t, rows, 11)
	assert.Equal(t, []string{"time", "spread", "zscore", "norm_a", "norm_b"}, rows[0])
	assert.Equal(t, "100", rows[1][3])
	assert.Equal(t, "NaN", rows[5][2])
}

func TestSpreadChartHTML(t *testing.T) {
	html, err := SpreadChartHTML(sampleChart())
	require.NoError(t, err)
	page := string(html)
	assert.Contains(t, page, "ETHUSDT / BTCUSDT")
	assert.Contains(t, page, "+2σ")
	assert.Contains(t, page, "enter_upper")
	assert.Contains(t, page, "2024-03-10")

	_, err = SpreadChartHTML(spread.ChartData{SymbolA: "A", SymbolB: "B"})
	assert.Error(t, err)
}

func TestEquityChartHTML(t *testing.T) {
	res := types.BacktestResult{
		RunID:       "run-1",
		Config:      types.BacktestConfig{AssetA: "ETHUSDT", AssetB: "BTCUSDT", EntryThreshold: 1.5},
		EquityCurve: []types.EquityPoint{{Time: day0, Equity: 10000}, {Time: day0.AddDate(0, 0, 1), Equity: 10250}},
		ZScores:     []types.ZScorePoint{{Time: day0, ZScore: 0.3}, {Time: day0.AddDate(0, 0, 1), ZScore: 1.7}},
		Metrics:     types.Metrics{TotalReturnPct: 2.5, TotalTrades: 1},
	}
	html, err := EquityChartHTML(res)
	require.NoError(t, err)
	page := string(html)
	assert.Contains(t, page, "收益 2.50%")
	assert.Contains(t, page, "entry+")
	assert.True(t, strings.Count(page, "10250") >= 1)

	_, err = EquityChartHTML(types.BacktestResult{RunID: "empty"})
	assert.Error(t, err)
}

func TestCachedPNG(t *testing.T) {
	dir := t.TempDir()
	renders := 0
	d := &Dir{Path: dir, render: func(_ context.Context, html []byte, _, _ int) ([]byte, error) {
		renders++
		return append([]byte("png:"), html...), nil
	}}
	build := func() ([]byte, error) { return []byte("<html/>"), nil }

	first, err := d.CachedPNG(context.Background(), "run/1 equity", build)
	require.NoError(t, err)
	assert.Equal(t, "png:<html/>", string(first))
	_, err = os.Stat(filepath.Join(dir, "run_1_equity.png"))
	require.NoError(t, err)

	second, err := d.CachedPNG(context.Background(), "run/1 equity", build)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, renders)

	_, err = d.CachedPNG(context.Background(), "other", func() ([]byte, error) { return nil, errors.New("boom") })
	assert.EqualError(t, err, "boom")
}
