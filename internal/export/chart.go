package export

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"pairlab/internal/spread"
	bt "pairlab/internal/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorAssetA        = "#3b82f6"
	colorAssetB        = "#fbbf24"
	colorZScore        = "#22d3ee"
	colorBand          = "#f87171"
	colorEquity        = "#34d399"

	ChartWidthPx  = 1400
	ChartHeightPx = 420
)

// SpreadChartHTML 生成两段式页面：归一化价格 + 带 ±2σ 参考线的 z-score。
func SpreadChartHTML(data spread.ChartData) ([]byte, error) {
	if len(data.Points) == 0 {
		return nil, fmt.Errorf("export: %s/%s 没有可绘制的数据", data.SymbolA, data.SymbolB)
	}
	xAxis := make([]string, len(data.Points))
	normA := make([]float64, len(data.Points))
	normB := make([]float64, len(data.Points))
	z := make([]float64, len(data.Points))
	for i, p := range data.Points {
		xAxis[i] = p.Time.UTC().Format("2006-01-02")
		normA[i] = p.NormA
		normB[i] = p.NormB
		z[i] = p.Z
	}

	prices := newLine(fmt.Sprintf("%s / %s", data.SymbolA, data.SymbolB), fmt.Sprintf("归一化收盘价 (beta=%.4f)", data.Beta))
	prices.SetXAxis(xAxis)
	prices.AddSeries(data.SymbolA, toLineData(normA), charts.WithLineStyleOpts(opts.LineStyle{Color: colorAssetA}))
	prices.AddSeries(data.SymbolB, toLineData(normB), charts.WithLineStyleOpts(opts.LineStyle{Color: colorAssetB}))

	zs := newLine("Spread z-score", fmt.Sprintf("%d 个穿越点", len(data.Markers)))
	zs.SetXAxis(xAxis)
	zs.AddSeries("z", toLineData(z),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorZScore}),
		charts.WithMarkLineNameYAxisItemOpts(
			opts.MarkLineNameYAxisItem{Name: "+2σ", YAxis: spread.EntryBand},
			opts.MarkLineNameYAxisItem{Name: "0", YAxis: 0},
			opts.MarkLineNameYAxisItem{Name: "-2σ", YAxis: -spread.EntryBand},
		),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol:    []string{"none", "none"},
			LineStyle: &opts.LineStyle{Color: colorBand, Type: "dashed"},
		}),
		charts.WithMarkPointNameCoordItemOpts(markerPoints(data.Markers)...),
	)
	return renderPage(prices, zs)
}

// EquityChartHTML 生成回测权益曲线与 z-score 两段式页面。
func EquityChartHTML(res bt.BacktestResult) ([]byte, error) {
	if len(res.EquityCurve) == 0 {
		return nil, fmt.Errorf("export: run %s 没有权益曲线", res.RunID)
	}
	xAxis := make([]string, len(res.EquityCurve))
	equity := make([]float64, len(res.EquityCurve))
	for i, p := range res.EquityCurve {
		xAxis[i] = p.Time.UTC().Format("2006-01-02")
		equity[i] = p.Equity
	}
	title := fmt.Sprintf("%s / %s", res.Config.AssetA, res.Config.AssetB)
	subtitle := fmt.Sprintf("收益 %.2f%% | 最大回撤 %.2f%% | 交易 %d 笔",
		res.Metrics.TotalReturnPct, res.Metrics.MaxDrawdownPct, res.Metrics.TotalTrades)
	eq := newLine(title, subtitle)
	eq.SetXAxis(xAxis)
	eq.AddSeries("equity", toLineData(equity), charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity}))

	items := []components.Charter{eq}
	if len(res.ZScores) > 0 {
		zAxis := make([]string, len(res.ZScores))
		z := make([]float64, len(res.ZScores))
		for i, p := range res.ZScores {
			zAxis[i] = p.Time.UTC().Format("2006-01-02")
			z[i] = p.ZScore
		}
		band := res.Config.EntryThreshold
		if band <= 0 {
			band = spread.EntryBand
		}
		zs := newLine("z-score", fmt.Sprintf("入场阈值 ±%.2f", band))
		zs.SetXAxis(zAxis)
		zs.AddSeries("z", toLineData(z),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorZScore}),
			charts.WithMarkLineNameYAxisItemOpts(
				opts.MarkLineNameYAxisItem{Name: "entry+", YAxis: band},
				opts.MarkLineNameYAxisItem{Name: "entry-", YAxis: -band},
			),
			charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
				Symbol:    []string{"none", "none"},
				LineStyle: &opts.LineStyle{Color: colorBand, Type: "dashed"},
			}),
		)
		items = append(items, zs)
	}
	return renderPage(items...)
}

func newLine(title, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", ChartWidthPx),
			Height:          fmt.Sprintf("%dpx", ChartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      subtitle,
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	return line
}

func renderPage(items ...components.Charter) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(items...)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func markerPoints(markers []spread.Marker) []opts.MarkPointNameCoordItem {
	out := make([]opts.MarkPointNameCoordItem, 0, len(markers))
	for _, m := range markers {
		out = append(out, opts.MarkPointNameCoordItem{
			Name:       string(m.Kind),
			Coordinate: []interface{}{m.Time.UTC().Format("2006-01-02"), round(m.Z, 4)},
			Symbol:     "pin",
		})
	}
	return out
}

// toLineData 把 NaN/Inf 转成空点，echarts 会断开折线。
func toLineData(series []float64) []opts.LineData {
	line := make([]opts.LineData, len(series))
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			line[i] = opts.LineData{Value: nil}
			continue
		}
		line[i] = opts.LineData{Value: round(v, 4)}
	}
	return line
}

func round(val float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(val*p) / p
}
