package apihttp

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pairlab/internal/export"
	"pairlab/internal/spread"
	"pairlab/internal/types"
)

const (
	contentCSV  = "text/csv; charset=utf-8"
	contentHTML = "text/html; charset=utf-8"
	contentPNG  = "image/png"
)

func (s *Server) registerExport(g *gin.RouterGroup) {
	g.GET("/candidates.csv", s.handleExportCandidates)
	g.GET("/backtest/:id/trades.csv", s.handleExportTrades)
	g.GET("/backtest/:id/equity.csv", s.handleExportEquity)
	g.GET("/backtest/:id/chart.html", s.handleExportEquityChart)
	g.GET("/backtest/:id/chart.png", s.handleExportEquityPNG)
	g.GET("/pair/series.csv", s.handleExportSeries)
	g.GET("/pair/chart.html", s.handleExportSpreadChart)
	g.GET("/pair/chart.png", s.handleExportSpreadPNG)
}

func attachment(c *gin.Context, name, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, data)
}

func (s *Server) handleExportCandidates(c *gin.Context) {
	filter, ok := candidateFilter(c)
	if !ok {
		return
	}
	candidates, err := s.cfg.Results.ListCandidates(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCandidatesCSV(&buf, candidates); err != nil {
		writeError(c, err)
		return
	}
	name := "candidates.csv"
	if len(candidates) > 0 {
		name = fmt.Sprintf("candidates_%s.csv", candidates[0].SessionID)
	}
	attachment(c, name, contentCSV, buf.Bytes())
}

// completedRun 只有已完成的运行才有结果可导出。
func (s *Server) completedRun(c *gin.Context) (types.BacktestResult, bool) {
	run, err := s.cfg.Results.GetBacktest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return types.BacktestResult{}, false
	}
	if run.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("run %s 状态为 %s，尚无结果", run.ID, run.Status)})
		return types.BacktestResult{}, false
	}
	res := *run.Result
	if res.RunID == "" {
		res.RunID = run.ID
	}
	return res, true
}

func (s *Server) handleExportTrades(c *gin.Context) {
	res, ok := s.completedRun(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteTradesCSV(&buf, res.Trades); err != nil {
		writeError(c, err)
		return
	}
	attachment(c, fmt.Sprintf("trades_%s.csv", res.RunID), contentCSV, buf.Bytes())
}

func (s *Server) handleExportEquity(c *gin.Context) {
	res, ok := s.completedRun(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteEquityCSV(&buf, res); err != nil {
		writeError(c, err)
		return
	}
	attachment(c, fmt.Sprintf("equity_%s.csv", res.RunID), contentCSV, buf.Bytes())
}

func (s *Server) handleExportEquityChart(c *gin.Context) {
	res, ok := s.completedRun(c)
	if !ok {
		return
	}
	html, err := export.EquityChartHTML(res)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, contentHTML, html)
}

func (s *Server) handleExportEquityPNG(c *gin.Context) {
	if s.cfg.Exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "PNG 导出未启用"})
		return
	}
	res, ok := s.completedRun(c)
	if !ok {
		return
	}
	png, err := s.cfg.Exports.CachedPNG(c.Request.Context(), "equity_"+res.RunID, func() ([]byte, error) {
		return export.EquityChartHTML(res)
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, contentPNG, png)
}

func (s *Server) pairChart(c *gin.Context) (spread.ChartData, bool) {
	a, b := c.Query("asset_a"), c.Query("asset_b")
	if a == "" || b == "" {
		badRequest(c, "asset_a/asset_b 必填")
		return spread.ChartData{}, false
	}
	lookback, ok := queryInt(c, "lookback_days", 0)
	if !ok {
		return spread.ChartData{}, false
	}
	data, err := s.cfg.Pairs.Chart(c.Request.Context(), a, b, lookback)
	if err != nil {
		writeError(c, err)
		return spread.ChartData{}, false
	}
	return data, true
}

func (s *Server) handleExportSeries(c *gin.Context) {
	data, ok := s.pairChart(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteSeriesCSV(&buf, data); err != nil {
		writeError(c, err)
		return
	}
	attachment(c, strings.ToLower(fmt.Sprintf("spread_%s_%s.csv", data.SymbolA, data.SymbolB)), contentCSV, buf.Bytes())
}

func (s *Server) handleExportSpreadChart(c *gin.Context) {
	data, ok := s.pairChart(c)
	if !ok {
		return
	}
	html, err := export.SpreadChartHTML(data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, contentHTML, html)
}

// handleExportSpreadPNG 价差随行情变化，不走磁盘缓存。
func (s *Server) handleExportSpreadPNG(c *gin.Context) {
	data, ok := s.pairChart(c)
	if !ok {
		return
	}
	html, err := export.SpreadChartHTML(data)
	if err != nil {
		writeError(c, err)
		return
	}
	png, err := export.RenderPNG(c.Request.Context(), html, export.ChartWidthPx+40, 2*export.ChartHeightPx+80)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, contentPNG, png)
}
