package apihttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pairlab/internal/sizing"
	"pairlab/internal/types"
)

func (s *Server) registerBacktest(g *gin.RouterGroup) {
	g.POST("/run", s.handleBacktestRun)
	g.POST("/runs", s.handleBacktestStart)
	g.GET("/runs", s.handleBacktestList)
	g.GET("/runs/:id", s.handleBacktestDetail)
	g.GET("/presets", s.handlePresetList)
}

// handleBacktestRun 同步回测，结果不落库。
func (s *Server) handleBacktestRun(c *gin.Context) {
	var req types.BacktestConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := s.cfg.Simulator.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (s *Server) handleBacktestStart(c *gin.Context) {
	var req types.BacktestConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	run, err := s.cfg.Simulator.Start(req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleBacktestList(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	runs, err := s.cfg.Results.ListBacktests(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleBacktestDetail(c *gin.Context) {
	run, err := s.cfg.Results.GetBacktest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handlePresetList(c *gin.Context) {
	if s.cfg.Presets == nil {
		c.JSON(http.StatusOK, gin.H{"presets": []any{}})
		return
	}
	snap := s.cfg.Presets.Snapshot()
	c.JSON(http.StatusOK, gin.H{"presets": s.cfg.Presets.List(), "version": snap.Version, "loaded_at": snap.LoadedAt})
}

type sizingRequest struct {
	sizing.Request
	Strategy string   `json:"strategy"`
	ExitA    *float64 `json:"exit_price_a"`
	ExitB    *float64 `json:"exit_price_b"`
}

// handleSizing 计算两腿仓位；同时给出两个退出价时附带盈亏估算。
func (s *Server) handleSizing(c *gin.Context) {
	var req sizingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	strategy, err := sizing.ParseStrategy(req.Strategy)
	if err != nil {
		writeError(c, err)
		return
	}
	req.Request.Strategy = strategy
	res, err := sizing.Size(req.Request)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"sizing": res}
	if req.ExitA != nil && req.ExitB != nil {
		resp["pnl"] = sizing.EstimatePnL(res, *req.ExitA, *req.ExitB)
	}
	c.JSON(http.StatusOK, resp)
}
