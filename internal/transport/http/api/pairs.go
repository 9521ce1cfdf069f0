package apihttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pairlab/internal/types"
)

func (s *Server) registerPairs(g *gin.RouterGroup) {
	g.GET("", s.handlePairList)
	g.GET("/candidate/:id", s.handleCandidate)
	g.GET("/detail", s.handlePairDetail)
	g.GET("/history", s.handlePairHistory)
}

// handlePairList 默认列出最近一次完成会话的候选。
func (s *Server) handlePairList(c *gin.Context) {
	filter, ok := candidateFilter(c)
	if !ok {
		return
	}
	s.writeCandidates(c, filter)
}

func (s *Server) handleCandidate(c *gin.Context) {
	cand, err := s.cfg.Results.GetCandidate(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidate": cand})
}

func (s *Server) handlePairDetail(c *gin.Context) {
	a, b := c.Query("asset_a"), c.Query("asset_b")
	if a == "" || b == "" {
		badRequest(c, "asset_a/asset_b 必填")
		return
	}
	lookback, ok := queryInt(c, "lookback_days", 0)
	if !ok {
		return
	}
	horizon, ok := queryInt(c, "horizon", 0)
	if !ok {
		return
	}
	detail, err := s.cfg.Pairs.Detail(c.Request.Context(), a, b, lookback, horizon)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pair": detail})
}

// handlePairHistory 返回该资产对在各次筛选中的指标变化。
func (s *Server) handlePairHistory(c *gin.Context) {
	a, b := c.Query("asset_a"), c.Query("asset_b")
	if a == "" || b == "" {
		badRequest(c, "asset_a/asset_b 必填")
		return
	}
	limit, ok := queryInt(c, "limit", 30)
	if !ok {
		return
	}
	if s.cfg.History != nil {
		trend, err := s.cfg.History.PairTrend(c.Request.Context(), a, b, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"trend": trend})
		return
	}
	hist, err := s.cfg.Results.PairHistory(c.Request.Context(), types.NewPairKey(a, b), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": hist})
}
