package apihttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pairlab/internal/store"
	"pairlab/internal/types"
)

func (s *Server) registerScreening(g *gin.RouterGroup) {
	g.POST("/start", s.handleScreeningStart)
	g.POST("/run", s.handleScreeningRun)
	g.GET("/status", s.handleScreeningStatus)
	g.GET("/sessions", s.handleSessionList)
	g.GET("/sessions/:id", s.handleSessionDetail)
	g.GET("/sessions/:id/candidates", s.handleSessionCandidates)
}

// screeningParams 解析请求体，零值字段用配置默认值补齐；空 body 等价于全部默认。
func (s *Server) screeningParams(c *gin.Context) (types.ScreeningParams, bool) {
	var p types.ScreeningParams
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&p); err != nil {
			badRequest(c, err.Error())
			return p, false
		}
	}
	d := s.cfg.ScreeningDefaults
	if p.LookbackDays == 0 {
		p.LookbackDays = d.LookbackDays
	}
	if p.MinCorrelation == 0 {
		p.MinCorrelation = d.MinCorrelation
	}
	if p.MaxADFPValue == 0 {
		p.MaxADFPValue = d.MaxADFPValue
	}
	if p.MinVolumeUSD == 0 {
		p.MinVolumeUSD = d.MinVolumeUSD
	}
	if p.MaxAssets == 0 {
		p.MaxAssets = d.MaxAssets
	}
	if !p.IncludeHurst {
		p.IncludeHurst = d.IncludeHurst
	}
	return p, true
}

func (s *Server) handleScreeningStart(c *gin.Context) {
	params, ok := s.screeningParams(c)
	if !ok {
		return
	}
	sess, err := s.cfg.Screener.Start(params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": sess})
}

func (s *Server) handleScreeningRun(c *gin.Context) {
	params, ok := s.screeningParams(c)
	if !ok {
		return
	}
	sess, candidates, err := s.cfg.Screener.Run(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "candidates": candidates})
}

func (s *Server) handleScreeningStatus(c *gin.Context) {
	resp := gin.H{"running": s.cfg.Screener.Running()}
	if latest, err := s.cfg.Results.LatestSession(c.Request.Context()); err == nil {
		resp["latest"] = latest
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSessionList(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	sessions, err := s.cfg.Results.ListSessions(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleSessionDetail(c *gin.Context) {
	sess, err := s.cfg.Results.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (s *Server) handleSessionCandidates(c *gin.Context) {
	filter, ok := candidateFilter(c)
	if !ok {
		return
	}
	filter.SessionID = c.Param("id")
	s.writeCandidates(c, filter)
}

func candidateFilter(c *gin.Context) (store.CandidateFilter, bool) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return store.CandidateFilter{}, false
	}
	minScore, ok := queryFloat(c, "min_score")
	if !ok {
		return store.CandidateFilter{}, false
	}
	f := store.CandidateFilter{SessionID: c.Query("session_id"), Asset: c.Query("asset"), Limit: limit}
	if minScore != nil {
		f.MinScore = *minScore
	}
	return f, true
}

func (s *Server) writeCandidates(c *gin.Context, filter store.CandidateFilter) {
	candidates, err := s.cfg.Results.ListCandidates(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "count": len(candidates)})
}
