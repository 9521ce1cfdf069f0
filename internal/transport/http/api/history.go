package apihttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerHistory(g *gin.RouterGroup) {
	g.GET("/compare", s.handleHistoryCompare)
	g.GET("/trends", s.handleHistoryTrends)
	g.GET("/degradations", s.handleHistoryDegradations)
}

func (s *Server) handleHistoryCompare(c *gin.Context) {
	cmp, err := s.cfg.History.Compare(c.Request.Context(), c.Query("current"), c.Query("previous"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comparison": cmp})
}

func (s *Server) handleHistoryTrends(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 30)
	if !ok {
		return
	}
	points, err := s.cfg.History.Trends(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": points})
}

func (s *Server) handleHistoryDegradations(c *gin.Context) {
	list, err := s.cfg.History.Degradations(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"degradations": list, "count": len(list)})
}
