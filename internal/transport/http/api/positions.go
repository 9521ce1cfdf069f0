package apihttp

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pairlab/internal/positions"
)

func (s *Server) registerPositions(g *gin.RouterGroup) {
	g.GET("", s.handlePositionList)
	g.POST("", s.handlePositionCreate)
	g.POST("/open", s.handlePositionOpen)
	g.GET("/:id", s.handlePositionGet)
	g.PATCH("/:id", s.handlePositionUpdate)
	g.DELETE("/:id", s.handlePositionDelete)
	g.GET("/:id/pnl", s.handlePositionPnL)
}

func (s *Server) handlePositionList(c *gin.Context) {
	list, err := s.cfg.Positions.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": list})
}

func (s *Server) handlePositionCreate(c *gin.Context) {
	var req positions.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pos, err := s.cfg.Positions.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"position": pos})
}

func (s *Server) handlePositionOpen(c *gin.Context) {
	var req positions.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pos, err := s.cfg.Positions.Open(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"position": pos})
}

func (s *Server) handlePositionGet(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	pos, err := s.cfg.Positions.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": pos})
}

func (s *Server) handlePositionUpdate(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	pos, err := s.cfg.Positions.Update(c.Request.Context(), id, raw)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": pos})
}

func (s *Server) handlePositionDelete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.cfg.Positions.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handlePositionPnL 未给出 price_a/price_b 时取最新收盘价。
func (s *Server) handlePositionPnL(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	pa, ok := queryFloat(c, "price_a")
	if !ok {
		return
	}
	pb, ok := queryFloat(c, "price_b")
	if !ok {
		return
	}
	pnl, err := s.cfg.Positions.PnL(c.Request.Context(), id, pa, pb)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pnl": pnl})
}
