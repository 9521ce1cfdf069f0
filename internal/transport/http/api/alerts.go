package apihttp

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pairlab/internal/alerts"
)

func (s *Server) registerAlerts(g *gin.RouterGroup) {
	g.GET("", s.handleAlertList)
	g.POST("", s.handleAlertCreate)
	g.POST("/check", s.handleAlertCheck)
	g.GET("/:id", s.handleAlertGet)
	g.PATCH("/:id", s.handleAlertUpdate)
	g.DELETE("/:id", s.handleAlertDelete)
}

func (s *Server) handleAlertList(c *gin.Context) {
	enabledOnly, _ := strconv.ParseBool(c.Query("enabled"))
	list, err := s.cfg.Alerts.List(c.Request.Context(), c.Query("pair_id"), enabledOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": list})
}

func (s *Server) handleAlertCreate(c *gin.Context) {
	var req alerts.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.cfg.Alerts.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"alert": a})
}

// handleAlertCheck 立即执行一轮检查，与定时任务共用同一逻辑。
func (s *Server) handleAlertCheck(c *gin.Context) {
	report, err := s.cfg.Alerts.Check(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (s *Server) handleAlertGet(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	a, err := s.cfg.Alerts.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": a})
}

func (s *Server) handleAlertUpdate(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.cfg.Alerts.Update(c.Request.Context(), id, raw)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": a})
}

func (s *Server) handleAlertDelete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.cfg.Alerts.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
