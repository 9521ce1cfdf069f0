// Package apihttp 暴露筛选、资产对分析、回测、仓位、告警、历史对比与导出的 HTTP API。
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pairlab/internal/alerts"
	"pairlab/internal/backtest"
	"pairlab/internal/export"
	"pairlab/internal/history"
	"pairlab/internal/logger"
	"pairlab/internal/pairs"
	"pairlab/internal/positions"
	"pairlab/internal/preset"
	"pairlab/internal/screener"
	"pairlab/internal/store"
	"pairlab/internal/types"
)

var log = logger.Component("http")

// Config 描述 API Server 的依赖；Positions/Alerts/History/Feed 为空时不注册对应路由。
type Config struct {
	Addr              string
	Screener          *screener.Engine
	Results           store.ResultStore
	Simulator         *backtest.Simulator
	Pairs             *pairs.Service
	Positions         *positions.Service
	Alerts            *alerts.Service
	History           *history.Analyzer
	Presets           *preset.Registry
	Exports           *export.Dir
	Feed              *Feed
	ScreeningDefaults types.ScreeningParams
}

type Server struct {
	addr   string
	router *gin.Engine
	cfg    Config
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Screener == nil || cfg.Results == nil || cfg.Simulator == nil || cfg.Pairs == nil {
		return nil, errors.New("screener/results/simulator/pairs 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{addr: cfg.Addr, router: router, cfg: cfg}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.router.Group("/api")
	s.registerScreening(api.Group("/screening"))
	s.registerPairs(api.Group("/pairs"))
	s.registerBacktest(api.Group("/backtest"))
	api.POST("/sizing", s.handleSizing)
	if s.cfg.Positions != nil {
		s.registerPositions(api.Group("/positions"))
	}
	if s.cfg.Alerts != nil {
		s.registerAlerts(api.Group("/alerts"))
	}
	if s.cfg.History != nil {
		s.registerHistory(api.Group("/history"))
	}
	s.registerExport(api.Group("/export"))
	if s.cfg.Feed != nil {
		api.GET("/stream", s.cfg.Feed.serve)
	}
}

// Handler 暴露路由，便于测试直接走 httptest。
func (s *Server) Handler() http.Handler { return s.router }

// Addr 返回监听地址。
func (s *Server) Addr() string { return s.addr }

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Infof("listening on %s", s.addr)

	select {
	case <-ctx.Done():
		s.cfg.Feed.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		log.Debugf("%s %s status=%d ip=%s dur=%s", c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// statusFor 把领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidConfig), errors.Is(err, types.ErrInvalidCapital):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrDataUnavailable):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, types.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, key+" 非法")
		return 0, false
	}
	return v, true
}

func queryFloat(c *gin.Context, key string) (*float64, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		badRequest(c, key+" 非法")
		return nil, false
	}
	return &v, true
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "id 非法")
		return 0, false
	}
	return id, true
}
