package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"pairlab/internal/alerts"
	brcfg "pairlab/internal/config"
	"pairlab/internal/logger"
	"pairlab/internal/scheduler"
	"pairlab/internal/screener"
	apihttp "pairlab/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：HTTP 服务、提醒巡检与定时重新筛选。
type App struct {
	cfg      *brcfg.Config
	http     *apihttp.Server
	screener *screener.Engine
	alerts   *alerts.Service
	closers  []io.Closer
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 阻塞到 ctx 结束或任一任务出错，退出前关闭所有存储。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.http == nil {
		return fmt.Errorf("app not initialized")
	}
	defer closeAll(a.closers)

	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if a.cfg.Alerts.Enabled && a.alerts != nil {
		if every := a.cfg.Alerts.CheckEvery(); every > 0 {
			sched := scheduler.New("alerts", every)
			group.Go(func() error {
				return ignoreCanceled(sched.Run(ctx, a.alerts.RunCheck))
			})
		}
	}

	if every := a.cfg.Screening.RescreenEvery(); every > 0 && a.screener != nil {
		sched := scheduler.New("rescreen", every)
		sched.Align = true
		params := screeningDefaults(a.cfg.Screening)
		group.Go(func() error {
			return ignoreCanceled(sched.Run(ctx, func(ctx context.Context) {
				session, candidates, err := a.screener.Run(ctx, params)
				if err != nil {
					logger.Warnf("定时筛选失败: %v", err)
					return
				}
				logger.Infof("定时筛选完成 session=%s candidates=%d", session.ID, len(candidates))
			}))
		})
	}

	return group.Wait()
}

// Handler 暴露路由，供集成测试直接驱动。
func (a *App) Handler() http.Handler {
	return a.http.Handler()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
