package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	brcfg "pairlab/internal/config"
)

type StartupSummary struct {
	HTTPAddr  string
	Market    string
	Storage   StorageSummary
	Screening ScreeningSummary
	Alerts    string
	Presets   int
}

type StorageSummary struct {
	Results   string
	Positions string
	Exports   string
}

type ScreeningSummary struct {
	LookbackDays   int
	MinCorrelation float64
	MaxADFPValue   float64
	MaxAssets      int
	Workers        int
	Rescreen       string
}

func newStartupSummary(cfg *brcfg.Config, market string, presets int) *StartupSummary {
	s := &StartupSummary{
		HTTPAddr: cfg.App.HTTPAddr,
		Market:   market,
		Storage: StorageSummary{
			Results:   cfg.Storage.ResultsPath,
			Positions: cfg.Storage.PositionsPath,
			Exports:   cfg.Storage.ExportDir,
		},
		Screening: ScreeningSummary{
			LookbackDays:   cfg.Screening.LookbackDays,
			MinCorrelation: cfg.Screening.MinCorrelation,
			MaxADFPValue:   cfg.Screening.MaxADFPValue,
			MaxAssets:      cfg.Screening.MaxAssets,
			Workers:        cfg.Screening.Workers,
			Rescreen:       formatEvery(cfg.Screening.RescreenEvery().String(), cfg.Screening.RescreenEvery() > 0),
		},
		Alerts:  formatEvery(cfg.Alerts.CheckEvery().String(), cfg.Alerts.Enabled && cfg.Alerts.CheckEvery() > 0),
		Presets: presets,
	}
	return s
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[服务 (SERVICE)]")
	fmt.Fprintf(w, "  HTTP 地址: %s\n", orDash(s.HTTPAddr))
	fmt.Fprintf(w, "  行情来源: %s\n", orDash(s.Market))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[存储 (STORAGE)]")
	fmt.Fprintf(w, "  筛选/回测结果: %s\n", orDash(s.Storage.Results))
	fmt.Fprintf(w, "  仓位/提醒: %s\n", orDash(s.Storage.Positions))
	fmt.Fprintf(w, "  图表导出: %s\n", orDash(s.Storage.Exports))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[筛选默认值 (SCREENING)]")
	fmt.Fprintf(w, "  回看天数: %d\n", s.Screening.LookbackDays)
	fmt.Fprintf(w, "  最小相关性: %.2f\n", s.Screening.MinCorrelation)
	fmt.Fprintf(w, "  ADF p 值上限: %.3f\n", s.Screening.MaxADFPValue)
	fmt.Fprintf(w, "  最大币种数: %d  并发: %d\n", s.Screening.MaxAssets, s.Screening.Workers)
	fmt.Fprintf(w, "  定时重筛: %s\n", s.Screening.Rescreen)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[其他 (MISC)]")
	fmt.Fprintf(w, "  提醒巡检: %s\n", s.Alerts)
	fmt.Fprintf(w, "  回测预设: %d 个\n", s.Presets)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatEvery(every string, enabled bool) string {
	if !enabled {
		return "关闭"
	}
	return "每 " + every
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
