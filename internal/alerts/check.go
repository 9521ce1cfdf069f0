package alerts

import (
	"context"
	"fmt"

	"pairlab/internal/market"
	"pairlab/internal/notifier"
	"pairlab/internal/spread"
	"pairlab/internal/stats"
	"pairlab/internal/types"
)

// MinObservations 是计算当前 z-score 所需的最少对齐 bar 数。
const MinObservations = 30

// Trigger 记录一次越过阈值。
type Trigger struct {
	AlertID   int64    `json:"alert_id"`
	PairID    string   `json:"pair_id"`
	AssetA    string   `json:"asset_a"`
	AssetB    string   `json:"asset_b"`
	ZScore    float64  `json:"zscore"`
	Threshold *float64 `json:"threshold"`
	Direction string   `json:"direction"`
}

type CheckReport struct {
	Checked   int       `json:"checked"`
	Failed    int       `json:"failed"`
	Triggered []Trigger `json:"triggered"`
}

type reading struct {
	z   float64
	err error
}

// Check 巡检所有启用的告警；同一方向的资产对只取一次数据。
func (s *Service) Check(ctx context.Context) (CheckReport, error) {
	rows, err := s.store.ListAlerts(ctx, "", true)
	if err != nil {
		return CheckReport{}, err
	}
	report := CheckReport{Triggered: []Trigger{}}
	cache := make(map[[2]string]reading)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		alert := fromModel(row)
		k := [2]string{alert.AssetA, alert.AssetB}
		r, ok := cache[k]
		if !ok {
			r.z, r.err = s.CurrentZ(ctx, alert.AssetA, alert.AssetB)
			cache[k] = r
		}
		if r.err != nil {
			report.Failed++
			log.Warnf("alert %d %s/%s 取数失败: %v", alert.ID, alert.AssetA, alert.AssetB, r.err)
			continue
		}
		report.Checked++
		if !alert.Triggered(r.z) {
			if _, err := s.store.UpdateAlert(ctx, alert.ID, map[string]interface{}{"last_zscore": r.z}); err != nil {
				log.Warnf("alert %d 更新 last_zscore 失败: %v", alert.ID, err)
			}
			continue
		}
		if err := s.store.RecordTrigger(ctx, alert.ID, r.z, s.now()); err != nil {
			log.Errorf("alert %d 记录触发失败: %v", alert.ID, err)
			continue
		}
		trig := newTrigger(alert, r.z)
		report.Triggered = append(report.Triggered, trig)
		log.Infof("alert %d triggered %s z=%.3f (%s)", alert.ID, alert.PairID, r.z, trig.Direction)
		s.notify(trig)
		if s.onTrigger != nil {
			s.onTrigger(trig)
		}
	}
	return report, nil
}

// RunCheck 供调度器调用。
func (s *Service) RunCheck(ctx context.Context) {
	report, err := s.Check(ctx)
	if err != nil {
		log.Warnf("巡检中断: %v", err)
		return
	}
	log.Debugf("巡检完成 checked=%d failed=%d triggered=%d", report.Checked, report.Failed, len(report.Triggered))
}

func newTrigger(a Alert, z float64) Trigger {
	t := Trigger{AlertID: a.ID, PairID: a.PairID, AssetA: a.AssetA, AssetB: a.AssetB, ZScore: z}
	if a.ThresholdHigh != nil && z >= *a.ThresholdHigh {
		t.Threshold, t.Direction = a.ThresholdHigh, "above"
	} else {
		t.Threshold, t.Direction = a.ThresholdLow, "below"
	}
	return t
}

func (s *Service) notify(t Trigger) {
	if s.notifier == nil {
		return
	}
	action := "做空价差 (short A / long B)"
	if t.Direction == "below" {
		action = "做多价差 (long A / short B)"
	}
	msg := notifier.Message{
		Icon:  "🔔",
		Title: "Z-Score 提醒",
		Sections: []notifier.Section{{
			Title: t.AssetA + " / " + t.AssetB,
			Lines: []string{
				fmt.Sprintf("z-score : %.3f", t.ZScore),
				fmt.Sprintf("阈值    : %s %.2f", t.Direction, deref(t.Threshold)),
				"参考    : " + action,
			},
		}},
		Timestamp: s.now(),
	}
	if err := s.notifier.SendText(msg.Markdown()); err != nil {
		log.Warnf("alert %d 推送失败: %v", t.AlertID, err)
	}
}

// CurrentZ 用最近一次筛选的 beta（方向一致时）计算最新的静态 z-score，否则用 OLS 现算。
func (s *Service) CurrentZ(ctx context.Context, assetA, assetB string) (float64, error) {
	sa, err := s.provider.History(ctx, assetA, s.lookback)
	if err != nil {
		return 0, err
	}
	sb, err := s.provider.History(ctx, assetB, s.lookback)
	if err != nil {
		return 0, err
	}
	pair := market.Align(sa, sb)
	if pair.Len() < MinObservations {
		return 0, fmt.Errorf("%s/%s 只有 %d 根对齐数据: %w", assetA, assetB, pair.Len(), types.ErrInsufficientData)
	}
	beta, err := s.beta(ctx, pair)
	if err != nil {
		return 0, err
	}
	st, err := spread.NewStatic(pair.A, pair.B, beta)
	if err != nil {
		return 0, err
	}
	return st.CurrentZ(), nil
}

func (s *Service) beta(ctx context.Context, pair types.AlignedPair) (float64, error) {
	if s.candidates != nil {
		hist, err := s.candidates.PairHistory(ctx, types.NewPairKey(pair.SymbolA, pair.SymbolB), 1)
		if err != nil {
			log.Debugf("%s/%s 读取候选历史失败: %v", pair.SymbolA, pair.SymbolB, err)
		} else if n := len(hist); n > 0 {
			last := hist[n-1]
			if last.AssetA == pair.SymbolA && last.Beta > 0 {
				return last.Beta, nil
			}
		}
	}
	res, err := stats.HedgeRatio(pair.A, pair.B)
	if err != nil {
		return 0, err
	}
	return res.Beta, nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
