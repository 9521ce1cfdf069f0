// Package alerts 管理资产对的 z-score 阈值提醒，并由调度器周期性巡检。
package alerts

import (
	"context"
	"fmt"
	"time"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/notifier"
	storemodel "pairlab/internal/store/model"
	"pairlab/internal/types"
)

var log = logger.Component("alerts")

// 两个阈值都未给出时使用 ±2。
const (
	DefaultThresholdHigh = 2.0
	DefaultThresholdLow  = -2.0
	DefaultLookbackDays  = 180
)

// Store 是告警的持久化层（gormstore.GormStore 实现）。
type Store interface {
	CreateAlert(ctx context.Context, alert *storemodel.AlertModel) error
	GetAlert(ctx context.Context, id int64) (storemodel.AlertModel, error)
	ListAlerts(ctx context.Context, pairID string, enabledOnly bool) ([]storemodel.AlertModel, error)
	UpdateAlert(ctx context.Context, id int64, updates map[string]interface{}) (storemodel.AlertModel, error)
	RecordTrigger(ctx context.Context, id int64, zscore float64, at time.Time) error
	DeleteAlert(ctx context.Context, id int64) error
}

// CandidateHistory 提供最近一次筛选得到的对冲比例。
type CandidateHistory interface {
	PairHistory(ctx context.Context, key types.PairKey, limit int) ([]types.PairCandidate, error)
}

// Alert 是对外展示的告警。
type Alert struct {
	ID            int64      `json:"alert_id"`
	PairID        string     `json:"pair_id"`
	AssetA        string     `json:"asset_a"`
	AssetB        string     `json:"asset_b"`
	ThresholdHigh *float64   `json:"threshold_high"`
	ThresholdLow  *float64   `json:"threshold_low"`
	Enabled       bool       `json:"enabled"`
	LastTriggered *time.Time `json:"last_triggered"`
	LastZScore    *float64   `json:"last_zscore"`
	TriggerCount  int        `json:"trigger_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

func fromModel(m storemodel.AlertModel) Alert {
	return Alert{
		ID:            m.ID,
		PairID:        m.PairID,
		AssetA:        m.AssetA,
		AssetB:        m.AssetB,
		ThresholdHigh: m.ThresholdHigh,
		ThresholdLow:  m.ThresholdLow,
		Enabled:       m.Enabled,
		LastTriggered: m.LastTriggered,
		LastZScore:    m.LastZScore,
		TriggerCount:  m.TriggerCount,
		CreatedAt:     m.CreatedAt,
	}
}

// Triggered 判断 z 是否越过阈值：z >= high 或 z <= low。
func (a Alert) Triggered(z float64) bool {
	if a.ThresholdHigh != nil && z >= *a.ThresholdHigh {
		return true
	}
	return a.ThresholdLow != nil && z <= *a.ThresholdLow
}

type CreateRequest struct {
	AssetA        string   `json:"asset_a"`
	AssetB        string   `json:"asset_b"`
	ThresholdHigh *float64 `json:"threshold_high"`
	ThresholdLow  *float64 `json:"threshold_low"`
}

type Config struct {
	Store        Store
	Candidates   CandidateHistory
	Provider     market.PriceHistoryProvider
	Notifier     notifier.TextNotifier
	LookbackDays int
	OnTrigger    func(Trigger)
}

type Service struct {
	store      Store
	candidates CandidateHistory
	provider   market.PriceHistoryProvider
	notifier   notifier.TextNotifier
	lookback   int
	onTrigger  func(Trigger)
	now        func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("alert store 不能为空")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("price provider 不能为空")
	}
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	return &Service{
		store:      cfg.Store,
		candidates: cfg.Candidates,
		provider:   cfg.Provider,
		notifier:   cfg.Notifier,
		lookback:   lookback,
		onTrigger:  cfg.OnTrigger,
		now:        time.Now,
	}, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Alert, error) {
	a := market.NormalizeSymbol(req.AssetA)
	b := market.NormalizeSymbol(req.AssetB)
	if a == "" || b == "" || a == b {
		return Alert{}, fmt.Errorf("%w: asset_a/asset_b 必须是两个不同的标的", types.ErrInvalidConfig)
	}
	high, low := req.ThresholdHigh, req.ThresholdLow
	if high == nil && low == nil {
		h, l := DefaultThresholdHigh, DefaultThresholdLow
		high, low = &h, &l
	}
	if err := validateThresholds(high, low); err != nil {
		return Alert{}, err
	}
	row := &storemodel.AlertModel{
		PairID:        types.NewPairKey(a, b).String(),
		AssetA:        a,
		AssetB:        b,
		ThresholdHigh: high,
		ThresholdLow:  low,
		Enabled:       true,
	}
	if err := s.store.CreateAlert(ctx, row); err != nil {
		return Alert{}, err
	}
	log.Infof("alert %d created %s/%s", row.ID, a, b)
	return fromModel(*row), nil
}

func (s *Service) Get(ctx context.Context, id int64) (Alert, error) {
	row, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	return fromModel(row), nil
}

// List pairID 接受 "ETHUSDT/BTCUSDT" 形式，顺序无关；为空返回全部。
func (s *Service) List(ctx context.Context, pairID string, enabledOnly bool) ([]Alert, error) {
	rows, err := s.store.ListAlerts(ctx, normalizePairID(pairID), enabledOnly)
	if err != nil {
		return nil, err
	}
	out := make([]Alert, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

// Update 按 JSON 局部更新阈值与开关；阈值可显式置 null。
func (s *Service) Update(ctx context.Context, id int64, raw []byte) (Alert, error) {
	p, err := parsePatch(raw)
	if err != nil {
		return Alert{}, err
	}
	current, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	high, low := current.ThresholdHigh, current.ThresholdLow
	if p.high.set {
		high = p.high.value
	}
	if p.low.set {
		low = p.low.value
	}
	if err := validateThresholds(high, low); err != nil {
		return Alert{}, err
	}
	row, err := s.store.UpdateAlert(ctx, id, p.updates())
	if err != nil {
		return Alert{}, err
	}
	return fromModel(row), nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteAlert(ctx, id)
}

func validateThresholds(high, low *float64) error {
	if high == nil && low == nil {
		return fmt.Errorf("%w: 至少需要一个阈值", types.ErrInvalidConfig)
	}
	if high != nil && low != nil && *high <= *low {
		return fmt.Errorf("%w: threshold_high 必须大于 threshold_low", types.ErrInvalidConfig)
	}
	return nil
}

func normalizePairID(pairID string) string {
	if pairID == "" {
		return ""
	}
	for i := 0; i < len(pairID); i++ {
		if pairID[i] == '/' || pairID[i] == ',' {
			return types.NewPairKey(market.NormalizeSymbol(pairID[:i]), market.NormalizeSymbol(pairID[i+1:])).String()
		}
	}
	return market.NormalizeSymbol(pairID)
}
