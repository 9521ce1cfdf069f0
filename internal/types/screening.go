package types

import (
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ScreeningParams 是一次筛选会话的输入参数。
type ScreeningParams struct {
	LookbackDays   int     `json:"lookback_days"`
	MinCorrelation float64 `json:"min_correlation"`
	MaxADFPValue   float64 `json:"max_adf_pvalue"`
	IncludeHurst   bool    `json:"include_hurst"`
	MinVolumeUSD   float64 `json:"min_volume_usd"`
	MaxAssets      int     `json:"max_assets"`
}

type ScreeningSession struct {
	ID               string          `json:"id"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Status           SessionStatus   `json:"status"`
	TotalPairsTested int             `json:"total_pairs_tested"`
	PairsFound       int             `json:"pairs_found"`
	AssetsSkipped    int             `json:"assets_skipped"`
	PairsSkipped     int             `json:"pairs_skipped"`
	Error            string          `json:"error,omitempty"`
	Params           ScreeningParams `json:"params"`
}

// PairCandidate 一经生成即不可变；重新筛选会产生新记录。
type PairCandidate struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	AssetA        string    `json:"asset_a"`
	AssetB        string    `json:"asset_b"`
	Correlation   float64   `json:"correlation"`
	ADFStatistic  float64   `json:"adf_statistic"`
	ADFPValue     float64   `json:"adf_pvalue"`
	ADFLags       int       `json:"adf_lags"`
	Alpha         float64   `json:"alpha"`
	Beta          float64   `json:"beta"`
	SpreadMean    float64   `json:"spread_mean"`
	SpreadStd     float64   `json:"spread_std"`
	Hurst         *float64  `json:"hurst_exponent,omitempty"`
	HalfLife      *float64  `json:"half_life,omitempty"`
	CurrentZScore float64   `json:"current_zscore"`
	Score         float64   `json:"composite_score"`
	LookbackDays  int       `json:"lookback_days"`
	Observations  int       `json:"observations"`
	ScreeningDate time.Time `json:"screening_date"`
}

func (c PairCandidate) Key() PairKey { return NewPairKey(c.AssetA, c.AssetB) }

// PairKey 是无序的资产对标识，A/B 顺序不影响相等性。
type PairKey struct {
	First  string
	Second string
}

func NewPairKey(a, b string) PairKey {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if b < a {
		a, b = b, a
	}
	return PairKey{First: a, Second: b}
}

func (k PairKey) String() string { return k.First + "/" + k.Second }
