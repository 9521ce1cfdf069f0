package screener

import (
	"fmt"
	"math"

	"pairlab/internal/types"
)

const (
	MinLookbackDays = 50
	MaxLookbackDays = 1000
	// 单个资产的历史覆盖率低于该比例时跳过
	MinCoverage = 0.8
	// 对齐后少于该根数的资产对不参与评估
	MinPairObservations = 30
	DefaultMaxAssets    = 100
)

// Validate 检查筛选参数范围，错误包装 types.ErrInvalidConfig。
func Validate(p types.ScreeningParams) error {
	var err error
	switch {
	case p.LookbackDays < MinLookbackDays || p.LookbackDays > MaxLookbackDays:
		err = fmt.Errorf("lookback_days must be within [%d,%d]", MinLookbackDays, MaxLookbackDays)
	case math.IsNaN(p.MinCorrelation) || p.MinCorrelation < 0 || p.MinCorrelation > 1:
		err = fmt.Errorf("min_correlation must be within [0,1]")
	case math.IsNaN(p.MaxADFPValue) || p.MaxADFPValue < 0 || p.MaxADFPValue > 0.5:
		err = fmt.Errorf("max_adf_pvalue must be within [0,0.5]")
	case math.IsNaN(p.MinVolumeUSD) || p.MinVolumeUSD < 0:
		err = fmt.Errorf("min_volume_usd must be >= 0")
	case p.MaxAssets < 0:
		err = fmt.Errorf("max_assets must be >= 0")
	}
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	return nil
}

func withDefaults(p types.ScreeningParams) types.ScreeningParams {
	if p.MaxAssets == 0 {
		p.MaxAssets = DefaultMaxAssets
	}
	return p
}
