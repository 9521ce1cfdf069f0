// Package positions 跟踪手动开出的价差头寸，并按最新价格估算浮动盈亏。
package positions

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/sizing"
	storemodel "pairlab/internal/store/model"
	"pairlab/internal/types"
)

var log = logger.Component("positions")

// quoteLookbackDays 取最新收盘价时拉取的天数。
const quoteLookbackDays = 7

type Store interface {
	CreatePosition(ctx context.Context, pos *storemodel.PositionModel) error
	GetPosition(ctx context.Context, id int64) (storemodel.PositionModel, error)
	ListPositions(ctx context.Context, status storemodel.PositionStatus) ([]storemodel.PositionModel, error)
	UpdatePosition(ctx context.Context, id int64, updates map[string]interface{}) (storemodel.PositionModel, error)
	DeletePosition(ctx context.Context, id int64) error
}

// Position 的 Side 指价差方向：long = 多 A 空 B，short = 空 A 多 B。
type Position struct {
	ID          int64           `json:"position_id"`
	PairID      string          `json:"pair_id"`
	AssetA      string          `json:"asset_a"`
	AssetB      string          `json:"asset_b"`
	Side        sizing.Side     `json:"side"`
	QuantityA   float64         `json:"quantity_a"`
	QuantityB   float64         `json:"quantity_b"`
	EntryPriceA float64         `json:"entry_price_a"`
	EntryPriceB float64         `json:"entry_price_b"`
	Beta        float64         `json:"beta"`
	EntryZScore float64         `json:"entry_zscore"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	Sizing      json.RawMessage `json:"sizing,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func fromModel(m storemodel.PositionModel) Position {
	p := Position{
		ID:          m.ID,
		PairID:      m.PairID,
		AssetA:      m.AssetA,
		AssetB:      m.AssetB,
		Side:        sizing.Side(m.Side),
		QuantityA:   m.QuantityA,
		QuantityB:   m.QuantityB,
		EntryPriceA: m.EntryPriceA,
		EntryPriceB: m.EntryPriceB,
		Beta:        m.Beta,
		EntryZScore: m.EntryZScore,
		Status:      string(m.Status),
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.Sizing) > 0 {
		p.Sizing = json.RawMessage(m.Sizing)
	}
	return p
}

type CreateRequest struct {
	PairID      string      `json:"pair_id"`
	AssetA      string      `json:"asset_a"`
	AssetB      string      `json:"asset_b"`
	Side        sizing.Side `json:"side"`
	QuantityA   float64     `json:"quantity_a"`
	QuantityB   float64     `json:"quantity_b"`
	EntryPriceA float64     `json:"entry_price_a"`
	EntryPriceB float64     `json:"entry_price_b"`
	Beta        float64     `json:"beta"`
	EntryZScore float64     `json:"entry_zscore"`
	Notes       string      `json:"notes"`
}

// OpenRequest 先用仓位计算器算出两腿，再记录为头寸。
type OpenRequest struct {
	PairID string         `json:"pair_id"`
	AssetA string         `json:"asset_a"`
	AssetB string         `json:"asset_b"`
	Sizing sizing.Request `json:"sizing"`
	Notes  string         `json:"notes"`
}

type Service struct {
	store    Store
	provider market.PriceHistoryProvider
}

// NewService provider 可为空，此时计算盈亏必须显式给出现价。
func NewService(store Store, provider market.PriceHistoryProvider) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("position store 不能为空")
	}
	return &Service{store: store, provider: provider}, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Position, error) {
	row, err := buildModel(req)
	if err != nil {
		return Position{}, err
	}
	return s.insert(ctx, row)
}

func (s *Service) Open(ctx context.Context, req OpenRequest) (Position, error) {
	res, err := sizing.Size(req.Sizing)
	if err != nil {
		return Position{}, err
	}
	side := sizing.SideLong
	if res.AssetA.Side == sizing.SideShort {
		side = sizing.SideShort
	}
	row, err := buildModel(CreateRequest{
		PairID:      req.PairID,
		AssetA:      req.AssetA,
		AssetB:      req.AssetB,
		Side:        side,
		QuantityA:   res.AssetA.Quantity,
		QuantityB:   res.AssetB.Quantity,
		EntryPriceA: res.AssetA.Price,
		EntryPriceB: res.AssetB.Price,
		Beta:        res.Beta,
		EntryZScore: res.ZScore,
		Notes:       req.Notes,
	})
	if err != nil {
		return Position{}, err
	}
	snapshot, err := json.Marshal(res)
	if err != nil {
		return Position{}, err
	}
	row.Sizing = datatypes.JSON(snapshot)
	return s.insert(ctx, row)
}

func (s *Service) insert(ctx context.Context, row *storemodel.PositionModel) (Position, error) {
	if err := s.store.CreatePosition(ctx, row); err != nil {
		return Position{}, err
	}
	log.Infof("position %d opened %s %s/%s qa=%.6f qb=%.6f", row.ID, row.Side, row.AssetA, row.AssetB, row.QuantityA, row.QuantityB)
	return fromModel(*row), nil
}

func buildModel(req CreateRequest) (*storemodel.PositionModel, error) {
	a := market.NormalizeSymbol(req.AssetA)
	b := market.NormalizeSymbol(req.AssetB)
	if a == "" || b == "" || a == b {
		return nil, fmt.Errorf("%w: asset_a/asset_b 必须是两个不同的标的", types.ErrInvalidConfig)
	}
	side, err := parseSide(string(req.Side))
	if err != nil {
		return nil, err
	}
	for name, v := range map[string]float64{
		"quantity_a":    req.QuantityA,
		"quantity_b":    req.QuantityB,
		"entry_price_a": req.EntryPriceA,
		"entry_price_b": req.EntryPriceB,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s must be > 0", types.ErrInvalidConfig, name)
		}
	}
	pairID := strings.TrimSpace(req.PairID)
	if pairID == "" {
		pairID = types.NewPairKey(a, b).String()
	}
	return &storemodel.PositionModel{
		PairID:      pairID,
		AssetA:      a,
		AssetB:      b,
		Side:        string(side),
		QuantityA:   req.QuantityA,
		QuantityB:   req.QuantityB,
		EntryPriceA: req.EntryPriceA,
		EntryPriceB: req.EntryPriceB,
		Beta:        req.Beta,
		EntryZScore: req.EntryZScore,
		Status:      storemodel.PositionOpen,
		Notes:       strings.TrimSpace(req.Notes),
	}, nil
}

func parseSide(s string) (sizing.Side, error) {
	switch side := sizing.Side(strings.ToLower(strings.TrimSpace(s))); side {
	case sizing.SideLong, sizing.SideShort:
		return side, nil
	default:
		return "", fmt.Errorf("%w: side must be long or short, got %q", types.ErrInvalidConfig, s)
	}
}

func (s *Service) Get(ctx context.Context, id int64) (Position, error) {
	row, err := s.store.GetPosition(ctx, id)
	if err != nil {
		return Position{}, err
	}
	return fromModel(row), nil
}

// List status 为空返回全部。
func (s *Service) List(ctx context.Context, status string) ([]Position, error) {
	st := storemodel.PositionStatus(strings.ToLower(strings.TrimSpace(status)))
	switch st {
	case "", storemodel.PositionOpen, storemodel.PositionClosed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", types.ErrInvalidConfig, status)
	}
	rows, err := s.store.ListPositions(ctx, st)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id int64, raw []byte) (Position, error) {
	updates, err := parsePatch(raw)
	if err != nil {
		return Position{}, err
	}
	row, err := s.store.UpdatePosition(ctx, id, updates)
	if err != nil {
		return Position{}, err
	}
	return fromModel(row), nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeletePosition(ctx, id)
}
