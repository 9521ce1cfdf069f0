package history

import (
	"context"
	"fmt"
	"strings"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/notifier"
	"pairlab/internal/store"
	"pairlab/internal/types"
)

var log = logger.Component("history")

const (
	DefaultCorrelationDrop = 0.1
	DefaultMaxADFPValue    = 0.05
	maxCandidates          = 5000
	pairHistoryLimit       = 100
)

// Store 是 history 需要的只读查询（store.ResultStore 的子集）。
type Store interface {
	GetSession(ctx context.Context, id string) (types.ScreeningSession, error)
	ListSessions(ctx context.Context, limit int) ([]types.ScreeningSession, error)
	LatestSession(ctx context.Context) (types.ScreeningSession, error)
	ListCandidates(ctx context.Context, filter store.CandidateFilter) ([]types.PairCandidate, error)
	PairHistory(ctx context.Context, key types.PairKey, limit int) ([]types.PairCandidate, error)
}

type Config struct {
	Store           Store
	Notifier        notifier.TextNotifier
	CorrelationDrop float64
	MaxADFPValue    float64
}

type Analyzer struct {
	store     Store
	notifier  notifier.TextNotifier
	corrDrop  float64
	maxPValue float64
}

func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("history store 不能为空")
	}
	a := &Analyzer{store: cfg.Store, notifier: cfg.Notifier, corrDrop: cfg.CorrelationDrop, maxPValue: cfg.MaxADFPValue}
	if a.corrDrop <= 0 {
		a.corrDrop = DefaultCorrelationDrop
	}
	if a.maxPValue <= 0 {
		a.maxPValue = DefaultMaxADFPValue
	}
	return a, nil
}

// Comparison 是两次会话的对比结果。
type Comparison struct {
	Current  SessionPoint  `json:"current"`
	Previous SessionPoint  `json:"previous"`
	Changes  []PairChange  `json:"changes"`
	New      int           `json:"new"`
	Removed  int           `json:"removed"`
	Updated  int           `json:"updated"`
	Degraded []Degradation `json:"degraded"`
}

// Compare currentID 为空取最近完成的会话；previousID 为空取它之前最近一次完成的会话。
func (a *Analyzer) Compare(ctx context.Context, currentID, previousID string) (Comparison, error) {
	cur, err := a.resolveCurrent(ctx, currentID)
	if err != nil {
		return Comparison{}, err
	}
	var prev types.ScreeningSession
	if id := strings.TrimSpace(previousID); id != "" {
		if prev, err = a.store.GetSession(ctx, id); err != nil {
			return Comparison{}, err
		}
	} else if prev, err = a.previousCompleted(ctx, cur); err != nil {
		return Comparison{}, err
	}

	curCands, err := a.candidates(ctx, cur.ID)
	if err != nil {
		return Comparison{}, err
	}
	prevCands, err := a.candidates(ctx, prev.ID)
	if err != nil {
		return Comparison{}, err
	}
	cmp := Comparison{
		Current:  Summarize(cur, curCands),
		Previous: Summarize(prev, prevCands),
		Changes:  Diff(curCands, prevCands),
	}
	for _, ch := range cmp.Changes {
		switch ch.Status {
		case StatusNew:
			cmp.New++
		case StatusRemoved:
			cmp.Removed++
		case StatusUpdated:
			cmp.Updated++
		}
	}
	past := make(map[types.PairKey][]types.PairCandidate, len(prevCands))
	for _, c := range prevCands {
		past[c.Key()] = []types.PairCandidate{c}
	}
	cmp.Degraded = DetectDegradation(curCands, past, a.corrDrop, a.maxPValue)
	return cmp, nil
}

// Trends 按时间升序返回最近 limit 次完成会话的汇总。
func (a *Analyzer) Trends(ctx context.Context, limit int) ([]SessionPoint, error) {
	sessions, err := a.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SessionPoint, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		sess := sessions[i]
		if sess.Status != types.SessionCompleted {
			continue
		}
		cands, err := a.candidates(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(sess, cands))
	}
	return out, nil
}

// PairTrend 是单个资产对在历次筛选中的指标序列。
type PairTrend struct {
	AssetA string           `json:"asset_a"`
	AssetB string           `json:"asset_b"`
	Points []PairTrendPoint `json:"points"`
}

type PairTrendPoint struct {
	SessionID     string  `json:"session_id"`
	ScreeningDate string  `json:"screening_date"`
	Correlation   float64 `json:"correlation"`
	ADFPValue     float64 `json:"adf_pvalue"`
	Beta          float64 `json:"beta"`
	Score         float64 `json:"composite_score"`
	CurrentZScore float64 `json:"current_zscore"`
}

func (a *Analyzer) PairTrend(ctx context.Context, assetA, assetB string, limit int) (PairTrend, error) {
	sa, sb := market.NormalizeSymbol(assetA), market.NormalizeSymbol(assetB)
	if sa == "" || sb == "" || sa == sb {
		return PairTrend{}, fmt.Errorf("%w: 需要两个不同的标的", types.ErrInvalidConfig)
	}
	if limit <= 0 {
		limit = pairHistoryLimit
	}
	key := types.NewPairKey(sa, sb)
	hist, err := a.store.PairHistory(ctx, key, limit)
	if err != nil {
		return PairTrend{}, err
	}
	if len(hist) == 0 {
		return PairTrend{}, fmt.Errorf("pair %s: %w", key, types.ErrNotFound)
	}
	out := PairTrend{AssetA: sa, AssetB: sb, Points: make([]PairTrendPoint, 0, len(hist))}
	for _, c := range hist {
		out.Points = append(out.Points, PairTrendPoint{
			SessionID:     c.SessionID,
			ScreeningDate: c.ScreeningDate.UTC().Format("2006-01-02T15:04:05Z"),
			Correlation:   c.Correlation,
			ADFPValue:     c.ADFPValue,
			Beta:          c.Beta,
			Score:         c.Score,
			CurrentZScore: c.CurrentZScore,
		})
	}
	return out, nil
}

// Degradations 把会话中每个候选与其之前的全部记录比较。
func (a *Analyzer) Degradations(ctx context.Context, sessionID string) ([]Degradation, error) {
	sess, err := a.resolveCurrent(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cands, err := a.candidates(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return a.degradations(ctx, sess, cands)
}

func (a *Analyzer) degradations(ctx context.Context, sess types.ScreeningSession, cands []types.PairCandidate) ([]Degradation, error) {
	past := make(map[types.PairKey][]types.PairCandidate, len(cands))
	for _, c := range cands {
		hist, err := a.store.PairHistory(ctx, c.Key(), pairHistoryLimit)
		if err != nil {
			return nil, err
		}
		for _, h := range hist {
			if h.SessionID != sess.ID && h.ScreeningDate.Before(c.ScreeningDate) {
				past[c.Key()] = append(past[c.Key()], h)
			}
		}
	}
	return DetectDegradation(cands, past, a.corrDrop, a.maxPValue), nil
}

// OnSessionComplete 挂在筛选引擎完成回调上：检测退化并推送摘要。
func (a *Analyzer) OnSessionComplete(ctx context.Context, session types.ScreeningSession, candidates []types.PairCandidate) {
	degraded, err := a.degradations(ctx, session, candidates)
	if err != nil {
		log.Warnf("session %s 退化检测失败: %v", session.ID, err)
		return
	}
	if len(degraded) == 0 {
		return
	}
	log.Infof("session %s: %d 个资产对关系退化", session.ID, len(degraded))
	if a.notifier == nil {
		return
	}
	lines := make([]string, 0, len(degraded))
	for _, d := range degraded {
		lines = append(lines, fmt.Sprintf("%s/%s corr %.3f (avg %.3f) p=%.4f [%s]",
			d.AssetA, d.AssetB, d.CurrentCorrelation, d.HistoricalAvgCorrelation, d.CurrentADFPValue, strings.Join(d.Reasons, ",")))
	}
	msg := notifier.Message{
		Icon:      "⚠️",
		Title:     "资产对关系退化",
		Sections:  []notifier.Section{{Title: "session " + session.ID, Lines: lines}},
		Timestamp: session.StartedAt,
	}
	if err := a.notifier.SendText(msg.Markdown()); err != nil {
		log.Warnf("退化通知失败: %v", err)
	}
}

func (a *Analyzer) resolveCurrent(ctx context.Context, id string) (types.ScreeningSession, error) {
	if id = strings.TrimSpace(id); id != "" {
		return a.store.GetSession(ctx, id)
	}
	return a.store.LatestSession(ctx)
}

func (a *Analyzer) previousCompleted(ctx context.Context, cur types.ScreeningSession) (types.ScreeningSession, error) {
	sessions, err := a.store.ListSessions(ctx, 500)
	if err != nil {
		return types.ScreeningSession{}, err
	}
	for _, s := range sessions {
		if s.ID != cur.ID && s.Status == types.SessionCompleted && s.StartedAt.Before(cur.StartedAt) {
			return s, nil
		}
	}
	return types.ScreeningSession{}, fmt.Errorf("no session before %s: %w", cur.ID, types.ErrNotFound)
}

func (a *Analyzer) candidates(ctx context.Context, sessionID string) ([]types.PairCandidate, error) {
	return a.store.ListCandidates(ctx, store.CandidateFilter{SessionID: sessionID, MinScore: -1, Limit: maxCandidates})
}
