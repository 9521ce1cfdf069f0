// Package store 定义筛选会话、候选对与回测运行的持久化接口。
package store

import (
	"context"

	"pairlab/internal/types"
)

// CandidateFilter 为空 SessionID 时取最近一次完成的会话。
type CandidateFilter struct {
	SessionID string
	Asset     string
	MinScore  float64
	Limit     int
}

type ResultStore interface {
	SaveSession(ctx context.Context, session types.ScreeningSession) error
	GetSession(ctx context.Context, id string) (types.ScreeningSession, error)
	ListSessions(ctx context.Context, limit int) ([]types.ScreeningSession, error)
	LatestSession(ctx context.Context) (types.ScreeningSession, error)

	SaveCandidates(ctx context.Context, sessionID string, candidates []types.PairCandidate) error
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]types.PairCandidate, error)
	GetCandidate(ctx context.Context, id string) (types.PairCandidate, error)
	PairHistory(ctx context.Context, key types.PairKey, limit int) ([]types.PairCandidate, error)

	CreateBacktest(ctx context.Context, run types.BacktestRun) error
	CompleteBacktest(ctx context.Context, id string, result types.BacktestResult) error
	FailBacktest(ctx context.Context, id string, reason string) error
	GetBacktest(ctx context.Context, id string) (types.BacktestRun, error)
	ListBacktests(ctx context.Context, limit int) ([]types.BacktestRun, error)

	Close() error
}
