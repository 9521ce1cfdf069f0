package alerts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairlab/internal/store/gormstore"
	"pairlab/internal/types"
)

type fakeProvider map[string]types.PriceSeries

func (f fakeProvider) History(_ context.Context, symbol string, _ int) (types.PriceSeries, error) {
	s, ok := f[symbol]
	if !ok {
		return types.PriceSeries{}, fmt.Errorf("%s: %w", symbol, types.ErrDataUnavailable)
	}
	return s, nil
}

type stubCandidates []types.PairCandidate

func (s stubCandidates) PairHistory(_ context.Context, key types.PairKey, _ int) ([]types.PairCandidate, error) {
	var out []types.PairCandidate
	for _, c := range s {
		if c.Key() == key {
			out = append(out, c)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) SendText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return nil
}

// spikeProvider: spread = a - b 在 ±1 之间交替，最后一根跳到 +10（z≈6）。
func spikeProvider() fakeProvider {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := types.PriceSeries{Symbol: "AAAUSDT"}
	b := types.PriceSeries{Symbol: "BBBUSDT"}
	for i := 0; i < 60; i++ {
		pb := 100 + 0.1*float64(i)
		s := 1.0
		if i%2 == 1 {
			s = -1
		}
		if i == 59 {
			s = 10
		}
		ts := start.AddDate(0, 0, i)
		a.Bars = append(a.Bars, types.Bar{Time: ts, Close: pb + s})
		b.Bars = append(b.Bars, types.Bar{Time: ts, Close: pb})
	}
	short := types.PriceSeries{Symbol: "SHORTUSDT", Bars: a.Bars[:10]}
	return fakeProvider{"AAAUSDT": a, "BBBUSDT": b, "SHORTUSDT": short}
}

func newTestService(t *testing.T, cands CandidateHistory, n *recordingNotifier) (*Service, *gormstore.GormStore) {
	t.Helper()
	st, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	cfg := Config{Store: st, Candidates: cands, Provider: spikeProvider(), LookbackDays: 60}
	if n != nil {
		cfg.Notifier = n
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, st
}

func fp(v float64) *float64 { return &v }

func TestCreateDefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)

	a, err := svc.Create(ctx, CreateRequest{AssetA: "bbb/usdt", AssetB: "AAAUSDT"})
	require.NoError(t, err)
	assert.Equal(t, "BBBUSDT", a.AssetA)
	assert.Equal(t, "AAAUSDT/BBBUSDT", a.PairID)
	require.NotNil(t, a.ThresholdHigh)
	require.NotNil(t, a.ThresholdLow)
	assert.Equal(t, 2.0, *a.ThresholdHigh)
	assert.Equal(t, -2.0, *a.ThresholdLow)
	assert.True(t, a.Enabled)

	onlyHigh, err := svc.Create(ctx, CreateRequest{AssetA: "AAAUSDT", AssetB: "BBBUSDT", ThresholdHigh: fp(3)})
	require.NoError(t, err)
	assert.Nil(t, onlyHigh.ThresholdLow)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"same asset", CreateRequest{AssetA: "AAAUSDT", AssetB: "aaa/usdt"}},
		{"missing asset", CreateRequest{AssetA: "AAAUSDT"}},
		{"inverted thresholds", CreateRequest{AssetA: "AAAUSDT", AssetB: "BBBUSDT", ThresholdHigh: fp(-1), ThresholdLow: fp(1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			assert.True(t, errors.Is(err, types.ErrInvalidConfig))
		})
	}

	list, err := svc.List(ctx, "bbbusdt/aaausdt", false)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUpdatePatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	a, err := svc.Create(ctx, CreateRequest{AssetA: "AAAUSDT", AssetB: "BBBUSDT"})
	require.NoError(t, err)

	got, err := svc.Update(ctx, a.ID, []byte(`{"threshold_high":2.5,"threshold_low":null,"enabled":false}`))
	require.NoError(t, err)
	require.NotNil(t, got.ThresholdHigh)
	assert.Equal(t, 2.5, *got.ThresholdHigh)
	assert.Nil(t, got.ThresholdLow)
	assert.False(t, got.Enabled)

	t.Run("clearing both thresholds is rejected", func(t *testing.T) {
		_, err := svc.Update(ctx, a.ID, []byte(`{"threshold_high":null}`))
		assert.True(t, errors.Is(err, types.ErrInvalidConfig))
	})
	t.Run("wrong types are rejected", func(t *testing.T) {
		_, err := svc.Update(ctx, a.ID, []byte(`{"enabled":"yes"}`))
		assert.True(t, errors.Is(err, types.ErrInvalidConfig))
		_, err = svc.Update(ctx, a.ID, []byte(`{"threshold_low":"low"}`))
		assert.True(t, errors.Is(err, types.ErrInvalidConfig))
		_, err = svc.Update(ctx, a.ID, []byte(`[1,2]`))
		assert.True(t, errors.Is(err, types.ErrInvalidConfig))
	})
	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Update(ctx, 999, []byte(`{"enabled":true}`))
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})
}

func TestTriggered(t *testing.T) {
	a := Alert{ThresholdHigh: fp(2), ThresholdLow: fp(-2)}
	assert.True(t, a.Triggered(2))
	assert.True(t, a.Triggered(-2.5))
	assert.False(t, a.Triggered(1.99))
	assert.False(t, Alert{ThresholdHigh: fp(2)}.Triggered(-10))
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	cands := stubCandidates{{AssetA: "AAAUSDT", AssetB: "BBBUSDT", Beta: 1}}
	svc, _ := newTestService(t, cands, n)
	var hooked []Trigger
	svc.onTrigger = func(tr Trigger) { hooked = append(hooked, tr) }

	fires, err := svc.Create(ctx, CreateRequest{AssetA: "AAAUSDT", AssetB: "BBBUSDT"})
	require.NoError(t, err)
	quiet, err := svc.Create(ctx, CreateRequest{AssetA: "AAAUSDT", AssetB: "BBBUSDT", ThresholdHigh: fp(7)})
	require.NoError(t, err)
	disabled, err := svc.Create(ctx, CreateRequest{AssetA: "AAAUSDT", AssetB: "BBBUSDT"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, disabled.ID, []byte(`{"enabled":false}`))
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{AssetA: "ZZZUSDT", AssetB: "BBBUSDT"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{AssetA: "SHORTUSDT", AssetB: "BBBUSDT"})
	require.NoError(t, err)

	report, err := svc.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Triggered, 1)
	trig := report.Triggered[0]
	assert.Equal(t, fires.ID, trig.AlertID)
	assert.Equal(t, "above", trig.Direction)
	assert.InDelta(t, 6.018, trig.ZScore, 0.01)

	got, err := svc.Get(ctx, fires.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TriggerCount)
	require.NotNil(t, got.LastTriggered)
	require.NotNil(t, got.LastZScore)

	q, err := svc.Get(ctx, quiet.ID)
	require.NoError(t, err)
	assert.Zero(t, q.TriggerCount)
	require.NotNil(t, q.LastZScore)
	assert.InDelta(t, 6.018, *q.LastZScore, 0.01)

	d, err := svc.Get(ctx, disabled.ID)
	require.NoError(t, err)
	assert.Zero(t, d.TriggerCount)
	assert.Nil(t, d.LastZScore)

	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0], "AAAUSDT / BBBUSDT")
	assert.Contains(t, n.msgs[0], "short A / long B")
	require.Len(t, hooked, 1)
	assert.Equal(t, fires.ID, hooked[0].AlertID)

	_, err = svc.Check(ctx)
	require.NoError(t, err)
	got, err = svc.Get(ctx, fires.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TriggerCount)
}

func TestCurrentZFallsBackToOLS(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	z, err := svc.CurrentZ(context.Background(), "AAAUSDT", "BBBUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 5.81, z, 0.01)

	_, err = svc.CurrentZ(context.Background(), "SHORTUSDT", "BBBUSDT")
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil, nil)
	a, err := svc.Create(ctx, CreateRequest{AssetA: "AAAUSDT", AssetB: "BBBUSDT"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, a.ID))
	assert.True(t, errors.Is(svc.Delete(ctx, a.ID), types.ErrNotFound))
	_, err = svc.Get(ctx, a.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
