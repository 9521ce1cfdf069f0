package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	storemodel "pairlab/internal/store/model"
	"pairlab/internal/types"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	st, err := NewGormStore(filepath.Join(t.TempDir(), "tracking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPositionCRUD(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	pos := &PositionModel{
		PairID:      "cand-1",
		AssetA:      "ETHUSDT",
		AssetB:      "BTCUSDT",
		Side:        "long",
		QuantityA:   2,
		QuantityB:   0.1,
		EntryPriceA: 3000,
		EntryPriceB: 60000,
		Beta:        0.05,
		Sizing:      datatypes.JSON(`{"strategy":"dollar_neutral"}`),
	}
	require.NoError(t, st.CreatePosition(ctx, pos))
	require.NotZero(t, pos.ID)
	assert.Equal(t, storemodel.PositionOpen, pos.Status)

	got, err := st.GetPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", got.AssetA)
	assert.JSONEq(t, `{"strategy":"dollar_neutral"}`, string(got.Sizing))

	updated, err := st.UpdatePosition(ctx, pos.ID, map[string]interface{}{"status": storemodel.PositionClosed, "notes": "manual exit"})
	require.NoError(t, err)
	assert.Equal(t, storemodel.PositionClosed, updated.Status)
	assert.Equal(t, "manual exit", updated.Notes)

	open, err := st.ListPositions(ctx, storemodel.PositionOpen)
	require.NoError(t, err)
	assert.Empty(t, open)
	all, err := st.ListPositions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, st.DeletePosition(ctx, pos.ID))
	_, err = st.GetPosition(ctx, pos.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, st.DeletePosition(ctx, pos.ID), types.ErrNotFound)
	_, err = st.UpdatePosition(ctx, 999, map[string]interface{}{"notes": "x"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAlertTriggers(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	high, low := 2.0, -2.0

	enabled := &AlertModel{PairID: "p1", AssetA: "ETHUSDT", AssetB: "BTCUSDT", ThresholdHigh: &high, ThresholdLow: &low, Enabled: true}
	disabled := &AlertModel{PairID: "p2", AssetA: "SOLUSDT", AssetB: "AVAXUSDT", ThresholdHigh: &high}
	require.NoError(t, st.CreateAlert(ctx, enabled))
	require.NoError(t, st.CreateAlert(ctx, disabled))

	list, err := st.ListAlerts(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enabled.ID, list[0].ID)

	at := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.RecordTrigger(ctx, enabled.ID, 2.4, at))
	require.NoError(t, st.RecordTrigger(ctx, enabled.ID, 2.6, at.Add(time.Hour)))

	got, err := st.GetAlert(ctx, enabled.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TriggerCount)
	require.NotNil(t, got.LastZScore)
	assert.Equal(t, 2.6, *got.LastZScore)
	require.NotNil(t, got.LastTriggered)
	assert.True(t, got.LastTriggered.Equal(at.Add(time.Hour)))

	byPair, err := st.ListAlerts(ctx, "p2", false)
	require.NoError(t, err)
	require.Len(t, byPair, 1)
	assert.Nil(t, byPair[0].ThresholdLow)

	assert.ErrorIs(t, st.RecordTrigger(ctx, 404, 1, at), types.ErrNotFound)
	require.NoError(t, st.DeleteAlert(ctx, disabled.ID))
	assert.ErrorIs(t, st.DeleteAlert(ctx, disabled.ID), types.ErrNotFound)
}
