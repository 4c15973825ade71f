package results

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	store.now = func() time.Time {
		return time.Date(2024, 5, 10, 12, 30, 45, 0, time.UTC)
	}

	return store
}

func TestSaveModelResult(t *testing.T) {
	t.Run("profitable run gets the POS prefix", func(t *testing.T) {
		store := newTestStore(t)

		orders := []types.Order{{
			ID:        1,
			Action:    types.SideBuy,
			Amount:    2,
			Price:     100,
			Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			Fee:       0.15,
		}}

		path, err := store.SaveModelResult(map[string]int{"short_period": 9}, 1200, orders, "BTC/USDT", 1000)
		require.NoError(t, err)
		assert.Equal(t, "POS_BTC_USDT_20240510_123045.json", filepath.Base(path))

		payload, err := os.ReadFile(path)
		require.NoError(t, err)

		var decoded struct {
			ModelParams  map[string]int `json:"model_params"`
			FinalCapital float64        `json:"final_capital"`
			Orders       []types.Order  `json:"orders"`
		}

		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, 9, decoded.ModelParams["short_period"])
		assert.Equal(t, 1200.0, decoded.FinalCapital)
		require.Len(t, decoded.Orders, 1)
		assert.Equal(t, types.SideBuy, decoded.Orders[0].Action)
	})

	t.Run("losing run gets the NEG prefix", func(t *testing.T) {
		store := newTestStore(t)

		path, err := store.SaveModelResult(nil, 900, nil, "ETH/USDT", 1000)
		require.NoError(t, err)
		assert.Equal(t, "NEG_ETH_USDT_20240510_123045.json", filepath.Base(path))
	})

	t.Run("break-even counts as NEG", func(t *testing.T) {
		store := newTestStore(t)

		path, err := store.SaveModelResult(nil, 1000, nil, "BTCUSDT", 1000)
		require.NoError(t, err)
		assert.Equal(t, "NEG_BTCUSDT_20240510_123045.json", filepath.Base(path))
	})
}

func TestTrialLedger(t *testing.T) {
	store := newTestStore(t)
	runID := uuid.NewString()

	require.NoError(t, store.RecordTrial(TrialRecord{
		RunID:       runID,
		Symbol:      "BTC/USDT",
		TrialNumber: 0,
		Params:      `{"short_period":9}`,
		SharpeRatio: 1.25,
		FinalValue:  1100,
	}))
	require.NoError(t, store.RecordTrial(TrialRecord{
		RunID:       runID,
		Symbol:      "BTC/USDT",
		TrialNumber: 1,
		Params:      `{"short_period":40}`,
		SharpeRatio: math.Inf(-1),
		FinalValue:  math.Inf(-1),
	}))

	records, err := store.Trials(runID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 0, records[0].TrialNumber)
	assert.Equal(t, 1.25, records[0].SharpeRatio)
	assert.Equal(t, `{"short_period":9}`, records[0].Params)

	// Failed trials keep their -Inf score in the ledger.
	assert.True(t, math.IsInf(records[1].SharpeRatio, -1))

	t.Run("other runs stay invisible", func(t *testing.T) {
		records, err := store.Trials(uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestExportTrialsCSV(t *testing.T) {
	store := newTestStore(t)
	runID := uuid.NewString()

	require.NoError(t, store.RecordTrial(TrialRecord{
		RunID:       runID,
		Symbol:      "BTC/USDT",
		TrialNumber: 0,
		Params:      `{"short_period":9}`,
		SharpeRatio: 0.8,
		FinalValue:  1050,
	}))

	path, err := store.ExportTrialsCSV("BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "trials_BTC_USDT.csv", filepath.Base(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "trial_number")
	assert.Contains(t, string(content), runID)
}
