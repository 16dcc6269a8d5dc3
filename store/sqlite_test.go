package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gomentum/testutils"
	"github.com/evdnx/gomentum/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), testutils.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePosition(symbol string) *types.Position {
	sig := testutils.PassingSignal(symbol)
	return &types.Position{
		ID:              "pos-" + symbol,
		Symbol:          symbol,
		EntryPrice:      100,
		EntryTime:       testutils.BaseTime,
		OriginalAmount:  8,
		RemainingAmount: 8,
		StopLossPct:     0.045,
		StopLossPrice:   95.5,
		Status:          types.PositionOpen,
		Features:        sig.Features(),
	}
}

func TestPositionBookRoundTrip(t *testing.T) {
	s := openTestStore(t)
	p := samplePosition("SOL")
	require.NoError(t, s.SavePosition(p))

	book, err := s.LoadPositions()
	require.NoError(t, err)
	require.Len(t, book, 1)

	got := book[0]
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Symbol, got.Symbol)
	assert.Equal(t, p.EntryPrice, got.EntryPrice)
	assert.True(t, p.EntryTime.Equal(got.EntryTime))
	assert.Equal(t, p.StopLossPct, got.StopLossPct)
	assert.Equal(t, types.PositionOpen, got.Status)
	assert.Equal(t, p.Features, got.Features)
}

func TestSavePositionUpsertsLifecycleState(t *testing.T) {
	s := openTestStore(t)
	p := samplePosition("SOL")
	require.NoError(t, s.SavePosition(p))

	// TP1 fires: the same row is rewritten, not duplicated.
	p.TP1Hit = true
	p.SoldTP1 = 2
	p.RemainingAmount = 6
	p.TrailingActive = true
	p.TrailingStopPrice = 101.5
	require.NoError(t, s.SavePosition(p))

	book, err := s.LoadPositions()
	require.NoError(t, err)
	require.Len(t, book, 1)
	got := book[0]
	assert.True(t, got.TP1Hit)
	assert.Equal(t, 2.0, got.SoldTP1)
	assert.Equal(t, 6.0, got.RemainingAmount)
	assert.True(t, got.TrailingActive)
	assert.Equal(t, 101.5, got.TrailingStopPrice)
}

func TestDeletePosition(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SavePosition(samplePosition("SOL")))
	require.NoError(t, s.SavePosition(samplePosition("DOT")))
	require.NoError(t, s.DeletePosition("SOL"))

	book, err := s.LoadPositions()
	require.NoError(t, err)
	require.Len(t, book, 1)
	assert.Equal(t, "DOT", book[0].Symbol)
}

func TestTradeRecordsPreserveOrder(t *testing.T) {
	s := openTestStore(t)

	// Insert out of chronological order; the load must come back
	// ordered by exit time, which the learner's holdout split depends
	// on.
	late := testutils.WinRecord("SOL", 4)
	late.ExitTime = testutils.BaseTime.Add(5 * time.Hour)
	early := testutils.LossRecord("DOT", -2)
	early.ExitTime = testutils.BaseTime.Add(1 * time.Hour)

	require.NoError(t, s.AppendTradeRecord(late))
	require.NoError(t, s.AppendTradeRecord(early))

	records, err := s.LoadTradeRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "DOT", records[0].Symbol)
	assert.Equal(t, "SOL", records[1].Symbol)
	assert.Equal(t, types.ExitStopLoss, records[0].ExitReason)
	assert.False(t, records[0].Win)
	assert.True(t, records[1].Win)
	assert.Equal(t, late.Features, records[1].Features)
}

func TestModelBlobRoundTrip(t *testing.T) {
	s := openTestStore(t)

	// No model yet.
	blob, err := s.LoadModel()
	require.NoError(t, err)
	assert.Nil(t, blob)

	require.NoError(t, s.SaveModel([]byte(`{"sample_count":42}`)))
	blob, err = s.LoadModel()
	require.NoError(t, err)
	assert.JSONEq(t, `{"sample_count":42}`, string(blob))

	// Saving again replaces the single row.
	require.NoError(t, s.SaveModel([]byte(`{"sample_count":52}`)))
	blob, err = s.LoadModel()
	require.NoError(t, err)
	assert.JSONEq(t, `{"sample_count":52}`, string(blob))
}

func TestRecordDecision(t *testing.T) {
	s := openTestStore(t)
	sig := testutils.PassingSignal("SOL")

	require.NoError(t, s.RecordDecision(types.Decision{
		Signal:   sig,
		Approved: false,
		Reason:   "counter-trend",
		Notes:    []string{"override: score 85.0 >= 85.0"},
	}))
	require.NoError(t, s.RecordDecision(types.Decision{
		Signal:         sig,
		Approved:       true,
		Confidence:     0.7,
		ConfidenceUsed: true,
	}))
}
