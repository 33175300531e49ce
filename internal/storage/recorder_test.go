package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/hedgex/internal/hedge"
)

// fakeStore 记录落盘调用的Store桩实现
type fakeStore struct {
	rounds    []*hedge.Round
	stats     []*hedge.Stats
	exposures []*hedge.Exposure
	roundErr  error
}

func (f *fakeStore) Initialize(context.Context) error { return nil }
func (f *fakeStore) Close(context.Context) error      { return nil }
func (f *fakeStore) Health(context.Context) error     { return nil }

func (f *fakeStore) StoreRound(_ context.Context, round *hedge.Round) error {
	if f.roundErr != nil {
		return f.roundErr
	}
	f.rounds = append(f.rounds, round)
	return nil
}

func (f *fakeStore) GetRoundByID(context.Context, string) (*hedge.Round, error) {
	return nil, errors.New("未实现")
}

func (f *fakeStore) GetRecentRounds(context.Context, int) ([]*hedge.Round, error) {
	return f.rounds, nil
}

func (f *fakeStore) StoreStats(_ context.Context, stats *hedge.Stats) error {
	f.stats = append(f.stats, stats)
	return nil
}

func (f *fakeStore) GetStats(context.Context) (*hedge.Stats, error) {
	return &hedge.Stats{}, nil
}

func (f *fakeStore) StoreExposure(_ context.Context, exposure *hedge.Exposure) error {
	f.exposures = append(f.exposures, exposure)
	return nil
}

func (f *fakeStore) GetRecentExposures(context.Context, int) ([]*hedge.Exposure, error) {
	return f.exposures, nil
}

func TestRoundRecorder_PersistsTerminalRounds(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRoundRecorder(store, func() hedge.Stats {
		return hedge.Stats{TotalRounds: 3, SuccessRounds: 2}
	}, zaptest.NewLogger(t))

	round := &hedge.Round{ID: "round-1", Symbol: "BTC/USDT", Success: true, StartTime: time.Now()}
	recorder.OnEvent(&hedge.Event{Type: hedge.EventRoundCompleted, Round: round})
	recorder.OnEvent(&hedge.Event{Type: hedge.EventRoundFailed, Round: &hedge.Round{ID: "round-2"}})

	// 非终态事件不落盘
	recorder.OnEvent(&hedge.Event{Type: hedge.EventPhaseChanged, Round: round})
	recorder.OnEvent(&hedge.Event{Type: hedge.EventRoundCompleted})

	require.Len(t, store.rounds, 2)
	assert.Equal(t, "round-1", store.rounds[0].ID)
	assert.Equal(t, "round-2", store.rounds[1].ID)
	require.Len(t, store.stats, 2)
	assert.Equal(t, 3, store.stats[0].TotalRounds)
}

func TestRoundRecorder_PersistsExposures(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRoundRecorder(store, nil, zaptest.NewLogger(t))

	exposure := &hedge.Exposure{
		Exchange:  "Binance",
		Symbol:    "BTC/USDT",
		Side:      "long",
		Size:      1.0,
		Price:     50000,
		Timestamp: time.Now(),
	}
	recorder.OnEvent(&hedge.Event{Type: hedge.EventUnhedgedExposure, Exposure: exposure})
	recorder.OnEvent(&hedge.Event{Type: hedge.EventUnhedgedExposure})

	require.Len(t, store.exposures, 1)
	assert.Equal(t, "Binance", store.exposures[0].Exchange)
}

func TestRoundRecorder_StoreFailureDoesNotPanic(t *testing.T) {
	store := &fakeStore{roundErr: errors.New("redis不可用")}
	recorder := NewRoundRecorder(store, nil, zaptest.NewLogger(t))

	assert.NotPanics(t, func() {
		recorder.OnEvent(&hedge.Event{Type: hedge.EventRoundCompleted, Round: &hedge.Round{ID: "round-1"}})
	})
	assert.Empty(t, store.rounds)
}
