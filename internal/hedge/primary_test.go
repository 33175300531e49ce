package hedge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/hedgex/internal/exchange"
	"github.com/life2you_mini/hedgex/internal/mocks"
)

const testSymbol = "BTC/USDT"

func testPrimaryConfig() PrimaryOrderConfig {
	return PrimaryOrderConfig{
		PriceStrategy: PriceStrategyBest,
		TickSize:      1,
		PollInterval:  time.Second,
		FillTimeout:   2 * time.Second,
		MaxRetries:    2,
		CancelWait:    500 * time.Millisecond,
	}
}

func openOrder(orderID string) *exchange.Order {
	return &exchange.Order{OrderID: orderID, Symbol: testSymbol, Status: exchange.OrderStatusOpen}
}

func TestCalculateLimitPrice(t *testing.T) {
	book := &exchange.OrderBook{Symbol: testSymbol, Bid: 100.4, Ask: 100.9}

	tests := []struct {
		name     string
		side     string
		strategy string
		tickSize float64
		expected float64
	}{
		{"best买单挂买一向下取整", exchange.SideBuy, PriceStrategyBest, 1, 100},
		{"best卖单挂卖一向上取整", exchange.SideSell, PriceStrategyBest, 1, 101},
		{"aggressive买单跨价差吃卖一", exchange.SideBuy, PriceStrategyAggressive, 1, 101},
		{"aggressive卖单跨价差吃买一", exchange.SideSell, PriceStrategyAggressive, 1, 100},
		{"mid买单中间价向下取整", exchange.SideBuy, PriceStrategyMid, 1, 100},
		{"mid卖单中间价向上取整", exchange.SideSell, PriceStrategyMid, 1, 101},
		{"半tick精度", exchange.SideBuy, PriceStrategyMid, 0.5, 100.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := calculateLimitPrice(book, tt.side, tt.strategy, tt.tickSize)
			assert.InDelta(t, tt.expected, price, 1e-12)
		})
	}
}

func TestPrimaryOrderManager_FirstAttemptFill(t *testing.T) {
	ex := new(mocks.MockExchange)
	clock := newManualClock()
	obs := &captureObserver{}
	m := NewPrimaryOrderManager(ex, testPrimaryConfig(), clock, obs, zaptest.NewLogger(t))

	var placed *exchange.OrderRequest
	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 100.4, Ask: 100.9}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			placed = args.Get(1).(*exchange.OrderRequest)
		}).
		Return(openOrder("p1"), nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "p1").
		Return(&exchange.Order{
			OrderID:      "p1",
			Status:       exchange.OrderStatusClosed,
			Filled:       1.0,
			AvgFillPrice: 100,
		}, nil)

	result := m.PlaceAndWait(context.Background(), PrimaryOrder{
		Symbol: testSymbol,
		Side:   exchange.SideBuy,
		Size:   1.0,
	})

	assert.Equal(t, LegStatusFilled, result.Status)
	assert.InDelta(t, 1.0, result.FilledSize, 1e-9)
	assert.InDelta(t, 100, result.AvgPrice, 1e-9)
	assert.InDelta(t, 100, result.ExpectedPrice, 1e-9)
	assert.Zero(t, result.Retries)
	assert.Len(t, result.Attempts, 1)

	require.NotNil(t, placed)
	assert.Equal(t, exchange.OrderTypeLimit, placed.Type)
	assert.InDelta(t, 100, placed.Price, 1e-9)
	assert.InDelta(t, 1.0, placed.Size, 1e-9)
	assert.False(t, placed.ReduceOnly)

	assert.Len(t, obs.byType(EventOrderPlaced), 1)
	assert.Len(t, obs.byType(EventLegFilled), 1)
}

func TestPrimaryOrderManager_PartialThenRepost(t *testing.T) {
	ex := new(mocks.MockExchange)
	clock := newManualClock()
	obs := &captureObserver{}
	m := NewPrimaryOrderManager(ex, testPrimaryConfig(), clock, obs, zaptest.NewLogger(t))

	// 第一次挂单超时撤销，带走0.4的部分成交;重挂按最新盘口补0.6
	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 100.4, Ask: 100.9}, nil).Once()
	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 101.3, Ask: 101.8}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("p1"), nil).Once()
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("p2"), nil)

	ex.On("GetOrder", mock.Anything, testSymbol, "p1").Return(openOrder("p1"), nil).Twice()
	ex.On("CancelOrder", mock.Anything, testSymbol, "p1").Return(true, nil)
	ex.On("GetOpenOrders", mock.Anything, testSymbol).Return([]*exchange.Order{}, nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "p1").
		Return(&exchange.Order{
			OrderID:      "p1",
			Status:       exchange.OrderStatusCanceled,
			Filled:       0.4,
			AvgFillPrice: 100,
		}, nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "p2").
		Return(&exchange.Order{
			OrderID:      "p2",
			Status:       exchange.OrderStatusClosed,
			Filled:       0.6,
			AvgFillPrice: 101,
		}, nil)

	result := m.PlaceAndWait(context.Background(), PrimaryOrder{
		Symbol: testSymbol,
		Side:   exchange.SideBuy,
		Size:   1.0,
	})

	assert.Equal(t, LegStatusFilled, result.Status)
	assert.InDelta(t, 1.0, result.FilledSize, 1e-9)
	// 加权均价: 0.4×100 + 0.6×101
	assert.InDelta(t, 100.6, result.AvgPrice, 1e-9)
	assert.InDelta(t, 100, result.ExpectedPrice, 1e-9)
	assert.Equal(t, 1, result.Retries)

	require.Len(t, result.Attempts, 2)
	assert.InDelta(t, 0.6, result.Attempts[1].Size, 1e-9)
	assert.InDelta(t, 101, result.Attempts[1].Price, 1e-9)

	assert.Len(t, obs.byType(EventOrderCancelled), 1)
}

func TestPrimaryOrderManager_CancelRaceFill(t *testing.T) {
	ex := new(mocks.MockExchange)
	m := NewPrimaryOrderManager(ex, testPrimaryConfig(), newManualClock(), &captureObserver{}, zaptest.NewLogger(t))

	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 100.4, Ask: 100.9}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("p1"), nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "p1").Return(openOrder("p1"), nil).Twice()
	// 撤单与成交竞态:撤单被拒后复查发现订单已完全成交
	ex.On("CancelOrder", mock.Anything, testSymbol, "p1").
		Return(false, errors.New("订单已成交"))
	ex.On("GetOrder", mock.Anything, testSymbol, "p1").
		Return(&exchange.Order{
			OrderID:      "p1",
			Status:       exchange.OrderStatusClosed,
			Filled:       1.0,
			AvgFillPrice: 100,
		}, nil)

	result := m.PlaceAndWait(context.Background(), PrimaryOrder{
		Symbol: testSymbol,
		Side:   exchange.SideBuy,
		Size:   1.0,
	})

	assert.Equal(t, LegStatusFilled, result.Status)
	assert.InDelta(t, 1.0, result.FilledSize, 1e-9)
	assert.Zero(t, result.Retries)
}

func TestPrimaryOrderManager_AllAttemptsTimeout(t *testing.T) {
	cfg := testPrimaryConfig()
	cfg.MaxRetries = 1

	ex := new(mocks.MockExchange)
	m := NewPrimaryOrderManager(ex, cfg, newManualClock(), &captureObserver{}, zaptest.NewLogger(t))

	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 100.4, Ask: 100.9}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("p1"), nil).Once()
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("p2"), nil)
	ex.On("CancelOrder", mock.Anything, testSymbol, mock.Anything).Return(true, nil)
	ex.On("GetOpenOrders", mock.Anything, testSymbol).Return([]*exchange.Order{}, nil)

	for _, orderID := range []string{"p1", "p2"} {
		ex.On("GetOrder", mock.Anything, testSymbol, orderID).Return(openOrder(orderID), nil).Twice()
		ex.On("GetOrder", mock.Anything, testSymbol, orderID).
			Return(&exchange.Order{OrderID: orderID, Status: exchange.OrderStatusCanceled}, nil)
	}

	result := m.PlaceAndWait(context.Background(), PrimaryOrder{
		Symbol: testSymbol,
		Side:   exchange.SideBuy,
		Size:   1.0,
	})

	assert.Equal(t, LegStatusTimeout, result.Status)
	assert.Zero(t, result.FilledSize)
	assert.Equal(t, 1, result.Retries)
	ex.AssertNumberOfCalls(t, "PlaceOrder", 2)
}

func TestPrimaryOrderManager_PlaceErrorExhausted(t *testing.T) {
	ex := new(mocks.MockExchange)
	m := NewPrimaryOrderManager(ex, testPrimaryConfig(), newManualClock(), &captureObserver{}, zaptest.NewLogger(t))

	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 100.4, Ask: 100.9}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(nil, errors.New("余额不足"))

	result := m.PlaceAndWait(context.Background(), PrimaryOrder{
		Symbol: testSymbol,
		Side:   exchange.SideBuy,
		Size:   1.0,
	})

	assert.Equal(t, LegStatusFailed, result.Status)
	assert.Zero(t, result.FilledSize)
	assert.Contains(t, result.ErrMsg, "挂单失败")
	assert.Empty(t, result.Attempts)
	ex.AssertNumberOfCalls(t, "PlaceOrder", 3)
}
