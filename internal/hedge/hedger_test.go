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

func testHedgeConfig() HedgeConfig {
	return HedgeConfig{
		MaxSlippage:    0.005,
		MaxRetries:     2,
		RetryDelay:     time.Second,
		FillCheckDelay: 500 * time.Millisecond,
		TradeWindow:    5 * time.Second,
	}
}

func TestHedgeExecutor_BuyFillWithTradeDerivedPrice(t *testing.T) {
	ex := new(mocks.MockExchange)
	clock := newManualClock()
	h := NewHedgeExecutor(ex, testHedgeConfig(), clock, &captureObserver{}, zaptest.NewLogger(t))
	tradeTime := clock.Now()

	var placed *exchange.OrderRequest
	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 99.8, Ask: 100}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			placed = args.Get(1).(*exchange.OrderRequest)
		}).
		Return(openOrder("h1"), nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "h1").
		Return(&exchange.Order{
			OrderID:      "h1",
			Status:       exchange.OrderStatusClosed,
			Filled:       1.0,
			AvgFillPrice: 100.25,
		}, nil)
	// 成交记录的加权均价优先于订单回报的成交均价
	ex.On("GetRecentTrades", mock.Anything, testSymbol, mock.Anything).
		Return([]*exchange.Trade{
			{TradeID: "t1", OrderID: "h1", Side: exchange.SideBuy, Price: 100.2, Size: 1.0, Timestamp: tradeTime},
		}, nil)

	result := h.ExecuteMarketHedge(context.Background(), testSymbol, exchange.SideBuy, 1.0, false)

	assert.Equal(t, LegStatusFilled, result.Status)
	assert.True(t, result.Filled())
	assert.InDelta(t, 1.0, result.FilledSize, 1e-9)
	assert.InDelta(t, 100.2, result.AvgPrice, 1e-9)
	assert.InDelta(t, 100, result.ExpectedPrice, 1e-9)
	assert.InDelta(t, 0.002, result.Slippage, 1e-9)
	assert.False(t, result.PriceEstimated)

	require.NotNil(t, placed)
	assert.Equal(t, exchange.OrderTypeLimit, placed.Type)
	assert.Equal(t, "IOC", placed.TimeInForce)
	// 保护限价 = 期望价 × (1 + 最大滑点)
	assert.InDelta(t, 100.5, placed.Price, 1e-9)
}

func TestHedgeExecutor_SevereSlippageAfterRetry(t *testing.T) {
	ex := new(mocks.MockExchange)
	h := NewHedgeExecutor(ex, testHedgeConfig(), newManualClock(), &captureObserver{}, zaptest.NewLogger(t))

	// 第一次IOC未成交，重试时行情已大幅走高:
	// 相对首次期望价的滑点超过2倍上限，但仓位确实已建立
	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 99.8, Ask: 100}, nil).Once()
	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 101, Ask: 101.2}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("h1"), nil).Once()
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("h2"), nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "h1").
		Return(&exchange.Order{OrderID: "h1", Status: exchange.OrderStatusCanceled}, nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "h2").
		Return(&exchange.Order{
			OrderID:      "h2",
			Status:       exchange.OrderStatusClosed,
			Filled:       1.0,
			AvgFillPrice: 101.2,
		}, nil)
	ex.On("GetRecentTrades", mock.Anything, testSymbol, mock.Anything).
		Return([]*exchange.Trade{}, nil)

	result := h.ExecuteMarketHedge(context.Background(), testSymbol, exchange.SideBuy, 1.0, false)

	assert.Equal(t, LegStatusSlippageExceeded, result.Status)
	assert.True(t, result.Filled())
	assert.InDelta(t, 1.0, result.FilledSize, 1e-9)
	assert.InDelta(t, 0.012, result.Slippage, 1e-9)
	assert.Equal(t, 1, result.Retries)
}

func TestHedgeExecutor_EstimatedPriceFallback(t *testing.T) {
	ex := new(mocks.MockExchange)
	h := NewHedgeExecutor(ex, testHedgeConfig(), newManualClock(), &captureObserver{}, zaptest.NewLogger(t))

	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 99.8, Ask: 100}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("h1"), nil)
	// 成交记录不可得且订单回报无成交均价
	ex.On("GetOrder", mock.Anything, testSymbol, "h1").
		Return(&exchange.Order{OrderID: "h1", Status: exchange.OrderStatusClosed, Filled: 1.0}, nil)
	ex.On("GetRecentTrades", mock.Anything, testSymbol, mock.Anything).
		Return(nil, errors.New("接口超时"))

	result := h.ExecuteMarketHedge(context.Background(), testSymbol, exchange.SideBuy, 1.0, false)

	assert.Equal(t, LegStatusFilled, result.Status)
	assert.True(t, result.PriceEstimated)
	assert.InDelta(t, 100, result.AvgPrice, 1e-9)
	assert.Zero(t, result.Slippage)
}

func TestHedgeExecutor_PartialFillAccumulates(t *testing.T) {
	ex := new(mocks.MockExchange)
	clock := newManualClock()
	h := NewHedgeExecutor(ex, testHedgeConfig(), clock, &captureObserver{}, zaptest.NewLogger(t))
	tradeTime := clock.Now()

	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 99.8, Ask: 100}, nil).Once()
	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 100.3, Ask: 100.5}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("h1"), nil).Once()
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(openOrder("h2"), nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "h1").
		Return(&exchange.Order{OrderID: "h1", Status: exchange.OrderStatusCanceled, Filled: 0.6}, nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "h2").
		Return(&exchange.Order{OrderID: "h2", Status: exchange.OrderStatusClosed, Filled: 0.4}, nil)
	ex.On("GetRecentTrades", mock.Anything, testSymbol, mock.Anything).
		Return([]*exchange.Trade{
			{TradeID: "t1", OrderID: "h1", Side: exchange.SideBuy, Price: 100, Size: 0.6, Timestamp: tradeTime},
		}, nil).Once()
	ex.On("GetRecentTrades", mock.Anything, testSymbol, mock.Anything).
		Return([]*exchange.Trade{
			{TradeID: "t1", OrderID: "h1", Side: exchange.SideBuy, Price: 100, Size: 0.6, Timestamp: tradeTime},
			{TradeID: "t2", OrderID: "h2", Side: exchange.SideBuy, Price: 100.5, Size: 0.4, Timestamp: tradeTime.Add(2 * time.Second)},
		}, nil)

	result := h.ExecuteMarketHedge(context.Background(), testSymbol, exchange.SideBuy, 1.0, false)

	assert.Equal(t, LegStatusFilled, result.Status)
	assert.InDelta(t, 1.0, result.FilledSize, 1e-9)
	// 加权均价: 0.6×100 + 0.4×100.5
	assert.InDelta(t, 100.2, result.AvgPrice, 1e-9)
	assert.InDelta(t, 0.002, result.Slippage, 1e-9)
	assert.Equal(t, 1, result.Retries)
	assert.Len(t, result.Attempts, 2)
}

func TestHedgeExecutor_SubmitRetriesExhausted(t *testing.T) {
	ex := new(mocks.MockExchange)
	clock := newManualClock()
	h := NewHedgeExecutor(ex, testHedgeConfig(), clock, &captureObserver{}, zaptest.NewLogger(t))

	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 99.8, Ask: 100}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(nil, errors.New("交易所维护中"))

	result := h.ExecuteMarketHedge(context.Background(), testSymbol, exchange.SideBuy, 1.0, false)

	assert.Equal(t, LegStatusFailed, result.Status)
	assert.False(t, result.Filled())
	assert.Zero(t, result.FilledSize)
	assert.Contains(t, result.ErrMsg, "对冲下单失败")
	ex.AssertNumberOfCalls(t, "PlaceOrder", 3)
	// 重试之间按固定间隔等待
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.slept)
}

func TestHedgeExecutor_SellSlippageDirection(t *testing.T) {
	ex := new(mocks.MockExchange)
	clock := newManualClock()
	h := NewHedgeExecutor(ex, testHedgeConfig(), clock, &captureObserver{}, zaptest.NewLogger(t))
	tradeTime := clock.Now()

	var placed *exchange.OrderRequest
	ex.On("GetOrderBook", mock.Anything, testSymbol).
		Return(&exchange.OrderBook{Symbol: testSymbol, Bid: 100, Ask: 100.2}, nil)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			placed = args.Get(1).(*exchange.OrderRequest)
		}).
		Return(openOrder("h1"), nil)
	ex.On("GetOrder", mock.Anything, testSymbol, "h1").
		Return(&exchange.Order{OrderID: "h1", Status: exchange.OrderStatusClosed, Filled: 1.0}, nil)
	ex.On("GetRecentTrades", mock.Anything, testSymbol, mock.Anything).
		Return([]*exchange.Trade{
			{TradeID: "t1", OrderID: "h1", Side: exchange.SideSell, Price: 99.8, Size: 1.0, Timestamp: tradeTime},
		}, nil)

	result := h.ExecuteMarketHedge(context.Background(), testSymbol, exchange.SideSell, 1.0, true)

	assert.Equal(t, LegStatusFilled, result.Status)
	// 卖单期望价为买一，成交价更低为不利方向
	assert.InDelta(t, 100, result.ExpectedPrice, 1e-9)
	assert.InDelta(t, 0.002, result.Slippage, 1e-9)

	require.NotNil(t, placed)
	assert.True(t, placed.ReduceOnly)
	assert.InDelta(t, 99.5, placed.Price, 1e-9)
}
