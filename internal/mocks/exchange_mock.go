package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/hedgex/internal/exchange"
)

// MockExchange 交易所接口的模拟实现
type MockExchange struct {
	mock.Mock
}

// GetExchangeName 获取交易所名称的模拟实现
func (m *MockExchange) GetExchangeName() string {
	args := m.Called()
	return args.String(0)
}

// GetOrderBook 获取盘口的模拟实现
func (m *MockExchange) GetOrderBook(ctx context.Context, symbol string) (*exchange.OrderBook, error) {
	args := m.Called(ctx, symbol)
	if book := args.Get(0); book != nil {
		return book.(*exchange.OrderBook), args.Error(1)
	}
	return nil, args.Error(1)
}

// GetRecentTrades 获取成交记录的模拟实现
func (m *MockExchange) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]*exchange.Trade, error) {
	args := m.Called(ctx, symbol, limit)
	if trades := args.Get(0); trades != nil {
		return trades.([]*exchange.Trade), args.Error(1)
	}
	return nil, args.Error(1)
}

// PlaceOrder 下单的模拟实现
func (m *MockExchange) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
	args := m.Called(ctx, req)
	if order := args.Get(0); order != nil {
		return order.(*exchange.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

// GetOrder 查询订单的模拟实现
func (m *MockExchange) GetOrder(ctx context.Context, symbol, orderID string) (*exchange.Order, error) {
	args := m.Called(ctx, symbol, orderID)
	if order := args.Get(0); order != nil {
		return order.(*exchange.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

// CancelOrder 取消订单的模拟实现
func (m *MockExchange) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	args := m.Called(ctx, symbol, orderID)
	return args.Bool(0), args.Error(1)
}

// GetOpenOrders 获取未完成订单的模拟实现
func (m *MockExchange) GetOpenOrders(ctx context.Context, symbol string) ([]*exchange.Order, error) {
	args := m.Called(ctx, symbol)
	if orders := args.Get(0); orders != nil {
		return orders.([]*exchange.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

// GetPosition 获取持仓的模拟实现
func (m *MockExchange) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	args := m.Called(ctx, symbol)
	if pos := args.Get(0); pos != nil {
		return pos.(*exchange.Position), args.Error(1)
	}
	return nil, args.Error(1)
}

// SetLeverage 设置杠杆的模拟实现
func (m *MockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	args := m.Called(ctx, symbol, leverage)
	return args.Error(0)
}
