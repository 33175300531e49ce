package exchange

import (
	"context"
	"time"
)

// 订单方向
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// OppositeSide 返回相反方向
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// 订单类型
const (
	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

// 订单状态（统一为CCXT风格的小写状态）
const (
	OrderStatusOpen     = "open"
	OrderStatusClosed   = "closed"
	OrderStatusCanceled = "canceled"
	OrderStatusRejected = "rejected"
)

// OrderBook 盘口最优报价
type OrderBook struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	BidSize   float64   `json:"bid_size"`
	AskSize   float64   `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid 中间价
func (ob *OrderBook) Mid() float64 {
	return (ob.Bid + ob.Ask) / 2
}

// OrderRequest 下单请求
type OrderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Type        string  `json:"type"`
	Size        float64 `json:"size"`
	Price       float64 `json:"price"`         // 市价单可为0
	TimeInForce string  `json:"time_in_force"` // "GTC" 或 "IOC"，空值由交易所默认
	ReduceOnly  bool    `json:"reduce_only"`
}

// Order 订单快照
type Order struct {
	OrderID      string    `json:"order_id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Price        float64   `json:"price"`
	Size         float64   `json:"size"`
	Filled       float64   `json:"filled"`
	Remaining    float64   `json:"remaining"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Timestamp    time.Time `json:"timestamp"`
}

// IsFinal 订单是否已到达终态
func (o *Order) IsFinal() bool {
	return o.Status == OrderStatusClosed ||
		o.Status == OrderStatusCanceled ||
		o.Status == OrderStatusRejected
}

// Trade 成交记录
type Trade struct {
	TradeID   string    `json:"trade_id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Position 持仓快照
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // "long" / "short"
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
}

// Exchange 交易所能力接口：对冲引擎只依赖这组操作，
// 任何实现了该接口的交易所都可以充当主动腿或对冲腿
type Exchange interface {
	// 基础信息
	GetExchangeName() string

	// 行情相关
	GetOrderBook(ctx context.Context, symbol string) (*OrderBook, error)
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]*Trade, error)

	// 交易相关
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]*Order, error)

	// 账户相关
	GetPosition(ctx context.Context, symbol string) (*Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// ExchangeFactory 交易所工厂，按名称索引已注册的交易所实例
type ExchangeFactory struct {
	exchanges map[string]Exchange
}

// NewExchangeFactory 创建交易所工厂
func NewExchangeFactory() *ExchangeFactory {
	return &ExchangeFactory{
		exchanges: make(map[string]Exchange),
	}
}

// Register 注册交易所实例
func (f *ExchangeFactory) Register(name string, exchange Exchange) {
	f.exchanges[name] = exchange
}

// Get 获取交易所实例
func (f *ExchangeFactory) Get(name string) (Exchange, bool) {
	exchange, exists := f.exchanges[name]
	return exchange, exists
}

// GetAll 获取所有交易所实例
func (f *ExchangeFactory) GetAll() []Exchange {
	var result []Exchange
	for _, exchange := range f.exchanges {
		result = append(result, exchange)
	}
	return result
}
