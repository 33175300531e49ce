package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
)

// BinanceClient 币安交易所客户端（USDⓈ-M合约）
type BinanceClient struct {
	exchange *ccxt.Binance
	logger   *zap.Logger
}

// NewBinanceClient 创建新的币安客户端
func NewBinanceClient(apiKey, apiSecret string, logger *zap.Logger) *BinanceClient {
	// 创建CCXT的Binance实例
	binanceInstance := ccxt.NewBinance(map[string]interface{}{
		"apiKey":          apiKey,
		"secret":          apiSecret,
		"enableRateLimit": true,
	})

	// 加载市场信息
	go func() {
		<-binanceInstance.LoadMarkets()
		logger.Info("Binance市场数据加载完成")
	}()

	return &BinanceClient{
		exchange: &binanceInstance,
		logger:   logger,
	}
}

// GetExchangeName 获取交易所名称
func (b *BinanceClient) GetExchangeName() string {
	return "Binance"
}

// GetOrderBook 获取盘口最优报价
func (b *BinanceClient) GetOrderBook(ctx context.Context, symbol string) (*OrderBook, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	params := map[string]interface{}{
		"limit": 5,
	}
	res := <-b.exchange.Core.FetchOrderBook(formattedSymbol, nil, params)
	if ccxt.IsError(res) {
		err := ccxt.CreateReturnError(res)
		b.logger.Error("获取币安盘口失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("获取币安盘口失败: %w", err)
	}

	orderBook, _ := res.(map[string]interface{})
	bids, _ := orderBook["bids"].([]interface{})
	asks, _ := orderBook["asks"].([]interface{})
	if len(bids) == 0 || len(asks) == 0 {
		return nil, fmt.Errorf("币安盘口数据为空: %s", symbol)
	}

	bidPrice, bidSize := parseBookLevel(bids[0])
	askPrice, askSize := parseBookLevel(asks[0])
	if bidPrice <= 0 || askPrice <= 0 {
		return nil, fmt.Errorf("币安盘口价格格式错误: %s", symbol)
	}

	return &OrderBook{
		Symbol:    symbol,
		Bid:       bidPrice,
		Ask:       askPrice,
		BidSize:   bidSize,
		AskSize:   askSize,
		Timestamp: time.Now(),
	}, nil
}

// PlaceOrder 创建合约订单
func (b *BinanceClient) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	formattedSymbol := formatBinanceSymbol(req.Symbol)

	// 准备参数
	params := map[string]interface{}{
		"marginMode": "cross", // 全仓模式
	}
	if req.TimeInForce != "" {
		params["timeInForce"] = req.TimeInForce
	}
	if req.ReduceOnly {
		params["reduceOnly"] = true
	}

	// 创建订单
	var res interface{}
	if req.Type == OrderTypeLimit {
		res = <-b.exchange.Core.CreateOrder(formattedSymbol, req.Type, req.Side, req.Size, req.Price, params)
	} else {
		res = <-b.exchange.Core.CreateOrder(formattedSymbol, req.Type, req.Side, req.Size, nil, params)
	}

	if ccxt.IsError(res) {
		err := ccxt.CreateReturnError(res)
		b.logger.Error("创建币安订单失败",
			zap.Error(err),
			zap.String("symbol", req.Symbol),
			zap.String("side", req.Side),
			zap.String("type", req.Type),
			zap.Float64("size", req.Size))
		return nil, fmt.Errorf("创建币安订单失败: %w", err)
	}

	order, _ := res.(map[string]interface{})
	result := parseCCXTOrder(order)
	if result.OrderID == "" {
		return nil, fmt.Errorf("订单ID不存在或格式错误")
	}

	// 下单回执可能不带数量信息，用请求值补齐
	if result.Size == 0 {
		result.Size = req.Size
		result.Remaining = req.Size - result.Filled
	}
	if result.Side == "" {
		result.Side = req.Side
	}
	result.Symbol = req.Symbol

	b.logger.Info("成功创建订单",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("type", req.Type),
		zap.String("orderId", result.OrderID))

	return result, nil
}

// GetOrder 查询订单状态
func (b *BinanceClient) GetOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	res := <-b.exchange.Core.FetchOrder(orderID, formattedSymbol, nil)
	if ccxt.IsError(res) {
		err := ccxt.CreateReturnError(res)
		b.logger.Error("查询币安订单失败",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("orderId", orderID))
		return nil, fmt.Errorf("查询币安订单失败: %w", err)
	}

	order, _ := res.(map[string]interface{})
	result := parseCCXTOrder(order)
	result.Symbol = symbol
	return result, nil
}

// CancelOrder 取消订单，返回交易所是否接受了取消请求
func (b *BinanceClient) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	res := <-b.exchange.Core.CancelOrder(orderID, formattedSymbol, nil)
	if ccxt.IsError(res) {
		err := ccxt.CreateReturnError(res)
		b.logger.Warn("取消币安订单失败",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("orderId", orderID))
		return false, fmt.Errorf("取消币安订单失败: %w", err)
	}

	return true, nil
}

// GetOpenOrders 获取未完成订单列表
func (b *BinanceClient) GetOpenOrders(ctx context.Context, symbol string) ([]*Order, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	res := <-b.exchange.Core.FetchOpenOrders(formattedSymbol, nil, nil, nil)
	if ccxt.IsError(res) {
		err := ccxt.CreateReturnError(res)
		b.logger.Error("获取币安未完成订单失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("获取币安未完成订单失败: %w", err)
	}

	openOrders, _ := res.([]interface{})
	result := make([]*Order, 0, len(openOrders))
	for _, raw := range openOrders {
		item, ok := raw.(map[string]interface{})
		if !ok {
			b.logger.Warn("订单数据格式错误", zap.String("symbol", symbol))
			continue
		}
		o := parseCCXTOrder(item)
		o.Symbol = symbol
		result = append(result, o)
	}

	return result, nil
}

// GetRecentTrades 获取最近的账户成交记录
func (b *BinanceClient) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]*Trade, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	res := <-b.exchange.Core.FetchMyTrades(formattedSymbol, nil, int64(limit), nil)
	if ccxt.IsError(res) {
		err := ccxt.CreateReturnError(res)
		b.logger.Error("获取币安成交记录失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("获取币安成交记录失败: %w", err)
	}

	trades, _ := res.([]interface{})
	result := make([]*Trade, 0, len(trades))
	for _, raw := range trades {
		item, ok := raw.(map[string]interface{})
		if !ok {
			b.logger.Warn("成交数据格式错误", zap.String("symbol", symbol))
			continue
		}
		t := parseCCXTTrade(item)
		t.Symbol = symbol
		result = append(result, t)
	}

	return result, nil
}

// GetPosition 获取持仓快照，无持仓时返回nil
func (b *BinanceClient) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	res := <-b.exchange.Core.FetchPosition(formattedSymbol, nil)
	if ccxt.IsError(res) {
		err := ccxt.CreateReturnError(res)
		b.logger.Error("获取币安持仓失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("获取币安持仓失败: %w", err)
	}

	position, _ := res.(map[string]interface{})
	size := ccxtFloat(position, "contracts")
	if size == 0 {
		return nil, nil
	}

	return &Position{
		Symbol:     symbol,
		Side:       strings.ToLower(ccxtString(position, "side")),
		Size:       size,
		EntryPrice: ccxtFloat(position, "entryPrice"),
	}, nil
}

// SetLeverage 设置杠杆倍数
func (b *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	formattedSymbol := formatBinanceSymbol(symbol)

	// 设置杠杆
	params := map[string]interface{}{
		"leverage": leverage,
	}

	res := <-b.exchange.Core.SetLeverage(leverage, formattedSymbol, params)
	if ccxt.IsError(res) {
		err := ccxt.CreateReturnError(res)
		b.logger.Error("设置币安杠杆失败",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.Int("leverage", leverage))
		return fmt.Errorf("设置币安杠杆失败: %w", err)
	}

	b.logger.Info("成功设置杠杆",
		zap.String("symbol", symbol),
		zap.Int("leverage", leverage))
	return nil
}

// 辅助函数：将BTC/USDT格式的交易对转换为Binance合约使用的格式
func formatBinanceSymbol(symbol string) string {
	// 币安合约通常使用BTCUSDT格式（不带斜杠）
	return strings.ReplaceAll(symbol, "/", "")
}
