package hedge

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/hedgex/internal/exchange"
)

// 主动腿默认参数
const (
	defaultPollInterval = 500 * time.Millisecond
	defaultFillTimeout  = 60 * time.Second
	defaultMaxRetries   = 3
	defaultCancelWait   = 500 * time.Millisecond
)

// PrimaryOrderConfig 主动腿挂单参数
type PrimaryOrderConfig struct {
	PriceStrategy string        // best / mid / aggressive
	TickSize      float64       // 最小价格变动单位
	PollInterval  time.Duration // 成交轮询间隔
	FillTimeout   time.Duration // 单次挂单等待成交的超时
	MaxRetries    int           // 超时撤单后的重挂次数上限
	CancelWait    time.Duration // 撤单后到确认查询之间的等待
}

// PrimaryOrder 主动腿执行请求
type PrimaryOrder struct {
	Symbol        string
	Side          string
	Size          float64
	ReduceOnly    bool
	PriceStrategy string // 空值使用配置默认策略
}

// PrimaryOrderManager 在主交易所用被动限价单完成目标数量，
// 通过超时撤单重挂容忍venue的成交延迟
type PrimaryOrderManager struct {
	exchange exchange.Exchange
	cfg      PrimaryOrderConfig
	clock    Clock
	observer Observer
	logger   *zap.Logger
}

// NewPrimaryOrderManager 创建主动腿执行器
func NewPrimaryOrderManager(ex exchange.Exchange, cfg PrimaryOrderConfig, clock Clock, observer Observer, logger *zap.Logger) *PrimaryOrderManager {
	if cfg.PriceStrategy == "" {
		cfg.PriceStrategy = PriceStrategyBest
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = 0.01
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = defaultFillTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.CancelWait <= 0 {
		cfg.CancelWait = defaultCancelWait
	}
	if clock == nil {
		clock = NewRealClock()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	return &PrimaryOrderManager{
		exchange: ex,
		cfg:      cfg,
		clock:    clock,
		observer: observer,
		logger:   logger.With(zap.String("component", "primary_order")),
	}
}

// PlaceAndWait 执行主动腿：挂被动限价单、轮询成交、超时撤单后按最新盘口重挂。
// 部分成交跨重试累计，重挂只补剩余数量。本方法不跨重试边界抛错，
// 所有结果都收敛为LegFillResult，由调用方决定后续动作。
func (p *PrimaryOrderManager) PlaceAndWait(ctx context.Context, order PrimaryOrder) *LegFillResult {
	start := p.clock.Now()
	strategy := order.PriceStrategy
	if strategy == "" {
		strategy = p.cfg.PriceStrategy
	}

	result := &LegFillResult{Status: LegStatusFailed, Side: order.Side}

	target := decimal.NewFromFloat(order.Size)
	totalSize := decimal.Zero
	totalValue := decimal.Zero
	remaining := order.Size
	timedOut := false

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			result.ErrMsg = err.Error()
			break
		}
		result.Retries = attempt

		book, err := p.exchange.GetOrderBook(ctx, order.Symbol)
		if err != nil {
			result.ErrMsg = fmt.Sprintf("获取盘口失败: %v", err)
			continue
		}

		price := calculateLimitPrice(book, order.Side, strategy, p.cfg.TickSize)
		placed, err := p.exchange.PlaceOrder(ctx, &exchange.OrderRequest{
			Symbol:     order.Symbol,
			Side:       order.Side,
			Type:       exchange.OrderTypeLimit,
			Size:       remaining,
			Price:      price,
			ReduceOnly: order.ReduceOnly,
		})
		if err != nil {
			result.ErrMsg = fmt.Sprintf("挂单失败: %v", err)
			continue
		}

		result.Attempts = append(result.Attempts, OrderAttempt{
			OrderID:   placed.OrderID,
			Price:     price,
			Size:      remaining,
			Side:      order.Side,
			Timestamp: p.clock.Now(),
		})
		p.observer.OnEvent(&Event{
			Type:    EventOrderPlaced,
			Message: "主动腿限价单已提交",
			Fields: map[string]interface{}{
				"symbol":  order.Symbol,
				"side":    order.Side,
				"price":   price,
				"size":    remaining,
				"orderId": placed.OrderID,
				"attempt": attempt,
			},
			Timestamp: p.clock.Now(),
		})

		filled, avgPrice, hitTimeout := p.waitForFill(ctx, order.Symbol, placed.OrderID, price)
		timedOut = hitTimeout
		if filled > 0 {
			fs := decimal.NewFromFloat(filled)
			totalSize = totalSize.Add(fs)
			totalValue = totalValue.Add(fs.Mul(decimal.NewFromFloat(avgPrice)))
			remaining, _ = target.Sub(totalSize).Float64()
		}
		if target.Sub(totalSize).Sign() <= 0 {
			break
		}
	}

	result.FilledSize, _ = totalSize.Float64()
	if totalSize.Sign() > 0 {
		result.AvgPrice, _ = totalValue.Div(totalSize).Float64()
	}
	if len(result.Attempts) > 0 {
		result.ExpectedPrice = result.Attempts[0].Price
	}

	switch {
	case totalSize.Sign() > 0 && totalSize.GreaterThanOrEqual(target):
		result.Status = LegStatusFilled
		result.ErrMsg = ""
	case totalSize.Sign() > 0:
		result.Status = LegStatusPartial
	case timedOut:
		result.Status = LegStatusTimeout
	default:
		result.Status = LegStatusFailed
	}
	result.Elapsed = p.clock.Now().Sub(start)

	p.observer.OnEvent(&Event{
		Type:    EventLegFilled,
		Message: "主动腿执行完成",
		Fields: map[string]interface{}{
			"symbol":     order.Symbol,
			"side":       order.Side,
			"status":     result.Status,
			"filledSize": result.FilledSize,
			"avgPrice":   result.AvgPrice,
			"retries":    result.Retries,
		},
		Timestamp: p.clock.Now(),
	})
	p.logger.Info("主动腿执行完成",
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side),
		zap.String("status", result.Status),
		zap.Float64("filledSize", result.FilledSize),
		zap.Float64("avgPrice", result.AvgPrice),
		zap.Int("retries", result.Retries))

	return result
}

// waitForFill 轮询订单直至终态或超时，超时走撤单确认流程。
// 返回该订单的最终成交数量、成交均价以及是否以超时告终。
func (p *PrimaryOrderManager) waitForFill(ctx context.Context, symbol, orderID string, limitPrice float64) (float64, float64, bool) {
	deadline := p.clock.Now().Add(p.cfg.FillTimeout)

	for {
		if err := p.clock.Sleep(ctx, p.cfg.PollInterval); err != nil {
			// 取消请求也要先把挂着的订单撤掉
			break
		}

		order, err := p.exchange.GetOrder(ctx, symbol, orderID)
		if err != nil {
			p.logger.Warn("查询订单状态失败",
				zap.Error(err),
				zap.String("orderId", orderID))
		} else if order.IsFinal() {
			// 完全成交、外部撤单或拒单，带走已成交部分
			return order.Filled, orderFillPrice(order, limitPrice), false
		}

		if !p.clock.Now().Before(deadline) {
			break
		}
	}

	final := p.cancelAndConfirm(ctx, symbol, orderID)
	if final != nil {
		return final.Filled, orderFillPrice(final, limitPrice), final.Status != exchange.OrderStatusClosed
	}
	return 0, 0, true
}

// cancelAndConfirm 撤单后等待片刻并复核未完成订单列表，
// 订单已不在列表中即撤单成功。撤单失败时再查一次订单状态，
// 因为订单可能在超时检查与撤单之间的竞态中已经成交。
func (p *PrimaryOrderManager) cancelAndConfirm(ctx context.Context, symbol, orderID string) *exchange.Order {
	_, cancelErr := p.exchange.CancelOrder(ctx, symbol, orderID)
	if cancelErr != nil {
		order, err := p.exchange.GetOrder(ctx, symbol, orderID)
		if err != nil {
			p.logger.Warn("撤单失败且订单状态不可查",
				zap.Error(err),
				zap.String("orderId", orderID))
			return nil
		}
		return order
	}

	p.observer.OnEvent(&Event{
		Type:    EventOrderCancelled,
		Message: "主动腿订单已撤销",
		Fields: map[string]interface{}{
			"symbol":  symbol,
			"orderId": orderID,
		},
		Timestamp: p.clock.Now(),
	})

	if err := p.clock.Sleep(ctx, p.cfg.CancelWait); err != nil {
		return nil
	}

	open, err := p.exchange.GetOpenOrders(ctx, symbol)
	if err == nil {
		for _, o := range open {
			if o.OrderID == orderID {
				// 仍在未完成列表中，保守处理为可能已成交
				p.logger.Warn("撤单后订单仍在未完成列表",
					zap.String("orderId", orderID))
				return o
			}
		}
	}

	// 已从列表消失，取最终快照拿到已成交部分
	order, err := p.exchange.GetOrder(ctx, symbol, orderID)
	if err != nil {
		p.logger.Warn("撤单确认后查询订单失败",
			zap.Error(err),
			zap.String("orderId", orderID))
		return nil
	}
	return order
}

// calculateLimitPrice 按定价策略计算限价并取整到tick：
// best用己方最优价（买一/卖一）被动等待；aggressive跨越价差接近必成交；
// mid取中间价。买单向下取整、卖单向上取整（aggressive方向相反），
// 不产生非整tick价格。
func calculateLimitPrice(book *exchange.OrderBook, side, strategy string, tickSize float64) float64 {
	tick := decimal.NewFromFloat(tickSize)
	var raw decimal.Decimal
	roundUp := false

	switch strategy {
	case PriceStrategyAggressive:
		if side == exchange.SideBuy {
			raw = decimal.NewFromFloat(book.Ask)
			roundUp = true
		} else {
			raw = decimal.NewFromFloat(book.Bid)
		}
	case PriceStrategyMid:
		raw = decimal.NewFromFloat(book.Mid())
		roundUp = side == exchange.SideSell
	default: // best
		if side == exchange.SideBuy {
			raw = decimal.NewFromFloat(book.Bid)
		} else {
			raw = decimal.NewFromFloat(book.Ask)
			roundUp = true
		}
	}

	ticks := raw.Div(tick)
	if roundUp {
		ticks = ticks.Ceil()
	} else {
		ticks = ticks.Floor()
	}
	price, _ := ticks.Mul(tick).Float64()
	return price
}

// orderFillPrice 订单成交价：优先成交均价，其次委托价，最后退回限价
func orderFillPrice(order *exchange.Order, fallback float64) float64 {
	if order.AvgFillPrice > 0 {
		return order.AvgFillPrice
	}
	if order.Price > 0 {
		return order.Price
	}
	return fallback
}
