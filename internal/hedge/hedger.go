package hedge

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/hedgex/internal/exchange"
)

// 对冲腿默认参数
const (
	defaultHedgeMaxSlippage  = 0.005
	defaultHedgeMaxRetries   = 3
	defaultHedgeRetryDelay   = time.Second
	defaultFillCheckDelay    = 500 * time.Millisecond
	defaultTradeWindow       = 5 * time.Second
	defaultRecentTradesLimit = 20
)

// HedgeConfig 对冲腿执行参数
type HedgeConfig struct {
	MaxSlippage    float64       // 保护限价允许的最大滑点比例
	MaxRetries     int           // 下单失败的重试次数上限
	RetryDelay     time.Duration // 重试之间的固定间隔
	FillCheckDelay time.Duration // 下单后到查询成交之间的等待
	TradeWindow    time.Duration // 从成交记录回算实际成交价的时间窗口
}

// HedgeExecutor 在对冲交易所用带保护限价的IOC单立即对冲主动腿的成交，
// 并对照下单前的参考价计量实际滑点
type HedgeExecutor struct {
	exchange exchange.Exchange
	cfg      HedgeConfig
	clock    Clock
	observer Observer
	logger   *zap.Logger
}

// NewHedgeExecutor 创建对冲腿执行器
func NewHedgeExecutor(ex exchange.Exchange, cfg HedgeConfig, clock Clock, observer Observer, logger *zap.Logger) *HedgeExecutor {
	if cfg.MaxSlippage <= 0 {
		cfg.MaxSlippage = defaultHedgeMaxSlippage
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultHedgeMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultHedgeRetryDelay
	}
	if cfg.FillCheckDelay <= 0 {
		cfg.FillCheckDelay = defaultFillCheckDelay
	}
	if cfg.TradeWindow <= 0 {
		cfg.TradeWindow = defaultTradeWindow
	}
	if clock == nil {
		clock = NewRealClock()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	return &HedgeExecutor{
		exchange: ex,
		cfg:      cfg,
		clock:    clock,
		observer: observer,
		logger:   logger.With(zap.String("component", "hedge_executor")),
	}
}

// ExecuteMarketHedge 执行对冲腿。买单期望价为卖一、卖单为买一，
// 保护限价为期望价×(1±MaxSlippage)，订单以IOC提交，不会成交在保护价之外。
// 提交失败按固定间隔重试，IOC部分成交时只补剩余数量。
// 滑点超过2×MaxSlippage时状态为slippage_exceeded——仓位同样已建立，
// 是否判回合失败由调用方决定。
func (h *HedgeExecutor) ExecuteMarketHedge(ctx context.Context, symbol, side string, size float64, reduceOnly bool) *LegFillResult {
	start := h.clock.Now()
	result := &LegFillResult{Status: LegStatusFailed, Side: side}

	target := decimal.NewFromFloat(size)
	totalSize := decimal.Zero
	totalValue := decimal.Zero
	remaining := size
	estimated := false

	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			result.ErrMsg = err.Error()
			break
		}
		result.Retries = attempt

		if attempt > 0 {
			if err := h.clock.Sleep(ctx, h.cfg.RetryDelay); err != nil {
				result.ErrMsg = err.Error()
				break
			}
		}

		book, err := h.exchange.GetOrderBook(ctx, symbol)
		if err != nil {
			result.ErrMsg = fmt.Sprintf("获取盘口失败: %v", err)
			continue
		}

		// 期望成交价与保护限价
		var expected, limit float64
		if side == exchange.SideBuy {
			expected = book.Ask
			limit = expected * (1 + h.cfg.MaxSlippage)
		} else {
			expected = book.Bid
			limit = expected * (1 - h.cfg.MaxSlippage)
		}
		if result.ExpectedPrice == 0 {
			result.ExpectedPrice = expected
		}

		order, err := h.exchange.PlaceOrder(ctx, &exchange.OrderRequest{
			Symbol:      symbol,
			Side:        side,
			Type:        exchange.OrderTypeLimit,
			TimeInForce: "IOC",
			Size:        remaining,
			Price:       limit,
			ReduceOnly:  reduceOnly,
		})
		if err != nil {
			result.ErrMsg = fmt.Sprintf("对冲下单失败: %v", err)
			h.logger.Warn("对冲下单失败",
				zap.Error(err),
				zap.String("symbol", symbol),
				zap.Int("attempt", attempt))
			continue
		}

		result.Attempts = append(result.Attempts, OrderAttempt{
			OrderID:   order.OrderID,
			Price:     limit,
			Size:      remaining,
			Side:      side,
			Timestamp: h.clock.Now(),
		})
		h.observer.OnEvent(&Event{
			Type:    EventOrderPlaced,
			Message: "对冲腿IOC单已提交",
			Fields: map[string]interface{}{
				"symbol":        symbol,
				"side":          side,
				"size":          remaining,
				"expectedPrice": expected,
				"limitPrice":    limit,
				"orderId":       order.OrderID,
				"attempt":       attempt,
			},
			Timestamp: h.clock.Now(),
		})

		// 等待成交回报落地后查询最终状态
		if err := h.clock.Sleep(ctx, h.cfg.FillCheckDelay); err != nil {
			result.ErrMsg = err.Error()
			break
		}
		filledSize := order.Filled
		final, err := h.exchange.GetOrder(ctx, symbol, order.OrderID)
		if err != nil {
			h.logger.Warn("查询对冲订单失败",
				zap.Error(err),
				zap.String("orderId", order.OrderID))
			final = order
		} else {
			filledSize = final.Filled
		}

		if filledSize <= 0 {
			result.ErrMsg = "IOC订单未成交"
			continue
		}

		// 实际成交价：优先从最近成交记录回算加权均价
		actual, est := h.resolveFillPrice(ctx, symbol, side, order.OrderID, final, expected)
		estimated = estimated || est

		fs := decimal.NewFromFloat(filledSize)
		totalSize = totalSize.Add(fs)
		totalValue = totalValue.Add(fs.Mul(decimal.NewFromFloat(actual)))
		remaining, _ = target.Sub(totalSize).Float64()

		if target.Sub(totalSize).Sign() <= 0 {
			break
		}
		result.ErrMsg = "IOC订单部分成交"
	}

	result.FilledSize, _ = totalSize.Float64()
	result.PriceEstimated = estimated
	if totalSize.Sign() > 0 {
		result.AvgPrice, _ = totalValue.Div(totalSize).Float64()
	}

	switch {
	case totalSize.Sign() > 0 && totalSize.GreaterThanOrEqual(target):
		result.ErrMsg = ""
		result.Slippage = calculateSlippage(side, result.ExpectedPrice, result.AvgPrice)
		if result.Slippage > 2*h.cfg.MaxSlippage {
			// 严重滑点:仓位已存在,标记后交由调用方决策
			result.Status = LegStatusSlippageExceeded
		} else {
			result.Status = LegStatusFilled
		}
	case totalSize.Sign() > 0:
		result.Status = LegStatusPartial
		result.Slippage = calculateSlippage(side, result.ExpectedPrice, result.AvgPrice)
	default:
		result.Status = LegStatusFailed
	}
	result.Elapsed = h.clock.Now().Sub(start)

	h.observer.OnEvent(&Event{
		Type:    EventLegFilled,
		Message: "对冲腿执行完成",
		Fields: map[string]interface{}{
			"symbol":     symbol,
			"side":       side,
			"status":     result.Status,
			"filledSize": result.FilledSize,
			"avgPrice":   result.AvgPrice,
			"slippage":   result.Slippage,
			"estimated":  result.PriceEstimated,
			"retries":    result.Retries,
		},
		Timestamp: h.clock.Now(),
	})
	h.logger.Info("对冲腿执行完成",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.String("status", result.Status),
		zap.Float64("filledSize", result.FilledSize),
		zap.Float64("avgPrice", result.AvgPrice),
		zap.Float64("slippage", result.Slippage))

	return result
}

// resolveFillPrice 确定实际成交价：先在时间窗口内的最近成交记录里
// 按订单号汇总加权均价，查不到退回订单回报的成交均价，
// 仍不可得时退回期望价并标记为估算值。
func (h *HedgeExecutor) resolveFillPrice(ctx context.Context, symbol, side, orderID string, final *exchange.Order, expected float64) (float64, bool) {
	trades, err := h.exchange.GetRecentTrades(ctx, symbol, defaultRecentTradesLimit)
	if err == nil {
		cutoff := h.clock.Now().Add(-h.cfg.TradeWindow)
		sumSize := decimal.Zero
		sumValue := decimal.Zero
		for _, t := range trades {
			if t.Timestamp.Before(cutoff) {
				continue
			}
			if t.OrderID != "" && t.OrderID != orderID {
				continue
			}
			if t.OrderID == "" && t.Side != side {
				continue
			}
			ts := decimal.NewFromFloat(t.Size)
			sumSize = sumSize.Add(ts)
			sumValue = sumValue.Add(ts.Mul(decimal.NewFromFloat(t.Price)))
		}
		if sumSize.Sign() > 0 {
			avg, _ := sumValue.Div(sumSize).Float64()
			return avg, false
		}
	} else {
		h.logger.Warn("获取成交记录失败",
			zap.Error(err),
			zap.String("symbol", symbol))
	}

	if final != nil && final.AvgFillPrice > 0 {
		return final.AvgFillPrice, false
	}

	h.logger.Warn("实际成交价不可得，使用期望价估算",
		zap.String("symbol", symbol),
		zap.String("orderId", orderID),
		zap.Float64("expected", expected))
	return expected, true
}

// calculateSlippage 计算相对滑点，正值为不利方向：
// 买单为(实际-期望)/期望，卖单为(期望-实际)/期望
func calculateSlippage(side string, expected, actual float64) float64 {
	if expected <= 0 || actual <= 0 {
		return 0
	}
	e := decimal.NewFromFloat(expected)
	a := decimal.NewFromFloat(actual)
	var s decimal.Decimal
	if side == exchange.SideBuy {
		s = a.Sub(e).Div(e)
	} else {
		s = e.Sub(a).Div(e)
	}
	slippage, _ := s.Float64()
	return slippage
}
