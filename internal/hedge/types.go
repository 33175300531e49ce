package hedge

import (
	"time"
)

// 腿执行状态
const (
	LegStatusFilled           = "filled"
	LegStatusPartial          = "partial"
	LegStatusTimeout          = "timeout"
	LegStatusFailed           = "failed"
	LegStatusSlippageExceeded = "slippage_exceeded"
)

// 限价定价策略
const (
	PriceStrategyBest       = "best"       // 被动挂在己方最优价
	PriceStrategyMid        = "mid"        // 挂在买卖中间价
	PriceStrategyAggressive = "aggressive" // 跨越价差，接近必成交
)

// Phase 对冲回合所处阶段
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhasePlacingPrimary Phase = "PLACING_PRIMARY"
	PhaseWaitingPrimary Phase = "WAITING_PRIMARY_FILL"
	PhaseHedging        Phase = "HEDGING"
	PhasePositionOpen   Phase = "POSITION_OPEN"
	PhaseHolding        Phase = "HOLDING"
	PhaseClosingPrimary Phase = "CLOSING_PRIMARY"
	PhaseClosingHedge   Phase = "CLOSING_HEDGE"
	PhaseCompleted      Phase = "COMPLETED"
	PhaseError          Phase = "ERROR"
)

// OrderAttempt 单次挂单记录，随所属LegFillResult保留用于审计
type OrderAttempt struct {
	OrderID   string    `json:"order_id"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      string    `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// LegFillResult 单腿执行结果。
// AvgPrice是跨重试累计的所有部分成交的数量加权均价，
// FilledSize不会超过请求数量。
type LegFillResult struct {
	Status         string         `json:"status"`
	Side           string         `json:"side"`
	FilledSize     float64        `json:"filled_size"`
	AvgPrice       float64        `json:"avg_price"`
	ExpectedPrice  float64        `json:"expected_price"`
	Slippage       float64        `json:"slippage"`
	PriceEstimated bool           `json:"price_estimated"` // 实际成交价不可得，用期望价估算
	Retries        int            `json:"retries"`
	Elapsed        time.Duration  `json:"elapsed"`
	Attempts       []OrderAttempt `json:"attempts,omitempty"`
	ErrMsg         string         `json:"err_msg,omitempty"`
}

// Filled 该腿是否已建立仓位（严重滑点的腿仓位同样存在）
func (r *LegFillResult) Filled() bool {
	if r == nil {
		return false
	}
	return r.Status == LegStatusFilled || r.Status == LegStatusSlippageExceeded
}

// LegPair 同一阶段中两腿的执行结果
type LegPair struct {
	Primary *LegFillResult `json:"primary,omitempty"`
	Hedge   *LegFillResult `json:"hedge,omitempty"`
}

// Exposure 未对冲敞口：一腿已成交而对腿未能建立
type Exposure struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"` // "long" / "short"
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// PnL 回合盈亏，主动腿为(平仓价-开仓价)×数量，对冲腿取反
type PnL struct {
	PrimaryLeg float64 `json:"primary_leg"`
	HedgeLeg   float64 `json:"hedge_leg"`
	Total      float64 `json:"total"`
	Estimated  bool    `json:"estimated"` // 任一腿成交价为估算值
}

// Round 一个完整的开仓-持仓-平仓回合
type Round struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Size        float64   `json:"size"`
	PrimarySide string    `json:"primary_side"` // 主动腿开仓方向，对冲腿取反
	Phase       Phase     `json:"phase"`
	Open        *LegPair  `json:"open,omitempty"`
	Close       *LegPair  `json:"close,omitempty"`
	Unhedged    *Exposure `json:"unhedged,omitempty"`
	PnL         *PnL      `json:"pnl,omitempty"`
	Success     bool      `json:"success"`
	ErrMsg      string    `json:"err_msg,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// Stats 跨回合累计统计，只增不重置
type Stats struct {
	TotalRounds   int     `json:"total_rounds"`
	SuccessRounds int     `json:"success_rounds"`
	FailedRounds  int     `json:"failed_rounds"`
	TotalVolume   float64 `json:"total_volume"` // 开仓名义金额累计
	TotalPnL      float64 `json:"total_pnl"`
}

// FeeConfig 单边费率
type FeeConfig struct {
	Taker float64 `json:"taker"`
	Maker float64 `json:"maker"`
}

// SpreadInfo 双边盘口价差快照
type SpreadInfo struct {
	Symbol          string    `json:"symbol"`
	PrimaryExchange string    `json:"primary_exchange"`
	HedgeExchange   string    `json:"hedge_exchange"`
	PrimaryBid      float64   `json:"primary_bid"`
	PrimaryAsk      float64   `json:"primary_ask"`
	HedgeBid        float64   `json:"hedge_bid"`
	HedgeAsk        float64   `json:"hedge_ask"`
	// 主动腿买入、对冲腿卖出方向的价差率，以及扣除双边taker费后的净值
	SpreadBuyPrimary float64 `json:"spread_buy_primary"`
	NetBuyPrimary    float64 `json:"net_buy_primary"`
	// 反方向
	SpreadSellPrimary float64   `json:"spread_sell_primary"`
	NetSellPrimary    float64   `json:"net_sell_primary"`
	Timestamp         time.Time `json:"timestamp"`
}
