package hedge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/hedgex/internal/exchange"
)

// 回合错误分类
var (
	ErrRoundInProgress   = errors.New("已有进行中的对冲回合")
	ErrAdmissionRejected = errors.New("风控拒绝开仓")
	ErrUnhedgedExposure  = errors.New("存在未对冲敞口")
	ErrRoundFailed       = errors.New("对冲回合失败")
)

// 编排默认参数
const (
	defaultHedgeRecoveryRetries = 3
	defaultHedgeRecoveryDelay   = 2 * time.Second
	stopCheckInterval           = time.Second
)

// RiskGuard 开仓准入与损失记账，由风控模块实现
type RiskGuard interface {
	CanOpenPosition(symbol string, size, price float64, currentPositions []float64) (bool, string)
	RecordLoss(amount float64)
	CheckPositionImbalance(primarySize, hedgeSize float64) (bool, float64)
	EmergencyStopped() bool
}

// PrimaryExecutor 主动腿执行能力
type PrimaryExecutor interface {
	PlaceAndWait(ctx context.Context, order PrimaryOrder) *LegFillResult
}

// HedgeLegExecutor 对冲腿执行能力
type HedgeLegExecutor interface {
	ExecuteMarketHedge(ctx context.Context, symbol, side string, size float64, reduceOnly bool) *LegFillResult
}

// Config 编排器配置
type Config struct {
	Symbol        string
	Size          float64
	PrimarySide   string        // 主动腿开仓方向，默认buy
	HoldTime      time.Duration // 0表示开仓后立即平仓
	RoundInterval time.Duration // 循环模式下回合之间的间隔
	MaxRounds     int
	StopOnError   bool

	// 对冲腿的恢复性重试，独立于执行器内部的提交重试
	HedgeRecoveryRetries int
	HedgeRecoveryDelay   time.Duration

	Primary     PrimaryOrderConfig
	Hedge       HedgeConfig
	PrimaryFees FeeConfig
	HedgeFees   FeeConfig
}

// Deps 编排器依赖。Primary/Hedger为nil时基于对应交易所构建默认实现
type Deps struct {
	PrimaryExchange exchange.Exchange
	HedgeExchange   exchange.Exchange
	Primary         PrimaryExecutor
	Hedger          HedgeLegExecutor
	Risk            RiskGuard
	Observer        Observer
	Clock           Clock
	Logger          *zap.Logger
}

// Orchestrator 对冲回合状态机。
// 单一逻辑控制流:一个回合是一条顺序执行的调用链,不会并发运行多个回合,
// currentRound非空时禁止开启新回合。
type Orchestrator struct {
	cfg       Config
	primaryEx exchange.Exchange
	hedgeEx   exchange.Exchange
	primary   PrimaryExecutor
	hedger    HedgeLegExecutor
	risk      RiskGuard
	observer  Observer
	clock     Clock
	logger    *zap.Logger

	mu    sync.Mutex
	round *Round
	stats Stats
	seq   int

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewOrchestrator 创建编排器
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.PrimarySide == "" {
		cfg.PrimarySide = exchange.SideBuy
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 1
	}
	if cfg.HedgeRecoveryRetries <= 0 {
		cfg.HedgeRecoveryRetries = defaultHedgeRecoveryRetries
	}
	if cfg.HedgeRecoveryDelay <= 0 {
		cfg.HedgeRecoveryDelay = defaultHedgeRecoveryDelay
	}
	if deps.Clock == nil {
		deps.Clock = NewRealClock()
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}

	o := &Orchestrator{
		cfg:       cfg,
		primaryEx: deps.PrimaryExchange,
		hedgeEx:   deps.HedgeExchange,
		risk:      deps.Risk,
		clock:     deps.Clock,
		logger:    deps.Logger.With(zap.String("component", "orchestrator")),
		stopCh:    make(chan struct{}),
	}
	o.observer = &phaseObserver{o: o, next: deps.Observer}

	o.primary = deps.Primary
	if o.primary == nil {
		o.primary = NewPrimaryOrderManager(deps.PrimaryExchange, cfg.Primary, deps.Clock, o.observer, deps.Logger)
	}
	o.hedger = deps.Hedger
	if o.hedger == nil {
		o.hedger = NewHedgeExecutor(deps.HedgeExchange, cfg.Hedge, deps.Clock, o.observer, deps.Logger)
	}
	return o
}

// phaseObserver 在转发事件的同时跟踪挂单事件,
// 把PLACING_PRIMARY推进到WAITING_PRIMARY_FILL
type phaseObserver struct {
	o    *Orchestrator
	next Observer
}

func (p *phaseObserver) OnEvent(e *Event) {
	if e.Type == EventOrderPlaced {
		p.o.mu.Lock()
		round := p.o.round
		advanced := false
		if round != nil && round.Phase == PhasePlacingPrimary {
			round.Phase = PhaseWaitingPrimary
			advanced = true
		}
		p.o.mu.Unlock()
		if advanced {
			p.next.OnEvent(&Event{
				Type:      EventPhaseChanged,
				Message:   "阶段切换",
				Round:     round,
				Fields:    map[string]interface{}{"phase": string(PhaseWaitingPrimary)},
				Timestamp: p.o.clock.Now(),
			})
		}
	}
	p.next.OnEvent(e)
}

// RunOnce 执行一个完整的开仓-持仓-平仓回合。
// 无论成败都返回回合结果,失败时error标明错误分类,
// 未对冲敞口事件保证在返回之前已同步发出。
func (o *Orchestrator) RunOnce(ctx context.Context) (*Round, error) {
	o.mu.Lock()
	if o.round != nil {
		o.mu.Unlock()
		return nil, ErrRoundInProgress
	}
	o.seq++
	round := &Round{
		ID:          fmt.Sprintf("round-%d-%d", o.clock.Now().UnixMilli(), o.seq),
		Symbol:      o.cfg.Symbol,
		Size:        o.cfg.Size,
		PrimarySide: o.cfg.PrimarySide,
		Phase:       PhaseIdle,
		StartTime:   o.clock.Now(),
	}
	o.round = round
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.round = nil
		o.mu.Unlock()
	}()

	o.observer.OnEvent(&Event{
		Type:      EventRoundStarted,
		Message:   "对冲回合开始",
		Round:     round,
		Timestamp: o.clock.Now(),
	})

	err := o.executeRound(ctx, round)
	round.EndTime = o.clock.Now()
	o.finishRound(round, err)
	return round, err
}

func (o *Orchestrator) executeRound(ctx context.Context, round *Round) error {
	symbol := round.Symbol
	primarySide := round.PrimarySide
	hedgeSide := exchange.OppositeSide(primarySide)

	// 双边盘口并发预取，既做基准价也确认两边行情可用
	primaryBook, _, err := o.fetchBooks(ctx, symbol)
	if err != nil {
		round.ErrMsg = err.Error()
		return fmt.Errorf("%w: %v", ErrRoundFailed, err)
	}
	refPrice := primaryBook.Mid()

	// 风控准入
	positions := o.currentPositionSizes(ctx, symbol)
	if allowed, reason := o.risk.CanOpenPosition(symbol, round.Size, refPrice, positions); !allowed {
		round.ErrMsg = reason
		return fmt.Errorf("%w: %s", ErrAdmissionRejected, reason)
	}

	// 开仓——主动腿
	o.setPhase(round, PhasePlacingPrimary)
	openPrimary := o.primary.PlaceAndWait(ctx, PrimaryOrder{
		Symbol: symbol,
		Side:   primarySide,
		Size:   round.Size,
	})
	round.Open = &LegPair{Primary: openPrimary}
	if openPrimary.Status != LegStatusFilled {
		// 尚未尝试对冲，不存在未对冲敞口
		round.ErrMsg = fmt.Sprintf("主动腿开仓未完成: %s", openPrimary.Status)
		return fmt.Errorf("%w: %s", ErrRoundFailed, round.ErrMsg)
	}

	// 开仓——对冲腿，数量必须以主动腿实际成交为准
	o.setPhase(round, PhaseHedging)
	openHedge := o.hedgeWithRecovery(ctx, symbol, hedgeSide, openPrimary.FilledSize, false)
	round.Open.Hedge = openHedge
	if !openHedge.Filled() {
		round.Unhedged = &Exposure{
			Exchange:  o.primaryEx.GetExchangeName(),
			Symbol:    symbol,
			Side:      exposureSide(primarySide),
			Size:      openPrimary.FilledSize,
			Price:     openPrimary.AvgPrice,
			Reason:    "对冲腿开仓失败",
			Timestamp: o.clock.Now(),
		}
		round.ErrMsg = "对冲腿开仓失败，主动腿仓位无对冲"
		return fmt.Errorf("%w: 对冲腿开仓失败", ErrUnhedgedExposure)
	}
	if openHedge.Status == LegStatusSlippageExceeded {
		// 仓位已经建立，弃仓比持有更糟:继续走完平仓，按失败回合结算
		round.ErrMsg = "对冲腿开仓滑点超限"
		o.observer.OnEvent(&Event{
			Type:     EventRiskAlert,
			Severity: SeverityHigh,
			Message:  "对冲腿开仓滑点超限，回合将继续平仓",
			Round:    round,
			Fields: map[string]interface{}{
				"slippage": openHedge.Slippage,
			},
			Timestamp: o.clock.Now(),
		})
	}

	// 开仓后的双边仓位对账
	o.risk.CheckPositionImbalance(openPrimary.FilledSize, -openHedge.FilledSize)

	o.setPhase(round, PhasePositionOpen)

	// 持仓
	if o.cfg.HoldTime > 0 {
		o.setPhase(round, PhaseHolding)
		o.holdPosition(ctx, o.cfg.HoldTime)
	}

	// 平仓——主动腿，数量以对冲腿实际成交为准
	o.setPhase(round, PhaseClosingPrimary)
	closePrimary := o.closePrimaryLeg(ctx, symbol, hedgeSide, openHedge.FilledSize)
	round.Close = &LegPair{Primary: closePrimary}
	if closePrimary.FilledSize <= 0 {
		// 双腿仓位仍然存在:已对冲，不属于未对冲敞口，但需要人工处理
		round.ErrMsg = "主动腿平仓失败，双腿仓位仍然存在"
		o.observer.OnEvent(&Event{
			Type:      EventRiskAlert,
			Severity:  SeverityHigh,
			Message:   round.ErrMsg,
			Round:     round,
			Timestamp: o.clock.Now(),
		})
		return fmt.Errorf("%w: %s", ErrRoundFailed, round.ErrMsg)
	}
	if closePrimary.Status != LegStatusFilled && round.ErrMsg == "" {
		round.ErrMsg = "主动腿平仓不完整"
	}

	// 平仓——对冲腿，数量以主动腿平仓实际成交为准
	o.setPhase(round, PhaseClosingHedge)
	closeHedge := o.hedgeWithRecovery(ctx, symbol, primarySide, closePrimary.FilledSize, true)
	round.Close.Hedge = closeHedge
	if !closeHedge.Filled() {
		round.Unhedged = &Exposure{
			Exchange:  o.hedgeEx.GetExchangeName(),
			Symbol:    symbol,
			Side:      exposureSide(hedgeSide),
			Size:      closePrimary.FilledSize,
			Price:     openHedge.AvgPrice,
			Reason:    "对冲腿平仓失败",
			Timestamp: o.clock.Now(),
		}
		round.ErrMsg = "对冲腿平仓失败，对冲腿仓位无对冲"
		return fmt.Errorf("%w: 对冲腿平仓失败", ErrUnhedgedExposure)
	}

	round.PnL = calculatePnL(round)
	if round.ErrMsg != "" {
		return fmt.Errorf("%w: %s", ErrRoundFailed, round.ErrMsg)
	}
	return nil
}

// hedgeWithRecovery 对冲腿的恢复性重试，用于跨越对冲venue的瞬时故障。
// 部分成交跨恢复重试累计，只补剩余数量。
func (o *Orchestrator) hedgeWithRecovery(ctx context.Context, symbol, side string, size float64, reduceOnly bool) *LegFillResult {
	var acc *LegFillResult
	remaining := size

	for attempt := 0; attempt <= o.cfg.HedgeRecoveryRetries; attempt++ {
		if attempt > 0 {
			o.logger.Warn("对冲腿执行未完成，恢复性重试",
				zap.String("symbol", symbol),
				zap.String("side", side),
				zap.Float64("remaining", remaining),
				zap.Int("attempt", attempt))
			if err := o.clock.Sleep(ctx, o.cfg.HedgeRecoveryDelay); err != nil {
				break
			}
		}

		res := o.hedger.ExecuteMarketHedge(ctx, symbol, side, remaining, reduceOnly)
		if acc == nil {
			acc = res
		} else {
			acc = mergeLegResults(size, acc, res)
		}
		if acc.Filled() {
			return acc
		}
		remaining = size - acc.FilledSize
		if remaining <= 0 {
			return acc
		}
	}
	return acc
}

// closePrimaryLeg 按配置策略平主动腿，重试耗尽后退化为aggressive吃单
// 强制平仓:敞口持续时间有界优先于手续费
func (o *Orchestrator) closePrimaryLeg(ctx context.Context, symbol, side string, size float64) *LegFillResult {
	result := o.primary.PlaceAndWait(ctx, PrimaryOrder{
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		ReduceOnly: true,
	})
	if result.Status == LegStatusFilled {
		return result
	}

	remaining := size - result.FilledSize
	if remaining <= 0 {
		return result
	}
	o.logger.Warn("主动腿平仓未完成，转为吃单强制平仓",
		zap.String("symbol", symbol),
		zap.String("status", result.Status),
		zap.Float64("remaining", remaining))

	forced := o.primary.PlaceAndWait(ctx, PrimaryOrder{
		Symbol:        symbol,
		Side:          side,
		Size:          remaining,
		ReduceOnly:    true,
		PriceStrategy: PriceStrategyAggressive,
	})
	return mergeLegResults(size, result, forced)
}

// holdPosition 持仓等待，以不超过1秒的粒度检查停止请求，
// 外部Stop会缩短持仓而不是等满配置时长
func (o *Orchestrator) holdPosition(ctx context.Context, d time.Duration) {
	deadline := o.clock.Now().Add(d)
	for {
		if o.stopRequested() || ctx.Err() != nil {
			return
		}
		remaining := deadline.Sub(o.clock.Now())
		if remaining <= 0 {
			return
		}
		slice := stopCheckInterval
		if remaining < slice {
			slice = remaining
		}
		if err := o.clock.Sleep(ctx, slice); err != nil {
			return
		}
	}
}

// fetchBooks 并发拉取两边盘口并一起等待
func (o *Orchestrator) fetchBooks(ctx context.Context, symbol string) (*exchange.OrderBook, *exchange.OrderBook, error) {
	var (
		wg                     sync.WaitGroup
		primaryBook, hedgeBook *exchange.OrderBook
		primaryErr, hedgeErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		primaryBook, primaryErr = o.primaryEx.GetOrderBook(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		hedgeBook, hedgeErr = o.hedgeEx.GetOrderBook(ctx, symbol)
	}()
	wg.Wait()

	if primaryErr != nil {
		return nil, nil, fmt.Errorf("主交易所盘口: %w", primaryErr)
	}
	if hedgeErr != nil {
		return nil, nil, fmt.Errorf("对冲交易所盘口: %w", hedgeErr)
	}
	return primaryBook, hedgeBook, nil
}

// currentPositionSizes 采集两边交易所的当前持仓数量供风控计算总敞口
func (o *Orchestrator) currentPositionSizes(ctx context.Context, symbol string) []float64 {
	var sizes []float64
	for _, ex := range []exchange.Exchange{o.primaryEx, o.hedgeEx} {
		pos, err := ex.GetPosition(ctx, symbol)
		if err != nil {
			o.logger.Warn("查询持仓失败",
				zap.Error(err),
				zap.String("exchange", ex.GetExchangeName()))
			continue
		}
		if pos != nil {
			sizes = append(sizes, pos.Size)
		}
	}
	return sizes
}

// finishRound 结算回合:更新统计、记录亏损、发出终态事件。
// 未对冲敞口事件在失败事件之前发出。
func (o *Orchestrator) finishRound(round *Round, err error) {
	o.mu.Lock()
	o.stats.TotalRounds++
	if err == nil {
		o.stats.SuccessRounds++
	} else {
		o.stats.FailedRounds++
	}
	if round.Open != nil && round.Open.Primary != nil {
		o.stats.TotalVolume += round.Open.Primary.FilledSize * round.Open.Primary.AvgPrice
	}
	if round.PnL != nil {
		o.stats.TotalPnL += round.PnL.Total
	}
	o.mu.Unlock()

	if round.PnL != nil && round.PnL.Total < 0 {
		o.risk.RecordLoss(-round.PnL.Total)
	}

	if err == nil {
		round.Success = true
		o.setPhase(round, PhaseCompleted)
		o.observer.OnEvent(&Event{
			Type:      EventRoundCompleted,
			Message:   "对冲回合完成",
			Round:     round,
			Timestamp: o.clock.Now(),
		})
		return
	}

	o.setPhase(round, PhaseError)
	if round.Unhedged != nil {
		o.observer.OnEvent(&Event{
			Type:      EventUnhedgedExposure,
			Severity:  SeverityHigh,
			Message:   "存在未对冲敞口，需要立即处理",
			Round:     round,
			Exposure:  round.Unhedged,
			Timestamp: o.clock.Now(),
		})
	}
	o.observer.OnEvent(&Event{
		Type:     EventRoundFailed,
		Severity: SeverityMedium,
		Message:  "对冲回合失败",
		Round:    round,
		Fields: map[string]interface{}{
			"error": round.ErrMsg,
		},
		Timestamp: o.clock.Now(),
	})
}

// RunLoop 连续执行多个回合。StopOnError控制失败后继续还是中止，
// 但风控紧急停止导致的准入拒绝总是中止循环。
// Stop请求在当前回合结束后生效。
func (o *Orchestrator) RunLoop(ctx context.Context) ([]*Round, error) {
	rounds := make([]*Round, 0, o.cfg.MaxRounds)
	var loopErr error

	for i := 0; i < o.cfg.MaxRounds; i++ {
		if o.stopRequested() {
			break
		}
		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}

		round, err := o.RunOnce(ctx)
		if round != nil {
			rounds = append(rounds, round)
		}
		if err != nil {
			if errors.Is(err, ErrAdmissionRejected) && o.risk.EmergencyStopped() {
				o.logger.Error("风控紧急停止，中止对冲循环", zap.Error(err))
				loopErr = err
				break
			}
			if o.cfg.StopOnError {
				loopErr = err
				break
			}
		}

		if i < o.cfg.MaxRounds-1 && o.cfg.RoundInterval > 0 {
			if err := o.waitInterval(ctx, o.cfg.RoundInterval); err != nil {
				break
			}
		}
	}

	success := 0
	for _, r := range rounds {
		if r.Success {
			success++
		}
	}
	o.logger.Info("对冲循环结束",
		zap.Int("rounds", len(rounds)),
		zap.Int("success", success),
		zap.Int("failed", len(rounds)-success))

	return rounds, loopErr
}

// waitInterval 回合间等待，与持仓一样响应停止请求
func (o *Orchestrator) waitInterval(ctx context.Context, d time.Duration) error {
	deadline := o.clock.Now().Add(d)
	for {
		if o.stopRequested() {
			return errors.New("收到停止请求")
		}
		remaining := deadline.Sub(o.clock.Now())
		if remaining <= 0 {
			return nil
		}
		slice := stopCheckInterval
		if remaining < slice {
			slice = remaining
		}
		if err := o.clock.Sleep(ctx, slice); err != nil {
			return err
		}
	}
}

// Stop 发出协作式停止请求:进行中的持仓在一个检查间隔内结束，
// 循环在当前回合完成后退出
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
	})
}

func (o *Orchestrator) stopRequested() bool {
	select {
	case <-o.stopCh:
		return true
	default:
		return false
	}
}

// 紧急停止研判动作
const (
	EmergencyActionNone          = "none"
	EmergencyActionCloseNow      = "close_now"
	EmergencyActionAwaitInflight = "await_inflight"
	EmergencyActionManual        = "manual_intervention"
)

// EmergencyStopAdvice 紧急停止研判结果
type EmergencyStopAdvice struct {
	Phase   Phase  `json:"phase"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

// EmergencyStop 按当前阶段研判应采取的动作而不是盲目操作:
// 已有持仓提示立即平仓，腿调用进行中提示等待其完成，
// 已存在未对冲敞口时提示人工介入。同时发出协作式停止请求。
func (o *Orchestrator) EmergencyStop() *EmergencyStopAdvice {
	o.Stop()

	o.mu.Lock()
	phase := PhaseIdle
	var unhedged *Exposure
	if o.round != nil {
		phase = o.round.Phase
		unhedged = o.round.Unhedged
	}
	o.mu.Unlock()

	advice := &EmergencyStopAdvice{Phase: phase}
	switch {
	case unhedged != nil:
		advice.Action = EmergencyActionManual
		advice.Message = "已存在未对冲敞口，需要人工或补偿性操作"
	case phase == PhasePositionOpen || phase == PhaseHolding:
		advice.Action = EmergencyActionCloseNow
		advice.Message = "仓位已建立，持仓将提前结束并立即平仓"
	case phase == PhasePlacingPrimary || phase == PhaseWaitingPrimary ||
		phase == PhaseHedging || phase == PhaseClosingPrimary || phase == PhaseClosingHedge:
		advice.Action = EmergencyActionAwaitInflight
		advice.Message = "腿调用进行中，等待其完成后回合将终止"
	default:
		advice.Action = EmergencyActionNone
		advice.Message = "没有进行中的回合"
	}

	o.observer.OnEvent(&Event{
		Type:      EventEmergencyStop,
		Severity:  SeverityHigh,
		Message:   advice.Message,
		Timestamp: o.clock.Now(),
		Fields: map[string]interface{}{
			"phase":  string(phase),
			"action": advice.Action,
		},
	})
	return advice
}

// CurrentPhase 当前阶段，空闲时为IDLE
func (o *Orchestrator) CurrentPhase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.round == nil {
		return PhaseIdle
	}
	return o.round.Phase
}

// Stats 累计统计快照
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) setPhase(round *Round, phase Phase) {
	o.mu.Lock()
	round.Phase = phase
	o.mu.Unlock()

	o.observer.OnEvent(&Event{
		Type:      EventPhaseChanged,
		Message:   "阶段切换",
		Round:     round,
		Fields:    map[string]interface{}{"phase": string(phase)},
		Timestamp: o.clock.Now(),
	})
}

// exposureSide 持仓方向:买入开仓为long，卖出开仓为short
func exposureSide(side string) string {
	if side == exchange.SideBuy {
		return "long"
	}
	return "short"
}

// mergeLegResults 合并同一腿两段执行的结果，成交均价按数量加权
func mergeLegResults(target float64, a, b *LegFillResult) *LegFillResult {
	as := decimal.NewFromFloat(a.FilledSize)
	bs := decimal.NewFromFloat(b.FilledSize)
	total := as.Add(bs)

	merged := &LegFillResult{
		Side:           a.Side,
		ExpectedPrice:  a.ExpectedPrice,
		PriceEstimated: a.PriceEstimated || b.PriceEstimated,
		Retries:        a.Retries + b.Retries,
		Elapsed:        a.Elapsed + b.Elapsed,
		Attempts:       append(append([]OrderAttempt{}, a.Attempts...), b.Attempts...),
		ErrMsg:         b.ErrMsg,
	}
	merged.FilledSize, _ = total.Float64()
	if total.Sign() > 0 {
		value := as.Mul(decimal.NewFromFloat(a.AvgPrice)).
			Add(bs.Mul(decimal.NewFromFloat(b.AvgPrice)))
		merged.AvgPrice, _ = value.Div(total).Float64()
		merged.Slippage = calculateSlippage(merged.Side, merged.ExpectedPrice, merged.AvgPrice)
	}

	severe := a.Status == LegStatusSlippageExceeded || b.Status == LegStatusSlippageExceeded
	switch {
	case total.Sign() > 0 && total.GreaterThanOrEqual(decimal.NewFromFloat(target)):
		if severe {
			merged.Status = LegStatusSlippageExceeded
		} else {
			merged.Status = LegStatusFilled
		}
		merged.ErrMsg = ""
	case total.Sign() > 0:
		merged.Status = LegStatusPartial
	default:
		merged.Status = b.Status
	}
	return merged
}

// calculatePnL 主动腿为(平仓价-开仓价)×数量，对冲腿做空价格变动、贡献取反；
// 主动腿开仓方向为卖出时整体符号翻转
func calculatePnL(round *Round) *PnL {
	if round.Open == nil || round.Close == nil {
		return nil
	}
	po, ho := round.Open.Primary, round.Open.Hedge
	pc, hc := round.Close.Primary, round.Close.Hedge
	if po == nil || ho == nil || pc == nil || hc == nil {
		return nil
	}

	dir := decimal.NewFromInt(1)
	if round.PrimarySide == exchange.SideSell {
		dir = decimal.NewFromInt(-1)
	}

	primary := decimal.NewFromFloat(pc.AvgPrice).
		Sub(decimal.NewFromFloat(po.AvgPrice)).
		Mul(decimal.NewFromFloat(po.FilledSize)).
		Mul(dir)
	hedge := decimal.NewFromFloat(ho.AvgPrice).
		Sub(decimal.NewFromFloat(hc.AvgPrice)).
		Mul(decimal.NewFromFloat(ho.FilledSize)).
		Mul(dir)

	pnl := &PnL{
		Estimated: po.PriceEstimated || ho.PriceEstimated ||
			pc.PriceEstimated || hc.PriceEstimated,
	}
	pnl.PrimaryLeg, _ = primary.Float64()
	pnl.HedgeLeg, _ = hedge.Float64()
	pnl.Total, _ = primary.Add(hedge).Float64()
	return pnl
}
