package hedge

import (
	"context"
	"sync"
	"time"
)

// manualClock 虚拟时钟:Sleep不真实等待，立即推进虚拟时间并记录时长
type manualClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newManualClock() *manualClock {
	return &manualClock{
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return nil
}

func (c *manualClock) totalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.slept {
		total += d
	}
	return total
}

// captureObserver 记录收到的事件供断言，可挂回调驱动测试场景
type captureObserver struct {
	events []*Event
	onEvent func(*Event)
}

func (c *captureObserver) OnEvent(e *Event) {
	c.events = append(c.events, e)
	if c.onEvent != nil {
		c.onEvent(e)
	}
}

func (c *captureObserver) byType(eventType string) []*Event {
	var result []*Event
	for _, e := range c.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

func (c *captureObserver) indexOf(eventType string) int {
	for i, e := range c.events {
		if e.Type == eventType {
			return i
		}
	}
	return -1
}

func (c *captureObserver) phases() []string {
	var result []string
	for _, e := range c.events {
		if e.Type != EventPhaseChanged {
			continue
		}
		if p, ok := e.Fields["phase"].(string); ok {
			result = append(result, p)
		}
	}
	return result
}

// scriptedPrimary 按预设结果序列响应的主动腿执行器，记录每次调用
type scriptedPrimary struct {
	calls   []PrimaryOrder
	results []*LegFillResult
	onCall  func(i int, order PrimaryOrder)
}

func (s *scriptedPrimary) PlaceAndWait(_ context.Context, order PrimaryOrder) *LegFillResult {
	i := len(s.calls)
	s.calls = append(s.calls, order)
	if s.onCall != nil {
		s.onCall(i, order)
	}
	if i < len(s.results) {
		return s.results[i]
	}
	return s.results[len(s.results)-1]
}

// hedgeCall 对冲腿一次调用的入参
type hedgeCall struct {
	symbol     string
	side       string
	size       float64
	reduceOnly bool
}

// scriptedHedger 按预设结果序列响应的对冲腿执行器
type scriptedHedger struct {
	calls   []hedgeCall
	results []*LegFillResult
}

func (s *scriptedHedger) ExecuteMarketHedge(_ context.Context, symbol, side string, size float64, reduceOnly bool) *LegFillResult {
	i := len(s.calls)
	s.calls = append(s.calls, hedgeCall{symbol: symbol, side: side, size: size, reduceOnly: reduceOnly})
	if i < len(s.results) {
		return s.results[i]
	}
	return s.results[len(s.results)-1]
}

// fakeRisk 风控桩实现，默认放行所有开仓
type fakeRisk struct {
	canOpen func() (bool, string)
	stopped bool

	losses         []float64
	imbalanceCalls [][2]float64
}

func newFakeRisk() *fakeRisk {
	return &fakeRisk{}
}

func (f *fakeRisk) CanOpenPosition(string, float64, float64, []float64) (bool, string) {
	if f.canOpen != nil {
		return f.canOpen()
	}
	return true, ""
}

func (f *fakeRisk) RecordLoss(amount float64) {
	f.losses = append(f.losses, amount)
}

func (f *fakeRisk) CheckPositionImbalance(primarySize, hedgeSize float64) (bool, float64) {
	f.imbalanceCalls = append(f.imbalanceCalls, [2]float64{primarySize, hedgeSize})
	return false, primarySize + hedgeSize
}

func (f *fakeRisk) EmergencyStopped() bool {
	return f.stopped
}

// filledResult 构造一个完全成交的腿结果
func filledResult(side string, size, avgPrice float64) *LegFillResult {
	return &LegFillResult{
		Status:        LegStatusFilled,
		Side:          side,
		FilledSize:    size,
		AvgPrice:      avgPrice,
		ExpectedPrice: avgPrice,
	}
}
