package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/hedgex/internal/hedge"
)

// captureObserver 记录收到的事件供断言
type captureObserver struct {
	events []*hedge.Event
}

func (c *captureObserver) OnEvent(e *hedge.Event) {
	c.events = append(c.events, e)
}

func (c *captureObserver) byType(eventType string) []*hedge.Event {
	var result []*hedge.Event
	for _, e := range c.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

func testConfig() Config {
	return Config{
		MaxPositionSize:    10,
		MaxTotalExposure:   25,
		MaxSlippage:        0.005,
		MaxLossPerTrade:    50,
		MaxDailyLoss:       200,
		EmergencyStopLoss:  500,
		ImbalanceThreshold: 0.01,
	}
}

func TestManager_CanOpenPosition(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name           string
		size           float64
		positions      []float64
		prepare        func(m *Manager)
		expectedAllow  bool
		expectedReason string
	}{
		{
			name:          "正常开仓",
			size:          1.0,
			expectedAllow: true,
		},
		{
			name:           "单笔数量超限",
			size:           10.5,
			expectedAllow:  false,
			expectedReason: "单笔数量",
		},
		{
			name:           "总敞口超限",
			size:           5.0,
			positions:      []float64{12, -12},
			expectedAllow:  false,
			expectedReason: "总敞口",
		},
		{
			name: "日亏损达到上限",
			size: 1.0,
			prepare: func(m *Manager) {
				m.RecordLoss(200)
			},
			expectedAllow:  false,
			expectedReason: "24小时亏损",
		},
		{
			name: "紧急停止无条件拒绝",
			size: 0.0001,
			prepare: func(m *Manager) {
				m.ActivateEmergencyStop("测试")
			},
			expectedAllow:  false,
			expectedReason: "紧急停止已激活",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(testConfig(), nil, logger)
			if tt.prepare != nil {
				tt.prepare(m)
			}

			allowed, reason := m.CanOpenPosition("BTC/USDT", tt.size, 50000, tt.positions)
			assert.Equal(t, tt.expectedAllow, allowed)
			if !tt.expectedAllow {
				assert.Contains(t, reason, tt.expectedReason)
			}
		})
	}
}

func TestManager_DailyLossWindow(t *testing.T) {
	logger := zaptest.NewLogger(t)
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(testConfig(), nil, logger).WithNowFunc(func() time.Time {
		return current
	})

	// 窗口从第一笔亏损起算
	m.RecordLoss(80)
	assert.InDelta(t, 80, m.DailyLoss(), 1e-9)

	// 23小时后仍在同一窗口内累计
	current = current.Add(23 * time.Hour)
	m.RecordLoss(50)
	assert.InDelta(t, 130, m.DailyLoss(), 1e-9)

	// 距第一笔亏损满24小时，窗口滚动清零
	current = current.Add(time.Hour)
	assert.Zero(t, m.DailyLoss())

	// 下一笔亏损重新开启窗口
	m.RecordLoss(30)
	assert.InDelta(t, 30, m.DailyLoss(), 1e-9)

	// 新窗口从这笔亏损起算，而不是从最初那笔
	current = current.Add(23 * time.Hour)
	assert.InDelta(t, 30, m.DailyLoss(), 1e-9)
	current = current.Add(time.Hour)
	assert.Zero(t, m.DailyLoss())
}

func TestManager_EmergencyStopSticky(t *testing.T) {
	logger := zaptest.NewLogger(t)
	obs := &captureObserver{}
	m := NewManager(testConfig(), obs, logger)

	// 累计亏损跨过紧急停止线
	m.RecordLoss(300)
	assert.False(t, m.EmergencyStopped())
	m.RecordLoss(250)
	assert.True(t, m.EmergencyStopped())

	events := obs.byType(hedge.EventEmergencyStop)
	require.Len(t, events, 1)
	assert.Equal(t, hedge.SeverityHigh, events[0].Severity)

	// 粘滞:后续开仓一律拒绝
	allowed, reason := m.CanOpenPosition("BTC/USDT", 0.001, 50000, nil)
	assert.False(t, allowed)
	assert.Equal(t, "紧急停止已激活", reason)

	// 显式解除后恢复（日亏损上限仍然生效，换一个窗口外的配置验证解除本身）
	m.DeactivateEmergencyStop()
	assert.False(t, m.EmergencyStopped())
}

func TestManager_RecordLoss(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("单笔亏损超限发高级别告警", func(t *testing.T) {
		obs := &captureObserver{}
		m := NewManager(testConfig(), obs, logger)

		m.RecordLoss(60)

		alerts := obs.byType(hedge.EventRiskAlert)
		require.Len(t, alerts, 1)
		assert.Equal(t, hedge.SeverityHigh, alerts[0].Severity)
	})

	t.Run("盈利和零值不入账", func(t *testing.T) {
		m := NewManager(testConfig(), nil, logger)
		m.RecordLoss(0)
		m.RecordLoss(-10)
		assert.Zero(t, m.DailyLoss())
	})
}

func TestManager_CheckPositionImbalance(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name          string
		primarySize   float64
		hedgeSize     float64
		expectedFlag  bool
		expectedAlert int
	}{
		{
			name:        "完美对冲之和约等于0",
			primarySize: 1.5,
			hedgeSize:   -1.5,
		},
		{
			name:        "偏差在阈值内",
			primarySize: 1.0,
			hedgeSize:   -0.995,
		},
		{
			name:          "偏差超过阈值",
			primarySize:   1.0,
			hedgeSize:     -0.9,
			expectedFlag:  true,
			expectedAlert: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &captureObserver{}
			m := NewManager(testConfig(), obs, logger)

			flagged, imbalance := m.CheckPositionImbalance(tt.primarySize, tt.hedgeSize)
			assert.Equal(t, tt.expectedFlag, flagged)
			assert.InDelta(t, tt.primarySize+tt.hedgeSize, imbalance, 1e-9)
			assert.Len(t, obs.byType(hedge.EventRiskAlert), tt.expectedAlert)
		})
	}
}
