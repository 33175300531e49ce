package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/hedgex/internal/hedge"
)

// 滚动亏损窗口长度
const dailyLossWindow = 24 * time.Hour

// Config 风控阈值配置
type Config struct {
	MaxPositionSize    float64 // 单笔最大数量
	MaxTotalExposure   float64 // 双边持仓数量绝对值之和的上限
	MaxSlippage        float64 // 对冲腿允许的最大滑点
	MaxLossPerTrade    float64 // 单笔亏损告警阈值
	MaxDailyLoss       float64 // 24小时滚动窗口亏损上限
	EmergencyStopLoss  float64 // 触发紧急停止的累计亏损
	ImbalanceThreshold float64 // 双边持仓偏差告警阈值
}

// Manager 风控管理器：开仓准入、24小时滚动亏损记账与紧急停止。
// 状态跨回合存续，是回合之间唯一共享的状态。
type Manager struct {
	cfg      Config
	logger   *zap.Logger
	observer hedge.Observer
	now      func() time.Time

	mutex         sync.Mutex
	dailyLoss     float64
	windowStart   time.Time // 第一笔未重置亏损的时间，零值表示窗口未开启
	emergencyStop bool
}

// NewManager 创建风控管理器
func NewManager(cfg Config, observer hedge.Observer, logger *zap.Logger) *Manager {
	if observer == nil {
		observer = hedge.NopObserver{}
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "risk_manager")),
		observer: observer,
		now:      time.Now,
	}
}

// WithNowFunc 替换时间源，测试中用来驱动虚拟时间
func (m *Manager) WithNowFunc(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CanOpenPosition 开仓准入检查，拒绝时返回原因。
// 紧急停止激活时无条件拒绝；其余依次检查单笔数量上限、
// 当前持仓加本单的总敞口上限、以及滚动日亏损上限
// （检查前先把过期的亏损窗口滚动掉）。
func (m *Manager) CanOpenPosition(symbol string, size, price float64, currentPositions []float64) (bool, string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.emergencyStop {
		return false, "紧急停止已激活"
	}

	if m.cfg.MaxPositionSize > 0 && size > m.cfg.MaxPositionSize {
		return false, fmt.Sprintf("单笔数量%.4f超过上限%.4f", size, m.cfg.MaxPositionSize)
	}

	total := size
	for _, p := range currentPositions {
		total += math.Abs(p)
	}
	if m.cfg.MaxTotalExposure > 0 && total > m.cfg.MaxTotalExposure {
		return false, fmt.Sprintf("总敞口%.4f超过上限%.4f", total, m.cfg.MaxTotalExposure)
	}

	m.rollWindowLocked()
	if m.cfg.MaxDailyLoss > 0 && m.dailyLoss >= m.cfg.MaxDailyLoss {
		return false, fmt.Sprintf("24小时亏损%.4f已达上限%.4f", m.dailyLoss, m.cfg.MaxDailyLoss)
	}

	m.logger.Debug("开仓准入通过",
		zap.String("symbol", symbol),
		zap.Float64("size", size),
		zap.Float64("price", price),
		zap.Float64("dailyLoss", m.dailyLoss))
	return true, ""
}

// RecordLoss 记入一笔亏损（正值）。亏损窗口从第一笔未重置亏损起算24小时；
// 单笔超过MaxLossPerTrade发高级别告警；累计达到EmergencyStopLoss触发
// 粘滞的紧急停止，需显式调用DeactivateEmergencyStop解除。
func (m *Manager) RecordLoss(amount float64) {
	if amount <= 0 {
		return
	}

	m.mutex.Lock()
	m.rollWindowLocked()
	if m.windowStart.IsZero() {
		m.windowStart = m.now()
	}
	m.dailyLoss += amount
	dailyLoss := m.dailyLoss
	tripped := !m.emergencyStop &&
		m.cfg.EmergencyStopLoss > 0 && m.dailyLoss >= m.cfg.EmergencyStopLoss
	if tripped {
		m.emergencyStop = true
	}
	m.mutex.Unlock()

	m.logger.Info("记录亏损",
		zap.Float64("amount", amount),
		zap.Float64("dailyLoss", dailyLoss))

	if m.cfg.MaxLossPerTrade > 0 && amount > m.cfg.MaxLossPerTrade {
		m.observer.OnEvent(&hedge.Event{
			Type:     hedge.EventRiskAlert,
			Severity: hedge.SeverityHigh,
			Message:  "单笔亏损超过上限",
			Fields: map[string]interface{}{
				"amount":          amount,
				"maxLossPerTrade": m.cfg.MaxLossPerTrade,
			},
			Timestamp: m.now(),
		})
	}
	if tripped {
		m.logger.Error("累计亏损触发紧急停止",
			zap.Float64("dailyLoss", dailyLoss),
			zap.Float64("emergencyStopLoss", m.cfg.EmergencyStopLoss))
		m.observer.OnEvent(&hedge.Event{
			Type:     hedge.EventEmergencyStop,
			Severity: hedge.SeverityHigh,
			Message:  "累计亏损触发紧急停止",
			Fields: map[string]interface{}{
				"dailyLoss":         dailyLoss,
				"emergencyStopLoss": m.cfg.EmergencyStopLoss,
			},
			Timestamp: m.now(),
		})
	}
}

// CheckPositionImbalance 校验双边持仓偏差。符号约定:主动腿为正、
// 对冲腿为负，完美对冲之和约等于0。偏差超过阈值发中级别告警。
func (m *Manager) CheckPositionImbalance(primarySize, hedgeSize float64) (bool, float64) {
	imbalance := CalculateImbalance(primarySize, hedgeSize)
	if m.cfg.ImbalanceThreshold <= 0 || imbalance <= m.cfg.ImbalanceThreshold {
		return false, imbalance
	}

	m.logger.Warn("双边持仓偏差超过阈值",
		zap.Float64("primarySize", primarySize),
		zap.Float64("hedgeSize", hedgeSize),
		zap.Float64("imbalance", imbalance),
		zap.Float64("threshold", m.cfg.ImbalanceThreshold))
	m.observer.OnEvent(&hedge.Event{
		Type:     hedge.EventRiskAlert,
		Severity: hedge.SeverityMedium,
		Message:  "双边持仓偏差超过阈值",
		Fields: map[string]interface{}{
			"primarySize": primarySize,
			"hedgeSize":   hedgeSize,
			"imbalance":   imbalance,
			"threshold":   m.cfg.ImbalanceThreshold,
		},
		Timestamp: m.now(),
	})
	return true, imbalance
}

// ActivateEmergencyStop 手动激活紧急停止
func (m *Manager) ActivateEmergencyStop(reason string) {
	m.mutex.Lock()
	already := m.emergencyStop
	m.emergencyStop = true
	m.mutex.Unlock()

	if already {
		return
	}
	m.logger.Error("紧急停止已激活", zap.String("reason", reason))
	m.observer.OnEvent(&hedge.Event{
		Type:      hedge.EventEmergencyStop,
		Severity:  hedge.SeverityHigh,
		Message:   "紧急停止已激活",
		Fields:    map[string]interface{}{"reason": reason},
		Timestamp: m.now(),
	})
}

// DeactivateEmergencyStop 解除紧急停止
func (m *Manager) DeactivateEmergencyStop() {
	m.mutex.Lock()
	m.emergencyStop = false
	m.mutex.Unlock()
	m.logger.Info("紧急停止已解除")
}

// EmergencyStopped 紧急停止是否处于激活状态
func (m *Manager) EmergencyStopped() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.emergencyStop
}

// DailyLoss 当前窗口内的累计亏损
func (m *Manager) DailyLoss() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rollWindowLocked()
	return m.dailyLoss
}

// rollWindowLocked 距窗口开启满24小时则滚动:清零亏损并关闭窗口，
// 下一笔亏损重新开启。调用方必须持有锁。
func (m *Manager) rollWindowLocked() {
	if m.windowStart.IsZero() {
		return
	}
	if m.now().Sub(m.windowStart) >= dailyLossWindow {
		m.dailyLoss = 0
		m.windowStart = time.Time{}
	}
}
