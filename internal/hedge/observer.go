package hedge

import (
	"time"

	"go.uber.org/zap"
)

// 事件类型
const (
	EventRoundStarted     = "round_started"
	EventPhaseChanged     = "phase_changed"
	EventOrderPlaced      = "order_placed"
	EventOrderCancelled   = "order_cancelled"
	EventLegFilled        = "leg_filled"
	EventRoundCompleted   = "round_completed"
	EventRoundFailed      = "round_failed"
	EventUnhedgedExposure = "unhedged_exposure"
	EventRiskAlert        = "risk_alert"
	EventEmergencyStop    = "emergency_stop"
)

// 告警级别
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Event 引擎对外发布的结构化事件
type Event struct {
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity,omitempty"`
	Message   string                 `json:"message"`
	Round     *Round                 `json:"round,omitempty"`
	Exposure  *Exposure              `json:"exposure,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Observer 事件接收方。
// OnEvent在引擎的控制流中同步调用，未对冲敞口事件保证在
// 失败结果返回给调用方之前送达，实现方不得长时间阻塞。
type Observer interface {
	OnEvent(event *Event)
}

// ObserverFunc 函数形式的Observer
type ObserverFunc func(*Event)

func (f ObserverFunc) OnEvent(e *Event) {
	f(e)
}

// NopObserver 丢弃所有事件
type NopObserver struct{}

func (NopObserver) OnEvent(*Event) {}

// MultiObserver 将事件按注册顺序扇出给多个接收方
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver 创建扇出Observer
func NewMultiObserver(observers ...Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

// Add 追加接收方
func (m *MultiObserver) Add(o Observer) {
	m.observers = append(m.observers, o)
}

func (m *MultiObserver) OnEvent(e *Event) {
	for _, o := range m.observers {
		o.OnEvent(e)
	}
}

// ZapObserver 将事件写入结构化日志
type ZapObserver struct {
	logger *zap.Logger
}

// NewZapObserver 创建日志Observer
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	return &ZapObserver{logger: logger}
}

func (z *ZapObserver) OnEvent(e *Event) {
	fields := []zap.Field{
		zap.String("event", e.Type),
	}
	if e.Severity != "" {
		fields = append(fields, zap.String("severity", e.Severity))
	}
	if e.Round != nil {
		fields = append(fields,
			zap.String("roundId", e.Round.ID),
			zap.String("phase", string(e.Round.Phase)))
	}
	if e.Exposure != nil {
		fields = append(fields,
			zap.String("exchange", e.Exposure.Exchange),
			zap.String("exposureSide", e.Exposure.Side),
			zap.Float64("exposureSize", e.Exposure.Size),
			zap.Float64("exposurePrice", e.Exposure.Price))
	}
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	switch e.Type {
	case EventUnhedgedExposure, EventEmergencyStop:
		z.logger.Error(e.Message, fields...)
	case EventRoundFailed:
		z.logger.Warn(e.Message, fields...)
	case EventRiskAlert:
		if e.Severity == SeverityHigh {
			z.logger.Error(e.Message, fields...)
		} else {
			z.logger.Warn(e.Message, fields...)
		}
	default:
		z.logger.Info(e.Message, fields...)
	}
}
