package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/life2you_mini/hedgex/internal/hedge"
)

const defaultTelegramAPIBase = "https://api.telegram.org"

// TelegramConfig Telegram通知配置
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	// APIBase 留空使用官方接口地址，测试时可指向本地
	APIBase string `mapstructure:"api_base"`
}

// TelegramNotifier 通过Telegram Bot API推送告警。
// 实现hedge.Observer:转发未对冲敞口、紧急停止、回合失败
// 以及中高级别的风控告警，低级别事件不打扰。
type TelegramNotifier struct {
	cfg    TelegramConfig
	http   *resty.Client
	logger *zap.Logger
}

// NewTelegramNotifier 创建Telegram通知器
func NewTelegramNotifier(cfg TelegramConfig, logger *zap.Logger) *TelegramNotifier {
	base := cfg.APIBase
	if base == "" {
		base = defaultTelegramAPIBase
	}

	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &TelegramNotifier{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With(zap.String("component", "telegram_notifier")),
	}
}

// Send 发送一条Markdown格式消息。发送失败只记日志
func (t *TelegramNotifier) Send(message string) {
	if !t.cfg.Enabled || t.cfg.BotToken == "" || t.cfg.ChatID == "" {
		return
	}

	resp, err := t.http.R().
		SetBody(map[string]interface{}{
			"chat_id":    t.cfg.ChatID,
			"text":       message,
			"parse_mode": "Markdown",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.cfg.BotToken))
	if err != nil {
		t.logger.Error("Telegram消息发送失败", zap.Error(err))
		return
	}
	if resp.IsError() {
		t.logger.Error("Telegram接口返回错误",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()))
		return
	}

	t.logger.Debug("Telegram消息已发送")
}

// NotifyStart 发送启动通知
func (t *TelegramNotifier) NotifyStart(name string) {
	t.Send(fmt.Sprintf("🚀 *%s 已启动*\n\n时间: %s", name, time.Now().Format(time.RFC3339)))
}

// NotifyStop 发送停止通知
func (t *TelegramNotifier) NotifyStop(name, reason string) {
	msg := fmt.Sprintf("🛑 *%s 已停止*\n\n时间: %s", name, time.Now().Format(time.RFC3339))
	if reason != "" {
		msg += "\n原因: " + reason
	}
	t.Send(msg)
}

func (t *TelegramNotifier) OnEvent(e *hedge.Event) {
	switch e.Type {
	case hedge.EventUnhedgedExposure:
		if e.Exposure == nil {
			return
		}
		t.Send(fmt.Sprintf(
			"🚨 *未对冲敞口*\n\n交易所: %s\n交易对: %s\n方向: %s\n数量: %.6f\n价格: %.2f\n原因: %s\n需要立即人工处理",
			e.Exposure.Exchange, e.Exposure.Symbol, e.Exposure.Side,
			e.Exposure.Size, e.Exposure.Price, e.Exposure.Reason))

	case hedge.EventEmergencyStop:
		t.Send(fmt.Sprintf("🚨 *紧急停止*\n\n%s", e.Message))

	case hedge.EventRoundFailed:
		roundID := ""
		if e.Round != nil {
			roundID = e.Round.ID
		}
		t.Send(fmt.Sprintf("❌ *对冲回合失败*\n\n回合: %s\n%s", roundID, e.Message))

	case hedge.EventRiskAlert:
		if e.Severity != hedge.SeverityHigh && e.Severity != hedge.SeverityMedium {
			return
		}
		emoji := "⚠️"
		if e.Severity == hedge.SeverityHigh {
			emoji = "🚨"
		}
		t.Send(fmt.Sprintf("%s *风控告警*\n\n%s", emoji, e.Message))

	case hedge.EventRoundCompleted:
		if e.Round == nil || e.Round.PnL == nil {
			return
		}
		emoji := "📈"
		if e.Round.PnL.Total < 0 {
			emoji = "📉"
		}
		t.Send(fmt.Sprintf(
			"%s *对冲回合完成*\n\n回合: %s\n交易对: %s\n盈亏: %.4f",
			emoji, e.Round.ID, e.Round.Symbol, e.Round.PnL.Total))
	}
}
