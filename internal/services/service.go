package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/hedgex/internal/config"
	"github.com/life2you_mini/hedgex/internal/exchange"
	"github.com/life2you_mini/hedgex/internal/hedge"
	"github.com/life2you_mini/hedgex/internal/notify"
	"github.com/life2you_mini/hedgex/internal/risk"
	"github.com/life2you_mini/hedgex/internal/storage"
)

// HedgeService 双交易所对冲执行服务
type HedgeService struct {
	ctx          context.Context
	cancel       context.CancelFunc
	logger       *zap.Logger
	store        *storage.RedisStorage
	notifier     *notify.TelegramNotifier
	riskManager  *risk.Manager
	orchestrator *hedge.Orchestrator
	started      bool
	done         chan struct{}
}

// NewHedgeService 创建对冲执行服务
func NewHedgeService(
	parentCtx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
) (*HedgeService, error) {
	// 创建服务上下文
	ctx, cancel := context.WithCancel(parentCtx)

	// 初始化Redis存储
	redisClient, err := storage.NewRedisClient(storage.ClientOptions{
		Host:     cfg.Redis.Host,
		Port:     strconv.Itoa(cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("初始化Redis客户端失败: %w", err)
	}
	store := storage.NewRedisStorage(redisClient, logger)
	if err := store.Initialize(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	// 创建交易所工厂
	exchangeFactory := exchange.CreateExchangeFactory(
		logger,
		&exchange.BinanceConfig{
			Enabled:   cfg.Exchanges.Binance.Enabled,
			APIKey:    cfg.Exchanges.Binance.APIKey,
			APISecret: cfg.Exchanges.Binance.APISecret,
		},
		&exchange.OKXConfig{
			Enabled:    cfg.Exchanges.OKX.Enabled,
			APIKey:     cfg.Exchanges.OKX.APIKey,
			APISecret:  cfg.Exchanges.OKX.APISecret,
			Passphrase: cfg.Exchanges.OKX.Passphrase,
		},
		&exchange.BitgetConfig{
			Enabled:    cfg.Exchanges.Bitget.Enabled,
			APIKey:     cfg.Exchanges.Bitget.APIKey,
			APISecret:  cfg.Exchanges.Bitget.APISecret,
			Passphrase: cfg.Exchanges.Bitget.Passphrase,
		},
	)

	// 取主动腿与对冲腿交易所
	primaryEx, ok := exchangeFactory.Get(cfg.Exchanges.Primary)
	if !ok {
		cancel()
		return nil, fmt.Errorf("主动腿交易所%s未注册", cfg.Exchanges.Primary)
	}
	hedgeEx, ok := exchangeFactory.Get(cfg.Exchanges.Hedge)
	if !ok {
		cancel()
		return nil, fmt.Errorf("对冲腿交易所%s未注册", cfg.Exchanges.Hedge)
	}

	// 设置双边杠杆，失败只告警不阻塞启动
	if cfg.Strategy.Leverage > 0 {
		for _, ex := range []exchange.Exchange{primaryEx, hedgeEx} {
			if err := ex.SetLeverage(ctx, cfg.Strategy.Symbol, cfg.Strategy.Leverage); err != nil {
				logger.Warn("设置杠杆失败",
					zap.String("exchange", ex.GetExchangeName()),
					zap.Int("leverage", cfg.Strategy.Leverage),
					zap.Error(err))
			}
		}
	}

	// 观察者链:结构化日志 + Telegram告警 + 回合落盘
	notifier := notify.NewTelegramNotifier(notify.TelegramConfig{
		Enabled:  cfg.Notification.Telegram.Enabled,
		BotToken: cfg.Notification.Telegram.BotToken,
		ChatID:   cfg.Notification.Telegram.ChatID,
	}, logger)

	observers := hedge.NewMultiObserver(hedge.NewZapObserver(logger))
	if cfg.Notification.Telegram.Enabled {
		observers.Add(notifier)
	}

	// 风控管理器
	riskManager := risk.NewManager(risk.Config{
		MaxPositionSize:    cfg.Risk.MaxPositionSize,
		MaxTotalExposure:   cfg.Risk.MaxTotalExposure,
		MaxSlippage:        cfg.Risk.MaxSlippage,
		MaxLossPerTrade:    cfg.Risk.MaxLossPerTrade,
		MaxDailyLoss:       cfg.Risk.MaxDailyLoss,
		EmergencyStopLoss:  cfg.Risk.EmergencyStopLoss,
		ImbalanceThreshold: cfg.Risk.ImbalanceThreshold,
	}, observers, logger)

	// 对冲编排器
	orchestrator := hedge.NewOrchestrator(hedge.Config{
		Symbol:               cfg.Strategy.Symbol,
		Size:                 cfg.Strategy.Size,
		PrimarySide:          cfg.Strategy.PrimarySide,
		HoldTime:             time.Duration(cfg.Strategy.HoldTimeSeconds) * time.Second,
		RoundInterval:        time.Duration(cfg.Strategy.RoundIntervalSeconds) * time.Second,
		MaxRounds:            cfg.Strategy.MaxRounds,
		StopOnError:          cfg.Strategy.StopOnError,
		HedgeRecoveryRetries: cfg.Strategy.Hedge.RecoveryRetries,
		HedgeRecoveryDelay:   time.Duration(cfg.Strategy.Hedge.RecoveryDelaySeconds) * time.Second,
		Primary: hedge.PrimaryOrderConfig{
			PriceStrategy: cfg.Strategy.Primary.PriceStrategy,
			TickSize:      cfg.Strategy.Primary.TickSize,
			PollInterval:  time.Duration(cfg.Strategy.Primary.PollIntervalMs) * time.Millisecond,
			FillTimeout:   time.Duration(cfg.Strategy.Primary.FillTimeoutSeconds) * time.Second,
			MaxRetries:    cfg.Strategy.Primary.MaxRetries,
		},
		Hedge: hedge.HedgeConfig{
			MaxSlippage: cfg.Strategy.Hedge.MaxSlippage,
			MaxRetries:  cfg.Strategy.Hedge.MaxRetries,
			RetryDelay:  time.Duration(cfg.Strategy.Hedge.RetryDelayMs) * time.Millisecond,
		},
		PrimaryFees: hedge.FeeConfig{
			Taker: cfg.Strategy.PrimaryFees.Taker,
			Maker: cfg.Strategy.PrimaryFees.Maker,
		},
		HedgeFees: hedge.FeeConfig{
			Taker: cfg.Strategy.HedgeFees.Taker,
			Maker: cfg.Strategy.HedgeFees.Maker,
		},
	}, hedge.Deps{
		PrimaryExchange: primaryEx,
		HedgeExchange:   hedgeEx,
		Risk:            riskManager,
		Observer:        observers,
		Logger:          logger,
	})

	// 回合落盘依赖编排器统计，最后挂到观察者链上
	recorder := storage.NewRoundRecorder(store, orchestrator.Stats, logger)
	observers.Add(recorder)

	return &HedgeService{
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
		store:        store,
		notifier:     notifier,
		riskManager:  riskManager,
		orchestrator: orchestrator,
		done:         make(chan struct{}),
	}, nil
}

// Start 启动循环对冲。回合循环在后台goroutine中运行，
// 结束或出错后通过Done()通知调用方
func (s *HedgeService) Start() {
	s.logger.Info("启动对冲执行服务")
	s.notifier.NotifyStart("hedgex")
	s.started = true

	go func() {
		defer close(s.done)

		rounds, err := s.orchestrator.RunLoop(s.ctx)
		if err != nil {
			s.logger.Error("对冲循环异常结束",
				zap.Int("completed_rounds", len(rounds)),
				zap.Error(err))
			return
		}
		s.logger.Info("对冲循环结束", zap.Int("rounds", len(rounds)))
	}()
}

// RunOnce 同步执行单个对冲回合
func (s *HedgeService) RunOnce(ctx context.Context) (*hedge.Round, error) {
	return s.orchestrator.RunOnce(ctx)
}

// SpreadInfo 查询当前双边价差
func (s *HedgeService) SpreadInfo(ctx context.Context) (*hedge.SpreadInfo, error) {
	return s.orchestrator.SpreadInfo(ctx)
}

// Stats 返回累计统计
func (s *HedgeService) Stats() hedge.Stats {
	return s.orchestrator.Stats()
}

// Done 回合循环结束时关闭
func (s *HedgeService) Done() <-chan struct{} {
	return s.done
}

// Stop 停止服务
func (s *HedgeService) Stop(ctx context.Context) error {
	s.logger.Info("停止对冲执行服务")

	// 请求编排器在安全点停止
	s.orchestrator.Stop()

	// 等待在途回合结束或超时
	if s.started {
		drainTimer := time.NewTimer(5 * time.Second)
		defer drainTimer.Stop()
		select {
		case <-s.done:
		case <-drainTimer.C:
			s.logger.Warn("等待在途回合超时，强制停止")
		case <-ctx.Done():
		}
	}

	// 取消服务上下文
	s.cancel()

	// 关闭存储
	if err := s.store.Close(ctx); err != nil {
		s.logger.Error("关闭存储失败", zap.Error(err))
	}

	s.notifier.NotifyStop("hedgex", "收到停止指令")

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
