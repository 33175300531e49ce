package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/life2you_mini/hedgex/internal/config"
	"github.com/life2you_mini/hedgex/internal/logger"
	"github.com/life2you_mini/hedgex/internal/services"
)

var (
	configFile = flag.String("config", "config/config.yaml", "配置文件路径")
	runMode    = flag.String("mode", "loop", "运行模式: loop(循环对冲) / once(单回合) / spread(查看价差)")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 初始化启动日志
	bootLogger, err := initBootLogger()
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		bootLogger.Fatal("加载配置失败", zap.Error(err))
	}
	bootLogger.Info("加载配置成功", zap.String("配置文件", *configFile))

	// 切换到文件日志
	fileLogger, err := logger.NewLogger(cfg.System.LogDir, cfg.System.LogLevel)
	if err != nil {
		bootLogger.Fatal("初始化文件日志失败", zap.Error(err))
	}
	appLogger := fileLogger.Logger
	defer appLogger.Sync()

	// 创建上下文，用于处理信号
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// 创建服务
	service, err := services.NewHedgeService(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("创建服务失败", zap.Error(err))
	}

	switch *runMode {
	case "spread":
		runSpread(ctx, service, appLogger)
		shutdown(service, appLogger)
		return

	case "once":
		runOnce(ctx, service, appLogger, signalChan)
		shutdown(service, appLogger)
		return

	case "loop":
		// 启动服务
		service.Start()
		appLogger.Info("服务已启动")

		// 等待终止信号或回合循环自然结束
		select {
		case sig := <-signalChan:
			appLogger.Info("接收到信号，准备关闭服务", zap.String("signal", sig.String()))
		case <-service.Done():
			appLogger.Info("回合循环已结束，准备关闭服务")
		}
		shutdown(service, appLogger)

	default:
		appLogger.Fatal("无效的运行模式", zap.String("mode", *runMode))
	}
}

// runSpread 查询双边价差并打印
func runSpread(ctx context.Context, service *services.HedgeService, log *zap.Logger) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	info, err := service.SpreadInfo(queryCtx)
	if err != nil {
		log.Fatal("查询价差失败", zap.Error(err))
	}

	log.Info("当前双边价差",
		zap.String("symbol", info.Symbol),
		zap.Float64("primary_bid", info.PrimaryBid),
		zap.Float64("primary_ask", info.PrimaryAsk),
		zap.Float64("hedge_bid", info.HedgeBid),
		zap.Float64("hedge_ask", info.HedgeAsk),
		zap.Float64("spread_buy_primary", info.SpreadBuyPrimary),
		zap.Float64("net_buy_primary", info.NetBuyPrimary),
		zap.Float64("spread_sell_primary", info.SpreadSellPrimary),
		zap.Float64("net_sell_primary", info.NetSellPrimary))
}

// runOnce 同步执行单个对冲回合，信号触发提前停止
func runOnce(ctx context.Context, service *services.HedgeService, log *zap.Logger, signalChan chan os.Signal) {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if sig, ok := <-signalChan; ok {
			log.Info("接收到信号，取消当前回合", zap.String("signal", sig.String()))
			cancel()
		}
	}()

	round, err := service.RunOnce(roundCtx)
	if err != nil {
		log.Error("对冲回合失败", zap.Error(err))
	}
	if round != nil && round.PnL != nil {
		log.Info("对冲回合结束",
			zap.String("round_id", round.ID),
			zap.Bool("success", round.Success),
			zap.Float64("pnl", round.PnL.Total))
	}
}

// shutdown 优雅关闭服务
func shutdown(service *services.HedgeService, log *zap.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := service.Stop(shutdownCtx); err != nil {
		log.Error("服务关闭失败", zap.Error(err))
		os.Exit(1)
	}
	log.Info("服务已优雅关闭")
}

// 初始化启动阶段的控制台日志
func initBootLogger() (*zap.Logger, error) {
	// 使用开发环境配置，输出更易读的格式
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}
