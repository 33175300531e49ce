package config

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构
type Config struct {
	Exchanges    ExchangesConfig    `mapstructure:"exchanges"`
	Strategy     StrategyConfig     `mapstructure:"strategy"`
	Risk         RiskConfig         `mapstructure:"risk"`
	System       SystemConfig       `mapstructure:"system"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ExchangesConfig 交易所配置。Primary/Hedge指定主动腿与对冲腿
// 使用的交易所名称，必须是下方已启用的交易所之一
type ExchangesConfig struct {
	Primary string        `mapstructure:"primary"`
	Hedge   string        `mapstructure:"hedge"`
	Binance BinanceConfig `mapstructure:"binance"`
	OKX     OKXConfig     `mapstructure:"okx"`
	Bitget  BitgetConfig  `mapstructure:"bitget"`
}

// BinanceConfig Binance配置
type BinanceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`    // 从配置文件或环境变量中读取
	APISecret string `mapstructure:"api_secret"` // 从配置文件或环境变量中读取
}

// OKXConfig OKX配置
type OKXConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIKey     string `mapstructure:"api_key"`    // 从配置文件或环境变量中读取
	APISecret  string `mapstructure:"api_secret"` // 从配置文件或环境变量中读取
	Passphrase string `mapstructure:"passphrase"` // 从配置文件或环境变量中读取
}

// BitgetConfig Bitget配置
type BitgetConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIKey     string `mapstructure:"api_key"`    // 从配置文件或环境变量中读取
	APISecret  string `mapstructure:"api_secret"` // 从配置文件或环境变量中读取
	Passphrase string `mapstructure:"passphrase"` // 从配置文件或环境变量中读取
}

// StrategyConfig 对冲策略配置
type StrategyConfig struct {
	Symbol               string  `mapstructure:"symbol"`
	Size                 float64 `mapstructure:"size"`
	PrimarySide          string  `mapstructure:"primary_side"` // buy / sell
	Leverage             int     `mapstructure:"leverage"`
	HoldTimeSeconds      int     `mapstructure:"hold_time_seconds"`
	RoundIntervalSeconds int     `mapstructure:"round_interval_seconds"`
	MaxRounds            int     `mapstructure:"max_rounds"`
	StopOnError          bool    `mapstructure:"stop_on_error"`

	Primary PrimaryLegConfig `mapstructure:"primary"`
	Hedge   HedgeLegConfig   `mapstructure:"hedge"`

	PrimaryFees FeesConfig `mapstructure:"primary_fees"`
	HedgeFees   FeesConfig `mapstructure:"hedge_fees"`
}

// PrimaryLegConfig 主动腿挂单配置
type PrimaryLegConfig struct {
	PriceStrategy      string  `mapstructure:"price_strategy"` // best / mid / aggressive
	TickSize           float64 `mapstructure:"tick_size"`
	PollIntervalMs     int     `mapstructure:"poll_interval_ms"`
	FillTimeoutSeconds int     `mapstructure:"fill_timeout_seconds"`
	MaxRetries         int     `mapstructure:"max_retries"`
}

// HedgeLegConfig 对冲腿执行配置
type HedgeLegConfig struct {
	MaxSlippage          float64 `mapstructure:"max_slippage"`
	MaxRetries           int     `mapstructure:"max_retries"`
	RetryDelayMs         int     `mapstructure:"retry_delay_ms"`
	RecoveryRetries      int     `mapstructure:"recovery_retries"`
	RecoveryDelaySeconds int     `mapstructure:"recovery_delay_seconds"`
}

// FeesConfig 单边费率配置
type FeesConfig struct {
	Taker float64 `mapstructure:"taker"`
	Maker float64 `mapstructure:"maker"`
}

// RiskConfig 风险管理配置
type RiskConfig struct {
	MaxPositionSize    float64 `mapstructure:"max_position_size"`
	MaxTotalExposure   float64 `mapstructure:"max_total_exposure"`
	MaxSlippage        float64 `mapstructure:"max_slippage"`
	MaxLossPerTrade    float64 `mapstructure:"max_loss_per_trade"`
	MaxDailyLoss       float64 `mapstructure:"max_daily_loss"`
	EmergencyStopLoss  float64 `mapstructure:"emergency_stop_loss"`
	ImbalanceThreshold float64 `mapstructure:"imbalance_threshold"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`
	DataDir  string `mapstructure:"data_dir"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig Telegram配置
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"` // 从配置文件或环境变量中读取
	ChatID   string `mapstructure:"chat_id"`   // 从配置文件或环境变量中读取
}

// LoadConfig 从文件加载配置
func LoadConfig(filePath string) (*Config, error) {
	// 使用Viper读取配置
	v := viper.New()
	v.SetConfigFile(filePath)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 绑定环境变量（可选，如果需要从环境变量覆盖配置）
	v.AutomaticEnv()
	v.SetEnvPrefix("HEDGEX") // 环境变量前缀，如HEDGEX_REDIS_PASSWORD

	// 特定环境变量映射，如果存在这些环境变量则优先使用
	if binanceApiKey := os.Getenv("BINANCE_API_KEY"); binanceApiKey != "" {
		v.Set("exchanges.binance.api_key", binanceApiKey)
	}
	if binanceApiSecret := os.Getenv("BINANCE_API_SECRET"); binanceApiSecret != "" {
		v.Set("exchanges.binance.api_secret", binanceApiSecret)
	}
	if okxApiKey := os.Getenv("OKX_API_KEY"); okxApiKey != "" {
		v.Set("exchanges.okx.api_key", okxApiKey)
	}
	if okxApiSecret := os.Getenv("OKX_API_SECRET"); okxApiSecret != "" {
		v.Set("exchanges.okx.api_secret", okxApiSecret)
	}
	if okxPassphrase := os.Getenv("OKX_PASSPHRASE"); okxPassphrase != "" {
		v.Set("exchanges.okx.passphrase", okxPassphrase)
	}
	if bitgetApiKey := os.Getenv("BITGET_API_KEY"); bitgetApiKey != "" {
		v.Set("exchanges.bitget.api_key", bitgetApiKey)
	}
	if bitgetApiSecret := os.Getenv("BITGET_API_SECRET"); bitgetApiSecret != "" {
		v.Set("exchanges.bitget.api_secret", bitgetApiSecret)
	}
	if bitgetPassphrase := os.Getenv("BITGET_PASSPHRASE"); bitgetPassphrase != "" {
		v.Set("exchanges.bitget.passphrase", bitgetPassphrase)
	}
	if telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN"); telegramToken != "" {
		v.Set("notification.telegram.bot_token", telegramToken)
	}
	if telegramChatID := os.Getenv("TELEGRAM_CHAT_ID"); telegramChatID != "" {
		v.Set("notification.telegram.chat_id", telegramChatID)
	}

	// 解析配置到结构体
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 验证配置有效性
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// 保留原有的yaml加载函数以备不时之需
func LoadConfigFromYAML(filePath string) (*Config, error) {
	yamlFile, err := ioutil.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 验证配置有效性
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// exchangeEnabled 指定名称的交易所是否已启用
func exchangeEnabled(config *Config, name string) bool {
	switch name {
	case "Binance":
		return config.Exchanges.Binance.Enabled
	case "OKX":
		return config.Exchanges.OKX.Enabled
	case "Bitget":
		return config.Exchanges.Bitget.Enabled
	default:
		return false
	}
}

// validateConfig 验证配置有效性
func validateConfig(config *Config) error {
	// 验证主动腿与对冲腿的交易所指定
	if config.Exchanges.Primary == "" || config.Exchanges.Hedge == "" {
		return fmt.Errorf("必须指定主动腿与对冲腿使用的交易所")
	}
	if config.Exchanges.Primary == config.Exchanges.Hedge {
		return fmt.Errorf("主动腿与对冲腿不能使用同一个交易所")
	}
	if !exchangeEnabled(config, config.Exchanges.Primary) {
		return fmt.Errorf("主动腿交易所%s未启用或不存在", config.Exchanges.Primary)
	}
	if !exchangeEnabled(config, config.Exchanges.Hedge) {
		return fmt.Errorf("对冲腿交易所%s未启用或不存在", config.Exchanges.Hedge)
	}

	// 验证启用的交易所有API密钥
	if config.Exchanges.Binance.Enabled {
		if config.Exchanges.Binance.APIKey == "" || config.Exchanges.Binance.APISecret == "" {
			return fmt.Errorf("Binance已启用，但API密钥未配置")
		}
	}

	if config.Exchanges.OKX.Enabled {
		if config.Exchanges.OKX.APIKey == "" || config.Exchanges.OKX.APISecret == "" || config.Exchanges.OKX.Passphrase == "" {
			return fmt.Errorf("OKX已启用，但API密钥未完全配置")
		}
	}

	if config.Exchanges.Bitget.Enabled {
		if config.Exchanges.Bitget.APIKey == "" || config.Exchanges.Bitget.APISecret == "" || config.Exchanges.Bitget.Passphrase == "" {
			return fmt.Errorf("Bitget已启用，但API密钥未完全配置")
		}
	}

	// 验证策略参数
	if config.Strategy.Symbol == "" {
		return fmt.Errorf("交易对不能为空")
	}

	if config.Strategy.Size <= 0 {
		return fmt.Errorf("每回合数量必须大于0")
	}

	if config.Strategy.PrimarySide != "" &&
		config.Strategy.PrimarySide != "buy" && config.Strategy.PrimarySide != "sell" {
		return fmt.Errorf("主动腿方向必须是buy或sell")
	}

	switch config.Strategy.Primary.PriceStrategy {
	case "", "best", "mid", "aggressive":
	default:
		return fmt.Errorf("无效的定价策略: %s", config.Strategy.Primary.PriceStrategy)
	}

	if config.Strategy.Hedge.MaxSlippage < 0 {
		return fmt.Errorf("最大滑点不能为负数")
	}

	// 验证风控参数
	if config.Risk.MaxPositionSize > 0 && config.Strategy.Size > config.Risk.MaxPositionSize {
		return fmt.Errorf("每回合数量超过单笔上限")
	}

	// 验证Redis配置
	if config.Redis.Host == "" {
		return fmt.Errorf("Redis主机不能为空")
	}

	if config.Redis.Port <= 0 || config.Redis.Port > 65535 {
		return fmt.Errorf("无效的Redis端口")
	}

	return nil
}

// GetDefaultConfig 获取默认配置（用于生成示例配置）
func GetDefaultConfig() *Config {
	return &Config{
		Exchanges: ExchangesConfig{
			Primary: "Binance",
			Hedge:   "OKX",
			Binance: BinanceConfig{
				Enabled: true,
			},
			OKX: OKXConfig{
				Enabled: true,
			},
			Bitget: BitgetConfig{
				Enabled: false,
			},
		},
		Strategy: StrategyConfig{
			Symbol:               "BTC/USDT",
			Size:                 0.01,
			PrimarySide:          "buy",
			Leverage:             3,
			HoldTimeSeconds:      60,
			RoundIntervalSeconds: 30,
			MaxRounds:            10,
			StopOnError:          true,
			Primary: PrimaryLegConfig{
				PriceStrategy:      "best",
				TickSize:           0.1,
				PollIntervalMs:     500,
				FillTimeoutSeconds: 60,
				MaxRetries:         3,
			},
			Hedge: HedgeLegConfig{
				MaxSlippage:          0.005,
				MaxRetries:           3,
				RetryDelayMs:         1000,
				RecoveryRetries:      3,
				RecoveryDelaySeconds: 2,
			},
			PrimaryFees: FeesConfig{Taker: 0.0004, Maker: 0.0002},
			HedgeFees:   FeesConfig{Taker: 0.0005, Maker: 0.0002},
		},
		Risk: RiskConfig{
			MaxPositionSize:    0.1,
			MaxTotalExposure:   0.5,
			MaxSlippage:        0.005,
			MaxLossPerTrade:    50,
			MaxDailyLoss:       200,
			EmergencyStopLoss:  500,
			ImbalanceThreshold: 0.01,
		},
		System: SystemConfig{
			LogLevel: "INFO",
			LogDir:   "./logs",
			DataDir:  "./data",
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Notification: NotificationConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
	}
}

// SaveConfigToFile 将配置保存到文件
func SaveConfigToFile(config *Config, filePath string) error {
	v := viper.New()
	v.SetConfigFile(filePath)

	// 将配置转换为map
	// 注意：这里不包含敏感信息
	configMap := map[string]interface{}{
		"exchanges": map[string]interface{}{
			"primary": config.Exchanges.Primary,
			"hedge":   config.Exchanges.Hedge,
			"binance": map[string]interface{}{
				"enabled": config.Exchanges.Binance.Enabled,
			},
			"okx": map[string]interface{}{
				"enabled": config.Exchanges.OKX.Enabled,
			},
			"bitget": map[string]interface{}{
				"enabled": config.Exchanges.Bitget.Enabled,
			},
		},
		"strategy": map[string]interface{}{
			"symbol":                 config.Strategy.Symbol,
			"size":                   config.Strategy.Size,
			"primary_side":           config.Strategy.PrimarySide,
			"leverage":               config.Strategy.Leverage,
			"hold_time_seconds":      config.Strategy.HoldTimeSeconds,
			"round_interval_seconds": config.Strategy.RoundIntervalSeconds,
			"max_rounds":             config.Strategy.MaxRounds,
			"stop_on_error":          config.Strategy.StopOnError,
			"primary": map[string]interface{}{
				"price_strategy":       config.Strategy.Primary.PriceStrategy,
				"tick_size":            config.Strategy.Primary.TickSize,
				"poll_interval_ms":     config.Strategy.Primary.PollIntervalMs,
				"fill_timeout_seconds": config.Strategy.Primary.FillTimeoutSeconds,
				"max_retries":          config.Strategy.Primary.MaxRetries,
			},
			"hedge": map[string]interface{}{
				"max_slippage":           config.Strategy.Hedge.MaxSlippage,
				"max_retries":            config.Strategy.Hedge.MaxRetries,
				"retry_delay_ms":         config.Strategy.Hedge.RetryDelayMs,
				"recovery_retries":       config.Strategy.Hedge.RecoveryRetries,
				"recovery_delay_seconds": config.Strategy.Hedge.RecoveryDelaySeconds,
			},
			"primary_fees": map[string]interface{}{
				"taker": config.Strategy.PrimaryFees.Taker,
				"maker": config.Strategy.PrimaryFees.Maker,
			},
			"hedge_fees": map[string]interface{}{
				"taker": config.Strategy.HedgeFees.Taker,
				"maker": config.Strategy.HedgeFees.Maker,
			},
		},
		"risk": map[string]interface{}{
			"max_position_size":   config.Risk.MaxPositionSize,
			"max_total_exposure":  config.Risk.MaxTotalExposure,
			"max_slippage":        config.Risk.MaxSlippage,
			"max_loss_per_trade":  config.Risk.MaxLossPerTrade,
			"max_daily_loss":      config.Risk.MaxDailyLoss,
			"emergency_stop_loss": config.Risk.EmergencyStopLoss,
			"imbalance_threshold": config.Risk.ImbalanceThreshold,
		},
		"system": map[string]interface{}{
			"log_level": config.System.LogLevel,
			"log_dir":   config.System.LogDir,
			"data_dir":  config.System.DataDir,
		},
		"redis": map[string]interface{}{
			"host":     config.Redis.Host,
			"port":     config.Redis.Port,
			"password": config.Redis.Password,
			"db":       config.Redis.DB,
		},
		"notification": map[string]interface{}{
			"telegram": map[string]interface{}{
				"enabled": config.Notification.Telegram.Enabled,
			},
		},
	}

	// 将配置设置到viper
	for k, val := range configMap {
		v.Set(k, val)
	}

	// 写入文件
	return v.WriteConfigAs(filePath)
}
