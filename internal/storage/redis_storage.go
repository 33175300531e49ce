package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/life2you_mini/hedgex/internal/hedge"
)

// Redis 键前缀常量
const (
	// 对冲回合相关
	keyRoundPrefix  = "hedge:round:"
	keyRoundHistory = "hedge:round:history"

	// 累计统计
	keyStats = "hedge:stats"

	// 未对冲敞口相关
	keyExposureHistory = "hedge:exposure:history"

	// 过期时间（秒）
	expiryRound    = 86400 * 90  // 90天
	expiryExposure = 86400 * 365 // 365天
)

// RedisStorage Redis存储实现
type RedisStorage struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStorage 创建Redis存储
func NewRedisStorage(client *redis.Client, logger *zap.Logger) *RedisStorage {
	return &RedisStorage{
		client: client,
		logger: logger,
	}
}

// Initialize 初始化Redis存储
func (s *RedisStorage) Initialize(ctx context.Context) error {
	// 测试连接
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Error("Redis连接失败", zap.Error(err))
		return fmt.Errorf("redis连接失败: %w", err)
	}

	s.logger.Info("Redis存储初始化成功")
	return nil
}

// Close 关闭Redis连接
func (s *RedisStorage) Close(ctx context.Context) error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("关闭Redis连接失败", zap.Error(err))
		return fmt.Errorf("关闭Redis连接失败: %w", err)
	}

	s.logger.Info("Redis连接已关闭")
	return nil
}

// Health 检查Redis健康状态
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// StoreRound 存储对冲回合。回合按ID单独存储，
// 同时把ID记入按开始时间排序的历史有序集合
func (s *RedisStorage) StoreRound(ctx context.Context, round *hedge.Round) error {
	jsonData, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("序列化回合数据失败: %w", err)
	}

	key := keyRoundPrefix + round.ID

	// 使用Pipeline批量执行
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, jsonData, time.Duration(expiryRound)*time.Second)
	pipe.ZAdd(ctx, keyRoundHistory, redis.Z{
		Score:  float64(round.StartTime.Unix()),
		Member: round.ID,
	})
	pipe.Expire(ctx, keyRoundHistory, time.Duration(expiryRound)*time.Second)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("存储回合数据失败: %w", err)
	}

	return nil
}

// GetRoundByID 根据ID获取对冲回合
func (s *RedisStorage) GetRoundByID(ctx context.Context, roundID string) (*hedge.Round, error) {
	key := keyRoundPrefix + roundID

	jsonData, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("回合不存在: %s", roundID)
		}
		return nil, fmt.Errorf("获取回合数据失败: %w", err)
	}

	var round hedge.Round
	if err := json.Unmarshal([]byte(jsonData), &round); err != nil {
		return nil, fmt.Errorf("解析回合数据失败: %w", err)
	}

	return &round, nil
}

// GetRecentRounds 获取最近的N个对冲回合，按开始时间倒序
func (s *RedisStorage) GetRecentRounds(ctx context.Context, limit int) ([]*hedge.Round, error) {
	ids, err := s.client.ZRevRange(ctx, keyRoundHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取回合ID列表失败: %w", err)
	}

	rounds := make([]*hedge.Round, 0, len(ids))
	for _, id := range ids {
		round, err := s.GetRoundByID(ctx, id)
		if err != nil {
			s.logger.Warn("获取回合数据失败", zap.Error(err), zap.String("round_id", id))
			continue
		}
		rounds = append(rounds, round)
	}

	return rounds, nil
}

// StoreStats 存储累计统计快照
func (s *RedisStorage) StoreStats(ctx context.Context, stats *hedge.Stats) error {
	jsonData, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("序列化统计数据失败: %w", err)
	}

	if err := s.client.Set(ctx, keyStats, jsonData, 0).Err(); err != nil {
		return fmt.Errorf("存储统计数据失败: %w", err)
	}

	return nil
}

// GetStats 获取累计统计，不存在时返回零值
func (s *RedisStorage) GetStats(ctx context.Context) (*hedge.Stats, error) {
	jsonData, err := s.client.Get(ctx, keyStats).Result()
	if err != nil {
		if err == redis.Nil {
			return &hedge.Stats{}, nil
		}
		return nil, fmt.Errorf("获取统计数据失败: %w", err)
	}

	var stats hedge.Stats
	if err := json.Unmarshal([]byte(jsonData), &stats); err != nil {
		return nil, fmt.Errorf("解析统计数据失败: %w", err)
	}

	return &stats, nil
}

// StoreExposure 存储未对冲敞口记录（使用有序集合，按时间戳排序）
func (s *RedisStorage) StoreExposure(ctx context.Context, exposure *hedge.Exposure) error {
	jsonData, err := json.Marshal(exposure)
	if err != nil {
		return fmt.Errorf("序列化敞口数据失败: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, keyExposureHistory, redis.Z{
		Score:  float64(exposure.Timestamp.Unix()),
		Member: jsonData,
	})
	pipe.Expire(ctx, keyExposureHistory, time.Duration(expiryExposure)*time.Second)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("存储敞口数据失败: %w", err)
	}

	return nil
}

// GetRecentExposures 获取最近的N条未对冲敞口记录
func (s *RedisStorage) GetRecentExposures(ctx context.Context, limit int) ([]*hedge.Exposure, error) {
	results, err := s.client.ZRevRange(ctx, keyExposureHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取敞口历史数据失败: %w", err)
	}

	exposures := make([]*hedge.Exposure, 0, len(results))
	for _, jsonData := range results {
		var exposure hedge.Exposure
		if err := json.Unmarshal([]byte(jsonData), &exposure); err != nil {
			s.logger.Warn("解析敞口数据失败", zap.Error(err), zap.String("data", jsonData))
			continue
		}
		exposures = append(exposures, &exposure)
	}

	return exposures, nil
}
