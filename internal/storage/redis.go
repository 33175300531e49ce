package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions Redis客户端配置选项
type ClientOptions struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewRedisClient 创建新的Redis客户端
func NewRedisClient(opts ClientOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Host + ":" + opts.Port,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
