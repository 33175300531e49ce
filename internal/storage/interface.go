package storage

import (
	"context"

	"github.com/life2you_mini/hedgex/internal/hedge"
)

// Store 定义存储层接口，可以有多种实现（Redis、PostgreSQL等）
type Store interface {
	// 基础操作
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
	Health(ctx context.Context) error

	// 对冲回合操作
	StoreRound(ctx context.Context, round *hedge.Round) error
	GetRoundByID(ctx context.Context, roundID string) (*hedge.Round, error)
	GetRecentRounds(ctx context.Context, limit int) ([]*hedge.Round, error)

	// 累计统计操作
	StoreStats(ctx context.Context, stats *hedge.Stats) error
	GetStats(ctx context.Context) (*hedge.Stats, error)

	// 未对冲敞口操作，敞口记录只追加不覆盖
	StoreExposure(ctx context.Context, exposure *hedge.Exposure) error
	GetRecentExposures(ctx context.Context, limit int) ([]*hedge.Exposure, error)
}
