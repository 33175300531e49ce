package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/hedgex/internal/hedge"
)

// 单次落盘操作的超时，Observer在引擎控制流中同步调用，不允许长时间阻塞
const recordTimeout = 5 * time.Second

// RoundRecorder 订阅引擎事件并把回合终态落盘:
// 回合完成或失败时写入回合与统计快照，出现未对冲敞口时追加敞口记录。
// 落盘失败只记日志，不影响引擎控制流。
type RoundRecorder struct {
	store  Store
	stats  func() hedge.Stats // 统计快照来源，可为nil
	logger *zap.Logger
}

// NewRoundRecorder 创建回合落盘Observer
func NewRoundRecorder(store Store, stats func() hedge.Stats, logger *zap.Logger) *RoundRecorder {
	return &RoundRecorder{
		store:  store,
		stats:  stats,
		logger: logger.With(zap.String("component", "round_recorder")),
	}
}

func (r *RoundRecorder) OnEvent(e *hedge.Event) {
	switch e.Type {
	case hedge.EventRoundCompleted, hedge.EventRoundFailed:
		if e.Round == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := r.store.StoreRound(ctx, e.Round); err != nil {
			r.logger.Warn("回合落盘失败",
				zap.Error(err),
				zap.String("roundId", e.Round.ID))
		}
		if r.stats != nil {
			snapshot := r.stats()
			if err := r.store.StoreStats(ctx, &snapshot); err != nil {
				r.logger.Warn("统计落盘失败", zap.Error(err))
			}
		}

	case hedge.EventUnhedgedExposure:
		if e.Exposure == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := r.store.StoreExposure(ctx, e.Exposure); err != nil {
			r.logger.Error("敞口落盘失败",
				zap.Error(err),
				zap.String("exchange", e.Exposure.Exchange),
				zap.Float64("size", e.Exposure.Size))
		}
	}
}
