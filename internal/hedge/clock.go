package hedge

import (
	"context"
	"time"
)

// Clock 时间源抽象，测试中替换为虚拟时钟以避免真实等待
type Clock interface {
	Now() time.Time
	// Sleep 等待d时长，ctx取消时提前返回ctx的错误
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// NewRealClock 创建使用系统时间的时钟
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
