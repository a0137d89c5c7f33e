package gosync

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Go 封装的go协程工具，会兜住panic
func Go(ctx context.Context, task func(ctx context.Context)) {
	go func(ctx context.Context, f func(ctx context.Context)) {
		defer func() {
			// 在每个协程内部接收该协程自身抛出来的panic
			if err := recover(); err != nil {
				logrus.Errorf("[gosync] goroutine panic: %v", err)
			}
		}()

		f(ctx)
	}(ctx, task)
}
