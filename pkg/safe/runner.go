package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"zanowatcher.com/pkg/logger"
)

// Go starts fn in a goroutine that recovers and logs any panic instead of
// crashing the process.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				// 如果 logger 已初始化，用 logger 记；否则打印到标准输出
				if logger.Log != nil {
					logger.Error(context.Background(), "goroutine panic recovered",
						zap.Any("panic", r),
						zap.String("stack", stack),
					)
				} else {
					fmt.Printf("goroutine panic: %v\nstack: %s\n", r, stack)
				}
			}
		}()

		fn()
	}()
}

// GoCtx is Go but preserves ctx for log correlation.
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				if logger.Log != nil {
					logger.Error(ctx, "goroutine panic recovered",
						zap.Any("panic", r),
						zap.String("stack", stack),
					)
				} else {
					fmt.Printf("goroutine panic: %v\nstack: %s\n", r, stack)
				}
			}
		}()

		fn(ctx)
	}()
}
