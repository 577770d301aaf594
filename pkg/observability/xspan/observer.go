package xspan

import (
	"context"
	"time"
)

// Status 观测结果状态。
type Status string

const (
	// StatusOK 表示执行成功。
	StatusOK Status = "ok"
	// StatusError 表示执行失败。
	StatusError Status = "error"
)

// Attr 观测属性。
type Attr struct {
	Key   string
	Value any
}

// String 创建字符串属性。
func String(key, value string) Attr {
	return Attr{Key: key, Value: value}
}

// Int64 创建 int64 属性。
func Int64(key string, value int64) Attr {
	return Attr{Key: key, Value: value}
}

// Duration 创建时间间隔属性。
// 建议显式使用带单位的 key，例如 "elapsed_ms"。
func Duration(key string, value time.Duration) Attr {
	return Attr{Key: key, Value: value}
}

// SpanOptions 观测跨度的创建参数。
type SpanOptions struct {
	// Scheduler 调度器名称，未命名时实现应使用 "unnamed"。
	Scheduler string
	// Operation 操作名称，例如 "invoke"。
	Operation string
	// Attrs 附加属性。
	Attrs []Attr
}

// Result 观测跨度结束时的结果。
type Result struct {
	// Status 执行状态；为空时根据 Err 推导。
	Status Status
	// Err 执行错误。
	Err error
	// Attrs 附加属性。
	Attrs []Attr
}

// Span 一次观测跨度。
type Span interface {
	// End 结束观测并记录结果。实现必须幂等。
	End(result Result)
}

// Observer 统一观测接口。
type Observer interface {
	// Start 开始一次观测跨度。
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 空实现。
type NoopObserver struct{}

// Start 返回 ctx 和空跨度。若 ctx 为 nil，返回 context.Background()。
func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 空跨度实现。
type NoopSpan struct{}

// End 空实现。
func (NoopSpan) End(_ Result) {}

// Start 使用 observer 开始观测，保证返回非 nil 的 context 与 Span。
//
// nil ctx 替换为 context.Background()；nil observer 返回 NoopSpan；
// 自定义 Observer 返回 nil 值时同样兜底，调用方无需判空。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}

// resolveStatus 推导最终状态：显式 Status 优先，否则按 Err 判定。
func resolveStatus(result Result) Status {
	if result.Status != "" {
		return result.Status
	}
	if result.Err != nil {
		return StatusError
	}
	return StatusOK
}
