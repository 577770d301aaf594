package xinterval

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xsched/pkg/observability/xspan"
)

// Done 完成回调。任务在单次执行结束时恰好调用一次，
// err 非 nil 表示本次执行失败（发布到 error 主题，不影响调度节奏）。
// 重复调用会被忽略并记录告警日志。
type Done func(err error)

// Task 周期性任务接口。
//
// Run 可以同步或异步地调用 done；在 done 被调用之前，
// 调度器不会开始下一次执行。ctx 为 Start/StartAfter 传入的上下文，
// 调度器自身从不取消它（Stop 不中断在途执行）。
type Task interface {
	Run(ctx context.Context, done Done)
}

// TaskFunc 函数适配器，将普通函数转换为 [Task] 接口。
type TaskFunc func(ctx context.Context, done Done)

// Run 实现 [Task] 接口。
func (f TaskFunc) Run(ctx context.Context, done Done) {
	f(ctx, done)
}

// BindArgs 将带固定前置参数的函数适配为 [Task]。
//
// args 在每次执行时原样转发。这是无状态的参数绑定能力，
// 捕获变量的闭包通常是更 Go 的写法，BindArgs 服务于参数
// 来自配置等运行期才确定的场景。
func BindArgs(fn func(ctx context.Context, args []any, done Done), args ...any) Task {
	bound := make([]any, len(args))
	copy(bound, args)
	return TaskFunc(func(ctx context.Context, done Done) {
		fn(ctx, bound, done)
	})
}

// State 调度器状态。
type State int32

const (
	// StateInactive 初始/终止状态，无在途执行、无已布防定时器。
	StateInactive State = iota
	// StatePending 下一次执行的定时器已布防。
	StatePending
	// StateExecuting 任务执行中，完成回调尚未触发。
	StateExecuting
	// StateExecutingStopRequested 任务执行中，且已收到停止请求；
	// 完成回调触发后调度终止，不再布防下一次执行。
	StateExecutingStopRequested
)

// String 返回状态的可读表示。
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateExecutingStopRequested:
		return "executing-stop-requested"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Stall 失速通知载荷，发布到 timeout 主题。
type Stall struct {
	// Invocation 本次执行的唯一标识。
	Invocation uuid.UUID
	// Threshold 配置的失速阈值。
	Threshold time.Duration
	// StartedAt 本次执行的开始时间。
	StartedAt time.Time
}

// Logger 日志接口，兼容 slog 风格的键值参数。
// 不设置时调度器保持静默（错误路径退化为标准库 log 输出）。
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
}

// Observer 可观测性接口，直接复用 xspan.Observer。
// 每次任务执行产生一个观测跨度。
type Observer = xspan.Observer

// Hook 执行钩子接口。
//
// Before 在任务执行前调用（正序），返回的 context 传递给任务与后续
// 钩子；After 在完成回调触发后调用（逆序，类似 defer）。
type Hook interface {
	// Before 在第 seq 次执行开始前调用。
	Before(ctx context.Context, seq uint64) context.Context
	// After 在第 seq 次执行的完成回调触发后调用。
	After(ctx context.Context, seq uint64, elapsed time.Duration, err error)
}

// HookFunc 函数适配器，将函数对转换为 [Hook] 接口。
type HookFunc struct {
	// BeforeFn 执行前调用，可为 nil。
	BeforeFn func(ctx context.Context, seq uint64) context.Context
	// AfterFn 完成后调用，可为 nil。
	AfterFn func(ctx context.Context, seq uint64, elapsed time.Duration, err error)
}

// Before 实现 [Hook] 接口。
func (h HookFunc) Before(ctx context.Context, seq uint64) context.Context {
	if h.BeforeFn != nil {
		return h.BeforeFn(ctx, seq)
	}
	return ctx
}

// After 实现 [Hook] 接口。
func (h HookFunc) After(ctx context.Context, seq uint64, elapsed time.Duration, err error) {
	if h.AfterFn != nil {
		h.AfterFn(ctx, seq, elapsed, err)
	}
}
