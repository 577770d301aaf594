package xinterval

import (
	"time"
)

// schedulerOptions 调度器配置。
type schedulerOptions struct {
	name           string        // 实例名（日志与观测标签）
	interval       time.Duration // 固定间隔（与 intervalFn/cronSpec 互斥）
	intervalFn     IntervalFunc  // 自定义间隔函数
	cronSpec       string        // cron 表达式间隔来源
	stallThreshold time.Duration // 失速阈值，0 表示不启用失速监控
	detached       bool          // 宿主退出时不等待调度结束
	logger         Logger
	observer       Observer
	hooks          []Hook
}

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{}
}

// Option 调度器配置选项。
type Option func(*schedulerOptions)

// WithName 设置实例名，用作日志与观测的标签。
func WithName(name string) Option {
	return func(o *schedulerOptions) {
		o.name = name
	}
}

// WithInterval 设置固定间隔。
//
// 数值间隔在构造时归一化为常量间隔函数。
// 与 [WithIntervalFunc]、[WithCronSpec] 互斥；负值在 New 时报错，
// 零值等同于未设置——需要零间隔（背靠背执行）时用
// WithIntervalFunc(Every(0)) 显式表达。
func WithInterval(d time.Duration) Option {
	return func(o *schedulerOptions) {
		o.interval = d
	}
}

// WithIntervalFunc 设置自定义间隔函数。
//
// fn 的输入为刚结束那次执行的耗时，返回该次执行的基准间隔，
// 可用于实现退避、抖动等动态节奏。与其他间隔来源互斥。
func WithIntervalFunc(fn IntervalFunc) Option {
	return func(o *schedulerOptions) {
		o.intervalFn = fn
	}
}

// WithCronSpec 以 cron 表达式作为间隔来源（见 [CronInterval]）。
// 与其他间隔来源互斥，非法表达式在 New 时报错。
func WithCronSpec(spec string) Option {
	return func(o *schedulerOptions) {
		o.cronSpec = spec
	}
}

// WithStallThreshold 启用失速监控。
//
// 单次执行超过 d 仍未宣告完成时，发布一次 timeout 事件。
// 失速通知不取消执行、不影响调度。负值在 New 时报错，0 等同于不启用。
func WithStallThreshold(d time.Duration) Option {
	return func(o *schedulerOptions) {
		o.stallThreshold = d
	}
}

// WithDetached 声明调度器为"分离"模式。
//
// Go 的运行时定时器本身不会阻止进程退出，该声明作用于生命周期层：
// 宿主（如 xschedctl 的运行器）不等待分离调度器回到 INACTIVE
// 即可退出。调度语义不受影响。
func WithDetached() Option {
	return func(o *schedulerOptions) {
		o.detached = true
	}
}

// WithLogger 设置日志记录器。接口兼容 slog 风格的键值参数。
func WithLogger(logger Logger) Option {
	return func(o *schedulerOptions) {
		o.logger = logger
	}
}

// WithObserver 设置可观测性实现（见 xspan 包）。
// 每次任务执行产生一个观测跨度。
func WithObserver(observer Observer) Option {
	return func(o *schedulerOptions) {
		o.observer = observer
	}
}

// WithHook 添加单个执行钩子。可多次调用，按添加顺序执行
// （Before 正序，After 逆序）。nil 钩子被忽略。
func WithHook(hook Hook) Option {
	return func(o *schedulerOptions) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}

// WithHooks 批量添加执行钩子，等同于多次调用 [WithHook]。
func WithHooks(hooks ...Hook) Option {
	return func(o *schedulerOptions) {
		for _, hook := range hooks {
			if hook != nil {
				o.hooks = append(o.hooks, hook)
			}
		}
	}
}

// validate 校验配置并归一化间隔来源。
func (o *schedulerOptions) validate() (IntervalFunc, error) {
	sources := 0
	if o.interval != 0 {
		sources++
	}
	if o.intervalFn != nil {
		sources++
	}
	if o.cronSpec != "" {
		sources++
	}

	switch {
	case sources == 0:
		return nil, ErrMissingInterval
	case sources > 1:
		return nil, ErrConflictingInterval
	}

	if o.stallThreshold < 0 {
		return nil, ErrInvalidStallThreshold
	}

	switch {
	case o.intervalFn != nil:
		return o.intervalFn, nil
	case o.cronSpec != "":
		return CronInterval(o.cronSpec)
	default:
		if o.interval < 0 {
			return nil, ErrInvalidInterval
		}
		return Every(o.interval), nil
	}
}
