package xinterval

import "errors"

// 构造期配置错误。由 New 同步返回，不可恢复。
var (
	// ErrNilTask 表示任务为 nil。
	ErrNilTask = errors.New("xinterval: task cannot be nil")

	// ErrMissingInterval 表示未配置任何间隔来源。
	ErrMissingInterval = errors.New("xinterval: interval is required")

	// ErrConflictingInterval 表示配置了多个间隔来源
	// （WithInterval / WithIntervalFunc / WithCronSpec 互斥）。
	ErrConflictingInterval = errors.New("xinterval: conflicting interval sources")

	// ErrInvalidInterval 表示间隔非法（非正的固定间隔或无法解析的 cron 表达式）。
	ErrInvalidInterval = errors.New("xinterval: invalid interval")

	// ErrInvalidStallThreshold 表示失速阈值非正。
	ErrInvalidStallThreshold = errors.New("xinterval: invalid stall threshold")
)

// 运行期错误。
var (
	// ErrAlreadyActive 表示在非 INACTIVE 状态下调用了 Start/StartAfter。
	// 这是使用错误而非可重试条件，且不影响既有调度。
	ErrAlreadyActive = errors.New("xinterval: scheduler already active")

	// ErrNegativeDelay 表示 StartAfter 收到负延迟。
	ErrNegativeDelay = errors.New("xinterval: negative start delay")
)
