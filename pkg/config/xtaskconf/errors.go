package xtaskconf

import "errors"

// 配置加载和解析相关错误。
var (
	// ErrEmptyPath 表示配置文件路径为空。
	ErrEmptyPath = errors.New("xtaskconf: empty config path")

	// ErrUnsupportedFormat 表示不支持的配置格式。
	ErrUnsupportedFormat = errors.New("xtaskconf: unsupported config format")

	// ErrLoadFailed 表示配置加载失败。
	ErrLoadFailed = errors.New("xtaskconf: failed to load config")

	// ErrParseFailed 表示配置解析失败。
	ErrParseFailed = errors.New("xtaskconf: failed to parse config")

	// ErrUnmarshalFailed 表示配置反序列化失败。
	ErrUnmarshalFailed = errors.New("xtaskconf: failed to unmarshal config")
)

// 配置校验相关错误。
var (
	// ErrMissingCommand 表示未配置要执行的命令。
	ErrMissingCommand = errors.New("xtaskconf: task command is required")

	// ErrMissingSchedule 表示 interval 与 cron 均未配置。
	ErrMissingSchedule = errors.New("xtaskconf: interval or cron is required")

	// ErrConflictingSchedule 表示 interval 与 cron 同时配置（二者互斥）。
	ErrConflictingSchedule = errors.New("xtaskconf: interval and cron are mutually exclusive")

	// ErrInvalidSchedule 表示 interval 为负值。
	ErrInvalidSchedule = errors.New("xtaskconf: invalid interval")

	// ErrInvalidStall 表示失速阈值为负值。
	ErrInvalidStall = errors.New("xtaskconf: invalid stall threshold")

	// ErrNegativeStartDelay 表示启动延迟为负值。
	ErrNegativeStartDelay = errors.New("xtaskconf: negative start delay")
)
