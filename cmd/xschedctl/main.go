// xschedctl 按照完成驱动的周期调度执行命令。
//
// 与 cron 不同，xschedctl 的下一次执行从上一次执行宣告完成后才开始
// 计时：慢任务不会与自己并行执行，耗时吃掉间隔时背靠背追赶。
//
// 用法:
//
//	xschedctl [全局选项] <命令> [命令参数]
//
// 命令:
//
//	run            按调度执行配置的命令
//	check          校验配置文件
//	help           显示帮助信息
//
// run 命令说明:
//
//	调度来源可以是配置文件（--config）或命令行参数（--interval/--cron）。
//	两者同时给出时命令行参数覆盖配置文件。
//	--watch 启用配置热重载：配置文件变更且校验通过时重启调度。
//	--relay 启用事件转发：error/stop/timeout 事件发布到 Redis 频道。
//
// 退出码:
//
//	0: 正常停止（任务自行停止或收到信号）
//	1: 运行时错误
//	2: 参数或配置错误
//
// 示例:
//
//	xschedctl run --interval 5m -- /usr/local/bin/cleanup --fast
//	xschedctl run --cron "0 3 * * *" --stall 10m -- /usr/bin/backup
//	xschedctl run --config /etc/xsched/task.yaml --watch
//	xschedctl check --config /etc/xsched/task.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xsched/pkg/config/xtaskconf"
	"github.com/omeyang/xsched/pkg/lifecycle/xrun"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:           "xschedctl",
		Usage:          "按完成驱动的周期调度执行命令",
		Version:        fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"xsched Team",
		},
		// 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	if err := app.Run(context.Background(), os.Args); err != nil {
		// 信号退出是正常停止
		if errors.Is(err, xrun.ErrSignal) {
			return 0
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr.err)
			return 2
		}
		if isConfigError(err) {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			return 2
		}
		if isCLIUsageError(err) {
			// ExitErrHandler 或 flag 解析器已向 stderr 输出错误详情
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}

// usageError 表示调用方的参数错误，映射到退出码 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

// isConfigError 判断是否为配置文件错误（加载、解析或校验失败）。
func isConfigError(err error) bool {
	for _, sentinel := range []error{
		xtaskconf.ErrEmptyPath,
		xtaskconf.ErrUnsupportedFormat,
		xtaskconf.ErrLoadFailed,
		xtaskconf.ErrParseFailed,
		xtaskconf.ErrUnmarshalFailed,
		xtaskconf.ErrMissingCommand,
		xtaskconf.ErrMissingSchedule,
		xtaskconf.ErrConflictingSchedule,
		xtaskconf.ErrInvalidSchedule,
		xtaskconf.ErrInvalidStall,
		xtaskconf.ErrNegativeStartDelay,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// isCLIUsageError 判断是否为 CLI 框架产生的参数错误（未知 flag、未知命令）。
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	return false
}
