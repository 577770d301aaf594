package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/omeyang/xsched/pkg/config/xtaskconf"
	"github.com/omeyang/xsched/pkg/event/xemit"
	"github.com/omeyang/xsched/pkg/event/xrelay"
	"github.com/omeyang/xsched/pkg/lifecycle/xrun"
	"github.com/omeyang/xsched/pkg/sched/xinterval"
)

// errConfigReload 表示配置已变更，调度需要重启。仅在 run 循环内部流转。
var errConfigReload = errors.New("config reloaded")

// createCommands 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createRunCommand(),
		createCheckCommand(),
	}
}

// createRunCommand 创建 run 子命令。
func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "按调度执行配置的命令",
		ArgsUsage: "[-- command args...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（YAML 或 JSON）",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "任务名（日志与转发标签）",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "固定间隔（与 --cron 互斥）",
			},
			&cli.StringFlag{
				Name:  "cron",
				Usage: "cron 表达式（与 --interval 互斥）",
			},
			&cli.DurationFlag{
				Name:  "stall",
				Usage: "失速阈值，0 表示不启用失速监控",
			},
			&cli.DurationFlag{
				Name:  "start-delay",
				Usage: "首次执行的延迟",
			},
			&cli.BoolFlag{
				Name:  "immediate",
				Usage: "忽略 --start-delay，立即发起首次执行",
			},
			&cli.BoolFlag{
				Name:  "detached",
				Usage: "分离模式：退出时不等待在途执行",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径（带轮转），默认输出到 stderr",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别：debug/info/warn/error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "配置热重载（需要 --config）",
			},
			&cli.StringFlag{
				Name:  "relay",
				Usage: "Redis 地址，启用事件转发",
			},
			&cli.StringFlag{
				Name:  "relay-prefix",
				Usage: "事件转发的频道前缀",
				Value: "xsched:",
			},
		},
		Action: cmdRun,
	}
}

// createCheckCommand 创建 check 子命令。
func createCheckCommand() *cli.Command {
	return &cli.Command{
		Name:    "check",
		Usage:   "校验配置文件",
		Aliases: []string{"k"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "配置文件路径（YAML 或 JSON）",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := xtaskconf.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			schedule := cfg.Task.Cron
			if schedule == "" {
				schedule = cfg.Task.Interval.String()
			}
			fmt.Printf("ok: task=%s command=%s schedule=%s\n",
				cfg.Task.Name, cfg.Task.Command, schedule)
			return nil
		},
	}
}

// cmdRun 执行 run 子命令：加载配置、构建调度器并运行到信号或自行停止。
// --watch 启用时配置变更会触发重启（循环重新加载）。
func cmdRun(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	watch := cmd.Bool("watch")
	if watch && configPath == "" {
		return &usageError{err: errors.New("--watch requires --config")}
	}

	for {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}

		err = runSchedule(ctx, cmd, cfg, configPath, watch)
		if errors.Is(err, errConfigReload) {
			continue
		}
		return err
	}
}

// resolveConfig 合并配置文件与命令行参数：命令行参数覆盖文件值。
func resolveConfig(cmd *cli.Command) (*xtaskconf.Config, error) {
	cfg := &xtaskconf.Config{}

	if path := cmd.String("config"); path != "" {
		loaded, err := xtaskconf.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	mergeFlags(cfg, cmd)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFlags 将显式给出的命令行参数覆盖到配置上。
// 位置参数（-- 之后）覆盖要执行的命令。
func mergeFlags(cfg *xtaskconf.Config, cmd *cli.Command) {
	if args := cmd.Args().Slice(); len(args) > 0 {
		cfg.Task.Command = args[0]
		cfg.Task.Args = args[1:]
	}
	if cmd.IsSet("name") {
		cfg.Task.Name = cmd.String("name")
	}
	if cmd.IsSet("interval") {
		cfg.Task.Interval = cmd.Duration("interval")
		cfg.Task.Cron = ""
	}
	if cmd.IsSet("cron") {
		cfg.Task.Cron = cmd.String("cron")
		cfg.Task.Interval = 0
	}
	if cmd.IsSet("stall") {
		cfg.Task.Stall = cmd.Duration("stall")
	}
	if cmd.IsSet("start-delay") {
		cfg.Task.StartDelay = cmd.Duration("start-delay")
	}
	if cmd.IsSet("immediate") {
		cfg.Task.Immediate = cmd.Bool("immediate")
	}
	if cmd.IsSet("detached") {
		cfg.Task.Detached = cmd.Bool("detached")
	}
	if cmd.IsSet("log-file") {
		cfg.Log.File = cmd.String("log-file")
	}
	if cmd.IsSet("log-level") || cfg.Log.Level == "" {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("relay") {
		cfg.Relay.Addr = cmd.String("relay")
	}
	if cmd.IsSet("relay-prefix") || cfg.Relay.Prefix == "" {
		cfg.Relay.Prefix = cmd.String("relay-prefix")
	}
}

// runSchedule 运行一轮调度：信号、调度器与可选的配置监视
// 绑在同一个生命周期组下。
func runSchedule(ctx context.Context, cmd *cli.Command, cfg *xtaskconf.Config, configPath string, watch bool) error {
	logger, closeLogger := buildLogger(cfg.Log)
	defer closeLogger()

	task := commandTask(cfg.Task.Command, cfg.Task.Args, logger)

	opts := cfg.Task.BuildOptions()
	opts = append(opts, xinterval.WithLogger(&slogAdapter{logger: logger}))
	scheduler, err := xinterval.New(task, opts...)
	if err != nil {
		return err
	}

	subscribeEvents(scheduler, logger)

	if cfg.Relay.Addr != "" {
		detach, closeRelay, err := attachRelay(scheduler, cfg.Relay, logger)
		if err != nil {
			return err
		}
		defer closeRelay()
		defer detach()
	}

	services := []func(context.Context) error{
		xrun.Scheduler(scheduler, cfg.Task.Immediate, cfg.Task.StartDelay),
	}
	if watch {
		services = append(services, watchService(configPath, logger))
	}

	logger.Info("schedule starting",
		"task", cfg.Task.Name, "command", cfg.Task.Command,
		"interval", cfg.Task.Interval, "cron", cfg.Task.Cron)

	return xrun.RunWithOptions(ctx,
		[]xrun.Option{xrun.WithName("xschedctl"), xrun.WithLogger(logger)},
		services...)
}

// commandTask 将外部命令包装为调度任务。命令在独立 goroutine 中
// 执行，退出后宣告完成；非零退出码作为执行失败发布到 error 主题。
func commandTask(command string, args []string, logger *slog.Logger) xinterval.Task {
	return xinterval.TaskFunc(func(ctx context.Context, done xinterval.Done) {
		go func() {
			c := exec.CommandContext(ctx, command, args...)
			out, err := c.CombinedOutput()
			if len(out) > 0 {
				logger.Debug("command output",
					"command", command, "output", strings.TrimRight(string(out), "\n"))
			}
			done(err)
		}()
	})
}

// subscribeEvents 将调度事件记录到日志。
func subscribeEvents(s *xinterval.Scheduler, logger *slog.Logger) {
	s.On(xemit.TopicError, func(e xemit.Event) {
		logger.Error("invocation failed", "task", s.Name(), "error", e.Payload)
	})
	s.On(xemit.TopicTimeout, func(e xemit.Event) {
		stall, _ := e.Payload.(xinterval.Stall)
		logger.Warn("invocation stalled",
			"task", s.Name(),
			"invocation", stall.Invocation,
			"threshold", stall.Threshold,
			"started_at", stall.StartedAt)
	})
	s.On(xemit.TopicStop, func(e xemit.Event) {
		logger.Info("schedule stopped", "task", s.Name())
	})
}

// attachRelay 启用事件转发。返回解除挂接与关闭客户端的函数。
func attachRelay(s *xinterval.Scheduler, rc xtaskconf.RelayConfig, logger *slog.Logger) (detach, closeAll func(), err error) {
	client := redis.NewClient(&redis.Options{Addr: rc.Addr})

	relay, err := xrelay.New(client,
		xrelay.WithChannelPrefix(rc.Prefix),
		xrelay.WithLogger(logger),
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	detach, err = relay.Attach(s)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	closeAll = func() {
		_ = relay.Close()
		if err := client.Close(); err != nil {
			logger.Warn("relay client close failed", "error", err)
		}
	}
	return detach, closeAll, nil
}

// watchService 返回配置监视服务：配置变更且校验通过时以
// errConfigReload 退出，触发 cmdRun 循环重启调度。
func watchService(path string, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		changed := make(chan struct{}, 1)

		w, err := xtaskconf.Watch(path, func(cfg *xtaskconf.Config, err error) {
			if err != nil {
				// 校验失败时继续使用当前配置
				logger.Warn("config reload rejected", "path", path, "error", err)
				return
			}
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Stop(); err != nil {
				logger.Warn("config watcher stop failed", "error", err)
			}
		}()
		w.StartAsync()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			logger.Info("config changed, restarting schedule", "path", path)
			return errConfigReload
		}
	}
}

// buildLogger 构建日志记录器。--log-file 启用带轮转的文件输出。
func buildLogger(lc xtaskconf.LogConfig) (*slog.Logger, func()) {
	var w io.Writer = os.Stderr
	closer := func() {}

	if lc.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // 天
			Compress:   true,
		}
		w = rotator
		closer = func() { _ = rotator.Close() }
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(lc.Level),
	})
	return slog.New(handler), closer
}

// parseLevel 解析日志级别，未知值回落到 info。
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// slogAdapter 将 *slog.Logger 适配为 xinterval.Logger。
type slogAdapter struct {
	logger *slog.Logger
}

var _ xinterval.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Debug(ctx context.Context, msg string, args ...any) {
	a.logger.DebugContext(ctx, msg, args...)
}

func (a *slogAdapter) Info(ctx context.Context, msg string, args ...any) {
	a.logger.InfoContext(ctx, msg, args...)
}

func (a *slogAdapter) Warn(ctx context.Context, msg string, args ...any) {
	a.logger.WarnContext(ctx, msg, args...)
}

func (a *slogAdapter) Error(ctx context.Context, msg string, args ...any) {
	a.logger.ErrorContext(ctx, msg, args...)
}
