package xrun

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/omeyang/xsched/pkg/sched/xinterval"
)

// DefaultSignals 返回默认监听的系统信号列表。
//
// 包含 SIGHUP、SIGINT、SIGTERM、SIGQUIT。注意 SIGHUP 在终端断开
// （如 SSH 断连）时会触发，容器化部署中通常无此问题。如需排除 SIGHUP，
// 可通过 [WithSignals] 自定义信号列表。
//
// 每次调用返回新的切片，调用者可安全修改。
func DefaultSignals() []os.Signal {
	return []os.Signal{
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	}
}

// testSigChanKey/testSigChan/withTestSigChan 定义在非测试文件中，
// 因为 runGroup（生产代码）调用 testSigChan 从 context 获取测试通道。
// 这避免了测试中发送真实系统信号（可能影响进程或被 CI 拦截）。

// testSigChanKey 用于在测试中通过 context 注入信号通道。
type testSigChanKey struct{}

// testSigChan 从 context 中获取测试信号通道（生产环境返回 nil）。
func testSigChan(ctx context.Context) <-chan os.Signal {
	c, ok := ctx.Value(testSigChanKey{}).(<-chan os.Signal)
	if !ok {
		return nil
	}
	return c
}

// withTestSigChan 在 context 中注入测试信号通道。
func withTestSigChan(ctx context.Context, c <-chan os.Signal) context.Context {
	return context.WithValue(ctx, testSigChanKey{}, c)
}

// ----------------------------------------------------------------------------
// 服务函数
// ----------------------------------------------------------------------------

// Scheduler 将 xinterval 调度器适配为服务函数。
//
// immediate 为 true 时调用 Start（首次执行立即发起），否则
// StartAfter(delay)。ctx 取消时请求停止；非分离模式会等待调度
// 回到 INACTIVE 后才返回，分离模式立即返回（调度自行收尾）。
// 调度在 ctx 取消前自行终止（任务内 Stop）时返回 nil。
//
// 示例：
//
//	g.Go(xrun.Scheduler(sched, cfg.Task.Immediate, cfg.Task.StartDelay))
func Scheduler(s *xinterval.Scheduler, immediate bool, delay time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if s == nil {
			return ErrNilService
		}

		var err error
		if immediate {
			err = s.Start(ctx)
		} else {
			err = s.StartAfter(ctx, delay)
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			s.Stop()
			if !s.Detached() {
				<-s.Done()
			}
			return ctx.Err()
		case <-s.Done():
			return nil
		}
	}
}

// WaitForDone 返回等待 context 取消的服务函数。
//
// 这是一个占位服务，用于保持 Group 运行直到收到取消信号。
func WaitForDone() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
}
