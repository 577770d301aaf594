// Package xrun 提供进程生命周期管理：并发运行多个服务、
// 信号驱动的协调关闭与退出原因传播。
//
// 核心是 [Group]（errgroup + context.WithCancelCause 的组合）：
// 任一服务出错或收到系统信号时，所有服务收到取消信号，
// [Group.Wait] 返回首个有语义的退出原因（如 [SignalError]）。
//
// [Scheduler] 将 xinterval 调度器适配为服务函数，是 xschedctl
// 把调度、事件转发与配置监视绑在同一生命周期下的方式。
//
// # 用法
//
//	err := xrun.Run(ctx,
//	    xrun.Scheduler(sched, true, 0),
//	    watcherService,
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    log.Println("shutting down on signal")
//	}
package xrun
