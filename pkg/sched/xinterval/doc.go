// Package xinterval 提供不重叠的周期性任务调度能力。
//
// # 概述
//
// xinterval 是一个"完成驱动"的定时器：与朴素的固定周期定时器不同，
// 上一次执行尚未结束时绝不会开始下一次执行。每次执行必须通过完成
// 回调（Done）显式宣告结束（可携带失败），调度器在收到该信号后才
// 计算下一次执行的延迟。
//
// # 核心概念
//
//   - Scheduler: 调度器，一个实例对应一个任务，停止后可重新启动
//   - Task: 任务接口，执行结束时调用 done 宣告完成
//   - Done: 完成回调，每次执行恰好调用一次，可携带失败
//   - IntervalFunc: 间隔函数，输入上次执行耗时，返回基准间隔
//
// # 追赶调度
//
// 下次延迟 = max(0, 间隔 - 上次耗时)。执行耗时吃掉间隔时，下一次
// 执行以零延迟背靠背进行，而不是并行执行或永久落后。
//
// # 状态机
//
// INACTIVE → (Start/StartAfter) → PENDING → (定时器触发) → EXECUTING
// → (done) → PENDING ...；EXECUTING 期间 Stop() 进入
// EXECUTING_STOP_REQUESTED，done 之后回到 INACTIVE 并发布 stop 事件。
// Stop() 从不中断在途执行。
//
// # 快速开始
//
//	sched, err := xinterval.New(
//	    xinterval.TaskFunc(func(ctx context.Context, done xinterval.Done) {
//	        err := doWork(ctx)
//	        done(err)
//	    }),
//	    xinterval.WithInterval(time.Minute),
//	    xinterval.WithStallThreshold(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sched.On(xemit.TopicError, func(e xemit.Event) {
//	    log.Printf("invocation failed: %v", e.Payload)
//	})
//
//	if err := sched.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sched.Stop()
//
// # 事件
//
// 通过 On/Once 订阅三个固定主题（见 xemit）：
//
//   - error: 单次执行失败，载荷为 error 值，不影响后续调度
//   - timeout: 执行超过失速阈值，仅通知，不中止执行
//   - stop: 调度终止，此后直到下一次 Start 不会再有执行
//
// # 失速监控
//
// 配置 WithStallThreshold 后，每次执行开始时布防一个独立的失速定时
// 器；执行在阈值内未宣告完成则发布一次 timeout 事件。失速通知纯属
// 观测信号：不取消执行、不改变调度节奏。
//
// # 任务内停止
//
// 最常见的停止方式是任务自身在调用 done 之前调用 Stop()：
//
//	xinterval.TaskFunc(func(ctx context.Context, done xinterval.Done) {
//	    if finished() {
//	        sched.Stop()
//	    }
//	    done(nil)
//	})
package xinterval
