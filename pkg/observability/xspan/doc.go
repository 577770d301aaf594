// Package xspan 提供调度执行的统一观测接口。
//
// # 概述
//
// xspan 定义 Observer/Span 抽象：调度器（xinterval）在每次任务执行
// 前后开启/结束一个观测跨度，由具体实现记录链路与指标。
// 内置两个实现：
//
//   - NoopObserver：空实现，未配置观测时的默认值
//   - NewOTelObserver：基于 OpenTelemetry，产生 trace span 并记录
//     xsched.invocation.total / xsched.invocation.duration 指标
//
// # 快速开始
//
//	obs, err := xspan.NewOTelObserver()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sched, err := xinterval.New(task,
//	    xinterval.WithInterval(time.Minute),
//	    xinterval.WithObserver(obs),
//	)
//
// # 实现要求
//
// Observer 实现必须容忍 nil ctx，Span.End 必须幂等。
// 包级 Start 辅助函数对 nil observer/nil 返回值做了兜底，
// 调用方无需判空。
package xspan
