// Package xemit 提供固定主题的同步事件发布/订阅能力。
//
// # 概述
//
// xemit 为调度器（xinterval）及其协作组件提供解耦的事件通道。
// 主题固定为三个：error、stop、timeout，不支持动态创建主题。
//
// # 投递语义
//
//   - 同步投递：Emit 在调用方的调用栈上依次执行所有订阅回调
//   - 按订阅顺序投递，不合并、不丢弃
//   - 不回放：Emit 之后注册的订阅者收不到已发布的事件
//   - Once 订阅在回调执行前即被移除，回调内再次 Emit 不会重复触发
//
// # 快速开始
//
//	em := xemit.NewEmitter()
//	cancel := em.On(xemit.TopicError, func(e xemit.Event) {
//	    log.Printf("task failed: %v", e.Payload)
//	})
//	defer cancel()
//
//	em.Emit(xemit.TopicError, errors.New("boom"))
//
// # 并发说明
//
// Emitter 的所有方法都是并发安全的。回调在 Emit 调用方的 goroutine
// 上执行且不持有内部锁，因此回调内可以安全地调用 On/Once/Emit。
package xemit
