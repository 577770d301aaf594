// Package sched 提供任务调度相关的子包。
//
// 子包列表：
//   - xinterval: 完成驱动的周期调度器，保证同一任务不重叠执行
//
// 设计原则：
//   - 完成驱动：上次执行宣告完成后才计算下次延迟
//   - 追赶而不并行：耗时吃掉间隔时零延迟背靠背执行
//   - 事件与统计仅为观测信号，不改变调度行为
package sched
