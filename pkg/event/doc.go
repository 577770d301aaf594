// Package event 提供调度事件相关的子包。
//
// 子包列表：
//   - xemit: 固定主题事件通道，同步有序投递
//   - xrelay: 将调度事件转发到 Redis 发布/订阅频道
//
// 设计原则：
//   - 投递有序且不合并，订阅方看到完整事件流
//   - 转发尽力而为，失败不回压调度器
package event
