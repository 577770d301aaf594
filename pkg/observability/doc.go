// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xspan: 调度执行的统一观测接口（追踪 + 指标），含 OpenTelemetry 实现
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 观测失败不影响调度行为
package observability
