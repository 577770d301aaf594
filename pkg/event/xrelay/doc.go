// Package xrelay 将调度器事件转发到 Redis 发布/订阅频道。
//
// 每个事件序列化为 JSON 信封（实例名 + 主题 + 时间 + 载荷），发布到
// `<前缀><主题>` 频道，供其他进程观测一条调度的运行状况。
//
// 转发是尽力而为的：发布失败只记录日志，不反馈给调度语义，
// 也不重试。转发在事件回调的 goroutine 上同步发生，发布受
// 超时保护（见 [WithPublishTimeout]），Redis 故障最多拖慢
// 单次事件回调一个超时窗口。
//
// # 用法
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	relay, err := xrelay.New(client, xrelay.WithChannelPrefix("jobs:"))
//	if err != nil {
//	    return err
//	}
//	defer relay.Close()
//
//	detach, err := relay.Attach(scheduler)
//	if err != nil {
//	    return err
//	}
//	defer detach()
package xrelay
