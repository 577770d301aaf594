package xinterval

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// IntervalFunc 间隔函数：输入刚结束那次执行的耗时，返回该次执行的
// 基准间隔。下次延迟 = max(0, 返回值 - elapsed)。
//
// 固定数值间隔在配置期被归一化为常量函数（见 [Every]）。
type IntervalFunc func(elapsed time.Duration) time.Duration

// Every 返回恒定间隔函数。这是 WithInterval 的归一化形式。
func Every(d time.Duration) IntervalFunc {
	return func(time.Duration) time.Duration {
		return d
	}
}

// cronParser 支持可选秒字段的 cron 表达式解析器。
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronInterval 从 cron 表达式构造间隔函数。
//
// 返回值为"距下一个 cron 触发点的时长 + elapsed"，这样经过调度器的
// max(0, interval - elapsed) 计算后，下一次执行恰好落在下一个触发点。
// 执行耗时跨过触发点时按追赶语义立即执行（零延迟），而不是并行执行。
//
// 支持 5/6 字段表达式与 @every、@hourly 等描述符。
func CronInterval(spec string) (IntervalFunc, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: cron spec %q: %w", ErrInvalidInterval, spec, err)
	}
	return func(elapsed time.Duration) time.Duration {
		next := schedule.Next(time.Now())
		return time.Until(next) + elapsed
	}, nil
}
