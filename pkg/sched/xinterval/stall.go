package xinterval

import (
	"time"

	"github.com/omeyang/xsched/pkg/event/xemit"
)

// 失速监控：每次执行开始时布防独立定时器，执行在阈值内未宣告完成
// 则发布一次 timeout 通知。通知纯属观测信号——不取消执行、不影响
// 调度节奏，每次执行至多触发一次。
//
// 撤防只发生在完成回调触发时：停止请求（EXECUTING_STOP_REQUESTED）
// 不撤防，先到期的失速依然上报。

// armStallLocked 为当前执行布防失速定时器。调用方持锁，
// 且已通过 beginLocked 设置好 seq/invocationID/startedAt。
func (s *Scheduler) armStallLocked() {
	seq := s.seq
	s.stallTimer = time.AfterFunc(s.opts.stallThreshold, func() {
		s.fireStall(seq)
	})
}

// disarmStallLocked 撤防失速定时器。调用方持锁。
// 已出队的回调由 fireStall 的 seq/stallFired 校验作废。
func (s *Scheduler) disarmStallLocked() {
	if s.stallTimer != nil {
		s.stallTimer.Stop()
		s.stallTimer = nil
	}
}

// fireStall 失速定时器触发：仍是同一次在途执行时发布 timeout。
func (s *Scheduler) fireStall(seq uint64) {
	s.mu.Lock()
	if s.seq != seq || s.stallFired ||
		(s.state != StateExecuting && s.state != StateExecutingStopRequested) {
		// 完成回调赢得了与失速定时器的竞态
		s.mu.Unlock()
		return
	}
	s.stallFired = true
	s.stallTimer = nil
	stall := Stall{
		Invocation: s.invocationID,
		Threshold:  s.opts.stallThreshold,
		StartedAt:  s.startedAt,
	}
	s.mu.Unlock()

	s.logWarn("invocation stalled",
		"scheduler", s.opts.name, "seq", seq, "threshold", stall.Threshold)
	s.emitter.Emit(xemit.TopicTimeout, stall)
	s.stats.recordStallNotice()
}