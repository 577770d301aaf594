package xinterval

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats 提供调度器的执行统计信息。
//
// 线程安全，可在任务执行期间安全读取。
// 统计数据包括执行次数、成功/失败次数、失速通知次数、执行时长等。
//
// 用法：
//
//	stats := scheduler.Stats()
//	fmt.Printf("总执行次数: %d\n", stats.TotalInvocations())
//	fmt.Printf("失败次数: %d\n", stats.FailureCount())
//	fmt.Printf("失速通知: %d\n", stats.StallNotices())
type Stats struct {
	totalInvocations atomic.Int64
	successCount     atomic.Int64
	failureCount     atomic.Int64
	stallNotices     atomic.Int64 // 发布过的 timeout 通知次数

	mu          sync.RWMutex
	lastExec    time.Time     // 最后一次完成时间
	lastElapsed time.Duration // 最后一次执行耗时
	lastError   error         // 最后一次错误

	// 执行时长统计
	totalElapsed atomic.Int64 // 纳秒
	minElapsed   atomic.Int64 // 纳秒
	maxElapsed   atomic.Int64 // 纳秒
}

// newStats 创建新的统计实例。
func newStats() *Stats {
	s := &Stats{}
	// 初始化最小值为最大值，以便首次执行时正确更新
	s.minElapsed.Store(int64(1<<63 - 1))
	return s
}

// TotalInvocations 返回总执行次数。
func (s *Stats) TotalInvocations() int64 {
	return s.totalInvocations.Load()
}

// SuccessCount 返回成功执行次数。
func (s *Stats) SuccessCount() int64 {
	return s.successCount.Load()
}

// FailureCount 返回失败执行次数。
func (s *Stats) FailureCount() int64 {
	return s.failureCount.Load()
}

// StallNotices 返回发布过的失速通知次数。
func (s *Stats) StallNotices() int64 {
	return s.stallNotices.Load()
}

// LastExecTime 返回最后一次执行的完成时间。
func (s *Stats) LastExecTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastExec
}

// LastElapsed 返回最后一次执行耗时。
func (s *Stats) LastElapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastElapsed
}

// LastError 返回最后一次执行错误（nil 表示成功）。
func (s *Stats) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// AvgElapsed 返回平均执行耗时。
func (s *Stats) AvgElapsed() time.Duration {
	total := s.totalInvocations.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(s.totalElapsed.Load() / total)
}

// MinElapsed 返回最小执行耗时。
func (s *Stats) MinElapsed() time.Duration {
	min := s.minElapsed.Load()
	if min == int64(1<<63-1) {
		return 0 // 尚未执行
	}
	return time.Duration(min)
}

// MaxElapsed 返回最大执行耗时。
func (s *Stats) MaxElapsed() time.Duration {
	return time.Duration(s.maxElapsed.Load())
}

// SuccessRate 返回成功率（0-1）。
func (s *Stats) SuccessRate() float64 {
	total := s.totalInvocations.Load()
	if total == 0 {
		return 0
	}
	return float64(s.successCount.Load()) / float64(total)
}

// record 记录一次执行的完成。
func (s *Stats) record(elapsed time.Duration, err error) {
	now := time.Now()
	elapsedNs := int64(elapsed)

	s.totalInvocations.Add(1)
	s.totalElapsed.Add(elapsedNs)

	if err != nil {
		s.failureCount.Add(1)
	} else {
		s.successCount.Add(1)
	}

	// 更新最小值（CAS 循环）
	for {
		old := s.minElapsed.Load()
		if elapsedNs >= old {
			break
		}
		if s.minElapsed.CompareAndSwap(old, elapsedNs) {
			break
		}
	}

	// 更新最大值（CAS 循环）
	for {
		old := s.maxElapsed.Load()
		if elapsedNs <= old {
			break
		}
		if s.maxElapsed.CompareAndSwap(old, elapsedNs) {
			break
		}
	}

	s.mu.Lock()
	s.lastExec = now
	s.lastElapsed = elapsed
	s.lastError = err
	s.mu.Unlock()
}

// recordStallNotice 记录一次失速通知。
func (s *Stats) recordStallNotice() {
	s.stallNotices.Add(1)
}

// StatsSnapshot 统计快照，用于序列化。
type StatsSnapshot struct {
	TotalInvocations int64         `json:"total_invocations"`
	SuccessCount     int64         `json:"success_count"`
	FailureCount     int64         `json:"failure_count"`
	StallNotices     int64         `json:"stall_notices"`
	SuccessRate      float64       `json:"success_rate"`
	LastExecTime     time.Time     `json:"last_exec_time,omitempty"`
	LastElapsed      time.Duration `json:"last_elapsed"`
	LastError        string        `json:"last_error,omitempty"`
	AvgElapsed       time.Duration `json:"avg_elapsed"`
	MinElapsed       time.Duration `json:"min_elapsed"`
	MaxElapsed       time.Duration `json:"max_elapsed"`
}

// Snapshot 返回统计快照。
func (s *Stats) Snapshot() *StatsSnapshot {
	snap := &StatsSnapshot{
		TotalInvocations: s.TotalInvocations(),
		SuccessCount:     s.SuccessCount(),
		FailureCount:     s.FailureCount(),
		StallNotices:     s.StallNotices(),
		SuccessRate:      s.SuccessRate(),
		LastExecTime:     s.LastExecTime(),
		LastElapsed:      s.LastElapsed(),
		AvgElapsed:       s.AvgElapsed(),
		MinElapsed:       s.MinElapsed(),
		MaxElapsed:       s.MaxElapsed(),
	}

	if err := s.LastError(); err != nil {
		snap.LastError = err.Error()
	}

	return snap
}
