package xinterval

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xsched/pkg/event/xemit"
	"github.com/omeyang/xsched/pkg/observability/xspan"
)

// Scheduler 不重叠的周期性任务调度器。
//
// 一个实例对应一个任务。状态转移仅由 Start/StartAfter、Stop、
// 定时器触发与完成回调驱动，由单一互斥锁串行化（事件驱动单线程
// 模型的 Go 表达）。回到 INACTIVE 后可再次 Start，实例可复用。
type Scheduler struct {
	task       Task
	intervalFn IntervalFunc
	opts       *schedulerOptions
	emitter    *xemit.Emitter
	stats      *Stats

	mu    sync.Mutex
	state State

	// timerGen 使过期的定时器回调失效：每次布防/撤防递增，
	// AfterFunc 回调携带布防时的值，不匹配即返回。
	// 这是 pendingTimer 与 stallTimer 之外唯一的定时器共享状态。
	timerGen uint64

	// pendingTimer 下一次执行的定时器。唯一布防点 armPending，
	// 唯一撤防点 Stop 的 PENDING 分支（或触发自清）。
	pendingTimer *time.Timer

	// stallTimer 当前执行的失速定时器。唯一布防点 beginLocked，
	// 唯一撤防点 finish（或触发自清）。
	stallTimer *time.Timer
	stallFired bool

	seq          uint64 // 执行序号，跨 Start 周期单调递增
	invocationID uuid.UUID
	startedAt    time.Time
	baseCtx      context.Context
	doneCh       chan struct{} // 每次 Start 重建，回到 INACTIVE 时关闭
}

// New 创建调度器。配置同步校验，非法配置返回构造期错误
// （ErrNilTask、ErrMissingInterval、ErrConflictingInterval、
// ErrInvalidInterval、ErrInvalidStallThreshold）。
func New(task Task, opts ...Option) (*Scheduler, error) {
	if task == nil {
		return nil, ErrNilTask
	}

	options := defaultSchedulerOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(options)
	}

	intervalFn, err := options.validate()
	if err != nil {
		return nil, err
	}

	closed := make(chan struct{})
	close(closed)

	return &Scheduler{
		task:       task,
		intervalFn: intervalFn,
		opts:       options,
		emitter:    xemit.NewEmitter(),
		stats:      newStats(),
		state:      StateInactive,
		doneCh:     closed,
	}, nil
}

// Name 返回实例名。
func (s *Scheduler) Name() string {
	return s.opts.name
}

// Detached 报告实例是否声明为分离模式（见 [WithDetached]）。
func (s *Scheduler) Detached() bool {
	return s.opts.detached
}

// State 返回当前状态。
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats 返回执行统计。
func (s *Scheduler) Stats() *Stats {
	return s.stats
}

// On 注册持久事件订阅，返回取消函数。见 xemit 的投递语义。
// 订阅独立于调度生命周期，跨 Stop/Start 存续，由调用方负责释放。
func (s *Scheduler) On(topic xemit.Topic, fn xemit.Handler) (cancel func()) {
	return s.emitter.On(topic, fn)
}

// Once 注册一次性事件订阅。
func (s *Scheduler) Once(topic xemit.Topic, fn xemit.Handler) (cancel func()) {
	return s.emitter.Once(topic, fn)
}

// Done 返回当前调度周期的结束通知通道。
//
// 通道在调度回到 INACTIVE 时关闭；尚未启动过时返回已关闭的通道。
// 非分离模式的宿主用它等待调度结束后再退出。
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

// Start 立即启动：第一次执行在本调用内发起，不经过定时器，
// 因此 Start 返回后它已不可取消（任务内部仍可调用 Stop，
// 走 EXECUTING → EXECUTING_STOP_REQUESTED 的正常路径）。
//
// 非 INACTIVE 状态下调用返回 ErrAlreadyActive，不影响既有调度。
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.state != StateInactive {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.baseCtx = ctx
	s.doneCh = make(chan struct{})
	inv := s.beginLocked()
	s.mu.Unlock()

	s.invoke(inv)
	return nil
}

// StartAfter 延迟启动：第一次执行经由定时器在 delay 之后发起。
//
// delay 为 0 依然走定时器，因此紧随其后的 Stop() 可以取消它——
// 这是与 Start 的语义区别。负延迟返回 ErrNegativeDelay。
func (s *Scheduler) StartAfter(ctx context.Context, delay time.Duration) error {
	if delay < 0 {
		return ErrNegativeDelay
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.state != StateInactive {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.baseCtx = ctx
	s.doneCh = make(chan struct{})
	s.state = StatePending
	s.armPendingLocked(delay)
	s.mu.Unlock()

	return nil
}

// Stop 请求停止调度。幂等，从不失败，可在任意状态调用，
// 包括在任务内部（最常见：任务发现应当停止，先 Stop 再 done）。
//
//   - INACTIVE: 立即发布 stop（水平触发，调用方总能安全地等待 stop）
//   - PENDING: 撤防定时器，不再执行，发布 stop
//   - EXECUTING: 记录停止请求，完成回调触发后终止并发布 stop
//   - EXECUTING_STOP_REQUESTED: 空操作，同一次完成只发布一次 stop
func (s *Scheduler) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateInactive:
		s.mu.Unlock()
		s.emitter.Emit(xemit.TopicStop, nil)

	case StatePending:
		s.disarmPendingLocked()
		s.state = StateInactive
		close(s.doneCh)
		s.mu.Unlock()
		s.logDebug("schedule stopped while pending", "scheduler", s.opts.name)
		s.emitter.Emit(xemit.TopicStop, nil)

	case StateExecuting:
		s.state = StateExecutingStopRequested
		s.mu.Unlock()
		s.logDebug("stop requested, waiting for invocation to finish", "scheduler", s.opts.name)

	case StateExecutingStopRequested:
		s.mu.Unlock()
	}
}

// ----------------------------------------------------------------------------
// 定时器（每个句柄一个布防点、一个撤防点）
// ----------------------------------------------------------------------------

// armPendingLocked 布防下一次执行的定时器。调用方持锁，状态已为 PENDING。
func (s *Scheduler) armPendingLocked(delay time.Duration) {
	s.timerGen++
	gen := s.timerGen
	s.pendingTimer = time.AfterFunc(delay, func() {
		s.firePending(gen)
	})
}

// disarmPendingLocked 撤防下一次执行的定时器。调用方持锁。
// timerGen 递增保证已出队的 AfterFunc 回调作废。
func (s *Scheduler) disarmPendingLocked() {
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
		s.pendingTimer = nil
	}
	s.timerGen++
}

// firePending 定时器触发：PENDING → EXECUTING。
func (s *Scheduler) firePending(gen uint64) {
	s.mu.Lock()
	if s.state != StatePending || s.timerGen != gen {
		// Stop 赢得了与定时器触发的竞态
		s.mu.Unlock()
		return
	}
	s.pendingTimer = nil
	inv := s.beginLocked()
	s.mu.Unlock()

	s.invoke(inv)
}

// ----------------------------------------------------------------------------
// 执行
// ----------------------------------------------------------------------------

// invocation 单次执行的在途状态。完成回调通过 seq 匹配当前执行，
// 过期/重复的 done 调用据此被忽略。
type invocation struct {
	s    *Scheduler
	seq  uint64
	id   uuid.UUID
	ctx  context.Context
	span xspan.Span
}

// beginLocked 进入 EXECUTING：记录开始时间、分配执行标识、布防失速
// 定时器。调用方持锁，返回的 invocation 用于锁外发起任务。
func (s *Scheduler) beginLocked() *invocation {
	s.state = StateExecuting
	s.seq++
	s.invocationID = uuid.New()
	s.startedAt = time.Now()
	s.stallFired = false

	if s.opts.stallThreshold > 0 {
		s.armStallLocked()
	}

	return &invocation{
		s:   s,
		seq: s.seq,
		id:  s.invocationID,
		ctx: s.baseCtx,
	}
}

// invoke 在锁外执行钩子、开启观测跨度并发起任务。
func (s *Scheduler) invoke(inv *invocation) {
	ctx := inv.ctx
	for _, hook := range s.opts.hooks {
		ctx = hook.Before(ctx, inv.seq)
		if ctx == nil {
			ctx = inv.ctx
		}
	}

	ctx, span := xspan.Start(ctx, s.opts.observer, xspan.SpanOptions{
		Scheduler: s.opts.name,
		Operation: "invoke",
		Attrs: []xspan.Attr{
			xspan.Int64("seq", int64(inv.seq)),
			xspan.String("invocation", inv.id.String()),
		},
	})
	inv.ctx = ctx
	inv.span = span

	s.logDebug("invocation started", "scheduler", s.opts.name, "seq", inv.seq)
	s.task.Run(ctx, inv.finish)
}

// finish 完成回调的实现。每次执行恰好生效一次；
// 过期或重复的调用被忽略并记录告警。
func (inv *invocation) finish(err error) {
	s := inv.s

	s.mu.Lock()
	if inv.seq != s.seq ||
		(s.state != StateExecuting && s.state != StateExecutingStopRequested) {
		s.mu.Unlock()
		s.logWarn("stale completion ignored",
			"scheduler", s.opts.name, "seq", inv.seq)
		return
	}

	s.disarmStallLocked()
	elapsed := time.Since(s.startedAt)
	stopping := s.state == StateExecutingStopRequested

	var armToken uint64
	if stopping {
		s.state = StateInactive
		close(s.doneCh)
	} else {
		// 先置 PENDING、后布防：事件回调里发出的 Stop 会把状态拉回
		// INACTIVE 并递增 timerGen，下方的布防步骤据此放弃。
		s.state = StatePending
		s.timerGen++
		armToken = s.timerGen
	}
	s.mu.Unlock()

	s.stats.record(elapsed, err)

	// 钩子逆序执行，类似 defer
	for i := len(s.opts.hooks) - 1; i >= 0; i-- {
		s.opts.hooks[i].After(inv.ctx, inv.seq, elapsed, err)
	}
	inv.span.End(xspan.Result{Err: err, Attrs: []xspan.Attr{
		xspan.Duration("elapsed", elapsed),
	}})

	if err != nil {
		s.logWarn("invocation failed",
			"scheduler", s.opts.name, "seq", inv.seq, "error", err)
		s.emitter.Emit(xemit.TopicError, err)
	} else {
		s.logDebug("invocation finished",
			"scheduler", s.opts.name, "seq", inv.seq, "elapsed", elapsed)
	}

	if stopping {
		s.emitter.Emit(xemit.TopicStop, nil)
		return
	}

	// 追赶调度：耗时吃掉间隔时零延迟背靠背执行。
	// intervalFn 是用户代码，在锁外调用以允许其访问调度器。
	interval := s.intervalFn(elapsed)
	delay := interval - elapsed
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if s.state == StatePending && s.timerGen == armToken && s.pendingTimer == nil {
		s.pendingTimer = time.AfterFunc(delay, func() {
			s.firePending(armToken)
		})
	}
	s.mu.Unlock()
}

// ----------------------------------------------------------------------------
// 日志辅助
// ----------------------------------------------------------------------------

func (s *Scheduler) logDebug(msg string, args ...any) {
	if s.opts.logger != nil {
		s.opts.logger.Debug(context.Background(), msg, args...)
	}
}

func (s *Scheduler) logWarn(msg string, args ...any) {
	if s.opts.logger != nil {
		s.opts.logger.Warn(context.Background(), msg, args...)
	} else {
		log.Printf("[WARN] xinterval: %s %v", msg, args)
	}
}
