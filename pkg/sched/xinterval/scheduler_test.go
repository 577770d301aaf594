package xinterval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsched/pkg/event/xemit"
)

// noopTask 立即宣告成功的任务。
func noopTask() Task {
	return TaskFunc(func(ctx context.Context, done Done) {
		done(nil)
	})
}

// blockingTask 异步任务：每次执行等待 release 信号后宣告完成。
func blockingTask(release <-chan struct{}) Task {
	return TaskFunc(func(ctx context.Context, done Done) {
		go func() {
			<-release
			done(nil)
		}()
	})
}

// waitState 等待调度器进入期望状态。
func waitState(t *testing.T, s *Scheduler, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State() == want
	}, 2*time.Second, 2*time.Millisecond)
}

// waitDone 等待当前调度周期结束。
func waitDone(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not reach inactive state")
	}
}

func TestNew(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		s, err := New(noopTask(), WithInterval(time.Second), WithName("demo"))
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "demo", s.Name())
		assert.Equal(t, StateInactive, s.State())
	})

	t.Run("nil task", func(t *testing.T) {
		_, err := New(nil, WithInterval(time.Second))
		assert.ErrorIs(t, err, ErrNilTask)
	})

	t.Run("missing interval", func(t *testing.T) {
		_, err := New(noopTask())
		assert.ErrorIs(t, err, ErrMissingInterval)
	})

	t.Run("conflicting interval sources", func(t *testing.T) {
		_, err := New(noopTask(),
			WithInterval(time.Second),
			WithIntervalFunc(Every(time.Second)),
		)
		assert.ErrorIs(t, err, ErrConflictingInterval)

		_, err = New(noopTask(),
			WithInterval(time.Second),
			WithCronSpec("@every 1m"),
		)
		assert.ErrorIs(t, err, ErrConflictingInterval)
	})

	t.Run("negative interval", func(t *testing.T) {
		_, err := New(noopTask(), WithInterval(-time.Second))
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("invalid cron spec", func(t *testing.T) {
		_, err := New(noopTask(), WithCronSpec("not a cron"))
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("negative stall threshold", func(t *testing.T) {
		_, err := New(noopTask(),
			WithInterval(time.Second),
			WithStallThreshold(-time.Second),
		)
		assert.ErrorIs(t, err, ErrInvalidStallThreshold)
	})

	t.Run("zero interval func allows back to back", func(t *testing.T) {
		s, err := New(noopTask(), WithIntervalFunc(Every(0)))
		require.NoError(t, err)
		require.NotNil(t, s)
	})

	t.Run("nil options ignored", func(t *testing.T) {
		s, err := New(noopTask(), nil, WithInterval(time.Second), nil)
		require.NoError(t, err)
		require.NotNil(t, s)
	})
}

func TestScheduler_Start(t *testing.T) {
	t.Run("first invocation runs immediately", func(t *testing.T) {
		var count atomic.Int32
		s, err := New(TaskFunc(func(ctx context.Context, done Done) {
			count.Add(1)
			done(nil)
		}), WithInterval(time.Hour))
		require.NoError(t, err)

		require.NoError(t, s.Start(context.Background()))
		// 同步任务：Start 返回时第一次执行已完成
		assert.Equal(t, int32(1), count.Load())
		assert.Equal(t, StatePending, s.State())

		s.Stop()
		waitDone(t, s)
	})

	t.Run("already active", func(t *testing.T) {
		release := make(chan struct{})
		s, err := New(blockingTask(release), WithInterval(time.Hour))
		require.NoError(t, err)

		require.NoError(t, s.Start(context.Background()))
		assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyActive)
		assert.ErrorIs(t, s.StartAfter(context.Background(), time.Second), ErrAlreadyActive)

		s.Stop()
		close(release)
		waitDone(t, s)
	})

	t.Run("nil context", func(t *testing.T) {
		var gotCtx atomic.Bool
		s, err := New(TaskFunc(func(ctx context.Context, done Done) {
			gotCtx.Store(ctx != nil)
			done(nil)
		}), WithInterval(time.Hour))
		require.NoError(t, err)

		require.NoError(t, s.Start(nil)) //nolint:staticcheck // 验证 nil 容错
		assert.True(t, gotCtx.Load())

		s.Stop()
		waitDone(t, s)
	})
}

func TestScheduler_StartAfter(t *testing.T) {
	t.Run("negative delay", func(t *testing.T) {
		s, err := New(noopTask(), WithInterval(time.Hour))
		require.NoError(t, err)
		assert.ErrorIs(t, s.StartAfter(context.Background(), -time.Second), ErrNegativeDelay)
		assert.Equal(t, StateInactive, s.State())
	})

	t.Run("delay is honored", func(t *testing.T) {
		var count atomic.Int32
		s, err := New(TaskFunc(func(ctx context.Context, done Done) {
			count.Add(1)
			done(nil)
		}), WithInterval(time.Hour))
		require.NoError(t, err)

		require.NoError(t, s.StartAfter(context.Background(), 80*time.Millisecond))
		assert.Equal(t, StatePending, s.State())
		assert.Equal(t, int32(0), count.Load())

		require.Eventually(t, func() bool {
			return count.Load() == 1
		}, 2*time.Second, 2*time.Millisecond)

		s.Stop()
		waitDone(t, s)
	})

	t.Run("cancellable before first run", func(t *testing.T) {
		var count atomic.Int32
		s, err := New(TaskFunc(func(ctx context.Context, done Done) {
			count.Add(1)
			done(nil)
		}), WithInterval(time.Hour))
		require.NoError(t, err)

		require.NoError(t, s.StartAfter(context.Background(), 200*time.Millisecond))
		s.Stop()
		waitDone(t, s)

		time.Sleep(300 * time.Millisecond)
		assert.Equal(t, int32(0), count.Load())
		assert.Equal(t, StateInactive, s.State())
	})
}

func TestScheduler_Stop(t *testing.T) {
	t.Run("inactive emits stop", func(t *testing.T) {
		s, err := New(noopTask(), WithInterval(time.Hour))
		require.NoError(t, err)

		var stops atomic.Int32
		cancel := s.On(xemit.TopicStop, func(e xemit.Event) {
			stops.Add(1)
		})
		defer cancel()

		s.Stop()
		assert.Equal(t, int32(1), stops.Load())
		assert.Equal(t, StateInactive, s.State())

		// 幂等：每次调用都是水平触发的停止确认
		s.Stop()
		assert.Equal(t, int32(2), stops.Load())
	})

	t.Run("pending disarms timer", func(t *testing.T) {
		var count atomic.Int32
		s, err := New(TaskFunc(func(ctx context.Context, done Done) {
			count.Add(1)
			done(nil)
		}), WithInterval(50*time.Millisecond))
		require.NoError(t, err)

		var stops atomic.Int32
		cancel := s.On(xemit.TopicStop, func(e xemit.Event) {
			stops.Add(1)
		})
		defer cancel()

		require.NoError(t, s.Start(context.Background()))
		waitState(t, s, StatePending)
		s.Stop()
		waitDone(t, s)

		ran := count.Load()
		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, ran, count.Load(), "no execution after stop")
		assert.Equal(t, int32(1), stops.Load())
	})

	t.Run("executing defers stop until completion", func(t *testing.T) {
		release := make(chan struct{})
		s, err := New(blockingTask(release), WithInterval(time.Hour))
		require.NoError(t, err)

		var stops atomic.Int32
		cancel := s.On(xemit.TopicStop, func(e xemit.Event) {
			stops.Add(1)
		})
		defer cancel()

		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, StateExecuting, s.State())

		s.Stop()
		assert.Equal(t, StateExecutingStopRequested, s.State())
		assert.Equal(t, int32(0), stops.Load(), "stop not emitted before completion")

		// 重复 Stop 不叠加
		s.Stop()

		close(release)
		waitDone(t, s)
		assert.Equal(t, StateInactive, s.State())
		assert.Equal(t, int32(1), stops.Load())
	})

	t.Run("stop from within task", func(t *testing.T) {
		var s *Scheduler
		var count atomic.Int32
		task := TaskFunc(func(ctx context.Context, done Done) {
			count.Add(1)
			s.Stop()
			done(nil)
		})

		var err error
		s, err = New(task, WithInterval(10*time.Millisecond))
		require.NoError(t, err)

		require.NoError(t, s.Start(context.Background()))
		waitDone(t, s)

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), count.Load())
		assert.Equal(t, StateInactive, s.State())
	})
}

func TestScheduler_Periodic(t *testing.T) {
	var count atomic.Int32
	s, err := New(TaskFunc(func(ctx context.Context, done Done) {
		count.Add(1)
		done(nil)
	}), WithInterval(40*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(300 * time.Millisecond)
	s.Stop()
	waitDone(t, s)

	got := count.Load()
	assert.GreaterOrEqual(t, got, int32(3))
	assert.LessOrEqual(t, got, int32(15))
}

func TestScheduler_CatchUp(t *testing.T) {
	t.Run("slow task runs back to back", func(t *testing.T) {
		var count atomic.Int32
		var prevEnd atomic.Int64
		var maxGapNs atomic.Int64

		// 耗时 60ms 远超 20ms 间隔：完成后应立即（零延迟）开始下一次
		s, err := New(TaskFunc(func(ctx context.Context, done Done) {
			now := time.Now().UnixNano()
			if prev := prevEnd.Load(); prev != 0 {
				gap := now - prev
				if gap > maxGapNs.Load() {
					maxGapNs.Store(gap)
				}
			}
			time.Sleep(60 * time.Millisecond)
			count.Add(1)
			prevEnd.Store(time.Now().UnixNano())
			done(nil)
		}), WithInterval(20*time.Millisecond))
		require.NoError(t, err)

		require.NoError(t, s.Start(context.Background()))
		require.Eventually(t, func() bool {
			return count.Load() >= 4
		}, 3*time.Second, 5*time.Millisecond)
		s.Stop()
		waitDone(t, s)

		// 相邻执行之间的空窗远小于任务耗时（追赶生效）
		assert.Less(t, maxGapNs.Load(), int64(40*time.Millisecond))
	})

	t.Run("dynamic interval func receives elapsed", func(t *testing.T) {
		var elapsedSeen atomic.Int64
		var count atomic.Int32

		fn := func(elapsed time.Duration) time.Duration {
			elapsedSeen.Store(int64(elapsed))
			return 30 * time.Millisecond
		}

		s, err := New(TaskFunc(func(ctx context.Context, done Done) {
			time.Sleep(10 * time.Millisecond)
			count.Add(1)
			done(nil)
		}), WithIntervalFunc(fn))
		require.NoError(t, err)

		require.NoError(t, s.Start(context.Background()))
		require.Eventually(t, func() bool {
			return count.Load() >= 2
		}, 2*time.Second, 2*time.Millisecond)
		s.Stop()
		waitDone(t, s)

		assert.GreaterOrEqual(t, elapsedSeen.Load(), int64(10*time.Millisecond))
	})
}

func TestScheduler_StaleDone(t *testing.T) {
	var done1 Done
	var mu sync.Mutex

	s, err := New(TaskFunc(func(ctx context.Context, done Done) {
		mu.Lock()
		if done1 == nil {
			done1 = done
		}
		mu.Unlock()
		done(nil)
	}), WithInterval(time.Hour))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StatePending, s.State())

	// 重复宣告完成：被忽略，状态与统计不受影响
	mu.Lock()
	stale := done1
	mu.Unlock()
	require.NotNil(t, stale)
	stale(errors.New("late"))

	assert.Equal(t, StatePending, s.State())
	assert.Equal(t, int64(1), s.Stats().TotalInvocations())
	assert.Equal(t, int64(0), s.Stats().FailureCount())

	s.Stop()
	waitDone(t, s)
}

func TestScheduler_ErrorEvent(t *testing.T) {
	wantErr := errors.New("task failed")
	var count atomic.Int32

	s, err := New(TaskFunc(func(ctx context.Context, done Done) {
		count.Add(1)
		done(wantErr)
	}), WithInterval(20*time.Millisecond))
	require.NoError(t, err)

	var gotErrs atomic.Int32
	cancel := s.On(xemit.TopicError, func(e xemit.Event) {
		if assert.ErrorIs(t, e.Payload.(error), wantErr) {
			gotErrs.Add(1)
		}
	})
	defer cancel()

	require.NoError(t, s.Start(context.Background()))

	// 失败不影响调度节奏：后续执行照常发生
	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, 2*time.Second, 2*time.Millisecond)
	s.Stop()
	waitDone(t, s)

	assert.GreaterOrEqual(t, gotErrs.Load(), int32(3))
	assert.Equal(t, int64(0), s.Stats().SuccessCount())
	assert.ErrorIs(t, s.Stats().LastError(), wantErr)
}

func TestScheduler_OnceSubscription(t *testing.T) {
	wantErr := errors.New("boom")
	var count atomic.Int32

	s, err := New(TaskFunc(func(ctx context.Context, done Done) {
		count.Add(1)
		done(wantErr)
	}), WithInterval(15*time.Millisecond))
	require.NoError(t, err)

	var once atomic.Int32
	s.Once(xemit.TopicError, func(e xemit.Event) {
		once.Add(1)
	})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, 2*time.Second, 2*time.Millisecond)
	s.Stop()
	waitDone(t, s)

	assert.Equal(t, int32(1), once.Load())
}

func TestScheduler_DoneChannel(t *testing.T) {
	s, err := New(noopTask(), WithInterval(time.Hour))
	require.NoError(t, err)

	// 未启动时返回已关闭通道
	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel should be closed before first start")
	}

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-s.Done():
		t.Fatal("Done channel should be open while active")
	default:
	}

	s.Stop()
	waitDone(t, s)
}

func TestScheduler_Restart(t *testing.T) {
	var count atomic.Int32
	s, err := New(TaskFunc(func(ctx context.Context, done Done) {
		count.Add(1)
		done(nil)
	}), WithInterval(time.Hour))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	waitDone(t, s)

	// 回到 INACTIVE 后实例可复用
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	waitDone(t, s)

	assert.Equal(t, int32(2), count.Load())
	assert.Equal(t, int64(2), s.Stats().TotalInvocations())
}

func TestScheduler_Hooks(t *testing.T) {
	type ctxKey struct{}
	var order []string
	var mu sync.Mutex
	record := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	hookA := HookFunc{
		BeforeFn: func(ctx context.Context, seq uint64) context.Context {
			record("before-a")
			return context.WithValue(ctx, ctxKey{}, "a")
		},
		AfterFn: func(ctx context.Context, seq uint64, elapsed time.Duration, err error) {
			record("after-a")
		},
	}
	hookB := HookFunc{
		BeforeFn: func(ctx context.Context, seq uint64) context.Context {
			record("before-b")
			return ctx
		},
		AfterFn: func(ctx context.Context, seq uint64, elapsed time.Duration, err error) {
			record("after-b")
		},
	}

	var sawValue atomic.Bool
	s, err := New(TaskFunc(func(ctx context.Context, done Done) {
		sawValue.Store(ctx.Value(ctxKey{}) == "a")
		record("task")
		done(nil)
	}), WithInterval(time.Hour), WithHooks(hookA, hookB))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	waitDone(t, s)

	assert.True(t, sawValue.Load(), "hook context propagates to task")
	mu.Lock()
	defer mu.Unlock()
	// Before 正序、After 逆序
	assert.Equal(t, []string{"before-a", "before-b", "task", "after-b", "after-a"}, order)
}

func TestBindArgs(t *testing.T) {
	var got []any
	var mu sync.Mutex

	task := BindArgs(func(ctx context.Context, args []any, done Done) {
		mu.Lock()
		got = append([]any(nil), args...)
		mu.Unlock()
		done(nil)
	}, "job", 42)

	src := []any{"job", 42}
	s, err := New(task, WithInterval(time.Hour))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	waitDone(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, src, got)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInactive, "inactive"},
		{StatePending, "pending"},
		{StateExecuting, "executing"},
		{StateExecutingStopRequested, "executing-stop-requested"},
		{State(99), "state(99)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
