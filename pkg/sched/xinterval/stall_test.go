package xinterval

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsched/pkg/event/xemit"
)

func TestScheduler_Stall(t *testing.T) {
	t.Run("timeout emitted when task exceeds threshold", func(t *testing.T) {
		release := make(chan struct{})
		s, err := New(blockingTask(release),
			WithInterval(time.Hour),
			WithStallThreshold(30*time.Millisecond),
		)
		require.NoError(t, err)

		stallCh := make(chan Stall, 1)
		cancel := s.On(xemit.TopicTimeout, func(e xemit.Event) {
			stallCh <- e.Payload.(Stall)
		})
		defer cancel()

		require.NoError(t, s.Start(context.Background()))

		var stall Stall
		select {
		case stall = <-stallCh:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout event not emitted")
		}

		assert.Equal(t, 30*time.Millisecond, stall.Threshold)
		assert.NotZero(t, stall.Invocation)
		assert.False(t, stall.StartedAt.IsZero())

		// 失速不取消执行：完成回调依然走正常路径
		assert.Equal(t, StateExecuting, s.State())
		close(release)
		waitState(t, s, StatePending)
		assert.Equal(t, int64(1), s.Stats().TotalInvocations())
		assert.Equal(t, int64(1), s.Stats().StallNotices())

		s.Stop()
		waitDone(t, s)
	})

	t.Run("at most once per invocation", func(t *testing.T) {
		release := make(chan struct{})
		s, err := New(blockingTask(release),
			WithInterval(time.Hour),
			WithStallThreshold(20*time.Millisecond),
		)
		require.NoError(t, err)

		var notices atomic.Int32
		cancel := s.On(xemit.TopicTimeout, func(e xemit.Event) {
			notices.Add(1)
		})
		defer cancel()

		require.NoError(t, s.Start(context.Background()))
		time.Sleep(150 * time.Millisecond)

		close(release)
		waitState(t, s, StatePending)
		s.Stop()
		waitDone(t, s)

		assert.Equal(t, int32(1), notices.Load())
	})

	t.Run("no timeout when task completes in time", func(t *testing.T) {
		var count atomic.Int32
		s, err := New(TaskFunc(func(ctx context.Context, done Done) {
			count.Add(1)
			done(nil)
		}),
			WithInterval(20*time.Millisecond),
			WithStallThreshold(time.Second),
		)
		require.NoError(t, err)

		var notices atomic.Int32
		cancel := s.On(xemit.TopicTimeout, func(e xemit.Event) {
			notices.Add(1)
		})
		defer cancel()

		require.NoError(t, s.Start(context.Background()))
		require.Eventually(t, func() bool {
			return count.Load() >= 3
		}, 2*time.Second, 2*time.Millisecond)
		s.Stop()
		waitDone(t, s)

		assert.Equal(t, int32(0), notices.Load())
		assert.Equal(t, int64(0), s.Stats().StallNotices())
	})

	t.Run("stop request does not disarm stall monitor", func(t *testing.T) {
		release := make(chan struct{})
		s, err := New(blockingTask(release),
			WithInterval(time.Hour),
			WithStallThreshold(30*time.Millisecond),
		)
		require.NoError(t, err)

		var notices atomic.Int32
		cancel := s.On(xemit.TopicTimeout, func(e xemit.Event) {
			notices.Add(1)
		})
		defer cancel()

		require.NoError(t, s.Start(context.Background()))
		s.Stop()
		assert.Equal(t, StateExecutingStopRequested, s.State())

		// 停止请求挂起期间阈值到期，失速依然上报
		require.Eventually(t, func() bool {
			return notices.Load() == 1
		}, 2*time.Second, 2*time.Millisecond)

		close(release)
		waitDone(t, s)
		assert.Equal(t, int32(1), notices.Load())
	})

	t.Run("disabled when threshold is zero", func(t *testing.T) {
		release := make(chan struct{})
		s, err := New(blockingTask(release), WithInterval(time.Hour))
		require.NoError(t, err)

		var notices atomic.Int32
		cancel := s.On(xemit.TopicTimeout, func(e xemit.Event) {
			notices.Add(1)
		})
		defer cancel()

		require.NoError(t, s.Start(context.Background()))
		time.Sleep(80 * time.Millisecond)

		close(release)
		waitState(t, s, StatePending)
		s.Stop()
		waitDone(t, s)

		assert.Equal(t, int32(0), notices.Load())
	})
}
