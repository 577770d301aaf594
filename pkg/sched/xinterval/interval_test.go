package xinterval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery(t *testing.T) {
	fn := Every(30 * time.Second)
	assert.Equal(t, 30*time.Second, fn(0))
	assert.Equal(t, 30*time.Second, fn(time.Minute), "constant regardless of elapsed")
}

func TestCronInterval(t *testing.T) {
	t.Run("invalid spec", func(t *testing.T) {
		_, err := CronInterval("not a cron")
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("descriptor spec", func(t *testing.T) {
		fn, err := CronInterval("@every 1h")
		require.NoError(t, err)

		got := fn(0)
		assert.Greater(t, got, time.Duration(0))
		assert.LessOrEqual(t, got, time.Hour+time.Second)
	})

	t.Run("six field spec with seconds", func(t *testing.T) {
		fn, err := CronInterval("*/5 * * * * *")
		require.NoError(t, err)

		got := fn(0)
		assert.Greater(t, got, time.Duration(0))
		assert.LessOrEqual(t, got, 5*time.Second+time.Second)
	})

	t.Run("elapsed offsets toward next activation", func(t *testing.T) {
		fn, err := CronInterval("@every 1h")
		require.NoError(t, err)

		// 返回值包含 elapsed 补偿项，经 max(0, interval - elapsed)
		// 计算后落回到下一个触发点
		elapsed := 10 * time.Minute
		withElapsed := fn(elapsed)
		without := fn(0)
		assert.InDelta(t, float64(without+elapsed), float64(withElapsed), float64(time.Second))
	})
}
