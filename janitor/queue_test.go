package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ruteri/embedded-wallet-custody/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Run("RunsAcceptedTasks", func(t *testing.T) {
		q := NewQueue(2, 16, testutil.Logger())
		defer q.Close()

		var ran atomic.Int32
		for i := 0; i < 10; i++ {
			require.True(t, q.Go("count", func(ctx context.Context) error {
				ran.Add(1)
				return nil
			}))
		}
		q.Wait()
		assert.Equal(t, int32(10), ran.Load())
	})

	t.Run("FailuresAndPanicsAreSwallowed", func(t *testing.T) {
		q := NewQueue(1, 4, testutil.Logger())
		defer q.Close()

		var ran atomic.Int32
		q.Go("fails", func(ctx context.Context) error { return errors.New("boom") })
		q.Go("panics", func(ctx context.Context) error { panic("boom") })
		q.Go("after", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		q.Wait()
		assert.Equal(t, int32(1), ran.Load())
	})

	t.Run("DropsWhenFull", func(t *testing.T) {
		q := NewQueue(1, 0, testutil.Logger())

		release := make(chan struct{})
		started := make(chan struct{})
		require.True(t, q.Go("blocker", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		}))
		<-started

		assert.False(t, q.Go("dropped", func(ctx context.Context) error { return nil }))

		close(release)
		q.Close()
	})

	t.Run("RejectsAfterClose", func(t *testing.T) {
		q := NewQueue(1, 1, testutil.Logger())
		q.Close()
		q.Close()
		assert.False(t, q.Go("late", func(ctx context.Context) error { return nil }))
	})
}
