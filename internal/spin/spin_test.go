package spin

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTryAcquire(t *testing.T) {
	var l Lock

	require.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())

	l.Release()
	assert.True(t, l.TryAcquire())
}

func TestLockMutualExclusion(t *testing.T) {
	const (
		goroutines = 8
		increments = 1000
	)

	var (
		l       Lock
		counter int
		wg      sync.WaitGroup
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				l.Acquire()
				counter++
				l.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*increments, counter)
}
