package sandboxlock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	r := NewRegistry()
	var counter int32
	var maxConcurrent int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.WithLock("sbx-1", func() error {
				n := atomic.AddInt32(&counter, 1)
				for {
					cur := atomic.LoadInt32(&maxConcurrent)
					if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
						break
					}
				}
				atomic.AddInt32(&counter, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxConcurrent)
}

func TestWithLockDifferentKeysDoNotShareALock(t *testing.T) {
	r := NewRegistry()
	assert.NotSame(t, r.lockFor("a"), r.lockFor("b"))
	assert.Same(t, r.lockFor("a"), r.lockFor("a"))
}

func TestWithLockPropagatesError(t *testing.T) {
	r := NewRegistry()
	sentinel := assert.AnError
	err := r.WithLock("x", func() error { return sentinel })
	assert.Equal(t, sentinel, err)
}
