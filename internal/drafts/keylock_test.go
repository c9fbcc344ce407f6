package drafts

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLockIndependentKeys(t *testing.T) {
	t.Parallel()

	k := NewKeyLock()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.Len())

	unlockA()
	unlockA()
	unlockB()
	assert.Zero(t, k.Len())
}

func TestKeyLockMutualExclusion(t *testing.T) {
	t.Parallel()

	k := NewKeyLock()
	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("u-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, k.Len())
}
