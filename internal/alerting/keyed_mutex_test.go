package alerting

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("keyedMutex", func() {
	It("serialises holders of the same key", func() {
		k := newKeyedMutex()
		var (
			wg      sync.WaitGroup
			inside  atomic.Int32
			overlap atomic.Bool
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := k.Lock(7)
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()

		Expect(overlap.Load()).To(BeFalse())
		Expect(k.size()).To(BeZero())
	})

	It("does not block different keys", func() {
		k := newKeyedMutex()
		unlockA := k.Lock(1)
		defer unlockA()

		done := make(chan struct{})
		go func() {
			k.Lock(2)()
			close(done)
		}()
		Eventually(done).Should(BeClosed())
	})
})
