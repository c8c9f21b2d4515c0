package testhelpers

import (
	"sync"
	"testing"
	"time"
)

// ========================================
// Concurrent Testing Helpers
// ========================================

// ConcurrentTest runs fn from several goroutines released at the same moment
func ConcurrentTest(t *testing.T, goroutines int, fn func(workerID int)) {
	t.Helper()

	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			<-start
			fn(id)
		}(i)
	}

	close(start)
	wg.Wait()
}

// ConcurrentTestWithTimeout runs a function concurrently and fails if it doesn't complete in time
func ConcurrentTestWithTimeout(t *testing.T, timeout time.Duration, goroutines int, fn func(workerID int)) {
	t.Helper()

	MustCompleteWithin(t, timeout, func() {
		ConcurrentTest(t, goroutines, fn)
	})
}
