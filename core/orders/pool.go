package orders

import (
	"sync"

	"github.com/openrec/lemd/core/logger"
)

// Pool runs order jobs on a bounded number of goroutines. Submission never
// blocks the caller; excess jobs queue on the semaphore.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
	log logger.Logger
}

// NewPool creates a pool running at most size jobs concurrently.
func NewPool(size int, log logger.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size), log: log}
}

// Submit schedules fn. A panic escaping fn is caught and logged so one bad
// job cannot take the pool down; jobs are expected to reach their own
// terminal state before panicking reaches this point.
func (p *Pool) Submit(fn func()) {
	p.wg.Add(1)
	go func() {
		p.sem <- struct{}{}
		defer func() {
			<-p.sem
			if r := recover(); r != nil {
				p.log.Errorf("worker panic: %v", r)
			}
			p.wg.Done()
		}()
		fn()
	}()
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
