package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// JobType distinguishes the three kinds of swap work (§4.9).
type JobType int

const (
	JobPrepareSwap JobType = iota
	JobDoSwap
	JobLoad
)

// Job is one unit of swap work submitted to the pool. Run performs the
// actual I/O off the dispatch goroutine; its result is delivered on
// Results once complete.
type Job struct {
	Type JobType
	Key  string
	Run  func() (interface{}, error)
}

// Result is what a completed Job produces, matched back to its Job by Key
// and Type since a key may have at most one in-flight job of each type.
type Result struct {
	Job   Job
	Value interface{}
	Err   error
}

// idleTimeout is how long a worker waits for the next job before deciding
// its queue has emptied and exiting (§4.9: "each idle worker exits when its
// queue empties").
const idleTimeout = 100 * time.Millisecond

// Pool stands in for the new_jobs/processing/processed lists plus
// completion pipe of §4.9: Go channels serialize hand-off between the
// submitting goroutine and a lazily-grown set of workers, and Results is
// the channel the server's result goroutine ranges over, handling each
// completed job as it arrives.
type Pool struct {
	jobs    chan Job
	Results chan Result

	maxWorkers int32
	workers    int32
	mu         sync.Mutex
}

func NewPool(maxWorkers int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Pool{
		jobs:       make(chan Job, 256),
		Results:    make(chan Result, 256),
		maxWorkers: int32(maxWorkers),
	}
}

// Submit enqueues job, lazily starting a new worker if fewer than
// maxWorkers are currently running.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
	p.maybeGrow()
}

func (p *Pool) maybeGrow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers >= p.maxWorkers {
		return
	}
	p.workers++
	go p.runWorker()
}

func (p *Pool) runWorker() {
	defer atomic.AddInt32(&p.workers, -1)
	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()
	for {
		select {
		case job := <-p.jobs:
			val, err := job.Run()
			p.Results <- Result{Job: job, Value: val, Err: err}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idleTimeout)
		case <-timer.C:
			return
		}
	}
}

// Blocking runs job synchronously, used when the server is configured for
// VM blocking mode instead of the threaded pool (§4.9).
func Blocking(job Job) Result {
	val, err := job.Run()
	return Result{Job: job, Value: val, Err: err}
}
