package worker

import (
	"context"
	"fmt"
	"sync"
)

// Logger interface for pool logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Job is a unit of deferred work submitted by a request handler
type Job func(ctx context.Context)

// Pool runs jobs on a bounded set of workers so expensive work (packaging,
// uploads) never runs on the request-handling goroutine
type Pool struct {
	jobs    chan Job
	log     Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewPool creates a pool with the given number of workers
func NewPool(workers int, log Logger) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		jobs: make(chan Job, 1000), // Buffered channel
		log:  log,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}

	return p
}

// Submit queues a job. Returns an error when the pool is saturated or
// already stopped, so the caller can fall back or surface the pressure.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("worker pool is stopped")
	}
	p.mu.Unlock()

	select {
	case p.jobs <- job:
		return nil
	default:
		p.log.Warn("worker pool full, rejecting job")
		return fmt.Errorf("worker pool is full")
	}
}

// Close stops accepting jobs and waits for in-flight work to finish
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	p.log.Info("worker pool closed")
	return nil
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		// Jobs own their deadlines; the pool only provides a base context.
		job(context.Background())
	}

	p.log.Debug("worker exiting", "worker", id)
}
