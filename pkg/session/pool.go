package session

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// workerPool runs deferred callback work on a fixed number of goroutines.
// submit never blocks: jobs queue in FIFO order until a worker is free.
type workerPool struct {
	log *logrus.Entry

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	wg      sync.WaitGroup
}

func newWorkerPool(workers int, log *logrus.Entry) *workerPool {
	p := &workerPool{log: log}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

// submit queues job. It reports false once the pool is stopped.
func (p *workerPool) submit(job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	p.queue = append(p.queue, job)
	p.cond.Signal()
	return true
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.exec(job)
	}
}

func (p *workerPool) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Error("recovered panic in deferred callback")
		}
	}()
	job()
}

// stop drains queued jobs and waits for the workers to exit.
func (p *workerPool) stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
