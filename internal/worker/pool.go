// Package worker runs document ingestion off the request path, either on an
// in-process pool or behind a RabbitMQ queue.
package worker

import (
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"
)

type PoolConfig struct {
	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int
	KeepAlive     time.Duration
}

type PoolStats struct {
	Workers   int32 `json:"workers"`
	Busy      int32 `json:"busy"`
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	CallerRan int64 `json:"caller_ran"`
}

// Pool is a bounded worker pool. Core workers live until Close; extra workers
// up to MaxWorkers are started when the queue is full and exit after
// KeepAlive without work. When every worker is busy and the queue is full the
// submitting goroutine runs the task itself.
type Pool struct {
	cfg   PoolConfig
	tasks chan func()

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	workers   atomic.Int32
	busy      atomic.Int32
	completed atomic.Int64
	callerRan atomic.Int64
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.CoreWorkers <= 0 {
		cfg.CoreWorkers = 1
	}
	if cfg.MaxWorkers < cfg.CoreWorkers {
		cfg.MaxWorkers = cfg.CoreWorkers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}

	p := &Pool{
		cfg:   cfg,
		tasks: make(chan func(), cfg.QueueCapacity),
	}
	for i := 0; i < cfg.CoreWorkers; i++ {
		p.workers.Inc()
		p.wg.Add(1)
		go p.coreLoop()
	}
	return p
}

// Submit queues task. It never drops work: a saturated or closed pool runs
// task on the calling goroutine before returning.
func (p *Pool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.runInCaller(task)
		return
	}

	select {
	case p.tasks <- task:
		p.mu.Unlock()
		return
	default:
	}

	if int(p.workers.Load()) < p.cfg.MaxWorkers {
		p.spawn(task)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.runInCaller(task)
}

func (p *Pool) runInCaller(task func()) {
	p.callerRan.Inc()
	slog.Warn("ingest pool saturated, running task in caller")
	p.run(task)
}

func (p *Pool) coreLoop() {
	defer p.wg.Done()
	defer p.workers.Dec()
	for task := range p.tasks {
		p.run(task)
	}
}

// spawn starts a burst worker with first as its initial task. Callers hold p.mu.
func (p *Pool) spawn(first func()) {
	p.workers.Inc()
	p.wg.Add(1)
	go p.burstLoop(first)
}

func (p *Pool) burstLoop(first func()) {
	defer p.wg.Done()
	defer p.workers.Dec()

	p.run(first)
	idle := time.NewTimer(p.cfg.KeepAlive)
	defer idle.Stop()
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(task)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.cfg.KeepAlive)
		case <-idle.C:
			return
		}
	}
}

func (p *Pool) run(task func()) {
	p.busy.Inc()
	defer func() {
		p.busy.Dec()
		p.completed.Inc()
		if r := recover(); r != nil {
			slog.Error("ingest task panicked", "panic", r)
		}
	}()
	task()
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers.Load(),
		Busy:      p.busy.Load(),
		Queued:    len(p.tasks),
		Completed: p.completed.Load(),
		CallerRan: p.callerRan.Load(),
	}
}

// Close stops accepting queued work and waits for queued tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
