package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/michaelbrown/pylearn/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrBusy is returned when every worker is occupied and the queue is full.
	ErrBusy   = errors.New("runner busy")
	ErrClosed = errors.New("runner pool closed")
)

// Executor runs a single request.
type Executor interface {
	Run(ctx context.Context, req Request) Result
}

// Job is one queued execution. Result is buffered so a worker never blocks
// on a caller that went away.
type Job struct {
	ID     string
	Ctx    context.Context
	Req    Request
	Result chan Result
}

// Pool runs jobs on a fixed set of workers fed by a bounded queue.
type Pool struct {
	exec    Executor
	jobs    chan *Job
	workers int
	logger  *zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool. Capacity is workers running plus queueSize waiting.
func NewPool(exec Executor, workers, queueSize int, logger *zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Pool{
		exec:    exec,
		jobs:    make(chan *Job, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. They exit when ctx ends or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug().Int("worker_id", id).Msg("worker started")
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				p.logger.Debug().Int("worker_id", id).Msg("worker stopping")
				return
			}
			metrics.QueueDepth.Set(float64(len(p.jobs)))
			p.process(id, job)
		case <-ctx.Done():
			p.logger.Debug().Int("worker_id", id).Msg("worker stopping")
			return
		}
	}
}

func (p *Pool) process(workerID int, job *Job) {
	if err := job.Ctx.Err(); err != nil {
		job.Result <- errorResult("Code execution cancelled")
		return
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	p.logger.Debug().Int("worker_id", workerID).Str("job_id", job.ID).Msg("processing job")
	job.Result <- p.exec.Run(job.Ctx, job.Req)
}

// Submit enqueues a request without blocking. It fails with ErrBusy when
// the queue is full.
func (p *Pool) Submit(ctx context.Context, req Request) (*Job, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	job := &Job{
		ID:     uuid.NewString(),
		Ctx:    ctx,
		Req:    req,
		Result: make(chan Result, 1),
	}
	select {
	case p.jobs <- job:
		metrics.QueueDepth.Set(float64(len(p.jobs)))
		return job, nil
	default:
		metrics.RejectedTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
}

// Run submits a request and waits for its result.
func (p *Pool) Run(ctx context.Context, req Request) (Result, error) {
	job, err := p.Submit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	select {
	case res := <-job.Result:
		return res, nil
	case <-ctx.Done():
		return errorResult("Code execution cancelled"), ctx.Err()
	}
}

// Stop rejects new jobs, lets workers drain the queue and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
