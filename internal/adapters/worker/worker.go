// Package worker runs batch predictions on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/pkg/logger"
	"github.com/okian/crimecast/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultQueueMultiplier  = 4 // queue slots per worker
	workerShutdownTimeout   = 5 * time.Second
)

// ErrPoolStopped is returned for jobs that cannot run because the pool is not running.
var ErrPoolStopped = errors.New("worker pool stopped")

// Predictor computes one prediction.
type Predictor interface {
	Predict(ctx context.Context, req *model.Request) (model.Result, error)
}

// Outcome is the result of one batch item.
type Outcome struct {
	Index  int
	Result model.Result
	Err    error
}

type job struct {
	ctx   context.Context //nolint:containedctx // a job carries its caller's deadline
	index int
	req   *model.Request
	out   chan<- Outcome
}

// InMemoryWorker pulls jobs off the shared channel and runs them.
type InMemoryWorker struct {
	jobs      <-chan job
	predictor Predictor
	name      string
	busy      *atomic.Int32

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// newInMemoryWorker creates a worker bound to the pool's job channel.
func newInMemoryWorker(jobs <-chan job, predictor Predictor, busy *atomic.Int32, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		jobs:      jobs,
		predictor: predictor,
		name:      "worker",
		busy:      busy,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}

	return w
}

// Run processes jobs until ctx is canceled, the worker is shut down or the
// job channel is closed.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-w.jobs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				j.out <- Outcome{Index: j.index, Err: ErrPoolStopped}
				return
			}
			w.process(j)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(j job) {
	start := time.Now()
	w.busy.Add(1)
	defer func() {
		w.busy.Add(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	o := Outcome{Index: j.index}
	if err := j.ctx.Err(); err != nil {
		o.Err = err
		j.out <- o
		return
	}

	o.Result, o.Err = w.safePredict(j)
	if o.Err != nil {
		metrics.RecordWorkerError()
		w.logger.Debug(j.ctx, "batch item failed", logger.Int("index", j.index), logger.Error(o.Err))
	}
	j.out <- o
}

func (w *InMemoryWorker) safePredict(j job) (res model.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(j.ctx, "prediction panicked", logger.Int("index", j.index), logger.Any("panic", p))
			err = fmt.Errorf("prediction panicked: %v", p)
		}
	}()
	return w.predictor.Predict(j.ctx, j.req)
}

// Pool manages multiple workers sharing one job channel, so concurrent
// batches together never run more than the configured number of predictions.
type Pool struct {
	workers   []*InMemoryWorker
	jobs      chan job
	predictor Predictor
	busy      atomic.Int32

	mu       sync.RWMutex
	started  bool
	stopped  bool
	shutdown chan struct{}
	stopOnce sync.Once

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, predictor Predictor, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		jobs:      make(chan job, workerCount*defaultQueueMultiplier),
		predictor: predictor,
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}

	for i := 0; i < workerCount; i++ {
		p.workers[i] = newInMemoryWorker(p.jobs, predictor, &p.busy,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger.Named("worker-"+strconv.Itoa(i))),
		)
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Busy returns the number of workers currently running a job.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Start starts all workers in the pool. Cancelling ctx stops the pool the
// same way Stop does: waiting and later batches fail with ErrPoolStopped.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.started = true
	go p.stopOnDone(ctx)
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

func (p *Pool) stopOnDone(ctx context.Context) {
	select {
	case <-ctx.Done():
		if p.halt() {
			p.logger.Info(context.Background(), "worker pool stopped by context", logger.Error(ctx.Err()))
		}
	case <-p.shutdown:
	}
}

// halt marks the pool stopped and releases every waiting Predict. It reports
// whether this call made the transition.
func (p *Pool) halt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return false
	}
	p.started = false
	p.stopped = true
	close(p.shutdown)
	return true
}

// Predict runs every request on the pool and returns one outcome per request,
// in request order. It blocks until all items finish, ctx is done or the pool
// stops; items that never ran carry the corresponding error.
func (p *Pool) Predict(ctx context.Context, reqs []*model.Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	filled := make([]bool, len(reqs))
	for i := range outcomes {
		outcomes[i].Index = i
	}

	p.mu.RLock()
	running := p.started
	p.mu.RUnlock()
	if !running {
		for i := range outcomes {
			outcomes[i].Err = ErrPoolStopped
		}
		return outcomes
	}

	out := make(chan Outcome, len(reqs))
	submitted := 0
submit:
	for i, req := range reqs {
		select {
		case p.jobs <- job{ctx: ctx, index: i, req: req, out: out}:
			submitted++
			p.updateGauges()
		case <-ctx.Done():
			break submit
		case <-p.shutdown:
			break submit
		}
	}

	for received := 0; received < submitted; received++ {
		select {
		case o := <-out:
			outcomes[o.Index] = o
			filled[o.Index] = true
		case <-ctx.Done():
			return fillRemaining(outcomes, filled, ctx.Err())
		case <-p.shutdown:
			return fillRemaining(outcomes, filled, ErrPoolStopped)
		}
	}
	p.updateGauges()

	if submitted < len(reqs) {
		err := ctx.Err()
		if err == nil {
			err = ErrPoolStopped
		}
		return fillRemaining(outcomes, filled, err)
	}
	return outcomes
}

func fillRemaining(outcomes []Outcome, filled []bool, err error) []Outcome {
	for i := range outcomes {
		if !filled[i] {
			outcomes[i].Err = err
		}
	}
	return outcomes
}

func (p *Pool) updateGauges() {
	busy := p.Busy()
	metrics.UpdateWorkerActiveCount(busy)
	metrics.UpdateWorkerIdleCount(len(p.workers) - busy)
	metrics.UpdateWorkerQueueSize(len(p.jobs))
}

// Stop signals every worker and waits briefly for each to finish its current job.
// A stopped pool cannot be started again.
func (p *Pool) Stop() {
	p.halt()

	p.mu.RLock()
	stopped := p.stopped
	p.mu.RUnlock()
	if !stopped {
		return
	}

	p.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
		defer cancel()
		for i, w := range p.workers {
			if err := w.Shutdown(ctx); err != nil {
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			}
		}
		p.logger.Info(context.Background(), "worker pool stopped")
	})
}
