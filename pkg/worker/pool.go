// Package worker provides the consumer-side worker pool: a fixed set of
// goroutines pulling consolidation jobs off the queue and running each one
// through the orchestrator.
//
// Concurrency across scopes comes from the pool; serialization within a
// scope comes from the scope lock, so the pool itself needs no partitioning
// logic.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/memd/pkg/engine"
	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/queue"
	"github.com/papercomputeco/memd/pkg/queue/nop"
)

var (
	defaultNumWorkers uint = 3
)

// Processor runs a single consolidation job. Implemented by
// engine.Orchestrator.
type Processor interface {
	Process(ctx context.Context, job *memory.ConsolidationJob) engine.Outcome
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Consumer delivers consolidation job messages.
	Consumer queue.Consumer

	// Publisher emits terminal job results.
	Publisher queue.Publisher

	// Processor executes each job.
	Processor Processor

	// NumWorkers is the number of concurrent workers in the pool.
	NumWorkers uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool consumes and processes consolidation jobs concurrently.
type Pool struct {
	config *Config
	logger *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a pool; workers start on Start. A nil Publisher falls back
// to the no-op publisher, dropping results instead of emitting them.
func NewPool(c *Config) (*Pool, error) {
	if c.Consumer == nil || c.Processor == nil {
		return nil, fmt.Errorf("worker pool requires a consumer and a processor")
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{config: c, logger: logger}, nil
}

// Start launches the workers. They run until ctx is done or Close is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(int(p.config.NumWorkers))
	for i := range p.config.NumWorkers {
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", zap.Uint("workers", p.config.NumWorkers))
}

// Close stops the workers and waits for in-flight jobs to finish. Call this
// during graceful shutdown before closing the queue connections.
func (p *Pool) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// worker is the inner loop: receive, process, dispatch the outcome.
func (p *Pool) worker(ctx context.Context, id uint) {
	defer p.wg.Done()
	log := p.logger.With(zap.Uint("worker", id))

	for {
		delivery, err := p.config.Consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				log.Debug("worker stopping")
				return
			}
			log.Error("receiving job", zap.Error(err))
			continue
		}
		p.handle(ctx, delivery, log)
	}
}

func (p *Pool) handle(ctx context.Context, delivery queue.Delivery, log *zap.Logger) {
	msg := delivery.Message()
	job := msg.ToJob()
	outcome := p.config.Processor.Process(ctx, job)

	switch {
	case outcome.Requeue:
		if err := delivery.Requeue(ctx, outcome.Delay); err != nil {
			log.Error("requeueing job", zap.String("job_id", job.ID), zap.Error(err))
		}

	case outcome.DeadLetter:
		p.publish(ctx, job, outcome.Result, log)
		if err := delivery.DeadLetter(ctx, outcome.Reason); err != nil {
			log.Error("dead-lettering job", zap.String("job_id", job.ID), zap.Error(err))
		}

	default:
		p.publish(ctx, job, outcome.Result, log)
		if err := delivery.Ack(ctx); err != nil {
			log.Error("acking job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// publish emits the terminal result, if the outcome produced one. A nil
// result means the job was already terminal; redeliveries stay silent so
// exactly one result goes out per job.
func (p *Pool) publish(ctx context.Context, job *memory.ConsolidationJob, result *memory.JobResult, log *zap.Logger) {
	if result == nil {
		return
	}
	msg := queue.NewResultMessage(job, result)
	if err := p.config.Publisher.PublishResult(ctx, msg); err != nil {
		log.Error("publishing result", zap.String("job_id", job.ID), zap.Error(err))
	}
}
