package consolidation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/brain"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// job is one message consolidation: a single memory's transitions form one
// atomic unit, so a mid-batch failure never leaves the graph corrupt, only
// incomplete.
type job struct {
	ctx     context.Context
	message brain.ChatMessage
	run     *runState
}

type pool struct {
	consolidator *Consolidator
	queue        chan job
	wg           sync.WaitGroup
	logger       *zap.Logger
}

func newPool(c *Consolidator, numWorkers, queueSize uint) *pool {
	if numWorkers == 0 {
		numWorkers = defaultNumWorkers
	}
	if queueSize == 0 {
		queueSize = defaultJobQueueSize
	}

	p := &pool{
		consolidator: c,
		queue:        make(chan job, queueSize),
		logger:       c.logger,
	}

	p.wg.Add(int(numWorkers))
	for i := range numWorkers {
		go p.worker(i)
	}

	return p
}

// enqueue submits a job. Returns false if the queue is full and the job was
// dropped; the message simply stays eligible for the next run.
func (p *pool) enqueue(j job) bool {
	select {
	case p.queue <- j:
		return true
	default:
		p.logger.Error("consolidation queue full, job dropped",
			zap.String("message_id", j.message.ID),
		)
		return false
	}
}

// close signals workers to stop and waits for in-flight jobs to drain.
func (p *pool) close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("consolidation worker started", zap.Uint("worker_id", id))

	for j := range p.queue {
		p.processJob(j)
	}

	p.logger.Debug("consolidation worker stopped", zap.Uint("worker_id", id))
}

func (p *pool) processJob(j job) {
	defer j.run.wg.Done()

	mem, err := p.consolidator.consolidateMessage(j.ctx, j.message)
	if err != nil {
		p.logger.Error("failed to consolidate message",
			zap.String("message_id", j.message.ID),
			zap.Error(err),
		)
		j.run.recordFailure()
		return
	}

	j.run.recordConsolidated(j.message.UserID, j.message.ID, mem.ID)
}
