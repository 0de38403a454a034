package queue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/pkg/config"
)

// Pool runs several Runtime instances concurrently within one process,
// grounded in the teacher's pkg/queue/pool.go WorkerPool — but fanning
// out generic job Handlers instead of AlertSession executors. Pool size
// is the concurrency cap per process instance mandated by §4.9.
type Pool struct {
	runtimes []*Runtime
}

// NewPool starts min(cfg.WorkerCount, cfg.MaxConcurrentJobs) Runtime
// instances, each with a distinct instance id derived from instanceIDBase.
func NewPool(instanceIDBase, workerType string, store *Store, db *pgxpool.Pool, handler Handler, cfg *config.QueueConfig) *Pool {
	n := cfg.WorkerCount
	if cfg.MaxConcurrentJobs < n {
		n = cfg.MaxConcurrentJobs
	}
	if n < 1 {
		n = 1
	}

	runtimes := make([]*Runtime, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", instanceIDBase, i)
		runtimes[i] = NewRuntime(id, workerType, store, db, handler, cfg)
	}
	return &Pool{runtimes: runtimes}
}

// Start launches every runtime in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, r := range p.runtimes {
		r.Start(ctx)
	}
}

// Stop gracefully stops every runtime in the pool.
func (p *Pool) Stop() {
	for _, r := range p.runtimes {
		r.Stop()
	}
}

// Health returns a snapshot of every runtime in the pool.
func (p *Pool) Health() []Health {
	out := make([]Health, len(p.runtimes))
	for i, r := range p.runtimes {
		out[i] = r.Health()
	}
	return out
}
