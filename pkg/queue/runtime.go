package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/config"
)

// RuntimeStatus mirrors the teacher's WorkerStatus, renamed for the
// generic job runtime rather than a single-session executor.
type RuntimeStatus string

const (
	RuntimeIdle    RuntimeStatus = "idle"
	RuntimeWorking RuntimeStatus = "working"
)

// poisonState tracks consecutive failures for one job type so the
// Runtime can pause a misbehaving type instead of hot-looping failures
// (§4.9 "poison-pill protection").
type poisonState struct {
	consecutiveFailures int
	pausedUntil         time.Time
}

// Runtime is the C9 Worker Runtime: it owns the claim/heartbeat/renew/
// shutdown loop around a Handler, grounded in the teacher's
// pkg/queue/worker.go Worker.run/pollAndProcess/runHeartbeat/pollInterval
// — translated from a single AlertSession executor to a generic typed
// job Handler per §9's explicit "small Handler interface... composed
// with a runtime that owns the loop" design note.
type Runtime struct {
	instanceID string
	workerType string
	store      *Store
	pool       *pgxpool.Pool
	handler    Handler
	cfg        *config.QueueConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.Mutex
	status        RuntimeStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
	poison        map[schema.JobType]*poisonState
}

// NewRuntime constructs a Runtime that claims jobs of the types handler
// declares and dispatches them to it.
func NewRuntime(instanceID, workerType string, store *Store, pool *pgxpool.Pool, handler Handler, cfg *config.QueueConfig) *Runtime {
	return &Runtime{
		instanceID:   instanceID,
		workerType:   workerType,
		store:        store,
		pool:         pool,
		handler:      handler,
		cfg:          cfg,
		stopCh:       make(chan struct{}),
		status:       RuntimeIdle,
		lastActivity: time.Now(),
		poison:       make(map[schema.JobType]*poisonState),
	}
}

// Start launches the poll loop and heartbeat goroutine.
func (r *Runtime) Start(ctx context.Context) {
	r.wg.Add(2)
	go r.runLoop(ctx)
	go r.runHeartbeat(ctx)
}

// Stop signals shutdown, allows in-flight work up to
// GracefulShutdownTimeout to finish, then returns. Safe to call more
// than once.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.cfg.GracefulShutdownTimeout):
		slog.Warn("runtime graceful shutdown window elapsed; in-flight job leases will expire and be recovered by the janitor",
			"worker_type", r.workerType, "instance_id", r.instanceID)
	}
}

func (r *Runtime) runLoop(ctx context.Context) {
	defer r.wg.Done()
	log := slog.With("worker_type", r.workerType, "instance_id", r.instanceID)
	log.Info("worker runtime started")

	for {
		select {
		case <-r.stopCh:
			log.Info("worker runtime shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker runtime shutting down")
			return
		default:
			claimed, err := r.pollAndProcess(ctx)
			if err != nil {
				log.Error("error processing job", "error", err)
				r.sleep(time.Second)
				continue
			}
			if !claimed {
				r.sleep(r.pollInterval())
			}
		}
	}
}

func (r *Runtime) sleep(d time.Duration) {
	select {
	case <-r.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one job of an eligible (non-paused) type and runs
// it to completion, returning claimed=false when nothing was available.
func (r *Runtime) pollAndProcess(ctx context.Context) (claimed bool, err error) {
	types := r.eligibleTypes()
	if len(types) == 0 {
		return false, nil
	}

	job, err := r.store.Claim(ctx, r.instanceID, types, r.cfg.LeaseSeconds)
	if errors.Is(err, ErrNoJobAvailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log := slog.With("job_id", job.ID, "job_type", job.JobType, "worker_id", r.instanceID)
	log.Info("job claimed")

	r.setStatus(RuntimeWorking, job.ID)
	defer r.setStatus(RuntimeIdle, "")

	jobCtx, cancelJob := context.WithTimeout(ctx, time.Duration(r.cfg.LeaseSeconds)*time.Second)
	defer cancelJob()

	renewCtx, cancelRenew := context.WithCancel(jobCtx)
	go r.runLeaseRenewal(renewCtx, job.ID)

	handleErr := r.handler.Handle(jobCtx, job)
	cancelRenew()

	if errors.Is(jobCtx.Err(), context.Canceled) && handleErr == nil {
		// Shutdown or cancellation raced the handler's own success path;
		// release rather than risk a double-complete after restart.
		if err := r.store.Release(context.Background(), job.ID, r.instanceID); err != nil && !errors.Is(err, ErrLeaseLost) {
			log.Warn("failed to release cancelled job", "error", err)
		}
		return true, nil
	}

	if handleErr == nil {
		if err := r.store.Complete(context.Background(), job.ID, r.instanceID); err != nil && !errors.Is(err, ErrLeaseLost) {
			log.Error("failed to mark job complete", "error", err)
		}
		r.recordSuccess(job.JobType)
		r.mu.Lock()
		r.jobsProcessed++
		r.mu.Unlock()
		log.Info("job completed")
		return true, nil
	}

	stageErr, ok := handleErr.(*schema.StageError)
	if !ok {
		stageErr = schema.NewStageError(schema.KindTransient, "handler returned unclassified error", handleErr)
	}

	if err := r.store.Fail(context.Background(), job.ID, r.instanceID, stageErr); err != nil && !errors.Is(err, ErrLeaseLost) {
		log.Error("failed to record job failure", "error", err)
	}
	r.recordFailure(job.JobType)
	log.Warn("job failed", "kind", stageErr.Kind, "message", stageErr.Message)
	return true, nil
}

// runLeaseRenewal renews the claimed job's lease at lease/3 intervals
// while it is in flight (§4.9).
func (r *Runtime) runLeaseRenewal(ctx context.Context, jobID string) {
	interval := time.Duration(r.cfg.LeaseSeconds) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Renew(ctx, jobID, r.instanceID, r.cfg.LeaseSeconds); err != nil {
				slog.Warn("lease renewal failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// runHeartbeat records (worker_type, instance_id, last_heartbeat) every
// heartbeat_interval (§4.9).
func (r *Runtime) runHeartbeat(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.recordHeartbeat(ctx)
		}
	}
}

func (r *Runtime) recordHeartbeat(ctx context.Context) {
	r.mu.Lock()
	status := r.status
	r.mu.Unlock()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO health_checks (component, status, detail) VALUES ($1, $2, $3)
	`, r.workerType+":"+r.instanceID, string(status), "")
	if err != nil {
		slog.Warn("heartbeat write failed", "worker_type", r.workerType, "instance_id", r.instanceID, "error", err)
	}
}

// eligibleTypes returns the handler's job types minus any currently
// paused by poison-pill protection.
func (r *Runtime) eligibleTypes() []schema.JobType {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var out []schema.JobType
	for _, t := range r.handler.JobTypes() {
		ps := r.poison[t]
		if ps != nil && now.Before(ps.pausedUntil) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *Runtime) recordSuccess(t schema.JobType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.poison, t)
}

func (r *Runtime) recordFailure(t schema.JobType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := r.poison[t]
	if ps == nil {
		ps = &poisonState{}
		r.poison[t] = ps
	}
	ps.consecutiveFailures++
	if ps.consecutiveFailures >= r.cfg.PoisonPillThreshold {
		ps.pausedUntil = time.Now().Add(r.cfg.PoisonPillCooldown)
		slog.Warn("poison-pill protection paused job type",
			"job_type", t, "consecutive_failures", ps.consecutiveFailures, "cooldown", r.cfg.PoisonPillCooldown)
		ps.consecutiveFailures = 0
	}
}

// pollInterval returns the poll duration jittered within
// [base-jitter, base+jitter], matching the teacher's Worker.pollInterval.
func (r *Runtime) pollInterval() time.Duration {
	base := r.cfg.PollInterval
	jitter := r.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (r *Runtime) setStatus(status RuntimeStatus, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.currentJobID = jobID
	r.lastActivity = time.Now()
}

// Health reports the runtime's current status for /health aggregation.
type Health struct {
	WorkerType    string
	InstanceID    string
	Status        RuntimeStatus
	CurrentJobID  string
	JobsProcessed int
	LastActivity  time.Time
}

// Health returns the runtime's current health snapshot.
func (r *Runtime) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Health{
		WorkerType:    r.workerType,
		InstanceID:    r.instanceID,
		Status:        r.status,
		CurrentJobID:  r.currentJobID,
		JobsProcessed: r.jobsProcessed,
		LastActivity:  r.lastActivity,
	}
}
