package config

import "time"

// QueueConfig controls the Durable Job Queue (C1) and the Worker Runtime (C9)
// that consumes it. These values govern how jobs are polled, leased,
// retried, and how aggressively a worker backs off a misbehaving job type.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per process.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentJobs caps the number of Runtimes a Pool starts in this
	// process (min(WorkerCount, MaxConcurrentJobs)). It is not enforced
	// across processes.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// PollInterval is the base interval for checking for claimable jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is random jitter added to PollInterval so that a
	// fleet of workers does not thunder-herd the database.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// LeaseSeconds is the default lease duration granted on Claim.
	LeaseSeconds int `yaml:"lease_seconds"`

	// HeartbeatInterval is how often a worker records liveness. Lease
	// renewal of an in-flight job runs on its own ticker at LeaseSeconds/3
	// (§4.9), not on this interval.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// GracefulShutdownTimeout bounds how long in-flight jobs are given to
	// finish during a drain before their leases are released.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// JanitorInterval is how often the lease-expiry sweep runs.
	JanitorInterval time.Duration `yaml:"janitor_interval"`

	// MaxAttempts is the default max_attempts for a newly enqueued job.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase/BackoffCeiling bound the exponential retry backoff
	// (base·2^(attempts-1), capped at ceiling, ±20% jitter — §4.1).
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffCeiling time.Duration `yaml:"backoff_ceiling"`

	// PoisonPillThreshold is the number of consecutive failures of the same
	// job type after which a worker pauses claiming that type.
	PoisonPillThreshold int `yaml:"poison_pill_threshold"`

	// PoisonPillCooldown is how long a paused job type stays paused.
	PoisonPillCooldown time.Duration `yaml:"poison_pill_cooldown"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentJobs:       20,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		LeaseSeconds:            120,
		HeartbeatInterval:       30 * time.Second,
		GracefulShutdownTimeout: 2 * time.Minute,
		JanitorInterval:         1 * time.Minute,
		MaxAttempts:             5,
		BackoffBase:             2 * time.Second,
		BackoffCeiling:          5 * time.Minute,
		PoisonPillThreshold:     5,
		PoisonPillCooldown:      5 * time.Minute,
	}
}
