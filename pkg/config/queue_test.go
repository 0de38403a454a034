package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()

	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 20, cfg.MaxConcurrentJobs)
	assert.Equal(t, 1*time.Second, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.PollIntervalJitter)
	assert.Equal(t, 120, cfg.LeaseSeconds)
	assert.Equal(t, 2*time.Minute, cfg.GracefulShutdownTimeout)
	assert.Equal(t, 1*time.Minute, cfg.JanitorInterval)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5, cfg.PoisonPillThreshold)
}

func TestValidateQueue(t *testing.T) {
	v := func(cfg *Config) error { return NewValidator(cfg).validateQueue() }
	base := func() *Config { return &Config{Queue: DefaultQueueConfig()} }

	tests := []struct {
		name    string
		mutate  func(*QueueConfig)
		nilCfg  bool
		wantErr bool
		errMsg  string
	}{
		{name: "valid defaults", mutate: func(q *QueueConfig) {}},
		{name: "nil queue", nilCfg: true, wantErr: true, errMsg: "queue configuration is nil"},
		{
			name:    "worker count too low",
			mutate:  func(q *QueueConfig) { q.WorkerCount = 0 },
			wantErr: true,
			errMsg:  "worker_count must be between 1 and 50",
		},
		{
			name:    "worker count too high",
			mutate:  func(q *QueueConfig) { q.WorkerCount = 51 },
			wantErr: true,
			errMsg:  "worker_count must be between 1 and 50",
		},
		{
			name:    "max concurrent jobs zero",
			mutate:  func(q *QueueConfig) { q.MaxConcurrentJobs = 0 },
			wantErr: true,
			errMsg:  "max_concurrent_jobs must be at least 1",
		},
		{
			name:    "poll interval zero",
			mutate:  func(q *QueueConfig) { q.PollInterval = 0 },
			wantErr: true,
			errMsg:  "poll_interval must be positive",
		},
		{
			name:    "negative jitter",
			mutate:  func(q *QueueConfig) { q.PollIntervalJitter = -1 * time.Second },
			wantErr: true,
			errMsg:  "poll_interval_jitter must be non-negative",
		},
		{
			name:    "jitter equal to poll interval",
			mutate:  func(q *QueueConfig) { q.PollInterval = 1 * time.Second; q.PollIntervalJitter = 1 * time.Second },
			wantErr: true,
			errMsg:  "poll_interval_jitter must be less than poll_interval",
		},
		{
			name:    "lease seconds zero",
			mutate:  func(q *QueueConfig) { q.LeaseSeconds = 0 },
			wantErr: true,
			errMsg:  "lease_seconds must be positive",
		},
		{
			name:    "graceful shutdown timeout zero",
			mutate:  func(q *QueueConfig) { q.GracefulShutdownTimeout = 0 },
			wantErr: true,
			errMsg:  "graceful_shutdown_timeout must be positive",
		},
		{
			name:    "janitor interval zero",
			mutate:  func(q *QueueConfig) { q.JanitorInterval = 0 },
			wantErr: true,
			errMsg:  "janitor_interval must be positive",
		},
		{
			name:    "max attempts zero",
			mutate:  func(q *QueueConfig) { q.MaxAttempts = 0 },
			wantErr: true,
			errMsg:  "max_attempts must be at least 1",
		},
		{
			name:    "heartbeat interval zero",
			mutate:  func(q *QueueConfig) { q.HeartbeatInterval = 0 },
			wantErr: true,
			errMsg:  "heartbeat_interval must be positive",
		},
		{
			name: "heartbeat interval too close to lease",
			mutate: func(q *QueueConfig) {
				q.LeaseSeconds = 60
				q.HeartbeatInterval = 21 * time.Second
			},
			wantErr: true,
			errMsg:  "heartbeat_interval must be less than lease_seconds/3",
		},
		{
			name: "heartbeat interval comfortably under lease/3",
			mutate: func(q *QueueConfig) {
				q.LeaseSeconds = 120
				q.HeartbeatInterval = 30 * time.Second
			},
		},
		{
			name:    "backoff ceiling below base",
			mutate:  func(q *QueueConfig) { q.BackoffBase = 10 * time.Second; q.BackoffCeiling = 5 * time.Second },
			wantErr: true,
			errMsg:  "backoff_ceiling",
		},
		{
			name:    "poison pill threshold zero",
			mutate:  func(q *QueueConfig) { q.PoisonPillThreshold = 0 },
			wantErr: true,
			errMsg:  "poison_pill_threshold must be at least 1",
		},
		{
			name:    "poison pill cooldown zero",
			mutate:  func(q *QueueConfig) { q.PoisonPillCooldown = 0 },
			wantErr: true,
			errMsg:  "poison_pill_cooldown must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if tt.nilCfg {
				cfg.Queue = nil
			} else {
				tt.mutate(cfg.Queue)
			}

			err := v(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
