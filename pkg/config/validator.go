package config

import (
	"fmt"
	"net/url"
	"os"
)

// Validator validates configuration comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at the
// first error). A failure here is a FatalConfig-kind error (§7): the process
// must not start serving traffic with invalid configuration.
func (v *Validator) ValidateAll() error {
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := v.validateTime(); err != nil {
		return fmt.Errorf("time validation failed: %w", err)
	}
	if err := v.validateRetrieval(); err != nil {
		return fmt.Errorf("retrieval validation failed: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}
	if err := v.validateHTTPAdapter("tts", v.cfg.TTS.Endpoint, v.cfg.TTS.Timeout); err != nil {
		return fmt.Errorf("tts validation failed: %w", err)
	}
	if err := v.validateHTTPAdapter("mastering", v.cfg.Mastering.Endpoint, v.cfg.Mastering.Timeout); err != nil {
		return fmt.Errorf("mastering validation failed: %w", err)
	}
	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}
	if err := v.validateHTTP(); err != nil {
		return fmt.Errorf("http validation failed: %w", err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d == nil {
		return fmt.Errorf("database configuration is nil")
	}
	if d.URL == "" {
		return NewValidationError("database", "", "url", ErrMissingRequiredField)
	}
	if d.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1, got %d", d.MaxOpenConns)
	}
	if d.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns must be non-negative, got %d", d.MaxIdleConns)
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) must not exceed max_open_conns (%d)", d.MaxIdleConns, d.MaxOpenConns)
	}
	if d.ConnMaxLifetime <= 0 {
		return fmt.Errorf("conn_max_lifetime must be positive, got %v", d.ConnMaxLifetime)
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}

	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50, got %d", q.WorkerCount)
	}
	if q.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be at least 1, got %d", q.MaxConcurrentJobs)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", q.PollInterval)
	}
	if q.PollIntervalJitter < 0 {
		return fmt.Errorf("poll_interval_jitter must be non-negative, got %v", q.PollIntervalJitter)
	}
	if q.PollIntervalJitter >= q.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be less than poll_interval, got jitter=%v interval=%v", q.PollIntervalJitter, q.PollInterval)
	}
	if q.LeaseSeconds <= 0 {
		return fmt.Errorf("lease_seconds must be positive, got %d", q.LeaseSeconds)
	}
	if q.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive, got %v", q.GracefulShutdownTimeout)
	}
	if q.JanitorInterval <= 0 {
		return fmt.Errorf("janitor_interval must be positive, got %v", q.JanitorInterval)
	}
	if q.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", q.MaxAttempts)
	}
	if q.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", q.HeartbeatInterval)
	}
	if q.HeartbeatInterval.Seconds()*3 >= float64(q.LeaseSeconds) {
		return fmt.Errorf("heartbeat_interval must be less than lease_seconds/3 to keep leases renewed in time, got heartbeat=%v lease_seconds=%d", q.HeartbeatInterval, q.LeaseSeconds)
	}
	if q.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be positive, got %v", q.BackoffBase)
	}
	if q.BackoffCeiling < q.BackoffBase {
		return fmt.Errorf("backoff_ceiling (%v) must be >= backoff_base (%v)", q.BackoffCeiling, q.BackoffBase)
	}
	if q.PoisonPillThreshold < 1 {
		return fmt.Errorf("poison_pill_threshold must be at least 1, got %d", q.PoisonPillThreshold)
	}
	if q.PoisonPillCooldown <= 0 {
		return fmt.Errorf("poison_pill_cooldown must be positive, got %v", q.PoisonPillCooldown)
	}

	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.SegmentRetentionDays < 1 {
		return fmt.Errorf("segment_retention_days must be at least 1, got %d", r.SegmentRetentionDays)
	}
	if r.DeadLetterRetentionDays < 1 {
		return fmt.Errorf("dead_letter_retention_days must be at least 1, got %d", r.DeadLetterRetentionDays)
	}
	if r.HealthCheckTTL <= 0 {
		return fmt.Errorf("health_check_ttl must be positive, got %v", r.HealthCheckTTL)
	}
	if r.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", r.CleanupInterval)
	}
	return nil
}

func (v *Validator) validateTime() error {
	t := v.cfg.Time
	if t == nil {
		return fmt.Errorf("time configuration is nil")
	}
	if t.YearOffset < 0 {
		return fmt.Errorf("year_offset must be non-negative, got %d", t.YearOffset)
	}
	if t.NTPServer == "" {
		return NewValidationError("time", "", "ntp_server", ErrMissingRequiredField)
	}
	if t.SkewInterval <= 0 {
		return fmt.Errorf("skew_check_interval must be positive, got %v", t.SkewInterval)
	}
	if t.SkewThreshold <= 0 {
		return fmt.Errorf("skew_threshold must be positive, got %v", t.SkewThreshold)
	}
	if t.ScheduleHorizon <= 0 {
		return fmt.Errorf("schedule_horizon must be positive, got %v", t.ScheduleHorizon)
	}
	return nil
}

func (v *Validator) validateRetrieval() error {
	r := v.cfg.Retrieval
	if r == nil {
		return fmt.Errorf("retrieval configuration is nil")
	}
	if r.DefaultTopK < 1 {
		return fmt.Errorf("default_top_k must be at least 1, got %d", r.DefaultTopK)
	}
	if r.VectorWeight < 0 || r.LexicalWeight < 0 || r.RecencyWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative, got vector=%v lexical=%v recency=%v", r.VectorWeight, r.LexicalWeight, r.RecencyWeight)
	}
	sum := r.VectorWeight + r.LexicalWeight + r.RecencyWeight
	if sum <= 0 {
		return fmt.Errorf("retrieval weights must sum to a positive value, got %v", sum)
	}
	if r.EmbeddingTimeout <= 0 {
		return fmt.Errorf("embedding_timeout must be positive, got %v", r.EmbeddingTimeout)
	}
	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM
	if l == nil {
		return fmt.Errorf("llm configuration is nil")
	}
	if l.Endpoint == "" {
		return NewValidationError("llm", "", "endpoint", ErrMissingRequiredField)
	}
	if _, err := url.Parse(l.Endpoint); err != nil {
		return NewValidationError("llm", "", "endpoint", fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}
	if l.Model == "" {
		return NewValidationError("llm", "", "model", ErrMissingRequiredField)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", l.Temperature)
	}
	if l.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive, got %v", l.Timeout)
	}
	if l.APIKeyEnv == "" {
		return NewValidationError("llm", "", "api_key_env", ErrMissingRequiredField)
	}
	return nil
}

// validateHTTPAdapter validates the shared shape of the TTS and mastering
// HTTP adapter configs (§6): a reachable-looking endpoint and a positive
// timeout. Both are opaque external services — only their contract, not
// their internals, is in scope here.
func (v *Validator) validateHTTPAdapter(component, endpoint string, timeout interface{ Seconds() float64 }) error {
	if endpoint == "" {
		return NewValidationError(component, "", "endpoint", ErrMissingRequiredField)
	}
	if _, err := url.Parse(endpoint); err != nil {
		return NewValidationError(component, "", "endpoint", fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}
	if timeout.Seconds() <= 0 {
		return fmt.Errorf("%s timeout must be positive", component)
	}
	return nil
}

func (v *Validator) validateSlack() error {
	s := v.cfg.Slack
	if s == nil || !s.Enabled {
		return nil
	}

	if s.Channel == "" {
		return fmt.Errorf("slack.channel is required when Slack is enabled")
	}
	if s.TokenEnv == "" {
		return fmt.Errorf("slack.token_env is required when Slack is enabled")
	}
	if token := os.Getenv(s.TokenEnv); token == "" {
		return fmt.Errorf("slack.token_env: environment variable %s is not set", s.TokenEnv)
	}

	return nil
}

func (v *Validator) validateHTTP() error {
	h := v.cfg.HTTP
	if h == nil {
		return fmt.Errorf("http configuration is nil")
	}
	if h.Addr == "" {
		return NewValidationError("http", "", "addr", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil {
		return fmt.Errorf("defaults configuration is nil")
	}
	if d.SegmentMaxRetries < 0 {
		return fmt.Errorf("segment_max_retries must be non-negative, got %d", d.SegmentMaxRetries)
	}
	if d.LeadTime <= 0 {
		return fmt.Errorf("lead_time must be positive, got %v", d.LeadTime)
	}
	if d.ScriptLengthMin < 1 {
		return fmt.Errorf("script_length_min must be at least 1, got %d", d.ScriptLengthMin)
	}
	if d.ScriptLengthMax <= d.ScriptLengthMin {
		return fmt.Errorf("script_length_max (%d) must be greater than script_length_min (%d)", d.ScriptLengthMax, d.ScriptLengthMin)
	}
	if d.EmbeddingModel == "" {
		return NewValidationError("defaults", "", "embedding_model", ErrMissingRequiredField)
	}
	return nil
}
