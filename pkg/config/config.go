// Package config loads, merges, and validates the station's configuration.
package config

import "time"

// Config is the umbrella configuration object returned by Initialize and
// passed explicitly to every component that needs it. There is no
// module-level singleton — components receive what they need at
// construction time.
type Config struct {
	configDir string

	Database  *DatabaseConfig
	Queue     *QueueConfig
	Retention *RetentionConfig
	Time      *TimeConfig
	Retrieval *RetrievalConfig
	LLM       *LLMProviderConfig
	TTS       *TTSConfig
	Mastering *MasteringConfig
	Slack     *SlackConfig
	HTTP      *HTTPConfig
	Defaults  *Defaults
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// TimeConfig controls the real↔future-time mapping (Time Service, C8).
type TimeConfig struct {
	YearOffset     int           `yaml:"year_offset"`
	NTPServer      string        `yaml:"ntp_server"`
	SkewInterval   time.Duration `yaml:"skew_check_interval"`
	SkewThreshold  time.Duration `yaml:"skew_threshold"`
	ScheduleHorizon time.Duration `yaml:"schedule_horizon"`
}

// RetrievalConfig controls the Hybrid Retrieval Engine (C4).
type RetrievalConfig struct {
	DefaultTopK      int     `yaml:"default_top_k"`
	VectorWeight     float64 `yaml:"vector_weight"`
	LexicalWeight    float64 `yaml:"lexical_weight"`
	RecencyWeight    float64 `yaml:"recency_weight"`
	EmbeddingTimeout time.Duration `yaml:"embedding_timeout"`
}

// LLMProviderConfig configures the opaque external script-synthesis adapter.
type LLMProviderConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	APIKeyEnv   string        `yaml:"api_key_env"`
}

// TTSConfig configures the opaque external speech-synthesis adapter.
type TTSConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MasteringConfig configures the opaque external loudness-normalization adapter.
type MasteringConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// HTTPConfig controls the station's own HTTP API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultDatabaseConfig returns the built-in database pool defaults.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DefaultTimeConfig returns the built-in Time Service defaults (C8): a
// 500-year future offset, hourly skew checks against a public NTP pool.
func DefaultTimeConfig() *TimeConfig {
	return &TimeConfig{
		YearOffset:      500,
		NTPServer:       "pool.ntp.org",
		SkewInterval:    1 * time.Hour,
		SkewThreshold:   250 * time.Millisecond,
		ScheduleHorizon: 24 * time.Hour,
	}
}

// DefaultRetrievalConfig returns the built-in Hybrid Retrieval Engine (C4)
// weights: final_score = vector*VectorWeight + lexical*LexicalWeight +
// (recency_boost ? recency*RecencyWeight : 0) — recency is an additive
// bonus on top of vector+lexical, not a third share of a sum to 1 (§4.4).
func DefaultRetrievalConfig() *RetrievalConfig {
	return &RetrievalConfig{
		DefaultTopK:      12,
		VectorWeight:     0.7,
		LexicalWeight:    0.3,
		RecencyWeight:    0.3,
		EmbeddingTimeout: 10 * time.Second,
	}
}

// DefaultLLMProviderConfig returns the built-in script-synthesis adapter
// defaults.
func DefaultLLMProviderConfig() *LLMProviderConfig {
	return &LLMProviderConfig{
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		APIKeyEnv:   "LLM_API_KEY",
	}
}

// DefaultTTSConfig returns the built-in speech-synthesis adapter defaults.
func DefaultTTSConfig() *TTSConfig {
	return &TTSConfig{Timeout: 30 * time.Second}
}

// DefaultMasteringConfig returns the built-in mastering adapter defaults.
func DefaultMasteringConfig() *MasteringConfig {
	return &MasteringConfig{Timeout: 30 * time.Second}
}

// DefaultHTTPConfig returns the built-in HTTP API server defaults.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{Addr: ":8080"}
}

// Initialize is defined in loader.go.

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
