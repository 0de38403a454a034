package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// StationYAMLConfig represents the complete station.yaml file structure.
// Every section is optional; anything left unset falls back to the
// corresponding Default*Config.
type StationYAMLConfig struct {
	Database  *DatabaseConfig    `yaml:"database"`
	Queue     *QueueConfig       `yaml:"queue"`
	Retention *RetentionConfig   `yaml:"retention"`
	Time      *TimeConfig        `yaml:"time"`
	Retrieval *RetrievalConfig   `yaml:"retrieval"`
	LLM       *LLMProviderConfig `yaml:"llm"`
	TTS       *TTSConfig         `yaml:"tts"`
	Mastering *MasteringConfig   `yaml:"mastering"`
	Slack     *SlackConfig       `yaml:"slack"`
	HTTP      *HTTPConfig        `yaml:"http"`
	Defaults  *Defaults          `yaml:"defaults"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read station.yaml from configDir (a missing file is not an error; the
//     built-in defaults apply)
//  2. Expand ${VAR} / $VAR environment references
//  3. Parse YAML into StationYAMLConfig
//  4. Merge each section onto its built-in defaults (user value wins)
//  5. Validate the result
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("component", "config", "config_dir", configDir)
	log.Info("loading configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration loaded",
		"worker_count", cfg.Queue.WorkerCount,
		"year_offset", cfg.Time.YearOffset)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, "station.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, NewLoadError("station.yaml", err)
		}
		raw = nil
	}

	var user StationYAMLConfig
	if len(raw) > 0 {
		expanded := ExpandEnv(raw)
		if err := yaml.Unmarshal(expanded, &user); err != nil {
			return nil, NewLoadError("station.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
	}

	database := DefaultDatabaseConfig()
	if err := mergeInto(database, user.Database); err != nil {
		return nil, fmt.Errorf("failed to merge database config: %w", err)
	}

	queue := DefaultQueueConfig()
	if err := mergeInto(queue, user.Queue); err != nil {
		return nil, fmt.Errorf("failed to merge queue config: %w", err)
	}

	retention := DefaultRetentionConfig()
	if err := mergeInto(retention, user.Retention); err != nil {
		return nil, fmt.Errorf("failed to merge retention config: %w", err)
	}

	timeCfg := DefaultTimeConfig()
	if err := mergeInto(timeCfg, user.Time); err != nil {
		return nil, fmt.Errorf("failed to merge time config: %w", err)
	}

	retrieval := DefaultRetrievalConfig()
	if err := mergeInto(retrieval, user.Retrieval); err != nil {
		return nil, fmt.Errorf("failed to merge retrieval config: %w", err)
	}

	llm := DefaultLLMProviderConfig()
	if err := mergeInto(llm, user.LLM); err != nil {
		return nil, fmt.Errorf("failed to merge llm config: %w", err)
	}

	tts := DefaultTTSConfig()
	if err := mergeInto(tts, user.TTS); err != nil {
		return nil, fmt.Errorf("failed to merge tts config: %w", err)
	}

	mastering := DefaultMasteringConfig()
	if err := mergeInto(mastering, user.Mastering); err != nil {
		return nil, fmt.Errorf("failed to merge mastering config: %w", err)
	}

	slackCfg := DefaultSlackConfig()
	if err := mergeInto(slackCfg, user.Slack); err != nil {
		return nil, fmt.Errorf("failed to merge slack config: %w", err)
	}

	httpCfg := DefaultHTTPConfig()
	if err := mergeInto(httpCfg, user.HTTP); err != nil {
		return nil, fmt.Errorf("failed to merge http config: %w", err)
	}

	defaults := DefaultDefaults()
	if err := mergeInto(defaults, user.Defaults); err != nil {
		return nil, fmt.Errorf("failed to merge defaults config: %w", err)
	}

	return &Config{
		configDir: configDir,
		Database:  database,
		Queue:     queue,
		Retention: retention,
		Time:      timeCfg,
		Retrieval: retrieval,
		LLM:       llm,
		TTS:       tts,
		Mastering: mastering,
		Slack:     slackCfg,
		HTTP:      httpCfg,
		Defaults:  defaults,
	}, nil
}

// mergeInto merges a possibly-nil user-supplied section onto dst, with
// non-zero user fields overriding the built-in default already in dst.
func mergeInto[T any](dst *T, src *T) error {
	if src == nil {
		return nil
	}
	return mergo.Merge(dst, src, mergo.WithOverride)
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
