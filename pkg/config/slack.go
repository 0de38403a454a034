package config

// SlackConfig controls the Ops Notifier's (A5) best-effort Slack
// notifications on DLQ entries and segment failures.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

// DefaultSlackConfig returns Slack notifications disabled by default; an
// operator opts in by setting enabled: true and a channel in config.
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}
}
