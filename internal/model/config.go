// Package model defines the core data structures of the trading desk: tasks,
// sessions, capability profiles and configuration.
package model

import "time"

type Config struct {
	ReportsRoot string            `mapstructure:"reports_root" yaml:"reports_root"`
	StateDir    string            `mapstructure:"state_dir" yaml:"state_dir"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`
	Profiles    ProfilesConfig    `mapstructure:"profiles" yaml:"profiles"`
	MarketData  MarketDataConfig  `mapstructure:"marketdata" yaml:"marketdata"`
	Routing     RoutingConfig     `mapstructure:"routing" yaml:"routing"`
	Scorecard   ScorecardPolicy   `mapstructure:"scorecard" yaml:"scorecard"`
	History     HistoryConfig     `mapstructure:"history" yaml:"history"`
	Tracing     TracingConfig     `mapstructure:"tracing" yaml:"tracing"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type CoordinatorConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BestEffortTimeout time.Duration `mapstructure:"best_effort_timeout" yaml:"best_effort_timeout"`
	// SessionTimeout of zero disables the overall session deadline.
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
	WatchArtifacts bool          `mapstructure:"watch_artifacts" yaml:"watch_artifacts"`
}

type ProfilesConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type MarketDataConfig struct {
	Source        string        `mapstructure:"source" yaml:"source"`
	Dir           string        `mapstructure:"dir" yaml:"dir"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	Exchange      string        `mapstructure:"exchange" yaml:"exchange"`
	RetryAttempts uint          `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RoutingConfig struct {
	// Rules replace the built-in rule table when non-empty.
	Rules []RoutingRule `mapstructure:"rules" yaml:"rules"`
}

type RoutingRule struct {
	Tier     Tier     `mapstructure:"tier" yaml:"tier" json:"tier"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns" json:"patterns"`
	Workers  []string `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// ScorecardPolicy controls how agent confidence adjustments move after a
// prediction resolves.
type ScorecardPolicy struct {
	Reward  float64 `mapstructure:"reward" yaml:"reward"`
	Penalty float64 `mapstructure:"penalty" yaml:"penalty"`
	Min     float64 `mapstructure:"min" yaml:"min"`
	Max     float64 `mapstructure:"max" yaml:"max"`
}

type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	Sampler string  `mapstructure:"sampler" yaml:"sampler"`
	Ratio   float64 `mapstructure:"ratio" yaml:"ratio"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

func DefaultScorecardPolicy() ScorecardPolicy {
	return ScorecardPolicy{Reward: 0.05, Penalty: 0.1, Min: 0.5, Max: 1.5}
}

func DefaultConfig() Config {
	return Config{
		ReportsRoot: "reports",
		StateDir:    ".tradedesk",
		Log:         LogConfig{Level: "info", Format: "fmt"},
		Coordinator: CoordinatorConfig{
			PollInterval:      2 * time.Second,
			BestEffortTimeout: 4 * time.Minute,
			WatchArtifacts:    true,
		},
		Profiles: ProfilesConfig{Dir: ".tradedesk/agents"},
		MarketData: MarketDataConfig{
			Source:        "file",
			Dir:           ".tradedesk/data",
			Exchange:      "binance",
			RetryAttempts: 3,
			RetryDelay:    500 * time.Millisecond,
			Timeout:       10 * time.Second,
		},
		Scorecard: DefaultScorecardPolicy(),
		History:   HistoryConfig{Enabled: true},
		Tracing:   TracingConfig{Sampler: "always", Ratio: 1.0},
		Server:    ServerConfig{Addr: "127.0.0.1:8089"},
	}
}
