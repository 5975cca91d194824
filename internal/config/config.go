// Package config loads server configuration from TOML files, environment
// variables, and defaults, in that precedence order (lowest to highest:
// system file < user file < project file < environment).
package config

import "time"

// Config is the root configuration for a norbert server process.
type Config struct {
	ServiceName string `mapstructure:"service_name" toml:"service_name"`
	ClientName  string `mapstructure:"client_name" toml:"client_name"`

	Coordinator CoordinatorConfig `mapstructure:"coordinator" toml:"coordinator"`
	Server      ServerConfig      `mapstructure:"server" toml:"server"`
	Pool        PoolConfig        `mapstructure:"pool" toml:"pool"`
	Statistics  StatisticsConfig  `mapstructure:"statistics" toml:"statistics"`

	AvoidPayloadCopy        bool `mapstructure:"avoid_payload_copy" toml:"avoid_payload_copy"`
	ShutdownPauseMultiplier int  `mapstructure:"shutdown_pause_multiplier" toml:"shutdown_pause_multiplier"`

	Logging LoggingConfig `mapstructure:"logging" toml:"logging"`
}

// CoordinatorConfig describes how to reach the cluster coordinator.
type CoordinatorConfig struct {
	ConnectString    string `mapstructure:"connect_string" toml:"connect_string"`
	SessionTimeoutMs int    `mapstructure:"session_timeout_ms" toml:"session_timeout_ms"`
}

// SessionTimeout returns the coordinator session timeout as a time.Duration.
func (c CoordinatorConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMs) * time.Millisecond
}

// ServerConfig describes the TCP listener and per-request deadlines.
type ServerConfig struct {
	BindHost                    string `mapstructure:"bind_host" toml:"bind_host"`
	Port                        int    `mapstructure:"port" toml:"port"`
	RequestTimeoutMs            int    `mapstructure:"request_timeout_ms" toml:"request_timeout_ms"`
	ResponseGenerationTimeoutMs int    `mapstructure:"response_generation_timeout_ms" toml:"response_generation_timeout_ms"`
}

// RequestTimeout returns the queue-deadline horizon as a time.Duration.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// ResponseGenerationTimeout returns the service deadline, or 0 if disabled
// (ResponseGenerationTimeoutMs <= 0).
func (c ServerConfig) ResponseGenerationTimeout() time.Duration {
	if c.ResponseGenerationTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.ResponseGenerationTimeoutMs) * time.Millisecond
}

// PoolConfig configures the bounded request worker pool.
type PoolConfig struct {
	CorePoolSize  int `mapstructure:"core_pool_size" toml:"core_pool_size"`
	MaxPoolSize   int `mapstructure:"max_pool_size" toml:"max_pool_size"`
	KeepAliveSec  int `mapstructure:"keep_alive_sec" toml:"keep_alive_sec"`
	QueueCapacity int `mapstructure:"queue_capacity" toml:"queue_capacity"`
}

// KeepAlive returns the idle-worker keep-alive duration.
func (c PoolConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSec) * time.Second
}

// StatisticsConfig configures the rolling request-statistics window.
type StatisticsConfig struct {
	WindowMs int `mapstructure:"window_ms" toml:"window_ms"`
}

// Window returns the statistics window as a time.Duration.
func (c StatisticsConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	JSON      bool `mapstructure:"json" toml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity"`
}

// File system permission constants used when writing config/state files.
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
