package config

import (
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// SetDefaults populates v with the framework's default configuration values.
// Defaults mirror the constants called out in the configuration surface:
// a 30s coordinator session timeout, a disabled (-1) service deadline, and
// a conservative pool sized for a single-digit-core host.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "norbert")
	v.SetDefault("client_name", "norbert-client")

	v.SetDefault("coordinator.connect_string", "localhost:2181")
	v.SetDefault("coordinator.session_timeout_ms", 30000)

	v.SetDefault("server.bind_host", "0.0.0.0")
	v.SetDefault("server.port", 31313)
	v.SetDefault("server.request_timeout_ms", 5000)
	v.SetDefault("server.response_generation_timeout_ms", -1)

	v.SetDefault("pool.core_pool_size", 4)
	v.SetDefault("pool.max_pool_size", 16)
	v.SetDefault("pool.keep_alive_sec", 60)
	v.SetDefault("pool.queue_capacity", 100)

	v.SetDefault("statistics.window_ms", 60000)

	v.SetDefault("avoid_payload_copy", false)
	v.SetDefault("shutdown_pause_multiplier", 3)

	v.SetDefault("logging.json", false)
	v.SetDefault("logging.verbosity", 0)
}

// BindSensitiveEnvVars binds configuration keys that callers conventionally
// expect to override via environment variable even without the NORBERT_
// prefix, because they carry deployment secrets or endpoints.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("coordinator.connect_string", "NORBERT_COORDINATOR", "ZK_CONNECT_STRING")
}

// GetServerPort resolves the listening port, honoring a PORT environment
// override used by common container schedulers.
func (c *Config) GetServerPort() int {
	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			return port
		}
	}
	return c.Server.Port
}
