package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/deepaksubu/norbert/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads configuration using Viper, caching the result globally.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// GetViper returns the process-wide Viper instance for advanced access.
func GetViper() *viper.Viper {
	return initViper()
}

// LoadFromFile loads configuration from a specific TOML file, bypassing
// the search-path merge and the environment, for a hermetic config.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &cfg, nil
}

// Reset clears the cached configuration. Intended for tests.
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("NORBERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for norbert.toml by walking up the directory
// tree from the working directory, returning the first match or "".
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, "norbert.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges configuration files in precedence order (lowest
// to highest): system < user < project, each later file overriding keys
// the earlier ones set. The merge lands in Viper's config layer via
// MergeConfigMap, not its override layer (v.Set) — v.Set outranks
// AutomaticEnv in Viper's own precedence chain (Set > flag > env > config
// > default), so using it here would make a project TOML value beat an
// environment variable, contradicting the documented
// env > project > user > system > default precedence.
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	userDir := filepath.Join(homeDir, ".norbert")
	os.MkdirAll(userDir, DefaultDirPermissions)

	configPaths := []string{
		"/etc/norbert/config.toml",
		filepath.Join(userDir, "config.toml"),
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		configPaths = append(configPaths, projectConfig)
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(path)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			continue
		}
	}
}

// Get returns a configuration value using dot notation.
func Get(key string) interface{} {
	return initViper().Get(key)
}

// GetString returns a configuration value as a string using dot notation.
func GetString(key string) string {
	return initViper().GetString(key)
}

// GetInt returns a configuration value as an int using dot notation.
func GetInt(key string) int {
	return initViper().GetInt(key)
}

// GetBool returns a configuration value as a bool using dot notation.
func GetBool(key string) bool {
	return initViper().GetBool(key)
}

// Set overrides a configuration value at runtime using dot notation.
func Set(key string, value interface{}) {
	initViper().Set(key, value)
}
