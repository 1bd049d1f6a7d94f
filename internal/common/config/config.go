// Package config provides configuration management for extsim.
// It supports loading configuration from environment variables, a config
// file, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for extsim.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// ServerConfig holds the HTTP command-surface configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// NATSConfig holds the optional NATS event bus configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// SimulatorConfig holds the simulator settings surface: default execution
// intent, log retention, and the locations of the persisted stores.
type SimulatorConfig struct {
	// DefaultLocation is LOCAL or REMOTE.
	DefaultLocation string `mapstructure:"defaultLocation"`
	// DefaultEecType is ONEAGENT or ACTIVEGATE.
	DefaultEecType string `mapstructure:"defaultEecType"`
	// DefaultSendMetrics enables metric ingestion for local Python runs.
	DefaultSendMetrics bool `mapstructure:"defaultSendMetrics"`
	// DefaultTargetName names the preferred remote target, if any.
	DefaultTargetName string `mapstructure:"defaultTargetName"`
	// MaximumLogFiles bounds retained run logs per workspace.
	// A negative value disables retention trimming.
	MaximumLogFiles int `mapstructure:"maximumLogFiles"`
	// StateDir holds targets.json and executions.json.
	StateDir string `mapstructure:"stateDir"`
	// PythonCommand is the interpreter used for SDK-kind datasources.
	PythonCommand string `mapstructure:"pythonCommand"`
}

// Load reads configuration from defaults, an optional config file, and
// EXTSIM_-prefixed environment variables, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := stateHome(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("EXTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8280)

	// Empty URL means use the in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "extsim")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stderr")

	v.SetDefault("simulator.defaultLocation", "LOCAL")
	v.SetDefault("simulator.defaultEecType", "ONEAGENT")
	v.SetDefault("simulator.defaultSendMetrics", false)
	v.SetDefault("simulator.defaultTargetName", "")
	v.SetDefault("simulator.maximumLogFiles", 10)
	v.SetDefault("simulator.stateDir", defaultStateDir())
	v.SetDefault("simulator.pythonCommand", "python")
}

// detectDefaultLogFormat returns json for production environments and
// human-readable console output for terminal use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("EXTSIM_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func stateHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".extsim"), nil
}

func defaultStateDir() string {
	dir, err := stateHome()
	if err != nil {
		return ".extsim"
	}
	return dir
}
