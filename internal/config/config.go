// Package config provides configuration for the executor, the coordinator and deskctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the optional YAML file applied before environment overrides.
const EnvConfigFile = "DESKRELAY_CONFIG"

// Config holds the deskrelay configuration.
type Config struct {
	// Server settings
	ExecutorPort    int `yaml:"executor_port"`    // Command channel port (/ws, /health, /metrics)
	CoordinatorPort int `yaml:"coordinator_port"` // Session management API port

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Backend bridge settings
	BridgeURL           string        `yaml:"bridge_url"`
	BridgeTimeout       time.Duration `yaml:"bridge_timeout"`
	DefaultInstructions string        `yaml:"default_instructions"`
	DefaultModel        string        `yaml:"default_model"`

	// WebSocket settings
	MaxMessageSize int64         `yaml:"max_message_size"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`

	// Command execution
	ScreenshotTimeout time.Duration `yaml:"screenshot_timeout"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	InputBackend      string        `yaml:"input_backend"` // auto, xdotool, dryrun
	PolicyFile        string        `yaml:"policy_file"`

	// Image normalization
	ImageMaxWidth  int    `yaml:"image_max_width"`
	ImageMaxHeight int    `yaml:"image_max_height"`
	ImageQuality   int    `yaml:"image_quality"`
	ImageFormat    string `yaml:"image_format"`

	// Managed services, keyed by service name
	Services map[string]ServiceSpec `yaml:"services"`

	// CLI
	ExecutorURL    string `yaml:"executor_url"`
	CoordinatorURL string `yaml:"coordinator_url"`

	// Logging
	LogLevel       string `yaml:"log_level"`
	LogDevelopment bool   `yaml:"log_development"`
}

// ServiceSpec describes a subprocess the coordinator can start and stop.
type ServiceSpec struct {
	Command []string `yaml:"command"`
	Dir     string   `yaml:"dir"`
}

// MinBridgeTimeout is the lower bound applied to BridgeTimeout; agent turns are slow.
const MinBridgeTimeout = 30 * time.Second

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ExecutorPort:        3001,
		CoordinatorPort:     8080,
		DatabaseURL:         "file:deskrelay.db?cache=shared&mode=rwc",
		BridgeURL:           "http://localhost:5001",
		BridgeTimeout:       MinBridgeTimeout,
		DefaultInstructions: "You are a helpful assistant.",
		DefaultModel:        "computer-use-preview",
		MaxMessageSize:      100 * 1024 * 1024,
		PingInterval:        30 * time.Second,
		WriteTimeout:        30 * time.Second,
		ReadTimeout:         120 * time.Second,
		ScreenshotTimeout:   5 * time.Second,
		CommandTimeout:      25 * time.Second,
		InputBackend:        "auto",
		ImageMaxWidth:       1024,
		ImageMaxHeight:      768,
		ImageQuality:        50,
		ImageFormat:         "jpeg",
		Services: map[string]ServiceSpec{
			"executor": {Command: []string{"deskrelay-executor"}},
			"agent":    {Command: []string{"python", "run.py"}, Dir: "python"},
		},
		ExecutorURL:    "ws://localhost:3001/ws",
		CoordinatorURL: "http://localhost:8080",
		LogLevel:       "info",
	}
}

// Load loads configuration from the optional YAML file and environment variables.
// Environment variables take precedence over the file.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ExecutorPort = getEnvInt("EXECUTOR_PORT", cfg.ExecutorPort)
	cfg.CoordinatorPort = getEnvInt("COORDINATOR_PORT", cfg.CoordinatorPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.BridgeURL = getEnv("BRIDGE_URL", cfg.BridgeURL)
	cfg.BridgeTimeout = getEnvDuration("BRIDGE_TIMEOUT_MS", cfg.BridgeTimeout)
	cfg.DefaultInstructions = getEnv("DEFAULT_INSTRUCTIONS", cfg.DefaultInstructions)
	cfg.DefaultModel = getEnv("DEFAULT_MODEL", cfg.DefaultModel)
	cfg.MaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(cfg.MaxMessageSize)))
	cfg.PingInterval = getEnvDuration("WS_PING_INTERVAL_MS", cfg.PingInterval)
	cfg.WriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT_MS", cfg.WriteTimeout)
	cfg.ReadTimeout = getEnvDuration("WS_READ_TIMEOUT_MS", cfg.ReadTimeout)
	cfg.ScreenshotTimeout = getEnvDuration("SCREENSHOT_TIMEOUT_MS", cfg.ScreenshotTimeout)
	cfg.CommandTimeout = getEnvDuration("COMMAND_TIMEOUT_MS", cfg.CommandTimeout)
	cfg.InputBackend = getEnv("INPUT_BACKEND", cfg.InputBackend)
	cfg.PolicyFile = getEnv("COMMAND_POLICY_FILE", cfg.PolicyFile)
	cfg.ImageMaxWidth = getEnvInt("IMAGE_MAX_WIDTH", cfg.ImageMaxWidth)
	cfg.ImageMaxHeight = getEnvInt("IMAGE_MAX_HEIGHT", cfg.ImageMaxHeight)
	cfg.ImageQuality = getEnvInt("IMAGE_QUALITY", cfg.ImageQuality)
	cfg.ImageFormat = getEnv("IMAGE_FORMAT", cfg.ImageFormat)
	cfg.ExecutorURL = getEnv("EXECUTOR_URL", cfg.ExecutorURL)
	cfg.CoordinatorURL = getEnv("COORDINATOR_URL", cfg.CoordinatorURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogDevelopment = getEnvBool("LOG_DEVELOPMENT", cfg.LogDevelopment)

	for name, spec := range cfg.Services {
		key := "SERVICE_" + strings.ToUpper(name) + "_CMD"
		if val := os.Getenv(key); val != "" {
			spec.Command = strings.Fields(val)
			cfg.Services[name] = spec
		}
	}

	if cfg.BridgeTimeout < MinBridgeTimeout {
		cfg.BridgeTimeout = MinBridgeTimeout
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
