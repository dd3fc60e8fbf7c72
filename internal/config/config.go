package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	License  LicenseConfig  `yaml:"license" envconfig:"LICENSE"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LicenseConfig contains license authority and verification configuration
type LicenseConfig struct {
	ServerURL      string        `yaml:"server_url" envconfig:"SERVER_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"10s"`
	GraceWindow    time.Duration `yaml:"grace_window" envconfig:"GRACE_WINDOW" default:"168h"`
	AppName        string        `yaml:"app_name" envconfig:"APP_NAME"`
	AppVersion     string        `yaml:"app_version" envconfig:"APP_VERSION"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig throttles license activation attempts
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"1"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"5"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	ExecutableDir string `yaml:"executable_dir" envconfig:"EXECUTABLE_DIR"`
	LicenseFile   string `yaml:"license_file" envconfig:"LICENSE_FILE" default:"license.dat"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CONVERTER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.License.ServerURL == "" {
		envConfig.License.ServerURL = fileConfig.License.ServerURL
	}
	if envConfig.License.RequestTimeout == 0 {
		envConfig.License.RequestTimeout = fileConfig.License.RequestTimeout
	}
	if envConfig.License.GraceWindow == 0 {
		envConfig.License.GraceWindow = fileConfig.License.GraceWindow
	}
	if envConfig.Paths.LicenseFile == "" {
		envConfig.Paths.LicenseFile = fileConfig.Paths.LicenseFile
	}
	if envConfig.Logging.FilePath == "" {
		envConfig.Logging.FilePath = fileConfig.Logging.FilePath
	}

	return envConfig
}

// applyDefaults fills fields that have no envconfig default tag
func (c *Config) applyDefaults() {
	if c.License.ServerURL == "" {
		c.License.ServerURL = DefaultLicenseServerURL
	}
	if c.License.RequestTimeout == 0 {
		c.License.RequestTimeout = DefaultRequestTimeout
	}
	if c.License.GraceWindow == 0 {
		c.License.GraceWindow = DefaultGraceWindow
	}
	if c.License.AppName == "" {
		c.License.AppName = AppName
	}
	if c.License.AppVersion == "" {
		c.License.AppVersion = AppVersion
	}
	if c.Paths.LicenseFile == "" {
		c.Paths.LicenseFile = DefaultLicenseFile
	}
}

// resolvePaths anchors relative paths at the executable directory
func (c *Config) resolvePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	c.Paths.ExecutableDir = paths.ExecutableDir
	return nil
}

// GetLicenseFile returns the resolved license cache file path
func (c *Config) GetLicenseFile() string {
	return resolveAgainstExecutable(c.Paths.ExecutableDir, c.Paths.LicenseFile)
}

// GetLogsDir returns the resolved logs directory path
func (c *Config) GetLogsDir() string {
	return resolveAgainstExecutable(c.Paths.ExecutableDir, c.Paths.LogsDir)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.License.ServerURL == "" {
		return fmt.Errorf("license server URL must not be empty")
	}

	if c.License.RequestTimeout <= 0 {
		return fmt.Errorf("license request timeout must be positive")
	}

	if c.License.GraceWindow < 0 {
		return fmt.Errorf("license grace window must not be negative")
	}

	// Always JSON format so log aggregation stays uniform
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		License: LicenseConfig{
			ServerURL:      DefaultLicenseServerURL,
			RequestTimeout: DefaultRequestTimeout,
			GraceWindow:    DefaultGraceWindow,
			AppName:        AppName,
			AppVersion:     AppVersion,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     1,
				Burst:   5,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			LicenseFile: DefaultLicenseFile,
			LogsDir:     "logs",
		},
	}
}
