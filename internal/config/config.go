// Package config provides YAML-based configuration for the uploader client
// and the reference receiver.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/strategy"
	"github.com/filedrop/uploader/internal/validate"
)

// AppConfig represents the root configuration document
type AppConfig struct {
	// Client configuration
	Client ClientConfig `yaml:"client"`

	// Validation rules applied before files are admitted
	Validation validate.Constraints `yaml:"validation"`

	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Logging options
	Logging LoggingConfig `yaml:"logging"`
}

// ClientConfig selects the upload strategy and where it sends files
type ClientConfig struct {
	BaseURL           string `yaml:"baseURL"`
	Strategy          string `yaml:"strategy"`
	SingleEndpoint    string `yaml:"singleEndpoint,omitempty"`
	ChunkEndpoint     string `yaml:"chunkEndpoint,omitempty"`
	WebSocketEndpoint string `yaml:"websocketEndpoint,omitempty"`
	ChunkSize         int64  `yaml:"chunkSize"`
	TimeoutSeconds    int    `yaml:"timeoutSeconds"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCORS"`
	AllowOrigins string `yaml:"allowOrigins"`
	ReadTimeout  int    `yaml:"readTimeoutSeconds"`
	WriteTimeout int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `yaml:"idleTimeoutSeconds"`
	BodyLimit    string `yaml:"bodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"dataDirectory"`
	UploadsDirectory string `yaml:"uploadsDirectory"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level                string `yaml:"level"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Client: ClientConfig{
			BaseURL:        "http://localhost:8089",
			Strategy:       string(strategy.KindStandard),
			ChunkSize:      strategy.DefaultChunkSize,
			TimeoutSeconds: 300,
		},
		Validation: validate.Constraints{
			MaxFileSize: 100 * 1024 * 1024,
			Accept:      "",
		},
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2G",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
		},
		Logging: LoggingConfig{
			Level:                "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there first if it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return config, nil
}

// Save writes the configuration as YAML
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Uploader configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}

	if baseURL := os.Getenv("UPLOADER_BASE_URL"); baseURL != "" {
		c.Client.BaseURL = baseURL
	}

	if s := os.Getenv("UPLOADER_STRATEGY"); s != "" {
		c.Client.Strategy = s
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
}

// Validate reports every invalid setting
func (c *AppConfig) Validate() error {
	var errs []error

	if _, err := strategy.ParseKind(c.Client.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("client.strategy: %w", err))
	}
	if c.Client.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("client.chunkSize must be positive, got %d", c.Client.ChunkSize))
	}
	if c.Client.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("client.timeoutSeconds must not be negative"))
	}
	if c.Validation.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("validation.maxFileSize must not be negative"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}

// StrategyOptions returns the options for building the configured strategy
func (c *AppConfig) StrategyOptions(kind strategy.Kind) strategy.Options {
	opts := strategy.Options{
		BaseURL:   c.Client.BaseURL,
		ChunkSize: c.Client.ChunkSize,
	}
	switch kind {
	case strategy.KindStandard:
		opts.Endpoint = c.Client.SingleEndpoint
	case strategy.KindChunked:
		opts.Endpoint = c.Client.ChunkEndpoint
	case strategy.KindWebSocket:
		opts.Endpoint = c.Client.WebSocketEndpoint
	}
	return opts
}

// GetStrategyKind returns the configured strategy kind
func (c *AppConfig) GetStrategyKind() strategy.Kind {
	k, err := strategy.ParseKind(c.Client.Strategy)
	if err != nil {
		return strategy.KindStandard
	}
	return k
}

// GetClientTimeout returns the per-request timeout, zero meaning none
func (c *AppConfig) GetClientTimeout() time.Duration {
	return time.Duration(c.Client.TimeoutSeconds) * time.Second
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetAllowOrigins splits the comma-separated origin list
func (c *AppConfig) GetAllowOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDirectory, c.Storage.UploadsDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
