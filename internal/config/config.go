// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"scanner-service/internal/protocol"
	"scanner-service/internal/scanner"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	History  HistoryConfig  `mapstructure:"history"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents session history storage. When disabled the
// history is kept in memory.
type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ScannerConfig represents the scanner link settings
type ScannerConfig struct {
	// Port is the default serial device path
	Port string `mapstructure:"port"`
	// BaudRate fixes the link speed; 0 means auto-detect
	BaudRate           int           `mapstructure:"baud_rate"`
	CandidateBaudRates []int         `mapstructure:"candidate_baud_rates"`
	DataBits           int           `mapstructure:"data_bits"`
	StopBits           int           `mapstructure:"stop_bits"`
	Parity             string        `mapstructure:"parity"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	MaxResync          int           `mapstructure:"max_resync"`
	CloseTimeout       time.Duration `mapstructure:"close_timeout"`
	SessionTimeout     time.Duration `mapstructure:"session_timeout"`
}

// HistoryConfig bounds the session history
type HistoryConfig struct {
	// MaxRuns caps the in-memory history
	MaxRuns         int           `mapstructure:"max_runs"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from config.yaml and environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from path, or from the default search paths
// when path is empty. A missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scanner-service")
	}

	// Environment variable support
	v.SetEnvPrefix("SCANNER_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "scanner_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Scanner defaults
	v.SetDefault("scanner.port", "")
	v.SetDefault("scanner.baud_rate", 0)
	v.SetDefault("scanner.candidate_baud_rates", protocol.StandardBaudRates)
	v.SetDefault("scanner.data_bits", 8)
	v.SetDefault("scanner.stop_bits", 1)
	v.SetDefault("scanner.parity", "none")
	v.SetDefault("scanner.probe_timeout", scanner.DefaultProbeTimeout.String())
	v.SetDefault("scanner.command_timeout", scanner.DefaultCommandTimeout.String())
	v.SetDefault("scanner.max_resync", scanner.DefaultMaxResync)
	v.SetDefault("scanner.close_timeout", protocol.DefaultCloseTimeout.String())
	v.SetDefault("scanner.session_timeout", "5m")

	// History defaults
	v.SetDefault("history.max_runs", 1000)
	v.SetDefault("history.retention", "720h")
	v.SetDefault("history.cleanup_interval", "1h")

	// App defaults
	v.SetDefault("app.name", "scanner-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database is enabled")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.History.Retention > 0 && config.History.CleanupInterval <= 0 {
		return fmt.Errorf("history.cleanup_interval must be positive when retention is set")
	}

	return config.Scanner.validate()
}

func (s *ScannerConfig) validate() error {
	if len(s.CandidateBaudRates) == 0 {
		return fmt.Errorf("scanner.candidate_baud_rates must not be empty")
	}
	for _, rate := range s.CandidateBaudRates {
		if err := protocol.ValidateBaudRate(rate); err != nil {
			return fmt.Errorf("scanner.candidate_baud_rates: %w", err)
		}
	}
	if s.BaudRate != 0 {
		if err := protocol.ValidateBaudRate(s.BaudRate); err != nil {
			return fmt.Errorf("scanner.baud_rate: %w", err)
		}
	}

	line := s.SerialConfig("placeholder")
	if err := protocol.ValidateSerialConfig(line); err != nil {
		return fmt.Errorf("scanner: %w", err)
	}

	if s.ProbeTimeout <= 0 || s.CommandTimeout <= 0 || s.CloseTimeout <= 0 {
		return fmt.Errorf("scanner timeouts must be positive")
	}
	if s.MaxResync < 0 {
		return fmt.Errorf("scanner.max_resync must not be negative")
	}
	return nil
}

// SerialConfig returns the serial line settings for portName
func (s *ScannerConfig) SerialConfig(portName string) *protocol.SerialConfig {
	return &protocol.SerialConfig{
		Port:     portName,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
		Timeout:  s.CommandTimeout,
	}
}

// DetectorConfig returns the baud detection settings
func (s *ScannerConfig) DetectorConfig() scanner.DetectorConfig {
	return scanner.DetectorConfig{
		ProbeTimeout: s.ProbeTimeout,
		MaxResync:    s.MaxResync,
		CloseTimeout: s.CloseTimeout,
	}
}

// SessionConfig returns the session settings at baudRate
func (s *ScannerConfig) SessionConfig(baudRate int) scanner.SessionConfig {
	return scanner.SessionConfig{
		BaudRate:       baudRate,
		CommandTimeout: s.CommandTimeout,
		CloseTimeout:   s.CloseTimeout,
	}
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
