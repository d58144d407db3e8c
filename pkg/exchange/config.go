package exchange

import (
	"fmt"
	"os"
	"strconv"
	"tcpexchange"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings of both endpoints. Values come from defaults,
// then a .env file, then real environment variables; command-line flags
// on the binaries override all three.
type Config struct {
	// Responder side
	BindAddress string // BIND_ADDRESS, empty means all interfaces
	BindPort    int    // BIND_PORT

	// Requester side
	TargetHost string // TARGET_HOST
	TargetPort int    // TARGET_PORT

	// Timeouts
	ConnectTimeout time.Duration // CONNECT_TIMEOUT
	ReadTimeout    time.Duration // READ_TIMEOUT
	WriteTimeout   time.Duration // WRITE_TIMEOUT

	// Limits
	MaxMessageSize int // MAX_MESSAGE_SIZE

	// Observability
	LogLevel  string // LOG_LEVEL
	WireTrace bool   // WIRE_TRACE
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		BindAddress:    "",
		BindPort:       9999,
		TargetHost:     "127.0.0.1",
		TargetPort:     9999,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: tcpexchange.DefaultMaxMessageSize,
		LogLevel:       "info",
		WireTrace:      false,
	}
}

// LoadConfig loads configuration from a .env file (if present) and the
// environment
func LoadConfig() (*Config, error) {
	// Отсутствие .env - не ошибка, системные переменные всё равно читаются
	_ = godotenv.Load(".env")

	cfg := DefaultConfig()

	if err := loadEnvString(&cfg.BindAddress, "BIND_ADDRESS"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&cfg.BindPort, "BIND_PORT"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&cfg.TargetHost, "TARGET_HOST"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&cfg.TargetPort, "TARGET_PORT"); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&cfg.ConnectTimeout, "CONNECT_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&cfg.ReadTimeout, "READ_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&cfg.WriteTimeout, "WRITE_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&cfg.MaxMessageSize, "MAX_MESSAGE_SIZE"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&cfg.LogLevel, "LOG_LEVEL"); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&cfg.WireTrace, "WIRE_TRACE"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.BindPort < 1 || c.BindPort > 65535 {
		return fmt.Errorf("BIND_PORT must be between 1 and 65535, got %d", c.BindPort)
	}
	if c.TargetPort < 1 || c.TargetPort > 65535 {
		return fmt.Errorf("TARGET_PORT must be between 1 and 65535, got %d", c.TargetPort)
	}
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be greater than zero, got %d", c.MaxMessageSize)
	}
	return nil
}

// BindAddr returns the responder's listen address in host:port form
func (c *Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.BindPort)
}

// TargetAddr returns the requester's target address in host:port form
func (c *Config) TargetAddr() string {
	return fmt.Sprintf("%s:%d", c.TargetHost, c.TargetPort)
}

func loadEnvString(target *string, key string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
	return nil
}

func loadEnvInt(target *int, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvBool(target *bool, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}
