// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Transfer modes for the bulk channel.
const (
	TransferModeSync      = "sync"
	TransferModeAsync     = "async"
	TransferModeSerial    = "serial"
	TransferModeSimulator = "simulator"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	USB      USBConfig      `mapstructure:"usb"`
	Target   TargetConfig   `mapstructure:"target"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	OpenAPIFile    string        `mapstructure:"openapi_file"`
}

// DatabaseConfig represents database configuration. When Enabled is false
// sessions are kept in memory only.
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
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

// USBConfig describes how the bridge chip is reached.
type USBConfig struct {
	VendorID        string        `mapstructure:"vendor_id"`
	ProductID       string        `mapstructure:"product_id"`
	OutEndpoint     int           `mapstructure:"out_endpoint"`
	InEndpoint      int           `mapstructure:"in_endpoint"`
	BulkTimeout     time.Duration `mapstructure:"bulk_timeout"`
	ControlTimeout  time.Duration `mapstructure:"control_timeout"`
	StallRetries    int           `mapstructure:"stall_retries"`
	TransferMode    string        `mapstructure:"transfer_mode"`
	SerialPort      string        `mapstructure:"serial_port"`
	AsyncBufferSize int           `mapstructure:"async_buffer_size"`
	Debug           int           `mapstructure:"debug"`
}

// TargetConfig holds the V850 side parameters.
type TargetConfig struct {
	OscillatorMHz    string        `mapstructure:"oscillator_mhz"`
	BaudRate         int           `mapstructure:"baud_rate"`
	ConfirmAttempts  int           `mapstructure:"confirm_attempts"`
	StrictChecksum   bool          `mapstructure:"strict_checksum"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables. An empty
// path searches the default locations; a missing file falls back to defaults.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with explicit values, keyed like the config
// file ("usb.transfer_mode"), taking precedence over file and environment.
func LoadWithOverrides(path string, overrides map[string]interface{}) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/v850-service")
	}

	// Environment variable support
	v.SetEnvPrefix("V850")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
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
	v.SetDefault("server.write_timeout", "3m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.openapi_file", "api/openapi.yaml")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "v850_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "file://migrations")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// USB defaults (NEC uPD78F0730 UART)
	v.SetDefault("usb.vendor_id", "0x0409")
	v.SetDefault("usb.product_id", "0x0063")
	v.SetDefault("usb.out_endpoint", 0x02)
	v.SetDefault("usb.in_endpoint", 0x81)
	v.SetDefault("usb.bulk_timeout", "4s")
	v.SetDefault("usb.control_timeout", "1s")
	v.SetDefault("usb.stall_retries", 5)
	v.SetDefault("usb.transfer_mode", TransferModeSync)
	v.SetDefault("usb.serial_port", "")
	v.SetDefault("usb.async_buffer_size", 4096)
	v.SetDefault("usb.debug", 0)

	// Target defaults
	v.SetDefault("target.oscillator_mhz", "5")
	v.SetDefault("target.baud_rate", 9600)
	v.SetDefault("target.confirm_attempts", 16)
	v.SetDefault("target.strict_checksum", false)
	v.SetDefault("target.operation_timeout", "2m")

	// App defaults
	v.SetDefault("app.name", "v850-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database is enabled")
	}

	switch config.USB.TransferMode {
	case TransferModeSync, TransferModeAsync, TransferModeSimulator:
	case TransferModeSerial:
		if config.USB.SerialPort == "" {
			return fmt.Errorf("usb.serial_port is required in serial transfer mode")
		}
	default:
		return fmt.Errorf("usb.transfer_mode must be one of: %v",
			[]string{TransferModeSync, TransferModeAsync, TransferModeSerial, TransferModeSimulator})
	}

	if config.USB.StallRetries < 1 {
		return fmt.Errorf("usb.stall_retries must be at least 1")
	}
	if config.USB.AsyncBufferSize < 512 {
		return fmt.Errorf("usb.async_buffer_size must be at least 512")
	}
	if config.Target.ConfirmAttempts < 1 {
		return fmt.Errorf("target.confirm_attempts must be at least 1")
	}
	if config.Target.OperationTimeout <= 0 {
		return fmt.Errorf("target.operation_timeout must be positive")
	}
	if _, err := config.OscillatorHz(); err != nil {
		return err
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// OscillatorHz returns target.oscillator_mhz converted to Hz.
func (c *Config) OscillatorHz() (uint32, error) {
	return ParseMHz(c.Target.OscillatorMHz)
}

// ParseMHz converts a decimal MHz string such as "4.9152" to an exact Hz
// value. Fractions of a Hz are rejected.
func ParseMHz(s string) (uint32, error) {
	mhz, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid oscillator frequency %q: %w", s, err)
	}
	hz := mhz.Mul(decimal.New(1, 6))
	if !hz.IsInteger() || hz.Sign() <= 0 || hz.GreaterThan(decimal.NewFromInt(1<<32-1)) {
		return 0, fmt.Errorf("invalid oscillator frequency %q: must be a positive whole number of Hz", s)
	}
	return uint32(hz.IntPart()), nil
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

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == "development"
}
