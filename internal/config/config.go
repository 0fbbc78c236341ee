package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/store"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
}

// StorageConfig selects the ledger store
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`      // "postgres" or "badger"
	BadgerPath string `mapstructure:"badger_path"` // Data directory of the embedded store; empty means in-memory
}

// LedgerConfig holds the ledger rules
type LedgerConfig struct {
	ListingFee     string `mapstructure:"listing_fee"`     // Decimal amount required to create a campaign
	PlatformWallet string `mapstructure:"platform_wallet"` // Applied once, on first start
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL             string        `mapstructure:"url"`
	StreamName      string        `mapstructure:"stream_name"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName  string        `mapstructure:"connection_name"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // in seconds
	IdleTimeout    int      `mapstructure:"idle_timeout"`  // in seconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	WorkerPoolSize int `mapstructure:"pool_size"`
}

// PayoutConfig holds configuration for delivering transfer requests
type PayoutConfig struct {
	Enabled              bool          `mapstructure:"enabled"` // Run the sweeper inside the API process
	SigningSecret        string        `mapstructure:"signing_secret"`
	BatchSize            int           `mapstructure:"batch_size"`
	Worker               WorkerConfig  `mapstructure:"worker"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	PublishRetries       int           `mapstructure:"publish_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
}

// APIConfig holds configuration for API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Storage    StorageConfig  `mapstructure:"storage"`
	Ledger     LedgerConfig   `mapstructure:"ledger"`
	Auth       AuthConfig     `mapstructure:"auth"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Payout     PayoutConfig   `mapstructure:"payout"`
}

// PayoutSweeperConfig holds configuration for the payout sweeper program
type PayoutSweeperConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Storage    StorageConfig  `mapstructure:"storage"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Payout     PayoutConfig   `mapstructure:"payout"`
}

// LoadAPIConfig loads configuration for API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	setStorageDefaults(v)
	setPayoutDefaults(v)
	v.SetDefault("ledger.listing_fee", domain.DEFAULT_LISTING_FEE)
	v.SetDefault("payout.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var error viper.ConfigFileNotFoundError
		if errors.As(err, &error) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg APIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := cfg.Storage.Validate(&cfg.Database); err != nil {
		return nil, err
	}
	if _, err := domain.ParseAmount(cfg.Ledger.ListingFee); err != nil {
		return nil, fmt.Errorf("ledger.listing_fee: %w", err)
	}
	if cfg.Ledger.PlatformWallet != "" {
		if _, err := domain.ParseAccountID(cfg.Ledger.PlatformWallet); err != nil {
			return nil, fmt.Errorf("ledger.platform_wallet: %w", err)
		}
	}
	if cfg.Payout.Enabled {
		if err := cfg.Payout.Validate(&cfg.NATS); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// LoadPayoutSweeperConfig loads configuration for the payout sweeper program
func LoadPayoutSweeperConfig(configFile string, envPath string) (*PayoutSweeperConfig, error) {
	v := configureViper("payout-sweeper", configFile, envPath)

	// Set defaults
	setStorageDefaults(v)
	setPayoutDefaults(v)
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")

	if err := v.ReadInConfig(); err != nil {
		var error viper.ConfigFileNotFoundError
		if errors.As(err, &error) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg PayoutSweeperConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := cfg.Storage.Validate(&cfg.Database); err != nil {
		return nil, err
	}
	if err := cfg.Payout.Validate(&cfg.NATS); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setStorageDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", store.DriverPostgres)
	v.SetDefault("storage.badger_path", "data/ledger")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
}

func setPayoutDefaults(v *viper.Viper) {
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "LEDGER_PAYOUTS")
	v.SetDefault("nats.connection_name", "ff-ledger")
	v.SetDefault("nats.duplicate_window", "24h")
	v.SetDefault("payout.batch_size", 100)
	v.SetDefault("payout.worker.pool_size", 8)
	v.SetDefault("payout.max_attempts", 10)
	v.SetDefault("payout.poll_interval", "10s")
	v.SetDefault("payout.publish_retries", 3)
	v.SetDefault("payout.retry_initial_interval", "500ms")
	v.SetDefault("payout.retry_max_interval", "10s")
}

// Validate checks the storage driver and the settings it depends on
func (c *StorageConfig) Validate(db *DatabaseConfig) error {
	switch c.Driver {
	case store.DriverPostgres:
		if db.Host == "" {
			return errors.New("database.host is required")
		}
		if db.DBName == "" {
			return errors.New("database.dbname is required")
		}
	case store.DriverBadger:
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Driver)
	}
	return nil
}

// Validate checks the settings the payout sweeper cannot run without
func (c *PayoutConfig) Validate(nats *NATSConfig) error {
	if nats.URL == "" {
		return errors.New("nats.url is required")
	}
	if c.SigningSecret == "" {
		return errors.New("payout.signing_secret is required")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("payout.max_attempts must be positive")
	}
	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/api/, cmd/payout-sweeper/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("FF_LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Storage
		"storage.driver",
		"storage.badger_path",
		// Ledger
		"ledger.listing_fee",
		"ledger.platform_wallet",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.duplicate_window",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		"server.allowed_origins",
		// Auth
		"auth.jwt_public_key",
		"auth.api_keys",
		// Payout
		"payout.enabled",
		"payout.signing_secret",
		"payout.batch_size",
		"payout.worker.pool_size",
		"payout.max_attempts",
		"payout.poll_interval",
		"payout.publish_retries",
		"payout.retry_initial_interval",
		"payout.retry_max_interval",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
