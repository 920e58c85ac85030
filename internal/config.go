package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"http_server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	Tenants        []TenantConfig       `mapstructure:"tenants"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// GatewayConfig configures the outbound side of the payment provider and the
// acknowledgement budget for inbound callbacks.
type GatewayConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
	CallbackBudget time.Duration `mapstructure:"callback_budget"`
}

// TenantConfig holds the gateway credentials for one tenant. The callback
// token is the opaque path segment the gateway is configured to POST to; it
// selects the secret before any byte of the payload is trusted.
type TenantConfig struct {
	Name          string `mapstructure:"name"`
	CallbackToken string `mapstructure:"callback_token"`
	AccountID     string `mapstructure:"account_id"`
	PageCode      string `mapstructure:"page_code"`
	Secret        string `mapstructure:"secret"`
}

type ReconciliationConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
	BatchSize          int           `mapstructure:"batch_size"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds a Config from environment variables for container
// deployments where no config file is mounted. A single tenant is read from
// the PAYMENT_TENANT_* variables.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", "http://localhost:8080"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("GATEWAY_BASE_URL", ""),
			RequestTimeout: getEnvAsDuration("GATEWAY_REQUEST_TIMEOUT", 10*time.Second),
			MaxRetries:     uint64(getEnvAsInt("GATEWAY_MAX_RETRIES", 3)),
			CallbackBudget: getEnvAsDuration("GATEWAY_CALLBACK_BUDGET", 300*time.Millisecond),
		},
		Tenants: []TenantConfig{
			{
				Name:          getEnv("PAYMENT_TENANT_NAME", "default"),
				CallbackToken: getEnv("PAYMENT_TENANT_CALLBACK_TOKEN", ""),
				AccountID:     getEnv("PAYMENT_TENANT_ACCOUNT_ID", ""),
				PageCode:      getEnv("PAYMENT_TENANT_PAGE_CODE", ""),
				Secret:        getEnv("PAYMENT_TENANT_SECRET", ""),
			},
		},
		Reconciliation: ReconciliationConfig{
			Interval:           getEnvAsDuration("RECONCILIATION_INTERVAL", time.Minute),
			StalenessThreshold: getEnvAsDuration("RECONCILIATION_STALENESS_THRESHOLD", 15*time.Minute),
			BatchSize:          getEnvAsInt("RECONCILIATION_BATCH_SIZE", 100),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.ValidateTenants(); err != nil {
		errs = append(errs, fmt.Sprintf("tenants config: %v", err))
	}

	if err := c.Reconciliation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconciliation config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if c.CallbackBudget <= 0 {
		return errors.New("callback_budget must be positive")
	}
	return nil
}

func (c *Config) ValidateTenants() error {
	if len(c.Tenants) == 0 {
		return errors.New("at least one tenant is required")
	}
	seenNames := make(map[string]bool)
	seenTokens := make(map[string]bool)
	for _, t := range c.Tenants {
		if t.Name == "" {
			return errors.New("tenant name is required")
		}
		if t.CallbackToken == "" {
			return fmt.Errorf("tenant %s: callback_token is required", t.Name)
		}
		if len(t.Secret) < 32 {
			return fmt.Errorf("tenant %s: secret must be at least 32 characters", t.Name)
		}
		if seenNames[t.Name] {
			return fmt.Errorf("duplicate tenant name %s", t.Name)
		}
		if seenTokens[t.CallbackToken] {
			return fmt.Errorf("duplicate callback token for tenant %s", t.Name)
		}
		seenNames[t.Name] = true
		seenTokens[t.CallbackToken] = true
	}
	return nil
}

func (c *ReconciliationConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.StalenessThreshold <= 0 {
		return errors.New("staleness_threshold must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	return nil
}
