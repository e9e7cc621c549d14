package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the treasury server configuration
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Chains         []ChainConfig        `mapstructure:"chains"`
	Contracts      ContractsConfig      `mapstructure:"contracts"`
	Signer         SignerConfig         `mapstructure:"signer"`
	Executor       ExecutorConfig       `mapstructure:"executor"`
	Allocation     AllocationConfig     `mapstructure:"allocation"`
	Bridge         BridgeConfig         `mapstructure:"bridge"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ChainConfig describes one supported chain. The engine is multi-chain;
// every chain the registry should serve gets an entry here.
type ChainConfig struct {
	ChainID            int64         `mapstructure:"chain_id"`
	Name               string        `mapstructure:"name"`
	RPCURL             string        `mapstructure:"rpc_url"`
	USDCAddress        string        `mapstructure:"usdc_address"`
	USDCDecimals       int           `mapstructure:"usdc_decimals"`
	ConfirmationBlocks uint64        `mapstructure:"confirmation_blocks"`
	SpokePool          string        `mapstructure:"spoke_pool"`
	MulticallHandler   string        `mapstructure:"multicall_handler"`
	ExpectedFillTime   time.Duration `mapstructure:"expected_fill_time"`
	MaxFillWait        time.Duration `mapstructure:"max_fill_wait"`
}

// ContractsConfig holds the canonical Safe contract addresses. They are
// deployed at the same address on every supported chain.
type ContractsConfig struct {
	MultiSend       string `mapstructure:"multi_send"`
	ProxyFactory    string `mapstructure:"proxy_factory"`
	SafeSingleton   string `mapstructure:"safe_singleton"`
	FallbackHandler string `mapstructure:"fallback_handler"`
}

// SignerConfig identifies the operator key that authorizes Safe transactions.
// The key is supplied externally; set SIGNER_PRIVATE_KEY in the environment
// rather than writing it into the config file.
type SignerConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// ExecutorConfig contains Safe transaction submission settings
type ExecutorConfig struct {
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	GasLimit            uint64        `mapstructure:"gas_limit"`
	MaxGasPrice         string        `mapstructure:"max_gas_price"`
}

// AllocationConfig contains batch builder settings
type AllocationConfig struct {
	// DustThreshold is the minimum transfer size in smallest units; drift
	// below it is not worth the gas of a rebalance.
	DustThreshold int64 `mapstructure:"dust_threshold"`
}

// BridgeConfig contains cross-chain bridge coordinator settings
type BridgeConfig struct {
	QuoteURL     string        `mapstructure:"quote_url"`
	DedupWindow  time.Duration `mapstructure:"dedup_window"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ReconciliationConfig contains settings for the periodic reconciliation loop
type ReconciliationConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.BindEnv("signer.private_key", "SIGNER_PRIVATE_KEY")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "treasury")

	// Safe v1.3.0 canonical deployments, identical on all supported chains
	viper.SetDefault("contracts.multi_send", "0xA238CBeb142c10Ef7Ad8442C6D1f9E89e07e7761")
	viper.SetDefault("contracts.proxy_factory", "0xa6B71E26C5e0845f74c812102Ca7114b6a896AB2")
	viper.SetDefault("contracts.safe_singleton", "0x3E5c63644E683549055b9Be8653de26E0B4CD36E")
	viper.SetDefault("contracts.fallback_handler", "0xf48f2B2d2a534e402487b3ee7C18c33Aec0Fe5e4")

	// Executor defaults: 3 attempts, exponential backoff starting at 1s
	viper.SetDefault("executor.max_retries", 3)
	viper.SetDefault("executor.retry_base_delay", "1s")
	viper.SetDefault("executor.confirmation_timeout", "2m")
	viper.SetDefault("executor.gas_limit", 500000)

	// Allocation defaults: 1 USDC in smallest units
	viper.SetDefault("allocation.dust_threshold", 1000000)

	// Bridge defaults
	viper.SetDefault("bridge.quote_url", "https://app.across.to/api/suggested-fees")
	viper.SetDefault("bridge.dedup_window", "10m")
	viper.SetDefault("bridge.poll_interval", "30s")

	// Reconciliation defaults
	viper.SetDefault("reconciliation.interval", "5m")
	viper.SetDefault("reconciliation.run_timeout", "2m")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if len(config.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	if config.Signer.PrivateKey == "" {
		return fmt.Errorf("signer.private_key is required (set SIGNER_PRIVATE_KEY)")
	}
	for i, chain := range config.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("chains[%d].chain_id is required", i)
		}
		if chain.RPCURL == "" {
			return fmt.Errorf("chains[%d].rpc_url is required", i)
		}
		if chain.USDCAddress == "" {
			return fmt.Errorf("chains[%d].usdc_address is required", i)
		}
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
