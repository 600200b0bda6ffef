package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config for the whole application
type Config struct {
	App     AppConfig
	API     APIConfig
	Kafka   KafkaConfig
	Risk    RiskConfig
	Limits  LimitsConfig
	Cache   CacheConfig
	Metrics MetricsConfig
}

// General application configuration
type AppConfig struct {
	Name        string
	Environment string
	LogLevel    string
}

// Configuration for the API server
type APIConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Configuration for Kafka notification publishing
type KafkaConfig struct {
	Brokers      []string
	TopicPrefix  string
	WriteTimeout time.Duration
}

// Configuration for risk calculations
type RiskConfig struct {
	ConfidenceLevel  float64
	HoldingPeriod    int
	LookbackWindow   int
	SimulationRuns   int
	EwmaLambda       float64
	WorkerCount      int
	DefaultSeed      int64
	BenchmarkSymbol  string
	RiskFreeRate     float64
}

// Configuration for limit monitoring
type LimitsConfig struct {
	CheckInterval time.Duration
}

// Configuration for the calculation result cache
type CacheConfig struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
}

// Configuration for metrics
type MetricsConfig struct {
	Prometheus PrometheusConfig
}

// Configuration for Prometheus metrics
type PrometheusConfig struct {
	Enabled bool
	Port    int
}

// Loads the configuration from a file and environment variables
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.SetEnvPrefix("RISKD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "risk-engine")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.log_level", "info")

	// API defaults
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.read_timeout", "10s")
	viper.SetDefault("api.write_timeout", "30s")
	viper.SetDefault("api.shutdown_timeout", "30s")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic_prefix", "risk.notifications")
	viper.SetDefault("kafka.write_timeout", "5s")

	// Risk defaults
	viper.SetDefault("risk.confidence_level", 0.99)
	viper.SetDefault("risk.holding_period", 1)
	viper.SetDefault("risk.lookback_window", 252)
	viper.SetDefault("risk.simulation_runs", 10000)
	viper.SetDefault("risk.ewma_lambda", 0.94)
	viper.SetDefault("risk.worker_count", 4)
	viper.SetDefault("risk.default_seed", 42)
	viper.SetDefault("risk.benchmark_symbol", "SPY")
	viper.SetDefault("risk.risk_free_rate", 0.02)

	// Limits defaults
	viper.SetDefault("limits.check_interval", "1m")

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_addr", "localhost:6379")
	viper.SetDefault("cache.ttl", "5m")

	// Metrics defaults
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9090)
}

func GetConfigPath() string {
	configPath := os.Getenv("RISKD_CONFIG_PATH")
	if configPath != "" {
		return configPath
	}

	return "./config/config.yaml"
}
