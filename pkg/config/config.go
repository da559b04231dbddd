package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Search       SearchConfig       `mapstructure:"search"`
	Storage      StorageConfig      `mapstructure:"storage"`
	State        StateConfig        `mapstructure:"state"`
	Lock         LockConfig         `mapstructure:"lock"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Credentials  CredentialsConfig  `mapstructure:"credentials"`
	Batch        BatchConfig        `mapstructure:"batch"`
	Events       EventsConfig       `mapstructure:"events"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
}

type SearchConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	Endpoint            string        `mapstructure:"endpoint"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	Burst               int           `mapstructure:"burst"`
	BreakerEnabled      bool          `mapstructure:"breaker_enabled"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
}

type StorageConfig struct {
	Backend         string `mapstructure:"backend"` // s3 or filesystem
	Container       string `mapstructure:"container"`
	Prefix          string `mapstructure:"prefix"`
	Path            string `mapstructure:"path"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type StateConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite or postgres
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type LockConfig struct {
	Backend       string        `mapstructure:"backend"` // file, redis, etcd or none
	Path          string        `mapstructure:"path"`
	TTL           time.Duration `mapstructure:"ttl"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"`
}

type ProvisioningConfig struct {
	Command            string            `mapstructure:"command"`
	Args               []string          `mapstructure:"args"`
	DeprovisionCommand string            `mapstructure:"deprovision_command"`
	DeprovisionArgs    []string          `mapstructure:"deprovision_args"`
	Timeout            time.Duration     `mapstructure:"timeout"`
	SKU                string            `mapstructure:"sku"`
	ReplicaCount       int               `mapstructure:"replica_count"`
	PartitionCount     int               `mapstructure:"partition_count"`
	Region             string            `mapstructure:"region"`
	Parameters         map[string]string `mapstructure:"parameters"`
}

type CredentialsConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BatchConfig struct {
	Workers     int           `mapstructure:"workers"`
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
}

type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	JaegerURL    string  `mapstructure:"jaeger_url"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

type ScheduleConfig struct {
	Backup     string `mapstructure:"backup"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads configuration from the given file (or the default search paths when
// file is empty), INDEXVAULT_* environment variables and a .env file in the
// working directory.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("indexvault")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.indexvault")
		v.AddConfigPath("/etc/indexvault")
	}

	setDefaults(v)

	v.SetEnvPrefix("INDEXVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when no explicit path was given.
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&config)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Search API defaults
	v.SetDefault("search.service_name", "")
	v.SetDefault("search.endpoint", "")
	v.SetDefault("search.request_timeout", 30*time.Second)
	v.SetDefault("search.max_attempts", 5)
	v.SetDefault("search.initial_backoff", 500*time.Millisecond)
	v.SetDefault("search.max_backoff", 30*time.Second)
	v.SetDefault("search.requests_per_second", 10.0)
	v.SetDefault("search.burst", 5)
	v.SetDefault("search.breaker_enabled", true)
	v.SetDefault("search.breaker_failure_ratio", 0.8)
	v.SetDefault("search.breaker_min_requests", 10)
	v.SetDefault("search.breaker_timeout", 30*time.Second)

	// Storage defaults
	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.container", "index-definitions")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.path", "./snapshots")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.force_path_style", false)
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")

	// Lifecycle state defaults
	v.SetDefault("state.driver", "sqlite")
	v.SetDefault("state.dsn", "indexvault.db")
	v.SetDefault("state.max_open_conns", 1)
	v.SetDefault("state.max_idle_conns", 1)

	// Lock defaults
	v.SetDefault("lock.backend", "file")
	v.SetDefault("lock.path", os.TempDir())
	v.SetDefault("lock.ttl", 30*time.Minute)
	v.SetDefault("lock.wait_timeout", 0)
	v.SetDefault("lock.retry_interval", 500*time.Millisecond)
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.etcd_endpoints", []string{"localhost:2379"})

	// Provisioning defaults
	v.SetDefault("provisioning.command", "")
	v.SetDefault("provisioning.deprovision_command", "")
	v.SetDefault("provisioning.timeout", 45*time.Minute)
	v.SetDefault("provisioning.region", "")
	v.SetDefault("provisioning.sku", "basic")
	v.SetDefault("provisioning.replica_count", 1)
	v.SetDefault("provisioning.partition_count", 1)

	// Credential defaults
	v.SetDefault("credentials.api_key", "")
	v.SetDefault("credentials.command", "")
	v.SetDefault("credentials.timeout", time.Minute)

	// Batch defaults
	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.item_timeout", 2*time.Minute)

	// Event defaults
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "indexvault.lifecycle")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.jaeger_url", "http://localhost:14268/api/traces")
	v.SetDefault("telemetry.service_name", "indexvault")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	// Metrics defaults
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "indexvault")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.add_caller", false)
	v.SetDefault("logger.stacktrace", false)

	// Scheduler defaults
	v.SetDefault("schedule.backup", "0 2 * * *")
	v.SetDefault("schedule.listen_addr", ":9464")
}

// overrideFromEnv honours the variable names the search tooling already uses.
func overrideFromEnv(cfg *Config) {
	if endpoint := os.Getenv("AZURE_SEARCH_ENDPOINT"); endpoint != "" && cfg.Search.Endpoint == "" {
		cfg.Search.Endpoint = endpoint
	}
	if key := os.Getenv("AZURE_SEARCH_API_KEY"); key != "" && cfg.Credentials.APIKey == "" {
		cfg.Credentials.APIKey = key
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Events.Brokers = strings.Split(brokers, ",")
	}
}

// Validate checks the values every command depends on.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Container == "" {
			return errors.New("storage.container is required for the s3 backend")
		}
	case "filesystem":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the filesystem backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.State.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown state driver %q", c.State.Driver)
	}

	switch c.Lock.Backend {
	case "file", "redis", "etcd", "none":
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}

	if c.Search.ServiceName == "" {
		return errors.New("search.service_name is required")
	}
	if c.Search.MaxAttempts < 1 {
		return errors.New("search.max_attempts must be at least 1")
	}
	if c.Batch.Workers < 1 {
		return errors.New("batch.workers must be at least 1")
	}

	return nil
}
