// Package config loads the simulator's layered configuration: defaults,
// then application.yaml, then application-<profile>.yaml, then environment
// variables, in that order of increasing priority.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	PodID        string             `mapstructure:"pod_id"`
	Supervisor   SupervisorConfig   `mapstructure:"supervisor"`
	WebSocket    WebSocketConfig    `mapstructure:"websocket"`
	Reconnect    ReconnectConfig    `mapstructure:"reconnect"`
	Registration RegistrationConfig `mapstructure:"registration"`
	ATG          ATGConfig          `mapstructure:"atg"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Log          LogConfig          `mapstructure:"log"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	Security     SecurityConfig     `mapstructure:"security"`
}

// AppConfig carries basic application identity.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Profile string `mapstructure:"profile"`
}

// SupervisorConfig controls how the station fleet is loaded and driven.
type SupervisorConfig struct {
	TemplateDir        string        `mapstructure:"template_dir"`
	ConfigurationDir    string        `mapstructure:"configuration_dir"`
	WorkerConcurrency   int           `mapstructure:"worker_concurrency"`
	TemplateWatchEnable bool          `mapstructure:"template_watch_enabled"`
	TemplatePollInterval time.Duration `mapstructure:"template_poll_interval"`
	StatisticsInterval  time.Duration `mapstructure:"statistics_interval"`
}

// WebSocketConfig controls the client transport's dial behavior.
type WebSocketConfig struct {
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	DefaultPingInterval time.Duration `mapstructure:"default_ping_interval"`
	PerSendTimeout    time.Duration `mapstructure:"per_send_timeout"`
}

// ReconnectConfig controls the transport's reconnect policy.
type ReconnectConfig struct {
	MaxRetries        int  `mapstructure:"max_retries"`
	ExponentialDelay  bool `mapstructure:"exponential_delay"`
}

// RegistrationConfig controls the BootNotification registration loop.
type RegistrationConfig struct {
	MaxRetries          int           `mapstructure:"max_retries"`
	DefaultBootInterval time.Duration `mapstructure:"default_boot_interval"`
}

// ATGConfig carries fleet-wide Automatic Transaction Generator defaults,
// overridable per station template.
type ATGConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MinDelay      time.Duration `mapstructure:"min_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	MinDuration   time.Duration `mapstructure:"min_duration"`
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	StartProbability float64    `mapstructure:"start_probability"`
	StopAfter     time.Duration `mapstructure:"stop_after"`
}

// RedisConfig configures the station-ownership registry's backing store.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl"`
}

// KafkaConfig configures the event/command bridge to external systems.
type KafkaConfig struct {
	Brokers         []string       `mapstructure:"brokers"`
	EventsTopic     string         `mapstructure:"events_topic"`
	CommandsTopic   string         `mapstructure:"commands_topic"`
	ConsumerGroup   string         `mapstructure:"consumer_group"`
	Producer        ProducerConfig `mapstructure:"producer"`
	Consumer        ConsumerConfig `mapstructure:"consumer"`
}

// ProducerConfig configures the sarama async producer.
type ProducerConfig struct {
	RetryMax       int           `mapstructure:"retry_max"`
	ReturnSuccesses bool         `mapstructure:"return_successes"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
}

// ConsumerConfig configures the sarama consumer group.
type ConsumerConfig struct {
	ReturnErrors   bool   `mapstructure:"return_errors"`
	OffsetsInitial string `mapstructure:"offsets_initial"`
}

// CacheConfig configures the local id-tag authorization cache.
type CacheConfig struct {
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	ShardCount      int           `mapstructure:"shard_count"`
}

// LogConfig configures internal/logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MonitoringConfig configures the Prometheus exposition endpoint.
type MonitoringConfig struct {
	MetricsAddr     string `mapstructure:"metrics_addr"`
	HealthCheckPort int    `mapstructure:"health_check_port"`
	PprofEnabled    bool   `mapstructure:"pprof_enabled"`
}

// SecurityConfig configures TLS dial options for wss:// endpoints.
type SecurityConfig struct {
	TLSEnabled         bool   `mapstructure:"tls_enabled"`
	CACertFile         string `mapstructure:"ca_cert_file"`
	ClientCertFile     string `mapstructure:"client_cert_file"`
	ClientKeyFile      string `mapstructure:"client_key_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// Load reads defaults, application.yaml, application-<profile>.yaml, and
// environment variables, in that order, and unmarshals the result.
func Load() (*Config, error) {
	setDefaults()

	profile := resolveProfile()
	fmt.Printf("loading configuration for profile: %s\n", profile)

	if err := loadConfigFile("application"); err != nil {
		fmt.Printf("warning: could not load default config file: %v\n", err)
	}
	if profile != "" {
		name := fmt.Sprintf("application-%s", profile)
		if err := loadConfigFile(name); err != nil {
			fmt.Printf("warning: could not load profile config file %s: %v\n", name, err)
		}
	}

	setupEnvironmentVariables()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.App.Profile = profile

	return &cfg, nil
}

func resolveProfile() string {
	if profile := os.Getenv("APP_PROFILE"); profile != "" {
		return profile
	}
	if profile := viper.GetString("app.profile"); profile != "" {
		return profile
	}
	return "local"
}

func loadConfigFile(name string) error {
	viper.SetConfigName(name)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	return viper.MergeInConfig()
}

func setupEnvironmentVariables() {
	viper.SetEnvPrefix("ocpp_sim")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("redis.addr", "OCPP_SIM_REDIS_ADDR")
	viper.BindEnv("log.level", "OCPP_SIM_LOG_LEVEL")
	viper.BindEnv("monitoring.health_check_port", "OCPP_SIM_MONITORING_HEALTH_CHECK_PORT")
	viper.BindEnv("app.profile", "APP_PROFILE")
	viper.BindEnv("supervisor.template_dir", "OCPP_SIM_SUPERVISOR_TEMPLATE_DIR")
	viper.BindEnv("pod_id", "OCPP_SIM_POD_ID")

	if brokers := os.Getenv("OCPP_SIM_KAFKA_BROKERS"); brokers != "" {
		list := strings.Split(brokers, ",")
		for i, b := range list {
			list[i] = strings.TrimSpace(b)
		}
		viper.Set("kafka.brokers", list)
	}
}

func setDefaults() {
	viper.SetDefault("app.name", "station-simulator")
	viper.SetDefault("app.version", "dev")
	viper.SetDefault("app.profile", "local")
	viper.SetDefault("pod_id", "simulator-1")

	viper.SetDefault("supervisor.template_dir", "assets/templates")
	viper.SetDefault("supervisor.configuration_dir", "assets/configurations")
	viper.SetDefault("supervisor.worker_concurrency", 50)
	viper.SetDefault("supervisor.template_watch_enabled", true)
	viper.SetDefault("supervisor.template_poll_interval", 5*time.Second)
	viper.SetDefault("supervisor.statistics_interval", 60*time.Second)

	viper.SetDefault("websocket.read_buffer_size", 4096)
	viper.SetDefault("websocket.write_buffer_size", 4096)
	viper.SetDefault("websocket.handshake_timeout", 30*time.Second)
	viper.SetDefault("websocket.default_ping_interval", 30*time.Second)
	viper.SetDefault("websocket.per_send_timeout", 60*time.Second)

	viper.SetDefault("reconnect.max_retries", -1)
	viper.SetDefault("reconnect.exponential_delay", false)

	viper.SetDefault("registration.max_retries", -1)
	viper.SetDefault("registration.default_boot_interval", 60*time.Second)

	viper.SetDefault("atg.enabled", false)
	viper.SetDefault("atg.min_delay", 1*time.Second)
	viper.SetDefault("atg.max_delay", 30*time.Second)
	viper.SetDefault("atg.min_duration", 60*time.Second)
	viper.SetDefault("atg.max_duration", 600*time.Second)
	viper.SetDefault("atg.start_probability", 1.0)
	viper.SetDefault("atg.stop_after", 0)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("redis.dial_timeout", 5*time.Second)
	viper.SetDefault("redis.read_timeout", 3*time.Second)
	viper.SetDefault("redis.write_timeout", 3*time.Second)
	viper.SetDefault("redis.lease_ttl", 30*time.Second)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.events_topic", "station.events")
	viper.SetDefault("kafka.commands_topic", "station.commands")
	viper.SetDefault("kafka.consumer_group", "station-simulator")
	viper.SetDefault("kafka.producer.retry_max", 3)
	viper.SetDefault("kafka.producer.return_successes", true)
	viper.SetDefault("kafka.producer.flush_frequency", 500*time.Millisecond)
	viper.SetDefault("kafka.consumer.return_errors", true)
	viper.SetDefault("kafka.consumer.offsets_initial", "newest")

	viper.SetDefault("cache.max_size", 10000)
	viper.SetDefault("cache.ttl", 1*time.Hour)
	viper.SetDefault("cache.cleanup_interval", 5*time.Minute)
	viper.SetDefault("cache.shard_count", 16)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.async", false)

	viper.SetDefault("monitoring.metrics_addr", ":9464")
	viper.SetDefault("monitoring.health_check_port", 8081)
	viper.SetDefault("monitoring.pprof_enabled", false)

	viper.SetDefault("security.tls_enabled", false)
	viper.SetDefault("security.insecure_skip_verify", false)
}
