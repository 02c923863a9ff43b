package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		cleanup  func()
		validate func(*testing.T, *Config)
	}{
		{
			name: "load default config",
			setup: func() {
				viper.Reset()
			},
			cleanup: func() { viper.Reset() },
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "assets/templates", cfg.Supervisor.TemplateDir)
				assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
				assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
				assert.Equal(t, -1, cfg.Reconnect.MaxRetries)
				assert.Equal(t, 60*time.Second, cfg.Registration.DefaultBootInterval)
			},
		},
		{
			name: "load config with environment variables",
			setup: func() {
				viper.Reset()
				os.Setenv("OCPP_SIM_REDIS_ADDR", "redis:6379")
				os.Setenv("OCPP_SIM_LOG_LEVEL", "debug")
			},
			cleanup: func() {
				os.Unsetenv("OCPP_SIM_REDIS_ADDR")
				os.Unsetenv("OCPP_SIM_LOG_LEVEL")
				viper.Reset()
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "redis:6379", cfg.Redis.Addr)
				assert.Equal(t, "debug", cfg.Log.Level)
			},
		},
		{
			name: "load config with custom values",
			setup: func() {
				viper.Reset()
			},
			cleanup: func() { viper.Reset() },
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "local", cfg.App.Profile)
				assert.NotEmpty(t, cfg.PodID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.cleanup()

			cfg, err := Load()
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadKafkaBrokersFromCommaSeparatedEnv(t *testing.T) {
	viper.Reset()
	os.Setenv("OCPP_SIM_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	defer func() {
		os.Unsetenv("OCPP_SIM_KAFKA_BROKERS")
		viper.Reset()
	}()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
}

func TestConfigDefaultsAreConsistent(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Greater(t, cfg.Supervisor.WorkerConcurrency, 0)
	assert.GreaterOrEqual(t, cfg.Redis.DB, 0)
	assert.Greater(t, cfg.Redis.PoolSize, 0)
	assert.NotEmpty(t, cfg.Kafka.Brokers)
	assert.NotEmpty(t, cfg.Kafka.EventsTopic)
	assert.NotEmpty(t, cfg.Kafka.CommandsTopic)
	assert.NotEmpty(t, cfg.Kafka.ConsumerGroup)
	assert.Greater(t, cfg.Cache.MaxSize, 0)
}
