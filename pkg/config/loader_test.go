package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/pkg/config"
)

type consumerConfig struct {
	Brokers []string      `env:"CFGTEST_BROKERS,required" envSeparator:","`
	Group   string        `env:"CFGTEST_GROUP" envDefault:"notifier"`
	Timeout time.Duration `env:"CFGTEST_TIMEOUT" envDefault:"10s"`
}

type requiredConfig struct {
	Token string `env:"CFGTEST_REQUIRED_TOKEN,required"`
}

func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
}

func TestLoad(t *testing.T) {
	config.ResetCache()
	t.Setenv("CFGTEST_BROKERS", "a:9092,b:9092")

	var cfg consumerConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers)
	assert.Equal(t, "notifier", cfg.Group)
	assert.Equal(t, 10*time.Second, cfg.Timeout)

	t.Run("cached per type", func(t *testing.T) {
		t.Setenv("CFGTEST_GROUP", "changed")

		var again consumerConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, "notifier", again.Group)

		var reloaded consumerConfig
		require.NoError(t, config.ForceReload(&reloaded))
		assert.Equal(t, "changed", reloaded.Group)
	})

	t.Run("nil pointer", func(t *testing.T) {
		assert.ErrorIs(t, config.Load[consumerConfig](nil), config.ErrNilPointer)
	})
}

func TestLoad_MissingRequired(t *testing.T) {
	config.ResetCache()

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.ErrorIs(t, err, config.ErrParsingConfig)
	assert.Panics(t, func() { config.MustLoad(&requiredConfig{}) })

	// Failures are not cached.
	t.Setenv("CFGTEST_REQUIRED_TOKEN", "secret")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "secret", cfg.Token)
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()
	unsetAfter(t, "CFGTEST_BROKERS", "CFGTEST_GROUP")
	t.Setenv("CFGTEST_TIMEOUT", "5s")

	require.NoError(t, config.LoadEnv("testdata/notifier.env", "testdata/override.env"))

	var cfg consumerConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, "notifier-override", cfg.Group)
	assert.Equal(t, 5*time.Second, cfg.Timeout, "process environment wins over files")
}

func TestLoadEnv_MissingFile(t *testing.T) {
	err := config.LoadEnv("testdata/missing.env")
	require.ErrorIs(t, err, config.ErrLoadingEnvFile)
	assert.Panics(t, func() { config.MustLoadEnv("testdata/missing.env") })
}
