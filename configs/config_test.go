package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()
	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, []string{"localhost:2379"}, cfg.EtcdEndpoints)
	assert.Nil(t, cfg.DynamicSourceOverride())
	assert.False(t, cfg.AllowAnonymous)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("ETCD_ENDPOINTS", "a:2379,b:2379")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("API_KEY_AUTH", "true")
	t.Setenv("BENCHRUN_DYNAMIC_SOURCE", "OFF")
	t.Setenv("ALLOW_ANONYMOUS", "true")

	cfg := LoadConfig()
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.True(t, cfg.APIKeyAuth)
	assert.True(t, cfg.AllowAnonymous)

	override := cfg.DynamicSourceOverride()
	require.NotNil(t, override)
	assert.False(t, *override)
}

func TestLoadConfig_BadNumbersFallBack(t *testing.T) {
	t.Setenv("NODE_TTL", "soon")
	assert.Equal(t, 10, LoadConfig().NodeTTL)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5432"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5432 sslmode=disable", cfg.PostgresDSN())
}
