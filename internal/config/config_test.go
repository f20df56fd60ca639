package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 60*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, BackendMemory, cfg.RemoteLog.Backend)
	assert.Equal(t, "pengajuan", cfg.RemoteLog.Collection)
	assert.False(t, cfg.RemoteLog.AutoSeed)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "bnn/sebaran/markers", cfg.MQTT.MarkerTopic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 200*time.Millisecond, cfg.Map.FocusDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Map.SettleDelay)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("AUTO_SEED", "true")
	t.Setenv("AUDIT_ENABLED", "true")
	t.Setenv("AUDIT_CONSUMER", "worker-1")
	t.Setenv("MQTT_BROKER", "tcp://mqtt:1883")
	t.Setenv("MAP_FOCUS_DELAY_MS", "50")
	t.Setenv("MAP_SETTLE_DELAY_MS", "oops")
	t.Setenv("HTTP_WRITE_TIMEOUT", "120")
	t.Setenv("HTTP_READ_TIMEOUT", "-4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 120*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, BackendRedis, cfg.RemoteLog.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.RemoteLog.AutoSeed)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "worker-1", cfg.Audit.Consumer)
	assert.Equal(t, "tcp://mqtt:1883", cfg.MQTT.Broker)
	assert.Equal(t, 50*time.Millisecond, cfg.Map.FocusDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Map.SettleDelay)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"LOG_BACKEND": "firebase"}},
		{name: "audit on memory", env: map[string]string{"AUDIT_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
