package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "bnn")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("DB_CONNECT_TIMEOUT", "3")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432, MaxConns: 4, SSLMode: "disable"}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "bnn", cfg.Database)
	assert.Equal(t, 4, cfg.MaxConns)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Contains(t, cfg.DSN(), "host=db.internal port=6543")
	assert.Contains(t, cfg.DSN(), "sslmode=disable connect_timeout=3")
}

func TestDatabaseConfig_DSNQuotesValues(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "bnn", Password: `it's a secret\`, Database: "bnn_rehab"}

	assert.Equal(t, `host=localhost port=5432 user=bnn password='it\'s a secret\\' dbname=bnn_rehab`, cfg.DSN())
	assert.Equal(t, `host=localhost port=5432 user=bnn password=xxxxx dbname=bnn_rehab`, cfg.Redacted())
	assert.NotContains(t, cfg.Redacted(), "secret")
}

func TestDatabaseConfig_DSNEmptyPassword(t *testing.T) {
	cfg := DatabaseConfig{Host: "", Port: 5432, User: "postgres", Database: "x"}

	assert.Equal(t, `host='' port=5432 user=postgres dbname=x`, cfg.DSN())
	assert.Equal(t, cfg.DSN(), cfg.Redacted())
}

func TestMQTTConfig_LoadFromEnv_QoSBounds(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "7")

	cfg := MQTTConfig{QoS: 1}
	cfg.LoadFromEnv("MQTT")

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(1), cfg.QoS)

	t.Setenv("MQTT_QOS", "-1")
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, byte(1), cfg.QoS)

	t.Setenv("MQTT_QOS", "2")
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, byte(2), cfg.QoS)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")

	cfg := RedisConfig{Addr: "localhost:6379"}
	cfg.LoadFromEnv("REDIS")

	assert.Equal(t, "redis:6380", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
}
