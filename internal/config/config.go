package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "bnn-rehab/common/config"
)

// Remote log backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config bnn-rehab service configuration.
type Config struct {
	HTTP struct {
		Addr            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
	RemoteLog struct {
		Backend    string
		Collection string
		KeyPrefix  string
		AutoSeed   bool
	}
	Database commoncfg.DatabaseConfig
	Redis    commoncfg.RedisConfig
	MQTT     struct {
		Enabled     bool
		MarkerTopic string
		commoncfg.MQTTConfig
	}
	Audit struct {
		Enabled  bool
		Stream   string
		Group    string
		Consumer string
		MaxLen   int64
	}
	News struct {
		URL string
	}
	Map struct {
		FocusDelay  time.Duration
		SettleDelay time.Duration
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.ReadTimeout = seconds("HTTP_READ_TIMEOUT", 15)
	cfg.HTTP.WriteTimeout = seconds("HTTP_WRITE_TIMEOUT", 60)
	cfg.HTTP.ShutdownTimeout = seconds("HTTP_SHUTDOWN_TIMEOUT", 5)
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.RemoteLog.Backend = getEnv("LOG_BACKEND", BackendMemory)
	cfg.RemoteLog.Collection = getEnv("LOG_COLLECTION", "pengajuan")
	cfg.RemoteLog.KeyPrefix = getEnv("REDIS_KEY_PREFIX", "rtdb:")
	cfg.RemoteLog.AutoSeed = getEnv("AUTO_SEED", "false") == "true"

	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "bnn_rehab",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,

		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.MarkerTopic = getEnv("MQTT_MARKER_TOPIC", "bnn/sebaran/markers")
	cfg.MQTT.MQTTConfig = commoncfg.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "bnn-rehab",
		QoS:      1,
	}
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")

	cfg.Audit.Enabled = getEnv("AUDIT_ENABLED", "false") == "true"
	cfg.Audit.Stream = getEnv("AUDIT_STREAM", "pengajuan:audit")
	cfg.Audit.Group = getEnv("AUDIT_GROUP", "audit-writers")
	cfg.Audit.Consumer = getEnv("AUDIT_CONSUMER", hostnameOr("bnn-rehab"))
	cfg.Audit.MaxLen = int64(parseInt(getEnv("AUDIT_MAX_LEN", "100000"), 100000))

	cfg.News.URL = getEnv("NEWS_URL", "")

	cfg.Map.FocusDelay = time.Duration(parseInt(getEnv("MAP_FOCUS_DELAY_MS", "200"), 200)) * time.Millisecond
	cfg.Map.SettleDelay = time.Duration(parseInt(getEnv("MAP_SETTLE_DELAY_MS", "100"), 100)) * time.Millisecond

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.RemoteLog.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown LOG_BACKEND %q (want memory, redis or postgres)", c.RemoteLog.Backend)
	}
	if c.RemoteLog.Collection == "" {
		return fmt.Errorf("LOG_COLLECTION must not be empty")
	}
	if c.Audit.Enabled && c.RemoteLog.Backend == BackendMemory {
		return fmt.Errorf("AUDIT_ENABLED requires a redis or postgres backend")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return def
	}
	return i
}

func seconds(key string, def int) time.Duration {
	return time.Duration(parseInt(getEnv(key, strconv.Itoa(def)), def)) * time.Second
}

func hostnameOr(def string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return def
}
