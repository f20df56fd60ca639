package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig PostgreSQL connection settings. The pool serves both the
// postgres remote log and the audit repository.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// DSN returns the lib/pq key/value connection string. Values are quoted so
// passwords with spaces or quotes survive.
func (c *DatabaseConfig) DSN() string {
	return c.dsn(c.Password)
}

// Redacted is DSN with the password masked, for logs.
func (c *DatabaseConfig) Redacted() string {
	if c.Password == "" {
		return c.dsn("")
	}
	return c.dsn("xxxxx")
}

func (c *DatabaseConfig) dsn(password string) string {
	parts := []string{
		"host=" + quoteDSN(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"user=" + quoteDSN(c.User),
	}
	if password != "" {
		parts = append(parts, "password="+quoteDSN(password))
	}
	parts = append(parts, "dbname="+quoteDSN(c.Database))
	if c.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteDSN(c.SSLMode))
	}
	if c.ConnectTimeout > 0 {
		secs := int(c.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", secs))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// LoadFromEnv overrides fields from <prefix>_HOST, <prefix>_PORT, <prefix>_USER,
// <prefix>_PASSWORD, <prefix>_NAME, <prefix>_SSLMODE, <prefix>_MAX_CONNS,
// <prefix>_MAX_IDLE and <prefix>_CONNECT_TIMEOUT (seconds).
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	setString(prefix+"_HOST", &c.Host)
	setInt(prefix+"_PORT", &c.Port)
	setString(prefix+"_USER", &c.User)
	setString(prefix+"_PASSWORD", &c.Password)
	setString(prefix+"_NAME", &c.Database)
	setString(prefix+"_SSLMODE", &c.SSLMode)
	setInt(prefix+"_MAX_CONNS", &c.MaxConns)
	setInt(prefix+"_MAX_IDLE", &c.MaxIdle)
	var secs int
	if setInt(prefix+"_CONNECT_TIMEOUT", &secs) {
		c.ConnectTimeout = time.Duration(secs) * time.Second
	}
}

// LoadFromEnv overrides Redis fields from <prefix>_ADDR, <prefix>_PASSWORD, <prefix>_DB.
func (c *RedisConfig) LoadFromEnv(prefix string) {
	setString(prefix+"_ADDR", &c.Addr)
	setString(prefix+"_PASSWORD", &c.Password)
	setInt(prefix+"_DB", &c.DB)
}

// LoadFromEnv overrides MQTT fields from <prefix>_BROKER, <prefix>_CLIENT_ID,
// <prefix>_USERNAME, <prefix>_PASSWORD and <prefix>_QOS (0..2).
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	setString(prefix+"_BROKER", &c.Broker)
	setString(prefix+"_CLIENT_ID", &c.ClientID)
	setString(prefix+"_USERNAME", &c.Username)
	setString(prefix+"_PASSWORD", &c.Password)
	var qos int
	if setInt(prefix+"_QOS", &qos) && qos <= 2 {
		c.QoS = byte(qos)
	}
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt leaves dst alone unless key holds a non-negative integer.
func setInt(key string, dst *int) bool {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return false
	}
	*dst = v
	return true
}
