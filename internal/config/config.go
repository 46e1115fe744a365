package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Realtime RealtimeConfig
	Session  SessionConfig
}

var (
	configInstance *Config
	once           sync.Once
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URI builds the postgres DSN gorm expects.
func (d DatabaseConfig) URI() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type JWTConfig struct {
	Secret         string
	ExpirationTime time.Duration
}

// RealtimeConfig tunes the server side of the engine.
type RealtimeConfig struct {
	AuthDeadline time.Duration
}

// SessionConfig tunes the bundled client. Reference values, not
// contracts; exact numbers are not load-bearing for correctness.
type SessionConfig struct {
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	MaxAttempts       int
	KeepAliveInterval time.Duration
	HandshakeTimeout  time.Duration
}

func LoadConfig() (*Config, error) {
	once.Do(func() {
		viper.SetDefault("TASKQUEST_HOST", "")
		viper.SetDefault("TASKQUEST_PORT", "8080")
		viper.SetDefault("TASKQUEST_READ_TIMEOUT", 30*time.Second)
		viper.SetDefault("TASKQUEST_WRITE_TIMEOUT", 30*time.Second)
		viper.SetDefault("TASKQUEST_IDLE_TIMEOUT", 60*time.Second)
		viper.SetDefault("TASKQUEST_JWT_SECRET", "secret")
		viper.SetDefault("TASKQUEST_JWT_EXPIRE", "24h")
		viper.SetDefault("TASKQUEST_AUTH_DEADLINE", 10*time.Second)
		viper.SetDefault("SESSION_BACKOFF_BASE", 3*time.Second)
		viper.SetDefault("SESSION_BACKOFF_CAP", time.Duration(0))
		viper.SetDefault("SESSION_MAX_ATTEMPTS", 10)
		viper.SetDefault("SESSION_KEEPALIVE_INTERVAL", 25*time.Second)
		viper.SetDefault("SESSION_HANDSHAKE_TIMEOUT", 10*time.Second)
		viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("REDIS_MAX_RETRIES", 3)
		viper.SetDefault("REDIS_POOL_SIZE", 100)
		viper.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
		viper.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
		viper.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
		viper.SetDefault("KAFKA_BROKERS", []string{"127.0.0.1:9092"})
		viper.SetDefault("KAFKA_TOPIC", "taskquest.events")
		viper.SetDefault("KAFKA_ENABLED", false)
		viper.SetDefault("POSTGRES_USER", "postgres")
		viper.SetDefault("POSTGRES_PASSWORD", "password")
		viper.SetDefault("POSTGRES_HOST", "localhost")
		viper.SetDefault("POSTGRES_PORT", "5432")
		viper.SetDefault("POSTGRES_DB", "taskquest")
		viper.SetDefault("POSTGRES_SSLMODE", "disable")
		viper.AutomaticEnv()

		configInstance = &Config{
			Server: ServerConfig{
				Host:         viper.GetString("TASKQUEST_HOST"),
				Port:         viper.GetString("TASKQUEST_PORT"),
				ReadTimeout:  viper.GetDuration("TASKQUEST_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("TASKQUEST_WRITE_TIMEOUT"),
				IdleTimeout:  viper.GetDuration("TASKQUEST_IDLE_TIMEOUT"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("POSTGRES_HOST"),
				Port:     viper.GetString("POSTGRES_PORT"),
				User:     viper.GetString("POSTGRES_USER"),
				Password: viper.GetString("POSTGRES_PASSWORD"),
				DBName:   viper.GetString("POSTGRES_DB"),
				SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
			},
			Redis: RedisConfig{
				Addr:         viper.GetString("REDIS_ADDR"),
				Password:     viper.GetString("REDIS_PASSWORD"),
				DB:           viper.GetInt("REDIS_DB"),
				MaxRetries:   viper.GetInt("REDIS_MAX_RETRIES"),
				DialTimeout:  viper.GetDuration("REDIS_DIAL_TIMEOUT"),
				ReadTimeout:  viper.GetDuration("REDIS_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("REDIS_WRITE_TIMEOUT"),
				PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
				MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
			},
			Kafka: KafkaConfig{
				Brokers: viper.GetStringSlice("KAFKA_BROKERS"),
				Topic:   viper.GetString("KAFKA_TOPIC"),
				Enabled: viper.GetBool("KAFKA_ENABLED"),
			},
			JWT: JWTConfig{
				Secret:         viper.GetString("TASKQUEST_JWT_SECRET"),
				ExpirationTime: viper.GetDuration("TASKQUEST_JWT_EXPIRE"),
			},
			Realtime: RealtimeConfig{
				AuthDeadline: viper.GetDuration("TASKQUEST_AUTH_DEADLINE"),
			},
			Session: SessionConfig{
				BackoffBase:       viper.GetDuration("SESSION_BACKOFF_BASE"),
				BackoffCap:        viper.GetDuration("SESSION_BACKOFF_CAP"),
				MaxAttempts:       viper.GetInt("SESSION_MAX_ATTEMPTS"),
				KeepAliveInterval: viper.GetDuration("SESSION_KEEPALIVE_INTERVAL"),
				HandshakeTimeout:  viper.GetDuration("SESSION_HANDSHAKE_TIMEOUT"),
			},
		}
	})

	return configInstance, nil
}
