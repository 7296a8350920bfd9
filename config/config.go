// common application configuration
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Rabbit    RabbitConfig    `mapstructure:"rabbit"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Push      PushConfig      `mapstructure:"push"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	AppVersion   string `json:"appVersion"`
	Host         string `json:"host" validate:"required"`
	Port         string `json:"port" validate:"required"`
	Timeout      time.Duration
	Idle_timeout time.Duration
	Env          string `json:"environment"`
	Mode         string `mapstructure:"mode"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres | memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"required"`
	Password string `json:"password"`
	DB       int    `json:"db"`

	// Настройки пула соединений
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type RabbitConfig struct {
	URL                string        `mapstructure:"url"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	ExchangeName       string        `mapstructure:"exchange_name"`
	DeadLetterExchange string        `mapstructure:"dead_letter_exchange"`
	DeadLetterQueue    string        `mapstructure:"dead_letter_queue"`
	RetryCount         int           `mapstructure:"retry_count"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	Lanes              LanesConfig   `mapstructure:"lanes"`
}

type LanesConfig struct {
	Critical LaneConfig `mapstructure:"critical"`
	Normal   LaneConfig `mapstructure:"normal"`
}

type LaneConfig struct {
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
}

type RateLimitConfig struct {
	Driver    string        `mapstructure:"driver"` // redis | memory
	Interval  time.Duration `mapstructure:"interval"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type DispatchConfig struct {
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

type PushConfig struct {
	Mode          string `mapstructure:"mode"` // local | redis
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type WorkerConfig struct {
	RepublishInterval time.Duration `mapstructure:"republish_interval"`
	RepublishAfter    time.Duration `mapstructure:"republish_after"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath(GetEnv("CONFIG_PATH", "./config"))
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	setDefaults(viperInstance)

	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	err := viperInstance.ReadInConfig()

	if err != nil {
		return nil, err
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &c, nil
}

// RabbitURL returns the configured URL or builds one from the credentials.
func (c *RabbitConfig) RabbitURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.Username, c.Password, c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("log.level", "info")
	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("rabbit.host", "localhost")
	v.SetDefault("rabbit.port", 5672)
	v.SetDefault("rabbit.exchange_name", "notification.system.exchange")
	v.SetDefault("rabbit.dead_letter_exchange", "notification.system.dlx")
	v.SetDefault("rabbit.dead_letter_queue", "notification.dead")
	v.SetDefault("rabbit.retry_count", 3)
	v.SetDefault("rabbit.retry_delay", 5*time.Second)
	v.SetDefault("rabbit.lanes.critical.queue", "notification.critical")
	v.SetDefault("rabbit.lanes.critical.concurrency", 4)
	v.SetDefault("rabbit.lanes.normal.queue", "notification.normal")
	v.SetDefault("rabbit.lanes.normal.concurrency", 2)

	v.SetDefault("rate_limit.driver", "redis")
	v.SetDefault("rate_limit.interval", 2*time.Second)
	v.SetDefault("rate_limit.key_prefix", "ratelimit:")

	v.SetDefault("dispatch.dedupe_ttl", 24*time.Hour)

	v.SetDefault("push.mode", "local")
	v.SetDefault("push.channel_prefix", "notifications:push:")

	v.SetDefault("worker.republish_interval", 30*time.Second)
	v.SetDefault("worker.republish_after", 5*time.Minute)
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
