// Package config предоставляет структуры и функции для загрузки конфигурации сервисов лицензирования.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	JWTToken        `yaml:"jwttoken"`
	RabbitMQ        `yaml:"rabbitmq"`
	SMTP            `yaml:"smtp"`
	License         `yaml:"license"`
	Demo            `yaml:"demo"`
}

// Storage настройки хранилища документов и провайдера учётных записей.
type Storage struct {
	Driver              string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	DocumentStoreDSN    string `yaml:"document_store_dsn" env:"DOCUMENT_STORE_DSN"`
	IdentityProviderDSN string `yaml:"identity_provider_dsn" env:"IDENTITY_PROVIDER_DSN"`
	MigrationsPath      string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кеш.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"`
	RateBurst   int           `yaml:"rate_burst" env-default:"10"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// RabbitMQ настройки подключения к брокеру уведомлений.
type RabbitMQ struct {
	RabbitMQURL     string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQRetries int           `yaml:"retries" env-default:"5"`
	RabbitMQDelay   time.Duration `yaml:"delay" env-default:"2s"`
}

// SMTP настройки почтового сервера.
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"password" env:"SMTP_PASSWORD"`
	SMTPFrom string `yaml:"from" env:"SMTP_FROM"`
}

// License настройки выпуска и проверки лицензий.
type License struct {
	ValidityPeriod    time.Duration `yaml:"validity_period" env-default:"8760h"`
	CacheTTL          time.Duration `yaml:"cache_ttl" env-default:"5m"`
	CloudEndpoint     string        `yaml:"cloud_endpoint" env:"LICENSE_CLOUD_ENDPOINT" env-default:"https://sync.example.com/api/v1"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env-default:"24h"`
}

// Demo настройки пробного периода.
type Demo struct {
	Duration       time.Duration `yaml:"duration" env-default:"168h"`
	ReminderWindow time.Duration `yaml:"reminder_window" env-default:"30m"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env-default:"15m"`
	UpgradeURL     string        `yaml:"upgrade_url" env-default:"https://example.com/pricing"`
}

// Load читает конфигурацию из файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if path == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.DocumentStoreDSN == "" || c.IdentityProviderDSN == "" {
			return errors.New("postgres storage requires document_store_dsn and identity_provider_dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	if c.JWTSecretKey == "" {
		return errors.New("jwt_secret_key is required")
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  DocumentStoreDSN: %s\n"+
			"  IdentityProviderDSN: %s\n"+
			"  MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  JWTSecretKey: %s\n"+
			"  TokenTTL: %s\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"SMTP:\n"+
			"  Host: %s:%s\n"+
			"License:\n"+
			"  ValidityPeriod: %s\n"+
			"  CacheTTL: %s\n"+
			"Demo:\n"+
			"  Duration: %s\n"+
			"  ReminderWindow: %s\n"+
			"  SweepInterval: %s\n",
		c.Env,
		c.Driver,
		mask(c.DocumentStoreDSN),
		mask(c.IdentityProviderDSN),
		c.MigrationsPath,
		c.AddressRedis,
		mask(c.Password),
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		mask(c.JWTSecretKey),
		c.TokenTTL,
		mask(c.RabbitMQURL),
		c.SMTPHost, c.SMTPPort,
		c.ValidityPeriod,
		c.CacheTTL,
		c.Duration,
		c.ReminderWindow,
		c.SweepInterval,
	)
}
