// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	BaseURL                 string `yaml:"base_url" env:"BASE_URL"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RabbitMQ                `yaml:"rabbitmq"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Stripe                  `yaml:"stripe"`
	Fal                     `yaml:"fal"`
	SMTP                    `yaml:"smtp"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"localhost:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RabbitMQ структура для настройки подключения к RabbitMQ
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Stripe структура с ключами и идентификаторами цен платёжного провайдера.
// Идентификаторы цен определяют, какой счётчик кредитов пополняет вебхук.
type Stripe struct {
	SecretKey         string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret     string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	PublishableKey    string `yaml:"publishable_key" env:"STRIPE_PUBLISHABLE_KEY"`
	PriceLoraCredits  string `yaml:"price_lora_credits" env:"STRIPE_PRICE_LORA_CREDITS"`
	PriceImageCredits string `yaml:"price_image_credits" env:"STRIPE_PRICE_IMAGE_CREDITS"`
	PriceImageSub     string `yaml:"price_image_subscription" env:"STRIPE_PRICE_IMAGE_SUB"`
	PriceLoraSub      string `yaml:"price_lora_subscription" env:"STRIPE_PRICE_LORA_SUB"`
}

// Fal структура для настройки клиента очереди генеративных задач
type Fal struct {
	APIKey     string `yaml:"api_key" env:"FAL_KEY"`
	QueueURL   string `yaml:"queue_url" env-default:"https://queue.fal.run"`
	SyncRunURL string `yaml:"sync_run_url" env-default:"https://fal.run"`
}

// SMTP структура для настройки почтового транспорта
type SMTP struct {
	SMTPHost string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"smtp_port" env:"SMTP_PORT"`
	SMTPUser string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPass string `yaml:"smtp_pass" env:"SMTP_PASS"`
}

// MustLoad функция для загрузки конфига, путь к файлу берется из переменной окружения CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"BaseURL: %s\n"+
			"StorageConnectionString: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  TokenTTL: %s\n"+
			"Stripe:\n"+
			"  PriceLoraCredits: %s\n"+
			"  PriceImageCredits: %s\n"+
			"Fal:\n"+
			"  QueueURL: %s\n",
		c.Env,
		c.BaseURL,
		c.StorageConnectionString,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.TokenTTL,
		c.PriceLoraCredits,
		c.PriceImageCredits,
		c.QueueURL,
	)
}
