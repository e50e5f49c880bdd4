// Package config собирает настройки сервиса из YAML-файла и переменных
// окружения. Путь к файлу задаётся переменной CONFIG_PATH; без него
// конфигурация читается только из окружения со значениями по умолчанию.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const configPathEnv = "CONFIG_PATH"

type Config struct {
	Env    string       `yaml:"env" env:"ENV" env-default:"local"`
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Actors ActorsConfig `yaml:"actors"`
}

type ServerConfig struct {
	Address string `yaml:"address" env:"SERVER_ADDRESS" env-default:":8080"`

	// Окно свежести метки времени вызова, обе границы исключительные.
	MaxPastSecs   uint64 `yaml:"max_past_secs" env:"FRESHNESS_MAX_PAST_SECS" env-default:"300"`
	MaxFutureSecs uint64 `yaml:"max_future_secs" env:"FRESHNESS_MAX_FUTURE_SECS" env-default:"10"`

	CreateRoomAttempts int           `yaml:"create_room_attempts" env:"CREATE_ROOM_ATTEMPTS" env-default:"20"`
	CallTimeout        time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT" env-default:"30s"`
}

type ClientConfig struct {
	URL string `yaml:"url" env:"RELAY_URL" env-default:"ws://localhost:8080/ws"`

	PingInterval time.Duration `yaml:"ping_interval" env:"PING_INTERVAL" env-default:"10s"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT" env-default:"5s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"30s"`
	BackoffStart time.Duration `yaml:"backoff_start" env:"BACKOFF_START" env-default:"5s"`
	BackoffMax   time.Duration `yaml:"backoff_max" env:"BACKOFF_MAX" env-default:"60s"`
}

type ActorsConfig struct {
	RoomsURL string `yaml:"rooms_url" env:"ROOMS_URL" env-default:"http://localhost:8081"`
	PeersURL string `yaml:"peers_url" env:"PEERS_URL" env-default:"http://localhost:8082"`

	RequestTimeout time.Duration `yaml:"request_timeout" env:"ACTORS_REQUEST_TIMEOUT" env-default:"10s"`
}

func Load() (*Config, error) {
	// .env необязателен: в контейнерах окружение приходит снаружи.
	_ = godotenv.Load()

	var cfg Config

	if configPath := os.Getenv(configPathEnv); configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s does not exist", configPath)
		}

		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("cannot load config file: %w", err)
		}

		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read config from environment: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}

	return cfg
}
