package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string        `env:"HTTP_ADDR" envDefault:":8080"`
	RedisURL string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	LogLevel slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	RoomTTL  time.Duration `env:"ROOM_TTL" envDefault:"3h"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
