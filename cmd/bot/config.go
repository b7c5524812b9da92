package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

type botEnv struct {
	PresenceURL  string `env:"ARENA_PRESENCE_URL"  envDefault:"ws://localhost:8080/v1/ws"`
	Codec        string `env:"ARENA_CODEC"         envDefault:"json"`
	Name         string `env:"ARENA_BOT_NAME"`
	Character    string `env:"ARENA_CHARACTER"     envDefault:"fighter"`
	DataDir      string `env:"ARENA_DATA_DIR"      envDefault:"./data"`
	ConfigDir    string `env:"ARENA_CONFIG_DIR"    envDefault:"./configs"`
	IndexBackend string `env:"ARENA_INDEX_BACKEND" envDefault:"sqlite"`
}

func parseBotEnv() (botEnv, error) {
	var cfg botEnv
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = defaultBotName()
	}
	return cfg, nil
}

func defaultBotName() string {
	return "bot-" + uuid.NewString()[:8]
}
