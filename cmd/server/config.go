package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// serverEnv is the environment half of the server configuration. Flags win
// over these when both are set.
type serverEnv struct {
	Addr            string `env:"ARENA_ADDR"              envDefault:":8080"`
	DataDir         string `env:"ARENA_DATA_DIR"          envDefault:"./data"`
	ConfigDir       string `env:"ARENA_CONFIG_DIR"        envDefault:"./configs"`
	IndexBackend    string `env:"ARENA_INDEX_BACKEND"     envDefault:"sqlite"`
	EnableAdminHTTP *bool  `env:"ARENA_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool   `env:"ARENA_ENABLE_PPROF_HTTP" envDefault:"false"`
	DeployEnv       string `env:"DEPLOY_ENV"`
}

func parseServerEnv() (serverEnv, error) {
	var cfg serverEnv
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// adminHTTP reports whether the loopback admin endpoints are mounted. They
// default to on outside staging and production.
func (c serverEnv) adminHTTP() bool {
	if c.EnableAdminHTTP != nil {
		return *c.EnableAdminHTTP
	}
	switch c.DeployEnv {
	case "staging", "production":
		return false
	default:
		return true
	}
}
