// Package config loads service configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"ridedispatch/internal/logging"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	ORS      ORSConfig      `yaml:"ors"`
	Solver   SolverConfig   `yaml:"solver"`
	Rank     RankConfig     `yaml:"rank"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Log      logging.Config `yaml:"log"`
}

type ServerConfig struct {
	Port         int     `yaml:"port"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	RateBurst    int     `yaml:"rate_burst"`
}

type ORSConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Profile        string        `yaml:"profile"`
	Country        string        `yaml:"country"`
	Lang           string        `yaml:"lang"`
	GeocodeTimeout time.Duration `yaml:"geocode_timeout"`
	MatrixTimeout  time.Duration `yaml:"matrix_timeout"`
	RouteTimeout   time.Duration `yaml:"route_timeout"`
}

type SolverConfig struct {
	// TimeBudget caps the local-search phase; the best solution found by
	// the deadline is returned even if not provably optimal.
	TimeBudget time.Duration `yaml:"time_budget"`
	// DropPenalty is the fixed cost of leaving a task unserved. It must
	// stay far above any plausible route cost so tasks are dropped only
	// when no vehicle can fit them.
	DropPenalty float64 `yaml:"drop_penalty"`
	Seed        int64   `yaml:"seed"`
	// DepotAddress is the fleet start point used when an optimization
	// request does not name its own depot.
	DepotAddress string `yaml:"depot_address"`
}

type RankConfig struct {
	// AssumedServiceMin is used when a task's true service duration is
	// not supplied at ranking time.
	AssumedServiceMin float64 `yaml:"assumed_service_min"`
	MaxSuggestions    int     `yaml:"max_suggestions"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type WebhookConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080, RateLimitRPS: 20, RateBurst: 40},
		ORS: ORSConfig{
			BaseURL:        "https://api.openrouteservice.org",
			Profile:        "driving-car",
			Country:        "IL",
			Lang:           "he",
			GeocodeTimeout: 15 * time.Second,
			MatrixTimeout:  20 * time.Second,
			RouteTimeout:   15 * time.Second,
		},
		Solver: SolverConfig{
			TimeBudget:   5 * time.Second,
			DropPenalty:  10_000_000_000,
			DepotAddress: "Arlozorov Terminal, Tel Aviv",
		},
		Rank:     RankConfig{AssumedServiceMin: 30, MaxSuggestions: 5},
		Webhooks: WebhookConfig{MaxAttempts: 10},
		Log:      logging.Config{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path (when it exists) over the defaults,
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if cfg.ORS.APIKey == "" {
		return cfg, fmt.Errorf("OPENROUTESERVICE_API_KEY is not set")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("OPENROUTESERVICE_API_KEY"); v != "" {
		c.ORS.APIKey = v
	}
	if v := os.Getenv("ORS_BASE_URL"); v != "" {
		c.ORS.BaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SOLVER_TIME_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Solver.TimeBudget = d
		}
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Webhooks.MaxAttempts = n
		}
	}
}
