// Package config loads service settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Cache       CacheConfig       `yaml:"cache"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Timezone    string            `yaml:"timezone"`
	LogMode     string            `yaml:"log_mode"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl"`
}

type CorrelationConfig struct {
	Workers int `yaml:"workers"`
}

func Default() *Config {
	return &Config{
		Server:      ServerConfig{Host: "0.0.0.0", Port: 8012},
		Storage:     StorageConfig{DBPath: "/data/glucose-insights.db"},
		Cache:       CacheConfig{Backend: CacheSQLite, RedisPrefix: "insights"},
		Correlation: CorrelationConfig{Workers: 8},
		Timezone:    "UTC",
		LogMode:     "dev",
	}
}

// Load reads path (optional) over the defaults and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GLUCOSE_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("GLUCOSE_HOST", &c.Server.Host)
	str("GLUCOSE_DB_PATH", &c.Storage.DBPath)
	str("GLUCOSE_CACHE_BACKEND", &c.Cache.Backend)
	str("GLUCOSE_REDIS_ADDR", &c.Cache.RedisAddr)
	str("GLUCOSE_TIMEZONE", &c.Timezone)
	str("GLUCOSE_LOG_MODE", &c.LogMode)

	if v := strings.TrimSpace(getenv("GLUCOSE_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case CacheSQLite:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache backend %q requires redis_addr", CacheRedis)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	return nil
}

// Location resolves Timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
