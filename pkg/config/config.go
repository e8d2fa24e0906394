// package config defines the daemon configuration: a TOML file, an optional
// .env file, and CURVEMARKETS_* environment overrides on top.

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
)

type Config struct {
	Server   ServerConfig `toml:"server"`
	DB       DBConfig     `toml:"db"`
	Market   MarketConfig `toml:"market"`
	LogLevel string       `toml:"log_level"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DBConfig struct {
	Path string `toml:"path"`
}

type MarketConfig struct {
	// Admin holds the capability for market creation, resolution, and
	// emergency withdrawal.
	Admin string `toml:"admin"`
	// Operator receives the house fee at resolution.
	Operator string `toml:"operator"`
	// DefaultK is the curve steepness used when creation passes zero, as a
	// decimal string. Empty keeps the engine default of 1000.
	DefaultK string `toml:"default_k"`
}

func Defaults() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8480"},
		DB:       DBConfig{Path: "curvemarkets.db"},
		Market:   MarketConfig{Admin: "admin", Operator: "operator"},
		LogLevel: "info",
	}
}

// Load reads the TOML file at path on top of the defaults, loads a .env file
// if one is present, and applies environment overrides. A missing config
// file is not an error; the defaults plus environment carry a dev setup.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Addr, "CURVEMARKETS_SERVER_ADDR")
	setStr(&cfg.DB.Path, "CURVEMARKETS_DB_PATH")
	setStr(&cfg.Market.Admin, "CURVEMARKETS_MARKET_ADMIN")
	setStr(&cfg.Market.Operator, "CURVEMARKETS_MARKET_OPERATOR")
	setStr(&cfg.Market.DefaultK, "CURVEMARKETS_MARKET_DEFAULT_K")
	setStr(&cfg.LogLevel, "CURVEMARKETS_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: empty server.addr")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("config: empty db.path")
	}
	if c.Market.Admin == "" {
		return fmt.Errorf("config: empty market.admin")
	}
	if c.Market.Operator == "" {
		return fmt.Errorf("config: empty market.operator")
	}
	if c.Market.DefaultK != "" {
		if _, err := fixedpoint.FromDecimal(c.Market.DefaultK); err != nil {
			return fmt.Errorf("config: bad market.default_k: %w", err)
		}
	}
	return nil
}
