package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server struct {
		Addr      string `toml:"addr"`
		StaticDir string `toml:"static_dir"`
	} `toml:"server"`

	Upstream struct {
		APIURL     string `toml:"api_url"`
		WsURL      string `toml:"ws_url"`
		LoginURL   string `toml:"login_url"`
		APIVersion int    `toml:"api_version"`
		Reconnect  bool   `toml:"reconnect"`
		Mode       string `toml:"mode"`
	} `toml:"upstream"`

	Watch struct {
		Basis []BasisWatch `toml:"basis"`
		Pairs []VenuePair  `toml:"pairs"`
	} `toml:"watch"`

	Poll struct {
		IntervalMs int `toml:"interval_ms"`
	} `toml:"poll"`

	Storage struct {
		Driver      string `toml:"driver"`
		SQLitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
		RedisAddr   string `toml:"redis_addr"`
		RedisPrefix string `toml:"redis_prefix"`
		RedisTTLSec int    `toml:"redis_ttl_sec"`
	} `toml:"storage"`
}

type BasisWatch struct {
	Name         string `toml:"name"`
	SpotExchange string `toml:"spot_exchange"`
	SpotSymbol   string `toml:"spot_symbol"`
}

type VenuePair struct {
	Symbol string `toml:"symbol"`
	VenueA string `toml:"venue_a"`
	VenueB string `toml:"venue_b"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8080"
	}
	if strings.TrimSpace(cfg.Upstream.APIURL) == "" {
		cfg.Upstream.APIURL = "https://api.kite.trade"
	}
	if strings.TrimSpace(cfg.Upstream.WsURL) == "" {
		cfg.Upstream.WsURL = "wss://ws.kite.trade"
	}
	if strings.TrimSpace(cfg.Upstream.LoginURL) == "" {
		cfg.Upstream.LoginURL = "https://kite.zerodha.com/connect/login"
	}
	if cfg.Upstream.APIVersion <= 0 {
		cfg.Upstream.APIVersion = 3
	}
	if cfg.Upstream.Mode == "" {
		cfg.Upstream.Mode = "full"
	}
	if cfg.Poll.IntervalMs <= 0 {
		cfg.Poll.IntervalMs = 5000
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "none"
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = "kitefeed"
	}
	if cfg.Storage.RedisTTLSec <= 0 {
		cfg.Storage.RedisTTLSec = 86400
	}
}

func validate(cfg *Config) error {
	switch cfg.Upstream.Mode {
	case "full", "ltp":
	default:
		return fmt.Errorf("upstream.mode %q not one of full, ltp", cfg.Upstream.Mode)
	}

	for i, b := range cfg.Watch.Basis {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("watch.basis[%d].name is empty", i)
		}
		if strings.TrimSpace(b.SpotExchange) == "" || strings.TrimSpace(b.SpotSymbol) == "" {
			return fmt.Errorf("watch.basis[%d] missing spot exchange or symbol", i)
		}
	}
	for i, p := range cfg.Watch.Pairs {
		if strings.TrimSpace(p.Symbol) == "" {
			return fmt.Errorf("watch.pairs[%d].symbol is empty", i)
		}
		if strings.TrimSpace(p.VenueA) == "" || strings.TrimSpace(p.VenueB) == "" {
			return fmt.Errorf("watch.pairs[%d] missing venue", i)
		}
	}

	switch cfg.Storage.Driver {
	case "none", "all":
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
			return errors.New("storage.sqlite_path empty but driver is sqlite")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
			return errors.New("storage.postgres_dsn empty but driver is postgres")
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.RedisAddr) == "" {
			return errors.New("storage.redis_addr empty but driver is redis")
		}
	default:
		return fmt.Errorf("storage.driver %q not one of none, sqlite, postgres, redis, all", cfg.Storage.Driver)
	}
	return nil
}
