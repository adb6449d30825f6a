package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		DSN string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			DB       int    `yaml:"db"`
			Password string `yaml:"password"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		// TTL es la ventana de staleness declarada del cache-aside: las
		// decisiones de autorización pueden atrasarse hasta este valor
		// respecto de cambios de roles/permisos. Trade-off aceptado.
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`

	JWT struct {
		AccessTTL string `yaml:"access_ttl"`
	} `yaml:"jwt"`

	Keys struct {
		Dir string `yaml:"dir"`
	} `yaml:"keys"`

	Rate struct {
		// Límite fixed-window sobre login/signup, por IP de cliente.
		Max    int    `yaml:"max"`
		Window string `yaml:"window"`
	} `yaml:"rate"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "5m"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.Keys.Dir == "" {
		c.Keys.Dir = ".keys"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Rate.Max == 0 {
		c.Rate.Max = 30
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	applyEnv(&c)
	return &c, nil
}

// applyEnv: las env vars pisan el YAML (mismo orden que el resto de los
// servicios: archivo < entorno).
func applyEnv(c *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("CACHE_KIND"); v != "" {
		c.Cache.Kind = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Redis.DB = n
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		c.Cache.TTL = v
	}
	if v := os.Getenv("JWT_ACCESS_TTL"); v != "" {
		c.JWT.AccessTTL = v
	}
	if v := os.Getenv("KEYS_DIR"); v != "" {
		c.Keys.Dir = v
	}
	if v := os.Getenv("RATE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Rate.Max = n
		}
	}
	if v := os.Getenv("RATE_WINDOW"); v != "" {
		c.Rate.Window = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// CacheTTL parsea la ventana de expiración configurada.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 5*time.Minute)
}

// AccessTTL parsea la vida útil de los tokens de acceso.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWT.AccessTTL, 15*time.Minute)
}

// RateWindow parsea la ventana del rate limiter.
func (c *Config) RateWindow() time.Duration {
	return parseDuration(c.Rate.Window, time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
