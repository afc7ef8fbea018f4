package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio.
// Se carga desde YAML y se puede pisar con variables de entorno
// (las env vars siempre ganan).
type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns int `yaml:"max_open_conns"`
			MaxIdleConns int `yaml:"max_idle_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Verify struct {
		// TTL del challenge de OTP en el cache.
		ChallengeTTL string `yaml:"challenge_ttl"`
		// TTL de la assertion emitida al completar la verificación.
		AssertionTTL string `yaml:"assertion_ttl"`
		// Límite de challenges por dirección de contacto.
		BeginLimit  int    `yaml:"begin_limit"`
		BeginWindow string `yaml:"begin_window"`
	} `yaml:"verify"`

	Provider struct {
		// smtp | http
		Kind string `yaml:"kind"`
		SMTP struct {
			Host      string `yaml:"host"`
			Port      int    `yaml:"port"`
			From      string `yaml:"from"`
			User      string `yaml:"user"`
			Pass      string `yaml:"pass"`
			TLSMode   string `yaml:"tls_mode"`
			ProofHMAC string `yaml:"proof_hmac_key"`
		} `yaml:"smtp"`
		HTTP struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
			Timeout string `yaml:"timeout"`
		} `yaml:"http"`
	} `yaml:"provider"`

	Signer struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
	} `yaml:"signer"`

	Session struct {
		Issuer string `yaml:"issuer"`
		TTL    string `yaml:"ttl"`
		// Seed ed25519 de 32 bytes en base64. Si está vacío se genera una
		// efímera al boot (solo dev: invalida sesiones en cada restart).
		SigningSeed string `yaml:"signing_seed"`
	} `yaml:"session"`

	Sign struct {
		// Límite de firmas por identidad.
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"sign"`
}

// Load lee el archivo YAML (si existe) y aplica overrides de entorno.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) defaults() {
	c.App.Env = "dev"
	c.Server.Addr = ":8080"
	c.Storage.Driver = "postgres"
	c.Cache.Kind = "memory"
	c.Verify.ChallengeTTL = "10m"
	c.Verify.AssertionTTL = "5m"
	c.Verify.BeginLimit = 3
	c.Verify.BeginWindow = "1h"
	c.Provider.Kind = "smtp"
	c.Provider.SMTP.TLSMode = "auto"
	c.Signer.Timeout = "10s"
	c.Session.Issuer = "hellowallet"
	c.Session.TTL = "24h"
	c.Sign.Limit = 30
	c.Sign.Window = "1m"
}

// applyEnv pisa valores con variables de entorno (prefijo HW_).
func (c *Config) applyEnv() {
	setStr(&c.App.Env, "HW_APP_ENV")
	setStr(&c.Server.Addr, "HW_ADDR")
	setStr(&c.Storage.Driver, "HW_STORAGE_DRIVER")
	setStr(&c.Storage.DSN, "HW_STORAGE_DSN")
	setStr(&c.Cache.Kind, "HW_CACHE_KIND")
	setStr(&c.Cache.Redis.Addr, "HW_REDIS_ADDR")
	setStr(&c.Provider.Kind, "HW_PROVIDER_KIND")
	setStr(&c.Provider.SMTP.Host, "HW_SMTP_HOST")
	setInt(&c.Provider.SMTP.Port, "HW_SMTP_PORT")
	setStr(&c.Provider.SMTP.From, "HW_SMTP_FROM")
	setStr(&c.Provider.SMTP.User, "HW_SMTP_USER")
	setStr(&c.Provider.SMTP.Pass, "HW_SMTP_PASS")
	setStr(&c.Provider.SMTP.ProofHMAC, "HW_PROVIDER_PROOF_HMAC_KEY")
	setStr(&c.Provider.HTTP.BaseURL, "HW_PROVIDER_URL")
	setStr(&c.Provider.HTTP.APIKey, "HW_PROVIDER_API_KEY")
	setStr(&c.Signer.BaseURL, "HW_SIGNER_URL")
	setStr(&c.Signer.APIKey, "HW_SIGNER_API_KEY")
	setStr(&c.Session.Issuer, "HW_SESSION_ISSUER")
	setStr(&c.Session.TTL, "HW_SESSION_TTL")
	setStr(&c.Session.SigningSeed, "HW_SESSION_SIGNING_SEED")
}

func setStr(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// DurationOr parsea un duration string con fallback.
func DurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
