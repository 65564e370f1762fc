// Package config loads the keygate server configuration: defaults, then an
// optional YAML file, then KEYGATE_* environment variables, then
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plextask/keygate"
)

// Config holds runtime settings for the keygate server.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Redis  RedisConfig  `yaml:"redis"`
	Store  StoreConfig  `yaml:"store"`
	Mail   MailConfig   `yaml:"mail"`
	Token  TokenConfig  `yaml:"token"`
	Links  LinksConfig  `yaml:"links"`
	Audit  AuditConfig  `yaml:"audit"`
}

type ServerConfig struct {
	Addr                 string        `yaml:"addr"`
	AllowedOrigins       []string      `yaml:"allowed_origins"`
	MaskCredentialErrors bool          `yaml:"mask_credential_errors"`
	InsecureCookies      bool          `yaml:"insecure_cookies"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// RedisConfig points at the secret store. Embedded starts an in-process
// miniredis instead, which loses every pending code on restart.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	Embedded bool   `yaml:"embedded"`
}

// StoreConfig selects the account store: "memory", "postgres" or "mongodb".
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
	Migrate  bool   `yaml:"migrate"`
}

// MailConfig selects how codes are delivered: "smtp" or "log".
type MailConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	SSL      bool   `yaml:"ssl"`
}

type TokenConfig struct {
	Secret     string        `yaml:"secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
}

// LinksConfig holds the front-end pages mailed alongside each code.
type LinksConfig struct {
	Registration string `yaml:"registration"`
	Recovery     string `yaml:"recovery"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

// Default returns development defaults. Token.Secret stays empty and must
// be supplied.
func Default() *Config {
	lib := keygate.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			AllowedOrigins:  []string{"http://localhost:4200"},
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "kg",
		},
		Store: StoreConfig{
			Driver:   "memory",
			Database: "keygate",
			Migrate:  true,
		},
		Mail: MailConfig{
			Driver: "log",
			Port:   587,
			From:   "no-reply@localhost",
		},
		Token: TokenConfig{
			AccessTTL:  lib.Token.AccessTTL,
			RefreshTTL: lib.Token.RefreshTTL,
		},
		Links: LinksConfig{
			Registration: lib.Notification.RegistrationLink,
			Recovery:     lib.Notification.RecoveryLink,
		},
		Audit: AuditConfig{BufferSize: lib.Audit.BufferSize},
	}
}

// Validate reports every problem it finds.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if len(c.Token.Secret) < 32 {
		errs = append(errs, errors.New("token.secret must be at least 32 bytes (KEYGATE_TOKEN_SECRET)"))
	}
	for _, o := range c.Server.AllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			errs = append(errs, errors.New(`server.allowed_origins must list origins; "*" would expose the refresh cookie to every site`))
			break
		}
	}
	if !c.Redis.Embedded && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required unless redis.embedded is set"))
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for postgres"))
		}
	case "mongodb":
		if c.Store.DSN == "" || c.Store.Database == "" {
			errs = append(errs, errors.New("store.dsn and store.database are required for mongodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.Port <= 0 || c.Mail.From == "" {
			errs = append(errs, errors.New("mail.host, mail.port and mail.from are required for smtp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail.driver %q", c.Mail.Driver))
	}

	return errors.Join(errs...)
}

// Engine maps the settings onto a keygate.Config.
func (c *Config) Engine() keygate.Config {
	cfg := keygate.DefaultConfig()
	cfg.Token.PrivateKey = []byte(c.Token.Secret)
	cfg.Token.AccessTTL = c.Token.AccessTTL
	cfg.Token.RefreshTTL = c.Token.RefreshTTL
	cfg.Token.Issuer = c.Token.Issuer
	cfg.Token.Audience = c.Token.Audience
	cfg.Notification.RegistrationLink = c.Links.Registration
	cfg.Notification.RecoveryLink = c.Links.Recovery
	cfg.Audit.Enabled = c.Audit.Enabled
	if c.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = c.Audit.BufferSize
	}
	return cfg
}
