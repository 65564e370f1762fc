package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPrefix namespaces environment overrides. Secrets belong here rather
// than in the YAML file or on the command line.
const envPrefix = "KEYGATE_"

// Load builds a Config from args (without the program name) and getenv.
// A -config flag names the YAML file; without it no file is read.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("keygate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		file     = fs.String("config", "", "path to a YAML config file")
		addr     = fs.String("addr", cfg.Server.Addr, "HTTP listen address")
		driver   = fs.String("store", cfg.Store.Driver, "account store: memory, postgres or mongodb")
		dsn      = fs.String("dsn", "", "account store DSN or URI")
		redis    = fs.String("redis", cfg.Redis.Addr, "redis address")
		embedded = fs.Bool("embedded-redis", false, "run an in-process redis (development only)")
		mail     = fs.String("mail", cfg.Mail.Driver, "mail delivery: smtp or log")
		dev      = fs.Bool("dev", false, "development logging")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *file != "" {
		if err := loadFile(cfg, *file); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "store":
			cfg.Store.Driver = *driver
		case "dsn":
			cfg.Store.DSN = *dsn
		case "redis":
			cfg.Redis.Addr = *redis
		case "embedded-redis":
			cfg.Redis.Embedded = *embedded
		case "mail":
			cfg.Mail.Driver = *mail
		case "dev":
			cfg.Log.Development = *dev
		}
	})

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}

	str("ADDR", &cfg.Server.Addr)
	str("TOKEN_SECRET", &cfg.Token.Secret)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("STORE_DSN", &cfg.Store.DSN)
	str("MAIL_DRIVER", &cfg.Mail.Driver)
	str("SMTP_HOST", &cfg.Mail.Host)
	str("SMTP_USERNAME", &cfg.Mail.Username)
	str("SMTP_PASSWORD", &cfg.Mail.Password)
	str("SMTP_FROM", &cfg.Mail.From)

	if v := getenv(envPrefix + "SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSMTP_PORT: %w", envPrefix, err)
		}
		cfg.Mail.Port = port
	}
	if v := getenv(envPrefix + "ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}
