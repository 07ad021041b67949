// Package config loads the console configuration from an optional YAML file
// and the environment. Environment variables win over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL         = "http://localhost:5001/api"
	DefaultAppScope       = "FaucetAdmin"
	DefaultAccessLifetime = 15 * time.Minute
	DefaultRenewInterval  = 14 * time.Minute
	DefaultRefreshTimeout = 15 * time.Second
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultRefreshCookie  = "refreshToken"
	DefaultStoreKey       = "faucetadmin:session"
	DefaultConsoleAddr    = ":9000"
	DefaultLogLevel       = "info"
)

// Config is the full client and console configuration
type Config struct {
	APIURL         string        `yaml:"api_url" env:"FAUCET_API_URL"`
	AppScope       string        `yaml:"app_scope" env:"FAUCET_APP_SCOPE"`
	AccessLifetime time.Duration `yaml:"access_lifetime" env:"FAUCET_ACCESS_LIFETIME"`
	RenewInterval  time.Duration `yaml:"renew_interval" env:"FAUCET_RENEW_INTERVAL"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"FAUCET_REFRESH_TIMEOUT"`
	HTTPTimeout    time.Duration `yaml:"http_timeout" env:"FAUCET_HTTP_TIMEOUT"`
	RefreshCookie  string        `yaml:"refresh_cookie" env:"FAUCET_REFRESH_COOKIE"`

	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	StoreKey string `yaml:"store_key" env:"FAUCET_STORE_KEY"`

	ConsoleAddr      string `yaml:"console_addr" env:"CONSOLE_ADDR"`
	WalletPrivateKey string `yaml:"-" env:"WALLET_PRIVATE_KEY"`
	LogLevel         string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		APIURL:         DefaultAPIURL,
		AppScope:       DefaultAppScope,
		AccessLifetime: DefaultAccessLifetime,
		RenewInterval:  DefaultRenewInterval,
		RefreshTimeout: DefaultRefreshTimeout,
		HTTPTimeout:    DefaultHTTPTimeout,
		RefreshCookie:  DefaultRefreshCookie,
		StoreKey:       DefaultStoreKey,
		ConsoleAddr:    DefaultConsoleAddr,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(raw))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail at first use
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api url %q", c.APIURL)
	}
	if c.AppScope == "" {
		return errors.New("app scope must not be empty")
	}
	if c.AccessLifetime <= 0 {
		return errors.New("access lifetime must be positive")
	}
	if c.RenewInterval <= 0 || c.RenewInterval >= c.AccessLifetime {
		return fmt.Errorf("renew interval %s must be positive and shorter than the access lifetime %s", c.RenewInterval, c.AccessLifetime)
	}
	if c.RefreshTimeout <= 0 {
		return errors.New("refresh timeout must be positive")
	}
	if c.RefreshCookie == "" {
		return errors.New("refresh cookie name must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// BaseURL returns the parsed API URL
func (c Config) BaseURL() *url.URL {
	u, _ := url.Parse(strings.TrimRight(c.APIURL, "/"))
	return u
}

// SlogLevel maps LogLevel to a slog.Level
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
