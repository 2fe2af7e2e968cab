// Package config loads smsbridge settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/spachava753/smsbridge/permission"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "SMSBRIDGE_"

// Backend names a platform implementation.
type Backend string

const (
	// BackendSQLite stores messages in a local SQLite file and sends nowhere.
	BackendSQLite Backend = "sqlite"
	// BackendMacOS uses Messages.app and its chat.db.
	BackendMacOS Backend = "macos"
	// BackendGateway uses a carrier email-to-SMS gateway over IMAP and SMTP.
	BackendGateway Backend = "gateway"
)

// Config holds all configuration for the application.
type Config struct {
	Backend Backend `env:"BACKEND" envDefault:"sqlite"`

	SQLiteDriver string `env:"SQLITE_DRIVER" envDefault:"sqlite3"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"smsbridge.db"`

	// Granted and AutoAnswer configure the static permission platform used
	// by the sqlite and gateway backends.
	Granted    []string `env:"GRANTED" envSeparator:","`
	AutoAnswer string   `env:"AUTO_ANSWER" envDefault:"GRANTED"`

	IMAPAddr      string `env:"IMAP_ADDR"`
	SMTPAddr      string `env:"SMTP_ADDR"`
	MailUsername  string `env:"MAIL_USERNAME"`
	MailPassword  string `env:"MAIL_PASSWORD"`
	CarrierDomain string `env:"CARRIER_DOMAIN"`
	InboxFolder   string `env:"INBOX_FOLDER" envDefault:"INBOX"`
	SentFolder    string `env:"SENT_FOLDER" envDefault:"Sent"`

	MessagesDB      string `env:"MESSAGES_DB"`
	MessagesService string `env:"MESSAGES_SERVICE" envDefault:"SMS"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load reads configuration from SMSBRIDGE_ variables, loading a .env file
// first if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated fields and backend requirements.
func (c *Config) Validate() error {
	c.Backend = Backend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("config: %sSQLITE_PATH is required for the sqlite backend", EnvPrefix)
		}
	case BackendMacOS:
	case BackendGateway:
		if c.IMAPAddr == "" || c.SMTPAddr == "" || c.MailUsername == "" || c.MailPassword == "" {
			return fmt.Errorf("config: the gateway backend needs %[1]sIMAP_ADDR, %[1]sSMTP_ADDR, %[1]sMAIL_USERNAME and %[1]sMAIL_PASSWORD", EnvPrefix)
		}
		if c.CarrierDomain == "" {
			return fmt.Errorf("config: %sCARRIER_DOMAIN is required for the gateway backend", EnvPrefix)
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}

	if _, err := c.GrantedCapabilities(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.AutoAnswerState(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}

// GrantedCapabilities parses Granted.
func (c *Config) GrantedCapabilities() ([]permission.Capability, error) {
	out := make([]permission.Capability, 0, len(c.Granted))
	for _, raw := range c.Granted {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		capability, err := permission.ParseCapability(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, capability)
	}
	return out, nil
}

// AutoAnswerState parses AutoAnswer. An empty value leaves prompts pending.
func (c *Config) AutoAnswerState() (permission.State, error) {
	if strings.TrimSpace(c.AutoAnswer) == "" {
		return "", nil
	}
	return permission.ParseState(c.AutoAnswer)
}
