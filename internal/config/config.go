// Package config loads mailtriage settings from a YAML file and
// MAILTRIAGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	AppName   = "mailtriage"
	EnvPrefix = "MAILTRIAGE"

	BackendGmail = "gmail"
	BackendIMAP  = "imap"
)

type Config struct {
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Run     RunConfig     `mapstructure:"run" yaml:"run"`
	IMAP    IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

type MailboxConfig struct {
	// Backend is "gmail" or "imap".
	Backend         string `mapstructure:"backend" yaml:"backend"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	UseKeyring      bool   `mapstructure:"use_keyring" yaml:"use_keyring"`
}

type ModelConfig struct {
	ID      string        `mapstructure:"id" yaml:"id"`
	Region  string        `mapstructure:"region" yaml:"region"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RunConfig struct {
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	MaxResults  int           `mapstructure:"max_results" yaml:"max_results"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	DryRun      bool          `mapstructure:"dry_run" yaml:"dry_run"`
}

type IMAPConfig struct {
	Host               string `mapstructure:"host" yaml:"host"`
	Port               int    `mapstructure:"port" yaml:"port"`
	TLS                bool   `mapstructure:"tls" yaml:"tls"`
	StartTLS           bool   `mapstructure:"starttls" yaml:"starttls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Username           string `mapstructure:"username" yaml:"username"`
	Password           string `mapstructure:"password" yaml:"password"`
	Inbox              string `mapstructure:"inbox" yaml:"inbox"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type StoreConfig struct {
	// Path of the label cache; empty uses the user cache directory,
	// "none" disables it.
	Path string `mapstructure:"path" yaml:"path"`
}

func DefaultConfig() Config {
	return Config{
		Mailbox: MailboxConfig{
			Backend: BackendGmail,
		},
		Model: ModelConfig{
			ID:      "anthropic.claude-v2",
			Region:  "us-east-1",
			Timeout: 30 * time.Second,
		},
		Run: RunConfig{
			Window:      time.Hour,
			MaxResults:  100,
			Concurrency: 1,
			Interval:    15 * time.Minute,
		},
		IMAP: IMAPConfig{
			Port:  993,
			TLS:   true,
			Inbox: "INBOX",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Dir returns ~/.config/mailtriage.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home dir: %w", err)
	}
	return filepath.Join(home, ".config", AppName), nil
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the default config file. A missing file is not an error.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFile(path)
}

// LoadFile reads config from path, layered over defaults and under env.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path (the default path when empty) and returns it.
func Save(cfg Config, path string) (string, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return "", err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func Redact(cfg Config) Config {
	masked := cfg
	if masked.IMAP.Password != "" {
		masked.IMAP.Password = "****"
	}
	return masked
}

// every key needs a default so AutomaticEnv can override it on Unmarshal
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("mailbox.backend", cfg.Mailbox.Backend)
	v.SetDefault("mailbox.credentials_file", cfg.Mailbox.CredentialsFile)
	v.SetDefault("mailbox.use_keyring", cfg.Mailbox.UseKeyring)

	v.SetDefault("model.id", cfg.Model.ID)
	v.SetDefault("model.region", cfg.Model.Region)
	v.SetDefault("model.timeout", cfg.Model.Timeout)

	v.SetDefault("run.window", cfg.Run.Window)
	v.SetDefault("run.max_results", cfg.Run.MaxResults)
	v.SetDefault("run.concurrency", cfg.Run.Concurrency)
	v.SetDefault("run.interval", cfg.Run.Interval)
	v.SetDefault("run.dry_run", cfg.Run.DryRun)

	v.SetDefault("imap.host", cfg.IMAP.Host)
	v.SetDefault("imap.port", cfg.IMAP.Port)
	v.SetDefault("imap.tls", cfg.IMAP.TLS)
	v.SetDefault("imap.starttls", cfg.IMAP.StartTLS)
	v.SetDefault("imap.insecure_skip_verify", cfg.IMAP.InsecureSkipVerify)
	v.SetDefault("imap.username", cfg.IMAP.Username)
	v.SetDefault("imap.password", cfg.IMAP.Password)
	v.SetDefault("imap.inbox", cfg.IMAP.Inbox)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("store.path", cfg.Store.Path)
}

func Validate(cfg Config) error {
	switch cfg.Mailbox.Backend {
	case BackendGmail:
	case BackendIMAP:
		if err := ValidateIMAP(cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("mailbox.backend must be %q or %q, got %q", BackendGmail, BackendIMAP, cfg.Mailbox.Backend)
	}
	if cfg.Run.Window <= 0 {
		return fmt.Errorf("run.window must be positive")
	}
	if cfg.Run.Concurrency < 1 {
		return fmt.Errorf("run.concurrency must be at least 1")
	}
	if cfg.Run.MaxResults < 1 {
		return fmt.Errorf("run.max_results must be at least 1")
	}
	if cfg.Model.ID == "" {
		return fmt.Errorf("model.id is required")
	}
	return nil
}

func ValidateIMAP(cfg Config) error {
	if cfg.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if cfg.IMAP.Username == "" {
		return fmt.Errorf("imap.username is required")
	}
	if cfg.IMAP.Password == "" {
		return fmt.Errorf("imap.password is required")
	}
	return nil
}
