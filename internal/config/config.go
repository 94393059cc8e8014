// Package config loads the optional inboxharvest configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/query"
)

const (
	AppName = "inboxharvest"

	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

type SearchConfig struct {
	Query     string   `yaml:"query,omitempty"`
	Keywords  []string `yaml:"keywords"`
	NewerThan string   `yaml:"newer_than"`
	PageSize  int      `yaml:"page_size"`
	Limit     int      `yaml:"limit,omitempty"`
}

type OutputConfig struct {
	Dir          string   `yaml:"dir"`
	AllTypes     bool     `yaml:"all_types"`
	Extensions   []string `yaml:"extensions"`
	SkipExisting bool     `yaml:"skip_existing"`
	Ledger       string   `yaml:"ledger,omitempty"`
}

type AuthConfig struct {
	Credentials string `yaml:"credentials"`
	Token       string `yaml:"token"`
	TokenStore  string `yaml:"token_store"`
	KeyringUser string `yaml:"keyring_user,omitempty"`
	Retries     int    `yaml:"retries"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Search SearchConfig `yaml:"search"`
	Output OutputConfig `yaml:"output"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

// DefaultConfig returns the settings used when no file exists.
// Credential paths live next to the config file.
func DefaultConfig() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = "."
	}
	return &Config{
		Search: SearchConfig{
			Keywords:  slices.Clone(query.DefaultKeywords),
			NewerThan: "30d",
			PageSize:  harvest.DefaultPageSize,
		},
		Output: OutputConfig{
			Dir:        "downloads",
			Extensions: slices.Clone(harvest.DefaultExtensions),
		},
		Auth: AuthConfig{
			Credentials: filepath.Join(dir, "credentials.json"),
			Token:       filepath.Join(dir, "token.json"),
			TokenStore:  TokenStoreFile,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, AppName), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the file at path, or the default location when path is empty.
// A missing default file yields DefaultConfig; a missing explicit path is
// an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return DefaultConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values a run cannot recover from.
func (c *Config) Validate() error {
	var errs []error
	if _, err := query.ParseTimeWindow(c.Search.NewerThan); err != nil {
		errs = append(errs, err)
	}
	if c.Search.PageSize < 0 || c.Search.PageSize > harvest.MaxPageSize {
		errs = append(errs, fmt.Errorf("page_size must be between 1 and %d", harvest.MaxPageSize))
	}
	if c.Search.Limit < 0 {
		errs = append(errs, errors.New("limit must not be negative"))
	}
	if c.Auth.Retries < 0 {
		errs = append(errs, errors.New("retries must not be negative"))
	}
	switch c.Auth.TokenStore {
	case "", TokenStoreFile, TokenStoreKeyring:
	default:
		errs = append(errs, fmt.Errorf("token_store must be %q or %q", TokenStoreFile, TokenStoreKeyring))
	}
	return errors.Join(errs...)
}

// Policy returns the attachment policy described by the output section.
func (c *Config) Policy() harvest.Policy {
	return harvest.Policy{
		OnlyPDFAndImages: !c.Output.AllTypes,
		Extensions:       slices.Clone(c.Output.Extensions),
	}
}

// QueryOptions returns the search intent described by the search section.
func (c *Config) QueryOptions() (query.Options, error) {
	window, err := query.ParseTimeWindow(c.Search.NewerThan)
	if err != nil {
		return query.Options{}, err
	}
	return query.Options{
		Predicate:         c.Search.Query,
		Keywords:          slices.Clone(c.Search.Keywords),
		RequireAttachment: true,
		Window:            window,
	}, nil
}

// Save writes c as YAML to path, or to the default location when path is
// empty. The file is readable by the owner only.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
