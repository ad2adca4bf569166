package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.tgchats/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	LogLevel       string   `toml:"log_level"`
	Telegram       Telegram `toml:"telegram"`
	Media          Media    `toml:"media"`
	Sync           Sync     `toml:"sync"`
}

// Telegram holds the API credentials from my.telegram.org.
type Telegram struct {
	AppID   int    `toml:"app_id"`
	AppHash string `toml:"app_hash"`
	DC      int    `toml:"dc"`
}

// Media paces thumbnail resolution.
type Media struct {
	ScrapeBaseURL string   `toml:"scrape_base_url"`
	ScrapeRate    float64  `toml:"scrape_rate"` // requests per second
	PhotoDebounce Duration `toml:"photo_debounce"`
	MediaDebounce Duration `toml:"media_debounce"`
	Pause         Duration `toml:"pause"`
	TaskTimeout   Duration `toml:"task_timeout"` // 0 = unbounded
	Concurrency   int      `toml:"concurrency"`
}

type Sync struct {
	DialogLimit int `toml:"dialog_limit"`
}

// Duration is a time.Duration written as a string ("1s", "250ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Telegram: Telegram{DC: 2},
		Media: Media{
			ScrapeBaseURL: "https://t.me",
			ScrapeRate:    2,
			PhotoDebounce: Duration{time.Second},
			MediaDebounce: Duration{500 * time.Millisecond},
			Pause:         Duration{time.Second},
			Concurrency:   8,
		},
		Sync: Sync{DialogLimit: 100},
	}
}

// Load reads config from the given path over Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate reports settings the daemon cannot start without.
func (c *Config) Validate() error {
	if c.Telegram.AppID == 0 || c.Telegram.AppHash == "" {
		return errors.New("telegram.app_id and telegram.app_hash must be set")
	}
	if c.Sync.DialogLimit <= 0 {
		return fmt.Errorf("sync.dialog_limit must be positive, got %d", c.Sync.DialogLimit)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
