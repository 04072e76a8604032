package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/matheus3301/chatlist/internal/chatlist"
)

// Config represents the global ~/.chatlist/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Profile        Profile  `toml:"profile"`
	ChatList       ChatList `toml:"chatlist"`
	Outbox         Outbox   `toml:"outbox"`
}

// Profile is the user the daemon signs in as on startup. An empty UserID
// leaves the daemon signed out until a client calls SignIn.
type Profile struct {
	UserID      string `toml:"user_id"`
	DisplayName string `toml:"display_name"`
}

// ChatList holds the placeholders used by the reconciler.
type ChatList struct {
	AttachmentText  string `toml:"attachment_text"`
	GroupNameFormat string `toml:"group_name_format"`
}

// Outbox tunes the outgoing message sender.
type Outbox struct {
	PollIntervalMs int     `toml:"poll_interval_ms"`
	SendsPerSecond float64 `toml:"sends_per_second"`
}

// PollInterval returns the poll interval as a duration.
func (o Outbox) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalMs) * time.Millisecond
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		ChatList: ChatList{
			AttachmentText:  chatlist.DefaultAttachmentText,
			GroupNameFormat: chatlist.DefaultGroupNameFormat,
		},
		Outbox: Outbox{
			PollIntervalMs: 500,
			SendsPerSecond: 5,
		},
	}
}

// Load reads config from the given path. Keys missing from the file keep
// their default values. A missing file is reported as an error wrapping
// fs.ErrNotExist; use LoadOrDefault to ignore it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	if f := c.ChatList.GroupNameFormat; f != "" && !chatlist.ValidGroupNameFormat(f) {
		return fmt.Errorf("chatlist.group_name_format must contain exactly one %%s, got %q", f)
	}
	if c.Outbox.PollIntervalMs < 0 {
		return fmt.Errorf("outbox.poll_interval_ms must not be negative, got %d", c.Outbox.PollIntervalMs)
	}
	if c.Outbox.SendsPerSecond < 0 {
		return fmt.Errorf("outbox.sends_per_second must not be negative, got %v", c.Outbox.SendsPerSecond)
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
