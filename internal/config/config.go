package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// History operations understood by the backend.
const (
	OperationMessages    = "get_message"
	OperationChatHistory = "fetchChatHistory"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile is one profile's config.toml.
type Profile struct {
	SelfID           string `toml:"self_id"`
	APIBaseURL       string `toml:"api_base_url"`
	SocketURL        string `toml:"socket_url"`
	Token            string `toml:"token,omitempty"`
	HistoryOperation string `toml:"history_operation"`
	ServerTimezone   string `toml:"server_timezone"`

	Connection Connection `toml:"connection"`
	Sync       Sync       `toml:"sync"`
	Typing     Typing     `toml:"typing"`
}

// Connection tunes the socket lifecycle.
type Connection struct {
	MaxAttempts       int      `toml:"max_attempts"`
	BaseDelay         Duration `toml:"base_delay"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	DialTimeout       Duration `toml:"dial_timeout"`
	WriteTimeout      Duration `toml:"write_timeout"`
}

// Sync tunes history refresh and reconciliation.
type Sync struct {
	RefreshInterval Duration `toml:"refresh_interval"`
	AliasGrace      Duration `toml:"alias_grace"`
	MatchWindow     Duration `toml:"match_window"`
}

// Typing tunes the typing indicator.
type Typing struct {
	Debounce Duration `toml:"debounce"`
	Clear    Duration `toml:"clear"`
}

// Defaults returns a profile with every tunable set. Identity and URLs are
// left empty.
func Defaults() Profile {
	return Profile{
		HistoryOperation: OperationMessages,
		ServerTimezone:   "UTC",
		Connection: Connection{
			MaxAttempts:       5,
			BaseDelay:         Duration{3 * time.Second},
			HeartbeatInterval: Duration{30 * time.Second},
			DialTimeout:       Duration{10 * time.Second},
			WriteTimeout:      Duration{5 * time.Second},
		},
		Sync: Sync{
			RefreshInterval: Duration{30 * time.Second},
			AliasGrace:      Duration{5 * time.Minute},
			MatchWindow:     Duration{2 * time.Minute},
		},
		Typing: Typing{
			Debounce: Duration{time.Second},
			Clear:    Duration{2 * time.Second},
		},
	}
}

// Validate reports every problem with the profile at once.
func (p *Profile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.SelfID) == "" {
		errs = append(errs, errors.New("self_id is required"))
	}
	if p.APIBaseURL == "" {
		errs = append(errs, errors.New("api_base_url is required"))
	}
	if p.SocketURL == "" {
		errs = append(errs, errors.New("socket_url is required"))
	}
	switch p.HistoryOperation {
	case OperationMessages, OperationChatHistory:
	default:
		errs = append(errs, fmt.Errorf("history_operation %q: want %q or %q", p.HistoryOperation, OperationMessages, OperationChatHistory))
	}
	if _, err := time.LoadLocation(p.ServerTimezone); err != nil {
		errs = append(errs, fmt.Errorf("server_timezone: %w", err))
	}
	if p.Connection.MaxAttempts < 1 {
		errs = append(errs, errors.New("connection.max_attempts must be at least 1"))
	}
	for name, d := range map[string]Duration{
		"connection.base_delay":         p.Connection.BaseDelay,
		"connection.heartbeat_interval": p.Connection.HeartbeatInterval,
		"connection.dial_timeout":       p.Connection.DialTimeout,
		"connection.write_timeout":      p.Connection.WriteTimeout,
		"sync.refresh_interval":         p.Sync.RefreshInterval,
		"sync.alias_grace":              p.Sync.AliasGrace,
		"sync.match_window":             p.Sync.MatchWindow,
		"typing.debounce":               p.Typing.Debounce,
		"typing.clear":                  p.Typing.Clear,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// Location returns the zone for naive server timestamps, UTC when unset or invalid.
func (p *Profile) Location() *time.Location {
	loc, err := time.LoadLocation(p.ServerTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return writeTOML(path, cfg)
}

// LoadProfile reads a profile config on top of Defaults and validates it.
func LoadProfile(path string) (*Profile, error) {
	p := Defaults()
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, fmt.Errorf("load profile config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load profile config: unknown keys %v", undecoded)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile config %s: %w", path, err)
	}
	return &p, nil
}

// SaveProfile writes a profile config with 0600 permissions.
func SaveProfile(path string, p *Profile) error {
	return writeTOML(path, p)
}

func writeTOML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
