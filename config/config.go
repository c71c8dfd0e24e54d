// Package config loads the mailing-set server configuration described
// in spec §6, using the teacher's TOML library
// (github.com/BurntSushi/toml). This package is the "external
// collaborator" of spec §1: the core packages (grammar, universe,
// resolver, seteval, tagger, smtpd, relay) never import it directly —
// cmd/mailingset reads a Config here and passes plain values into the
// core's constructors.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// IncomingConfig is spec §6's "incoming" block.
type IncomingConfig struct {
	Domain     string   `toml:"domain"`
	Port       int      `toml:"port"`
	AcceptFrom []string `toml:"accept_from"` // optional CIDR list
}

// OutgoingConfig is spec §6's "outgoing" block.
type OutgoingConfig struct {
	Server         string `toml:"server"`
	Port           int    `toml:"port"`
	EnvelopeSender string `toml:"envelope_sender"`
	ArchiveAddr    string `toml:"archive_addr"` // optional
	Concurrency    int    `toml:"concurrency"`  // optional, bounded relay worker pool size
}

// DataConfig is spec §6's "data" block.
type DataConfig struct {
	ListsDir    string `toml:"lists_dir"`
	SymbolsFile string `toml:"symbols_file"`
}

// LoggingConfig configures the logger package.
type LoggingConfig struct {
	Output string `toml:"output"` // "stdout", "stderr", "syslog", or a file path
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// MetricsConfig configures the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"` // e.g. ":9110"
}

// TimeoutsConfig is the additive timeouts block of SPEC_FULL.md's
// supplemented-features section, surfacing spec §5's timeouts as
// configuration instead of hardcoding them. Only IdleTimeout is applied
// to the SMTP server; SessionTimeout is parsed by GetSessionTimeout but
// no overall session limit is enforced.
type TimeoutsConfig struct {
	IdleTimeout    string `toml:"idle_timeout"`    // per-command idle timeout, default 5m
	SessionTimeout string `toml:"session_timeout"` // overall session timeout, default 30m
	MaxMessageSize int64  `toml:"max_message_size"`
}

// GetIdleTimeout parses IdleTimeout with a 5 minute default (spec §5).
func (t TimeoutsConfig) GetIdleTimeout() (time.Duration, error) {
	if t.IdleTimeout == "" {
		return 5 * time.Minute, nil
	}
	return time.ParseDuration(t.IdleTimeout)
}

// GetSessionTimeout parses SessionTimeout with a 30 minute default.
func (t TimeoutsConfig) GetSessionTimeout() (time.Duration, error) {
	if t.SessionTimeout == "" {
		return 30 * time.Minute, nil
	}
	return time.ParseDuration(t.SessionTimeout)
}

// Config is the top-level structure spec §6 requires the core to be
// able to consume.
type Config struct {
	Incoming IncomingConfig `toml:"incoming"`
	Outgoing OutgoingConfig `toml:"outgoing"`
	Data     DataConfig     `toml:"data"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
}

// Load reads and parses a TOML config file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the required fields spec §6 names.
func (c *Config) Validate() error {
	if c.Incoming.Domain == "" {
		return fmt.Errorf("config: incoming.domain is required")
	}
	if c.Incoming.Port == 0 {
		return fmt.Errorf("config: incoming.port is required")
	}
	if c.Outgoing.Server == "" {
		return fmt.Errorf("config: outgoing.server is required")
	}
	if c.Outgoing.EnvelopeSender == "" {
		return fmt.Errorf("config: outgoing.envelope_sender is required")
	}
	if c.Data.ListsDir == "" {
		return fmt.Errorf("config: data.lists_dir is required")
	}
	if c.Data.SymbolsFile == "" {
		return fmt.Errorf("config: data.symbols_file is required")
	}
	return nil
}
