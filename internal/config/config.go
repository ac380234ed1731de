// Package config loads ledctl and ledd configuration from YAML or TOML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"example.com/ledgate/internal/profile"
	"example.com/ledgate/internal/settings"
)

type LogConfig struct {
	Directory  string `yaml:"directory" toml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

type Config struct {
	Controller     string    `yaml:"controller" toml:"controller"`
	Channel        int       `yaml:"channel" toml:"channel"`
	SampleRateHz   float64   `yaml:"sampleRateHz" toml:"sampleRateHz"`
	AllowHighSpeed *bool     `yaml:"allowHighSpeed" toml:"allowHighSpeed"`
	Port           int       `yaml:"port" toml:"port"`
	StorageDir     string    `yaml:"storageDir" toml:"storageDir"`
	Database       string    `yaml:"database" toml:"database"`
	EventLog       string    `yaml:"eventLog" toml:"eventLog"`
	MaxUploadMB    int64     `yaml:"maxUploadMB" toml:"maxUploadMB"`
	Logs           LogConfig `yaml:"logs" toml:"logs"`
}

// Load reads path, picking the decoder by extension (.toml, otherwise YAML),
// then fills defaults and resolves relative paths against the file's
// directory.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	cfg.StorageDir = resolvePath(cfg.StorageDir)
	cfg.Database = resolvePath(cfg.Database)
	cfg.EventLog = resolvePath(cfg.EventLog)
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	if err := cfg.applyDefaults(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default is the configuration used when no file is given.
func Default() Config {
	var cfg Config
	_ = cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() error {
	if c.Controller == "" {
		c.Controller = profile.WS2811.Slug()
	}
	if _, err := profile.ParseController(c.Controller); err != nil {
		return err
	}
	if c.SampleRateHz < 0 {
		return fmt.Errorf("sampleRateHz must not be negative")
	}
	if c.SampleRateHz == 0 {
		c.SampleRateHz = 24_000_000
	}
	if c.AllowHighSpeed == nil {
		on := true
		c.AllowHighSpeed = &on
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.StorageDir == "" {
		c.StorageDir = filepath.Join(".", "data")
	}
	if c.Database == "" {
		c.Database = filepath.Join(c.StorageDir, "ledgate.db")
	}
	if c.EventLog == "" {
		c.EventLog = filepath.Join(c.StorageDir, "events.jsonl")
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 512
	}
	if c.Logs.Directory == "" {
		c.Logs.Directory = filepath.Join(c.StorageDir, "logs")
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = 25
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = 7
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = 5
	}
	return nil
}

// Settings converts the analyzer part of the configuration.
func (c Config) Settings() (settings.Settings, error) {
	ctrl, err := profile.ParseController(c.Controller)
	if err != nil {
		return settings.Settings{}, err
	}
	return settings.Settings{Channel: c.Channel, Controller: ctrl}, nil
}

func (c Config) HighSpeedAllowed() bool {
	return c.AllowHighSpeed == nil || *c.AllowHighSpeed
}
