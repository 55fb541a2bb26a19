package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config models tsproxy.yml. It is built once at startup and passed down
// explicitly; nothing in the engine reads the environment.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Remote struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"remote"`
	Workday struct {
		StartTime string `yaml:"start_time"`
		EndTime   string `yaml:"end_time"`
	} `yaml:"workday"`
	Dispatch struct {
		MaxConcurrency int `yaml:"max_concurrency"`
	} `yaml:"dispatch"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

const clockLayout = "15:04:05"

// Validate ensures the config is usable by the remote client and the
// payload builders.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		return fmt.Errorf("config.remote.base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config.remote.base_url must be an absolute URL, got %q", c.Remote.BaseURL)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("config.remote.timeout must be positive")
	}
	if _, err := time.Parse(clockLayout, c.Workday.StartTime); err != nil {
		return fmt.Errorf("config.workday.start_time must be HH:MM:SS, got %q", c.Workday.StartTime)
	}
	if _, err := time.Parse(clockLayout, c.Workday.EndTime); err != nil {
		return fmt.Errorf("config.workday.end_time must be HH:MM:SS, got %q", c.Workday.EndTime)
	}
	if c.Dispatch.MaxConcurrency < 0 {
		return fmt.Errorf("config.dispatch.max_concurrency must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of (debug, info, warn, error), got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config.log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// Default returns the built-in configuration. The remote base URL has no
// default and must be supplied.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML overlays raw YAML onto the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Keys bound through viper. Each maps onto a YAML path of Config.
var keys = []string{
	"server.addr",
	"server.cors_origins",
	"remote.base_url",
	"remote.timeout",
	"workday.start_time",
	"workday.end_time",
	"dispatch.max_concurrency",
	"log.level",
	"log.format",
}

// BindEnv registers the TSP_* variables plus the historical names
// (URL_TALENTA, START_TIME, END_TIME, PORT) on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("TSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("remote.base_url", "TSP_REMOTE_BASE_URL", "URL_TALENTA")
	_ = v.BindEnv("workday.start_time", "TSP_WORKDAY_START_TIME", "START_TIME")
	_ = v.BindEnv("workday.end_time", "TSP_WORKDAY_END_TIME", "END_TIME")
	_ = v.BindEnv("port", "TSP_PORT", "PORT")
}

// Resolve layers defaults, an optional YAML file named by the "config" key
// and any values set in v (env or flags), then validates.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if path := v.GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config yaml: %w", err)
		}
	}
	for _, key := range keys {
		if !v.IsSet(key) {
			continue
		}
		switch key {
		case "server.addr":
			cfg.Server.Addr = v.GetString(key)
		case "server.cors_origins":
			cfg.Server.CORSOrigins = v.GetStringSlice(key)
		case "remote.base_url":
			cfg.Remote.BaseURL = v.GetString(key)
		case "remote.timeout":
			cfg.Remote.Timeout = v.GetDuration(key)
		case "workday.start_time":
			cfg.Workday.StartTime = v.GetString(key)
		case "workday.end_time":
			cfg.Workday.EndTime = v.GetString(key)
		case "dispatch.max_concurrency":
			cfg.Dispatch.MaxConcurrency = v.GetInt(key)
		case "log.level":
			cfg.Log.Level = v.GetString(key)
		case "log.format":
			cfg.Log.Format = v.GetString(key)
		}
	}
	if port := v.GetString("port"); port != "" && !v.IsSet("server.addr") {
		cfg.Server.Addr = ":" + port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:3000
  cors_origins: ["*"]

remote:
  base_url: ""
  timeout: 30s

workday:
  start_time: "09:00:00"
  end_time: "17:00:00"

dispatch:
  max_concurrency: 0

log:
  level: info
  format: json
`
