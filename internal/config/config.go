package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stage selects environment-dependent behaviour such as the dev login route.
type Stage string

const (
	StageLocal       Stage = "Local"
	StageDevelopment Stage = "Development"
	StageProduction  Stage = "Production"
)

// ParseStage accepts the full names and the Dev/Prod short forms.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return StageLocal, nil
	case "dev", "development":
		return StageDevelopment, nil
	case "prod", "production":
		return StageProduction, nil
	}
	return "", fmt.Errorf("invalid stage %q (want Local, Development or Production)", s)
}

func (s *Stage) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Config models crewline.yml.
type Config struct {
	Stage Stage `yaml:"stage" json:"stage"`
	Crew  struct {
		MaxPerMission int `yaml:"max_per_mission" json:"max_per_mission"`
	} `yaml:"crew" json:"crew"`
	Server struct {
		Addr           string `yaml:"addr" json:"addr"`
		BasePath       string `yaml:"base_path" json:"base_path"`
		TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
		BodyLimitBytes int64  `yaml:"body_limit_bytes" json:"body_limit_bytes"`
	} `yaml:"server" json:"server"`
	Auth struct {
		TokenTTLHours int `yaml:"token_ttl_hours" json:"token_ttl_hours"`
	} `yaml:"auth" json:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	MaxRetries     int      `yaml:"max_retries" json:"max_retries,omitempty"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	if w.Enabled != nil && !*w.Enabled {
		return false
	}
	return strings.TrimSpace(w.URL) != ""
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := ParseStage(string(c.Stage)); err != nil {
		return err
	}
	if c.Crew.MaxPerMission < 0 {
		return fmt.Errorf("config.crew.max_per_mission must be >= 0")
	}
	if c.Server.TimeoutSeconds < 0 {
		return fmt.Errorf("config.server.timeout_seconds must be >= 0")
	}
	if c.Server.BodyLimitBytes < 0 {
		return fmt.Errorf("config.server.body_limit_bytes must be >= 0")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTLHours < 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must be >= 0")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("webhooks[%d].url must be an http(s) url", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// RequestTimeout is the per-request deadline applied by the HTTP server.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// TokenTTL is the lifetime of minted bearer tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crewline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with crew config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent from
// data keep their default values.
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

const defaultTemplate = `stage: Local

crew:
  max_per_mission: 4

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  timeout_seconds: 30
  body_limit_bytes: 1048576

auth:
  token_ttl_hours: 168

webhooks: []
`
