package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models trackly.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		Issuer    string        `yaml:"issuer"`
	} `yaml:"auth"`
	Features     Features `yaml:"features"`
	IssueTracker struct {
		BaseURL  string `yaml:"base_url"`
		User     string `yaml:"user"`
		APIToken string `yaml:"api_token"`
	} `yaml:"issue_tracker"`
	Notifications struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		Webhooks     []Webhook     `yaml:"webhooks"`
		Slack        struct {
			Token   string   `yaml:"token"`
			Channel string   `yaml:"channel"`
			Events  []string `yaml:"events"`
		} `yaml:"slack"`
	} `yaml:"notifications"`
	Bootstrap struct {
		Admin struct {
			Name     string `yaml:"name"`
			Email    string `yaml:"email"`
			Password string `yaml:"password"`
		} `yaml:"admin"`
	} `yaml:"bootstrap"`
	Statuses []StatusSeed `yaml:"statuses"`
}

// Features are the defaults used until an admin saves settings.
type Features struct {
	InactivityAlerts  bool `yaml:"inactivity_alerts"`
	PushNotifications bool `yaml:"push_notifications"`
	JiraIntegration   bool `yaml:"jira_integration"`
	KanbanEnabled     bool `yaml:"kanban_enabled"`
}

type Webhook struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

type StatusSeed struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with trackly init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns Default() when the workspace has no config file.
func LoadOrDefault(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config.auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.IssueTracker.BaseURL != "" {
		if u, err := url.Parse(c.IssueTracker.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.issue_tracker.base_url must be an absolute URL")
		}
	}
	if c.Notifications.PollInterval < 0 {
		return fmt.Errorf("config.notifications.poll_interval must be >= 0")
	}
	for i, wh := range c.Notifications.Webhooks {
		if u, err := url.Parse(wh.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %d has invalid url %q", i, wh.URL)
		}
	}
	if c.Notifications.Slack.Token != "" && c.Notifications.Slack.Channel == "" {
		return fmt.Errorf("config.notifications.slack.channel is required with a token")
	}
	admin := c.Bootstrap.Admin
	if admin.Email != "" && admin.Password == "" {
		return fmt.Errorf("config.bootstrap.admin.password is required with an email")
	}
	seen := map[string]bool{}
	for _, st := range c.Statuses {
		key := strings.ToLower(strings.TrimSpace(st.Key))
		if key == "" {
			return fmt.Errorf("status seed has empty key")
		}
		if seen[key] {
			return fmt.Errorf("status seed %s is duplicated", key)
		}
		seen[key] = true
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "trackly.yml")
}

// GenerateDefault returns default config YAML with the given JWT secret.
func GenerateDefault(secret string) string {
	return fmt.Sprintf(defaultTemplate, secret)
}

// Default returns the config used when no trackly.yml exists.
// The JWT secret is a development value and Validate accepts it.
func Default() *Config {
	cfg, err := FromYAML([]byte(GenerateDefault("trackly-development-secret")))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

auth:
  jwt_secret: %s
  token_ttl: 12h
  issuer: trackly

features:
  inactivity_alerts: true
  push_notifications: false
  jira_integration: false
  kanban_enabled: true

issue_tracker:
  base_url: ""
  user: ""
  api_token: ""

notifications:
  poll_interval: 2s
  webhooks: []
  slack:
    token: ""
    channel: ""
    events: [monthlyReports.created, monthlyReports.updated]

bootstrap:
  admin:
    name: Administrator
    email: ""
    password: ""

statuses:
  - key: todo
    label: To do
  - key: doing
    label: In progress
  - key: done
    label: Done
`
