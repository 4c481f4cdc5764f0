package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Agent       AgentConfig               `json:"agent"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	ScratchDir        string `json:"scratch_dir"`
	UploadTTL         int    `json:"upload_ttl_minutes"`
	CleanupInterval   int    `json:"cleanup_interval_minutes"`
	MaxUploadBytes    int64  `json:"max_upload_bytes"`
	VisitorQuotaBytes int64  `json:"visitor_quota_bytes"`
	VisitorTTL        int    `json:"visitor_ttl_minutes"`
}

// AgentConfig carries the defaults for the reasoning agent. MaxSteps may be
// overridden per chat turn within [MinAgentSteps, MaxAgentSteps].
type AgentConfig struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	MaxSteps       int     `json:"max_steps"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	RequestTimeout int     `json:"request_timeout_seconds"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// Agent step bounds exposed through the options endpoint.
const (
	MinAgentSteps     = 5
	MaxAgentSteps     = 20
	DefaultAgentSteps = 10
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider must be configured")
	}
	if cfg.Agent.Provider == "" {
		return nil, fmt.Errorf("agent provider must be configured")
	}
	if _, ok := cfg.Providers[cfg.Agent.Provider]; !ok {
		return nil, fmt.Errorf("agent provider %q not present in providers", cfg.Agent.Provider)
	}

	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(absPath))
	cfg.resolveSecrets()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.ScratchDir == "" {
		c.BasicConfig.ScratchDir = "./temp"
	}
	if c.BasicConfig.MaxUploadBytes <= 0 {
		c.BasicConfig.MaxUploadBytes = 10 << 20
	}
	if c.BasicConfig.VisitorQuotaBytes <= 0 {
		c.BasicConfig.VisitorQuotaBytes = 50 << 20
	}
	if c.Agent.MaxSteps < MinAgentSteps || c.Agent.MaxSteps > MaxAgentSteps {
		c.Agent.MaxSteps = DefaultAgentSteps
	}
	if c.Agent.Temperature <= 0 {
		c.Agent.Temperature = 0.1
	}
	if c.Agent.MaxTokens <= 0 {
		c.Agent.MaxTokens = 32768
	}
	if c.Agent.RequestTimeout <= 0 {
		c.Agent.RequestTimeout = 60
	}
	if c.Agent.Model == "" {
		if prov, ok := c.Providers[c.Agent.Provider]; ok {
			c.Agent.Model = prov.Model
		}
	}
}

func (c *Config) resolvePaths(baseDir string) {
	if !filepath.IsAbs(c.BasicConfig.ScratchDir) {
		c.BasicConfig.ScratchDir = filepath.Join(baseDir, c.BasicConfig.ScratchDir)
	}
	for name, db := range c.Databases {
		if db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(baseDir, db.DSN)
			c.Databases[name] = db
		}
	}
}

// resolveSecrets fills empty provider API keys from <NAME>_API_KEY env vars
// so keys never have to live in the config file.
func (c *Config) resolveSecrets() {
	for name, prov := range c.Providers {
		if prov.APIKey != "" {
			continue
		}
		envKey := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_API_KEY"
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			prov.APIKey = v
			c.Providers[name] = prov
		}
	}
}

// ClampSteps bounds a requested reasoning-step cap, falling back to the
// configured default when the request is zero.
func (c *Config) ClampSteps(requested int) int {
	if requested == 0 {
		return c.Agent.MaxSteps
	}
	if requested < MinAgentSteps {
		return MinAgentSteps
	}
	if requested > MaxAgentSteps {
		return MaxAgentSteps
	}
	return requested
}
