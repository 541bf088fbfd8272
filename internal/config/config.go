// Package config provides YAML-based configuration loading for the autodialer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Placeholder channel credentials. A configuration made only of these runs
// in demo mode without any network I/O.
const (
	PlaceholderAppID = "default"
	PlaceholderKey   = "default-key"
)

// Environment variables that override or fill in file settings.
const (
	EnvBackendURL    = "AUTODIALER_API_URL"
	EnvPusherAppID   = "PUSHER_APP_ID"
	EnvPusherCluster = "PUSHER_CLUSTER"
	EnvPusherKey     = "PUSHER_KEY"
	EnvWAFToken      = "AUTODIALER_WAF_TOKEN"
)

// Config is the top-level autodialer configuration, loaded from autodialer.yaml.
type Config struct {
	Tenant          string          `yaml:"tenant"`
	Token           string          `yaml:"token"`
	BackendURL      string          `yaml:"backend_url"`
	CampaignID      string          `yaml:"campaign_id"`
	DialIn          bool            `yaml:"dial_in"`
	CallerChannelID string          `yaml:"caller_channel_id"`
	WAFToken        string          `yaml:"waf_token"`
	Channels        []ChannelConfig `yaml:"channels"`
	Timeouts        TimeoutConfig   `yaml:"timeouts"`
	Voice           VoiceConfig     `yaml:"voice"`
	Audit           AuditConfig     `yaml:"audit"`
	Notify          NotifyConfig    `yaml:"notify"`
	Server          ServerConfig    `yaml:"server"`
}

// ChannelConfig is one realtime channel candidate.
type ChannelConfig struct {
	AppID   string `yaml:"app_id"`
	Cluster string `yaml:"cluster"`
	Key     string `yaml:"key"`
	// Host overrides the websocket endpoint derived from the cluster,
	// e.g. "ws://127.0.0.1:6001" for a self-hosted server.
	Host string `yaml:"host"`
}

// TimeoutConfig holds the two bounded waits of a call session.
type TimeoutConfig struct {
	Attempt     time.Duration `yaml:"attempt"`
	Unavailable time.Duration `yaml:"unavailable"`
}

// VoiceConfig controls the voice transport device.
type VoiceConfig struct {
	Debug        bool   `yaml:"debug"`
	SoundBaseURL string `yaml:"sound_base_url"`
	Simulate     bool   `yaml:"simulate"`
}

// AuditConfig selects the optional call log store. An empty driver disables it.
type AuditConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// NotifyConfig holds webhook targets for call outcome notifications.
type NotifyConfig struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// ServerConfig holds settings for the HTTP bridge.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadEnv loads variables from the given dotenv files into the process
// environment. Missing files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %s: %w", f, err)
		}
	}
	return nil
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Demo reports whether every channel candidate carries placeholder credentials.
func (c *Config) Demo() bool {
	if len(c.Channels) == 0 {
		return true
	}
	for _, ch := range c.Channels {
		if !ch.Placeholder() {
			return false
		}
	}
	return true
}

// Placeholder reports whether the candidate uses placeholder credentials.
func (c ChannelConfig) Placeholder() bool {
	return c.Key == PlaceholderKey || c.AppID == PlaceholderAppID
}

// applyEnv fills settings from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv(EnvWAFToken); v != "" && c.WAFToken == "" {
		c.WAFToken = v
	}
	if len(c.Channels) == 0 && os.Getenv(EnvPusherKey) != "" {
		c.Channels = []ChannelConfig{{
			AppID:   os.Getenv(EnvPusherAppID),
			Cluster: os.Getenv(EnvPusherCluster),
			Key:     os.Getenv(EnvPusherKey),
		}}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.BackendURL == "" {
		c.BackendURL = "http://localhost:5001"
	}
	c.BackendURL = strings.TrimRight(c.BackendURL, "/")
	if c.CallerChannelID == "" {
		c.CallerChannelID = NewCallerChannelID(time.Now())
	}
	if len(c.Channels) == 0 {
		c.Channels = []ChannelConfig{{AppID: PlaceholderAppID, Cluster: "us2", Key: PlaceholderKey}}
	}
	for i := range c.Channels {
		if c.Channels[i].AppID == "" {
			c.Channels[i].AppID = PlaceholderAppID
		}
		if c.Channels[i].Cluster == "" {
			c.Channels[i].Cluster = "us2"
		}
		if c.Channels[i].Key == "" {
			c.Channels[i].Key = PlaceholderKey
		}
	}
	if c.Timeouts.Attempt == 0 {
		c.Timeouts.Attempt = 10 * time.Second
	}
	if c.Timeouts.Unavailable == 0 {
		c.Timeouts.Unavailable = 30 * time.Second
	}
	if c.Audit.Driver == "sqlite" && c.Audit.DSN == "" {
		c.Audit.DSN = "autodialer.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Tenant == "" || c.Token == "" {
		errs = append(errs, "missing required attributes: tenant, token")
	}
	if c.Timeouts.Attempt < 0 {
		errs = append(errs, "timeouts.attempt must not be negative")
	}
	if c.Timeouts.Unavailable < 0 {
		errs = append(errs, "timeouts.unavailable must not be negative")
	}
	switch c.Audit.Driver {
	case "", "sqlite":
	case "mysql":
		if c.Audit.DSN == "" {
			errs = append(errs, "audit.dsn is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("audit.driver %q is not supported", c.Audit.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewCallerChannelID generates an opaque correlation id for a caller.
func NewCallerChannelID(now time.Time) string {
	return fmt.Sprintf("caller-%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}
