// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	API() APIConfig
	Tree() TreeConfig
	Progress() ProgressConfig
	Cache() CacheConfig
	Server() ServerConfig
	Database() DatabaseConfig
	Auth() AuthConfig

	// CLI overrides
	SetAPIBaseURL(string)
	SetTreePath(string)
	SetProgressPath(string)
}

// Config holds the entire application configuration.
// Fields are exported for viper's decoder; callers go through the Interface getters.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	APICfg      APIConfig      `mapstructure:"api" yaml:"api"`
	TreeCfg     TreeConfig     `mapstructure:"tree" yaml:"tree"`
	ProgressCfg ProgressConfig `mapstructure:"progress" yaml:"progress"`
	CacheCfg    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	AuthCfg     AuthConfig     `mapstructure:"auth" yaml:"auth"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) API() APIConfig           { return c.APICfg }
func (c *Config) Tree() TreeConfig         { return c.TreeCfg }
func (c *Config) Progress() ProgressConfig { return c.ProgressCfg }
func (c *Config) Cache() CacheConfig       { return c.CacheCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Auth() AuthConfig         { return c.AuthCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetAPIBaseURL(u string)   { c.APICfg.BaseURL = u }
func (c *Config) SetTreePath(p string)     { c.TreeCfg.Path = p }
func (c *Config) SetProgressPath(p string) { c.ProgressCfg.Path = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
	// Color enables ANSI level colors in the console format.
	Color bool `mapstructure:"color" yaml:"color"`
}

// APIConfig configures the client side of the skill-tree API.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst           int           `mapstructure:"burst" yaml:"burst"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
	Token           string        `mapstructure:"token" yaml:"token"`
	PlayerID        string        `mapstructure:"player_id" yaml:"player_id"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// TreeConfig controls where the tree comes from and how strictly it is checked.
type TreeConfig struct {
	// Path is a local tree document. When empty the tree is fetched from the API.
	Path string `mapstructure:"path" yaml:"path"`
	// FallbackPath is used when the primary tree fails validation.
	FallbackPath string `mapstructure:"fallback_path" yaml:"fallback_path"`
	// RootNodeID is the designated root, unlocked by convention.
	RootNodeID string `mapstructure:"root_node_id" yaml:"root_node_id"`
	// Costs above these thresholds are reported as warnings.
	MaxReputationCost int `mapstructure:"max_reputation_cost" yaml:"max_reputation_cost"`
	MaxSkillPointCost int `mapstructure:"max_skill_point_cost" yaml:"max_skill_point_cost"`
}

// ProgressConfig controls local progress persistence.
type ProgressConfig struct {
	// Path is a local progress document. When empty progress goes through the API.
	Path string `mapstructure:"path" yaml:"path"`
	// CacheKey identifies this player's entry in the local cache.
	CacheKey string `mapstructure:"cache_key" yaml:"cache_key"`
}

// CacheConfig configures the optional client-side progress cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ServerConfig configures the reference API server.
type ServerConfig struct {
	Addr                string        `mapstructure:"addr" yaml:"addr"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ReadHeaderTimeout   time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	StartingReputation  int           `mapstructure:"starting_reputation" yaml:"starting_reputation"`
	StartingSkillPoints int           `mapstructure:"starting_skill_points" yaml:"starting_skill_points"`
	ItemsPath           string        `mapstructure:"items_path" yaml:"items_path"`
	TLS                 TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig selects how the server terminates TLS. With SelfSigned set a
// throwaway development CA is minted at startup and CertFile/KeyFile are
// ignored.
type TLSConfig struct {
	CertFile   string   `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile    string   `mapstructure:"key_file" yaml:"key_file"`
	SelfSigned bool     `mapstructure:"self_signed" yaml:"self_signed"`
	Hosts      []string `mapstructure:"hosts" yaml:"hosts"`
	// CAOut receives the PEM encoded development CA so clients can trust it.
	CAOut string `mapstructure:"ca_out" yaml:"ca_out"`
}

// Enabled reports whether the server should speak TLS.
func (t TLSConfig) Enabled() bool {
	return t.SelfSigned || t.CertFile != ""
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// AuthConfig configures bearer-token player identity on the server.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Secret  string `mapstructure:"secret" yaml:"secret"`
	Issuer  string `mapstructure:"issuer" yaml:"issuer"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "skilltree")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.color", true)

	// -- API --
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 2)
	v.SetDefault("api.max_retry_elapsed", "20s")

	// -- Tree --
	v.SetDefault("tree.root_node_id", "core")
	v.SetDefault("tree.max_reputation_cost", 500)
	v.SetDefault("tree.max_skill_point_cost", 10)

	// -- Progress --
	v.SetDefault("progress.cache_key", "skill-progress")

	// -- Cache --
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", "~/.skilltree/cache.db")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.starting_reputation", 0)
	v.SetDefault("server.starting_skill_points", 1)
	v.SetDefault("server.tls.self_signed", false)
	v.SetDefault("server.tls.hosts", []string{"localhost", "127.0.0.1"})

	// -- Auth --
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "skilltree")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "SKILLTREE_DATABASE_URL")
	_ = v.BindEnv("auth.secret", "SKILLTREE_AUTH_SECRET")
	_ = v.BindEnv("api.token", "SKILLTREE_API_TOKEN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the secret if Unmarshal didn't pick it up
	if cfg.AuthCfg.Enabled && cfg.AuthCfg.Secret == "" {
		cfg.AuthCfg.Secret = os.Getenv("SKILLTREE_AUTH_SECRET")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every file path setting.
func (c *Config) expandPaths() error {
	paths := []*string{
		&c.TreeCfg.Path,
		&c.TreeCfg.FallbackPath,
		&c.ProgressCfg.Path,
		&c.CacheCfg.Path,
		&c.ServerCfg.ItemsPath,
		&c.ServerCfg.TLS.CertFile,
		&c.ServerCfg.TLS.KeyFile,
		&c.ServerCfg.TLS.CAOut,
		&c.LoggerCfg.LogFile,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.TreeCfg.RootNodeID == "" {
		return fmt.Errorf("tree.root_node_id is a required configuration field")
	}
	if c.TreeCfg.MaxReputationCost < 0 || c.TreeCfg.MaxSkillPointCost < 0 {
		return fmt.Errorf("tree cost thresholds must not be negative")
	}
	if err := c.APICfg.Validate(); err != nil {
		return fmt.Errorf("api configuration invalid: %w", err)
	}
	if c.CacheCfg.Enabled && c.CacheCfg.Path == "" {
		return fmt.Errorf("cache.path is required when the cache is enabled")
	}
	if err := c.AuthCfg.Validate(); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}
	if c.ServerCfg.StartingReputation < 0 || c.ServerCfg.StartingSkillPoints < 0 {
		return fmt.Errorf("server starting currencies must not be negative")
	}
	if tls := c.ServerCfg.TLS; !tls.SelfSigned && (tls.CertFile == "") != (tls.KeyFile == "") {
		return fmt.Errorf("server.tls.cert_file and server.tls.key_file must be set together")
	}
	return nil
}

// Validate checks the API client configuration.
func (a *APIConfig) Validate() error {
	if a.RateLimit <= 0 {
		return fmt.Errorf("api.rate_limit must be positive")
	}
	if a.Burst <= 0 {
		return fmt.Errorf("api.burst must be a positive integer")
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be a positive duration")
	}
	return nil
}

// Validate checks the auth configuration.
func (a *AuthConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	if len(a.Secret) < 16 {
		return fmt.Errorf("auth secret is required and must be at least 16 bytes. Ensure SKILLTREE_AUTH_SECRET is set")
	}
	return nil
}
