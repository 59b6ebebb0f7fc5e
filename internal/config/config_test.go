// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "skilltree", cfg.Logger().ServiceName)
	assert.Equal(t, "core", cfg.Tree().RootNodeID)
	assert.Equal(t, 15*time.Second, cfg.API().Timeout)
	assert.Equal(t, 5.0, cfg.API().RateLimit)
	assert.Equal(t, ":8080", cfg.Server().Addr)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.Server().TLS.Hosts)
	assert.False(t, cfg.Cache().Enabled)
	assert.False(t, cfg.Auth().Enabled)
	assert.Equal(t, "skill-progress", cfg.Progress().CacheKey)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		// Start with a valid default config.
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate(), "A valid config should not produce a validation error")

		missingRoot := *cfg
		missingRoot.TreeCfg.RootNodeID = ""
		err := missingRoot.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tree.root_node_id is a required configuration field")

		negativeThreshold := *cfg
		negativeThreshold.TreeCfg.MaxSkillPointCost = -1
		err = negativeThreshold.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tree cost thresholds must not be negative")

		cacheWithoutPath := *cfg
		cacheWithoutPath.CacheCfg = CacheConfig{Enabled: true}
		err = cacheWithoutPath.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.path is required")

		halfTLS := *cfg
		halfTLS.ServerCfg.TLS = TLSConfig{CertFile: "/etc/skilltree/cert.pem"}
		err = halfTLS.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")

		selfSigned := *cfg
		selfSigned.ServerCfg.TLS = TLSConfig{SelfSigned: true, CertFile: "ignored.pem"}
		assert.NoError(t, selfSigned.Validate())
		assert.True(t, selfSigned.ServerCfg.TLS.Enabled())
		assert.False(t, cfg.ServerCfg.TLS.Enabled())
	})

	t.Run("API Validation", func(t *testing.T) {
		valid := APIConfig{RateLimit: 1, Burst: 1, Timeout: time.Second}
		assert.NoError(t, valid.Validate())

		zeroRate := valid
		zeroRate.RateLimit = 0
		err := zeroRate.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api.rate_limit must be positive")

		zeroBurst := valid
		zeroBurst.Burst = 0
		err = zeroBurst.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api.burst must be a positive integer")

		noTimeout := valid
		noTimeout.Timeout = 0
		err = noTimeout.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api.timeout must be a positive duration")
	})

	t.Run("Auth Validation", func(t *testing.T) {
		disabled := AuthConfig{Enabled: false}
		assert.NoError(t, disabled.Validate(), "disabled auth config should always be valid")

		shortSecret := AuthConfig{Enabled: true, Secret: "short"}
		err := shortSecret.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SKILLTREE_AUTH_SECRET")

		good := AuthConfig{Enabled: true, Secret: "0123456789abcdef0123"}
		assert.NoError(t, good.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
api:
  base_url: "https://rounds.example.org"
  rate_limit: 2.5
tree:
  root_node_id: "foundations"
  max_reputation_cost: 250
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "https://rounds.example.org", cfg.API().BaseURL)
		assert.Equal(t, 2.5, cfg.API().RateLimit)
		assert.Equal(t, "foundations", cfg.Tree().RootNodeID)
		assert.Equal(t, 250, cfg.Tree().MaxReputationCost)
		// Check a default value was also loaded
		assert.Equal(t, 10, cfg.Tree().MaxSkillPointCost)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("api.burst", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "api.burst must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("auth.enabled", true)

		yamlConfig := []byte(`
database:
  url: "postgres://configfile/db"
`)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		testSecret := "an-env-provided-signing-secret"
		t.Setenv("SKILLTREE_AUTH_SECRET", testSecret)
		testDBURL := "postgres://envvar/db"
		t.Setenv("SKILLTREE_DATABASE_URL", testDBURL)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, testSecret, cfg.Auth().Secret)
		// The env var must override the value from the config buffer.
		assert.Equal(t, testDBURL, cfg.Database().URL)
	})

	t.Run("Home Directory Expansion", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("tree.path", "~/trees/physics.json")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		home, err := homedir.Dir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "trees", "physics.json"), cfg.Tree().Path)
	})
}

// -- Setter Tests --

func TestConfigSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetAPIBaseURL("http://127.0.0.1:9000")
	iface.SetTreePath("/tmp/tree.json")
	iface.SetProgressPath("/tmp/progress.json")

	assert.Equal(t, "http://127.0.0.1:9000", cfg.API().BaseURL)
	assert.Equal(t, "/tmp/tree.json", cfg.Tree().Path)
	assert.Equal(t, "/tmp/progress.json", cfg.Progress().Path)
}
