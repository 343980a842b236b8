// Package config loads ensemble configuration from YAML files via viper.
// Two layers exist: a project file (.ensemble.yaml in the working tree) and
// a global file (~/.config/ensemble/config.yaml). Most settings resolve
// project-over-global; permission profiles keep both layers visible because
// the resolver's priority chain interleaves them.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/ensembleworks/ensemble/internal/engine"
	"github.com/ensembleworks/ensemble/internal/routing"
)

// Config is one configuration layer.
type Config struct {
	Run         RunConfig                    `mapstructure:"run"`
	Provider    ProviderConfig               `mapstructure:"provider"`
	Routing     routing.MovementRouting      `mapstructure:"routing"`
	Loop        LoopConfig                   `mapstructure:"loop"`
	Permissions map[string]PermissionProfile `mapstructure:"permissions"`
	Receipt     ReceiptConfig                `mapstructure:"receipt"`
}

// RunConfig contains run-level settings.
type RunConfig struct {
	WorkDir          string `mapstructure:"workdir"`
	ReportDir        string `mapstructure:"report_dir"`
	EventsDir        string `mapstructure:"events_dir"`
	MaxIterations    int    `mapstructure:"max_iterations"`
	Interactive      bool   `mapstructure:"interactive"`
	StrictAggregates bool   `mapstructure:"strict_aggregates"`
}

// ProviderConfig names the agent provider and how to reach it.
type ProviderConfig struct {
	Name   string `mapstructure:"name"`
	Model  string `mapstructure:"model"`
	Binary string `mapstructure:"binary"`

	// APIKeySecret is a Secret Manager path for the provider API key;
	// takes precedence over the provider's environment variable.
	APIKeySecret string `mapstructure:"api_key_secret"`
}

// LoopConfig controls the consecutive-movement loop detector.
type LoopConfig struct {
	MaxConsecutive int    `mapstructure:"max_consecutive"`
	Action         string `mapstructure:"action"`
}

// PermissionProfile is one provider's permission configuration in a layer.
type PermissionProfile struct {
	Default   string            `mapstructure:"default"`
	Movements map[string]string `mapstructure:"movements"`
}

// ReceiptConfig controls signed run receipts. Minting is enabled when
// KeySecret is set.
type ReceiptConfig struct {
	KeySecret string `mapstructure:"key_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LoadFile reads one configuration layer. A missing file is not an error:
// it returns nil so callers can treat the layer as absent.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Merge overlays the project layer onto the global layer for scalar
// settings and returns the effective config. Permission profiles are NOT
// merged here; the permission resolver consumes both layers directly.
func Merge(global, project *Config) *Config {
	merged := &Config{}
	if global != nil {
		*merged = *global
	}
	if project == nil {
		applyDefaults(merged)
		return merged
	}

	if project.Run.WorkDir != "" {
		merged.Run.WorkDir = project.Run.WorkDir
	}
	if project.Run.ReportDir != "" {
		merged.Run.ReportDir = project.Run.ReportDir
	}
	if project.Run.EventsDir != "" {
		merged.Run.EventsDir = project.Run.EventsDir
	}
	if project.Run.MaxIterations != 0 {
		merged.Run.MaxIterations = project.Run.MaxIterations
	}
	if project.Run.Interactive {
		merged.Run.Interactive = true
	}
	if project.Run.StrictAggregates {
		merged.Run.StrictAggregates = true
	}

	if project.Provider.Name != "" {
		merged.Provider.Name = project.Provider.Name
	}
	if project.Provider.Model != "" {
		merged.Provider.Model = project.Provider.Model
	}
	if project.Provider.Binary != "" {
		merged.Provider.Binary = project.Provider.Binary
	}
	if project.Provider.APIKeySecret != "" {
		merged.Provider.APIKeySecret = project.Provider.APIKeySecret
	}

	if project.Routing.Default != (routing.ModelConfig{}) || len(project.Routing.Overrides) > 0 {
		merged.Routing = project.Routing
	}
	if project.Loop.MaxConsecutive != 0 {
		merged.Loop.MaxConsecutive = project.Loop.MaxConsecutive
	}
	if project.Loop.Action != "" {
		merged.Loop.Action = project.Loop.Action
	}
	if project.Receipt.KeySecret != "" {
		merged.Receipt = project.Receipt
	}

	applyDefaults(merged)
	return merged
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "claude"
	}
	if cfg.Run.ReportDir == "" {
		cfg.Run.ReportDir = "reports"
	}
	if cfg.Run.EventsDir == "" {
		cfg.Run.EventsDir = ".ensemble"
	}
	if cfg.Loop.MaxConsecutive == 0 {
		cfg.Loop.MaxConsecutive = engine.DefaultMaxConsecutive
	}
	if cfg.Loop.Action == "" {
		cfg.Loop.Action = string(engine.LoopWarn)
	}
	if cfg.Receipt.Issuer == "" {
		cfg.Receipt.Issuer = "ensemble"
	}
}

// Validate checks one layer's values.
func (c *Config) Validate() error {
	if c.Loop.Action != "" {
		valid := map[string]bool{
			string(engine.LoopIgnore): true,
			string(engine.LoopWarn):   true,
			string(engine.LoopAbort):  true,
		}
		if !valid[c.Loop.Action] {
			return fmt.Errorf("invalid loop action %q (must be ignore, warn, or abort)", c.Loop.Action)
		}
	}

	if c.Run.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}

	for provider, profile := range c.Permissions {
		if profile.Default != "" && !engine.PermissionMode(profile.Default).Valid() {
			return fmt.Errorf("provider %q: invalid default permission mode %q", provider, profile.Default)
		}
		for movement, mode := range profile.Movements {
			if !engine.PermissionMode(mode).Valid() {
				return fmt.Errorf("provider %q movement %q: invalid permission mode %q", provider, movement, mode)
			}
		}
	}

	return nil
}

// PermissionProfiles converts a layer's permission section to the engine's
// resolver input. A nil receiver yields nil, which the resolver treats as an
// absent layer.
func (c *Config) PermissionProfiles() engine.PermissionProfiles {
	if c == nil || len(c.Permissions) == 0 {
		return nil
	}

	profiles := make(engine.PermissionProfiles, len(c.Permissions))
	for provider, profile := range c.Permissions {
		p := engine.ProviderProfile{Default: engine.PermissionMode(profile.Default)}
		if len(profile.Movements) > 0 {
			p.Movements = make(map[string]engine.PermissionMode, len(profile.Movements))
			for movement, mode := range profile.Movements {
				p.Movements[movement] = engine.PermissionMode(mode)
			}
		}
		profiles[provider] = p
	}
	return profiles
}

// LoopConfig converts the layer's loop section to the engine's detector
// config.
func (c *Config) LoopConfig() engine.LoopConfig {
	if c == nil {
		return engine.LoopConfig{}
	}
	return engine.LoopConfig{
		MaxConsecutive: c.Loop.MaxConsecutive,
		Action:         engine.LoopAction(c.Loop.Action),
	}
}
