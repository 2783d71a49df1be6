/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"github.com/acronis/go-loadkit/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyRate         = "rate"
	cfgKeyWindow       = "window"
	cfgKeyMaxKeys      = "maxKeys"
	cfgKeyDryRun       = "dryRun"
	cfgKeyExcludedKeys = "excludedKeys"
	cfgKeyIncludedKeys = "includedKeys"
)

// Default values of the limiter configuration parameters.
const (
	DefaultRate   = 50
	DefaultWindow = time.Minute
)

// Config represents a set of configuration parameters for SlidingWindowLimiter.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Rate is the maximum number of admissions per key within Window.
	Rate int `mapstructure:"rate" yaml:"rate" json:"rate"`

	// Window is the duration of the trailing window.
	Window config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`

	// MaxKeys is the maximum number of keys for which admission windows are kept.
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`

	// DryRun enables the mode in which exhausted admissions are logged but everything is admitted.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`

	// ExcludedKeys contains glob patterns of keys that bypass limiting.
	ExcludedKeys []string `mapstructure:"excludedKeys" yaml:"excludedKeys" json:"excludedKeys"`

	// IncludedKeys contains glob patterns of keys to limit, all other keys bypass limiting.
	IncludedKeys []string `mapstructure:"includedKeys" yaml:"includedKeys" json:"includedKeys"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix: opts.keyPrefix,
		Rate:      DefaultRate,
		Window:    config.TimeDuration(DefaultWindow),
		MaxKeys:   DefaultMaxKeys,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the limiter in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRate, DefaultRate)
	dp.SetDefault(cfgKeyWindow, DefaultWindow)
	dp.SetDefault(cfgKeyMaxKeys, DefaultMaxKeys)
}

// Set sets limiter configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Rate, err = dp.GetInt(cfgKeyRate); err != nil {
		return err
	}
	if c.Rate <= 0 {
		return dp.WrapKeyErr(cfgKeyRate, fmt.Errorf("must be positive"))
	}

	var window time.Duration
	if window, err = dp.GetDuration(cfgKeyWindow); err != nil {
		return err
	}
	if window <= 0 {
		return dp.WrapKeyErr(cfgKeyWindow, fmt.Errorf("must be positive"))
	}
	c.Window = config.TimeDuration(window)

	if c.MaxKeys, err = dp.GetInt(cfgKeyMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyMaxKeys, fmt.Errorf("cannot be negative"))
	}

	if c.DryRun, err = dp.GetBool(cfgKeyDryRun); err != nil {
		return err
	}

	if c.ExcludedKeys, err = dp.GetStringSlice(cfgKeyExcludedKeys); err != nil {
		return err
	}
	if c.IncludedKeys, err = dp.GetStringSlice(cfgKeyIncludedKeys); err != nil {
		return err
	}
	if len(c.ExcludedKeys) != 0 && len(c.IncludedKeys) != 0 {
		return dp.WrapKeyErr(cfgKeyIncludedKeys, fmt.Errorf("cannot be used together with excluded keys"))
	}

	return nil
}
