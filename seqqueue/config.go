/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package seqqueue

import (
	"fmt"
	"time"

	"github.com/acronis/go-loadkit/config"
)

const cfgDefaultKeyPrefix = "seqQueue"

const (
	cfgKeyMaxConcurrent = "maxConcurrent"
	cfgKeyQueueTimeout  = "queueTimeout"
)

// Config represents a set of configuration parameters for Queue.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// MaxConcurrent is the number of concurrency gate slots shared by all keys.
	MaxConcurrent int `mapstructure:"maxConcurrent" yaml:"maxConcurrent" json:"maxConcurrent"`

	// QueueTimeout bounds both the caller's wait for a submission's outcome and the task's run.
	QueueTimeout config.TimeDuration `mapstructure:"queueTimeout" yaml:"queueTimeout" json:"queueTimeout"`

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
		keyPrefix:     opts.keyPrefix,
		MaxConcurrent: DefaultMaxConcurrent,
		QueueTimeout:  config.TimeDuration(DefaultQueueTimeout),
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

// SetProviderDefaults sets default configuration values for the queue in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxConcurrent, DefaultMaxConcurrent)
	dp.SetDefault(cfgKeyQueueTimeout, DefaultQueueTimeout)
}

// Set sets queue configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.MaxConcurrent, err = dp.GetInt(cfgKeyMaxConcurrent); err != nil {
		return err
	}
	if c.MaxConcurrent <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxConcurrent, fmt.Errorf("must be positive"))
	}

	var queueTimeout time.Duration
	if queueTimeout, err = dp.GetDuration(cfgKeyQueueTimeout); err != nil {
		return err
	}
	if queueTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyQueueTimeout, fmt.Errorf("must be positive"))
	}
	c.QueueTimeout = config.TimeDuration(queueTimeout)

	return nil
}
