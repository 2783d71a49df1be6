/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package seqqueue

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-loadkit/config"
)

type AppConfig struct {
	SeqQueue *Config `mapstructure:"seqQueue" json:"seqQueue" yaml:"seqQueue"`
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
		expectedCfg func() *Config
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
seqQueue:
  maxConcurrent: 5
  queueTimeout: 15s
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.MaxConcurrent = 5
				cfg.QueueTimeout = config.TimeDuration(time.Second * 15)
				return cfg
			},
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData: `
{
	"seqQueue": {
		"maxConcurrent": 5,
		"queueTimeout": "15s"
	}
}`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.MaxConcurrent = 5
				cfg.QueueTimeout = config.TimeDuration(time.Second * 15)
				return cfg
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Load config using config.Loader.
			appCfg := AppConfig{SeqQueue: NewDefaultConfig()}
			expectedAppCfg := AppConfig{SeqQueue: tt.expectedCfg()}
			cfgLoader := config.NewLoader(config.NewViperAdapter())
			err := cfgLoader.LoadFromReader(bytes.NewBuffer([]byte(tt.cfgData)), tt.cfgDataType, appCfg.SeqQueue)
			require.NoError(t, err)
			require.Equal(t, expectedAppCfg, appCfg)

			// Load config using viper unmarshal.
			appCfg = AppConfig{SeqQueue: NewDefaultConfig()}
			expectedAppCfg = AppConfig{SeqQueue: tt.expectedCfg()}
			vpr := viper.New()
			vpr.SetConfigType(string(tt.cfgDataType))
			require.NoError(t, vpr.ReadConfig(bytes.NewBuffer([]byte(tt.cfgData))))
			require.NoError(t, vpr.Unmarshal(&appCfg, func(c *mapstructure.DecoderConfig) {
				c.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
			}))
			require.Equal(t, expectedAppCfg, appCfg)

			// Load config using yaml/json unmarshal.
			appCfg = AppConfig{SeqQueue: NewDefaultConfig()}
			expectedAppCfg = AppConfig{SeqQueue: tt.expectedCfg()}
			switch tt.cfgDataType {
			case config.DataTypeYAML:
				require.NoError(t, yaml.Unmarshal([]byte(tt.cfgData), &appCfg))
				require.Equal(t, expectedAppCfg, appCfg)
			case config.DataTypeJSON:
				require.NoError(t, json.Unmarshal([]byte(tt.cfgData), &appCfg))
				require.Equal(t, expectedAppCfg, appCfg)
			default:
				t.Fatalf("unsupported config data type: %s", tt.cfgDataType)
			}
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	var cfg *Config

	// Empty config, all defaults for the data provider should be used
	cfg = NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// viper.Unmarshal
	cfg = NewDefaultConfig()
	vpr := viper.New()
	vpr.SetConfigType("yaml")
	require.NoError(t, vpr.Unmarshal(&cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// yaml.Unmarshal
	cfg = NewDefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(""), &cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// json.Unmarshal
	cfg = NewDefaultConfig()
	require.NoError(t, json.Unmarshal([]byte("{}"), &cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
}

func TestConfigWithKeyPrefix(t *testing.T) {
	t.Run("custom key prefix", func(t *testing.T) {
		cfgData := `
customSeqQueue:
  maxConcurrent: 3
  queueTimeout: 10s
`
		expectedCfg := NewDefaultConfig(WithKeyPrefix("customSeqQueue"))
		expectedCfg.MaxConcurrent = 3
		expectedCfg.QueueTimeout = config.TimeDuration(time.Second * 10)

		cfg := NewConfig(WithKeyPrefix("customSeqQueue"))
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, expectedCfg, cfg)
	})

	t.Run("default key prefix, empty struct initialization", func(t *testing.T) {
		cfgData := `
seqQueue:
  maxConcurrent: 3
  queueTimeout: 10s
`
		cfg := &Config{}
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, 3, cfg.MaxConcurrent)
		require.Equal(t, config.TimeDuration(time.Second*10), cfg.QueueTimeout)
	})
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name: "error, zero max concurrent",
			yamlData: `
seqQueue:
  maxConcurrent: 0
`,
			expectedErrMsg: `seqQueue.maxConcurrent: must be positive`,
		},
		{
			name: "error, negative max concurrent",
			yamlData: `
seqQueue:
  maxConcurrent: -3
`,
			expectedErrMsg: `seqQueue.maxConcurrent: must be positive`,
		},
		{
			name: "error, zero queue timeout",
			yamlData: `
seqQueue:
  queueTimeout: 0
`,
			expectedErrMsg: `seqQueue.queueTimeout: must be positive`,
		},
		{
			name: "error, negative queue timeout",
			yamlData: `
seqQueue:
  queueTimeout: -5s
`,
			expectedErrMsg: `seqQueue.queueTimeout: must be positive`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(tt.yamlData)), config.DataTypeYAML, cfg)
			require.EqualError(t, err, tt.expectedErrMsg)
		})
	}
}
