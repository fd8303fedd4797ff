// ABOUTME: Configuration loading for visd
// ABOUTME: Merges defaults, an optional YAML file, VISD_ environment variables and flags
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Sendspin/sendspin-vis/internal/logging"
	"github.com/Sendspin/sendspin-vis/internal/visualization"
	"github.com/Sendspin/sendspin-vis/pkg/audio"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes every environment override, e.g. VISD_VISUALIZATION_PORT
const EnvPrefix = "VISD"

// Config is the complete daemon configuration
type Config struct {
	Visualization visualization.Config `mapstructure:"visualization" yaml:"visualization"`
	Log           logging.Config       `mapstructure:"log" yaml:"log"`
	Status        StatusConfig         `mapstructure:"status" yaml:"status"`
	MDNS          MDNSConfig           `mapstructure:"mdns" yaml:"mdns"`
	Audio         AudioConfig          `mapstructure:"audio" yaml:"audio"`
}

// StatusConfig controls the HTTP status API
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// MDNSConfig controls service advertisement
type MDNSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Name    string `mapstructure:"name" yaml:"name"`
}

// AudioConfig selects what the demo host pipeline plays. The format is
// what the output receives; file sources at another rate are resampled.
type AudioConfig struct {
	// Source is a file path (mp3, flac, wav); empty plays a test tone
	Source       string `mapstructure:"source" yaml:"source"`
	audio.Format `mapstructure:",squash" yaml:",inline"`
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"port":          "visualization.port",
	"bind":          "visualization.bind_to_address",
	"max-clients":   "visualization.max_clients",
	"reap-interval": "visualization.reap_interval",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"status":        "status.enabled",
	"status-listen": "status.listen",
	"mdns":          "mdns.enabled",
	"name":          "mdns.name",
	"source":        "audio.source",
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Visualization: visualization.DefaultConfig(),
		Log:           logging.Config{Level: "info", Format: "text"},
		Status:        StatusConfig{Enabled: false, Listen: "127.0.0.1:8002"},
		MDNS:          MDNSConfig{Enabled: false, Name: "visd"},
		Audio: AudioConfig{
			Format: audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16},
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("visualization.max_clients", d.Visualization.MaxClients)
	v.SetDefault("visualization.bind_to_address", d.Visualization.BindAddress)
	v.SetDefault("visualization.port", d.Visualization.Port)
	v.SetDefault("visualization.reap_interval", d.Visualization.ReapInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("status.enabled", d.Status.Enabled)
	v.SetDefault("status.listen", d.Status.Listen)
	v.SetDefault("mdns.enabled", d.MDNS.Enabled)
	v.SetDefault("mdns.name", d.MDNS.Name)
	v.SetDefault("audio.source", d.Audio.Source)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.bit_depth", d.Audio.BitDepth)
}

// Load builds the configuration. path may be empty, in which case visd.yaml
// is looked up in the usual places and its absence is not an error. flags
// may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("visd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/visd")
		v.AddConfigPath("/etc/visd")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	vis := c.Visualization
	if vis.MaxClients < 0 {
		return fmt.Errorf("%w: visualization.max_clients must not be negative", ErrInvalidConfig)
	}
	if vis.Port < 0 || vis.Port > 65535 {
		return fmt.Errorf("%w: visualization.port %d out of range", ErrInvalidConfig, vis.Port)
	}
	if vis.ReapInterval < 10*time.Millisecond {
		return fmt.Errorf("%w: visualization.reap_interval %s too short", ErrInvalidConfig, vis.ReapInterval)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Status.Enabled && c.Status.Listen == "" {
		return fmt.Errorf("%w: status.listen is required when status is enabled", ErrInvalidConfig)
	}
	if c.MDNS.Enabled && c.MDNS.Name == "" {
		return fmt.Errorf("%w: mdns.name is required when mdns is enabled", ErrInvalidConfig)
	}
	if err := c.Audio.Format.Validate(); err != nil {
		return fmt.Errorf("%w: audio: %v", ErrInvalidConfig, err)
	}
	if c.Audio.BitDepth == 8 {
		return fmt.Errorf("%w: audio.bit_depth 8 is not supported for PCM output", ErrInvalidConfig)
	}
	return nil
}

// YAML renders the configuration as it would appear in visd.yaml
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}
