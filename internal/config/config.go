// Package config provides configuration management for the lip-sync daemon
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. CORTEXLIPSYNC_LIPSYNC_GAIN.
const EnvPrefix = "CORTEXLIPSYNC"

// Config holds all application configuration
type Config struct {
	LipSync  LipSyncConfig  `mapstructure:"lipsync" yaml:"lipsync"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer" yaml:"analyzer"`
	Stream   StreamConfig   `mapstructure:"stream" yaml:"stream"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// LipSyncConfig configures the mapping engine and tick loop
type LipSyncConfig struct {
	Mode       string  `mapstructure:"mode" yaml:"mode"` // blend or direct
	Gain       float64 `mapstructure:"gain" yaml:"gain"`
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier"`
	BaseIndex  int     `mapstructure:"base_index" yaml:"base_index"`
	// Channels overrides articulation channel indices by morph target name
	Channels map[string]int `mapstructure:"channels" yaml:"channels,omitempty"`
	// Visemes overrides viseme role indices by role name (PP, kk, aa...)
	Visemes      map[string]int `mapstructure:"visemes" yaml:"visemes,omitempty"`
	TongueOffset []float64      `mapstructure:"tongue_offset" yaml:"tongue_offset"`
	TickRate     int            `mapstructure:"tick_rate" yaml:"tick_rate"` // Hz
	Smoothing    float64        `mapstructure:"smoothing" yaml:"smoothing"` // 0 = no display smoothing
	Model        string         `mapstructure:"model" yaml:"model,omitempty"` // optional glTF head model
}

// AnalyzerConfig selects and tunes the viseme analyzer
type AnalyzerConfig struct {
	Kind       string           `mapstructure:"kind" yaml:"kind"` // energy, timeline or none
	SampleRate int              `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int              `mapstructure:"channels" yaml:"channels"`
	BufferSize int              `mapstructure:"buffer_size" yaml:"buffer_size"` // frames per buffer
	Input      string           `mapstructure:"input" yaml:"input,omitempty"`    // WAV file fed as live audio; silence when empty
	LoopInput  bool             `mapstructure:"loop_input" yaml:"loop_input"`
	Energy     EnergySettings   `mapstructure:"energy" yaml:"energy"`
	Timeline   TimelineSettings `mapstructure:"timeline" yaml:"timeline"`
}

// EnergySettings tunes the energy analyzer
type EnergySettings struct {
	Threshold       float64 `mapstructure:"threshold" yaml:"threshold"`
	Ceiling         float64 `mapstructure:"ceiling" yaml:"ceiling"`
	SmoothingFrames int     `mapstructure:"smoothing_frames" yaml:"smoothing_frames"`
	SibilantZCR     float64 `mapstructure:"sibilant_zcr" yaml:"sibilant_zcr"`
	FrontVowelZCR   float64 `mapstructure:"front_vowel_zcr" yaml:"front_vowel_zcr"`
}

// TimelineSettings configures timeline playback
type TimelineSettings struct {
	Path    string  `mapstructure:"path" yaml:"path,omitempty"` // .json or .yaml timeline
	Text    string  `mapstructure:"text" yaml:"text,omitempty"` // generate from text when Path is empty
	BlendMs float64 `mapstructure:"blend_ms" yaml:"blend_ms"`
	Loop    bool    `mapstructure:"loop" yaml:"loop"`
}

// StreamConfig configures the pose WebSocket server
type StreamConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr       string `mapstructure:"addr" yaml:"addr"`
	Path       string `mapstructure:"path" yaml:"path"`
	SendBuffer int    `mapstructure:"send_buffer" yaml:"send_buffer"`
	EveryNth   int    `mapstructure:"every_nth" yaml:"every_nth"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Dir        string `mapstructure:"dir" yaml:"dir,omitempty"` // empty disables file output
	Console    bool   `mapstructure:"console" yaml:"console"`
	MaxHistory int    `mapstructure:"max_history" yaml:"max_history"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		LipSync: LipSyncConfig{
			Mode:         "blend",
			Gain:         1.0,
			Multiplier:   100,
			BaseIndex:    0,
			TongueOffset: []float64{-0.01, 0.015, 0},
			TickRate:     60,
			Smoothing:    0,
		},
		Analyzer: AnalyzerConfig{
			Kind:       "energy",
			SampleRate: 48000,
			Channels:   1,
			BufferSize: 1024,
			Energy: EnergySettings{
				Threshold:       0.01,
				Ceiling:         0.3,
				SmoothingFrames: 3,
				SibilantZCR:     0.3,
				FrontVowelZCR:   0.12,
			},
			Timeline: TimelineSettings{
				BlendMs: 40,
			},
		},
		Stream: StreamConfig{
			Enabled:    true,
			Addr:       "127.0.0.1:8766",
			Path:       "/poses",
			SendBuffer: 64,
			EveryNth:   1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9466",
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			MaxHistory: 1000,
		},
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cortexlipsync"), nil
}

// Load reads configuration from path, or from config.yaml in the config
// directory or the working directory when path is empty. A missing file in
// the search locations means defaults; a missing explicit path is an error.
// Environment variables override both.
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// load returns the config and the file it came from, if any.
func load(path string) (*Config, string, error) {
	cfg := DefaultConfig()
	v := newViper()

	if err := setDefaults(v, cfg); err != nil {
		return nil, "", err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// setDefaults registers every key of cfg so environment overrides resolve
// even when the file omits the key.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	flatten("", tree, v.SetDefault)
	return nil
}

func flatten(prefix string, tree map[string]any, set func(string, any)) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}

// Save writes the configuration as YAML
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
