package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/normanking/cortexlipsync/internal/lipsync"
	"github.com/normanking/cortexlipsync/internal/logging"
	"github.com/normanking/cortexlipsync/internal/rig"
	"github.com/normanking/cortexlipsync/internal/viseme"
)

// Analyzer kinds
const (
	AnalyzerEnergy   = "energy"
	AnalyzerTimeline = "timeline"
	AnalyzerNone     = "none"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	ls := c.LipSync
	if _, err := lipsync.ParseMode(ls.Mode); err != nil {
		errs = append(errs, err)
	}
	if ls.Gain < 0 {
		add("lipsync.gain must be >= 0, got %v", ls.Gain)
	}
	if ls.Multiplier <= 0 {
		add("lipsync.multiplier must be > 0, got %v", ls.Multiplier)
	}
	if ls.BaseIndex < 0 {
		add("lipsync.base_index must be >= 0, got %d", ls.BaseIndex)
	}
	for name, idx := range ls.Channels {
		if rig.ChannelFromName(name) < 0 {
			add("lipsync.channels: unknown channel %q", name)
		}
		if idx < 0 {
			add("lipsync.channels.%s: negative index %d", name, idx)
		}
	}
	for name, idx := range ls.Visemes {
		if _, ok := visemeByName(name); !ok {
			add("lipsync.visemes: unknown viseme %q", name)
		}
		if idx < 0 {
			add("lipsync.visemes.%s: negative index %d", name, idx)
		}
	}
	if len(ls.TongueOffset) != 3 {
		add("lipsync.tongue_offset needs 3 components, got %d", len(ls.TongueOffset))
	}
	if ls.TickRate <= 0 || ls.TickRate > 1000 {
		add("lipsync.tick_rate must be in 1..1000, got %d", ls.TickRate)
	}
	if ls.Smoothing < 0 {
		add("lipsync.smoothing must be >= 0, got %v", ls.Smoothing)
	}

	an := c.Analyzer
	switch an.Kind {
	case AnalyzerEnergy, AnalyzerNone:
	case AnalyzerTimeline:
		if an.Timeline.Path == "" && an.Timeline.Text == "" {
			add("analyzer.timeline needs a path or text")
		}
	default:
		add("analyzer.kind must be energy, timeline or none, got %q", an.Kind)
	}
	if an.SampleRate <= 0 {
		add("analyzer.sample_rate must be > 0, got %d", an.SampleRate)
	}
	if an.Channels <= 0 {
		add("analyzer.channels must be > 0, got %d", an.Channels)
	}
	if an.BufferSize <= 0 {
		add("analyzer.buffer_size must be > 0, got %d", an.BufferSize)
	}

	if c.Stream.Enabled && c.Stream.Addr == "" {
		add("stream.addr is required when the stream is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics.addr is required when metrics are enabled")
	}

	switch logging.LogLevel(strings.ToLower(c.Logging.Level)) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		add("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Config keys arrive lowercased from viper, so names match case-insensitively.
func visemeByName(name string) (viseme.ID, bool) {
	for i, n := range viseme.Names {
		if strings.EqualFold(n, name) {
			return viseme.ID(i), true
		}
	}
	return -1, false
}
