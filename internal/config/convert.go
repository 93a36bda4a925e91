package config

import (
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/cortexlipsync/internal/analyzer"
	"github.com/normanking/cortexlipsync/internal/lipsync"
	"github.com/normanking/cortexlipsync/internal/logging"
	"github.com/normanking/cortexlipsync/internal/rig"
	"github.com/normanking/cortexlipsync/internal/stream"
)

// ChannelMap applies the index overrides to the default layout. Unknown names
// are skipped; Validate reports them.
func (c *Config) ChannelMap() rig.ChannelMap {
	return c.ApplyChannels(rig.DefaultChannelMap())
}

// ApplyChannels applies the index overrides and base offset on top of m,
// typically a layout resolved from a model.
func (c *Config) ApplyChannels(m rig.ChannelMap) rig.ChannelMap {
	for name, idx := range c.LipSync.Channels {
		if ch := rig.ChannelFromName(name); ch >= 0 {
			m.Targets[ch] = idx
		}
	}
	for name, idx := range c.LipSync.Visemes {
		if id, ok := visemeByName(name); ok {
			m.Visemes[id] = idx
		}
	}
	return m.WithBase(c.LipSync.BaseIndex)
}

// ControllerConfig builds the controller settings around channels.
func (c *Config) ControllerConfig(channels rig.ChannelMap) lipsync.ControllerConfig {
	mode, err := lipsync.ParseMode(c.LipSync.Mode)
	if err != nil {
		mode = lipsync.ModeBlend
	}

	cfg := lipsync.ControllerConfig{
		Mapper: lipsync.MapperConfig{
			Mode:       mode,
			Gain:       float32(c.LipSync.Gain),
			Multiplier: float32(c.LipSync.Multiplier),
			Channels:   channels,
		},
		TongueOffset: lipsync.DefaultTongueOffset,
	}
	if off := c.LipSync.TongueOffset; len(off) == 3 {
		cfg.TongueOffset = mgl32.Vec3{float32(off[0]), float32(off[1]), float32(off[2])}
	}
	return cfg
}

// TickInterval returns the period of the tick loop.
func (c *Config) TickInterval() time.Duration {
	if c.LipSync.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.LipSync.TickRate)
}

// EnergyConfig returns the energy analyzer settings.
func (c *Config) EnergyConfig() *analyzer.EnergyConfig {
	e := c.Analyzer.Energy
	return &analyzer.EnergyConfig{
		Threshold:       e.Threshold,
		Ceiling:         e.Ceiling,
		SmoothingFrames: e.SmoothingFrames,
		SibilantZCR:     e.SibilantZCR,
		FrontVowelZCR:   e.FrontVowelZCR,
	}
}

// TimelineConfig returns the timeline playback settings.
func (c *Config) TimelineConfig() analyzer.TimelineConfig {
	return analyzer.TimelineConfig{
		SampleRate: c.Analyzer.SampleRate,
		BlendMs:    c.Analyzer.Timeline.BlendMs,
		Loop:       c.Analyzer.Timeline.Loop,
	}
}

// StreamConfig returns the hub settings.
func (c *Config) StreamConfig() stream.Config {
	return stream.Config{
		Path:       c.Stream.Path,
		SendBuffer: c.Stream.SendBuffer,
		EveryNth:   c.Stream.EveryNth,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() *logging.Config {
	return &logging.Config{
		LogDir:     c.Logging.Dir,
		Level:      logging.LogLevel(strings.ToLower(c.Logging.Level)),
		MaxHistory: c.Logging.MaxHistory,
		Console:    c.Logging.Console,
	}
}
