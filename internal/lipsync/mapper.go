package lipsync

import (
	"fmt"

	"github.com/normanking/cortexlipsync/internal/rig"
	"github.com/normanking/cortexlipsync/internal/viseme"
)

// DefaultBlendWeightMultiplier scales unit amplitudes onto the 0-100 blendshape range.
const DefaultBlendWeightMultiplier = 100

// Mode selects how visemes reach the rig.
type Mode string

const (
	// ModeBlend distributes visemes over shared articulation channels via the rule table.
	ModeBlend Mode = "blend"
	// ModeDirect drives one blendshape per viseme role.
	ModeDirect Mode = "direct"
)

// ParseMode validates a mode name. The empty string selects ModeBlend.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBlend:
		return ModeBlend, nil
	case ModeDirect:
		return ModeDirect, nil
	default:
		return "", fmt.Errorf("unknown lip-sync mode %q", s)
	}
}

// MapperConfig holds the mapping engine's construction-time settings.
type MapperConfig struct {
	Mode       Mode
	Gain       float32
	Multiplier float32
	Channels   rig.ChannelMap
}

// DefaultMapperConfig returns blend mode on the default CC layout, unity gain.
func DefaultMapperConfig() MapperConfig {
	return MapperConfig{
		Mode:       ModeBlend,
		Gain:       1,
		Multiplier: DefaultBlendWeightMultiplier,
		Channels:   rig.DefaultChannelMap(),
	}
}

// Mapper turns viseme frames into blendshape weights. It holds no per-tick state.
type Mapper struct {
	cfg MapperConfig
}

func NewMapper(cfg MapperConfig) *Mapper {
	if cfg.Mode == "" {
		cfg.Mode = ModeBlend
	}
	return &Mapper{cfg: cfg}
}

// Config returns the mapper's settings.
func (m *Mapper) Config() MapperConfig {
	return m.cfg
}

// Compute maps one frame according to the configured mode.
func (m *Mapper) Compute(frame viseme.Frame) Weights {
	if m.cfg.Mode == ModeDirect {
		return computeDirect(frame, m.cfg.Channels, m.cfg.Gain, m.cfg.Multiplier)
	}
	return computeBlend(frame, m.cfg.Channels, m.cfg.Gain, m.cfg.Multiplier)
}

// Idle returns the neutral weights for every channel the configured mode drives.
func (m *Mapper) Idle() Weights {
	return IdleWeights(m.cfg.Channels, m.cfg.Mode)
}

// ComputeBlendshapeWeights runs the blend rule table with the default multiplier.
func ComputeBlendshapeWeights(frame viseme.Frame, cmap rig.ChannelMap, gain float32) Weights {
	return computeBlend(frame, cmap, gain, DefaultBlendWeightMultiplier)
}

func computeBlend(frame viseme.Frame, cmap rig.ChannelMap, gain, multiplier float32) Weights {
	w := IdleWeights(cmap, ModeBlend)

	for id := viseme.PP; id < viseme.Count; id++ {
		amp := frame[id]
		for _, r := range rules[id] {
			idx := cmap.Index(r.channel)
			contribution := amp * r.coeff / r.divisor * multiplier
			if r.additive {
				w.Add(idx, contribution)
			} else {
				w.Set(idx, contribution)
			}
		}
	}

	w.Scale(gain)
	return w
}

func computeDirect(frame viseme.Frame, cmap rig.ChannelMap, gain, multiplier float32) Weights {
	w := IdleWeights(cmap, ModeDirect)
	for id := viseme.PP; id < viseme.Count; id++ {
		w.Add(cmap.VisemeIndex(id), frame[id]*multiplier)
	}
	w.Scale(gain)
	return w
}

// IdleWeights returns zero for every channel a mode writes.
func IdleWeights(cmap rig.ChannelMap, mode Mode) Weights {
	indices := cmap.ChannelIndices()
	if mode == ModeDirect {
		indices = cmap.RoleIndices()
	}
	w := NewWeights(len(indices))
	for _, idx := range indices {
		w.Set(idx, 0)
	}
	return w
}
