// Package lipsync maps viseme frames onto facial rig blendshapes and bones.
//
// The mapping and rotation engines are pure functions of a frame. The Controller
// owns the only state: the latest frame handed over from the audio path and
// whether the last tick ran active or idle.
package lipsync

import (
	"context"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/observe"
	"github.com/normanking/cortexlipsync/internal/rig"
	"github.com/normanking/cortexlipsync/internal/viseme"
	"github.com/rs/zerolog"
)

// Analyzer turns raw PCM buffers into viseme frames.
type Analyzer interface {
	Name() string
	// Ready reports whether the analyzer can accept audio.
	Ready() bool
	// Analyze consumes one interleaved float PCM buffer.
	Analyze(samples []float32, channels int) (viseme.Frame, error)
}

// State is the controller's idle/active mode.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// DefaultTongueOffset is the tongue bone's local position while speaking.
var DefaultTongueOffset = mgl32.Vec3{-0.01, 0.015, 0}

// Pose is everything one tick wrote to the rig.
type Pose struct {
	Tick     uint64     `json:"tick"`
	State    State      `json:"state"`
	Weights  Weights    `json:"weights"`
	Angles   BoneAngles `json:"angles"`
	Dominant string     `json:"dominant"`
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Mapper       MapperConfig
	TongueOffset mgl32.Vec3
}

// DefaultControllerConfig returns blend mode on the CC layout.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Mapper:       DefaultMapperConfig(),
		TongueOffset: DefaultTongueOffset,
	}
}

// Controller drives a rig once per tick from the latest viseme frame.
type Controller struct {
	mu sync.Mutex

	mapper       *Mapper
	tongueOffset mgl32.Vec3
	sink         rig.Sink
	state        State
	ticks        uint64
	onPose       func(Pose)
	// flushed holds the channel indices written by the previous tick.
	flushed []int

	slot *FrameSlot

	analyzerMu sync.Mutex
	analyzer   Analyzer
	dropping   bool

	eventBus *bus.EventBus
	metrics  *observe.Metrics
	logger   zerolog.Logger
}

// NewController creates a controller writing to sink. analyzer, eventBus and
// metrics may be nil.
func NewController(cfg ControllerConfig, sink rig.Sink, analyzer Analyzer, eventBus *bus.EventBus, metrics *observe.Metrics, logger zerolog.Logger) *Controller {
	return &Controller{
		mapper:       NewMapper(cfg.Mapper),
		tongueOffset: cfg.TongueOffset,
		sink:         sink,
		state:        StateIdle,
		slot:         NewFrameSlot(),
		analyzer:     analyzer,
		eventBus:     eventBus,
		metrics:      metrics,
		logger:       logger.With().Str("component", "lipsync").Logger(),
	}
}

// Slot exposes the shared frame slot, for feeding frames from an external analyzer.
func (c *Controller) Slot() *FrameSlot {
	return c.slot
}

// SetOnPose registers a callback invoked after every tick.
func (c *Controller) SetOnPose(fn func(Pose)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPose = fn
}

// SetMapperConfig swaps the mapping settings; takes effect on the next tick.
func (c *Controller) SetMapperConfig(cfg MapperConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mapper = NewMapper(cfg)
}

// MapperConfig returns the current mapping settings.
func (c *Controller) MapperConfig() MapperConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mapper.Config()
}

// SetAnalyzer replaces the analyzer. nil makes every push a no-op.
func (c *Controller) SetAnalyzer(a Analyzer) {
	c.analyzerMu.Lock()
	defer c.analyzerMu.Unlock()
	c.analyzer = a
}

// State returns the state of the last tick.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PushAudio is the audio-callback path. Without a ready analyzer it drops the
// buffer; the first drop of each run of drops is published on the bus.
func (c *Controller) PushAudio(ctx context.Context, samples []float32, channels int) {
	c.analyzerMu.Lock()
	defer c.analyzerMu.Unlock()

	if c.analyzer == nil || !c.analyzer.Ready() {
		c.metrics.RecordAudioDropped(ctx)
		if !c.dropping {
			c.dropping = true
			reason := "not_ready"
			if c.analyzer == nil {
				reason = "no_analyzer"
			}
			c.logger.Debug().Str("reason", reason).Msg("Dropping audio")
			c.eventBus.Publish(bus.Event{
				Type: bus.EventTypeAudioDropped,
				Data: map[string]any{"reason": reason},
			})
		}
		return
	}
	c.dropping = false

	frame, err := c.analyzer.Analyze(samples, channels)
	if err != nil {
		c.metrics.RecordAnalyzerError(ctx, c.analyzer.Name())
		c.logger.Warn().Err(err).Str("analyzer", c.analyzer.Name()).Msg("Analyzer failed, buffer dropped")
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeAnalyzerError,
			Data: map[string]any{"analyzer": c.analyzer.Name(), "error": err.Error()},
		})
		return
	}

	c.slot.Store(frame)
	c.metrics.RecordFrame(ctx, c.analyzer.Name())
}

func (c *Controller) analyzerReady() bool {
	c.analyzerMu.Lock()
	defer c.analyzerMu.Unlock()
	// Without an analyzer, frames come straight through the slot.
	return c.analyzer == nil || c.analyzer.Ready()
}

// Tick computes and writes one pose. With no frame, or an analyzer that is not
// ready, it writes the idle pose without touching the weighted formulas.
func (c *Controller) Tick(ctx context.Context) Pose {
	start := time.Now()

	frame, ok := c.slot.Load()
	ready := c.analyzerReady()

	c.mu.Lock()
	c.ticks++
	pose := Pose{Tick: c.ticks}

	if ok && ready {
		pose.State = StateActive
		pose.Weights = c.mapper.Compute(frame)
		pose.Angles = ComputeBoneAngles(frame)
		pose.Dominant = frame.Dominant().String()
	} else {
		pose.State = StateIdle
		pose.Weights = c.mapper.Idle()
		pose.Angles = IdleAngles
		pose.Dominant = viseme.Sil.String()
	}

	c.apply(pose)

	prev := c.state
	c.state = pose.State
	onPose := c.onPose
	c.mu.Unlock()

	if prev != pose.State {
		c.logger.Info().Str("from", string(prev)).Str("to", string(pose.State)).Msg("Lip-sync state changed")
		c.metrics.RecordTransition(ctx, string(prev), string(pose.State))
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeStateChanged,
			Data: map[string]any{"from": string(prev), "to": string(pose.State), "tick": pose.Tick},
		})
	}

	c.metrics.RecordTick(ctx, string(pose.State), time.Since(start))

	if onPose != nil {
		onPose(pose)
	}
	return pose
}

// apply writes the pose. Channels the previous tick wrote but this pose no
// longer covers, after a mapping change, are zeroed and reported in the pose.
func (c *Controller) apply(pose Pose) {
	covered := pose.Weights.Indices()
	for _, idx := range c.flushed {
		if !pose.Weights.Has(idx) {
			pose.Weights.Set(idx, 0)
		}
	}
	c.flushed = covered

	pose.Weights.Flush(c.sink)
	c.sink.SetBoneLocalRotation(rig.BoneJaw, mgl32.Vec3{0, 0, pose.Angles.Jaw})
	c.sink.SetBoneLocalRotation(rig.BoneTongue, mgl32.Vec3{0, 0, pose.Angles.Tongue})

	if pose.State == StateActive {
		if ps, ok := c.sink.(rig.PositionSink); ok {
			ps.SetBoneLocalPosition(rig.BoneTongue, c.tongueOffset)
		}
	}
}

// Run ticks every interval until ctx is done and returns ctx.Err().
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}
