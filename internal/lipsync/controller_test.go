package lipsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/observe"
	"github.com/normanking/cortexlipsync/internal/rig"
	"github.com/normanking/cortexlipsync/internal/viseme"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	ready bool
	frame viseme.Frame
	err   error
	calls int
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeAnalyzer) setReady(r bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = r
}

func (f *fakeAnalyzer) Analyze(samples []float32, channels int) (viseme.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.frame, f.err
}

func newTestController(t *testing.T, analyzer Analyzer, eventBus *bus.EventBus) (*Controller, *rig.Rig) {
	t.Helper()
	r := rig.NewRig("test", 0)
	c := NewController(DefaultControllerConfig(), r, analyzer, eventBus, nil, zerolog.Nop())
	return c, r
}

func assertIdlePose(t *testing.T, r *rig.Rig, cmap rig.ChannelMap) {
	t.Helper()
	for _, idx := range cmap.ChannelIndices() {
		assert.Equal(t, float32(0), r.ChannelWeight(idx), "channel %d", idx)
	}
	assert.Equal(t, mgl32.Vec3{0, 0, -90}, r.Bone(rig.BoneJaw).Euler)
	assert.Equal(t, mgl32.Vec3{0, 0, -5}, r.Bone(rig.BoneTongue).Euler)
}

func TestControllerStartsIdle(t *testing.T) {
	c, r := newTestController(t, nil, nil)
	assert.Equal(t, StateIdle, c.State())

	pose := c.Tick(context.Background())
	assert.Equal(t, StateIdle, pose.State)
	assert.Equal(t, uint64(1), pose.Tick)
	assert.Equal(t, "sil", pose.Dominant)
	assertIdlePose(t, r, rig.DefaultChannelMap())
	// Idle leaves the tongue where it was.
	assert.Equal(t, mgl32.Vec3{}, r.Bone(rig.BoneTongue).Position)
}

func TestControllerActiveFromSlot(t *testing.T) {
	c, r := newTestController(t, nil, nil)
	cmap := rig.DefaultChannelMap()

	c.Slot().Store(viseme.Single(viseme.PP, 1))
	pose := c.Tick(context.Background())

	assert.Equal(t, StateActive, pose.State)
	assert.Equal(t, "PP", pose.Dominant)
	assert.InDelta(t, 100, r.ChannelWeight(cmap.Index(rig.Explosive)), eps)
	for _, idx := range cmap.ChannelIndices() {
		if idx != cmap.Index(rig.Explosive) {
			assert.Equal(t, float32(0), r.ChannelWeight(idx))
		}
	}
	assert.InDelta(t, -90, r.Bone(rig.BoneJaw).Euler[2], eps)
	assert.InDelta(t, -5, r.Bone(rig.BoneTongue).Euler[2], eps)
	assert.Equal(t, DefaultTongueOffset, r.Bone(rig.BoneTongue).Position)
}

func TestControllerReturnsToIdle(t *testing.T) {
	c, r := newTestController(t, nil, nil)

	var frame viseme.Frame
	frame[viseme.DD] = 0.7
	frame[viseme.KK] = 1.5
	c.Slot().Store(frame)
	c.Tick(context.Background())

	cmap := rig.DefaultChannelMap()
	assert.InDelta(t, 70, r.ChannelWeight(cmap.Index(rig.DropLower)), eps)
	assert.InDelta(t, 150, r.ChannelWeight(cmap.Index(rig.ShrugUpper)), eps)

	c.Slot().Clear()
	pose := c.Tick(context.Background())
	assert.Equal(t, StateIdle, pose.State)
	assertIdlePose(t, r, cmap)
}

func TestControllerAnalyzerNotReadyIsIdle(t *testing.T) {
	a := &fakeAnalyzer{ready: true, frame: viseme.Single(viseme.AA, 1)}
	c, r := newTestController(t, a, nil)

	c.PushAudio(context.Background(), make([]float32, 256), 1)
	require.Equal(t, StateActive, c.Tick(context.Background()).State)

	a.setReady(false)
	assert.Equal(t, StateIdle, c.Tick(context.Background()).State)
	assertIdlePose(t, r, rig.DefaultChannelMap())
}

func TestControllerPushAudio(t *testing.T) {
	t.Run("no analyzer is a no-op", func(t *testing.T) {
		c, _ := newTestController(t, nil, nil)
		c.PushAudio(context.Background(), make([]float32, 64), 2)
		_, ok := c.Slot().Load()
		assert.False(t, ok)
	})

	t.Run("analyzer not ready is a no-op", func(t *testing.T) {
		a := &fakeAnalyzer{frame: viseme.Single(viseme.AA, 1)}
		c, _ := newTestController(t, a, nil)
		c.PushAudio(context.Background(), make([]float32, 64), 2)
		_, ok := c.Slot().Load()
		assert.False(t, ok)
		assert.Equal(t, 0, a.calls)
	})

	t.Run("analyzer error drops the buffer", func(t *testing.T) {
		a := &fakeAnalyzer{ready: true, err: errors.New("bad buffer")}
		b := bus.NewEventBus()
		got := make(chan bus.Event, 1)
		b.Subscribe(bus.EventTypeAnalyzerError, func(e bus.Event) { got <- e })

		c, _ := newTestController(t, a, b)
		c.PushAudio(context.Background(), make([]float32, 64), 1)
		_, ok := c.Slot().Load()
		assert.False(t, ok)

		select {
		case e := <-got:
			assert.Equal(t, "fake", e.Data["analyzer"])
		case <-time.After(time.Second):
			t.Fatal("no analyzer error event")
		}
	})

	t.Run("ready analyzer stores the frame", func(t *testing.T) {
		a := &fakeAnalyzer{ready: true, frame: viseme.Single(viseme.OH, 0.5)}
		c, _ := newTestController(t, a, nil)
		c.PushAudio(context.Background(), make([]float32, 64), 1)
		f, ok := c.Slot().Load()
		require.True(t, ok)
		assert.Equal(t, float32(0.5), f[viseme.OH])
	})

	t.Run("drops are published once per run", func(t *testing.T) {
		a := &fakeAnalyzer{frame: viseme.Single(viseme.AA, 1)}
		b := bus.NewEventBus()
		var dropped atomic.Int32
		b.Subscribe(bus.EventTypeAudioDropped, func(e bus.Event) {
			assert.Equal(t, "not_ready", e.Data["reason"])
			dropped.Add(1)
		})

		c, _ := newTestController(t, a, b)
		ctx := context.Background()
		c.PushAudio(ctx, make([]float32, 64), 1)
		c.PushAudio(ctx, make([]float32, 64), 1)
		assert.Eventually(t, func() bool { return dropped.Load() == 1 }, time.Second, 5*time.Millisecond)

		a.setReady(true)
		c.PushAudio(ctx, make([]float32, 64), 1)
		a.setReady(false)
		c.PushAudio(ctx, make([]float32, 64), 1)
		assert.Eventually(t, func() bool { return dropped.Load() == 2 }, time.Second, 5*time.Millisecond)

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(2), dropped.Load())
	})

	t.Run("analyzer can be swapped out", func(t *testing.T) {
		a := &fakeAnalyzer{ready: true, frame: viseme.Single(viseme.OH, 0.5)}
		c, _ := newTestController(t, a, nil)
		c.SetAnalyzer(nil)
		c.PushAudio(context.Background(), make([]float32, 64), 1)
		assert.Equal(t, 0, a.calls)
	})
}

func TestControllerPublishesTransitions(t *testing.T) {
	b := bus.NewEventBus()
	events := make(chan bus.Event, 4)
	b.Subscribe(bus.EventTypeStateChanged, func(e bus.Event) { events <- e })

	c, _ := newTestController(t, nil, b)
	ctx := context.Background()

	c.Tick(ctx) // idle -> idle, no event
	c.Slot().Store(viseme.Single(viseme.E, 1))
	c.Tick(ctx)
	c.Tick(ctx) // still active, no event

	select {
	case e := <-events:
		assert.Equal(t, "idle", e.Data["from"])
		assert.Equal(t, "active", e.Data["to"])
	case <-time.After(time.Second):
		t.Fatal("no transition event")
	}

	select {
	case e := <-events:
		t.Fatalf("unexpected event %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControllerOnPose(t *testing.T) {
	c, _ := newTestController(t, nil, nil)

	var poses []Pose
	c.SetOnPose(func(p Pose) { poses = append(poses, p) })

	c.Tick(context.Background())
	c.Slot().Store(viseme.Single(viseme.OU, 1))
	c.Tick(context.Background())

	require.Len(t, poses, 2)
	assert.Equal(t, StateIdle, poses[0].State)
	assert.Equal(t, StateActive, poses[1].State)
	assert.InDelta(t, 100, poses[1].Weights.Get(rig.DefaultChannelMap().Index(rig.TightO)), eps)
}

func TestControllerSetMapperConfig(t *testing.T) {
	c, r := newTestController(t, nil, nil)
	c.Slot().Store(viseme.Single(viseme.PP, 1))

	cfg := c.MapperConfig()
	cfg.Gain = 0.5
	c.SetMapperConfig(cfg)

	c.Tick(context.Background())
	assert.InDelta(t, 50, r.ChannelWeight(cfg.Channels.Index(rig.Explosive)), eps)
	assert.Equal(t, float32(0.5), c.MapperConfig().Gain)
}

func TestControllerMappingChangeZeroesStaleChannels(t *testing.T) {
	ctx := context.Background()
	var frame viseme.Frame
	frame[viseme.DD] = 0.7
	frame[viseme.KK] = 1.5

	t.Run("blend to direct", func(t *testing.T) {
		c, r := newTestController(t, nil, nil)
		blend := c.MapperConfig()
		c.Slot().Store(frame)
		c.Tick(ctx)
		require.InDelta(t, 70, r.ChannelWeight(blend.Channels.Index(rig.DropLower)), eps)
		require.InDelta(t, 150, r.ChannelWeight(blend.Channels.Index(rig.ShrugUpper)), eps)

		direct := blend
		direct.Mode = ModeDirect
		c.SetMapperConfig(direct)
		c.Slot().Clear()
		pose := c.Tick(ctx)

		assert.Equal(t, StateIdle, pose.State)
		assertIdlePose(t, r, blend.Channels)
		assert.True(t, pose.Weights.Has(blend.Channels.Index(rig.DropLower)))
	})

	t.Run("base offset swap", func(t *testing.T) {
		c, r := newTestController(t, nil, nil)
		base0 := c.MapperConfig()
		c.Slot().Store(frame)
		c.Tick(ctx)

		base200 := base0
		base200.Channels = base0.Channels.WithBase(200)
		c.SetMapperConfig(base200)
		c.Tick(ctx)
		oldDrop := base0.Channels.Index(rig.DropLower)
		newDrop := base200.Channels.Index(rig.DropLower)
		assert.Equal(t, float32(0), r.ChannelWeight(oldDrop))
		assert.InDelta(t, 70, r.ChannelWeight(newDrop), eps)

		c.SetMapperConfig(base0)
		c.Slot().Clear()
		c.Tick(ctx)
		assertIdlePose(t, r, base0.Channels)
		assertIdlePose(t, r, base200.Channels)
	})
}

func TestControllerRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	require.NoError(t, err)

	c := NewController(DefaultControllerConfig(), rig.NewRig("test", 0), nil, nil, met, zerolog.Nop())
	ctx := context.Background()
	c.PushAudio(ctx, nil, 1)
	c.Tick(ctx)
	c.Slot().Store(viseme.Single(viseme.AA, 1))
	c.Tick(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["lipsync.ticks"])
	assert.True(t, names["lipsync.tick.duration"])
	assert.True(t, names["lipsync.state.transitions"])
	assert.True(t, names["lipsync.audio.dropped"])
}

func TestControllerRun(t *testing.T) {
	c, _ := newTestController(t, nil, nil)

	var ticks atomic.Int32
	c.SetOnPose(func(Pose) { ticks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Millisecond) }()

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
