// Command lipsyncd drives a facial rig from viseme analysis and streams the
// resulting poses over WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/normanking/cortexlipsync/internal/analyzer"
	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/lipsync"
	"github.com/normanking/cortexlipsync/internal/logging"
	"github.com/normanking/cortexlipsync/internal/observe"
	"github.com/normanking/cortexlipsync/internal/rig"
	"github.com/normanking/cortexlipsync/internal/stream"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (default: search ~/.cortexlipsync and .)")
	text := flag.String("text", "", "speak this text through the timeline analyzer")
	timelinePath := flag.String("timeline", "", "play this .json/.yaml viseme timeline")
	wavPath := flag.String("wav", "", "feed this WAV file as live audio")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lipsyncd: %v\n", err)
		return 1
	}
	if *text != "" || *timelinePath != "" {
		cfg.Analyzer.Kind = config.AnalyzerTimeline
		cfg.Analyzer.Timeline.Text = *text
		cfg.Analyzer.Timeline.Path = *timelinePath
	}
	if *wavPath != "" {
		cfg.Analyzer.Input = *wavPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "lipsyncd: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "lipsyncd: %v\n", err)
		return 1
	}
	defer logger.Close()
	log := logger.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := bus.NewEventBus()

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "cortexlipsync",
		ServiceVersion: version,
		SetGlobal:      true,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialise metrics")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	layout := rig.DefaultChannelMap()
	if cfg.LipSync.Model != "" {
		l, err := rig.LayoutFromGLTF(cfg.LipSync.Model, layout)
		if err != nil {
			log.Warn().Err(err).Str("model", cfg.LipSync.Model).Msg("Model layout unavailable, using default channel indices")
		} else {
			layout = l.Map
			if len(l.Missing) > 0 {
				log.Warn().Strs("missing", l.Missing).Msg("Model lacks some morph targets")
			}
			log.Info().Str("model", cfg.LipSync.Model).Int("morphTargets", len(l.MorphTargets)).Msg("Resolved channel layout from model")
		}
	}

	feeder, err := buildFeeder(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open audio input")
		return 1
	}

	an, err := buildAnalyzer(cfg, eventBus)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build analyzer")
		return 1
	}

	head := rig.NewRig("head", float32(cfg.LipSync.Smoothing))
	ctrl := lipsync.NewController(cfg.ControllerConfig(cfg.ApplyChannels(layout)), head, an, eventBus, provider.Metrics, logger.Component("lipsync"))
	hub := stream.NewHub(cfg.StreamConfig(), eventBus, provider.Metrics, logger.Component("stream"))
	defer hub.Close()

	lastTick := time.Now()
	ctrl.SetOnPose(func(p lipsync.Pose) {
		now := time.Now()
		head.Update(float32(now.Sub(lastTick).Seconds()))
		lastTick = now
		hub.Broadcast(p)
	})

	eventBus.Subscribe(bus.EventTypeTimelineFinished, func(e bus.Event) {
		log.Info().Interface("duration_ms", e.Data["duration_ms"]).Msg("Timeline finished")
	})

	if *configPath != "" {
		watcher, err := config.Watch(*configPath, eventBus, logger.Component("config"))
		if err != nil {
			log.Warn().Err(err).Msg("Config hot-reload disabled")
		} else {
			defer watcher.Close()
			watcher.OnChange(func(c *config.Config) {
				ctrl.SetMapperConfig(c.ControllerConfig(c.ApplyChannels(layout)).Mapper)
			})
		}
	}

	log.Info().
		Str("version", version).
		Str("analyzer", cfg.Analyzer.Kind).
		Str("mode", cfg.LipSync.Mode).
		Int("tickRate", cfg.LipSync.TickRate).
		Msg("lipsyncd starting")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrl.Run(gctx, cfg.TickInterval())
	})

	if an != nil {
		g.Go(func() error {
			if err := feeder.Run(gctx, ctrl.PushAudio); err != nil {
				return err
			}
			log.Info().Msg("Audio input finished")
			ctrl.Slot().Clear()
			return nil
		})
	}

	if cfg.Stream.Enabled {
		srv := &http.Server{Addr: cfg.Stream.Addr, Handler: hub.Handler()}
		log.Info().Str("addr", cfg.Stream.Addr).Str("path", cfg.Stream.Path).Msg("Pose stream listening")
		g.Go(serve(gctx, srv))
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, provider.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		log.Info().Str("addr", cfg.Metrics.Addr).Str("path", cfg.Metrics.Path).Msg("Metrics listening")
		g.Go(serve(gctx, srv))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("lipsyncd stopped with error")
		return 1
	}

	log.Info().Msg("lipsyncd stopped")
	return 0
}

func buildAnalyzer(cfg *config.Config, eventBus *bus.EventBus) (lipsync.Analyzer, error) {
	switch cfg.Analyzer.Kind {
	case config.AnalyzerEnergy:
		return analyzer.NewEnergyAnalyzer(cfg.EnergyConfig()), nil

	case config.AnalyzerTimeline:
		var (
			tl  *analyzer.Timeline
			err error
		)
		if cfg.Analyzer.Timeline.Path != "" {
			tl, err = analyzer.LoadTimeline(cfg.Analyzer.Timeline.Path)
			if err != nil {
				return nil, err
			}
		} else {
			tl = analyzer.FromText(cfg.Analyzer.Timeline.Text, 0)
		}
		a := analyzer.NewTimelineAnalyzer(cfg.TimelineConfig(), eventBus)
		if err := a.Load(tl); err != nil {
			return nil, err
		}
		return a, nil

	default:
		// Frames arrive through the controller's slot, if at all.
		return nil, nil
	}
}

// buildFeeder opens the configured WAV input, or silence. A WAV file's own
// rate and channel count replace the analyzer settings so timelines stay in step.
func buildFeeder(cfg *config.Config) (*audio.Feeder, error) {
	if cfg.Analyzer.Input == "" {
		return audio.NewSilenceFeeder(cfg.Analyzer.Channels, cfg.Analyzer.SampleRate, cfg.Analyzer.BufferSize), nil
	}

	clip, err := audio.ReadWAVFile(cfg.Analyzer.Input)
	if err != nil {
		return nil, err
	}
	cfg.Analyzer.SampleRate = clip.SampleRate
	cfg.Analyzer.Channels = clip.Channels
	return audio.NewFeeder(clip, cfg.Analyzer.BufferSize, cfg.Analyzer.LoopInput), nil
}

func serve(ctx context.Context, srv *http.Server) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			return fmt.Errorf("%s: %w", srv.Addr, err)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}
