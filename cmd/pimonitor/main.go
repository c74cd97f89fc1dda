package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/pimonitor/internal/camera"
	"codeberg.org/mutker/pimonitor/internal/config"
	"codeberg.org/mutker/pimonitor/internal/display"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/expansion"
	"codeberg.org/mutker/pimonitor/internal/exporter"
	"codeberg.org/mutker/pimonitor/internal/fan"
	"codeberg.org/mutker/pimonitor/internal/gpio"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/metrics"
	"codeberg.org/mutker/pimonitor/internal/monitor"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"codeberg.org/mutker/pimonitor/internal/pid"
	"codeberg.org/mutker/pimonitor/internal/telemetry"
)

// outputs drives the status LEDs and the fan.
type outputs interface {
	monitor.LEDOutput
	fan.Actuator
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	if err := logger.Init(level, logger.IsService(), cfg.Syslog); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	logger.Debug().Msg("Config loaded")

	pidFile := pid.New("")
	if err := pidFile.Write(); err != nil {
		if e, ok := err.(errors.Error); ok {
			logger.ErrorWithCode(e).Msg("Failed to write PID file")
		} else {
			logger.Error().Err(err).Msg("Failed to write PID file")
		}
		return 1
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := loop(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
		return 1
	}

	logger.Info().Msg("Exiting...")

	return 0
}

func loop(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()
	log := logger.Default()

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.DiskPath = cfg.Telemetry.DiskPath
	telemetryCfg.ActivityHold = cfg.Telemetry.ActivityHold
	sampler, err := telemetry.NewSampler(telemetryCfg)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	out := openOutputs(cfg)
	defer closeOutputs(out)

	var pirSensor motion.PIRSensor
	if cfg.PIR.Enabled {
		p := gpio.NewPIR(cfg.PIR.Pin)
		defer func() {
			if err := p.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to release GPIO")
			}
		}()
		pirSensor = p
	}

	capturer := camera.New(camera.Config{
		Command: cfg.Camera.Command,
		Dir:     cfg.Camera.CaptureDir,
		Timeout: cfg.Camera.Timeout,
	})
	defer func() {
		if err := capturer.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("Failed to remove motion frames")
		}
	}()

	detector := motion.New(motion.Config{
		PIREnabled:     cfg.PIR.Enabled,
		Stabilization:  cfg.PIR.Stabilization,
		Sensitivity:    cfg.Camera.Sensitivity,
		LogWindow:      cfg.Motion.LogWindow,
		MinLogDuration: cfg.Motion.MinLogDuration,
	}, pirSensor, capturer, logger.NewSink("motion"))

	strategies, err := display.NewStrategies(cfg.Display.Methods, display.StrategyOptions{
		Output:         cfg.Display.Output,
		XDisplay:       cfg.Display.XDisplay,
		CommandTimeout: cfg.Display.CommandTimeout,
	})
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	displayCtl := display.NewController(
		display.NewPower(strategies, log),
		cfg.Display.Timeout,
		cfg.Display.AssumeOn,
		time.Now(),
		logger.NewSink("display"),
	)

	fanCtl, err := fan.New(cfg.Fan.OnThreshold, cfg.Fan.OffThreshold, out, logger.NewSink("fan"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	onAt, offAt := fanCtl.Thresholds()
	logger.Info().Float64("fan_on_c", onAt).Float64("fan_off_c", offAt).Msg("Fan control configured")

	history, err := metrics.NewService(metrics.Config{
		DBPath:       cfg.Metrics.DBPath,
		BatchSize:    cfg.Metrics.BatchSize,
		BatchTimeout: cfg.Metrics.BatchTimeout,
		Enabled:      cfg.Metrics.Enabled,
	}, log)
	if err != nil {
		// history is optional
		logger.Warn().Err(err).Msg("Metrics history unavailable")
		history = nil
	} else {
		defer func() {
			if err := history.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close metrics history")
			}
		}()
	}

	var observer monitor.Observer
	if cfg.Exporter.Listen != "" {
		exp := exporter.New()
		observer = exp
		go func() {
			if err := exp.Serve(ctx, cfg.Exporter.Listen, log); err != nil {
				logger.Error().Err(err).Msg("Metrics exporter stopped")
			}
		}()
	}

	components := monitor.Components{
		Sampler:  sampler,
		Detector: detector,
		Display:  displayCtl,
		Fan:      fanCtl,
		LEDs:     out,
		History:  history,
		Observer: observer,
		Sink:     logger.NewSink("monitor"),
	}

	mon, err := monitor.New(monitor.Config{
		RefreshInterval: cfg.RefreshInterval,
		PollInterval: func(mode motion.Mode) time.Duration {
			return cfg.MotionPollInterval(mode == motion.ModePIR)
		},
	}, components)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	if err := mon.Run(ctx); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	last := mon.Status()
	logger.Info().
		Str("motion_mode", last.Mode.String()).
		Float64("temp_c", last.Snapshot.TemperatureC).
		Float64("cpu_pct", last.Snapshot.CPULoadPct).
		Bool("fan_on", last.FanOn).
		Msg("Monitor stopped")

	return nil
}

// openOutputs connects to the expansion board, falling back to log-only
// outputs when it is disabled or missing.
func openOutputs(cfg *config.Config) outputs {
	if !cfg.Expansion.Enabled {
		return expansion.NewLogOutputs(logger.NewSink("outputs"))
	}

	board, err := expansion.Open(cfg.Expansion.Bus, cfg.Expansion.Address)
	if err != nil {
		logger.Warn().Err(err).Msg("Expansion board unavailable, LED and fan output will only be logged")
		return expansion.NewLogOutputs(logger.NewSink("outputs"))
	}

	logger.Info().
		Int("bus", cfg.Expansion.Bus).
		Str("address", fmt.Sprintf("%#x", cfg.Expansion.Address)).
		Msg("Expansion board connected")

	return expansion.NewOutputs(board)
}

func closeOutputs(out outputs) {
	o, ok := out.(*expansion.Outputs)
	if !ok {
		return
	}
	if err := o.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to reset expansion board")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
