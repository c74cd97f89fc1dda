package exporter

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/telemetry"
	"github.com/VictoriaMetrics/metrics"
)

const (
	ErrListen = errors.ErrorCode("exporter_listen_failed")
	ErrServe  = errors.ErrorCode("exporter_serve_failed")

	shutdownTimeout = 5 * time.Second
)

// Exporter publishes the monitor state in Prometheus text format.
type Exporter struct {
	set *metrics.Set

	temperature *metrics.Gauge
	cpuLoad     *metrics.Gauge
	memory      *metrics.Gauge
	diskUsage   *metrics.Gauge
	diskActive  *metrics.Gauge
	fanOn       *metrics.Gauge
	displayOn   *metrics.Gauge
	leds        map[string]*metrics.Gauge

	displayChanges *metrics.Counter
	refreshErrors  *metrics.Counter

	mu sync.Mutex
}

func New() *Exporter {
	s := metrics.NewSet()

	e := &Exporter{
		set:            s,
		temperature:    s.NewGauge("pimonitor_temperature_celsius", nil),
		cpuLoad:        s.NewGauge("pimonitor_cpu_load_percent", nil),
		memory:         s.NewGauge("pimonitor_memory_used_percent", nil),
		diskUsage:      s.NewGauge("pimonitor_disk_used_percent", nil),
		diskActive:     s.NewGauge("pimonitor_disk_active", nil),
		fanOn:          s.NewGauge("pimonitor_fan_on", nil),
		displayOn:      s.NewGauge("pimonitor_display_on", nil),
		leds:           make(map[string]*metrics.Gauge),
		displayChanges: s.NewCounter("pimonitor_display_power_changes_total"),
		refreshErrors:  s.NewCounter("pimonitor_refresh_errors_total"),
	}
	for _, led := range []string{"temp", "cpu", "disk", "health"} {
		e.leds[led] = s.NewGauge(fmt.Sprintf(`pimonitor_led_state{led=%q}`, led), nil)
	}

	return e
}

// ObserveRefresh updates the gauges from one refresh.
func (e *Exporter) ObserveRefresh(snap telemetry.Snapshot, states indicator.States, fanOn, displayOn bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.temperature.Set(snap.TemperatureC)
	e.cpuLoad.Set(snap.CPULoadPct)
	e.memory.Set(snap.MemoryPct)
	e.diskUsage.Set(snap.DiskUsagePct)
	e.diskActive.Set(boolToFloat(snap.DiskActive))
	e.fanOn.Set(boolToFloat(fanOn))
	e.displayOn.Set(boolToFloat(displayOn))

	e.leds["temp"].Set(float64(states.Temp))
	e.leds["cpu"].Set(float64(states.CPU))
	e.leds["disk"].Set(float64(states.Disk))
	e.leds["health"].Set(float64(states.Health))
}

// ObserveRefreshError counts a failed telemetry sample.
func (e *Exporter) ObserveRefreshError() {
	e.refreshErrors.Inc()
}

// ObserveMotionEpisode counts a finished motion episode and its length.
func (e *Exporter) ObserveMotionEpisode(source string, d time.Duration) {
	e.set.GetOrCreateCounter(fmt.Sprintf(`pimonitor_motion_episodes_total{source=%q}`, source)).Inc()
	e.set.GetOrCreateSummary(fmt.Sprintf(`pimonitor_motion_episode_seconds{source=%q}`, source)).
		Update(d.Seconds())
}

// ObserveDisplayChange counts a display power transition.
func (e *Exporter) ObserveDisplayChange(on bool) {
	e.displayChanges.Inc()
	e.displayOn.Set(boolToFloat(on))
}

// Handler serves the metrics in Prometheus text exposition format.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		e.set.WritePrometheus(w)
	})
}

// Serve listens on addr until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string, log logger.Logger) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errFactory.Wrap(ErrListen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Debug().Err(err).Msg("Exporter shutdown incomplete")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Metrics exporter listening")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errFactory.Wrap(ErrServe, err)
	}
	<-done

	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
