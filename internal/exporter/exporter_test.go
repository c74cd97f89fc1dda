package exporter_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/pimonitor/internal/exporter"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, e *exporter.Exporter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveRefresh(t *testing.T) {
	e := exporter.New()
	e.ObserveRefresh(telemetry.Snapshot{
		TemperatureC: 55.5,
		CPULoadPct:   20,
		MemoryPct:    30,
		DiskUsagePct: 40,
		DiskActive:   true,
	}, indicator.States{Temp: indicator.Hot, Health: indicator.Warning}, true, false)

	body := scrape(t, e)
	assert.Contains(t, body, "pimonitor_temperature_celsius 55.5")
	assert.Contains(t, body, "pimonitor_disk_active 1")
	assert.Contains(t, body, "pimonitor_fan_on 1")
	assert.Contains(t, body, "pimonitor_display_on 0")
	assert.Contains(t, body, `pimonitor_led_state{led="temp"} 2`)
	assert.Contains(t, body, `pimonitor_led_state{led="health"} 1`)
}

func TestObserveEvents(t *testing.T) {
	e := exporter.New()
	e.ObserveMotionEpisode("PIR", 10*time.Second)
	e.ObserveMotionEpisode("PIR", 20*time.Second)
	e.ObserveDisplayChange(true)
	e.ObserveRefreshError()

	body := scrape(t, e)
	assert.Contains(t, body, `pimonitor_motion_episodes_total{source="PIR"} 2`)
	assert.Contains(t, body, `pimonitor_motion_episode_seconds_count{source="PIR"} 2`)
	assert.Contains(t, body, "pimonitor_display_power_changes_total 1")
	assert.Contains(t, body, "pimonitor_refresh_errors_total 1")
	assert.Contains(t, body, "pimonitor_display_on 1")
}

func TestServeStopsOnCancel(t *testing.T) {
	e := exporter.New()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Serve(ctx, "127.0.0.1:0", logger.Default()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeInvalidAddress(t *testing.T) {
	err := exporter.New().Serve(context.Background(), "not-an-address", logger.Default())
	assert.Error(t, err)
}
