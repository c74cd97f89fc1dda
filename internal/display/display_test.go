package display_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/pimonitor/internal/display"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePower struct {
	calls []bool
	err   error
}

func (f *fakePower) SetPower(_ context.Context, on bool) error {
	f.calls = append(f.calls, on)
	return f.err
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func triggered(at time.Time) motion.Event {
	return motion.Event{Triggered: true, Source: motion.ModePIR, At: at}
}

func TestWakeAndSleep(t *testing.T) {
	power := &fakePower{}
	rec := &logger.Recorder{}
	c := display.NewController(power, time.Minute, false, t0, rec)
	ctx := context.Background()

	_, ok := c.Tick(ctx, t0)
	assert.False(t, ok)

	change, ok := c.OnMotionEvent(ctx, triggered(t0), t0)
	require.True(t, ok)
	assert.True(t, change.On)
	assert.Equal(t, "PIR", change.Source)
	assert.True(t, c.State().PoweredOn)

	// further motion only refreshes the timestamp
	_, ok = c.OnMotionEvent(ctx, triggered(t0.Add(30*time.Second)), t0.Add(30*time.Second))
	assert.False(t, ok)

	_, ok = c.Tick(ctx, t0.Add(89*time.Second))
	assert.False(t, ok)

	change, ok = c.Tick(ctx, t0.Add(90*time.Second))
	require.True(t, ok)
	assert.False(t, change.On)
	assert.False(t, c.State().PoweredOn)

	assert.Equal(t, []bool{true, false}, power.calls)
	assert.True(t, strings.Contains(rec.Entries()[0].Msg, "PIR"))
}

func TestNonTriggeredEventIgnored(t *testing.T) {
	power := &fakePower{}
	c := display.NewController(power, time.Minute, false, t0, &logger.Recorder{})

	_, ok := c.OnMotionEvent(context.Background(), motion.Event{At: t0}, t0)
	assert.False(t, ok)
	assert.Empty(t, power.calls)
	assert.True(t, c.State().LastMotionAt.IsZero())
}

func TestAssumeOnSleepsAfterTimeout(t *testing.T) {
	power := &fakePower{}
	c := display.NewController(power, time.Minute, true, t0, &logger.Recorder{})

	assert.True(t, c.State().PoweredOn)
	_, ok := c.Tick(context.Background(), t0.Add(time.Minute))
	assert.True(t, ok)
	assert.Equal(t, []bool{false}, power.calls)
}

func TestTotalFailureLeavesStateUnchanged(t *testing.T) {
	power := &fakePower{err: fmt.Errorf("no display")}
	rec := &logger.Recorder{}
	c := display.NewController(power, time.Minute, false, t0, rec)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		_, ok := c.OnMotionEvent(ctx, triggered(ts), ts)
		assert.False(t, ok)
	}
	assert.False(t, c.State().PoweredOn)
	assert.Len(t, power.calls, 5, "every event retries")

	var failures int
	for _, e := range rec.Entries() {
		if e.Level == logger.ErrorLevel {
			failures++
		}
	}
	assert.Equal(t, 1, failures, "failures are rate limited")

	power.err = nil
	_, ok := c.OnMotionEvent(ctx, triggered(t0.Add(10*time.Second)), t0.Add(10*time.Second))
	assert.True(t, ok)
	assert.True(t, c.State().PoweredOn)
}

type fakeStrategy struct {
	name  string
	err   error
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) SetPower(context.Context, bool) error {
	f.calls++
	return f.err
}

func TestPowerFallbackOrder(t *testing.T) {
	first := &fakeStrategy{name: "xset", err: fmt.Errorf("no X")}
	second := &fakeStrategy{name: "xrandr"}
	third := &fakeStrategy{name: "vcgencmd"}
	p := display.NewPower([]display.Strategy{first, second, third}, logger.Default())

	require.NoError(t, p.SetPower(context.Background(), true))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Zero(t, third.calls)
	assert.Equal(t, "xrandr", p.LastMethod())
}

func TestPowerAllFail(t *testing.T) {
	a := &fakeStrategy{name: "xset", err: fmt.Errorf("a")}
	b := &fakeStrategy{name: "tvservice", err: fmt.Errorf("b")}
	p := display.NewPower([]display.Strategy{a, b}, logger.Default())

	err := p.SetPower(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, display.ErrTotalFailure))
	assert.Empty(t, p.LastMethod())
}

func TestStrategyCommands(t *testing.T) {
	type call struct {
		env  []string
		name string
		args []string
	}
	var calls []call
	runner := func(_ context.Context, env []string, name string, args ...string) error {
		calls = append(calls, call{env, name, args})
		return nil
	}
	opts := display.StrategyOptions{Output: "DSI-1", XDisplay: ":0", Runner: runner}

	tests := []struct {
		method  string
		on, off []string
		env     []string
	}{
		{"xset", []string{"dpms", "force", "on"}, []string{"dpms", "force", "off"}, []string{"DISPLAY=:0"}},
		{"xrandr", []string{"--output", "DSI-1", "--auto"}, []string{"--output", "DSI-1", "--off"}, []string{"DISPLAY=:0"}},
		{"vcgencmd", []string{"display_power", "1"}, []string{"display_power", "0"}, nil},
		{"tvservice", []string{"-p"}, []string{"-o"}, nil},
		{"wlr-randr", []string{"--output", "DSI-1", "--on"}, []string{"--output", "DSI-1", "--off"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			calls = nil
			s, err := display.NewStrategy(tt.method, opts)
			require.NoError(t, err)
			assert.Equal(t, tt.method, s.Name())

			require.NoError(t, s.SetPower(context.Background(), true))
			require.NoError(t, s.SetPower(context.Background(), false))
			require.Len(t, calls, 2)
			assert.Equal(t, tt.method, calls[0].name)
			assert.Equal(t, tt.on, calls[0].args)
			assert.Equal(t, tt.off, calls[1].args)
			assert.Equal(t, tt.env, calls[0].env)
		})
	}
}

func TestStrategyFailureWrapped(t *testing.T) {
	runner := func(context.Context, []string, string, ...string) error {
		return fmt.Errorf("exit status 1")
	}
	s, err := display.NewStrategy("vcgencmd", display.StrategyOptions{Runner: runner})
	require.NoError(t, err)

	err = s.SetPower(context.Background(), true)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, display.ErrCommandFailed))
}

func TestUnknownStrategy(t *testing.T) {
	_, err := display.NewStrategies([]string{"xset", "ddcutil"}, display.StrategyOptions{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, display.ErrUnsupportedMethod))
}

func TestStrategyCommandTimeout(t *testing.T) {
	runner := func(ctx context.Context, _ []string, _ string, _ ...string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s, err := display.NewStrategy("xset", display.StrategyOptions{
		CommandTimeout: 50 * time.Millisecond,
		Runner:         runner,
	})
	require.NoError(t, err)

	power := display.NewPower([]display.Strategy{s}, logger.Default())
	c := display.NewController(power, time.Minute, false, t0, &logger.Recorder{})

	start := time.Now()
	_, ok := c.OnMotionEvent(context.Background(), triggered(t0), t0)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, c.State().PoweredOn)
}

func TestExecRunnerHungChild(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := display.ExecRunner(ctx, nil, "sh", "-c", "sleep 10")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
