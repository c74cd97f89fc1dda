package fan_test

import (
	"fmt"
	"testing"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/fan"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActuator struct {
	calls []bool
	fail  bool
}

func (f *fakeActuator) SetFan(on bool) error {
	f.calls = append(f.calls, on)
	if f.fail {
		return fmt.Errorf("i2c write failed")
	}
	return nil
}

func TestHysteresisSequence(t *testing.T) {
	act := &fakeActuator{}
	c, err := fan.New(50, 40, act, &logger.Recorder{})
	require.NoError(t, err)

	now := time.Unix(0, 0)
	steps := []struct {
		temp        float64
		wantOn      bool
		wantChanged bool
	}{
		{45, false, false},
		{52, true, true},
		{45, true, false},
		{39, false, true},
	}
	for _, s := range steps {
		on, changed := c.Update(s.temp, now)
		assert.Equal(t, s.wantOn, on, "temp %v", s.temp)
		assert.Equal(t, s.wantChanged, changed, "temp %v", s.temp)
		now = now.Add(time.Second)
	}

	// initial apply of the off state, then one call per change
	assert.Equal(t, []bool{false, true, false}, act.calls)
}

func TestNoOscillationInsideBand(t *testing.T) {
	c, err := fan.New(50, 40, nil, &logger.Recorder{})
	require.NoError(t, err)

	now := time.Unix(0, 0)
	for _, temp := range []float64{41, 49.9, 42, 48, 40} {
		on, changed := c.Update(temp, now)
		assert.False(t, on)
		assert.False(t, changed)
	}

	on, _ := c.Update(50, now)
	require.True(t, on, "on threshold is inclusive")

	for _, temp := range []float64{49.9, 41, 45, 40} {
		on, changed := c.Update(temp, now)
		assert.True(t, on, "temp %v", temp)
		assert.False(t, changed)
	}

	on, changed := c.Update(39.99, now)
	assert.False(t, on)
	assert.True(t, changed)
	assert.False(t, c.IsOn())
}

func TestActuatorFailureRetries(t *testing.T) {
	act := &fakeActuator{}
	rec := &logger.Recorder{}
	c, err := fan.New(50, 40, act, rec)
	require.NoError(t, err)

	now := time.Unix(0, 0)
	c.Update(30, now)

	act.fail = true
	on, changed := c.Update(55, now)
	assert.True(t, on, "logical state follows temperature")
	assert.True(t, changed)

	act.fail = false
	on, changed = c.Update(55, now)
	assert.True(t, on)
	assert.False(t, changed)

	assert.Equal(t, []bool{false, true, true}, act.calls)

	var errorsLogged int
	for _, e := range rec.Entries() {
		if e.Level == logger.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 1, errorsLogged)
}

func TestInvalidThresholds(t *testing.T) {
	_, err := fan.New(40, 50, nil, &logger.Recorder{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidThreshold))

	_, err = fan.New(45, 45, nil, &logger.Recorder{})
	require.Error(t, err)
}

func TestThresholds(t *testing.T) {
	c, err := fan.New(65, 55, &fakeActuator{}, &logger.Recorder{})
	require.NoError(t, err)

	onAt, offAt := c.Thresholds()
	assert.InDelta(t, 65.0, onAt, 0.001)
	assert.InDelta(t, 55.0, offAt, 0.001)
}
