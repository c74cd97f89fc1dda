package gpio

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	openErr  error
	high     bool
	opened   int
	closed   int
	inputs   []int
	pullDown []int
}

func (f *fakeDriver) Open() error {
	f.opened++
	return f.openErr
}

func (f *fakeDriver) Close() error {
	f.closed++
	return nil
}

func (f *fakeDriver) Input(pin int)    { f.inputs = append(f.inputs, pin) }
func (f *fakeDriver) PullDown(pin int) { f.pullDown = append(f.pullDown, pin) }
func (f *fakeDriver) Read(int) bool    { return f.high }

func TestPIRSetupAndRead(t *testing.T) {
	drv := &fakeDriver{}
	p := &PIR{pin: 23, drv: drv}

	_, err := p.Read()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrNotInitialized))

	require.NoError(t, p.Setup())
	require.NoError(t, p.Setup())
	assert.Equal(t, 1, drv.opened)
	assert.Equal(t, []int{23}, drv.inputs)
	assert.Equal(t, []int{23}, drv.pullDown)

	high, err := p.Read()
	require.NoError(t, err)
	assert.False(t, high)

	drv.high = true
	high, err = p.Read()
	require.NoError(t, err)
	assert.True(t, high)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, drv.closed)
}

func TestPIRSetupFailure(t *testing.T) {
	drv := &fakeDriver{openErr: fmt.Errorf("/dev/gpiomem: permission denied")}
	p := &PIR{pin: 23, drv: drv}

	err := p.Setup()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrOpenFailed))

	_, err = p.Read()
	assert.Error(t, err)
	assert.NoError(t, p.Close())
	assert.Zero(t, drv.closed)
}

func TestPIRInvalidPin(t *testing.T) {
	drv := &fakeDriver{}
	p := &PIR{pin: 40, drv: drv}

	err := p.Setup()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidPin))
	assert.Zero(t, drv.opened)
}
