package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileRunner writes a frame of the next size to the --output argument.
func fileRunner(sizes []int, calls *[][]string) Runner {
	i := 0
	return func(_ context.Context, name string, args ...string) error {
		*calls = append(*calls, append([]string{name}, args...))
		out := args[len(args)-1]
		size := sizes[i%len(sizes)]
		i++
		return os.WriteFile(out, make([]byte, size), 0o644)
	}
}

func TestCaptureRotatesFrames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	var calls [][]string
	c := New(Config{Dir: dir})
	c.run = fileRunner([]int{100, 250, 300}, &calls)

	for _, want := range []int64{100, 250, 300} {
		size, err := c.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, size)
	}

	require.Len(t, calls, 3)
	assert.Equal(t, DefaultCommand, calls[0][0])
	assert.Contains(t, calls[0], "--nopreview")
	assert.Equal(t, filepath.Join(dir, "frame_0.jpg"), calls[0][len(calls[0])-1])
	assert.Equal(t, filepath.Join(dir, "frame_1.jpg"), calls[1][len(calls[1])-1])
	assert.Equal(t, filepath.Join(dir, "frame_0.jpg"), calls[2][len(calls[2])-1])

	require.NoError(t, c.Cleanup())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCaptureCommandFailure(t *testing.T) {
	c := New(Config{Dir: t.TempDir()})
	c.run = func(context.Context, string, ...string) error {
		return fmt.Errorf("no cameras available")
	}

	_, err := c.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrCaptureFailed))
}

func TestCaptureEmptyFrame(t *testing.T) {
	var calls [][]string
	c := New(Config{Dir: t.TempDir()})
	c.run = fileRunner([]int{0}, &calls)

	_, err := c.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrEmptyFrame))
}

func TestCleanupWithoutFrames(t *testing.T) {
	c := New(Config{Dir: t.TempDir()})
	assert.NoError(t, c.Cleanup())
}
