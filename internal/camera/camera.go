package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
)

const (
	DefaultCommand = "rpicam-still"
	DefaultDir     = "/tmp/motion_frames"
	DefaultTimeout = 5 * time.Second

	frameWidth  = 640
	frameHeight = 480
	// sensor exposure time passed to the capture tool, in ms
	exposureMillis = 100
	// frames rotate through a fixed number of slots on disk
	frameSlots = 2
)

// Runner executes the capture command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

type Config struct {
	Command string
	Dir     string
	Timeout time.Duration
}

// Capturer takes still frames with the camera tool and reports their size.
type Capturer struct {
	cfg     Config
	run     Runner
	seq     int
	dirOnce bool
	mu      sync.Mutex
}

func New(cfg Config) *Capturer {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Capturer{cfg: cfg, run: execRunner}
}

// Capture writes the next frame and returns its size in bytes.
func (c *Capturer) Capture(ctx context.Context) (int64, error) {
	errFactory := errors.New()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirOnce {
		if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
			return 0, errFactory.Wrap(ErrCaptureDir, err)
		}
		c.dirOnce = true
	}

	path := c.framePath(c.seq % frameSlots)
	c.seq++

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	args := []string{
		"--timeout", strconv.Itoa(exposureMillis),
		"--width", strconv.Itoa(frameWidth),
		"--height", strconv.Itoa(frameHeight),
		"--nopreview",
		"--output", path,
	}
	if err := c.run(ctx, c.cfg.Command, args...); err != nil {
		return 0, errFactory.Wrap(ErrCaptureFailed, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, errFactory.Wrap(ErrCaptureFailed, err)
	}
	if info.Size() == 0 {
		return 0, errFactory.WithData(ErrEmptyFrame, path)
	}

	return info.Size(), nil
}

func (c *Capturer) framePath(slot int) string {
	return filepath.Join(c.cfg.Dir, fmt.Sprintf("frame_%d.jpg", slot))
}

// Cleanup removes the frame files.
func (c *Capturer) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for slot := 0; slot < frameSlots; slot++ {
		if err := os.Remove(c.framePath(slot)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
