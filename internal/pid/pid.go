package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	pidFile = "pimonitor.pid"
)

// File is a PID file guarding against a second running instance.
type File struct {
	path string
}

// New returns a PID file at path, or in the temp directory when path is empty.
func New(path string) *File {
	if path == "" {
		path = filepath.Join(os.TempDir(), pidFile)
	}
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Write writes the current process ID, failing if the recorded process is
// still alive. Unreadable or stale files are replaced.
func (f *File) Write() error {
	errFactory := errors.New()

	if bytes, err := os.ReadFile(f.path); err == nil {
		// PID file exists, check if the process is running
		if pid, err := strconv.Atoi(strings.TrimSpace(string(bytes))); err == nil && pid > 0 && pid != os.Getpid() {
			if err := unix.Kill(pid, 0); err == nil || err == unix.EPERM {
				return errFactory.WithData(errors.ErrAlreadyRunning, pid)
			}
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
