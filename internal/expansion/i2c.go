package expansion

import (
	"fmt"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
const i2cSlave = 0x0703

// bus abstracts the character device for testing
type bus interface {
	Write(p []byte) (int, error)
	Close() error
}

type i2cDev struct {
	fd int
}

func openI2C(busNum, addr int) (*i2cDev, error) {
	errFactory := errors.New()
	path := fmt.Sprintf("/dev/i2c-%d", busNum)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, fmt.Errorf("%s: %w", path, err))
	}

	if err := unix.IoctlSetInt(fd, i2cSlave, addr); err != nil {
		unix.Close(fd)
		return nil, errFactory.Wrap(ErrOpenFailed, fmt.Errorf("select address %#x: %w", addr, err))
	}

	return &i2cDev{fd: fd}, nil
}

func (d *i2cDev) Write(p []byte) (int, error) {
	return unix.Write(d.fd, p)
}

func (d *i2cDev) Close() error {
	return unix.Close(d.fd)
}
