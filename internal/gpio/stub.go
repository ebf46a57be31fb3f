//go:build !linux

package gpio

import "errors"

// CdevDriver is not available on non-Linux platforms.
type CdevDriver struct{}

// NewCdevDriver returns an error on non-Linux platforms.
func NewCdevDriver(chipName string) (*CdevDriver, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

// ConfigureOutput is not implemented on non-Linux platforms.
func (d *CdevDriver) ConfigureOutput(pin int) error {
	return errors.New("gpio: not supported")
}

// WriteLevel is not implemented on non-Linux platforms.
func (d *CdevDriver) WriteLevel(pin int, level Level) error {
	return errors.New("gpio: not supported")
}

// Release is not implemented on non-Linux platforms.
func (d *CdevDriver) Release() error {
	return nil
}
