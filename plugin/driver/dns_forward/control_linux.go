//go:build linux

package dns_forward

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

type controlFunc = func(network, address string, c syscall.RawConn) error

// newControl returns a dialer control that sets SO_MARK and binds the socket
// to device. It returns nil if neither is set.
func newControl(mark int, device string) (controlFunc, error) {
	if mark == 0 && len(device) == 0 {
		return nil, nil
	}
	return func(_, _ string, c syscall.RawConn) error {
		var sErr error
		err := c.Control(func(fd uintptr) {
			if mark != 0 {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_MARK, mark); err != nil {
					sErr = fmt.Errorf("failed to set so_mark, %w", err)
					return
				}
			}
			if len(device) > 0 {
				if err := unix.BindToDevice(int(fd), device); err != nil {
					sErr = fmt.Errorf("failed to bind to device %s, %w", device, err)
				}
			}
		})
		if err != nil {
			return err
		}
		return sErr
	}, nil
}
