//go:build !linux

package dns_forward

import (
	"errors"
	"syscall"
)

type controlFunc = func(network, address string, c syscall.RawConn) error

func newControl(mark int, device string) (controlFunc, error) {
	if mark == 0 && len(device) == 0 {
		return nil, nil
	}
	return nil, errors.New("so_mark and bind_to_device are only supported on linux")
}
