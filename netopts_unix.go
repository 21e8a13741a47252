//go:build unix

package netasync

import "syscall"

// setReuseAddrBroadcast is a net.ListenConfig.Control callback enabling
// SO_REUSEADDR and SO_BROADCAST on the raw socket before bind, per
// spec.md §6's DatagramReceiver first-use requirement.
func setReuseAddrBroadcast(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
