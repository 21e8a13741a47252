//go:build !unix

package netasync

import "syscall"

// setReuseAddrBroadcast is the non-Unix fallback: SO_REUSEADDR only
// (SO_BROADCAST is on by default for UDP sockets on Windows).
func setReuseAddrBroadcast(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
