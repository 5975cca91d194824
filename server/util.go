package server

import (
	"os"
	"strconv"
	"syscall"
)

func itoa(n int) string { return strconv.Itoa(n) }

func osHostname() (string, error) { return os.Hostname() }

// setReuseAddr is a net.ListenConfig.Control callback enabling
// SO_REUSEADDR on the listening socket before bind, matching the TCP
// options required of the acceptor.
func setReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
