package spyserver

import (
	"io"
	"net"
	"time"
)

// transport is the subset of net.Conn the session depends on. Tests
// substitute net.Pipe() connections (or a fake implementing this
// interface) for a real dial.
type transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// dial opens a TCP connection to address, failing if the connect does not
// complete within timeout.
func dial(address string, timeout time.Duration) (transport, error) {
	return net.DialTimeout("tcp", address, timeout)
}
