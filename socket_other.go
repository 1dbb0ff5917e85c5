//go:build !linux

package pingback

import (
	"fmt"
	"net"
	"runtime"
)

// OpenRawSocket is only implemented on linux.
func OpenRawSocket(bindAddress net.IP) (RawSocket, error) {
	return nil, fmt.Errorf("%w: raw icmp sockets are not supported on %s", ErrSocketOpen, runtime.GOOS)
}
