package pingback

import (
	"net"
	"time"
)

// RawSocket is the datagram primitive the responder and pinger run on. Reads
// return whole IPv4 frames (IP header included), writes take a bare ICMP
// message and let the kernel prepend the IP header.
//
// Implementations must make a ReadFrom that is blocked, or issued, after
// Close return an error matching ErrSocketClosed.
type RawSocket interface {
	ReadFrom(b []byte) (int, net.IP, error)
	WriteTo(b []byte, dst net.IP) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// SocketOpener opens a RawSocket bound to bindAddress. Errors should wrap
// ErrSocketOpen or ErrBind.
type SocketOpener func(bindAddress net.IP) (RawSocket, error)
