package pingback

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type rawSocket struct {
	file   *os.File
	conn   syscall.RawConn
	closed atomic.Bool
}

// OpenRawSocket opens an AF_INET SOCK_RAW socket for IPPROTO_ICMP and binds
// it to bindAddress. A nil or unspecified address binds to all local
// addresses. Raw ICMP has no ports, so the bind only filters on the local
// address. Requires CAP_NET_RAW.
func OpenRawSocket(bindAddress net.IP) (RawSocket, error) {
	sa := &unix.SockaddrInet4{}
	if bindAddress != nil && !bindAddress.IsUnspecified() {
		ip4 := bindAddress.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%w: %s is not an ipv4 address", ErrBind, bindAddress)
		}
		copy(sa.Addr[:], ip4)
	}

	// the fd is non-blocking so os.NewFile registers it with the runtime
	// poller, which is what lets Close wake a blocked read
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_ICMP)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSocketOpen, err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, bindAddress, err)
	}

	file := os.NewFile(uintptr(fd), fmt.Sprintf("icmp:%s", bindAddress))
	conn, err := file.SyscallConn()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %w", ErrSocketOpen, err)
	}

	return &rawSocket{file: file, conn: conn}, nil
}

func (s *rawSocket) ReadFrom(b []byte) (int, net.IP, error) {
	var (
		n     int
		from  unix.Sockaddr
		opErr error
	)
	err := s.conn.Read(func(fd uintptr) bool {
		n, from, opErr = unix.Recvfrom(int(fd), b, 0)
		return opErr != unix.EAGAIN && opErr != unix.EWOULDBLOCK
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		return 0, nil, s.wrapErr("recvfrom", err)
	}

	var peer net.IP
	if sa, ok := from.(*unix.SockaddrInet4); ok {
		peer = net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3])
	}

	return n, peer, nil
}

func (s *rawSocket) WriteTo(b []byte, dst net.IP) error {
	dst4 := dst.To4()
	if dst4 == nil {
		return fmt.Errorf("dest IP must be an ipv4 address, got %s", dst)
	}
	addr := &unix.SockaddrInet4{
		Addr: [4]byte{dst4[0], dst4[1], dst4[2], dst4[3]},
	}

	var opErr error
	err := s.conn.Write(func(fd uintptr) bool {
		opErr = unix.Sendto(int(fd), b, 0, addr)
		return opErr != unix.EAGAIN && opErr != unix.EWOULDBLOCK
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		return s.wrapErr("sendto", err)
	}

	return nil
}

func (s *rawSocket) SetReadDeadline(t time.Time) error {
	if err := s.file.SetReadDeadline(t); err != nil {
		return s.wrapErr("set read deadline", err)
	}
	return nil
}

func (s *rawSocket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.file.Close()
}

func (s *rawSocket) wrapErr(op string, err error) error {
	if s.closed.Load() || errors.Is(err, os.ErrClosed) || strings.Contains(err.Error(), "use of closed file") {
		return fmt.Errorf("%s: %w", op, ErrSocketClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
