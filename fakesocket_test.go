package pingback

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
)

type datagram struct {
	data []byte
	addr net.IP
}

// fakeSocket is an in-memory RawSocket. Frames pushed with deliver are read
// back by ReadFrom; writes are recorded on sent and, when the socket is
// connected to a peer, wrapped in an IPv4 header and delivered to it.
type fakeSocket struct {
	local   net.IP
	peer    *fakeSocket
	inbound chan datagram
	sent    chan datagram

	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	deadline time.Time
}

func newFakeSocket(local net.IP) *fakeSocket {
	return &fakeSocket{
		local:   local,
		inbound: make(chan datagram, 64),
		sent:    make(chan datagram, 64),
		closed:  make(chan struct{}),
	}
}

func connectFakeSockets(a, b *fakeSocket) {
	a.peer = b
	b.peer = a
}

func (s *fakeSocket) opener() SocketOpener {
	return func(net.IP) (RawSocket, error) {
		return s, nil
	}
}

func (s *fakeSocket) deliver(frame []byte, from net.IP) {
	s.inbound <- datagram{data: frame, addr: from}
}

func (s *fakeSocket) ReadFrom(b []byte) (int, net.IP, error) {
	select {
	case <-s.closed:
		return 0, nil, fmt.Errorf("recvfrom: %w", ErrSocketClosed)
	default:
	}

	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case d := <-s.inbound:
		n := copy(b, d.data)
		return n, d.addr, nil
	case <-s.closed:
		return 0, nil, fmt.Errorf("recvfrom: %w", ErrSocketClosed)
	case <-timeout:
		return 0, nil, fmt.Errorf("recvfrom: %w", os.ErrDeadlineExceeded)
	}
}

func (s *fakeSocket) WriteTo(b []byte, dst net.IP) error {
	select {
	case <-s.closed:
		return fmt.Errorf("sendto: %w", ErrSocketClosed)
	default:
	}

	data := append([]byte(nil), b...)
	select {
	case s.sent <- datagram{data: data, addr: dst}:
	default:
	}

	if s.peer == nil {
		return nil
	}

	msg, err := Decode(data, false)
	if err != nil {
		return err
	}
	buf := gopacket.NewSerializeBuffer()
	if err := BuildICMPFrame(s.local, dst, 64, msg, buf); err != nil {
		return err
	}
	s.peer.deliver(buf.Bytes(), s.local)

	return nil
}

func (s *fakeSocket) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deadline = t
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

// nextSent waits briefly for the next datagram written to s.
func (s *fakeSocket) nextSent(timeout time.Duration) (datagram, bool) {
	select {
	case d := <-s.sent:
		return d, true
	case <-time.After(timeout):
		return datagram{}, false
	}
}
