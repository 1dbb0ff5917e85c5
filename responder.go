package pingback

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Responder
type State int

const (
	StateIdle State = iota
	StateListening
)

func (s State) String() string {
	if s == StateListening {
		return "listening"
	}
	return "idle"
}

// Received is the outcome of one receive, handed over by ReceiveAsync.
type Received struct {
	Message *Message
	Peer    net.IP
	At      time.Time
	Err     error
}

// ResponderStats counts what a Responder has done since it was created.
type ResponderStats struct {
	Replied   uint64
	Discarded uint64
	Malformed uint64
}

// Responder answers ICMP echo requests on a raw socket it exclusively owns.
type Responder struct {
	id                uuid.UUID
	sink              Sink
	open              SocketOpener
	maxPacketSize     int
	receiveTimeout    time.Duration
	validateChecksums bool

	mu        sync.Mutex
	sock      RawSocket
	stopped   bool
	receiving bool

	replied   atomic.Uint64
	discarded atomic.Uint64
	malformed atomic.Uint64
}

// ResponderOption modifies a Responder
// The Responder constructor accepts a variadic parameter
// of ResponderOptions, each of which will be invoked upon construction
type ResponderOption func(*Responder)

// WithSink sets the diagnostics sink events are recorded to
func WithSink(sink Sink) ResponderOption {
	return func(r *Responder) {
		r.sink = sink
	}
}

// WithSocketOpener replaces the function used by Start to open the raw socket
func WithSocketOpener(open SocketOpener) ResponderOption {
	return func(r *Responder) {
		r.open = open
	}
}

// WithMaxPacketSize sets the receive buffer size. Larger datagrams are
// truncated by the kernel.
func WithMaxPacketSize(size int) ResponderOption {
	return func(r *Responder) {
		r.maxPacketSize = size
	}
}

// WithReceiveTimeout bounds every receive. A receive that times out fails
// the Serve or ReceiveOne call it belongs to. Zero disables the timeout.
func WithReceiveTimeout(timeout time.Duration) ResponderOption {
	return func(r *Responder) {
		r.receiveTimeout = timeout
	}
}

// WithChecksumValidation makes the responder drop requests whose checksum
// does not verify, treating them as malformed.
func WithChecksumValidation(validate bool) ResponderOption {
	return func(r *Responder) {
		r.validateChecksums = validate
	}
}

// NewResponder instantiates an idle Responder
func NewResponder(options ...ResponderOption) *Responder {
	r := &Responder{
		id:            uuid.New(),
		sink:          NewLogrusSink(nil),
		open:          OpenRawSocket,
		maxPacketSize: MaxPacketSize,
	}

	for _, opt := range options {
		opt(r)
	}

	if r.sink == nil {
		r.sink = NopSink{}
	}
	if r.maxPacketSize < ipHeaderLen+icmpHeaderLen {
		r.maxPacketSize = ipHeaderLen + icmpHeaderLen
	}

	return r
}

// ID uniquely identifies this responder in recorded events
func (r *Responder) ID() uuid.UUID {
	return r.id
}

// State reports whether the responder currently owns an open socket
func (r *Responder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sock != nil {
		return StateListening
	}
	return StateIdle
}

// Stats returns a snapshot of the responder counters
func (r *Responder) Stats() ResponderStats {
	return ResponderStats{
		Replied:   r.replied.Load(),
		Discarded: r.discarded.Load(),
		Malformed: r.malformed.Load(),
	}
}

// Start opens the raw socket and binds it to bindAddress.
func (r *Responder) Start(bindAddress net.IP) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sock != nil {
		return ErrAlreadyListening
	}

	sock, err := r.open(bindAddress)
	if err != nil {
		if errors.Is(err, ErrSocketOpen) || errors.Is(err, ErrBind) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSocketOpen, err)
	}

	r.sock = sock
	r.stopped = false
	r.sink.Record(Event{Kind: EventListening, Responder: r.id, Addr: bindAddress})

	return nil
}

// Stop closes the socket, waking any blocked receive with ErrSocketClosed.
// Stopping an idle responder does nothing.
func (r *Responder) Stop() error {
	r.mu.Lock()
	sock := r.sock
	r.sock = nil
	if sock != nil {
		r.stopped = true
	}
	r.mu.Unlock()

	if sock == nil {
		return nil
	}

	err := sock.Close()
	r.sink.Record(Event{Kind: EventStopped, Responder: r.id, Err: err})

	return err
}

// Serve answers up to count echo requests, or keeps answering until Stop when
// count is Forever. Truncated packets and other ICMP traffic are skipped and
// never count towards the budget. A non-empty override replaces every echoed
// payload. Serve returns nil once the budget is spent and an error matching
// ErrSocketClosed if the responder is stopped first.
func (r *Responder) Serve(count int, override []byte) error {
	if count < Forever {
		return fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}

	sock, err := r.acquire()
	if err != nil {
		return err
	}
	defer r.release()

	buf := make([]byte, r.maxPacketSize)
	for remaining := count; remaining != 0; {
		req, peer, err := r.receive(sock, buf)
		if err != nil {
			if errors.Is(err, ErrTruncatedPacket) || errors.Is(err, ErrBadChecksum) {
				continue
			}
			return err
		}

		if req.Type != ICMPTypeEchoRequest {
			r.discarded.Add(1)
			r.sink.Record(Event{Kind: EventDiscarded, Responder: r.id, Addr: peer, Message: req})
			continue
		}

		if err := r.reply(sock, req, peer, override); err != nil {
			return err
		}

		if remaining > 0 {
			remaining--
		}
	}

	return nil
}

// ReceiveOne blocks for a single datagram and decodes it. Any ICMP type is
// returned; filtering is left to the caller.
func (r *Responder) ReceiveOne() (*Message, net.IP, error) {
	sock, err := r.acquire()
	if err != nil {
		return nil, nil, err
	}
	defer r.release()

	return r.receive(sock, make([]byte, r.maxPacketSize))
}

// ReceiveAsync starts a single background receive. Its result is delivered
// on the returned channel, which holds one value and is then closed. Only one
// receive may be outstanding per responder.
func (r *Responder) ReceiveAsync() (<-chan Received, error) {
	sock, err := r.acquire()
	if err != nil {
		return nil, err
	}

	result := make(chan Received, 1)
	go func() {
		defer close(result)

		msg, peer, err := r.receive(sock, make([]byte, r.maxPacketSize))
		r.release()
		result <- Received{Message: msg, Peer: peer, At: time.Now(), Err: err}
	}()

	return result, nil
}

// Reply sends the echo reply for req to peer.
func (r *Responder) Reply(req *Message, peer net.IP, override []byte) error {
	r.mu.Lock()
	sock := r.sock
	stopped := r.stopped
	r.mu.Unlock()

	if sock == nil {
		if stopped {
			return ErrSocketClosed
		}
		return ErrNotListening
	}

	return r.reply(sock, req, peer, override)
}

func (r *Responder) reply(sock RawSocket, req *Message, peer net.IP, override []byte) error {
	reply := req.Reply(override)
	b := reply.Marshal()

	if err := sock.WriteTo(b, peer); err != nil {
		return fmt.Errorf("failed to send echo reply to %s: %w", peer, err)
	}

	r.replied.Add(1)
	r.sink.Record(Event{Kind: EventReplied, Responder: r.id, Addr: peer, Message: reply, Frame: b})

	return nil
}

// receive reads and decodes one frame. Malformed frames are recorded and
// returned as errors matching ErrTruncatedPacket or ErrBadChecksum.
func (r *Responder) receive(sock RawSocket, buf []byte) (*Message, net.IP, error) {
	if r.receiveTimeout > 0 {
		if err := sock.SetReadDeadline(time.Now().Add(r.receiveTimeout)); err != nil {
			return nil, nil, err
		}
	}

	n, peer, err := sock.ReadFrom(buf)
	if err != nil {
		return nil, nil, err
	}
	frame := append([]byte(nil), buf[:n]...)

	msg, err := Decode(frame, true)
	if err == nil && r.validateChecksums && !msg.Valid() {
		err = fmt.Errorf("%w: %#04x from %s", ErrBadChecksum, msg.Checksum, peer)
	}
	if err != nil {
		r.malformed.Add(1)
		r.sink.Record(Event{Kind: EventMalformed, Responder: r.id, Addr: peer, Message: msg, Frame: frame, Err: err})
		return nil, peer, err
	}

	r.sink.Record(Event{Kind: EventReceived, Responder: r.id, Addr: peer, Message: msg, Frame: frame})

	return msg, peer, nil
}

// acquire hands out the socket to a single reader at a time.
func (r *Responder) acquire() (RawSocket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sock == nil {
		if r.stopped {
			return nil, ErrSocketClosed
		}
		return nil, ErrNotListening
	}
	if r.receiving {
		return nil, ErrReceiveInFlight
	}
	r.receiving = true

	return r.sock, nil
}

func (r *Responder) release() {
	r.mu.Lock()
	r.receiving = false
	r.mu.Unlock()
}
