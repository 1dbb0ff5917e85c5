package pingback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EchoErrorType is an enum of possible errors encountered while waiting on an echo reply
type EchoErrorType int

const (
	timedOut EchoErrorType = iota
	fatal
	sendError
)

// EchoResult represents the completion of one echo request, contains information about potential errors
// or the round trip of a successful one
type EchoResult struct {
	Err       error
	ErrorType EchoErrorType
	Sequence  uint16
	Peer      net.IP
	Size      int
	RTT       time.Duration
}

// IsFatal returns true if the error is fatal, otherwise returns false
func (r *EchoResult) IsFatal() bool {
	return r.Err != nil && r.ErrorType == fatal
}

// IsTimeout returns true if no reply arrived in time
func (r *EchoResult) IsTimeout() bool {
	return r.Err != nil && r.ErrorType == timedOut
}

// PingStats summarizes a ping session
type PingStats struct {
	Transmitted int
	Received    int
	Duplicates  int
	RTTs        []time.Duration
}

// Loss returns the percentage of requests that got no reply
func (s PingStats) Loss() float64 {
	if s.Transmitted == 0 {
		return 0
	}
	return 100 * float64(s.Transmitted-s.Received) / float64(s.Transmitted)
}

func (s PingStats) MinRTT() time.Duration {
	var min time.Duration
	for i, rtt := range s.RTTs {
		if i == 0 || rtt < min {
			min = rtt
		}
	}
	return min
}

func (s PingStats) MaxRTT() time.Duration {
	var max time.Duration
	for _, rtt := range s.RTTs {
		if rtt > max {
			max = rtt
		}
	}
	return max
}

func (s PingStats) AvgRTT() time.Duration {
	if len(s.RTTs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, rtt := range s.RTTs {
		sum += rtt
	}
	return sum / time.Duration(len(s.RTTs))
}

// StdDevRTT returns the population standard deviation of the round trip times
func (s PingStats) StdDevRTT() time.Duration {
	if len(s.RTTs) == 0 {
		return 0
	}
	avg := float64(s.AvgRTT())
	var sq float64
	for _, rtt := range s.RTTs {
		d := float64(rtt) - avg
		sq += d * d
	}
	return time.Duration(math.Sqrt(sq / float64(len(s.RTTs))))
}

// Pinger sends echo requests over a RawSocket it owns and matches the replies.
type Pinger struct {
	sock        RawSocket
	listeners   *ListenerMap
	identifier  uint16
	payloadSize int
	interval    time.Duration
	timeout     time.Duration

	mu       sync.Mutex
	stats    PingStats
	answered map[uint16]bool

	done chan struct{}
}

// PingerOption modifies a Pinger
type PingerOption func(*Pinger)

// WithIdentifier sets the echo identifier, which defaults to the low 16 bits of the pid
func WithIdentifier(id uint16) PingerOption {
	return func(p *Pinger) {
		p.identifier = id
	}
}

// WithPayloadSize sets how many data bytes each request carries
func WithPayloadSize(size int) PingerOption {
	return func(p *Pinger) {
		p.payloadSize = size
	}
}

// WithInterval sets the pause between consecutive requests in Run
func WithInterval(interval time.Duration) PingerOption {
	return func(p *Pinger) {
		p.interval = interval
	}
}

// WithReplyTimeout sets how long each request waits for its reply
func WithReplyTimeout(timeout time.Duration) PingerOption {
	return func(p *Pinger) {
		p.timeout = timeout
	}
}

// NewPinger takes ownership of sock and starts reading replies from it.
func NewPinger(sock RawSocket, options ...PingerOption) *Pinger {
	p := &Pinger{
		sock:        sock,
		listeners:   NewListenerMap(),
		identifier:  uint16(os.Getpid() & 0xffff),
		payloadSize: defaultPingPayloadLen,
		interval:    time.Second,
		timeout:     3 * time.Second,
		answered:    make(map[uint16]bool),
		done:        make(chan struct{}),
	}

	for _, opt := range options {
		opt(p)
	}

	if p.payloadSize < 0 {
		p.payloadSize = 0
	} else if p.payloadSize > MaxPayloadLen {
		p.payloadSize = MaxPayloadLen
	}

	go p.receiveLoop()

	return p
}

// Identifier returns the echo identifier stamped on every request
func (p *Pinger) Identifier() uint16 {
	return p.identifier
}

// PayloadSize returns the number of data bytes per request
func (p *Pinger) PayloadSize() int {
	return p.payloadSize
}

// Stats returns a snapshot of the session statistics
func (p *Pinger) Stats() PingStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.RTTs = append([]time.Duration(nil), p.stats.RTTs...)
	return s
}

// Close closes the socket and waits for the receive loop to exit
func (p *Pinger) Close() error {
	err := p.sock.Close()
	<-p.done
	return err
}

// Ping sends one echo request with the given sequence number to dest and
// waits for the matching reply.
func (p *Pinger) Ping(dest net.IP, seq uint16) EchoResult {
	l := NewListener(func(msg *Message, peer net.IP) bool {
		return msg.Sequence == seq
	})
	p.listeners.Store(l.id, l)
	defer p.listeners.Delete(l.id)

	payload := p.payload()
	request := Encode(ICMPTypeEchoRequest, 0, p.identifier, seq, payload)

	txTime := time.Now()
	if err := p.sock.WriteTo(request, dest); err != nil {
		errType := sendError
		if errors.Is(err, ErrSocketClosed) {
			errType = fatal
		}
		return EchoResult{Err: err, ErrorType: errType, Sequence: seq, Peer: dest}
	}

	p.mu.Lock()
	p.stats.Transmitted++
	p.mu.Unlock()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case rec, ok := <-l.matchChan:
		if !ok {
			break
		}
		rtt := rec.At.Sub(txTime)

		p.mu.Lock()
		p.stats.Received++
		p.stats.RTTs = append(p.stats.RTTs, rtt)
		p.mu.Unlock()

		return EchoResult{
			Sequence: seq,
			Peer:     rec.Peer,
			Size:     icmpHeaderLen + len(rec.Message.Payload),
			RTT:      rtt,
		}
	case <-timer.C:
	case <-p.done:
		return EchoResult{Err: ErrSocketClosed, ErrorType: fatal, Sequence: seq, Peer: dest}
	}

	return EchoResult{
		Err:       fmt.Errorf("timed out after %s waiting for echo reply icmp_seq=%d", p.timeout, seq),
		ErrorType: timedOut,
		Sequence:  seq,
		Peer:      dest,
	}
}

// Run pings dest count times, or until ctx is done when count is Forever,
// pausing for the configured interval between requests. onResult, if set, is
// called with every result. Run stops early on a fatal error.
func (p *Pinger) Run(ctx context.Context, dest net.IP, count int, onResult func(EchoResult)) (PingStats, error) {
	if count < Forever {
		return p.Stats(), fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}

	for seq := 0; count == Forever || seq < count; seq++ {
		if seq > 0 {
			select {
			case <-ctx.Done():
				return p.Stats(), nil
			case <-time.After(p.interval):
			}
		} else if ctx.Err() != nil {
			return p.Stats(), nil
		}

		result := p.Ping(dest, uint16(seq))
		if onResult != nil {
			onResult(result)
		}
		if result.IsFatal() {
			return p.Stats(), result.Err
		}
	}

	return p.Stats(), nil
}

// payload lays out a send timestamp followed by an incrementing byte pattern.
func (p *Pinger) payload() []byte {
	b := make([]byte, p.payloadSize)
	i := 0
	if len(b) >= 8 {
		binary.BigEndian.PutUint64(b, uint64(time.Now().UnixNano()))
		i = 8
	}
	for ; i < len(b); i++ {
		b[i] = byte(i)
	}
	return b
}

func (p *Pinger) receiveLoop() {
	defer close(p.done)

	buf := make([]byte, MaxPacketSize)
	for {
		n, peer, err := p.sock.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, ErrSocketClosed) {
				return
			}
			log.WithError(err).Warn("pinger failed to read from socket")
			time.Sleep(5 * time.Millisecond)
			continue
		}
		at := time.Now()

		msg, err := Decode(buf[:n], true)
		if err != nil {
			log.WithError(err).Debug("pinger dropped a malformed packet")
			continue
		}
		if msg.Type != ICMPTypeEchoReply || msg.Identifier != p.identifier {
			continue
		}
		if !msg.Valid() {
			log.WithFields(logrus.Fields{
				"peer": peer.String(),
				"seq":  msg.Sequence,
			}).Debug("pinger dropped an echo reply with a bad checksum")
			continue
		}

		matched := p.listeners.Run(Received{Message: msg, Peer: peer, At: at})

		p.mu.Lock()
		if matched {
			p.answered[msg.Sequence] = true
		} else if p.answered[msg.Sequence] {
			p.stats.Duplicates++
		}
		p.mu.Unlock()
	}
}
