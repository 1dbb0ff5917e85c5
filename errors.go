package pingback

import "errors"

var (
	// ErrTruncatedPacket is returned by Decode when a buffer is shorter than the headers it must hold.
	ErrTruncatedPacket = errors.New("truncated packet")
	// ErrSocketOpen wraps failures creating the raw ICMP socket, usually missing CAP_NET_RAW.
	ErrSocketOpen = errors.New("failed to open raw icmp socket")
	// ErrBind wraps failures binding the raw socket to a local address.
	ErrBind = errors.New("failed to bind raw icmp socket")
	// ErrSocketClosed is returned by any receive that was pending or attempted after Stop.
	ErrSocketClosed = errors.New("socket closed")

	ErrReceiveInFlight  = errors.New("a receive is already in flight on this responder")
	ErrAlreadyListening = errors.New("responder is already listening")
	ErrNotListening     = errors.New("responder is not listening")
	ErrInvalidCount     = errors.New("count must be Forever or >= 0")
	ErrBadChecksum      = errors.New("bad icmp checksum")
)
